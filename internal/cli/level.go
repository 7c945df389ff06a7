package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sgnexus/autobright/internal/api"
)

// stateAction is a client call that returns the resulting state.
type stateAction func(c *Client, ctx context.Context) (*api.StateResponse, error)

// runStateAction calls act and prints the resulting state.
func (a *app) runStateAction(cmd *cobra.Command, act stateAction) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	st, err := act(c, cmd.Context())
	if err != nil {
		return err
	}
	return a.printState(cmd.OutOrStdout(), st)
}

func newUpCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "up",
		Aliases: []string{"increase"},
		Short:   "Raise the relative brightness level by one step",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStateAction(cmd, (*Client).Increase)
		},
	}
}

func newDownCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "down",
		Aliases: []string{"decrease"},
		Short:   "Lower the relative brightness level by one step",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStateAction(cmd, (*Client).Decrease)
		},
	}
}

func newSetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <level>",
		Short: "Set the relative brightness level (0-100)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("level %q is not a number", args[0])
			}
			if level < 0 || level > 100 {
				return fmt.Errorf("level %d must be between 0 and 100", level)
			}
			return a.runStateAction(cmd, func(c *Client, ctx context.Context) (*api.StateResponse, error) {
				return c.SetLevel(ctx, level)
			})
		},
	}
}

func newIntervalCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "interval <duration>",
		Short: "Set the minimum time between sensor readings, e.g. 2s or 500ms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("interval %q: %w", args[0], err)
			}
			if d < time.Millisecond {
				return fmt.Errorf("interval must be at least 1ms")
			}
			return a.runStateAction(cmd, func(c *Client, ctx context.Context) (*api.StateResponse, error) {
				return c.SetSenseInterval(ctx, d)
			})
		},
	}
}

func newEnableCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "enable",
		Aliases: []string{"start"},
		Short:   "Start automatic brightness control",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStateAction(cmd, (*Client).Enable)
		},
	}
}

func newDisableCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "disable",
		Aliases: []string{"stop"},
		Short:   "Stop automatic brightness control",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStateAction(cmd, (*Client).Disable)
		},
	}
}
