// Package cli implements autobrightctl, the command-line client for the
// autobright daemon's HTTP API.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Defaults for the global flags.
const (
	DefaultServer  = "http://127.0.0.1:8765"
	DefaultTimeout = 5 * time.Second
)

// app carries the settings shared by every subcommand.
type app struct {
	v *viper.Viper
}

// NewRootCommand builds the autobrightctl command tree. Settings come from
// flags, then AUTOBRIGHT_* environment variables, then an optional config
// file.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "autobrightctl",
		Short: "Control the autobright display brightness daemon",
		Long: `autobrightctl talks to a running autobright daemon over its local HTTP API.

It can show the current state, nudge the relative brightness level,
start or stop automatic control and inspect recent history.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig()
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/autobright/ctl.yaml)")
	root.PersistentFlags().StringP("server", "s", DefaultServer, "daemon API address")
	root.PersistentFlags().Duration("timeout", DefaultTimeout, "request timeout")
	root.PersistentFlags().Bool("json", false, "print raw JSON")
	for _, name := range []string{"config", "server", "timeout", "json"} {
		_ = a.v.BindPFlag(name, root.PersistentFlags().Lookup(name))
	}

	root.AddCommand(
		newStatusCommand(a),
		newUpCommand(a),
		newDownCommand(a),
		newSetCommand(a),
		newIntervalCommand(a),
		newEnableCommand(a),
		newDisableCommand(a),
		newHistoryCommand(a),
		newWatchCommand(a),
	)
	return root
}

// Execute runs the root command until ctx is cancelled.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *app) initConfig() error {
	if cfgFile := a.v.GetString("config"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else {
		a.v.SetConfigName("ctl")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath("$HOME/.config/autobright")
	}

	a.v.SetEnvPrefix("AUTOBRIGHT")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		// A missing default file is fine; an explicit one must load.
		var notFound viper.ConfigFileNotFoundError
		if a.v.GetString("config") != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

func (a *app) client() (*Client, error) {
	return NewClient(a.v.GetString("server"), a.v.GetDuration("timeout"))
}

func (a *app) jsonOutput() bool {
	return a.v.GetBool("json")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
