package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/sgnexus/autobright/internal/api"
)

func newWatchCommand(a *app) *cobra.Command {
	var feedbackOnly bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream state changes and feedback signals until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}

			channels := []string{api.ChannelState, api.ChannelFeedback}
			if feedbackOnly {
				channels = []string{api.ChannelFeedback}
			}

			ctx := cmd.Context()
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.WebSocketURL(channels...), nil)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrUnreachable, err)
			}
			defer conn.Close() //nolint:errcheck // Also closed on cancel

			// Unblock ReadJSON when the command is interrupted.
			go func() {
				<-ctx.Done()
				conn.Close() //nolint:errcheck // Unblocks the read below
			}()

			return a.stream(ctx.Err, conn, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&feedbackOnly, "feedback", false, "only show feedback signals")
	return cmd
}

// eventReader is the part of a websocket connection stream reads from.
type eventReader interface {
	ReadJSON(v any) error
}

// stream prints events until the connection fails. An error after
// cancellation is a clean exit.
func (a *app) stream(cancelled func() error, r eventReader, w io.Writer) error {
	for {
		var msg api.WSMessage
		if err := r.ReadJSON(&msg); err != nil {
			if cancelled() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading events: %w", err)
		}
		if msg.Type != api.WSTypeEvent {
			continue
		}
		if err := a.printEvent(w, msg); err != nil {
			return err
		}
	}
}

func (a *app) printEvent(w io.Writer, msg api.WSMessage) error {
	if a.jsonOutput() {
		return writeJSON(w, msg)
	}

	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}

	switch msg.EventType {
	case api.ChannelState:
		var p struct {
			Key   string `json:"key"`
			Value any    `json:"value"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s  %-16s %v\n", msg.Timestamp, p.Key, p.Value)
	case api.ChannelFeedback:
		var p struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s  %-16s %s\n", msg.Timestamp, p.Kind, p.Message)
	default:
		_, err = fmt.Fprintf(w, "%s  %s\n", msg.Timestamp, msg.EventType)
	}
	return err
}
