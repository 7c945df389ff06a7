package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sgnexus/autobright/internal/api"
)

const levelBarWidth = 20

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Width(12)
	onStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	offStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			st, err := c.State(cmd.Context())
			if err != nil {
				return err
			}
			return a.printState(cmd.OutOrStdout(), st)
		},
	}
}

// printState writes st as JSON or as a human-readable summary.
func (a *app) printState(w io.Writer, st *api.StateResponse) error {
	if a.jsonOutput() {
		return writeJSON(w, st)
	}
	_, err := io.WriteString(w, renderState(st))
	return err
}

func renderState(st *api.StateResponse) string {
	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	service := onStyle.Render("running")
	if !st.Service.Running {
		service = offStyle.Render("stopped")
		if st.Service.LastStopReason != "" {
			service += dimStyle.Render(" (" + stopDetail(st) + ")")
		}
	}
	row("Service", service)
	row("Level", levelBar(st.State.RelativeLevel))
	row("Brightness", fmt.Sprintf("%d/255", st.State.Brightness))

	lux := dimStyle.Render("unknown")
	if st.State.Lux != nil {
		lux = fmt.Sprintf("%.1f lx", *st.State.Lux)
	}
	row("Ambient", lux)
	row("Mode", st.State.Mode)
	row("Sense", (time.Duration(st.State.SenseIntervalMs) * time.Millisecond).String())

	screen := "on"
	if !st.Service.ScreenOn {
		screen = "off"
	}
	row("Screen", screen)
	return b.String()
}

func stopDetail(st *api.StateResponse) string {
	if st.Service.LastStopAt == nil {
		return st.Service.LastStopReason
	}
	return st.Service.LastStopReason + " at " + st.Service.LastStopAt.Local().Format("15:04:05")
}

// levelBar renders a 0-100 level as a fixed-width bar.
func levelBar(level int) string {
	filled := level * levelBarWidth / 100
	filled = max(0, min(levelBarWidth, filled))
	return strings.Repeat("█", filled) + strings.Repeat("░", levelBarWidth-filled) + fmt.Sprintf(" %d%%", level)
}
