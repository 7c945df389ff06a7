package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent brightness changes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			return printHistory(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func printHistory(w io.Writer, resp *HistoryResponse) error {
	if resp.Count == 0 {
		_, err := fmt.Fprintln(w, "No history recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCHANGE\tFROM\tTO\tLEVEL\tLUX\tBRIGHTNESS")
	for _, e := range resp.Entries {
		lux := "-"
		if e.Lux >= 0 {
			lux = fmt.Sprintf("%.1f", e.Lux)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%d\n",
			e.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			e.Key, e.OldValue, e.NewValue, e.Level, lux, e.Brightness,
		)
	}
	return tw.Flush()
}
