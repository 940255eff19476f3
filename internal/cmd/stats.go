package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/coffersTech/logpile/internal/engine"
	"github.com/coffersTech/logpile/internal/model"
)

var errNoStats = errors.New("stats need a segment store (store.enabled) or cluster.nodes")

func newStatsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show segment store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			cfg.Console.Enabled = false
			rt, err := openRuntime(&cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			var stats engine.Stats
			switch {
			case rt.agg != nil:
				stats = rt.agg.Stats(cmd.Context())
			case rt.store != nil:
				stats = rt.store.Stats()
			default:
				return errNoStats
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			printStatsText(cmd, stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output statistics as JSON")
	return cmd
}

func printStatsText(cmd *cobra.Command, stats engine.Stats) {
	out := cmd.OutOrStdout()
	header := lipgloss.NewRenderer(out).NewStyle().Bold(true)

	fmt.Fprintln(out, header.Render("STORE SUMMARY"))
	fmt.Fprintln(out, strings.Repeat("─", 40))
	fmt.Fprintf(out, "Entries:   %d (%d buffered)\n", stats.TotalEntries, stats.Buffered)
	fmt.Fprintf(out, "Segments:  %d\n", stats.Segments)
	fmt.Fprintf(out, "Disk:      %s\n", formatBytes(stats.DiskUsage))
	fmt.Fprintln(out)

	fmt.Fprintln(out, header.Render("BY LEVEL"))
	fmt.Fprintln(out, strings.Repeat("─", 40))
	for _, lvl := range model.Levels() {
		if n := stats.LevelCounts[string(lvl)]; n > 0 {
			fmt.Fprintf(out, "%-10s %d\n", lvl, n)
		}
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
