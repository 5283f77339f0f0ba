package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"runtimeviewer/internal/aggregate"
	"runtimeviewer/internal/config"
)

var (
	topServer    string
	topTimeframe string
	topSearch    string
	topNoCollate bool
	topLimit     int
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Print the most frequent runtimes of the dataset",
	Args:  cobra.NoArgs,
	RunE:  runTop,
}

func init() {
	topCmd.Flags().StringVar(&topServer, "server", aggregate.AllServers, "only count rounds of this server")
	topCmd.Flags().StringVar(&topTimeframe, "timeframe", "7", "days before the newest round to include (1, 3, 7 or all)")
	topCmd.Flags().StringVar(&topSearch, "search", "", "only count runtimes matching this text")
	topCmd.Flags().BoolVar(&topNoCollate, "no-collate", false, "keep duplicate runtimes of a round separate")
	topCmd.Flags().IntVar(&topLimit, "limit", 20, "number of rows to print")
}

func runTop(cmd *cobra.Command, _ []string) error {
	timeframe, err := aggregate.ParseTimeframe(topTimeframe)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	loader, err := newLoader(cfg, nil)
	if err != nil {
		return err
	}
	snap, err := loader.Load(cmd.Context())
	if err != nil {
		return err
	}

	view := aggregate.Run(snap.Rounds(), aggregate.Params{
		Server:    topServer,
		Timeframe: timeframe,
		Search:    topSearch,
		Collate:   !topNoCollate,
	}, cfg.Colors())
	renderTable(cmd.OutOrStdout(), view, topLimit)
	return nil
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	countStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Width(8).Align(lipgloss.Right)
	percentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(7).Align(lipgloss.Right)
	procStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
)

const maxExceptionWidth = 80

func renderTable(out io.Writer, view *aggregate.View, limit int) {
	params := view.Params
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d runtimes over %d rounds (server %s, %s)",
		view.Table.Len(), view.Table.RoundsSupplied(), params.Server, params.Timeframe)))

	for _, row := range view.Table.Window(0, limit) {
		exception := truncate(firstLine(row.Runtime.Exception), maxExceptionWidth)
		fmt.Fprintf(out, "%s %s  %s %s\n",
			countStyle.Render(fmt.Sprintf("%d", row.TotalCount)),
			percentStyle.Render(fmt.Sprintf("%.1f%%", row.Percent*100)),
			procStyle.Render(row.Runtime.ProcPath),
			exception)
	}
	if remaining := view.Table.Len() - limit; limit > 0 && remaining > 0 {
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("... %d more", remaining)))
	}
	if view.Collator != nil {
		keys := view.Collator.Keys()
		var total int64
		for _, key := range keys {
			total += view.Collator.Total(key)
		}
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("collated %d identities, %d runtimes", len(keys), total)))
	}
}

// truncate shortens s to at most width runes, marking the cut with "...".
func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-3]) + "..."
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
