// File: cmd/history.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regflow/internal/config"
	"github.com/xkilldash9x/regflow/internal/flow"
	"github.com/xkilldash9x/regflow/internal/observability"
	"github.com/xkilldash9x/regflow/internal/reporting"
)

// newHistoryCmd creates and configures the `history` command.
func newHistoryCmd(provider storeProvider) *cobra.Command {
	var limit int
	var format string

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recently stored registration runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runHistory(ctx, observability.GetLogger(), cfg, provider, limit, format, cmd.OutOrStdout())
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	historyCmd.Flags().StringVarP(&format, "format", "f", reporting.FormatText, `output format: "text" or "json"`)
	return historyCmd
}

func runHistory(ctx context.Context, logger *zap.Logger, cfg *config.Config, provider storeProvider, limit int, format string, out io.Writer) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("history needs a database: set database.url or REGFLOW_DATABASE_URL")
	}

	s, cleanup, err := provider.Create(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer cleanup()

	results, err := s.RecentResults(ctx, limit)
	if err != nil {
		return err
	}

	reporter, err := reporting.NewWithWriter(format, nopCloser{out})
	if err != nil {
		return err
	}
	defer reporter.Close()
	for _, r := range results {
		if err := reporter.Write(r); err != nil {
			return err
		}
	}

	if format != reporting.FormatText {
		return nil
	}
	counts, err := s.StatusCounts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, formatCounts(counts))
	return nil
}

// formatCounts renders per-status totals in a stable order, e.g. "total=4 success=3 timeout=1".
func formatCounts(counts map[flow.Status]int) string {
	statuses := make([]string, 0, len(counts))
	total := 0
	for s, n := range counts {
		statuses = append(statuses, string(s))
		total += n
	}
	sort.Strings(statuses)

	line := fmt.Sprintf("total=%d", total)
	for _, s := range statuses {
		line += fmt.Sprintf(" %s=%d", s, counts[flow.Status(s)])
	}
	return line
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
