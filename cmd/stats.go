package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/callflow/internal/model"
	"github.com/sells-group/callflow/internal/outcome"
	"github.com/sells-group/callflow/internal/store"
)

var (
	statsOrg  string
	statsFrom string
	statsTo   string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize call outcomes for an org",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		rng, err := parseStatsRange(statsFrom, statsTo)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		stats, err := outcome.NewEngine(st).Stats(ctx, statsOrg, rng)
		if err != nil {
			return eris.Wrap(err, "outcome stats")
		}
		formatStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsOrg, "org", "", "org ID (required)")
	statsCmd.Flags().StringVar(&statsFrom, "from", "", "only outcomes at or after this time (RFC 3339 or YYYY-MM-DD)")
	statsCmd.Flags().StringVar(&statsTo, "to", "", "only outcomes before this time (RFC 3339 or YYYY-MM-DD)")
	_ = statsCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(statsCmd)
}

func parseStatsRange(from, to string) (store.DateRange, error) {
	var rng store.DateRange
	if from != "" {
		t, err := parseStatsTime(from)
		if err != nil {
			return rng, eris.Wrap(err, "parse --from")
		}
		rng.From = &t
	}
	if to != "" {
		t, err := parseStatsTime(to)
		if err != nil {
			return rng, eris.Wrap(err, "parse --to")
		}
		rng.To = &t
	}
	return rng, nil
}

func parseStatsTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// formatStats writes outcome counts by type, then disqualification reasons
// by frequency.
func formatStats(out io.Writer, stats *store.OutcomeStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "OUTCOME\tCOUNT")
	_, _ = fmt.Fprintln(w, "-------\t-----")
	for _, t := range model.OutcomeTypes {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", t, stats.ByType[t])
	}
	_, _ = fmt.Fprintf(w, "total\t%d\n", stats.Total)
	_ = w.Flush()

	if len(stats.ByDisqualificationReason) == 0 {
		return
	}

	reasons := make([]string, 0, len(stats.ByDisqualificationReason))
	for r := range stats.ByDisqualificationReason {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		ci, cj := stats.ByDisqualificationReason[reasons[i]], stats.ByDisqualificationReason[reasons[j]]
		if ci != cj {
			return ci > cj
		}
		return reasons[i] < reasons[j]
	})

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DISQUALIFICATION REASON\tCOUNT")
	_, _ = fmt.Fprintln(w, "-----------------------\t-----")
	for _, r := range reasons {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", r, stats.ByDisqualificationReason[r])
	}
	_ = w.Flush()
}
