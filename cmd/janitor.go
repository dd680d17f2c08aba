package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/callflow/internal/resilience"
)

// flowStateSweeper is the part of store.Store the janitor uses.
type flowStateSweeper interface {
	DeleteExpiredFlowStates(ctx context.Context) (int, error)
}

var janitorInterval time.Duration

var janitorCmd = &cobra.Command{
	Use:   "janitor",
	Short: "Purge expired objection flow state",
	Long:  "Deletes flow state past its TTL. Runs once, or repeatedly with --interval.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		if janitorInterval <= 0 {
			_, err := sweepFlowStates(ctx, st)
			return err
		}
		return runJanitor(ctx, st, janitorInterval)
	},
}

func init() {
	janitorCmd.Flags().DurationVar(&janitorInterval, "interval", 0, "repeat the sweep at this interval until interrupted")
	rootCmd.AddCommand(janitorCmd)
}

// sweepFlowStates deletes expired flow state, retrying on lock contention.
func sweepFlowStates(ctx context.Context, st flowStateSweeper) (int, error) {
	rc := resilience.DefaultRetryConfig()
	rc.OnRetry = resilience.RetryLogger("janitor.sweep")
	n, err := resilience.DoVal(ctx, rc, st.DeleteExpiredFlowStates)
	if err != nil {
		return 0, eris.Wrap(err, "janitor: sweep flow state")
	}
	if n > 0 {
		zap.L().Info("janitor: purged expired flow state", zap.Int("deleted", n))
	}
	return n, nil
}

// runJanitor sweeps every interval until ctx is done. A failed sweep is
// logged and retried on the next tick.
func runJanitor(ctx context.Context, st flowStateSweeper, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := sweepFlowStates(ctx, st); err != nil && ctx.Err() == nil {
				zap.L().Warn("janitor: sweep failed", zap.Error(err))
			}
		}
	}
}
