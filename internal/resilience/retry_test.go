package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fastRetry keeps backoff short so tests stay quick.
func fastRetry(attempts int) RetryConfig {
	cfg := WithAttempts(attempts)
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

var errOutcomeExists = errors.New("outcome already exists for call")

func TestDo_Attempts(t *testing.T) {
	serialization := &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}

	tests := []struct {
		name      string
		attempts  int
		errs      []error // returned by successive calls; nil after the list runs out
		wantCalls int
		wantErr   error
	}{
		{"first try", 3, nil, 1, nil},
		{"serialization failure then success", 3, []error{fmt.Errorf("postgres: commit: %w", serialization)}, 2, nil},
		{"sqlite busy twice then success", 3, []error{
			errors.New("sqlite: begin transaction: database is locked (5) (SQLITE_BUSY)"),
			errors.New("sqlite: begin transaction: database is locked (5) (SQLITE_BUSY)"),
		}, 3, nil},
		{"duplicate is not retried", 3, []error{errOutcomeExists}, 1, errOutcomeExists},
		{"attempts exhausted", 2, []error{
			NewTransientError(errors.New("lock wait")),
			NewTransientError(errors.New("lock wait")),
			NewTransientError(errors.New("lock wait")),
		}, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			err := Do(context.Background(), fastRetry(tt.attempts), func(_ context.Context) error {
				calls++
				if calls <= len(tt.errs) {
					return tt.errs[calls-1]
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantCalls <= len(tt.errs):
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := WithAttempts(5)
	cfg.InitialBackoff = 50 * time.Millisecond

	var calls int
	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return NewTransientError(errors.New("lock wait"))
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	cfg := WithAttempts(3)
	cfg.InitialBackoff = time.Second
	cfg.JitterFraction = 0

	start := time.Now()
	err := Do(ctx, cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("lock wait"))
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, errOutcomeExists) }

	var calls int
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls == 1 {
			return errOutcomeExists
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_OnRetryAttemptNumbers(t *testing.T) {
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { attempts = append(attempts, attempt) }

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("lock wait"))
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_ZeroConfigUsesDefaults(t *testing.T) {
	var calls int
	err := Do(context.Background(), RetryConfig{}, func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsCreatedValue(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("sqlite: begin transaction: database is locked")
		}
		return "outcome-1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "outcome-1", val)
	assert.Equal(t, 2, calls)
}

func TestDoVal_ZeroValueOnFailure(t *testing.T) {
	val, err := DoVal(context.Background(), fastRetry(2), func(_ context.Context) (int, error) {
		return 42, NewTransientError(errors.New("lock wait"))
	})
	require.Error(t, err)
	assert.Zero(t, val)
}

func TestWithAttempts(t *testing.T) {
	assert.Equal(t, 5, WithAttempts(5).MaxAttempts)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, WithAttempts(0).MaxAttempts)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, WithAttempts(-1).MaxAttempts)
}

func TestComputeBackoff(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
		Multiplier:     2.0,
	})

	want := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for attempt, w := range want {
		assert.Equal(t, w, computeBackoff(attempt, cfg), "attempt %d", attempt)
	}
}

func TestComputeBackoff_JitterStaysInRange(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		JitterFraction: 0.25,
	})

	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		d := computeBackoff(0, cfg)
		seen[d] = true
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
	assert.Greater(t, len(seen), 1)
}

func TestApplyDefaults_NegativeJitter(t *testing.T) {
	cfg := applyDefaults(RetryConfig{JitterFraction: -1})
	assert.Zero(t, cfg.JitterFraction)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, cfg.MaxAttempts)
}

func TestRetryLogger(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	prev := zap.L()
	zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	RetryLogger("outcome.create")(2, errors.New("database is locked"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "outcome.create", fields["operation"])
	assert.EqualValues(t, 2, fields["attempt"])
}
