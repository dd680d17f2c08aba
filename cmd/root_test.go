package main

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/callflow/internal/config"
	"github.com/sells-group/callflow/internal/model"
	"github.com/sells-group/callflow/internal/registry"
	"github.com/sells-group/callflow/internal/store"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"serve", "migrate", "flows", "stats", "janitor"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "callflow", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)

	flag = serveCmd.Flags().Lookup("janitor-interval")
	require.NotNil(t, flag)
	assert.Equal(t, "10m0s", flag.DefValue)

	assert.NotNil(t, serveCmd.Flags().Lookup("migrate"))
}

func TestFlowsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range flowsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])
}

func TestStatsCommand_Flags(t *testing.T) {
	for _, name := range []string{"org", "from", "to"} {
		assert.NotNil(t, statsCmd.Flags().Lookup(name), "stats should have --%s flag", name)
	}
}

func TestInitCatalog_Default(t *testing.T) {
	cfg = &config.Config{}
	t.Cleanup(func() { cfg = nil })

	catalog, err := initCatalog()
	require.NoError(t, err)
	assert.Equal(t, registry.Default().Len(), catalog.Len())
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}
	t.Cleanup(func() { cfg = nil })

	_, err := initStore(context.Background())
	assert.Error(t, err)
}

func TestInitStore_SQLite(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: t.TempDir() + "/cmd.db"}}
	t.Cleanup(func() { cfg = nil })

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	_, err = st.GetCallSession(context.Background(), "org-1", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFormatFlowList(t *testing.T) {
	var buf bytes.Buffer
	formatFlowList(&buf, registry.Default())

	out := buf.String()
	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, "price")
	assert.Contains(t, out, "partner_team")
	assert.Contains(t, out, "resolved,deferred,disqualified")
}

func TestFormatFlowDefinition(t *testing.T) {
	def, ok := registry.Default().Lookup(model.ObjectionPrice)
	require.True(t, ok)

	var buf bytes.Buffer
	formatFlowDefinition(&buf, def)

	out := buf.String()
	assert.Contains(t, out, "Price (price)")
	assert.Contains(t, out, "1. [text]")
	assert.Contains(t, out, "options: Total investment | Monthly cash flow | Both | Neither")
}

func TestFormatStats(t *testing.T) {
	stats := &store.OutcomeStats{
		Total: 4,
		ByType: map[model.OutcomeType]int{
			model.OutcomeCoachingClient: 1,
			model.OutcomeDisqualified:   3,
		},
		ByDisqualificationReason: map[string]int{
			"too small":   2,
			"no capacity": 1,
		},
	}

	var buf bytes.Buffer
	formatStats(&buf, stats)
	out := buf.String()

	assert.Contains(t, out, "coaching_client")
	assert.Contains(t, out, "total")
	assert.Contains(t, out, "DISQUALIFICATION REASON")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("too small")), bytes.Index(buf.Bytes(), []byte("no capacity")))
}

func TestFormatStats_NoReasons(t *testing.T) {
	var buf bytes.Buffer
	formatStats(&buf, &store.OutcomeStats{ByType: map[model.OutcomeType]int{}, ByDisqualificationReason: map[string]int{}})
	assert.NotContains(t, buf.String(), "DISQUALIFICATION REASON")
}

func TestParseStatsRange(t *testing.T) {
	rng, err := parseStatsRange("2026-03-01", "2026-03-31T23:59:59Z")
	require.NoError(t, err)
	require.NotNil(t, rng.From)
	require.NotNil(t, rng.To)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *rng.From)

	rng, err = parseStatsRange("", "")
	require.NoError(t, err)
	assert.Nil(t, rng.From)
	assert.Nil(t, rng.To)

	_, err = parseStatsRange("last week", "")
	assert.Error(t, err)
}

type fakeSweeper struct {
	calls   atomic.Int32
	deleted int
	err     error
}

func (f *fakeSweeper) DeleteExpiredFlowStates(context.Context) (int, error) {
	f.calls.Add(1)
	return f.deleted, f.err
}

func TestSweepFlowStates(t *testing.T) {
	zap.ReplaceGlobals(zap.NewNop())

	n, err := sweepFlowStates(context.Background(), &fakeSweeper{deleted: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	f := &fakeSweeper{err: errors.New("permission denied")}
	_, err = sweepFlowStates(context.Background(), f)
	assert.Error(t, err)
	assert.Equal(t, int32(1), f.calls.Load(), "non-transient errors are not retried")
}

func TestRunJanitor_StopsOnCancel(t *testing.T) {
	zap.ReplaceGlobals(zap.NewNop())
	f := &fakeSweeper{deleted: 1}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runJanitor(ctx, f, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return f.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
