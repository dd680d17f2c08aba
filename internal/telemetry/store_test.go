package telemetry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/sells-group/callflow/internal/model"
	"github.com/sells-group/callflow/internal/store"
)

func newSQLite(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prev := otel.GetTracerProvider()
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestWrapStore_DisabledReturnsInner(t *testing.T) {
	st := newSQLite(t)
	assert.Same(t, st, WrapStore(st, false))
}

func TestWrapStore_RecordsSpans(t *testing.T) {
	rec := recordSpans(t)
	st := WrapStore(newSQLite(t), true)
	ctx := context.Background()

	p := &model.Prospect{OrgID: "org-1", Name: "Acme HR", ClientCount: 620}
	require.NoError(t, st.CreateProspect(ctx, p))
	got, err := st.GetProspect(ctx, "org-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, 620, got.ClientCount)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "store.CreateProspect", spans[0].Name())
	assert.Equal(t, "store.GetProspect", spans[1].Name())
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}

func TestWrapStore_NotFoundIsNotAnError(t *testing.T) {
	rec := recordSpans(t)
	st := WrapStore(newSQLite(t), true)

	_, err := st.GetCallSession(context.Background(), "org-1", "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Empty(t, spans[0].Events())
}

func TestWrapStore_FailedTransactionMarksSpan(t *testing.T) {
	rec := recordSpans(t)
	st := WrapStore(newSQLite(t), true)
	ctx := context.Background()

	err := st.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertOutcome(ctx, &model.CallOutcome{CallID: "c-1", OrgID: "org-1", Type: "bogus"})
	})
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "store.InTx", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
