package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/sells-group/callflow/internal/model"
	"github.com/sells-group/callflow/internal/store"
)

const storeScopeName = "github.com/sells-group/callflow/store"

// InstrumentedStore wraps store.Store with a span and callflow.store.*
// metrics for every method. Lookups that end in store.ErrNotFound are not
// counted as errors.
type InstrumentedStore struct {
	inner  store.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

var _ store.Store = (*InstrumentedStore)(nil)

// WrapStore returns s decorated with instrumentation. When enabled is false,
// s is returned unchanged.
func WrapStore(s store.Store, enabled bool) store.Store {
	if !enabled {
		return s
	}
	m := Meter(storeScopeName)
	ops, _ := m.Int64Counter("callflow.store.operations",
		metric.WithDescription("Total store operations executed"),
	)
	dur, _ := m.Float64Histogram("callflow.store.operation.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("callflow.store.errors",
		metric.WithDescription("Total store operation errors"),
	)
	return &InstrumentedStore{
		inner:  s,
		tracer: Tracer(storeScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

func (s *InstrumentedStore) op(ctx context.Context, name, orgID string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time, []attribute.KeyValue) {
	all := append([]attribute.KeyValue{
		attribute.String("db.operation", name),
		attribute.String("callflow.org_id", orgID),
	}, attrs...)
	ctx, span := s.tracer.Start(ctx, "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all[0]))
	return ctx, span, time.Now(), all[:1]
}

func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs []attribute.KeyValue) {
	ms := float64(time.Since(start).Microseconds()) / 1000
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (s *InstrumentedStore) CreateProspect(ctx context.Context, p *model.Prospect) error {
	ctx, span, start, attrs := s.op(ctx, "CreateProspect", p.OrgID)
	err := s.inner.CreateProspect(ctx, p)
	s.done(ctx, span, start, err, attrs)
	return err
}

func (s *InstrumentedStore) GetProspect(ctx context.Context, orgID, prospectID string) (*model.Prospect, error) {
	ctx, span, start, attrs := s.op(ctx, "GetProspect", orgID, attribute.String("callflow.prospect_id", prospectID))
	p, err := s.inner.GetProspect(ctx, orgID, prospectID)
	s.done(ctx, span, start, err, attrs)
	return p, err
}

func (s *InstrumentedStore) CreateCallSession(ctx context.Context, c *model.CallSession) error {
	ctx, span, start, attrs := s.op(ctx, "CreateCallSession", c.OrgID)
	err := s.inner.CreateCallSession(ctx, c)
	s.done(ctx, span, start, err, attrs)
	return err
}

func (s *InstrumentedStore) GetCallSession(ctx context.Context, orgID, callID string) (*model.CallSession, error) {
	ctx, span, start, attrs := s.op(ctx, "GetCallSession", orgID, attribute.String("callflow.call_id", callID))
	c, err := s.inner.GetCallSession(ctx, orgID, callID)
	s.done(ctx, span, start, err, attrs)
	return c, err
}

func (s *InstrumentedStore) StartCallSession(ctx context.Context, orgID, callID string, startedAt time.Time) error {
	ctx, span, start, attrs := s.op(ctx, "StartCallSession", orgID, attribute.String("callflow.call_id", callID))
	err := s.inner.StartCallSession(ctx, orgID, callID, startedAt)
	s.done(ctx, span, start, err, attrs)
	return err
}

func (s *InstrumentedStore) ListThreadCalls(ctx context.Context, orgID, threadID string) ([]model.CallSession, error) {
	ctx, span, start, attrs := s.op(ctx, "ListThreadCalls", orgID, attribute.String("callflow.thread_id", threadID))
	calls, err := s.inner.ListThreadCalls(ctx, orgID, threadID)
	span.SetAttributes(attribute.Int("callflow.result_count", len(calls)))
	s.done(ctx, span, start, err, attrs)
	return calls, err
}

func (s *InstrumentedStore) RecordMilestone(ctx context.Context, r *model.MilestoneResponse) error {
	ctx, span, start, attrs := s.op(ctx, "RecordMilestone", "", attribute.Int("callflow.milestone", r.MilestoneNumber))
	err := s.inner.RecordMilestone(ctx, r)
	s.done(ctx, span, start, err, attrs)
	return err
}

func (s *InstrumentedStore) ListMilestoneResponses(ctx context.Context, orgID string, callIDs []string) ([]model.MilestoneResponse, error) {
	ctx, span, start, attrs := s.op(ctx, "ListMilestoneResponses", orgID, attribute.Int("callflow.call_count", len(callIDs)))
	rs, err := s.inner.ListMilestoneResponses(ctx, orgID, callIDs)
	s.done(ctx, span, start, err, attrs)
	return rs, err
}

func (s *InstrumentedStore) ListObjectionResponses(ctx context.Context, orgID string, callIDs []string) ([]model.ObjectionResponse, error) {
	ctx, span, start, attrs := s.op(ctx, "ListObjectionResponses", orgID, attribute.Int("callflow.call_count", len(callIDs)))
	rs, err := s.inner.ListObjectionResponses(ctx, orgID, callIDs)
	s.done(ctx, span, start, err, attrs)
	return rs, err
}

func (s *InstrumentedStore) CountUnresolvedObjections(ctx context.Context, orgID, callID string) (int, error) {
	ctx, span, start, attrs := s.op(ctx, "CountUnresolvedObjections", orgID, attribute.String("callflow.call_id", callID))
	n, err := s.inner.CountUnresolvedObjections(ctx, orgID, callID)
	s.done(ctx, span, start, err, attrs)
	return n, err
}

func (s *InstrumentedStore) GetOutcome(ctx context.Context, orgID, callID string) (*model.CallOutcome, error) {
	ctx, span, start, attrs := s.op(ctx, "GetOutcome", orgID, attribute.String("callflow.call_id", callID))
	o, err := s.inner.GetOutcome(ctx, orgID, callID)
	s.done(ctx, span, start, err, attrs)
	return o, err
}

func (s *InstrumentedStore) GetOutcomeStats(ctx context.Context, orgID string, r store.DateRange) (*store.OutcomeStats, error) {
	ctx, span, start, attrs := s.op(ctx, "GetOutcomeStats", orgID)
	stats, err := s.inner.GetOutcomeStats(ctx, orgID, r)
	if stats != nil {
		span.SetAttributes(attribute.Int("callflow.outcome_total", stats.Total))
	}
	s.done(ctx, span, start, err, attrs)
	return stats, err
}

func (s *InstrumentedStore) CreateFlowState(ctx context.Context, orgID string, st model.ObjectionFlowState, ttl time.Duration) error {
	ctx, span, start, attrs := s.op(ctx, "CreateFlowState", orgID,
		attribute.String("callflow.flow_id", st.FlowID),
		attribute.String("callflow.objection_type", string(st.ObjectionType)),
	)
	err := s.inner.CreateFlowState(ctx, orgID, st, ttl)
	s.done(ctx, span, start, err, attrs)
	return err
}

func (s *InstrumentedStore) GetFlowState(ctx context.Context, orgID, flowID string) (*model.ObjectionFlowState, error) {
	ctx, span, start, attrs := s.op(ctx, "GetFlowState", orgID, attribute.String("callflow.flow_id", flowID))
	st, err := s.inner.GetFlowState(ctx, orgID, flowID)
	s.done(ctx, span, start, err, attrs)
	return st, err
}

func (s *InstrumentedStore) DeleteExpiredFlowStates(ctx context.Context) (int, error) {
	ctx, span, start, attrs := s.op(ctx, "DeleteExpiredFlowStates", "")
	n, err := s.inner.DeleteExpiredFlowStates(ctx)
	span.SetAttributes(attribute.Int("callflow.deleted", n))
	s.done(ctx, span, start, err, attrs)
	return n, err
}

// InTx records one span for the whole transaction. Calls made through tx
// are not individually traced.
func (s *InstrumentedStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	ctx, span, start, attrs := s.op(ctx, "InTx", "")
	err := s.inner.InTx(ctx, fn)
	s.done(ctx, span, start, err, attrs)
	return err
}

func (s *InstrumentedStore) Migrate(ctx context.Context) error {
	ctx, span, start, attrs := s.op(ctx, "Migrate", "")
	err := s.inner.Migrate(ctx)
	s.done(ctx, span, start, err, attrs)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
