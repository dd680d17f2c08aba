package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/callflow/internal/model"
	"github.com/sells-group/callflow/internal/objection"
	"github.com/sells-group/callflow/internal/outcome"
	"github.com/sells-group/callflow/internal/registry"
	"github.com/sells-group/callflow/internal/store"
)

const testOrg = "org-1"

type harness struct {
	t   *testing.T
	st  store.Store
	srv *httptest.Server
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	zap.ReplaceGlobals(zap.NewNop())

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	return newHarnessWithStore(t, cfg, st)
}

func newHarnessWithStore(t *testing.T, cfg Config, st store.Store) *harness {
	t.Helper()
	deps := NewDeps(st, registry.Default(), objection.DefaultStateTTL)
	srv := httptest.NewServer(NewServer(cfg, deps).Handler())
	t.Cleanup(srv.Close)
	return &harness{t: t, st: st, srv: srv}
}

// seedCall creates a prospect with clientCount clients and a call in status.
func (h *harness) seedCall(clientCount int, status model.CallStatus) *model.CallSession {
	h.t.Helper()
	ctx := context.Background()
	p := &model.Prospect{OrgID: testOrg, Name: "Northwind Payroll", ClientCount: clientCount}
	require.NoError(h.t, h.st.CreateProspect(ctx, p))
	c := &model.CallSession{OrgID: testOrg, ProspectID: p.ID, ThreadID: "thread-" + p.ID, Status: status}
	require.NoError(h.t, h.st.CreateCallSession(ctx, c))
	return c
}

func (h *harness) do(method, path string, body any) *http.Response {
	h.t.Helper()
	return h.doOrg(testOrg, method, path, body)
}

func (h *harness) doOrg(org, method, path string, body any) *http.Response {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if org != "" {
		req.Header.Set(OrgHeader, org)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t, Config{})
	resp := h.doOrg("", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 6, body["objection_types"])
}

func TestMissingOrgHeader(t *testing.T) {
	h := newHarness(t, Config{})
	resp := h.doOrg("", http.MethodGet, "/v1/objection-types", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestObjectionTypes(t *testing.T) {
	h := newHarness(t, Config{})
	resp := h.do(http.MethodGet, "/v1/objection-types", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Definitions []model.ObjectionFlowDefinition `json:"definitions"`
	}](t, resp)
	require.Len(t, body.Definitions, 6)
	assert.Equal(t, model.ObjectionPrice, body.Definitions[0].Type)
}

func TestObjectionFlowThroughOutcome(t *testing.T) {
	h := newHarness(t, Config{})
	call := h.seedCall(800, model.CallStatusInProgress)

	resp := h.do(http.MethodPost, "/v1/calls/"+call.ID+"/flows", startFlowRequest{ObjectionType: model.ObjectionPrice, MilestoneNumber: 6})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	step := decode[objection.StepResult](t, resp)
	flowID := step.State.FlowID
	require.NotEmpty(t, flowID)

	for i := 0; i < step.State.TotalSteps; i++ {
		resp = h.do(http.MethodPost, "/v1/flows/"+flowID+"/advance", advanceRequest{Answer: "payroll vendor"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		step = decode[objection.StepResult](t, resp)
	}
	assert.True(t, step.IsLastStep)
	assert.True(t, step.State.ReadyForOutcome)

	resp = h.do(http.MethodGet, "/v1/flows/"+flowID+"/validation", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[objection.Validation](t, resp).IsValid)

	resp = h.do(http.MethodPost, "/v1/flows/"+flowID+"/complete", completeFlowRequest{Outcome: model.ObjectionResolved})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A completed flow stays readable and rejects further transitions.
	resp = h.do(http.MethodGet, "/v1/flows/"+flowID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	final := decode[objection.StepResult](t, resp)
	assert.True(t, final.State.Completed)
	assert.Nil(t, final.CurrentStep)

	resp = h.do(http.MethodPost, "/v1/flows/"+flowID+"/complete", completeFlowRequest{Outcome: model.ObjectionResolved})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Objection flow is already complete", decode[errorBody](t, resp).Error)
	resp = h.do(http.MethodPost, "/v1/flows/"+flowID+"/advance", advanceRequest{Answer: "late answer"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = h.do(http.MethodPost, "/v1/flows/"+flowID+"/back", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = h.do(http.MethodDelete, "/v1/flows/"+flowID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.do(http.MethodPost, "/v1/calls/"+call.ID+"/outcome", outcome.Input{Type: model.OutcomeCoachingClient})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[model.CallOutcome](t, resp)
	assert.Equal(t, model.OutcomeCoachingClient, created.Type)

	resp = h.do(http.MethodPost, "/v1/calls/"+call.ID+"/outcome", outcome.Input{Type: model.OutcomeFollowUpScheduled})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "An outcome has already been recorded for this call", decode[errorBody](t, resp).Error)

	resp = h.do(http.MethodGet, "/v1/calls/"+call.ID+"/outcome", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ID, decode[model.CallOutcome](t, resp).ID)

	resp = h.do(http.MethodGet, "/v1/outcomes/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[store.OutcomeStats](t, resp)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByType[model.OutcomeCoachingClient])
}

func TestGoBackAtFirstStep(t *testing.T) {
	h := newHarness(t, Config{})
	call := h.seedCall(800, model.CallStatusInProgress)

	resp := h.do(http.MethodPost, "/v1/calls/"+call.ID+"/flows", startFlowRequest{ObjectionType: model.ObjectionTiming, MilestoneNumber: 6})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	flowID := decode[objection.StepResult](t, resp).State.FlowID

	resp = h.do(http.MethodPost, "/v1/flows/"+flowID+"/back", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStrictCompletionRejectsUnansweredFlow(t *testing.T) {
	h := newHarness(t, Config{StrictCompletion: true})
	call := h.seedCall(800, model.CallStatusInProgress)

	resp := h.do(http.MethodPost, "/v1/calls/"+call.ID+"/flows", startFlowRequest{ObjectionType: model.ObjectionPrice, MilestoneNumber: 6})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	flowID := decode[objection.StepResult](t, resp).State.FlowID

	resp = h.do(http.MethodPost, "/v1/flows/"+flowID+"/complete", completeFlowRequest{Outcome: model.ObjectionResolved})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAbandonFlowRecordsDeferred(t *testing.T) {
	h := newHarness(t, Config{})
	call := h.seedCall(800, model.CallStatusInProgress)

	resp := h.do(http.MethodPost, "/v1/calls/"+call.ID+"/flows", startFlowRequest{ObjectionType: model.ObjectionNeedToThink, MilestoneNumber: 6})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	flowID := decode[objection.StepResult](t, resp).State.FlowID

	resp = h.do(http.MethodDelete, "/v1/flows/"+flowID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.ObjectionDeferred, decode[model.ObjectionResponse](t, resp).Outcome)

	resp = h.do(http.MethodGet, "/v1/calls/"+call.ID+"/completion-check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	check := decode[outcome.CompletionCheck](t, resp)
	assert.True(t, check.CanComplete)
	assert.Contains(t, check.Warnings, "1 unresolved objection(s) on this call")
}

func TestFlowsAreScopedByOrg(t *testing.T) {
	h := newHarness(t, Config{})
	call := h.seedCall(800, model.CallStatusInProgress)

	resp := h.do(http.MethodPost, "/v1/calls/"+call.ID+"/flows", startFlowRequest{ObjectionType: model.ObjectionPrice, MilestoneNumber: 6})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	flowID := decode[objection.StepResult](t, resp).State.FlowID

	resp = h.doOrg("org-2", http.MethodGet, "/v1/flows/"+flowID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.doOrg("org-2", http.MethodPost, "/v1/calls/"+call.ID+"/flows", startFlowRequest{ObjectionType: model.ObjectionPrice, MilestoneNumber: 6})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnknownObjectionType(t *testing.T) {
	h := newHarness(t, Config{})
	call := h.seedCall(800, model.CallStatusInProgress)

	resp := h.do(http.MethodPost, "/v1/calls/"+call.ID+"/flows", startFlowRequest{ObjectionType: "budget_freeze", MilestoneNumber: 6})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Unknown objection type", decode[errorBody](t, resp).Error)
}

func TestStartFlowRequiresKnownMilestone(t *testing.T) {
	h := newHarness(t, Config{})
	call := h.seedCall(800, model.CallStatusInProgress)

	for _, body := range []any{
		map[string]any{"objection_type": "price"},
		startFlowRequest{ObjectionType: model.ObjectionPrice, MilestoneNumber: 9},
	} {
		resp := h.do(http.MethodPost, "/v1/calls/"+call.ID+"/flows", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Unknown milestone", decode[errorBody](t, resp).Error)
	}
}

func TestAdvisoryModeRejectsCoachingClient(t *testing.T) {
	h := newHarness(t, Config{})
	call := h.seedCall(120, model.CallStatusInProgress)

	resp := h.do(http.MethodGet, "/v1/calls/"+call.ID+"/qualification", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	q := decode[qualificationResponse](t, resp)
	assert.True(t, q.Status.AdvisoryMode)
	assert.False(t, q.CanProceed)

	resp = h.do(http.MethodPost, "/v1/calls/"+call.ID+"/outcome", outcome.Input{Type: model.OutcomeCoachingClient})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = h.do(http.MethodPost, "/v1/calls/"+call.ID+"/outcome", outcome.Input{Type: model.OutcomeFollowUpScheduled})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestDisqualifiedNeedsReason(t *testing.T) {
	h := newHarness(t, Config{})
	call := h.seedCall(800, model.CallStatusInProgress)

	resp := h.do(http.MethodPost, "/v1/calls/"+call.ID+"/outcome", outcome.Input{Type: model.OutcomeDisqualified})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "A disqualification reason is required", decode[errorBody](t, resp).Error)
}

func TestOutcomeRequiresInProgressCall(t *testing.T) {
	h := newHarness(t, Config{})
	call := h.seedCall(800, model.CallStatusScheduled)

	resp := h.do(http.MethodPost, "/v1/calls/"+call.ID+"/outcome", outcome.Input{Type: model.OutcomeFollowUpScheduled})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.do(http.MethodPost, "/v1/calls/"+call.ID+"/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.CallStatusInProgress, decode[model.CallSession](t, resp).Status)

	resp = h.do(http.MethodPost, "/v1/calls/"+call.ID+"/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.do(http.MethodPost, "/v1/calls/"+call.ID+"/outcome", outcome.Input{Type: model.OutcomeFollowUpScheduled})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestMilestones(t *testing.T) {
	h := newHarness(t, Config{})
	call := h.seedCall(300, model.CallStatusInProgress)

	resp := h.do(http.MethodPost, "/v1/calls/"+call.ID+"/milestones", milestoneRequest{MilestoneNumber: 1, Completed: true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = h.do(http.MethodPost, "/v1/calls/"+call.ID+"/milestones", milestoneRequest{MilestoneNumber: 12})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(http.MethodGet, "/v1/calls/"+call.ID+"/milestones", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Milestones []struct {
			Milestone   model.Milestone `json:"milestone"`
			IsAvailable bool            `json:"is_available"`
		} `json:"milestones"`
		Responses []model.MilestoneResponse `json:"responses"`
	}](t, resp)
	require.Len(t, body.Milestones, 7)
	assert.False(t, body.Milestones[4].IsAvailable)
	assert.True(t, body.Milestones[5].IsAvailable)
	require.Len(t, body.Responses, 1)
}

func TestFollowUpFirstCall(t *testing.T) {
	h := newHarness(t, Config{})
	call := h.seedCall(800, model.CallStatusInProgress)

	resp := h.do(http.MethodGet, "/v1/calls/"+call.ID+"/follow-up", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, false, body["is_follow_up"])
	assert.Nil(t, body["context"])

	resp = h.do(http.MethodGet, "/v1/calls/missing/follow-up", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOutcomeStatsRange(t *testing.T) {
	h := newHarness(t, Config{})

	resp := h.do(http.MethodGet, "/v1/outcomes/stats?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(http.MethodGet, "/v1/outcomes/stats?from=2026-03-02T00:00:00Z&to=2026-03-01T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(http.MethodGet, "/v1/outcomes/stats?from=2026-03-01T00:00:00Z&to=2026-03-02T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, decode[store.OutcomeStats](t, resp).Total)
}

func TestRateLimitPerOrg(t *testing.T) {
	h := newHarness(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 1})

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/objection-types", nil).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, h.do(http.MethodGet, "/v1/objection-types", nil).StatusCode)
	assert.Equal(t, http.StatusOK, h.doOrg("org-2", http.MethodGet, "/v1/objection-types", nil).StatusCode)
}

func TestOrgLimiter_EvictsBeyondCap(t *testing.T) {
	clock := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	l := newOrgLimiter(1, 2)
	l.max = 3
	l.now = func() time.Time { return clock }

	for _, org := range []string{"org-a", "org-b", "org-c"} {
		l.get(org)
		clock = clock.Add(100 * time.Millisecond)
	}
	require.Len(t, l.limiters, 3)

	// All entries are active, so the least recently seen one makes room.
	l.get("org-a")
	l.get("org-d")
	assert.Len(t, l.limiters, 3)
	assert.NotContains(t, l.limiters, "org-b")
	assert.Contains(t, l.limiters, "org-a")

	// Once buckets have had time to refill, idle entries are dropped.
	clock = clock.Add(5 * time.Second)
	l.get("org-e")
	assert.Len(t, l.limiters, 1)
	assert.Contains(t, l.limiters, "org-e")
}

func TestOrgLimiter_ManyOrgsStayBounded(t *testing.T) {
	l := newOrgLimiter(10, 10)
	l.max = 50
	for i := 0; i < 1000; i++ {
		l.get(fmt.Sprintf("org-%d", i))
	}
	assert.LessOrEqual(t, len(l.limiters), 50)
}

// busyOnceStore fails the first transaction the way a locked SQLite
// database does.
type busyOnceStore struct {
	store.Store
	calls int
}

func (s *busyOnceStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.calls++
	if s.calls == 1 {
		return eris.Wrap(errors.New("database is locked (5) (SQLITE_BUSY)"), "sqlite: begin transaction")
	}
	return s.Store.InTx(ctx, fn)
}

func TestCreateOutcomeRetriesTransientErrors(t *testing.T) {
	base := newHarness(t, Config{})
	call := base.seedCall(800, model.CallStatusInProgress)

	flaky := &busyOnceStore{Store: base.st}
	h := newHarnessWithStore(t, Config{CreateRetries: 3}, flaky)

	resp := h.do(http.MethodPost, "/v1/calls/"+call.ID+"/outcome", outcome.Input{Type: model.OutcomeImplementationOnly})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 2, flaky.calls)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"wrapped flow not found", eris.Wrap(objection.ErrFlowNotFound, "load"), http.StatusNotFound},
		{"advisory", eris.Wrapf(outcome.ErrOutcomeNotAllowedInAdvisoryMode, "outcome: %s", "coaching_client"), http.StatusUnprocessableEntity},
		{"duplicate", outcome.ErrOutcomeAlreadyExists, http.StatusConflict},
		{"store not found", eris.Wrap(store.ErrNotFound, "sqlite: get"), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := errorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, msg)
		})
	}
}
