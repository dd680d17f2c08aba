package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/callflow/internal/model"
	"github.com/sells-group/callflow/internal/outcome"
	"github.com/sells-group/callflow/internal/qualification"
	"github.com/sells-group/callflow/internal/registry"
	"github.com/sells-group/callflow/internal/resilience"
	"github.com/sells-group/callflow/internal/store"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"objection_types": s.deps.Catalog.Len(),
	})
}

func (s *Server) listObjectionTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"definitions": s.deps.Catalog.Definitions()})
}

// --- Call lifecycle ---

func (s *Server) startCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	call, err := s.deps.Store.GetCallSession(r.Context(), orgID(r), callID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if call.Status != model.CallStatusScheduled {
		writeJSON(w, http.StatusConflict, errorBody{Error: "Only scheduled calls can be started"})
		return
	}
	if err := s.deps.Store.StartCallSession(r.Context(), orgID(r), callID, time.Now().UTC()); err != nil {
		writeError(w, r, err)
		return
	}
	call, err = s.deps.Store.GetCallSession(r.Context(), orgID(r), callID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

type milestoneRequest struct {
	MilestoneNumber int    `json:"milestone_number"`
	Completed       bool   `json:"completed"`
	Notes           string `json:"notes"`
}

func (s *Server) recordMilestone(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	var req milestoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
		return
	}
	if registry.MilestoneName(req.MilestoneNumber) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Unknown milestone"})
		return
	}
	if _, err := s.deps.Store.GetCallSession(r.Context(), orgID(r), callID); err != nil {
		writeError(w, r, err)
		return
	}
	resp := &model.MilestoneResponse{
		CallID:          callID,
		MilestoneNumber: req.MilestoneNumber,
		Completed:       req.Completed,
		Notes:           req.Notes,
	}
	if err := s.deps.Store.RecordMilestone(r.Context(), resp); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) callMilestones(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	status, err := s.deps.Qualification.StatusForCall(r.Context(), orgID(r), callID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	responses, err := s.deps.Store.ListMilestoneResponses(r.Context(), orgID(r), []string{callID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if responses == nil {
		responses = []model.MilestoneResponse{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"milestones": qualification.MilestoneAvailability(status, registry.Milestones()),
		"responses":  responses,
	})
}

// --- Qualification ---

type qualificationResponse struct {
	Status           model.QualificationStatus `json:"status"`
	CanProceed       bool                      `json:"can_proceed_to_offer"`
	CanProceedReason string                    `json:"can_proceed_reason,omitempty"`
}

func newQualificationResponse(status model.QualificationStatus) qualificationResponse {
	ok, reason := qualification.CanProceedToOffer(status)
	return qualificationResponse{Status: status, CanProceed: ok, CanProceedReason: reason}
}

func (s *Server) callQualification(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Qualification.StatusForCall(r.Context(), orgID(r), chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newQualificationResponse(status))
}

func (s *Server) prospectQualification(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Qualification.StatusForProspect(r.Context(), orgID(r), chi.URLParam(r, "prospectID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newQualificationResponse(status))
}

// --- Objection flows ---

type startFlowRequest struct {
	ObjectionType   model.ObjectionType `json:"objection_type"`
	MilestoneNumber int                 `json:"milestone_number"`
}

func (s *Server) startFlow(w http.ResponseWriter, r *http.Request) {
	var req startFlowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
		return
	}
	res, err := s.deps.Flows.Start(r.Context(), orgID(r), chi.URLParam(r, "callID"), req.MilestoneNumber, req.ObjectionType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Flows.Get(r.Context(), orgID(r), chi.URLParam(r, "flowID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type advanceRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) advanceFlow(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	// Statement steps need no body.
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
		return
	}
	res, err := s.deps.Flows.Advance(r.Context(), orgID(r), chi.URLParam(r, "flowID"), req.Answer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) backFlow(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Flows.GoBack(r.Context(), orgID(r), chi.URLParam(r, "flowID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) validateFlow(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Flows.Validate(r.Context(), orgID(r), chi.URLParam(r, "flowID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type completeFlowRequest struct {
	Outcome model.ObjectionOutcome `json:"outcome"`
	Notes   *string                `json:"notes,omitempty"`
}

func (s *Server) completeFlow(w http.ResponseWriter, r *http.Request) {
	var req completeFlowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
		return
	}
	done, resp, err := s.deps.Flows.Complete(r.Context(), orgID(r), chi.URLParam(r, "flowID"), req.Outcome, req.Notes, s.cfg.StrictCompletion)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"completion": done,
		"response":   resp,
	})
}

func (s *Server) abandonFlow(w http.ResponseWriter, r *http.Request) {
	resp, err := s.deps.Flows.Abandon(r.Context(), orgID(r), chi.URLParam(r, "flowID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Outcomes ---

func (s *Server) createOutcome(w http.ResponseWriter, r *http.Request) {
	var in outcome.Input
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
		return
	}
	org, callID := orgID(r), chi.URLParam(r, "callID")

	cfg := resilience.WithAttempts(s.cfg.CreateRetries)
	cfg.OnRetry = resilience.RetryLogger("outcome.create")
	created, err := resilience.DoVal(r.Context(), cfg, func(ctx context.Context) (*model.CallOutcome, error) {
		return s.deps.Outcomes.Create(ctx, org, callID, in)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	zap.L().Info("api: outcome recorded",
		zap.String("call_id", callID),
		zap.String("outcome_type", string(created.Type)),
	)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getOutcome(w http.ResponseWriter, r *http.Request) {
	o, err := s.deps.Outcomes.Get(r.Context(), orgID(r), chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) completionCheck(w http.ResponseWriter, r *http.Request) {
	check, err := s.deps.Outcomes.CanComplete(r.Context(), orgID(r), chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) outcomeStats(w http.ResponseWriter, r *http.Request) {
	rng, err := parseDateRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "from and to must be RFC 3339 timestamps"})
		return
	}
	stats, err := s.deps.Outcomes.Stats(r.Context(), orgID(r), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseDateRange(r *http.Request) (store.DateRange, error) {
	var rng store.DateRange
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return rng, eris.Wrap(err, "parse from")
		}
		rng.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return rng, eris.Wrap(err, "parse to")
		}
		rng.To = &t
	}
	return rng, nil
}

// --- Follow-up ---

func (s *Server) followUp(w http.ResponseWriter, r *http.Request) {
	fc, err := s.deps.FollowUp.Build(r.Context(), orgID(r), chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_follow_up": fc != nil,
		"context":      fc,
	})
}
