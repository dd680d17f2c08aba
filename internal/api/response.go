package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/callflow/internal/followup"
	"github.com/sells-group/callflow/internal/objection"
	"github.com/sells-group/callflow/internal/outcome"
	"github.com/sells-group/callflow/internal/qualification"
	"github.com/sells-group/callflow/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

// errorMappings is checked in order; the first sentinel in the chain wins.
var errorMappings = []struct {
	err     error
	status  int
	message string
}{
	{objection.ErrUnknownObjectionType, http.StatusBadRequest, "Unknown objection type"},
	{objection.ErrFlowAlreadyComplete, http.StatusConflict, "Objection flow is already complete"},
	{objection.ErrAtFirstStep, http.StatusConflict, "Already at the first step"},
	{objection.ErrOutcomeNotAllowedForType, http.StatusUnprocessableEntity, "Outcome is not allowed for this objection type"},
	{objection.ErrFlowNotFound, http.StatusNotFound, "Objection flow not found or expired"},
	{objection.ErrIncompleteFlow, http.StatusUnprocessableEntity, "Answer every question before completing the flow"},
	{objection.ErrCallNotFound, http.StatusNotFound, "Call not found"},
	{objection.ErrUnknownMilestone, http.StatusBadRequest, "Unknown milestone"},

	{qualification.ErrNotFound, http.StatusNotFound, "Prospect or call not found"},

	{outcome.ErrUnknownOutcomeType, http.StatusBadRequest, "Unknown outcome type"},
	{outcome.ErrDisqualificationReasonRequired, http.StatusBadRequest, "A disqualification reason is required"},
	{outcome.ErrDisqualificationReasonNotAllowed, http.StatusBadRequest, "A disqualification reason is only allowed for disqualified outcomes"},
	{outcome.ErrCallNotFound, http.StatusNotFound, "Call not found"},
	{outcome.ErrOutcomeAlreadyExists, http.StatusConflict, "An outcome has already been recorded for this call"},
	{outcome.ErrInvalidCallStatus, http.StatusConflict, "Only in-progress calls can be completed"},
	{outcome.ErrOutcomeNotAllowedInAdvisoryMode, http.StatusUnprocessableEntity, "Outcome is not available in advisory mode"},
	{outcome.ErrOutcomeNotFound, http.StatusNotFound, "No outcome recorded for this call"},
	{outcome.ErrInvalidDateRange, http.StatusBadRequest, "Start of range must be before end of range"},

	{followup.ErrCallNotFound, http.StatusNotFound, "Call not found"},

	{store.ErrNotFound, http.StatusNotFound, "Not found"},
	{store.ErrDuplicate, http.StatusConflict, "Already exists"},
}

func errorStatus(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	} else {
		zap.L().Debug("api: request rejected",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
		data = []byte(`{"error":"Internal server error"}`)
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
