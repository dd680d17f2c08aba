// Package outcome classifies how a call ended. Outcomes are created exactly
// once per call inside a single transaction and never modified afterwards.
package outcome

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/callflow/internal/model"
	"github.com/sells-group/callflow/internal/qualification"
	"github.com/sells-group/callflow/internal/registry"
	"github.com/sells-group/callflow/internal/store"
)

var (
	ErrUnknownOutcomeType               = eris.New("unknown outcome type")
	ErrDisqualificationReasonRequired   = eris.New("disqualification reason required")
	ErrDisqualificationReasonNotAllowed = eris.New("disqualification reason only allowed for disqualified outcomes")
	ErrCallNotFound                     = eris.New("call not found")
	ErrOutcomeAlreadyExists             = eris.New("outcome already exists for call")
	ErrInvalidCallStatus                = eris.New("call is not in progress")
	ErrOutcomeNotAllowedInAdvisoryMode  = eris.New("outcome not allowed in advisory mode")
	ErrOutcomeNotFound                  = eris.New("outcome not found")
	ErrInvalidDateRange                 = eris.New("invalid date range")
)

// Store is the persistence the engine needs. store.Store satisfies it.
type Store interface {
	InTx(ctx context.Context, fn func(tx store.Tx) error) error
	GetCallSession(ctx context.Context, orgID, callID string) (*model.CallSession, error)
	GetOutcome(ctx context.Context, orgID, callID string) (*model.CallOutcome, error)
	GetOutcomeStats(ctx context.Context, orgID string, r store.DateRange) (*store.OutcomeStats, error)
	CountUnresolvedObjections(ctx context.Context, orgID, callID string) (int, error)
	ListMilestoneResponses(ctx context.Context, orgID string, callIDs []string) ([]model.MilestoneResponse, error)
}

// Input is the agent's call-ending submission.
type Input struct {
	Type                   model.OutcomeType         `json:"outcome_type"`
	DisqualificationReason *string                   `json:"disqualification_reason,omitempty"`
	QualificationFlags     *model.QualificationFlags `json:"qualification_flags,omitempty"`
}

// CompletionCheck is a dry run of Create. Blockers would make Create fail;
// warnings are shown to the agent but never block.
type CompletionCheck struct {
	CanComplete     bool                `json:"can_complete"`
	Blockers        []string            `json:"blockers"`
	Warnings        []string            `json:"warnings"`
	IsAdvisoryMode  bool                `json:"is_advisory_mode"`
	AllowedOutcomes []model.OutcomeType `json:"allowed_outcomes"`
}

// Engine creates and reads call outcomes.
type Engine struct {
	store      Store
	milestones []model.Milestone
	now        func() time.Time
}

// NewEngine creates an Engine over st using the default milestone script.
func NewEngine(st Store) *Engine {
	return &Engine{store: st, milestones: registry.Milestones(), now: time.Now}
}

// Create records the outcome of an in-progress call and marks the call
// completed. The checks run in a fixed order and each failure has its own
// error. Everything after input validation happens in one transaction.
func (e *Engine) Create(ctx context.Context, orgID, callID string, in Input) (*model.CallOutcome, error) {
	if !in.Type.Valid() {
		return nil, eris.Wrapf(ErrUnknownOutcomeType, "outcome: %q", in.Type)
	}
	reason := trimmed(in.DisqualificationReason)
	if in.Type == model.OutcomeDisqualified && reason == nil {
		return nil, ErrDisqualificationReasonRequired
	}
	if in.Type != model.OutcomeDisqualified && reason != nil {
		return nil, eris.Wrapf(ErrDisqualificationReasonNotAllowed, "outcome: %q", in.Type)
	}

	var created *model.CallOutcome
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		call, err := tx.LockCallSession(ctx, orgID, callID)
		if errors.Is(err, store.ErrNotFound) {
			return eris.Wrapf(ErrCallNotFound, "outcome: call %s", callID)
		}
		if err != nil {
			return err
		}

		_, err = tx.GetOutcome(ctx, orgID, callID)
		switch {
		case err == nil:
			return eris.Wrapf(ErrOutcomeAlreadyExists, "outcome: call %s", callID)
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		if call.Status != model.CallStatusInProgress {
			return eris.Wrapf(ErrInvalidCallStatus, "outcome: call %s is %s", callID, call.Status)
		}

		status := qualification.Evaluate(call.ClientCount)
		if ok, why := qualification.IsOutcomeAllowed(status, in.Type); !ok {
			return eris.Wrap(ErrOutcomeNotAllowedInAdvisoryMode, why)
		}

		unresolved, err := tx.CountUnresolvedObjections(ctx, orgID, callID)
		if err != nil {
			return err
		}
		if unresolved > 0 {
			zap.L().Warn("outcome: completing call with unresolved objections",
				zap.String("org_id", orgID),
				zap.String("call_id", callID),
				zap.Int("unresolved", unresolved),
				zap.String("outcome_type", string(in.Type)),
			)
		}

		now := e.now().UTC()
		o := &model.CallOutcome{
			ID:                     uuid.New().String(),
			CallID:                 callID,
			OrgID:                  orgID,
			Type:                   in.Type,
			DisqualificationReason: reason,
			QualificationFlags:     in.QualificationFlags,
			CreatedAt:              now,
		}
		if err := tx.InsertOutcome(ctx, o); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return eris.Wrapf(ErrOutcomeAlreadyExists, "outcome: call %s", callID)
			}
			return err
		}
		if err := tx.CompleteCallSession(ctx, orgID, callID, now); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("outcome: call completed",
		zap.String("org_id", orgID),
		zap.String("call_id", callID),
		zap.String("outcome_type", string(created.Type)),
	)
	return created, nil
}

// Get returns the outcome recorded for a call.
func (e *Engine) Get(ctx context.Context, orgID, callID string) (*model.CallOutcome, error) {
	o, err := e.store.GetOutcome(ctx, orgID, callID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrOutcomeNotFound, "outcome: call %s", callID)
	}
	return o, err
}

// Stats aggregates outcomes for an org, optionally bounded by r.
func (e *Engine) Stats(ctx context.Context, orgID string, r store.DateRange) (*store.OutcomeStats, error) {
	if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
		return nil, eris.Wrapf(ErrInvalidDateRange, "outcome: from %s is not before to %s", r.From.Format(time.RFC3339), r.To.Format(time.RFC3339))
	}
	return e.store.GetOutcomeStats(ctx, orgID, r)
}

// CanComplete reports what would stop Create from succeeding right now and
// what the agent should review first.
func (e *Engine) CanComplete(ctx context.Context, orgID, callID string) (*CompletionCheck, error) {
	call, err := e.store.GetCallSession(ctx, orgID, callID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrCallNotFound, "outcome: call %s", callID)
	}
	if err != nil {
		return nil, err
	}

	status := qualification.Evaluate(call.ClientCount)
	check := &CompletionCheck{
		Blockers:        []string{},
		Warnings:        []string{},
		IsAdvisoryMode:  status.AdvisoryMode,
		AllowedOutcomes: status.AllowedOutcomes,
	}

	_, err = e.store.GetOutcome(ctx, orgID, callID)
	switch {
	case err == nil:
		check.Blockers = append(check.Blockers, "An outcome has already been recorded for this call")
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	if call.Status != model.CallStatusInProgress {
		check.Blockers = append(check.Blockers, fmt.Sprintf("Call status is %s; only in-progress calls can be completed", call.Status))
	}

	unresolved, err := e.store.CountUnresolvedObjections(ctx, orgID, callID)
	if err != nil {
		return nil, err
	}
	if unresolved > 0 {
		check.Warnings = append(check.Warnings, fmt.Sprintf("%d unresolved objection(s) on this call", unresolved))
	}

	responses, err := e.store.ListMilestoneResponses(ctx, orgID, []string{callID})
	if err != nil {
		return nil, err
	}
	if missing := e.incompleteMilestones(status, responses); len(missing) > 0 {
		check.Warnings = append(check.Warnings, fmt.Sprintf("Incomplete milestones: %s", strings.Join(missing, ", ")))
	}

	if status.AdvisoryMode {
		check.Warnings = append(check.Warnings, fmt.Sprintf("Advisory mode: prospect has %d clients, outcomes limited to %s",
			status.ClientCount, joinOutcomes(status.AllowedOutcomes)))
	}

	check.CanComplete = len(check.Blockers) == 0
	return check, nil
}

func (e *Engine) incompleteMilestones(status model.QualificationStatus, responses []model.MilestoneResponse) []string {
	done := make(map[int]bool, len(responses))
	for _, r := range responses {
		if r.Completed {
			done[r.MilestoneNumber] = true
		}
	}
	var missing []string
	for _, m := range e.milestones {
		if done[m.Number] || slices.Contains(status.SkippedMilestones, m.Number) {
			continue
		}
		missing = append(missing, fmt.Sprintf("%d (%s)", m.Number, m.Name))
	}
	return missing
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func joinOutcomes(types []model.OutcomeType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
