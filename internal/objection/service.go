package objection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/callflow/internal/model"
	"github.com/sells-group/callflow/internal/registry"
	"github.com/sells-group/callflow/internal/store"
)

var (
	ErrFlowNotFound     = eris.New("objection flow not found")
	ErrIncompleteFlow   = eris.New("objection flow has unanswered steps")
	ErrCallNotFound     = eris.New("call not found")
	ErrUnknownMilestone = eris.New("unknown milestone")
)

// DefaultStateTTL bounds how long an idle flow survives between requests.
const DefaultStateTTL = 2 * time.Hour

// Store is the persistence the service needs. store.Store satisfies it.
type Store interface {
	GetCallSession(ctx context.Context, orgID, callID string) (*model.CallSession, error)
	CreateFlowState(ctx context.Context, orgID string, s model.ObjectionFlowState, ttl time.Duration) error
	GetFlowState(ctx context.Context, orgID, flowID string) (*model.ObjectionFlowState, error)
	InTx(ctx context.Context, fn func(tx store.Tx) error) error
}

// Service drives flows on behalf of clients that only hold a flow ID. The
// state value lives in short-lived storage between requests. Every
// transition locks the stored state, so overlapping requests for one flow
// apply in order. Terminal states are kept until they expire.
type Service struct {
	engine *Engine
	store  Store
	ttl    time.Duration
	now    func() time.Time
}

// NewService creates a Service. A non-positive ttl uses DefaultStateTTL.
func NewService(engine *Engine, st Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &Service{engine: engine, store: st, ttl: ttl, now: time.Now}
}

// Engine returns the underlying transition engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Start begins a flow for a call and persists its state.
func (s *Service) Start(ctx context.Context, orgID, callID string, milestone int, t model.ObjectionType) (*StepResult, error) {
	if registry.MilestoneName(milestone) == "" {
		return nil, eris.Wrapf(ErrUnknownMilestone, "objection: milestone %d", milestone)
	}
	if _, err := s.store.GetCallSession(ctx, orgID, callID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(ErrCallNotFound, "objection: call %s", callID)
		}
		return nil, err
	}

	res, err := s.engine.Start(t)
	if err != nil {
		return nil, err
	}
	res.State.CallID = callID
	res.State.MilestoneNumber = milestone

	if err := s.store.CreateFlowState(ctx, orgID, res.State, s.ttl); err != nil {
		return nil, err
	}
	zap.L().Debug("objection: flow started",
		zap.String("flow_id", res.State.FlowID),
		zap.String("call_id", callID),
		zap.String("objection_type", string(t)),
	)
	return res, nil
}

// Get returns the current step for a stored flow.
func (s *Service) Get(ctx context.Context, orgID, flowID string) (*StepResult, error) {
	state, err := s.load(ctx, orgID, flowID)
	if err != nil {
		return nil, err
	}
	def, err := s.engine.Definition(state.ObjectionType)
	if err != nil {
		return nil, err
	}
	res := &StepResult{State: *state, Definition: def, IsLastStep: state.ReadyForOutcome}
	if !state.ReadyForOutcome && !state.Completed {
		if step, ok := def.Step(state.CurrentStep); ok {
			res.CurrentStep = &step
		}
	}
	return res, nil
}

// Advance answers the current step of a stored flow.
func (s *Service) Advance(ctx context.Context, orgID, flowID, answer string) (*StepResult, error) {
	var res *StepResult
	err := s.transition(ctx, orgID, flowID, func(_ store.Tx, state model.ObjectionFlowState) (model.ObjectionFlowState, error) {
		next, err := s.engine.Advance(state, answer)
		if err != nil {
			return state, err
		}
		res = next
		return next.State, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GoBack moves a stored flow back one step.
func (s *Service) GoBack(ctx context.Context, orgID, flowID string) (*StepResult, error) {
	var res *StepResult
	err := s.transition(ctx, orgID, flowID, func(_ store.Tx, state model.ObjectionFlowState) (model.ObjectionFlowState, error) {
		prev, err := s.engine.GoBack(state)
		if err != nil {
			return state, err
		}
		res = prev
		return prev.State, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Validate reports unanswered steps of a stored flow.
func (s *Service) Validate(ctx context.Context, orgID, flowID string) (Validation, error) {
	state, err := s.load(ctx, orgID, flowID)
	if err != nil {
		return Validation{}, err
	}
	return s.engine.ValidateCompletion(*state)
}

// Complete finalizes a stored flow. With strict set, every answerable step
// must have an answer. The objection response is inserted and the terminal
// state saved in one transaction.
func (s *Service) Complete(ctx context.Context, orgID, flowID string, outcome model.ObjectionOutcome, notes *string, strict bool) (*Completion, *model.ObjectionResponse, error) {
	var (
		done *Completion
		resp *model.ObjectionResponse
	)
	err := s.transition(ctx, orgID, flowID, func(tx store.Tx, state model.ObjectionFlowState) (model.ObjectionFlowState, error) {
		if strict && !state.Completed {
			v, err := s.engine.ValidateCompletion(state)
			if err != nil {
				return state, err
			}
			if !v.IsValid {
				return state, eris.Wrapf(ErrIncompleteFlow, "objection: missing steps %s", joinInts(v.MissingSteps))
			}
		}
		c, err := s.engine.Complete(state, outcome, notes)
		if err != nil {
			return state, err
		}
		r := s.response(orgID, state, c.Outcome, c.Notes, c.Answers)
		if err := tx.InsertObjectionResponse(ctx, r); err != nil {
			return state, err
		}
		done, resp = c, r
		return c.State, nil
	})
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("objection: flow completed",
		zap.String("flow_id", flowID),
		zap.String("call_id", resp.CallID),
		zap.String("outcome", string(outcome)),
	)
	return done, resp, nil
}

// Abandon closes a stored flow that the agent walked away from. The answers
// captured so far are kept as a deferred objection.
func (s *Service) Abandon(ctx context.Context, orgID, flowID string) (*model.ObjectionResponse, error) {
	var resp *model.ObjectionResponse
	err := s.transition(ctx, orgID, flowID, func(tx store.Tx, state model.ObjectionFlowState) (model.ObjectionFlowState, error) {
		if state.Completed {
			return state, ErrFlowAlreadyComplete
		}
		r := s.response(orgID, state, model.ObjectionDeferred, nil, state.Answers.Clone())
		if err := tx.InsertObjectionResponse(ctx, r); err != nil {
			return state, err
		}
		resp = r

		next := state.Clone()
		deferred := model.ObjectionDeferred
		next.Outcome = &deferred
		next.Completed = true
		next.ReadyForOutcome = false
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("objection: flow abandoned",
		zap.String("flow_id", flowID),
		zap.String("call_id", resp.CallID),
		zap.Int("answered", len(resp.Answers)),
	)
	return resp, nil
}

// transition locks the stored flow, applies fn to it and writes the result
// back in one transaction. fn sees the latest committed state; an error from
// fn rolls back everything it wrote through tx.
func (s *Service) transition(ctx context.Context, orgID, flowID string, fn func(tx store.Tx, state model.ObjectionFlowState) (model.ObjectionFlowState, error)) error {
	return s.store.InTx(ctx, func(tx store.Tx) error {
		state, err := tx.LockFlowState(ctx, orgID, flowID)
		if errors.Is(err, store.ErrNotFound) {
			return eris.Wrapf(ErrFlowNotFound, "objection: flow %s", flowID)
		}
		if err != nil {
			return err
		}
		next, err := fn(tx, *state)
		if err != nil {
			return err
		}
		err = tx.UpdateFlowState(ctx, orgID, next, s.ttl)
		if errors.Is(err, store.ErrNotFound) {
			return eris.Wrapf(ErrFlowNotFound, "objection: flow %s", flowID)
		}
		return err
	})
}

func (s *Service) response(orgID string, state model.ObjectionFlowState, outcome model.ObjectionOutcome, notes *string, answers model.Answers) *model.ObjectionResponse {
	if answers == nil {
		answers = model.Answers{}
	}
	return &model.ObjectionResponse{
		ID:              uuid.New().String(),
		CallID:          state.CallID,
		OrgID:           orgID,
		MilestoneNumber: state.MilestoneNumber,
		ObjectionType:   state.ObjectionType,
		Outcome:         outcome,
		Answers:         answers,
		Notes:           notes,
		CreatedAt:       s.now().UTC(),
	}
}

func (s *Service) load(ctx context.Context, orgID, flowID string) (*model.ObjectionFlowState, error) {
	state, err := s.store.GetFlowState(ctx, orgID, flowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrFlowNotFound, "objection: flow %s", flowID)
	}
	return state, err
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
