// Package objection implements the guided objection diagnostic flow: a
// step-by-step questioning script per objection type that ends in an
// outcome. Engine transitions are pure functions over an explicit state
// value; Service persists that value between requests.
package objection

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/callflow/internal/model"
	"github.com/sells-group/callflow/internal/registry"
)

var (
	ErrUnknownObjectionType     = eris.New("unknown objection type")
	ErrFlowAlreadyComplete      = eris.New("objection flow already complete")
	ErrAtFirstStep              = eris.New("already at first step")
	ErrOutcomeNotAllowedForType = eris.New("outcome not allowed for objection type")
)

// StepResult is returned by Start, Advance and GoBack. CurrentStep is nil
// once the flow is ready for an outcome.
type StepResult struct {
	State       model.ObjectionFlowState      `json:"flow_state"`
	CurrentStep *model.DiagnosticStep         `json:"current_step"`
	IsLastStep  bool                          `json:"is_last_step"`
	Definition  model.ObjectionFlowDefinition `json:"flow_definition"`
}

// Completion is returned by Complete.
type Completion struct {
	State   model.ObjectionFlowState `json:"flow_state"`
	Outcome model.ObjectionOutcome   `json:"outcome"`
	Notes   *string                  `json:"notes,omitempty"`
	Answers model.Answers            `json:"answers"`
}

// Validation reports which answerable steps are still empty.
type Validation struct {
	IsValid      bool  `json:"is_valid"`
	MissingSteps []int `json:"missing_steps"`
}

// Engine applies flow transitions against a definition catalog. It holds no
// per-flow state and is safe for concurrent use.
type Engine struct {
	catalog *registry.Catalog
	now     func() time.Time
}

// NewEngine creates an Engine over catalog.
func NewEngine(catalog *registry.Catalog) *Engine {
	return &Engine{catalog: catalog, now: time.Now}
}

// Definition returns the definition for t or ErrUnknownObjectionType.
func (e *Engine) Definition(t model.ObjectionType) (model.ObjectionFlowDefinition, error) {
	d, ok := e.catalog.Lookup(t)
	if !ok {
		return model.ObjectionFlowDefinition{}, eris.Wrapf(ErrUnknownObjectionType, "objection: %q", t)
	}
	return d, nil
}

// Start begins a new flow at step 1.
func (e *Engine) Start(t model.ObjectionType) (*StepResult, error) {
	def, err := e.Definition(t)
	if err != nil {
		return nil, err
	}

	state := model.ObjectionFlowState{
		FlowID:        uuid.New().String(),
		ObjectionType: t,
		CurrentStep:   1,
		TotalSteps:    len(def.Steps),
		Answers:       model.Answers{},
		StartedAt:     e.now().UTC(),
	}
	step := def.Steps[0]
	return &StepResult{
		State:       state,
		CurrentStep: &step,
		IsLastStep:  false,
		Definition:  def,
	}, nil
}

// Advance records an answer for the current step and moves forward. On the
// final step the pointer stays put and IsLastStep is set; the caller should
// move to outcome selection.
func (e *Engine) Advance(state model.ObjectionFlowState, answer string) (*StepResult, error) {
	if state.Completed {
		return nil, ErrFlowAlreadyComplete
	}
	def, err := e.Definition(state.ObjectionType)
	if err != nil {
		return nil, err
	}
	step, err := currentStep(def, state)
	if err != nil {
		return nil, err
	}

	next := state.Clone()
	if next.Answers == nil {
		next.Answers = model.Answers{}
	}
	if step.Kind == model.StepStatement {
		next.Answers[step.Number] = model.AcknowledgedAnswer
	} else {
		next.Answers[step.Number] = normalizeAnswer(answer)
	}

	if next.CurrentStep >= next.TotalSteps {
		next.ReadyForOutcome = true
		return &StepResult{State: next, CurrentStep: nil, IsLastStep: true, Definition: def}, nil
	}

	next.CurrentStep++
	s, _ := def.Step(next.CurrentStep)
	return &StepResult{State: next, CurrentStep: &s, IsLastStep: false, Definition: def}, nil
}

// GoBack moves the pointer back one step. Stored answers are kept so the
// previous input can be redisplayed.
func (e *Engine) GoBack(state model.ObjectionFlowState) (*StepResult, error) {
	if state.Completed {
		return nil, ErrFlowAlreadyComplete
	}
	if state.CurrentStep <= 1 {
		return nil, ErrAtFirstStep
	}
	def, err := e.Definition(state.ObjectionType)
	if err != nil {
		return nil, err
	}

	next := state.Clone()
	next.ReadyForOutcome = false
	next.CurrentStep--
	s, ok := def.Step(next.CurrentStep)
	if !ok {
		return nil, eris.Errorf("objection: step %d out of range for %s", next.CurrentStep, state.ObjectionType)
	}
	return &StepResult{State: next, CurrentStep: &s, IsLastStep: false, Definition: def}, nil
}

// Complete finalizes the flow with outcome. The returned state is terminal.
func (e *Engine) Complete(state model.ObjectionFlowState, outcome model.ObjectionOutcome, notes *string) (*Completion, error) {
	if state.Completed {
		return nil, ErrFlowAlreadyComplete
	}
	def, err := e.Definition(state.ObjectionType)
	if err != nil {
		return nil, err
	}
	if !def.AllowsOutcome(outcome) {
		return nil, eris.Wrapf(ErrOutcomeNotAllowedForType, "objection: %q for %s", outcome, state.ObjectionType)
	}

	next := state.Clone()
	if next.Answers == nil {
		next.Answers = model.Answers{}
	}
	next.Outcome = &outcome
	next.Completed = true
	next.ReadyForOutcome = false

	var n *string
	if notes != nil {
		if trimmed := strings.TrimSpace(*notes); trimmed != "" {
			n = &trimmed
		}
	}
	return &Completion{State: next, Outcome: outcome, Notes: n, Answers: next.Answers.Clone()}, nil
}

// ValidateCompletion lists answerable steps without a stored answer.
// Statement steps never count as missing.
func (e *Engine) ValidateCompletion(state model.ObjectionFlowState) (Validation, error) {
	def, err := e.Definition(state.ObjectionType)
	if err != nil {
		return Validation{}, err
	}
	missing := []int{}
	for _, s := range def.Steps {
		if s.Kind == model.StepStatement {
			continue
		}
		if strings.TrimSpace(state.Answers[s.Number]) == "" {
			missing = append(missing, s.Number)
		}
	}
	return Validation{IsValid: len(missing) == 0, MissingSteps: missing}, nil
}

func currentStep(def model.ObjectionFlowDefinition, state model.ObjectionFlowState) (model.DiagnosticStep, error) {
	s, ok := def.Step(state.CurrentStep)
	if !ok {
		return model.DiagnosticStep{}, eris.Errorf("objection: step %d out of range for %s", state.CurrentStep, state.ObjectionType)
	}
	return s, nil
}

func normalizeAnswer(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
