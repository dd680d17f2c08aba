package model

import (
	"encoding/json"
	"slices"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// ObjectionType identifies a category of prospect objection.
type ObjectionType string

const (
	ObjectionPrice        ObjectionType = "price"
	ObjectionTiming       ObjectionType = "timing"
	ObjectionCapacityTime ObjectionType = "capacity_time"
	ObjectionNeedToThink  ObjectionType = "need_to_think"
	ObjectionPartnerTeam  ObjectionType = "partner_team"
	ObjectionSkepticism   ObjectionType = "skepticism"
)

// ObjectionTypes lists every objection type in catalog order.
var ObjectionTypes = []ObjectionType{
	ObjectionPrice,
	ObjectionTiming,
	ObjectionCapacityTime,
	ObjectionNeedToThink,
	ObjectionPartnerTeam,
	ObjectionSkepticism,
}

// Valid reports whether t is a known objection type.
func (t ObjectionType) Valid() bool {
	return slices.Contains(ObjectionTypes, t)
}

// ObjectionOutcome is the terminal result of an objection diagnostic.
type ObjectionOutcome string

const (
	ObjectionResolved     ObjectionOutcome = "resolved"
	ObjectionDeferred     ObjectionOutcome = "deferred"
	ObjectionDisqualified ObjectionOutcome = "disqualified"
)

// Valid reports whether o is a known objection outcome.
func (o ObjectionOutcome) Valid() bool {
	switch o {
	case ObjectionResolved, ObjectionDeferred, ObjectionDisqualified:
		return true
	}
	return false
}

// StepKind describes how an agent answers a diagnostic step.
type StepKind string

const (
	StepText         StepKind = "text"
	StepSingleSelect StepKind = "single_select"
	StepMultiSelect  StepKind = "multi_select"
	StepStatement    StepKind = "statement"
)

// IsSelect reports whether the kind needs an option list.
func (k StepKind) IsSelect() bool {
	return k == StepSingleSelect || k == StepMultiSelect
}

// AcknowledgedAnswer is stored for statement steps once passed.
const AcknowledgedAnswer = "acknowledged"

// DiagnosticStep is one guided question in an objection flow.
type DiagnosticStep struct {
	Number      int      `json:"number" yaml:"number"`
	Question    string   `json:"question" yaml:"question"`
	Purpose     string   `json:"purpose" yaml:"purpose"`
	Kind        StepKind `json:"kind" yaml:"kind"`
	Options     []string `json:"options,omitempty" yaml:"options,omitempty"`
	Placeholder string   `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

// ObjectionFlowDefinition is the static diagnostic script for one objection type.
type ObjectionFlowDefinition struct {
	Type            ObjectionType      `json:"type" yaml:"type"`
	Name            string             `json:"name" yaml:"name"`
	Steps           []DiagnosticStep   `json:"steps" yaml:"steps"`
	AllowedOutcomes []ObjectionOutcome `json:"allowed_outcomes" yaml:"allowed_outcomes"`
}

// Validate checks the structural invariants of a definition.
func (d ObjectionFlowDefinition) Validate() error {
	if !d.Type.Valid() {
		return eris.Errorf("flow definition: unknown objection type %q", d.Type)
	}
	if len(d.Steps) == 0 {
		return eris.Errorf("flow definition %s: no steps", d.Type)
	}
	for i, s := range d.Steps {
		if s.Number != i+1 {
			return eris.Errorf("flow definition %s: step %d has number %d", d.Type, i+1, s.Number)
		}
		switch s.Kind {
		case StepText, StepStatement:
		case StepSingleSelect, StepMultiSelect:
			if len(s.Options) == 0 {
				return eris.Errorf("flow definition %s: select step %d has no options", d.Type, s.Number)
			}
		default:
			return eris.Errorf("flow definition %s: step %d has unknown kind %q", d.Type, s.Number, s.Kind)
		}
	}
	if len(d.AllowedOutcomes) == 0 {
		return eris.Errorf("flow definition %s: no allowed outcomes", d.Type)
	}
	for _, o := range d.AllowedOutcomes {
		if !o.Valid() {
			return eris.Errorf("flow definition %s: unknown outcome %q", d.Type, o)
		}
	}
	return nil
}

// Step returns the step with the given 1-based number.
func (d ObjectionFlowDefinition) Step(n int) (DiagnosticStep, bool) {
	if n < 1 || n > len(d.Steps) {
		return DiagnosticStep{}, false
	}
	return d.Steps[n-1], true
}

// AllowsOutcome reports whether o is in the definition's allowed set.
func (d ObjectionFlowDefinition) AllowsOutcome(o ObjectionOutcome) bool {
	return slices.Contains(d.AllowedOutcomes, o)
}

// Answers maps step numbers to stored answers. Only answered steps are present.
type Answers map[int]string

// Clone returns an independent copy.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// UnmarshalJSON decodes a step-keyed object, rejecting malformed keys.
func (a *Answers) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeAnswers(data)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAnswers validates and decodes a stored answers blob. Keys must be
// positive decimal step numbers and values must be strings.
func DecodeAnswers(data []byte) (Answers, error) {
	out := Answers{}
	if len(data) == 0 || string(data) == "null" {
		return out, nil
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "answers: decode")
	}
	for k, v := range raw {
		n, err := strconv.Atoi(k)
		if err != nil || n < 1 {
			return nil, eris.Errorf("answers: invalid step key %q", k)
		}
		out[n] = v
	}
	return out, nil
}

// FlowPhase is the coarse state of an objection flow.
type FlowPhase string

const (
	PhaseInProgress      FlowPhase = "in_progress"
	PhaseReadyForOutcome FlowPhase = "ready_for_outcome"
	PhaseComplete        FlowPhase = "complete"
)

// ObjectionFlowState is the mutable, serializable state of one objection
// handling session. It is owned by the call session that started it.
type ObjectionFlowState struct {
	FlowID          string            `json:"flow_id"`
	CallID          string            `json:"call_id,omitempty"`
	MilestoneNumber int               `json:"milestone_number,omitempty"`
	ObjectionType   ObjectionType     `json:"objection_type"`
	CurrentStep     int               `json:"current_step"`
	TotalSteps      int               `json:"total_steps"`
	Answers         Answers           `json:"answers"`
	Outcome         *ObjectionOutcome `json:"outcome,omitempty"`
	Completed       bool              `json:"completed"`
	ReadyForOutcome bool              `json:"ready_for_outcome"`
	StartedAt       time.Time         `json:"started_at"`
}

// Phase reports where the flow sits in its lifecycle.
func (s ObjectionFlowState) Phase() FlowPhase {
	switch {
	case s.Completed:
		return PhaseComplete
	case s.ReadyForOutcome:
		return PhaseReadyForOutcome
	default:
		return PhaseInProgress
	}
}

// Clone returns a deep copy of the state.
func (s ObjectionFlowState) Clone() ObjectionFlowState {
	out := s
	out.Answers = s.Answers.Clone()
	if s.Outcome != nil {
		o := *s.Outcome
		out.Outcome = &o
	}
	return out
}

// ObjectionResponse is the persisted record of a finished objection flow.
type ObjectionResponse struct {
	ID              string           `json:"id"`
	CallID          string           `json:"call_id"`
	OrgID           string           `json:"org_id"`
	MilestoneNumber int              `json:"milestone_number"`
	ObjectionType   ObjectionType    `json:"objection_type"`
	Outcome         ObjectionOutcome `json:"outcome"`
	Answers         Answers          `json:"answers"`
	Notes           *string          `json:"notes,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Unresolved reports whether the objection is still open.
func (r ObjectionResponse) Unresolved() bool {
	return r.Outcome != ObjectionResolved
}
