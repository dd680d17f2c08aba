package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition() ObjectionFlowDefinition {
	return ObjectionFlowDefinition{
		Type: ObjectionPrice,
		Name: "Price",
		Steps: []DiagnosticStep{
			{Number: 1, Question: "What budget did you have in mind?", Kind: StepText},
			{Number: 2, Question: "Which matters most?", Kind: StepSingleSelect, Options: []string{"a", "b"}},
			{Number: 3, Question: "Reframe.", Kind: StepStatement},
		},
		AllowedOutcomes: []ObjectionOutcome{ObjectionResolved, ObjectionDeferred},
	}
}

func TestObjectionFlowDefinition_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(d *ObjectionFlowDefinition)
		wantErr string
	}{
		{name: "valid", mutate: func(d *ObjectionFlowDefinition) {}},
		{name: "unknown type", mutate: func(d *ObjectionFlowDefinition) { d.Type = "weather" }, wantErr: "unknown objection type"},
		{name: "no steps", mutate: func(d *ObjectionFlowDefinition) { d.Steps = nil }, wantErr: "no steps"},
		{name: "gap in numbering", mutate: func(d *ObjectionFlowDefinition) { d.Steps[1].Number = 3 }, wantErr: "has number 3"},
		{name: "select without options", mutate: func(d *ObjectionFlowDefinition) { d.Steps[1].Options = nil }, wantErr: "has no options"},
		{name: "unknown kind", mutate: func(d *ObjectionFlowDefinition) { d.Steps[0].Kind = "slider" }, wantErr: "unknown kind"},
		{name: "no outcomes", mutate: func(d *ObjectionFlowDefinition) { d.AllowedOutcomes = nil }, wantErr: "no allowed outcomes"},
		{name: "bad outcome", mutate: func(d *ObjectionFlowDefinition) { d.AllowedOutcomes = []ObjectionOutcome{"maybe"} }, wantErr: "unknown outcome"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := validDefinition()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestObjectionFlowDefinition_Step(t *testing.T) {
	d := validDefinition()

	s, ok := d.Step(2)
	require.True(t, ok)
	assert.Equal(t, StepSingleSelect, s.Kind)

	_, ok = d.Step(0)
	assert.False(t, ok)
	_, ok = d.Step(4)
	assert.False(t, ok)
}

func TestDecodeAnswers(t *testing.T) {
	a, err := DecodeAnswers([]byte(`{"1":"too expensive","3":"acknowledged"}`))
	require.NoError(t, err)
	assert.Equal(t, Answers{1: "too expensive", 3: "acknowledged"}, a)

	a, err = DecodeAnswers(nil)
	require.NoError(t, err)
	assert.Empty(t, a)

	_, err = DecodeAnswers([]byte(`{"one":"x"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid step key")

	_, err = DecodeAnswers([]byte(`{"0":"x"}`))
	require.Error(t, err)

	_, err = DecodeAnswers([]byte(`{"1":42}`))
	require.Error(t, err)
}

func TestObjectionFlowState_JSONRoundTripKeepsSparseAnswers(t *testing.T) {
	outcome := ObjectionDeferred
	s := ObjectionFlowState{
		FlowID:        "f-1",
		ObjectionType: ObjectionTiming,
		CurrentStep:   3,
		TotalSteps:    4,
		Answers:       Answers{1: "next quarter", 3: "acknowledged"},
		Outcome:       &outcome,
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"answers":{"1":"next quarter","3":"acknowledged"}`)

	var got ObjectionFlowState
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, s.Answers, got.Answers)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, ObjectionDeferred, *got.Outcome)
}

func TestObjectionFlowState_CloneIsIndependent(t *testing.T) {
	outcome := ObjectionResolved
	s := ObjectionFlowState{Answers: Answers{1: "a"}, Outcome: &outcome}
	c := s.Clone()
	c.Answers[2] = "b"
	*c.Outcome = ObjectionDeferred

	assert.Len(t, s.Answers, 1)
	assert.Equal(t, ObjectionResolved, *s.Outcome)
}

func TestObjectionFlowState_Phase(t *testing.T) {
	assert.Equal(t, PhaseInProgress, ObjectionFlowState{}.Phase())
	assert.Equal(t, PhaseReadyForOutcome, ObjectionFlowState{ReadyForOutcome: true}.Phase())
	assert.Equal(t, PhaseComplete, ObjectionFlowState{ReadyForOutcome: true, Completed: true}.Phase())
}

func TestObjectionResponse_Unresolved(t *testing.T) {
	assert.False(t, ObjectionResponse{Outcome: ObjectionResolved}.Unresolved())
	assert.True(t, ObjectionResponse{Outcome: ObjectionDeferred}.Unresolved())
	assert.True(t, ObjectionResponse{Outcome: ObjectionDisqualified}.Unresolved())
}

func TestDecodeQualificationFlags(t *testing.T) {
	f, err := DecodeQualificationFlags([]byte(`{"has_500_clients":true,"financial_capacity":false,"strategic_alignment":true}`))
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.True(t, f.Has500Clients)
	assert.False(t, f.FinancialCapacity)
	assert.True(t, f.StrategicAlignment)

	f, err = DecodeQualificationFlags(nil)
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = DecodeQualificationFlags([]byte(`{"has_500_clients":true,"budget":"big"}`))
	require.Error(t, err)
}

func TestOutcomeType_Valid(t *testing.T) {
	for _, ot := range OutcomeTypes {
		assert.True(t, ot.Valid(), ot)
	}
	assert.False(t, OutcomeType("won").Valid())
}
