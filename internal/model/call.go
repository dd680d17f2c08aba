package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// CallStatus represents the lifecycle state of a call session.
type CallStatus string

const (
	CallStatusScheduled  CallStatus = "scheduled"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusCancelled  CallStatus = "cancelled"
)

// Prospect is the organization being sold to.
type Prospect struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	ClientCount int       `json:"client_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// CallSession is one guided call with a prospect. Calls with the same
// prospect share a ThreadID.
type CallSession struct {
	ID         string     `json:"id"`
	OrgID      string     `json:"org_id"`
	ProspectID string     `json:"prospect_id"`
	ThreadID   string     `json:"thread_id"`
	AgentID    string     `json:"agent_id"`
	Status     CallStatus `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	// ClientCount is the prospect's client count read alongside the call.
	ClientCount int `json:"client_count"`
}

// OutcomeType classifies how a call ended.
type OutcomeType string

const (
	OutcomeCoachingClient     OutcomeType = "coaching_client"
	OutcomeFollowUpScheduled  OutcomeType = "follow_up_scheduled"
	OutcomeImplementationOnly OutcomeType = "implementation_only"
	OutcomeDisqualified       OutcomeType = "disqualified"
)

// OutcomeTypes lists every outcome type.
var OutcomeTypes = []OutcomeType{
	OutcomeCoachingClient,
	OutcomeFollowUpScheduled,
	OutcomeImplementationOnly,
	OutcomeDisqualified,
}

// Valid reports whether t is a known outcome type.
func (t OutcomeType) Valid() bool {
	switch t {
	case OutcomeCoachingClient, OutcomeFollowUpScheduled, OutcomeImplementationOnly, OutcomeDisqualified:
		return true
	}
	return false
}

// QualificationFlags is the agent's snapshot of qualification at call end.
type QualificationFlags struct {
	Has500Clients      bool `json:"has_500_clients"`
	FinancialCapacity  bool `json:"financial_capacity"`
	StrategicAlignment bool `json:"strategic_alignment"`
}

// DecodeQualificationFlags decodes a stored flags blob. Unknown keys are
// rejected so the shape stays fixed.
func DecodeQualificationFlags(data []byte) (*QualificationFlags, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var f QualificationFlags
	if err := dec.Decode(&f); err != nil {
		return nil, eris.Wrap(err, "qualification flags: decode")
	}
	return &f, nil
}

// CallOutcome is the immutable terminal classification of a call.
type CallOutcome struct {
	ID                     string              `json:"id"`
	CallID                 string              `json:"call_id"`
	OrgID                  string              `json:"org_id"`
	Type                   OutcomeType         `json:"outcome_type"`
	DisqualificationReason *string             `json:"disqualification_reason,omitempty"`
	QualificationFlags     *QualificationFlags `json:"qualification_flags,omitempty"`
	CreatedAt              time.Time           `json:"created_at"`
}

// Milestone is a numbered stage of the guided call script.
type Milestone struct {
	Number      int    `json:"number" yaml:"number"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// MilestoneResponse records an agent's progress through one milestone.
type MilestoneResponse struct {
	ID              string    `json:"id"`
	CallID          string    `json:"call_id"`
	MilestoneNumber int       `json:"milestone_number"`
	Completed       bool      `json:"completed"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// QualificationStatus is derived from a prospect's client count.
type QualificationStatus struct {
	Qualified         bool          `json:"is_qualified"`
	AdvisoryMode      bool          `json:"is_advisory_mode"`
	ClientCount       int           `json:"client_count"`
	Threshold         int           `json:"threshold"`
	SkippedMilestones []int         `json:"skipped_milestones"`
	AllowedOutcomes   []OutcomeType `json:"allowed_outcomes"`
	Reasons           []string      `json:"reasons"`
}
