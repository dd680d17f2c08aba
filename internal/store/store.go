package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/callflow/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row in the caller's org.
	ErrNotFound = eris.New("record not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = eris.New("duplicate record")
)

// DateRange bounds a query by creation time. Nil ends are open.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// OutcomeStats aggregates call outcomes for an org.
type OutcomeStats struct {
	Total                    int                       `json:"total"`
	ByType                   map[model.OutcomeType]int `json:"by_type"`
	ByDisqualificationReason map[string]int            `json:"by_disqualification_reason"`
}

// Tx is the set of operations available inside a transaction opened by
// Store.InTx. Every call is scoped by org.
type Tx interface {
	// LockCallSession loads a call with its prospect's client count and
	// holds a write lock on the row until the transaction ends.
	LockCallSession(ctx context.Context, orgID, callID string) (*model.CallSession, error)
	GetOutcome(ctx context.Context, orgID, callID string) (*model.CallOutcome, error)
	CountUnresolvedObjections(ctx context.Context, orgID, callID string) (int, error)
	InsertOutcome(ctx context.Context, o *model.CallOutcome) error
	CompleteCallSession(ctx context.Context, orgID, callID string, endedAt time.Time) error

	InsertObjectionResponse(ctx context.Context, r *model.ObjectionResponse) error

	// LockFlowState loads an unexpired flow state and holds a write lock on
	// it until the transaction ends.
	LockFlowState(ctx context.Context, orgID, flowID string) (*model.ObjectionFlowState, error)
	// UpdateFlowState overwrites an existing flow state and extends its
	// expiry. It returns ErrNotFound when no row matches.
	UpdateFlowState(ctx context.Context, orgID string, s model.ObjectionFlowState, ttl time.Duration) error
}

// Store defines the persistence interface for the call-flow engines.
type Store interface {
	// Prospects
	CreateProspect(ctx context.Context, p *model.Prospect) error
	GetProspect(ctx context.Context, orgID, prospectID string) (*model.Prospect, error)

	// Call sessions
	CreateCallSession(ctx context.Context, c *model.CallSession) error
	GetCallSession(ctx context.Context, orgID, callID string) (*model.CallSession, error)
	StartCallSession(ctx context.Context, orgID, callID string, startedAt time.Time) error
	ListThreadCalls(ctx context.Context, orgID, threadID string) ([]model.CallSession, error)

	// Milestones
	RecordMilestone(ctx context.Context, r *model.MilestoneResponse) error
	ListMilestoneResponses(ctx context.Context, orgID string, callIDs []string) ([]model.MilestoneResponse, error)

	// Objections
	ListObjectionResponses(ctx context.Context, orgID string, callIDs []string) ([]model.ObjectionResponse, error)
	CountUnresolvedObjections(ctx context.Context, orgID, callID string) (int, error)

	// Outcomes
	GetOutcome(ctx context.Context, orgID, callID string) (*model.CallOutcome, error)
	GetOutcomeStats(ctx context.Context, orgID string, r DateRange) (*OutcomeStats, error)

	// Objection flow state (short-lived)
	CreateFlowState(ctx context.Context, orgID string, s model.ObjectionFlowState, ttl time.Duration) error
	GetFlowState(ctx context.Context, orgID, flowID string) (*model.ObjectionFlowState, error)
	DeleteExpiredFlowStates(ctx context.Context) (int, error)

	// InTx runs fn inside a single transaction. The transaction commits when
	// fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func newStats() *OutcomeStats {
	return &OutcomeStats{
		ByType:                   make(map[model.OutcomeType]int),
		ByDisqualificationReason: make(map[string]int),
	}
}
