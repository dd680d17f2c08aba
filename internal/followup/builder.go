// Package followup assembles the context an agent needs when a call
// continues an earlier conversation with the same prospect.
package followup

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/callflow/internal/model"
	"github.com/sells-group/callflow/internal/registry"
	"github.com/sells-group/callflow/internal/store"
)

// ErrCallNotFound is returned when the call does not exist in the org.
var ErrCallNotFound = eris.New("call not found")

// ResumeKind identifies a suggested starting point for a follow-up call.
type ResumeKind string

const (
	ResumeContinue          ResumeKind = "continue_from_next"
	ResumeAddressObjections ResumeKind = "address_objections"
	ResumeJumpToDecision    ResumeKind = "jump_to_decision"
)

// ResumePoint is one suggestion for where the agent should pick up.
type ResumePoint struct {
	Kind        ResumeKind `json:"kind"`
	Milestone   int        `json:"milestone,omitempty"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
}

// PreviousCall summarizes the most recent earlier call in the thread.
type PreviousCall struct {
	Call    model.CallSession  `json:"call"`
	Outcome *model.CallOutcome `json:"outcome,omitempty"`
}

// Context is what the follow-up call starts from.
type Context struct {
	ThreadID               string                    `json:"thread_id"`
	PreviousCall           PreviousCall              `json:"previous_call"`
	LastCompletedMilestone *model.Milestone          `json:"last_completed_milestone,omitempty"`
	UnresolvedObjections   []model.ObjectionResponse `json:"unresolved_objections"`
	SuggestedResumePoints  []ResumePoint             `json:"suggested_resume_points"`
	DefaultResumePoint     *ResumePoint              `json:"default_resume_point,omitempty"`
}

// Store is the read-only persistence the builder uses.
type Store interface {
	GetCallSession(ctx context.Context, orgID, callID string) (*model.CallSession, error)
	ListThreadCalls(ctx context.Context, orgID, threadID string) ([]model.CallSession, error)
	ListMilestoneResponses(ctx context.Context, orgID string, callIDs []string) ([]model.MilestoneResponse, error)
	ListObjectionResponses(ctx context.Context, orgID string, callIDs []string) ([]model.ObjectionResponse, error)
	GetOutcome(ctx context.Context, orgID, callID string) (*model.CallOutcome, error)
}

// Builder computes follow-up context. It never writes.
type Builder struct {
	store      Store
	milestones []model.Milestone
}

// NewBuilder creates a Builder using the default milestone script.
func NewBuilder(st Store) *Builder {
	return &Builder{store: st, milestones: registry.Milestones()}
}

// Build returns nil when no other completed call exists in the call's thread.
func (b *Builder) Build(ctx context.Context, orgID, callID string) (*Context, error) {
	call, err := b.store.GetCallSession(ctx, orgID, callID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrCallNotFound, "followup: call %s", callID)
	}
	if err != nil {
		return nil, err
	}

	// Ordered by end time, newest first.
	thread, err := b.store.ListThreadCalls(ctx, orgID, call.ThreadID)
	if err != nil {
		return nil, err
	}

	var previous *model.CallSession
	callIDs := make([]string, 0, len(thread))
	for i := range thread {
		c := thread[i]
		callIDs = append(callIDs, c.ID)
		if previous == nil && c.ID != call.ID && c.Status == model.CallStatusCompleted {
			previous = &c
		}
	}
	if previous == nil {
		return nil, nil
	}

	out := &Context{
		ThreadID:              call.ThreadID,
		PreviousCall:          PreviousCall{Call: *previous},
		UnresolvedObjections:  []model.ObjectionResponse{},
		SuggestedResumePoints: []ResumePoint{},
	}

	o, err := b.store.GetOutcome(ctx, orgID, previous.ID)
	switch {
	case err == nil:
		out.PreviousCall.Outcome = o
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	milestoneResponses, err := b.store.ListMilestoneResponses(ctx, orgID, callIDs)
	if err != nil {
		return nil, err
	}
	last := 0
	for _, r := range milestoneResponses {
		if r.Completed && r.MilestoneNumber > last {
			last = r.MilestoneNumber
		}
	}
	if last > 0 {
		out.LastCompletedMilestone = b.milestone(last)
	}

	objections, err := b.store.ListObjectionResponses(ctx, orgID, callIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range objections {
		if r.Unresolved() {
			out.UnresolvedObjections = append(out.UnresolvedObjections, r)
		}
	}

	out.SuggestedResumePoints = b.resumePoints(last, len(out.UnresolvedObjections))
	if len(out.SuggestedResumePoints) > 0 {
		p := out.SuggestedResumePoints[0]
		out.DefaultResumePoint = &p
	}
	return out, nil
}

func (b *Builder) resumePoints(last, unresolved int) []ResumePoint {
	points := []ResumePoint{}
	if last < registry.DecisionMilestone {
		next := b.milestone(last + 1)
		points = append(points, ResumePoint{
			Kind:        ResumeContinue,
			Milestone:   next.Number,
			Label:       fmt.Sprintf("Continue from %s", next.Name),
			Description: "Pick up where the last call left off.",
		})
	}
	if unresolved > 0 {
		points = append(points, ResumePoint{
			Kind:        ResumeAddressObjections,
			Label:       "Address open objections",
			Description: fmt.Sprintf("%d objection(s) from earlier calls are still unresolved.", unresolved),
		})
	}
	if last >= registry.OfferMilestone {
		points = append(points, ResumePoint{
			Kind:        ResumeJumpToDecision,
			Milestone:   registry.DecisionMilestone,
			Label:       "Jump to decision",
			Description: "The offer has been presented; go straight to the decision.",
		})
	}
	return points
}

func (b *Builder) milestone(n int) *model.Milestone {
	for _, m := range b.milestones {
		if m.Number == n {
			return &m
		}
	}
	return &model.Milestone{Number: n, Name: fmt.Sprintf("Milestone %d", n)}
}
