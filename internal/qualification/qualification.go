// Package qualification decides whether a prospect is large enough for the
// full sales path or must be handled in advisory mode.
package qualification

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/callflow/internal/model"
	"github.com/sells-group/callflow/internal/registry"
	"github.com/sells-group/callflow/internal/store"
)

// Threshold is the minimum client count for a qualified prospect.
const Threshold = 500

// ErrNotFound is returned when the referenced prospect or call does not exist.
var ErrNotFound = eris.New("qualification: record not found")

// Evaluate derives the qualification status for a client count. It has no
// side effects and always returns an equal value for the same input.
func Evaluate(clientCount int) model.QualificationStatus {
	if clientCount < Threshold {
		return model.QualificationStatus{
			Qualified:         false,
			AdvisoryMode:      true,
			ClientCount:       clientCount,
			Threshold:         Threshold,
			SkippedMilestones: []int{registry.OfferMilestone},
			AllowedOutcomes:   []model.OutcomeType{model.OutcomeFollowUpScheduled, model.OutcomeDisqualified},
			Reasons: []string{
				fmt.Sprintf("Client count %d is below the %d client threshold", clientCount, Threshold),
				fmt.Sprintf("Milestone %d (%s) is skipped in advisory mode", registry.OfferMilestone, registry.MilestoneName(registry.OfferMilestone)),
			},
		}
	}
	return model.QualificationStatus{
		Qualified:         true,
		AdvisoryMode:      false,
		ClientCount:       clientCount,
		Threshold:         Threshold,
		SkippedMilestones: []int{},
		AllowedOutcomes:   slices.Clone(model.OutcomeTypes),
		Reasons:           []string{fmt.Sprintf("Client count %d meets the %d client threshold", clientCount, Threshold)},
	}
}

// Availability reports whether a milestone can be run for a status.
type Availability struct {
	Milestone   model.Milestone `json:"milestone"`
	IsAvailable bool            `json:"is_available"`
	Reason      string          `json:"reason,omitempty"`
}

// MilestoneAvailability marks each milestone available unless status skips it.
func MilestoneAvailability(status model.QualificationStatus, milestones []model.Milestone) []Availability {
	out := make([]Availability, 0, len(milestones))
	for _, m := range milestones {
		a := Availability{Milestone: m, IsAvailable: true}
		if slices.Contains(status.SkippedMilestones, m.Number) {
			a.IsAvailable = false
			a.Reason = fmt.Sprintf("Skipped in advisory mode: prospect has fewer than %d clients", status.Threshold)
		}
		out = append(out, a)
	}
	return out
}

// IsOutcomeAllowed reports whether outcome is in the status's allowed set.
func IsOutcomeAllowed(status model.QualificationStatus, outcome model.OutcomeType) (bool, string) {
	if slices.Contains(status.AllowedOutcomes, outcome) {
		return true, ""
	}
	if status.AdvisoryMode {
		return false, fmt.Sprintf("Outcome %q is not available in advisory mode", outcome)
	}
	return false, fmt.Sprintf("Outcome %q is not allowed", outcome)
}

// CanProceedToOffer reports whether the call may reach the offer milestone.
func CanProceedToOffer(status model.QualificationStatus) (bool, string) {
	if status.AdvisoryMode {
		return false, fmt.Sprintf("Prospect has %d clients; %d are required before presenting the offer", status.ClientCount, status.Threshold)
	}
	return true, ""
}

// Reader is the read subset of store.Store the service needs.
type Reader interface {
	GetProspect(ctx context.Context, orgID, prospectID string) (*model.Prospect, error)
	GetCallSession(ctx context.Context, orgID, callID string) (*model.CallSession, error)
}

// Service resolves qualification for stored prospects and calls.
type Service struct {
	store Reader
}

// NewService creates a Service backed by st.
func NewService(st Reader) *Service {
	return &Service{store: st}
}

// StatusForProspect loads the prospect and evaluates it.
func (s *Service) StatusForProspect(ctx context.Context, orgID, prospectID string) (model.QualificationStatus, error) {
	p, err := s.store.GetProspect(ctx, orgID, prospectID)
	if err != nil {
		return model.QualificationStatus{}, mapNotFound(err, "prospect", prospectID)
	}
	return Evaluate(p.ClientCount), nil
}

// StatusForCall evaluates the prospect attached to a call.
func (s *Service) StatusForCall(ctx context.Context, orgID, callID string) (model.QualificationStatus, error) {
	c, err := s.store.GetCallSession(ctx, orgID, callID)
	if err != nil {
		return model.QualificationStatus{}, mapNotFound(err, "call", callID)
	}
	return Evaluate(c.ClientCount), nil
}

func mapNotFound(err error, entity, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return eris.Wrapf(err, "qualification: load %s %s", entity, id)
}
