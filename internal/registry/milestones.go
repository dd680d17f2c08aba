package registry

import "github.com/sells-group/callflow/internal/model"

const (
	// OfferMilestone is the milestone advisory-mode calls skip.
	OfferMilestone = 5
	// DecisionMilestone is the final milestone of every call.
	DecisionMilestone = 7
)

var defaultMilestones = []model.Milestone{
	{Number: 1, Name: "Opening & Agenda", Description: "Set the frame and confirm the time box."},
	{Number: 2, Name: "Discovery", Description: "Understand the prospect's business and goals."},
	{Number: 3, Name: "Qualification", Description: "Confirm client base, capacity and fit."},
	{Number: 4, Name: "Pain & Impact", Description: "Quantify the gap between today and the goal."},
	{Number: OfferMilestone, Name: "Offer Presentation", Description: "Present the program and investment."},
	{Number: 6, Name: "Objection Handling", Description: "Work through concerns with the diagnostic flows."},
	{Number: DecisionMilestone, Name: "Decision Point", Description: "Ask for the decision and agree next steps."},
}

// Milestones returns the call script in order.
func Milestones() []model.Milestone {
	out := make([]model.Milestone, len(defaultMilestones))
	copy(out, defaultMilestones)
	return out
}

// MilestoneName returns the display name for n, or "" when unknown.
func MilestoneName(n int) string {
	for _, m := range defaultMilestones {
		if m.Number == n {
			return m.Name
		}
	}
	return ""
}
