package registry

import "github.com/sells-group/callflow/internal/model"

var allOutcomes = []model.ObjectionOutcome{
	model.ObjectionResolved,
	model.ObjectionDeferred,
	model.ObjectionDisqualified,
}

// builtinDefinitions is the shipped diagnostic catalog. Every type currently
// allows all three outcomes.
func builtinDefinitions() []model.ObjectionFlowDefinition {
	return []model.ObjectionFlowDefinition{
		{
			Type: model.ObjectionPrice,
			Name: "Price",
			Steps: []model.DiagnosticStep{
				{
					Number:      1,
					Question:    "When you say it's too expensive, what are you comparing it to?",
					Purpose:     "Find the reference point behind the price concern.",
					Kind:        model.StepText,
					Placeholder: "e.g. current vendor, hiring in-house, doing nothing",
				},
				{
					Number:   2,
					Question: "Is the concern the total investment or the monthly cash flow?",
					Purpose:  "Separate value objections from affordability objections.",
					Kind:     model.StepSingleSelect,
					Options:  []string{"Total investment", "Monthly cash flow", "Both", "Neither"},
				},
				{
					Number:      3,
					Question:    "What would this need to return for the price to feel easy?",
					Purpose:     "Anchor the conversation on ROI instead of cost.",
					Kind:        model.StepText,
					Placeholder: "Expected return or outcome",
				},
				{
					Number:   4,
					Question: "Restate the cost of inaction against the return they just described.",
					Purpose:  "Reframe price as the smaller of two numbers.",
					Kind:     model.StepStatement,
				},
			},
			AllowedOutcomes: allOutcomes,
		},
		{
			Type: model.ObjectionTiming,
			Name: "Timing",
			Steps: []model.DiagnosticStep{
				{
					Number:   1,
					Question: "What is happening between now and then that makes later better?",
					Purpose:  "Surface the real event driving the delay.",
					Kind:     model.StepText,
				},
				{
					Number:   2,
					Question: "What does waiting cost you each month?",
					Purpose:  "Quantify delay.",
					Kind:     model.StepText,
				},
				{
					Number:   3,
					Question: "Which of these is driving the timing?",
					Purpose:  "Classify the timing constraint.",
					Kind:     model.StepSingleSelect,
					Options:  []string{"Busy season", "Budget cycle", "Other initiative", "No real reason"},
				},
				{
					Number:   4,
					Question: "Summarize what starting now versus later means for their goals.",
					Purpose:  "Close the loop on urgency.",
					Kind:     model.StepStatement,
				},
			},
			AllowedOutcomes: allOutcomes,
		},
		{
			Type: model.ObjectionCapacityTime,
			Name: "Capacity / Time",
			Steps: []model.DiagnosticStep{
				{
					Number:   1,
					Question: "Where is your time going each week right now?",
					Purpose:  "Map current capacity.",
					Kind:     model.StepMultiSelect,
					Options:  []string{"Client delivery", "Admin", "Sales", "Team management", "Other"},
				},
				{
					Number:      2,
					Question:    "How many hours a week could you realistically protect for this?",
					Purpose:     "Establish a concrete commitment.",
					Kind:        model.StepText,
					Placeholder: "Hours per week",
				},
				{
					Number:   3,
					Question: "Explain how the program gives time back within the first month.",
					Purpose:  "Position the offer as a capacity solution.",
					Kind:     model.StepStatement,
				},
			},
			AllowedOutcomes: allOutcomes,
		},
		{
			Type: model.ObjectionNeedToThink,
			Name: "Need to Think",
			Steps: []model.DiagnosticStep{
				{
					Number:   1,
					Question: "What specifically do you want to think through?",
					Purpose:  "Turn a vague stall into a concrete concern.",
					Kind:     model.StepText,
				},
				{
					Number:   2,
					Question: "Which part feels least certain?",
					Purpose:  "Locate the hidden objection.",
					Kind:     model.StepSingleSelect,
					Options:  []string{"Price", "Fit", "Timing", "Trust", "Decision process"},
				},
				{
					Number:   3,
					Question: "What information would make this an easy decision?",
					Purpose:  "Identify what is missing.",
					Kind:     model.StepText,
				},
				{
					Number:   4,
					Question: "Agree on what happens next and by when.",
					Purpose:  "Avoid an open-ended follow-up.",
					Kind:     model.StepStatement,
				},
			},
			AllowedOutcomes: allOutcomes,
		},
		{
			Type: model.ObjectionPartnerTeam,
			Name: "Partner / Team",
			Steps: []model.DiagnosticStep{
				{
					Number:      1,
					Question:    "Who else is involved in this decision?",
					Purpose:     "Map the decision makers.",
					Kind:        model.StepText,
					Placeholder: "Names and roles",
				},
				{
					Number:   2,
					Question: "What will they care about most?",
					Purpose:  "Anticipate the partner's objection.",
					Kind:     model.StepMultiSelect,
					Options:  []string{"Cost", "Time commitment", "Results", "Risk"},
				},
				{
					Number:   3,
					Question: "If it were only up to you, would you move forward?",
					Purpose:  "Separate personal conviction from deferral.",
					Kind:     model.StepSingleSelect,
					Options:  []string{"Yes", "No", "Unsure"},
				},
				{
					Number:   4,
					Question: "Offer a joint call with the partner.",
					Purpose:  "Bring the decision makers into the room.",
					Kind:     model.StepStatement,
				},
			},
			AllowedOutcomes: allOutcomes,
		},
		{
			Type: model.ObjectionSkepticism,
			Name: "Skepticism",
			Steps: []model.DiagnosticStep{
				{
					Number:   1,
					Question: "What have you tried before that didn't work?",
					Purpose:  "Find the source of doubt.",
					Kind:     model.StepText,
				},
				{
					Number:   2,
					Question: "What would you need to see to believe this works for you?",
					Purpose:  "Define the proof threshold.",
					Kind:     model.StepText,
				},
				{
					Number:   3,
					Question: "Share a comparable client result.",
					Purpose:  "Provide social proof.",
					Kind:     model.StepStatement,
				},
			},
			AllowedOutcomes: allOutcomes,
		},
	}
}
