package workflow

import (
	"fmt"

	"invoice-reconciliation-service/internal/risk"
	"invoice-reconciliation-service/internal/scoring"
)

// Decision thresholds. autoApproveFloor is deliberately stricter than the
// matching approval floor: auto approval pays invoices without a human ever
// looking at them. reviewFloor is the minimum confidence for any automated
// disposition at all.
const (
	autoApproveFloor = 0.95
	reviewFloor      = 0.70
)

// Decide runs the decision cascade over the accumulated matching and risk
// results and writes the decision onto the state. Risk findings are checked
// first and dominate: a confident duplicate is rejected no matter how well
// it matched its purchase order.
func Decide(state *WorkflowState) {
	switch {
	case state.Risk != nil && state.Risk.IsDuplicate():
		reject(state, fmt.Sprintf("duplicate of invoice %s (confidence %.2f)",
			state.Risk.Duplicate.DuplicateNumber, state.Risk.Duplicate.Confidence),
			"do not pay; verify against the original invoice")

	case state.Risk != nil && (state.Risk.Level == risk.LevelCritical || state.Risk.CountFlags(risk.FlagCritical) >= 2):
		reject(state, fmt.Sprintf("critical risk (score %.2f, %d critical flags)",
			state.Risk.OverallScore, state.Risk.CountFlags(risk.FlagCritical)),
			"do not pay; open a fraud investigation")

	case state.Risk != nil && state.Risk.CountFlags(risk.FlagCritical) == 1:
		state.Decision = DecisionEscalated
		state.DecisionReason = fmt.Sprintf("one critical risk flag: %s", criticalFlagEvidence(state.Risk))
		state.RequiresManualReview = true
		state.RecommendedActions = append(state.RecommendedActions,
			"escalate to the accounts payable supervisor",
			"hold payment until the flag is resolved")

	case state.Risk != nil && (state.Risk.Level == risk.LevelHigh || state.Risk.CountFlags(risk.FlagHigh) >= 2):
		state.Decision = DecisionRequiresInvestigation
		state.DecisionReason = fmt.Sprintf("high risk (score %.2f, level %s)",
			state.Risk.OverallScore, state.Risk.Level)
		state.RequiresManualReview = true
		state.RecommendedActions = append(state.RecommendedActions,
			"investigate the flagged risk signals before payment")

	case state.Matching != nil && state.Matching.Matched:
		decideOnMatch(state)

	default:
		review(state, "no purchase order match found", "match the invoice to a purchase order manually")
	}
}

// decideOnMatch handles the path where matching produced a usable result and
// risk raised nothing that dominates.
func decideOnMatch(state *WorkflowState) {
	m := state.Matching

	switch {
	case m.MatchType == scoring.MatchNone || m.Scores.Overall < reviewFloor:
		review(state, fmt.Sprintf("match confidence too low (score %.2f)", m.Scores.Overall),
			"verify the purchase order assignment manually")

	case m.HasCriticalDiscrepancy():
		review(state, "critical discrepancy between invoice and purchase order",
			"resolve the discrepancy with the vendor before payment")

	case state.Risk == nil:
		// The risk stage failed. A good match without any risk screening is
		// not eligible for automatic payment.
		review(state, fmt.Sprintf("match score %.2f but no risk assessment available", m.Scores.Overall),
			"rerun risk screening before approving")

	case state.Risk.Level == risk.LevelMedium:
		review(state, fmt.Sprintf("medium risk (score %.2f) on an otherwise good match", state.Risk.OverallScore),
			"review the risk flags before approving")

	case m.Scores.Overall >= autoApproveFloor && state.Risk.Level == risk.LevelLow:
		state.Decision = DecisionAutoApproved
		state.DecisionReason = fmt.Sprintf("matched %s with score %.2f and low risk", m.PONumber, m.Scores.Overall)
		state.RecommendedActions = append(state.RecommendedActions, "release for payment")

	default:
		review(state, fmt.Sprintf("match score %.2f below the auto-approval floor %.2f", m.Scores.Overall, autoApproveFloor),
			"approve or correct the match manually")
	}

	if len(m.Discrepancies) > 0 && state.Decision != DecisionAutoApproved {
		state.RecommendedActions = append(state.RecommendedActions,
			fmt.Sprintf("review %d recorded discrepancies", len(m.Discrepancies)))
	}
}

func reject(state *WorkflowState, reason, action string) {
	state.Decision = DecisionRejected
	state.DecisionReason = reason
	state.RequiresManualReview = true
	state.RecommendedActions = append(state.RecommendedActions, action)
}

func review(state *WorkflowState, reason, action string) {
	state.Decision = DecisionRequiresReview
	state.DecisionReason = reason
	state.RequiresManualReview = true
	state.RecommendedActions = append(state.RecommendedActions, action)
}

// criticalFlagEvidence returns the evidence string of the first critical flag
func criticalFlagEvidence(assessment *risk.RiskAssessment) string {
	for _, f := range assessment.Flags {
		if f.Severity == risk.FlagCritical {
			return f.Evidence
		}
	}
	return "unspecified"
}
