package matching

import (
	"context"

	"invoice-reconciliation-service/internal/discrepancy"
	"invoice-reconciliation-service/internal/scoring"
)

// Verdict is the judgement returned by the reasoning collaborator
type Verdict string

const (
	// VerdictApprove promotes the match one confidence level
	VerdictApprove Verdict = "APPROVE"

	// VerdictReviewRequired demotes the match one confidence level
	VerdictReviewRequired Verdict = "REVIEW_REQUIRED"
)

// IsValid checks if the verdict is one the pipeline understands
func (v Verdict) IsValid() bool {
	return v == VerdictApprove || v == VerdictReviewRequired
}

// ReasonerRequest carries the ambiguous match to the reasoning collaborator
type ReasonerRequest struct {
	InvoiceID     string                    `json:"invoice_id"`
	PONumber      string                    `json:"po_number"`
	VendorName    string                    `json:"vendor_name"`
	MatchType     scoring.MatchType         `json:"match_type"`
	Scores        scoring.ComponentScores   `json:"scores"`
	Discrepancies []discrepancy.Discrepancy `json:"discrepancies,omitempty"`
}

// Reasoner is the external collaborator consulted for ambiguous matches.
// Implementations must honor the context deadline; the coordinator treats
// any error, including timeout, as "no opinion" and keeps the algorithmic
// match type. When no collaborator is configured the coordinator takes a
// nil Reasoner and every match keeps its algorithmic classification.
type Reasoner interface {
	Decide(ctx context.Context, req *ReasonerRequest) (Verdict, error)
}
