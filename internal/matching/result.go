// Package matching orchestrates invoice-to-purchase-order matching: candidate
// retrieval, scoring, optional escalation to an external reasoning
// collaborator, and discrepancy classification.
package matching

import (
	"fmt"
	"time"

	"invoice-reconciliation-service/internal/discrepancy"
	"invoice-reconciliation-service/internal/scoring"
)

// MatchingResult is the outcome of matching one invoice against the candidate
// purchase orders. A result with Matched false is a valid outcome, not an
// error; only infrastructure failures surface as errors.
type MatchingResult struct {
	InvoiceID string `json:"invoice_id"`
	Matched   bool   `json:"matched"`

	// MatchType is the final classification, after any reasoner adjustment.
	// AlgorithmicType preserves the pre-adjustment classification.
	MatchType       scoring.MatchType `json:"match_type"`
	AlgorithmicType scoring.MatchType `json:"algorithmic_type"`

	PONumber   string `json:"po_number,omitempty"`
	VendorID   string `json:"vendor_id,omitempty"`
	VendorName string `json:"vendor_name,omitempty"`

	Scores          scoring.ComponentScores   `json:"scores"`
	LineItemMatches []scoring.LineItemMatch   `json:"line_item_matches,omitempty"`
	Discrepancies   []discrepancy.Discrepancy `json:"discrepancies,omitempty"`

	RequiresApproval bool   `json:"requires_approval"`
	Reason           string `json:"reason,omitempty"`

	ReasonerConsulted bool    `json:"reasoner_consulted"`
	ReasonerVerdict   Verdict `json:"reasoner_verdict,omitempty"`

	CandidateCount int       `json:"candidate_count"`
	MatchedAt      time.Time `json:"matched_at"`
}

// HasCriticalDiscrepancy reports whether any critical discrepancy was found
func (r *MatchingResult) HasCriticalDiscrepancy() bool {
	return discrepancy.HasSeverity(r.Discrepancies, discrepancy.SeverityCritical)
}

// String returns a short human-readable summary of the result
func (r *MatchingResult) String() string {
	if !r.Matched {
		return fmt.Sprintf("MatchingResult{Invoice: %s, Matched: false, Reason: %s}", r.InvoiceID, r.Reason)
	}
	return fmt.Sprintf("MatchingResult{Invoice: %s, PO: %s, Type: %s, Score: %.3f, Discrepancies: %d}",
		r.InvoiceID, r.PONumber, r.MatchType, r.Scores.Overall, len(r.Discrepancies))
}
