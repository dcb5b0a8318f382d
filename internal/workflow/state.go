// Package workflow drives one invoice through the reconciliation pipeline:
// extraction check, PO matching, risk assessment, decision and persistence.
//
// The workflow state is an append-only record: stage results accumulate and
// are never rewritten, so a completed state is a full audit trail of what
// happened to the invoice.
package workflow

import (
	"time"

	"github.com/google/uuid"

	"invoice-reconciliation-service/internal/matching"
	"invoice-reconciliation-service/internal/risk"
)

// Status is the lifecycle state of a workflow run
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusExtracting    Status = "EXTRACTING"
	StatusMatching      Status = "MATCHING"
	StatusAssessingRisk Status = "ASSESSING_RISK"
	StatusDeciding      Status = "DECIDING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether the workflow has finished
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Decision is the final disposition of a processed invoice
type Decision string

const (
	DecisionAutoApproved          Decision = "AUTO_APPROVED"
	DecisionRequiresReview        Decision = "REQUIRES_REVIEW"
	DecisionRequiresInvestigation Decision = "REQUIRES_INVESTIGATION"
	DecisionEscalated             Decision = "ESCALATED"
	DecisionRejected              Decision = "REJECTED"
)

// String returns the string representation of the decision
func (d Decision) String() string {
	return string(d)
}

// StageResult records the outcome of one pipeline stage
type StageResult struct {
	Stage     string        `json:"stage"`
	Succeeded bool          `json:"succeeded"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// WorkflowState is the accumulating record of one invoice's trip through the
// pipeline. Stage results are append-only.
type WorkflowState struct {
	ID        string `json:"id"`
	InvoiceID string `json:"invoice_id"`
	Status    Status `json:"status"`

	Stages []StageResult `json:"stages"`

	Matching *matching.MatchingResult `json:"matching,omitempty"`
	Risk     *risk.RiskAssessment     `json:"risk,omitempty"`

	Decision             Decision `json:"decision,omitempty"`
	DecisionReason       string   `json:"decision_reason,omitempty"`
	RecommendedActions   []string `json:"recommended_actions,omitempty"`
	RequiresManualReview bool     `json:"requires_manual_review"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// NewWorkflowState creates a pending workflow state for the invoice
func NewWorkflowState(invoiceID string) *WorkflowState {
	return &WorkflowState{
		ID:        uuid.New().String(),
		InvoiceID: invoiceID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// recordStage appends one stage result to the audit trail
func (s *WorkflowState) recordStage(stage string, startedAt time.Time, err error) {
	result := StageResult{
		Stage:     stage,
		Succeeded: err == nil,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
	}
	if err != nil {
		result.Error = err.Error()
	}
	s.Stages = append(s.Stages, result)
}

// StageFailed reports whether the named stage recorded a failure
func (s *WorkflowState) StageFailed(stage string) bool {
	for _, r := range s.Stages {
		if r.Stage == stage && !r.Succeeded {
			return true
		}
	}
	return false
}

// complete marks the workflow terminal with the given status
func (s *WorkflowState) complete(status Status) {
	s.Status = status
	s.CompletedAt = time.Now().UTC()
}
