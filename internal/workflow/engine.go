package workflow

import (
	"context"
	"fmt"
	"time"

	pkgerrors "invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"

	"invoice-reconciliation-service/internal/matching"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/risk"
)

// Stage names recorded on the workflow state.
const (
	stageExtract = "extract"
	stageMatch   = "match"
	stageRisk    = "assess_risk"
	stageDecide  = "decide"
	stagePersist = "persist"
)

// InvoiceLoader retrieves extracted invoices. GetInvoice returns (nil, nil)
// when no invoice exists for the id.
type InvoiceLoader interface {
	GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error)
}

// ResultSink persists terminal workflow states. Persistence is best-effort:
// a sink failure is recorded on the state but never changes the decision.
type ResultSink interface {
	SaveResult(ctx context.Context, state *WorkflowState) error
}

// Config holds the workflow engine settings
type Config struct {
	// MinExtractionConfidence is the floor below which an invoice is treated
	// as incompletely extracted
	MinExtractionConfidence float64 `json:"min_extraction_confidence"`
}

// DefaultConfig returns the standard workflow configuration
func DefaultConfig() *Config {
	return &Config{MinExtractionConfidence: 0.50}
}

// Validate checks if the workflow configuration is valid
func (c *Config) Validate() error {
	if c.MinExtractionConfidence < 0.0 || c.MinExtractionConfidence > 1.0 {
		return fmt.Errorf("min extraction confidence must be between 0.0 and 1.0: %f", c.MinExtractionConfidence)
	}
	return nil
}

// Engine runs the reconciliation pipeline for one invoice at a time.
// Stateless apart from its collaborators; safe for concurrent use with one
// workflow state per call.
type Engine struct {
	loader  InvoiceLoader
	sink    ResultSink
	matcher *matching.Coordinator
	risks   *risk.Coordinator
	config  *Config
	logger  logger.Logger
}

// NewEngine creates a workflow engine. sink may be nil, disabling
// persistence.
func NewEngine(loader InvoiceLoader, sink ResultSink, matcher *matching.Coordinator, risks *risk.Coordinator, config *Config, log logger.Logger) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Engine{
		loader:  loader,
		sink:    sink,
		matcher: matcher,
		risks:   risks,
		config:  config,
		logger:  log.WithComponent("workflow_engine"),
	}
}

// Process runs the full pipeline for the invoice id and always returns a
// terminal workflow state. Pipeline problems are recorded on the state, not
// returned: a FAILED state with RequiresManualReview set is the error path.
func (e *Engine) Process(ctx context.Context, invoiceID string) *WorkflowState {
	state := NewWorkflowState(invoiceID)
	log := e.logger.WithFields(logger.Fields{"workflow_id": state.ID, "invoice_id": invoiceID})
	log.Info("Workflow started")

	invoice := e.runExtract(ctx, state, log)
	if invoice == nil {
		return e.handleError(ctx, state, log)
	}

	e.runMatch(ctx, state, invoice, log)
	e.runRisk(ctx, state, invoice, log)

	if state.Matching == nil && state.Risk == nil {
		startedAt := time.Now()
		state.recordStage(stageDecide, startedAt,
			pkgerrors.WorkflowError(pkgerrors.CodeDoubleFailure, stageDecide, nil))
		return e.handleError(ctx, state, log)
	}

	state.Status = StatusDeciding
	startedAt := time.Now()
	Decide(state)
	state.recordStage(stageDecide, startedAt, nil)

	state.complete(StatusCompleted)
	e.persist(ctx, state, log)

	log.WithFields(logger.Fields{
		"decision": state.Decision.String(),
		"status":   state.Status.String(),
	}).Info("Workflow complete")

	return state
}

// runExtract loads the invoice and verifies extraction produced enough
// structure to score. Returns nil on any fatal input problem, with the
// failure recorded on the state.
func (e *Engine) runExtract(ctx context.Context, state *WorkflowState, log logger.Logger) *models.Invoice {
	state.Status = StatusExtracting
	startedAt := time.Now()

	invoice, err := e.loader.GetInvoice(ctx, state.InvoiceID)
	if err != nil {
		wrapped := pkgerrors.WrapIfNeeded(err, pkgerrors.CategoryStorage, pkgerrors.CodeQueryFailed, "invoice lookup failed")
		state.recordStage(stageExtract, startedAt, wrapped)
		log.WithError(wrapped).Error("Invoice lookup failed")
		return nil
	}

	if invoice == nil {
		notFound := pkgerrors.ExtractionError(pkgerrors.CodeInvoiceNotFound, state.InvoiceID, nil)
		state.recordStage(stageExtract, startedAt, notFound)
		log.Warn("Invoice not found")
		return nil
	}

	if !invoice.IsExtractionComplete(e.config.MinExtractionConfidence) {
		incomplete := pkgerrors.ExtractionError(pkgerrors.CodeExtractionIncomplete, state.InvoiceID, nil).
			WithContext("extraction_confidence", invoice.ExtractionConfidence)
		state.recordStage(stageExtract, startedAt, incomplete)
		log.WithField("extraction_confidence", invoice.ExtractionConfidence).
			Warn("Extraction incomplete, routing to manual review")
		return nil
	}

	state.recordStage(stageExtract, startedAt, nil)
	return invoice
}

// runMatch executes the matching stage. Failure is stage-local: the workflow
// continues with risk assessment only.
func (e *Engine) runMatch(ctx context.Context, state *WorkflowState, invoice *models.Invoice, log logger.Logger) {
	state.Status = StatusMatching

	result, err := runStage(ctx, state, stageMatch, func(ctx context.Context) (*matching.MatchingResult, error) {
		return e.matcher.MatchInvoiceToPO(ctx, invoice)
	})
	if err != nil {
		log.WithError(err).Warn("Matching stage failed, continuing with risk assessment only")
		return
	}
	state.Matching = result
}

// runRisk executes the risk assessment stage. Failure is stage-local.
func (e *Engine) runRisk(ctx context.Context, state *WorkflowState, invoice *models.Invoice, log logger.Logger) {
	state.Status = StatusAssessingRisk

	vendorID := ""
	if state.Matching != nil {
		vendorID = state.Matching.VendorID
	}

	result, err := runStage(ctx, state, stageRisk, func(ctx context.Context) (*risk.RiskAssessment, error) {
		return e.risks.AssessRisk(ctx, invoice, vendorID)
	})
	if err != nil {
		log.WithError(err).Warn("Risk assessment stage failed, continuing with matching only")
		return
	}
	state.Risk = result
}

// runStage executes one stage with a panic guard and records the outcome on
// the state. A panicking stage is recorded as failed, never crashes the
// pipeline.
func runStage[T any](ctx context.Context, state *WorkflowState, stage string, fn func(context.Context) (T, error)) (result T, err error) {
	startedAt := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.WorkflowError(pkgerrors.CodeStagePanic, stage, fmt.Errorf("%v", r))
		}
		state.recordStage(stage, startedAt, err)
	}()

	result, err = fn(ctx)
	if err != nil {
		err = pkgerrors.WrapIfNeeded(err, pkgerrors.CategoryWorkflow, pkgerrors.CodeStageFailed,
			fmt.Sprintf("stage %s failed", stage))
	}
	return result, err
}

// handleError finishes the workflow on the failure path: FAILED status, a
// REQUIRES_REVIEW decision and mandatory manual review.
func (e *Engine) handleError(ctx context.Context, state *WorkflowState, log logger.Logger) *WorkflowState {
	state.Decision = DecisionRequiresReview
	state.RequiresManualReview = true
	if state.DecisionReason == "" {
		state.DecisionReason = lastStageError(state)
	}
	state.RecommendedActions = append(state.RecommendedActions, "route invoice to manual review queue")

	state.complete(StatusFailed)
	e.persist(ctx, state, log)

	log.WithField("reason", state.DecisionReason).Warn("Workflow failed, invoice routed to manual review")
	return state
}

// persist saves the terminal state through the sink. Best-effort: failures
// are recorded on the audit trail but the decision stands.
func (e *Engine) persist(ctx context.Context, state *WorkflowState, log logger.Logger) {
	if e.sink == nil {
		return
	}

	startedAt := time.Now()
	err := e.sink.SaveResult(ctx, state)
	if err != nil {
		err = pkgerrors.StorageError(pkgerrors.CodeSaveFailed, "workflow result", err)
		log.WithError(err).Warn("Failed to persist workflow result")
	}
	state.recordStage(stagePersist, startedAt, err)
}

// lastStageError returns the most recent stage failure message
func lastStageError(state *WorkflowState) string {
	for i := len(state.Stages) - 1; i >= 0; i-- {
		if !state.Stages[i].Succeeded {
			return state.Stages[i].Error
		}
	}
	return "pipeline failed before producing results"
}
