package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"

	"invoice-reconciliation-service/internal/discrepancy"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/scoring"
)

// VendorSearcher resolves fuzzy vendor names against the vendor master,
// most similar first.
type VendorSearcher interface {
	SearchVendors(ctx context.Context, name string, limit int) ([]*models.Vendor, error)
}

// POFinder retrieves a vendor's purchase orders with totals inside the given
// amount window. Implementations only return POs in a matchable status.
type POFinder interface {
	FindOpenPOs(ctx context.Context, vendorID string, minAmount, maxAmount decimal.Decimal) ([]*models.PurchaseOrder, error)
}

// Config holds the candidate retrieval and approval thresholds for matching
type Config struct {
	// VendorCandidateLimit caps how many fuzzy vendor matches are considered
	VendorCandidateLimit int `json:"vendor_candidate_limit"`

	// AmountWindowPct is the fractional window around the invoice total used
	// to filter candidate POs
	AmountWindowPct float64 `json:"amount_window_pct"`

	// ApprovalScoreFloor is the overall score below which a match requires
	// approval even without critical discrepancies
	ApprovalScoreFloor float64 `json:"approval_score_floor"`

	// MajorDiscrepancyLimit is how many major discrepancies a match tolerates
	// before requiring approval
	MajorDiscrepancyLimit int `json:"major_discrepancy_limit"`

	// ReasonerTimeout bounds each call to the reasoning collaborator
	ReasonerTimeout time.Duration `json:"reasoner_timeout"`

	// Scoring configures the underlying score engine
	Scoring *scoring.Config `json:"scoring"`
}

// DefaultConfig returns a matching configuration with the standard thresholds
func DefaultConfig() *Config {
	return &Config{
		VendorCandidateLimit:  3,
		AmountWindowPct:       0.20,
		ApprovalScoreFloor:    0.85,
		MajorDiscrepancyLimit: 1,
		ReasonerTimeout:       10 * time.Second,
		Scoring:               scoring.DefaultConfig(),
	}
}

// Validate checks if the matching configuration is valid
func (c *Config) Validate() error {
	if c.VendorCandidateLimit <= 0 {
		return fmt.Errorf("vendor candidate limit must be positive: %d", c.VendorCandidateLimit)
	}

	if c.AmountWindowPct <= 0.0 || c.AmountWindowPct > 1.0 {
		return fmt.Errorf("amount window must be in (0.0, 1.0]: %f", c.AmountWindowPct)
	}

	if c.ApprovalScoreFloor < 0.0 || c.ApprovalScoreFloor > 1.0 {
		return fmt.Errorf("approval score floor must be between 0.0 and 1.0: %f", c.ApprovalScoreFloor)
	}

	if c.ReasonerTimeout <= 0 {
		return fmt.Errorf("reasoner timeout must be positive: %s", c.ReasonerTimeout)
	}

	if c.Scoring != nil {
		if err := c.Scoring.Validate(); err != nil {
			return fmt.Errorf("invalid scoring config: %w", err)
		}
	}

	return nil
}

// Coordinator matches extracted invoices against candidate purchase orders.
// Stateless apart from its collaborators; safe for concurrent use.
type Coordinator struct {
	vendors  VendorSearcher
	pos      POFinder
	reasoner Reasoner
	engine   *scoring.Engine
	config   *Config
	logger   logger.Logger
}

// NewCoordinator creates a matching coordinator. reasoner may be nil, in
// which case ambiguous matches keep their algorithmic classification.
func NewCoordinator(vendors VendorSearcher, pos POFinder, reasoner Reasoner, config *Config, log logger.Logger) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Coordinator{
		vendors:  vendors,
		pos:      pos,
		reasoner: reasoner,
		engine:   scoring.NewEngine(config.Scoring),
		config:   config,
		logger:   log.WithComponent("matching_coordinator"),
	}
}

// candidate pairs a purchase order with the vendor it was retrieved for
type candidate struct {
	vendor *models.Vendor
	po     *models.PurchaseOrder
}

// MatchInvoiceToPO finds the best purchase order for the invoice. Candidate
// POs are gathered from the most similar vendors, filtered to totals within
// the amount window, scored, and the best overall score wins. Ambiguous
// results (PARTIAL or FUZZY) are escalated to the reasoning collaborator,
// whose verdict shifts the match type one level but never the score.
func (c *Coordinator) MatchInvoiceToPO(ctx context.Context, invoice *models.Invoice) (*MatchingResult, error) {
	start := time.Now()

	candidates, err := c.gatherCandidates(ctx, invoice)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		c.logger.WithFields(logger.Fields{
			"invoice_id":  invoice.ID,
			"vendor_name": invoice.VendorName,
		}).Warn("No candidate purchase orders found")

		return &MatchingResult{
			InvoiceID:        invoice.ID,
			Matched:          false,
			MatchType:        scoring.MatchNone,
			AlgorithmicType:  scoring.MatchNone,
			RequiresApproval: true,
			Reason:           "no candidate purchase orders found",
			MatchedAt:        time.Now().UTC(),
		}, nil
	}

	best, bestScores, bestMatches := c.scoreCandidates(invoice, candidates)

	algorithmicType := c.engine.MatchTypeForScore(bestScores.Overall)
	result := &MatchingResult{
		InvoiceID:       invoice.ID,
		Matched:         algorithmicType != scoring.MatchNone,
		MatchType:       algorithmicType,
		AlgorithmicType: algorithmicType,
		PONumber:        best.po.Number,
		VendorID:        best.vendor.ID,
		VendorName:      best.vendor.Name,
		Scores:          bestScores,
		LineItemMatches: bestMatches,
		CandidateCount:  len(candidates),
		MatchedAt:       time.Now().UTC(),
	}

	if !result.Matched {
		result.Reason = fmt.Sprintf("best candidate %s scored %.3f, below the partial threshold", best.po.Number, bestScores.Overall)
	}

	result.Discrepancies = discrepancy.Classify(invoice, best.po, bestScores, bestMatches)

	c.maybeConsultReasoner(ctx, invoice, result)
	c.applyApprovalPolicy(result)

	c.logger.WithFields(logger.Fields{
		"invoice_id":  invoice.ID,
		"po_number":   result.PONumber,
		"match_type":  result.MatchType.String(),
		"score":       fmt.Sprintf("%.3f", result.Scores.Overall),
		"candidates":  result.CandidateCount,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Matching complete")

	return result, nil
}

// gatherCandidates retrieves the candidate (vendor, PO) pairs for the invoice
func (c *Coordinator) gatherCandidates(ctx context.Context, invoice *models.Invoice) ([]candidate, error) {
	vendors, err := c.vendors.SearchVendors(ctx, invoice.VendorName, c.config.VendorCandidateLimit)
	if err != nil {
		return nil, pkgerrors.MatchingError(pkgerrors.CodeCandidateLookup, "vendor search", err).
			WithContext("invoice_id", invoice.ID).
			WithContext("vendor_name", invoice.VendorName)
	}

	window := decimal.NewFromFloat(c.config.AmountWindowPct)
	minAmount := invoice.TotalAmount.Mul(decimal.NewFromInt(1).Sub(window))
	maxAmount := invoice.TotalAmount.Mul(decimal.NewFromInt(1).Add(window))

	var candidates []candidate
	seen := make(map[string]bool)
	for _, vendor := range vendors {
		pos, err := c.pos.FindOpenPOs(ctx, vendor.ID, minAmount, maxAmount)
		if err != nil {
			return nil, pkgerrors.MatchingError(pkgerrors.CodeCandidateLookup, "purchase order lookup", err).
				WithContext("invoice_id", invoice.ID).
				WithContext("vendor_id", vendor.ID)
		}

		for _, po := range pos {
			if seen[po.Number] || !po.Status.IsMatchable() {
				continue
			}
			seen[po.Number] = true
			candidates = append(candidates, candidate{vendor: vendor, po: po})
		}
	}

	return candidates, nil
}

// scoreCandidates scores every candidate and returns the best by overall score
func (c *Coordinator) scoreCandidates(invoice *models.Invoice, candidates []candidate) (candidate, scoring.ComponentScores, []scoring.LineItemMatch) {
	best := candidates[0]
	bestScores, bestMatches := c.engine.Score(invoice, best.po, best.vendor.Name)

	for _, cand := range candidates[1:] {
		scores, matches := c.engine.Score(invoice, cand.po, cand.vendor.Name)
		if scores.Overall > bestScores.Overall {
			best = cand
			bestScores = scores
			bestMatches = matches
		}
	}

	return best, bestScores, bestMatches
}

// maybeConsultReasoner escalates ambiguous matches to the reasoning
// collaborator. Collaborator failure is not a pipeline failure: the
// algorithmic classification stands.
func (c *Coordinator) maybeConsultReasoner(ctx context.Context, invoice *models.Invoice, result *MatchingResult) {
	if c.reasoner == nil {
		return
	}
	if result.AlgorithmicType != scoring.MatchPartial && result.AlgorithmicType != scoring.MatchFuzzy {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.ReasonerTimeout)
	defer cancel()

	verdict, err := c.reasoner.Decide(reqCtx, &ReasonerRequest{
		InvoiceID:     invoice.ID,
		PONumber:      result.PONumber,
		VendorName:    invoice.VendorName,
		MatchType:     result.AlgorithmicType,
		Scores:        result.Scores,
		Discrepancies: result.Discrepancies,
	})

	result.ReasonerConsulted = true
	if err != nil {
		code := pkgerrors.CodeReasonerUnavailable
		if reqCtx.Err() == context.DeadlineExceeded {
			code = pkgerrors.CodeReasonerTimeout
		}
		c.logger.WithError(pkgerrors.CollaboratorError(code, err)).
			WithField("invoice_id", invoice.ID).
			Warn("Reasoning collaborator failed, keeping algorithmic match type")
		return
	}

	result.ReasonerVerdict = verdict
	switch verdict {
	case VerdictApprove:
		result.MatchType = result.MatchType.Promote()
	case VerdictReviewRequired:
		result.MatchType = result.MatchType.Demote()
		result.Matched = result.MatchType != scoring.MatchNone
	default:
		c.logger.WithFields(logger.Fields{
			"invoice_id": invoice.ID,
			"verdict":    string(verdict),
		}).Warn("Unrecognized reasoner verdict, keeping algorithmic match type")
	}
}

// applyApprovalPolicy decides whether the match needs human approval
func (c *Coordinator) applyApprovalPolicy(result *MatchingResult) {
	majorCount := discrepancy.CountBySeverity(result.Discrepancies, discrepancy.SeverityMajor)

	switch {
	case !result.Matched:
		result.RequiresApproval = true
	case result.HasCriticalDiscrepancy():
		result.RequiresApproval = true
		result.Reason = "critical discrepancy between invoice and purchase order"
	case result.Scores.Overall < c.config.ApprovalScoreFloor:
		result.RequiresApproval = true
		result.Reason = fmt.Sprintf("overall score %.3f below approval floor %.2f", result.Scores.Overall, c.config.ApprovalScoreFloor)
	case majorCount > c.config.MajorDiscrepancyLimit:
		result.RequiresApproval = true
		result.Reason = fmt.Sprintf("%d major discrepancies exceed the limit of %d", majorCount, c.config.MajorDiscrepancyLimit)
	}
}
