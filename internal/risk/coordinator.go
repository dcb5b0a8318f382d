package risk

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	pkgerrors "invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"

	"invoice-reconciliation-service/internal/models"
)

// Coordinator fans out to the risk detectors and aggregates their findings
// into a single RiskAssessment.
//
// Detector failures degrade the assessment instead of aborting it: a failed
// detector contributes a zero component, the failure is recorded on the
// assessment, and the remaining detectors still count. AssessRisk only
// returns an error when the context is cancelled before aggregation.
type Coordinator struct {
	duplicates *DuplicateDetector
	anomalies  *PriceAnomalyDetector
	vendors    *VendorRiskAnalyzer
	config     *Config
	logger     logger.Logger
}

// NewCoordinator creates a risk coordinator over the given history and
// profile stores.
func NewCoordinator(history InvoiceHistory, profiles ProfileStore, config *Config, log logger.Logger) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Coordinator{
		duplicates: NewDuplicateDetector(history, config, log),
		anomalies:  NewPriceAnomalyDetector(history, config, log),
		vendors:    NewVendorRiskAnalyzer(profiles, config, log),
		config:     config,
		logger:     log.WithComponent("risk_coordinator"),
	}
}

// AssessRisk runs all detectors for the invoice and aggregates the weighted
// component scores, risk flags and recommended action. vendorID may be empty
// when matching did not resolve a vendor; the vendor component then uses the
// unknown-vendor score.
func (c *Coordinator) AssessRisk(ctx context.Context, invoice *models.Invoice, vendorID string) (*RiskAssessment, error) {
	start := time.Now()

	var (
		dupInfo     *DuplicateInfo
		anomalyInfo *PriceAnomalyInfo
		vendorInfo  *VendorRiskInfo
		dupErr      error
		anomalyErr  error
		vendorErr   error
	)

	// Detectors are independent; each records its own failure instead of
	// cancelling the group. errgroup does not recover panics, and a panic on
	// a detector goroutine would kill the process, so every closure carries
	// its own guard.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer recoverDetector("duplicate_detector", &dupErr)
		dupInfo, dupErr = c.duplicates.Detect(gctx, invoice)
		return nil
	})
	g.Go(func() error {
		defer recoverDetector("price_anomaly_detector", &anomalyErr)
		anomalyInfo, anomalyErr = c.anomalies.Detect(gctx, invoice)
		return nil
	})
	g.Go(func() error {
		defer recoverDetector("vendor_risk_analyzer", &vendorErr)
		if vendorID == "" {
			vendorInfo = &VendorRiskInfo{
				Score:     c.config.UnknownVendorRisk,
				Synthetic: true,
				Reason:    "no vendor resolved during matching",
			}
			return nil
		}
		vendorInfo, vendorErr = c.vendors.Analyze(gctx, vendorID)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assessment := &RiskAssessment{
		InvoiceID:    invoice.ID,
		Duplicate:    dupInfo,
		PriceAnomaly: anomalyInfo,
		VendorRisk:   vendorInfo,
		AssessedAt:   time.Now().UTC(),
	}

	c.recordFailure(assessment, "duplicate_detector", dupErr)
	c.recordFailure(assessment, "price_anomaly_detector", anomalyErr)
	c.recordFailure(assessment, "vendor_risk_analyzer", vendorErr)

	assessment.Components = ComponentScores{
		Duplicate: duplicateComponent(dupInfo),
		Vendor:    vendorComponent(vendorInfo),
		Price:     priceComponent(anomalyInfo),
		Amount:    c.anomalies.AmountRisk(invoice),
	}

	c.collectFlags(assessment, invoice)
	assessment.Components.Pattern = c.patternScore(assessment, invoice)
	if assessment.Components.Pattern > 0 {
		assessment.Flags = append(assessment.Flags, RiskFlag{
			Type:       FlagPattern,
			Severity:   FlagMedium,
			Confidence: assessment.Components.Pattern,
			Evidence:   "multiple independent risk signals on one invoice",
		})
	}

	w := c.config.Weights
	assessment.OverallScore = clampRisk(w.Duplicate*assessment.Components.Duplicate +
		w.Vendor*assessment.Components.Vendor +
		w.Price*assessment.Components.Price +
		w.Amount*assessment.Components.Amount +
		w.Pattern*assessment.Components.Pattern)

	assessment.Level = c.config.LevelForScore(assessment.OverallScore)
	assessment.RecommendedAction = c.recommendAction(assessment)
	assessment.RequiresManualReview = assessment.RecommendedAction.RequiresManualReview()

	c.logger.WithFields(logger.Fields{
		"invoice_id":  invoice.ID,
		"score":       fmt.Sprintf("%.3f", assessment.OverallScore),
		"level":       assessment.Level.String(),
		"action":      string(assessment.RecommendedAction),
		"flags":       len(assessment.Flags),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Risk assessment complete")

	return assessment, nil
}

// recoverDetector converts a detector panic into a recorded detector error
func recoverDetector(detector string, errp *error) {
	if r := recover(); r != nil {
		*errp = pkgerrors.RiskError(pkgerrors.CodeDetectorFailed, detector,
			fmt.Errorf("panic: %v", r))
	}
}

// recordFailure degrades the assessment for one failed detector
func (c *Coordinator) recordFailure(assessment *RiskAssessment, detector string, err error) {
	if err == nil {
		return
	}

	assessment.DegradedDetectors = append(assessment.DegradedDetectors, detector)
	c.logger.WithError(err).WithFields(logger.Fields{
		"invoice_id": assessment.InvoiceID,
		"detector":   detector,
	}).Warn("Risk detector failed, continuing with degraded coverage")
}

func duplicateComponent(info *DuplicateInfo) float64 {
	if info == nil || !info.IsDuplicate {
		return 0.0
	}
	return info.Confidence
}

func vendorComponent(info *VendorRiskInfo) float64 {
	if info == nil {
		return 0.0
	}
	return info.Score
}

func priceComponent(info *PriceAnomalyInfo) float64 {
	if info == nil || !info.IsAnomaly {
		return 0.0
	}
	return info.RiskScore
}

// collectFlags turns the component findings into typed flags
func (c *Coordinator) collectFlags(assessment *RiskAssessment, invoice *models.Invoice) {
	if dup := assessment.Duplicate; dup != nil && dup.IsDuplicate {
		severity := FlagHigh
		if dup.Confidence >= 0.9 {
			severity = FlagCritical
		}
		assessment.Flags = append(assessment.Flags, RiskFlag{
			Type:       FlagDuplicate,
			Severity:   severity,
			Confidence: dup.Confidence,
			Evidence:   dup.Reason,
		})
	}

	if v := assessment.VendorRisk; v != nil && v.Score >= 0.5 {
		severity := FlagMedium
		if v.Score >= 0.8 {
			severity = FlagHigh
		}
		evidence := v.Reason
		if evidence == "" {
			evidence = fmt.Sprintf("vendor trust score %.2f", v.Score)
		}
		assessment.Flags = append(assessment.Flags, RiskFlag{
			Type:       FlagVendor,
			Severity:   severity,
			Confidence: v.Score,
			Evidence:   evidence,
		})
	}

	if p := assessment.PriceAnomaly; p != nil && p.IsAnomaly {
		severity := FlagMedium
		switch {
		case p.RiskScore >= 1.0:
			severity = FlagCritical
		case p.RiskScore >= 0.7:
			severity = FlagHigh
		}
		assessment.Flags = append(assessment.Flags, RiskFlag{
			Type:       FlagPriceAnomaly,
			Severity:   severity,
			Confidence: p.RiskScore,
			Evidence: fmt.Sprintf("amount deviates %.0f%% from vendor mean (z=%.1f over %d samples)",
				p.DeviationPct*100, p.ZScore, p.SampleCount),
		})
	}

	if assessment.Components.Amount > 0 {
		assessment.Flags = append(assessment.Flags, RiskFlag{
			Type:       FlagAmount,
			Severity:   FlagHigh,
			Confidence: assessment.Components.Amount,
			Evidence: fmt.Sprintf("amount %s exceeds twice the typical ceiling of %.0f",
				invoice.TotalAmount.String(), c.config.TypicalAmountCeiling),
		})
	}
}

// patternScore is a heuristic over the flags collected so far plus the
// round-amount signal. It rewards the co-occurrence of independent signals.
func (c *Coordinator) patternScore(assessment *RiskAssessment, invoice *models.Invoice) float64 {
	critical := assessment.CountFlags(FlagCritical)
	high := assessment.CountFlags(FlagHigh)

	switch {
	case critical >= 2:
		return 1.0
	case critical == 1 && high >= 1:
		return 0.80
	case high >= 2:
		return 0.60
	case len(assessment.Flags) >= 3:
		return 0.40
	case isSuspiciouslyRound(invoice.TotalAmount.InexactFloat64()):
		return 0.20
	default:
		return 0.0
	}
}

// isSuspiciouslyRound reports whether the amount is a conspicuously round
// figure for its magnitude. Fabricated invoices skew toward round totals.
func isSuspiciouslyRound(amount float64) bool {
	divisible := func(by float64) bool {
		ratio := amount / by
		return ratio == float64(int64(ratio))
	}

	switch {
	case amount >= 10000:
		return divisible(1000)
	case amount >= 5000:
		return divisible(500)
	case amount >= 2000:
		return divisible(100)
	default:
		return false
	}
}

// recommendAction maps the assessment to a recommended handling action
func (c *Coordinator) recommendAction(assessment *RiskAssessment) Action {
	critical := assessment.CountFlags(FlagCritical)
	high := assessment.CountFlags(FlagHigh)

	switch {
	case assessment.Level == LevelCritical || critical >= 2:
		return ActionReject
	case critical == 1:
		return ActionEscalate
	case assessment.Level == LevelHigh || high >= 2:
		return ActionInvestigate
	case assessment.Level == LevelMedium:
		return ActionReview
	default:
		return ActionApprove
	}
}
