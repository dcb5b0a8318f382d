// Package risk implements fraud and risk triage for extracted invoices.
//
// Four detectors contribute weighted component scores: duplicate detection
// over historical invoices, vendor trust analysis, statistical price anomaly
// detection, and an absolute amount ceiling check. A pattern heuristic over
// the collected flags supplies the fifth component. The coordinator
// aggregates everything into a RiskAssessment with a recommended action.
//
// All scores are in [0.0, 1.0], 0 meaning safe and 1 meaning high risk.
package risk

import (
	"fmt"
	"time"
)

// FlagType identifies which detector raised a risk flag.
type FlagType int

const (
	FlagDuplicate FlagType = iota
	FlagVendor
	FlagPriceAnomaly
	FlagAmount
	FlagPattern
)

// String returns the string representation of the flag type
func (t FlagType) String() string {
	switch t {
	case FlagDuplicate:
		return "DUPLICATE"
	case FlagVendor:
		return "VENDOR"
	case FlagPriceAnomaly:
		return "PRICE_ANOMALY"
	case FlagAmount:
		return "AMOUNT"
	case FlagPattern:
		return "PATTERN"
	default:
		return "UNKNOWN"
	}
}

// FlagSeverity ranks a risk flag. The ordering is canonical: aggregation
// logic compares severities numerically.
type FlagSeverity int

const (
	FlagLow FlagSeverity = iota
	FlagMedium
	FlagHigh
	FlagCritical
)

// String returns the string representation of the flag severity
func (s FlagSeverity) String() string {
	switch s {
	case FlagLow:
		return "LOW"
	case FlagMedium:
		return "MEDIUM"
	case FlagHigh:
		return "HIGH"
	case FlagCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// RiskFlag is a typed, severity-ranked signal contributing to the overall
// risk picture.
type RiskFlag struct {
	Type       FlagType     `json:"type"`
	Severity   FlagSeverity `json:"severity"`
	Confidence float64      `json:"confidence"`
	Evidence   string       `json:"evidence"`
}

// Level classifies the overall risk score
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

// String returns the string representation of the risk level
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "LOW"
	case LevelMedium:
		return "MEDIUM"
	case LevelHigh:
		return "HIGH"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Action is the recommended handling for an assessed invoice
type Action string

const (
	ActionApprove     Action = "APPROVE"
	ActionReview      Action = "REVIEW"
	ActionInvestigate Action = "INVESTIGATE"
	ActionEscalate    Action = "ESCALATE"
	ActionReject      Action = "REJECT"
)

// RequiresManualReview reports whether the action needs a human in the loop
func (a Action) RequiresManualReview() bool {
	switch a {
	case ActionReject, ActionEscalate, ActionInvestigate:
		return true
	default:
		return false
	}
}

// ComponentScores holds the five weighted risk components
type ComponentScores struct {
	Duplicate float64 `json:"duplicate_score"`
	Vendor    float64 `json:"vendor_score"`
	Price     float64 `json:"price_score"`
	Amount    float64 `json:"amount_score"`
	Pattern   float64 `json:"pattern_score"`
}

// DuplicateInfo describes a detected duplicate invoice
type DuplicateInfo struct {
	IsDuplicate     bool    `json:"is_duplicate"`
	Confidence      float64 `json:"confidence"`
	Tier            int     `json:"tier,omitempty"`
	DuplicateID     string  `json:"duplicate_id,omitempty"`
	DuplicateNumber string  `json:"duplicate_number,omitempty"`
	DaysApart       int     `json:"days_apart,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// PriceAnomalyInfo describes the statistical comparison against vendor history
type PriceAnomalyInfo struct {
	IsAnomaly    bool    `json:"is_anomaly"`
	ZScore       float64 `json:"z_score"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	SampleCount  int     `json:"sample_count"`
	DeviationPct float64 `json:"deviation_pct"`
	RiskScore    float64 `json:"risk_score"`
}

// VendorRiskInfo describes the composite vendor trust analysis
type VendorRiskInfo struct {
	VendorID     string  `json:"vendor_id"`
	Score        float64 `json:"score"`
	BaseRisk     float64 `json:"base_risk"`
	PaymentRisk  float64 `json:"payment_risk"`
	ActivityRisk float64 `json:"activity_risk"`
	FraudRisk    float64 `json:"fraud_risk"`
	Synthetic    bool    `json:"synthetic"`
	Reason       string  `json:"reason,omitempty"`
}

// RiskAssessment is the aggregated result of all detectors for one invoice.
// Immutable once returned by the coordinator.
type RiskAssessment struct {
	InvoiceID            string            `json:"invoice_id"`
	OverallScore         float64           `json:"overall_score"`
	Level                Level             `json:"level"`
	Components           ComponentScores   `json:"components"`
	Flags                []RiskFlag        `json:"flags"`
	Duplicate            *DuplicateInfo    `json:"duplicate,omitempty"`
	PriceAnomaly         *PriceAnomalyInfo `json:"price_anomaly,omitempty"`
	VendorRisk           *VendorRiskInfo   `json:"vendor_risk,omitempty"`
	RecommendedAction    Action            `json:"recommended_action"`
	RequiresManualReview bool              `json:"requires_manual_review"`
	DegradedDetectors    []string          `json:"degraded_detectors,omitempty"`
	AssessedAt           time.Time         `json:"assessed_at"`
}

// IsDuplicate reports whether duplicate detection fired
func (ra *RiskAssessment) IsDuplicate() bool {
	return ra.Duplicate != nil && ra.Duplicate.IsDuplicate
}

// CountFlags returns the number of flags with exactly the given severity
func (ra *RiskAssessment) CountFlags(severity FlagSeverity) int {
	count := 0
	for _, f := range ra.Flags {
		if f.Severity == severity {
			count++
		}
	}
	return count
}

// Weights defines the relative importance of the risk components
type Weights struct {
	Duplicate float64 `json:"duplicate_weight"`
	Vendor    float64 `json:"vendor_weight"`
	Price     float64 `json:"price_weight"`
	Amount    float64 `json:"amount_weight"`
	Pattern   float64 `json:"pattern_weight"`
}

// Validate checks if the weights are valid
func (w *Weights) Validate() error {
	total := w.Duplicate + w.Vendor + w.Price + w.Amount + w.Pattern
	if total < 0.99 || total > 1.01 {
		return fmt.Errorf("risk weights should sum to 1.0, got %f", total)
	}
	return nil
}

// Config holds the tolerances, thresholds and weights for risk assessment
type Config struct {
	// Duplicate detection
	DuplicateWindowDays      int     `json:"duplicate_window_days"`
	FuzzyDuplicateWindowDays int     `json:"fuzzy_duplicate_window_days"`
	FuzzyAmountTolerance     float64 `json:"fuzzy_amount_tolerance"`
	FuzzyConfidenceFloor     float64 `json:"fuzzy_confidence_floor"`
	HistoryLookupLimit       int     `json:"history_lookup_limit"`

	// Price anomaly
	MinHistorySamples int     `json:"min_history_samples"`
	ZScoreThreshold   float64 `json:"z_score_threshold"`
	SignificanceFloor float64 `json:"significance_floor"`

	// Amount ceiling
	TypicalAmountCeiling float64 `json:"typical_amount_ceiling"`

	// Vendor trust
	VendorBaseWeight     float64 `json:"vendor_base_weight"`
	VendorPaymentWeight  float64 `json:"vendor_payment_weight"`
	VendorActivityWeight float64 `json:"vendor_activity_weight"`
	VendorFraudWeight    float64 `json:"vendor_fraud_weight"`
	UnknownVendorRisk    float64 `json:"unknown_vendor_risk"`
	NewVendorAgeDays     int     `json:"new_vendor_age_days"`
	MinVendorInvoices    int     `json:"min_vendor_invoices"`
	InactiveAfterDays    int     `json:"inactive_after_days"`

	// Aggregation
	Weights         Weights `json:"weights"`
	MediumThreshold float64 `json:"medium_threshold"`
	HighThreshold   float64 `json:"high_threshold"`
	CriticalThresh  float64 `json:"critical_threshold"`
}

// DefaultConfig returns a configuration with the standard thresholds
func DefaultConfig() *Config {
	return &Config{
		DuplicateWindowDays:      90,
		FuzzyDuplicateWindowDays: 30,
		FuzzyAmountTolerance:     0.02,
		FuzzyConfidenceFloor:     0.75,
		HistoryLookupLimit:       100,
		MinHistorySamples:        3,
		ZScoreThreshold:          2.0,
		SignificanceFloor:        1000.0,
		TypicalAmountCeiling:     10000.0,
		VendorBaseWeight:         0.40,
		VendorPaymentWeight:      0.30,
		VendorActivityWeight:     0.20,
		VendorFraudWeight:        0.10,
		UnknownVendorRisk:        0.80,
		NewVendorAgeDays:         90,
		MinVendorInvoices:        5,
		InactiveAfterDays:        180,
		Weights: Weights{
			Duplicate: 0.30,
			Vendor:    0.25,
			Price:     0.20,
			Amount:    0.15,
			Pattern:   0.10,
		},
		MediumThreshold: 0.25,
		HighThreshold:   0.50,
		CriticalThresh:  0.75,
	}
}

// Validate checks if the risk configuration is valid
func (c *Config) Validate() error {
	if c.DuplicateWindowDays <= 0 || c.FuzzyDuplicateWindowDays <= 0 {
		return fmt.Errorf("duplicate windows must be positive")
	}

	if c.FuzzyAmountTolerance <= 0.0 || c.FuzzyAmountTolerance > 1.0 {
		return fmt.Errorf("fuzzy amount tolerance must be in (0.0, 1.0]: %f", c.FuzzyAmountTolerance)
	}

	if c.FuzzyConfidenceFloor < 0.0 || c.FuzzyConfidenceFloor > 1.0 {
		return fmt.Errorf("fuzzy confidence floor must be between 0.0 and 1.0: %f", c.FuzzyConfidenceFloor)
	}

	if c.MinHistorySamples < 2 {
		return fmt.Errorf("min history samples must be at least 2: %d", c.MinHistorySamples)
	}

	if c.ZScoreThreshold <= 0.0 {
		return fmt.Errorf("z-score threshold must be positive: %f", c.ZScoreThreshold)
	}

	vendorTotal := c.VendorBaseWeight + c.VendorPaymentWeight + c.VendorActivityWeight + c.VendorFraudWeight
	if vendorTotal < 0.99 || vendorTotal > 1.01 {
		return fmt.Errorf("vendor weights should sum to 1.0, got %f", vendorTotal)
	}

	if err := c.Weights.Validate(); err != nil {
		return err
	}

	if !(c.MediumThreshold < c.HighThreshold && c.HighThreshold < c.CriticalThresh) {
		return fmt.Errorf("level thresholds must be strictly increasing")
	}

	return nil
}

// Clone creates a copy of the risk configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cloned := *c
	return &cloned
}

// LevelForScore classifies an overall risk score using the configured
// thresholds.
func (c *Config) LevelForScore(score float64) Level {
	switch {
	case score < c.MediumThreshold:
		return LevelLow
	case score < c.HighThreshold:
		return LevelMedium
	case score < c.CriticalThresh:
		return LevelHigh
	default:
		return LevelCritical
	}
}
