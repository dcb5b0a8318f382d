// Package scoring implements the invoice-to-purchase-order score engine.
//
// Four independent component scores are computed for an (invoice, PO) pair:
//   - Vendor name similarity (character, token-sorted and partial ratios)
//   - Total amount proximity with linear-then-exponential tolerance decay
//   - Date proximity with an on-time window, a pre-PO grace period and
//     asymmetric decay on both sides
//   - Line item coverage via a greedy assignment of invoice lines to PO lines
//
// The overall match score is always the fixed weighted combination of the
// four components; nothing else in the repository recomputes it ad hoc.
// Every score this package produces is clamped to [0, 1].
package scoring

import (
	"fmt"
)

// MatchType represents the coarse classification of match confidence.
type MatchType int

const (
	// MatchExact represents a near-perfect match requiring no review.
	MatchExact MatchType = iota

	// MatchFuzzy represents a strong match within tolerances.
	MatchFuzzy

	// MatchPartial represents a plausible match that usually needs review.
	MatchPartial

	// MatchNone indicates no acceptable match was found.
	MatchNone
)

// String returns the string representation of MatchType
func (mt MatchType) String() string {
	switch mt {
	case MatchExact:
		return "EXACT"
	case MatchFuzzy:
		return "FUZZY"
	case MatchPartial:
		return "PARTIAL"
	case MatchNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// Promote raises the match type one confidence level. MatchExact stays put.
func (mt MatchType) Promote() MatchType {
	if mt > MatchExact {
		return mt - 1
	}
	return mt
}

// Demote lowers the match type one confidence level. MatchNone stays put.
func (mt MatchType) Demote() MatchType {
	if mt < MatchNone {
		return mt + 1
	}
	return mt
}

// Weights defines the relative importance of the component scores in the
// overall match score.
type Weights struct {
	Vendor   float64 `json:"vendor_weight"`
	Amount   float64 `json:"amount_weight"`
	LineItem float64 `json:"line_item_weight"`
	Date     float64 `json:"date_weight"`
}

// Validate checks if the weights are valid
func (w *Weights) Validate() error {
	for name, v := range map[string]float64{
		"vendor": w.Vendor, "amount": w.Amount, "line_item": w.LineItem, "date": w.Date,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("%s weight must be between 0.0 and 1.0: %f", name, v)
		}
	}

	total := w.Vendor + w.Amount + w.LineItem + w.Date
	if total < 0.99 || total > 1.01 {
		return fmt.Errorf("weights should sum to 1.0, got %f", total)
	}

	return nil
}

// Config holds all tolerances, thresholds and weights for the score engine.
// Use DefaultConfig for the standard behaviour; Strict and Relaxed variants
// tighten or loosen the tolerances for high-risk or exploratory matching.
type Config struct {
	// AmountTolerance is the fractional tolerance for header amount matching
	AmountTolerance float64 `json:"amount_tolerance"`

	// LineItemAmountTolerance is the fractional tolerance used when scoring
	// individual line item amounts
	LineItemAmountTolerance float64 `json:"line_item_amount_tolerance"`

	// DateToleranceDays is the window after the PO date inside which the date
	// score decays linearly instead of exponentially
	DateToleranceDays int `json:"date_tolerance_days"`

	// OnTimeWindowDays is the window after the PO date scoring a full 1.0
	OnTimeWindowDays int `json:"on_time_window_days"`

	// GraceDaysBefore allows invoices slightly before the PO creation date
	GraceDaysBefore int `json:"grace_days_before"`

	// PreGraceDecayDays spreads the decay for invoices before the grace period
	PreGraceDecayDays int `json:"pre_grace_decay_days"`

	// PostToleranceDecayDays spreads the decay for invoices after the window
	PostToleranceDecayDays int `json:"post_tolerance_decay_days"`

	// LineItemCandidateThreshold is the minimum combined score for a PO line
	// to be recorded as a candidate assignment
	LineItemCandidateThreshold float64 `json:"line_item_candidate_threshold"`

	// LineItemMatchedThreshold is the minimum combined score for an
	// assignment to count as matched for coverage purposes
	LineItemMatchedThreshold float64 `json:"line_item_matched_threshold"`

	// Match type thresholds over the overall score
	ExactThreshold   float64 `json:"exact_threshold"`
	FuzzyThreshold   float64 `json:"fuzzy_threshold"`
	PartialThreshold float64 `json:"partial_threshold"`

	// Weights for the overall score combination
	Weights Weights `json:"weights"`
}

// DefaultConfig returns a configuration with the standard tolerances
func DefaultConfig() *Config {
	return &Config{
		AmountTolerance:            0.05,
		LineItemAmountTolerance:    0.10,
		DateToleranceDays:          30,
		OnTimeWindowDays:           7,
		GraceDaysBefore:            3,
		PreGraceDecayDays:          30,
		PostToleranceDecayDays:     60,
		LineItemCandidateThreshold: 0.60,
		LineItemMatchedThreshold:   0.70,
		ExactThreshold:             0.95,
		FuzzyThreshold:             0.85,
		PartialThreshold:           0.70,
		Weights: Weights{
			Vendor:   0.30,
			Amount:   0.30,
			LineItem: 0.30,
			Date:     0.10,
		},
	}
}

// StrictConfig returns a configuration with tightened tolerances for
// high-value or high-risk reconciliation.
func StrictConfig() *Config {
	c := DefaultConfig()
	c.AmountTolerance = 0.02
	c.LineItemAmountTolerance = 0.05
	c.DateToleranceDays = 14
	c.GraceDaysBefore = 1
	c.LineItemCandidateThreshold = 0.70
	c.LineItemMatchedThreshold = 0.80
	return c
}

// RelaxedConfig returns a configuration with loosened tolerances for
// exploratory matching.
func RelaxedConfig() *Config {
	c := DefaultConfig()
	c.AmountTolerance = 0.10
	c.LineItemAmountTolerance = 0.15
	c.DateToleranceDays = 60
	c.GraceDaysBefore = 7
	c.LineItemCandidateThreshold = 0.50
	c.LineItemMatchedThreshold = 0.60
	return c
}

// Validate checks if the scoring configuration is valid
func (c *Config) Validate() error {
	if c.AmountTolerance <= 0.0 || c.AmountTolerance > 1.0 {
		return fmt.Errorf("amount tolerance must be in (0.0, 1.0]: %f", c.AmountTolerance)
	}

	if c.LineItemAmountTolerance <= 0.0 || c.LineItemAmountTolerance > 1.0 {
		return fmt.Errorf("line item amount tolerance must be in (0.0, 1.0]: %f", c.LineItemAmountTolerance)
	}

	if c.DateToleranceDays <= 0 {
		return fmt.Errorf("date tolerance days must be positive: %d", c.DateToleranceDays)
	}

	if c.OnTimeWindowDays < 0 || c.OnTimeWindowDays > c.DateToleranceDays {
		return fmt.Errorf("on-time window must be between 0 and the date tolerance: %d", c.OnTimeWindowDays)
	}

	if c.GraceDaysBefore < 0 {
		return fmt.Errorf("grace days before cannot be negative: %d", c.GraceDaysBefore)
	}

	if c.PreGraceDecayDays <= 0 || c.PostToleranceDecayDays <= 0 {
		return fmt.Errorf("decay windows must be positive: pre=%d post=%d",
			c.PreGraceDecayDays, c.PostToleranceDecayDays)
	}

	for name, v := range map[string]float64{
		"line item candidate threshold": c.LineItemCandidateThreshold,
		"line item matched threshold":   c.LineItemMatchedThreshold,
		"exact threshold":               c.ExactThreshold,
		"fuzzy threshold":               c.FuzzyThreshold,
		"partial threshold":             c.PartialThreshold,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0: %f", name, v)
		}
	}

	if !(c.ExactThreshold >= c.FuzzyThreshold && c.FuzzyThreshold >= c.PartialThreshold) {
		return fmt.Errorf("match type thresholds must be ordered exact >= fuzzy >= partial")
	}

	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	return nil
}

// Clone creates a copy of the scoring configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cloned := *c
	return &cloned
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("ScoringConfig{AmountTol: %.2f, DateTol: %dd, Thresholds: %.2f/%.2f/%.2f}",
		c.AmountTolerance, c.DateToleranceDays, c.ExactThreshold, c.FuzzyThreshold, c.PartialThreshold)
}
