package scoring

import (
	"math"
	"time"

	"invoice-reconciliation-service/internal/models"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"github.com/shopspring/decimal"
)

// Engine computes the component similarity scores between an invoice and a
// purchase order. It is stateless apart from its configuration and safe for
// concurrent use.
type Engine struct {
	config *Config
}

// ComponentScores bundles the four component scores and the weighted overall
// score for one (invoice, PO) pair.
type ComponentScores struct {
	Vendor   float64 `json:"vendor_score"`
	Amount   float64 `json:"amount_score"`
	Date     float64 `json:"date_score"`
	LineItem float64 `json:"line_item_score"`
	Overall  float64 `json:"overall_score"`
}

// NewEngine creates a new score engine with the specified configuration
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	return &Engine{config: config}
}

// Config returns a copy of the engine's configuration
func (e *Engine) Config() *Config {
	return e.config.Clone()
}

// VendorScore scores the similarity between the extracted vendor name and the
// vendor name on record. A normalized exact match scores 1.0; otherwise the
// best of character ratio, token-sorted ratio and partial ratio is used.
func (e *Engine) VendorScore(invoiceVendorName, dbVendorName string) float64 {
	a := models.NormalizeVendorName(invoiceVendorName)
	b := models.NormalizeVendorName(dbVendorName)

	if a == "" || b == "" {
		return 0.0
	}

	if a == b {
		return 1.0
	}

	best := fuzzy.Ratio(a, b)
	if r := fuzzy.TokenSortRatio(a, b); r > best {
		best = r
	}
	if r := fuzzy.PartialRatio(a, b); r > best {
		best = r
	}

	return clamp01(float64(best) / 100.0)
}

// AmountScore scores how close the invoice amount is to the PO amount using
// the configured header tolerance.
func (e *Engine) AmountScore(invoiceAmt, poAmt decimal.Decimal) float64 {
	return e.amountScoreWithTolerance(invoiceAmt, poAmt, e.config.AmountTolerance)
}

// LineItemAmountScore scores two line item amounts using the looser per-line
// tolerance.
func (e *Engine) LineItemAmountScore(invoiceAmt, poAmt decimal.Decimal) float64 {
	return e.amountScoreWithTolerance(invoiceAmt, poAmt, e.config.LineItemAmountTolerance)
}

// amountScoreWithTolerance applies the shared decay curve: exact match scores
// 1.0, differences within tolerance decay linearly to 0.85, and differences
// beyond tolerance decay exponentially (halving once per tolerance-width of
// excess).
func (e *Engine) amountScoreWithTolerance(invoiceAmt, poAmt decimal.Decimal, tolerance float64) float64 {
	if poAmt.IsZero() {
		return 0.0
	}

	if invoiceAmt.Equal(poAmt) {
		return 1.0
	}

	diffRatio := invoiceAmt.Sub(poAmt).Abs().Div(poAmt.Abs()).InexactFloat64()

	if diffRatio <= tolerance {
		return clamp01(1.0 - (diffRatio/tolerance)*0.15)
	}

	excess := (diffRatio - tolerance) / tolerance
	return clamp01(0.85 * math.Pow(0.5, excess))
}

// DateScore scores the plausibility of the invoice date relative to the PO
// creation date. Invoices shortly after the PO score 1.0; the score decays
// linearly to 0.80 across the tolerance window, then toward 0 over an
// extended decay window. Invoices slightly before the PO get a grace score of
// 0.80, decaying toward 0 the further back they fall.
func (e *Engine) DateScore(invoiceDate, poDate time.Time) float64 {
	if invoiceDate.IsZero() || poDate.IsZero() {
		return 0.0
	}

	days := float64(models.DaysBetween(poDate, invoiceDate))
	onTime := float64(e.config.OnTimeWindowDays)
	tolerance := float64(e.config.DateToleranceDays)
	grace := float64(e.config.GraceDaysBefore)

	switch {
	case days >= 0 && days <= onTime:
		return 1.0
	case days > onTime && days <= tolerance:
		return clamp01(1.0 - (days-onTime)/(tolerance-onTime)*0.20)
	case days > tolerance:
		over := days - tolerance
		return clamp01(0.80 * (1.0 - over/float64(e.config.PostToleranceDecayDays)))
	case days < 0 && -days <= grace:
		return 0.80
	default:
		before := -days - grace
		return clamp01(0.80 * (1.0 - before/float64(e.config.PreGraceDecayDays)))
	}
}

// Score computes all component scores and the weighted overall score for the
// invoice against the purchase order.
func (e *Engine) Score(invoice *models.Invoice, po *models.PurchaseOrder, vendorName string) (ComponentScores, []LineItemMatch) {
	matches, lineScore := e.MatchLineItems(invoice.LineItems, po.LineItems)

	scores := ComponentScores{
		Vendor:   e.VendorScore(invoice.VendorName, vendorName),
		Amount:   e.AmountScore(invoice.TotalAmount, po.TotalAmount),
		Date:     e.DateScore(invoice.InvoiceDate, po.CreatedDate),
		LineItem: lineScore,
	}
	scores.Overall = e.OverallMatchScore(scores)

	return scores, matches
}

// OverallMatchScore combines the component scores using the configured
// weights. This is the only place the overall score is computed.
func (e *Engine) OverallMatchScore(s ComponentScores) float64 {
	w := e.config.Weights
	return clamp01(w.Vendor*s.Vendor + w.Amount*s.Amount + w.LineItem*s.LineItem + w.Date*s.Date)
}

// MatchTypeForScore classifies an overall score into a MatchType using the
// configured thresholds.
func (e *Engine) MatchTypeForScore(overall float64) MatchType {
	switch {
	case overall >= e.config.ExactThreshold:
		return MatchExact
	case overall >= e.config.FuzzyThreshold:
		return MatchFuzzy
	case overall >= e.config.PartialThreshold:
		return MatchPartial
	default:
		return MatchNone
	}
}

// DescriptionSimilarity scores two line item descriptions in [0, 1]
func (e *Engine) DescriptionSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}

	best := fuzzy.Ratio(a, b)
	if r := fuzzy.TokenSortRatio(a, b); r > best {
		best = r
	}

	return clamp01(float64(best) / 100.0)
}

func clamp01(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
