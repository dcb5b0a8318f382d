package scoring

import (
	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/models"
)

// Line item combination weights. Description and amount dominate; quantity is
// a tie-breaker with partial credit for non-equal quantities.
const (
	lineDescWeight   = 0.4
	lineAmountWeight = 0.4
	lineQtyWeight    = 0.2
	lineQtyPartial   = 0.8

	lineCoverageWeight = 0.6
	lineQualityWeight  = 0.4
)

// LineItemMatch records the assignment of one invoice line to one PO line.
// Matched is true only when the combined score clears the matched threshold;
// assignments between the candidate and matched thresholds are kept for
// discrepancy analysis but do not count toward coverage.
type LineItemMatch struct {
	InvoiceIndex     int     `json:"invoice_index"`
	POIndex          int     `json:"po_index"`
	Score            float64 `json:"score"`
	DescriptionScore float64 `json:"description_score"`
	AmountScore      float64 `json:"amount_score"`
	QuantityScore    float64 `json:"quantity_score"`
	Matched          bool    `json:"matched"`
}

// MatchLineItems greedily assigns invoice line items to PO line items.
// Each invoice line takes the best-scoring unconsumed PO line; a PO line is
// consumed by at most one invoice line. The returned score is the weighted
// combination of amount coverage and average assignment quality.
func (e *Engine) MatchLineItems(invoiceItems []models.LineItem, poItems []models.POLineItem) ([]LineItemMatch, float64) {
	if len(invoiceItems) == 0 || len(poItems) == 0 {
		return nil, 0.0
	}

	var matches []LineItemMatch
	consumed := make(map[int]bool, len(poItems))

	for i, item := range invoiceItems {
		bestIdx := -1
		var best LineItemMatch

		for j, poItem := range poItems {
			if consumed[j] {
				continue
			}

			candidate := e.scoreLinePair(i, j, item, poItem)
			if bestIdx == -1 || candidate.Score > best.Score {
				bestIdx = j
				best = candidate
			}
		}

		if bestIdx == -1 || best.Score < e.config.LineItemCandidateThreshold {
			continue
		}

		best.Matched = best.Score >= e.config.LineItemMatchedThreshold
		consumed[bestIdx] = true
		matches = append(matches, best)
	}

	return matches, e.lineItemScore(invoiceItems, matches)
}

// scoreLinePair scores a single invoice line against a single PO line
func (e *Engine) scoreLinePair(invoiceIdx, poIdx int, item models.LineItem, poItem models.POLineItem) LineItemMatch {
	descScore := e.DescriptionSimilarity(item.Description, poItem.Description)
	amountScore := e.LineItemAmountScore(item.Amount, poItem.Amount)

	qtyScore := lineQtyPartial
	if item.Quantity.Equal(poItem.Quantity) {
		qtyScore = 1.0
	}

	return LineItemMatch{
		InvoiceIndex:     invoiceIdx,
		POIndex:          poIdx,
		Score:            clamp01(lineDescWeight*descScore + lineAmountWeight*amountScore + lineQtyWeight*qtyScore),
		DescriptionScore: descScore,
		AmountScore:      amountScore,
		QuantityScore:    qtyScore,
	}
}

// lineItemScore combines amount coverage with average assignment quality.
// Coverage is the fraction of the invoice total carried by matched lines.
func (e *Engine) lineItemScore(invoiceItems []models.LineItem, matches []LineItemMatch) float64 {
	if len(matches) == 0 {
		return 0.0
	}

	total := decimal.Zero
	for _, item := range invoiceItems {
		total = total.Add(item.Amount)
	}

	matchedAmount := decimal.Zero
	qualitySum := 0.0
	for _, m := range matches {
		qualitySum += m.Score
		if m.Matched {
			matchedAmount = matchedAmount.Add(invoiceItems[m.InvoiceIndex].Amount)
		}
	}

	coverage := 0.0
	if total.IsPositive() {
		coverage = matchedAmount.Div(total).InexactFloat64()
	}
	avgQuality := qualitySum / float64(len(matches))

	return clamp01(lineCoverageWeight*coverage + lineQualityWeight*avgQuality)
}

// UnmatchedInvoiceLines returns the indices of invoice lines that received no
// matched assignment, in input order.
func UnmatchedInvoiceLines(itemCount int, matches []LineItemMatch) []int {
	matched := make(map[int]bool, len(matches))
	for _, m := range matches {
		if m.Matched {
			matched[m.InvoiceIndex] = true
		}
	}

	var unmatched []int
	for i := 0; i < itemCount; i++ {
		if !matched[i] {
			unmatched = append(unmatched, i)
		}
	}
	return unmatched
}
