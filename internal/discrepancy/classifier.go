// Package discrepancy classifies the differences between an invoice and its
// matched purchase order into typed, severity-ranked discrepancies.
//
// Types and severities are closed enumerations with exhaustive switches so a
// new discrepancy type cannot silently bypass severity aggregation.
package discrepancy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/scoring"
)

// Type identifies what kind of difference was detected.
type Type int

const (
	TypeVendorMismatch Type = iota
	TypeAmountMismatch
	TypeDateMismatch
	TypeLineItemMismatch
	TypePaymentTermsMismatch
	TypeCurrencyMismatch
)

// String returns the string representation of the discrepancy type
func (t Type) String() string {
	switch t {
	case TypeVendorMismatch:
		return "VENDOR_MISMATCH"
	case TypeAmountMismatch:
		return "AMOUNT_MISMATCH"
	case TypeDateMismatch:
		return "DATE_MISMATCH"
	case TypeLineItemMismatch:
		return "LINE_ITEM_MISMATCH"
	case TypePaymentTermsMismatch:
		return "PAYMENT_TERMS_MISMATCH"
	case TypeCurrencyMismatch:
		return "CURRENCY_MISMATCH"
	default:
		return "UNKNOWN"
	}
}

// Severity ranks a discrepancy. The ordering is canonical: aggregation logic
// compares severities numerically.
type Severity int

const (
	SeverityMinor Severity = iota
	SeverityMajor
	SeverityCritical
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityMinor:
		return "MINOR"
	case SeverityMajor:
		return "MAJOR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Discrepancy is one detected difference between invoice and PO data
type Discrepancy struct {
	Type         Type     `json:"type"`
	Severity     Severity `json:"severity"`
	InvoiceValue string   `json:"invoice_value"`
	POValue      string   `json:"po_value"`
	Difference   string   `json:"difference,omitempty"`
	Description  string   `json:"description"`
}

// Classification thresholds.
const (
	vendorMismatchThreshold = 0.95
	vendorMajorThreshold    = 0.70

	amountNoticeThreshold   = 0.01
	amountMajorThreshold    = 0.05
	amountCriticalThreshold = 0.10

	dateMajorDaysBefore    = 7
	dateCriticalDaysBefore = 30
	deliveryWindowDays     = 30
	lateDeliveryGraceDays  = 30

	quantityMajorDeviation = 0.10
	descriptionFloor       = 0.80
)

// unmatchedCriticalAmount is the unmatched-line total above which the
// aggregate line item discrepancy escalates to critical.
var unmatchedCriticalAmount = decimal.NewFromInt(1000)

// Classify is a pure function over the invoice, the matched purchase order,
// the component scores and the line item assignments. It never mutates its
// inputs and returns discrepancies in a deterministic order.
func Classify(invoice *models.Invoice, po *models.PurchaseOrder, scores scoring.ComponentScores, matches []scoring.LineItemMatch) []Discrepancy {
	var found []Discrepancy

	if d := classifyVendor(invoice, po, scores.Vendor); d != nil {
		found = append(found, *d)
	}
	if d := classifyAmount(invoice, po); d != nil {
		found = append(found, *d)
	}
	found = append(found, classifyDates(invoice, po)...)
	found = append(found, classifyLineItems(invoice, po, matches)...)
	if d := classifyPaymentTerms(invoice, po); d != nil {
		found = append(found, *d)
	}
	if d := classifyCurrency(invoice, po); d != nil {
		found = append(found, *d)
	}

	return found
}

// CountBySeverity returns how many discrepancies carry at least the given
// severity exactly.
func CountBySeverity(discrepancies []Discrepancy, severity Severity) int {
	count := 0
	for _, d := range discrepancies {
		if d.Severity == severity {
			count++
		}
	}
	return count
}

// HasSeverity reports whether any discrepancy carries the given severity
func HasSeverity(discrepancies []Discrepancy, severity Severity) bool {
	return CountBySeverity(discrepancies, severity) > 0
}

func classifyVendor(invoice *models.Invoice, po *models.PurchaseOrder, vendorScore float64) *Discrepancy {
	if vendorScore >= vendorMismatchThreshold {
		return nil
	}

	severity := SeverityMinor
	if vendorScore < vendorMajorThreshold {
		severity = SeverityMajor
	}

	return &Discrepancy{
		Type:         TypeVendorMismatch,
		Severity:     severity,
		InvoiceValue: invoice.VendorName,
		POValue:      po.VendorID,
		Description:  fmt.Sprintf("vendor name similarity %.2f below threshold %.2f", vendorScore, vendorMismatchThreshold),
	}
}

func classifyAmount(invoice *models.Invoice, po *models.PurchaseOrder) *Discrepancy {
	if po.TotalAmount.IsZero() {
		return nil
	}

	diff := invoice.TotalAmount.Sub(po.TotalAmount)
	pct := diff.Abs().Div(po.TotalAmount.Abs()).InexactFloat64()
	if pct <= amountNoticeThreshold {
		return nil
	}

	severity := SeverityMinor
	switch {
	case pct >= amountCriticalThreshold:
		severity = SeverityCritical
	case pct >= amountMajorThreshold:
		severity = SeverityMajor
	}

	return &Discrepancy{
		Type:         TypeAmountMismatch,
		Severity:     severity,
		InvoiceValue: invoice.TotalAmount.String(),
		POValue:      po.TotalAmount.String(),
		Difference:   diff.String(),
		Description:  fmt.Sprintf("invoice total deviates %.1f%% from PO total", pct*100),
	}
}

func classifyDates(invoice *models.Invoice, po *models.PurchaseOrder) []Discrepancy {
	var found []Discrepancy

	if invoice.InvoiceDate.Before(po.CreatedDate) {
		daysBefore := models.DaysBetween(invoice.InvoiceDate, po.CreatedDate)

		severity := SeverityMinor
		switch {
		case daysBefore >= dateCriticalDaysBefore:
			severity = SeverityCritical
		case daysBefore >= dateMajorDaysBefore:
			severity = SeverityMajor
		}

		found = append(found, Discrepancy{
			Type:         TypeDateMismatch,
			Severity:     severity,
			InvoiceValue: invoice.InvoiceDate.Format("2006-01-02"),
			POValue:      po.CreatedDate.Format("2006-01-02"),
			Difference:   fmt.Sprintf("%d days before PO creation", daysBefore),
			Description:  fmt.Sprintf("invoice dated %d days before the purchase order was created", daysBefore),
		})
	}

	// The PO header carries no delivery date; expected delivery is the PO
	// creation date plus the standard delivery window.
	expectedDelivery := po.CreatedDate.AddDate(0, 0, deliveryWindowDays)
	if daysLate := models.DaysBetween(expectedDelivery, invoice.InvoiceDate); daysLate > lateDeliveryGraceDays {
		found = append(found, Discrepancy{
			Type:         TypeDateMismatch,
			Severity:     SeverityMinor,
			InvoiceValue: invoice.InvoiceDate.Format("2006-01-02"),
			POValue:      expectedDelivery.Format("2006-01-02"),
			Difference:   fmt.Sprintf("%d days after expected delivery", daysLate),
			Description:  fmt.Sprintf("invoice arrived %d days after the expected delivery date", daysLate),
		})
	}

	return found
}

func classifyLineItems(invoice *models.Invoice, po *models.PurchaseOrder, matches []scoring.LineItemMatch) []Discrepancy {
	var found []Discrepancy

	unmatched := scoring.UnmatchedInvoiceLines(len(invoice.LineItems), matches)
	if len(unmatched) > 0 {
		unmatchedTotal := decimal.Zero
		for _, idx := range unmatched {
			unmatchedTotal = unmatchedTotal.Add(invoice.LineItems[idx].Amount)
		}

		severity := SeverityMajor
		if unmatchedTotal.GreaterThan(unmatchedCriticalAmount) {
			severity = SeverityCritical
		}

		found = append(found, Discrepancy{
			Type:         TypeLineItemMismatch,
			Severity:     severity,
			InvoiceValue: fmt.Sprintf("%d unmatched lines", len(unmatched)),
			POValue:      fmt.Sprintf("%d PO lines", len(po.LineItems)),
			Difference:   unmatchedTotal.String(),
			Description:  fmt.Sprintf("%d invoice lines totaling %s have no PO counterpart", len(unmatched), unmatchedTotal.String()),
		})
	}

	for _, m := range matches {
		if !m.Matched {
			continue
		}

		item := invoice.LineItems[m.InvoiceIndex]
		poItem := po.LineItems[m.POIndex]

		if !item.Quantity.Equal(poItem.Quantity) && poItem.Quantity.IsPositive() {
			deviation := item.Quantity.Sub(poItem.Quantity).Abs().Div(poItem.Quantity).InexactFloat64()

			severity := SeverityMinor
			if deviation > quantityMajorDeviation {
				severity = SeverityMajor
			}

			found = append(found, Discrepancy{
				Type:         TypeLineItemMismatch,
				Severity:     severity,
				InvoiceValue: item.Quantity.String(),
				POValue:      poItem.Quantity.String(),
				Difference:   item.Quantity.Sub(poItem.Quantity).String(),
				Description:  fmt.Sprintf("quantity mismatch on line %d: invoiced %s, ordered %s", m.InvoiceIndex+1, item.Quantity.String(), poItem.Quantity.String()),
			})
		}

		if m.DescriptionScore < descriptionFloor {
			found = append(found, Discrepancy{
				Type:         TypeLineItemMismatch,
				Severity:     SeverityMinor,
				InvoiceValue: item.Description,
				POValue:      poItem.Description,
				Description:  fmt.Sprintf("description similarity %.2f on line %d below %.2f", m.DescriptionScore, m.InvoiceIndex+1, descriptionFloor),
			})
		}
	}

	return found
}

func classifyPaymentTerms(invoice *models.Invoice, po *models.PurchaseOrder) *Discrepancy {
	invTerms := strings.TrimSpace(strings.ToLower(invoice.PaymentTerms))
	poTerms := strings.TrimSpace(strings.ToLower(po.PaymentTerms))

	if invTerms == "" || poTerms == "" || invTerms == poTerms {
		return nil
	}

	return &Discrepancy{
		Type:         TypePaymentTermsMismatch,
		Severity:     SeverityMinor,
		InvoiceValue: invoice.PaymentTerms,
		POValue:      po.PaymentTerms,
		Description:  "payment terms differ between invoice and PO",
	}
}

func classifyCurrency(invoice *models.Invoice, po *models.PurchaseOrder) *Discrepancy {
	invCurrency := strings.ToUpper(strings.TrimSpace(invoice.Currency))
	poCurrency := strings.ToUpper(strings.TrimSpace(po.Currency))

	if invCurrency == "" || poCurrency == "" || invCurrency == poCurrency {
		return nil
	}

	return &Discrepancy{
		Type:         TypeCurrencyMismatch,
		Severity:     SeverityCritical,
		InvoiceValue: invCurrency,
		POValue:      poCurrency,
		Description:  fmt.Sprintf("invoice currency %s does not match PO currency %s", invCurrency, poCurrency),
	}
}
