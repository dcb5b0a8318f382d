// Package models defines the domain types shared by the matching, risk and
// workflow packages: extracted invoices, purchase orders, vendors and vendor
// risk profiles.
//
// Invoices are produced by an out-of-scope extraction service and are treated
// as immutable once constructed. Purchase orders are owned by procurement data
// and are read-only here. All monetary values use decimal.Decimal to avoid
// floating point drift in tolerance checks.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// POStatus represents the lifecycle status of a purchase order
type POStatus string

const (
	// POStatusOpen indicates the purchase order is approved and awaiting invoices
	POStatusOpen POStatus = "OPEN"
	// POStatusPartial indicates some line items have been received or invoiced
	POStatusPartial POStatus = "PARTIAL"
	// POStatusClosed indicates the purchase order is fully reconciled
	POStatusClosed POStatus = "CLOSED"
	// POStatusCancelled indicates the purchase order was cancelled
	POStatusCancelled POStatus = "CANCELLED"
)

// String returns the string representation of POStatus
func (s POStatus) String() string {
	return string(s)
}

// IsValid checks if the purchase order status is valid
func (s POStatus) IsValid() bool {
	switch s {
	case POStatusOpen, POStatusPartial, POStatusClosed, POStatusCancelled:
		return true
	default:
		return false
	}
}

// IsMatchable reports whether invoices may still be reconciled against a
// purchase order in this status.
func (s POStatus) IsMatchable() bool {
	return s == POStatusOpen || s == POStatusPartial
}

// LineItem is a single line of an extracted invoice
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
	SKU         string          `json:"sku,omitempty"`
}

// Invoice represents a structured invoice produced by field extraction.
// The struct is immutable by convention: nothing in this repository mutates
// an invoice after construction.
type Invoice struct {
	ID           string          `json:"id"`
	Number       string          `json:"number"`
	VendorName   string          `json:"vendor_name"`
	InvoiceDate  time.Time       `json:"invoice_date"`
	DueDate      time.Time       `json:"due_date,omitempty"`
	Currency     string          `json:"currency"`
	PaymentTerms string          `json:"payment_terms,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	LineItems    []LineItem      `json:"line_items"`

	// Extraction metadata, supplied by the external extraction service.
	ExtractionConfidence float64 `json:"extraction_confidence"`
	ContentHash          string  `json:"content_hash,omitempty"`
}

// Validate performs basic validation on the Invoice
func (inv *Invoice) Validate() error {
	if strings.TrimSpace(inv.Number) == "" {
		return fmt.Errorf("invoice number cannot be empty")
	}

	if strings.TrimSpace(inv.VendorName) == "" {
		return fmt.Errorf("invoice vendor name cannot be empty")
	}

	if inv.TotalAmount.IsNegative() {
		return fmt.Errorf("invoice total cannot be negative: %s", inv.TotalAmount.String())
	}

	if inv.InvoiceDate.IsZero() {
		return fmt.Errorf("invoice date cannot be zero")
	}

	for i, item := range inv.LineItems {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("line item %d: %w", i+1, err)
		}
	}

	return nil
}

// IsExtractionComplete reports whether extraction produced enough structure
// for the pipeline to score the invoice. minConfidence is the floor for the
// extractor's self-reported confidence.
func (inv *Invoice) IsExtractionComplete(minConfidence float64) bool {
	if inv.ExtractionConfidence < minConfidence {
		return false
	}
	if strings.TrimSpace(inv.Number) == "" || strings.TrimSpace(inv.VendorName) == "" {
		return false
	}
	if len(inv.LineItems) == 0 {
		return false
	}
	return !inv.TotalAmount.IsZero()
}

// LineItemTotal returns the sum of all line item amounts
func (inv *Invoice) LineItemTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range inv.LineItems {
		total = total.Add(item.Amount)
	}
	return total
}

// String returns a string representation of the Invoice
func (inv *Invoice) String() string {
	return fmt.Sprintf("Invoice{Number: %s, Vendor: %s, Total: %s %s, Lines: %d}",
		inv.Number, inv.VendorName, inv.TotalAmount.String(), inv.Currency, len(inv.LineItems))
}

// Validate performs basic validation on a LineItem
func (li *LineItem) Validate() error {
	if strings.TrimSpace(li.Description) == "" {
		return fmt.Errorf("line item description cannot be empty")
	}

	if li.Quantity.IsNegative() {
		return fmt.Errorf("line item quantity cannot be negative: %s", li.Quantity.String())
	}

	if li.Amount.IsNegative() {
		return fmt.Errorf("line item amount cannot be negative: %s", li.Amount.String())
	}

	return nil
}

// POLineItem is a single line of a purchase order. ReceivedQuantity is the
// only mutable field and is owned by the receiving process, not this core.
type POLineItem struct {
	Description      string          `json:"description"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Amount           decimal.Decimal `json:"amount"`
	SKU              string          `json:"sku,omitempty"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
}

// PurchaseOrder represents the authorizing document an invoice is reconciled
// against. Read-only to this core.
type PurchaseOrder struct {
	Number       string          `json:"number"`
	VendorID     string          `json:"vendor_id"`
	CreatedDate  time.Time       `json:"created_date"`
	Status       POStatus        `json:"status"`
	Currency     string          `json:"currency"`
	PaymentTerms string          `json:"payment_terms,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	LineItems    []POLineItem    `json:"line_items"`
}

// Validate performs basic validation on the PurchaseOrder
func (po *PurchaseOrder) Validate() error {
	if strings.TrimSpace(po.Number) == "" {
		return fmt.Errorf("purchase order number cannot be empty")
	}

	if strings.TrimSpace(po.VendorID) == "" {
		return fmt.Errorf("purchase order vendor id cannot be empty")
	}

	if !po.Status.IsValid() {
		return fmt.Errorf("invalid purchase order status: %s", po.Status)
	}

	if po.CreatedDate.IsZero() {
		return fmt.Errorf("purchase order created date cannot be zero")
	}

	if po.TotalAmount.IsNegative() {
		return fmt.Errorf("purchase order total cannot be negative: %s", po.TotalAmount.String())
	}

	return nil
}

// String returns a string representation of the PurchaseOrder
func (po *PurchaseOrder) String() string {
	return fmt.Sprintf("PurchaseOrder{Number: %s, Vendor: %s, Total: %s %s, Status: %s}",
		po.Number, po.VendorID, po.TotalAmount.String(), po.Currency, po.Status)
}

// Vendor is the identity record for a supplier
type Vendor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// VendorRiskProfile carries the mutable risk state tracked per vendor.
// Reads are concurrent-safe because the core never writes profiles.
type VendorRiskProfile struct {
	VendorID             string    `json:"vendor_id"`
	RiskScore            float64   `json:"risk_score"`
	OnTimeRate           float64   `json:"on_time_rate"`
	InvoiceCount         int       `json:"invoice_count"`
	DaysSinceLastPayment int       `json:"days_since_last_payment"`
	HasUnresolvedFraud   bool      `json:"has_unresolved_fraud"`
	FraudFlagCount       int       `json:"fraud_flag_count"`
	OnboardedAt          time.Time `json:"onboarded_at"`
}

// Validate performs basic validation on the VendorRiskProfile
func (p *VendorRiskProfile) Validate() error {
	if strings.TrimSpace(p.VendorID) == "" {
		return fmt.Errorf("vendor id cannot be empty")
	}

	if p.RiskScore < 0.0 || p.RiskScore > 1.0 {
		return fmt.Errorf("risk score must be between 0.0 and 1.0: %f", p.RiskScore)
	}

	if p.OnTimeRate < 0.0 || p.OnTimeRate > 1.0 {
		return fmt.Errorf("on-time rate must be between 0.0 and 1.0: %f", p.OnTimeRate)
	}

	return nil
}

// VendorAgeDays returns how many days ago the vendor was onboarded, relative
// to the given reference time.
func (p *VendorRiskProfile) VendorAgeDays(now time.Time) int {
	if p.OnboardedAt.IsZero() {
		return 0
	}
	return int(now.Sub(p.OnboardedAt).Hours() / 24)
}

// MarshalJSON implements custom JSON marshaling for Invoice so that the date
// field serializes in a stable format.
func (inv *Invoice) MarshalJSON() ([]byte, error) {
	type Alias Invoice
	return json.Marshal(&struct {
		TotalAmount string `json:"total_amount"`
		InvoiceDate string `json:"invoice_date"`
		*Alias
	}{
		TotalAmount: inv.TotalAmount.String(),
		InvoiceDate: inv.InvoiceDate.Format(time.RFC3339),
		Alias:       (*Alias)(inv),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Invoice
func (inv *Invoice) UnmarshalJSON(data []byte) error {
	type Alias Invoice
	aux := &struct {
		TotalAmount string `json:"total_amount"`
		InvoiceDate string `json:"invoice_date"`
		*Alias
	}{
		Alias: (*Alias)(inv),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	inv.TotalAmount, err = ParseDecimalFromString(aux.TotalAmount)
	if err != nil {
		return fmt.Errorf("invalid total amount: %w", err)
	}

	inv.InvoiceDate, err = ParseTimeWithFormats(aux.InvoiceDate)
	if err != nil {
		return fmt.Errorf("invalid invoice date: %w", err)
	}

	return nil
}

// Utility functions for parsing and comparison

// ParseDecimalFromString parses a decimal value from string with validation,
// stripping common currency symbols and thousand separators.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseTimeWithFormats attempts to parse time from string using multiple
// common formats seen in extracted invoice data.
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"01/02/2006",
		"2006/01/02",
		"Jan 2, 2006",
		"January 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// NormalizeVendorName canonicalizes a vendor name for comparison: lowercase,
// collapsed whitespace, punctuation and common legal suffixes stripped.
func NormalizeVendorName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))

	replacer := strings.NewReplacer(".", "", ",", "", "&", "and")
	normalized = replacer.Replace(normalized)

	suffixes := []string{"incorporated", "corporation", "limited", "company", "inc", "corp", "llc", "ltd", "gmbh", "co"}
	fields := strings.Fields(normalized)
	for len(fields) > 1 {
		last := fields[len(fields)-1]
		trimmed := false
		for _, suffix := range suffixes {
			if last == suffix {
				fields = fields[:len(fields)-1]
				trimmed = true
				break
			}
		}
		if !trimmed {
			break
		}
	}

	return strings.Join(fields, " ")
}

// DaysBetween returns the signed number of whole days from a to b
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// CompareAmountsWithTolerance compares two decimal amounts with a tolerance
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	return diff.LessThanOrEqual(tolerance)
}
