package scoring

import (
	"testing"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/models"
)

func TestMatchLineItemsIdentical(t *testing.T) {
	engine := NewEngine(nil)
	invoice := createTestInvoice()
	po := createTestPO()

	matches, score := engine.MatchLineItems(invoice.LineItems, po.LineItems)

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if score < 0.99 {
		t.Errorf("identical line items score = %f, want ~1.0", score)
	}
	for _, m := range matches {
		if m.InvoiceIndex != m.POIndex {
			t.Errorf("line %d assigned to PO line %d, want same index", m.InvoiceIndex, m.POIndex)
		}
	}
}

func TestMatchLineItemsConsumesPOLines(t *testing.T) {
	engine := NewEngine(nil)

	// Two identical invoice lines, one PO line: only one can claim it.
	invoiceItems := []models.LineItem{
		{Description: "Industrial widget", Quantity: decimal.NewFromInt(10), Amount: decimal.RequireFromString("1000.00")},
		{Description: "Industrial widget", Quantity: decimal.NewFromInt(10), Amount: decimal.RequireFromString("1000.00")},
	}
	poItems := []models.POLineItem{
		{Description: "Industrial widget", Quantity: decimal.NewFromInt(10), Amount: decimal.RequireFromString("1000.00")},
	}

	matches, _ := engine.MatchLineItems(invoiceItems, poItems)

	if len(matches) != 1 {
		t.Fatalf("expected exactly 1 match, got %d", len(matches))
	}
	if matches[0].InvoiceIndex != 0 {
		t.Errorf("first invoice line should claim the PO line, got index %d", matches[0].InvoiceIndex)
	}
}

func TestMatchLineItemsDropsPoorCandidates(t *testing.T) {
	engine := NewEngine(nil)

	invoiceItems := []models.LineItem{
		{Description: "Catering services for annual meeting", Quantity: decimal.NewFromInt(1), Amount: decimal.RequireFromString("4000.00")},
	}
	poItems := []models.POLineItem{
		{Description: "Industrial widget", Quantity: decimal.NewFromInt(500), Amount: decimal.RequireFromString("150.00")},
	}

	matches, score := engine.MatchLineItems(invoiceItems, poItems)

	if len(matches) != 0 {
		t.Errorf("expected no matches for unrelated lines, got %d", len(matches))
	}
	if score != 0.0 {
		t.Errorf("score = %f, want 0 with no matches", score)
	}
}

func TestMatchLineItemsEmptyInputs(t *testing.T) {
	engine := NewEngine(nil)
	po := createTestPO()

	if matches, score := engine.MatchLineItems(nil, po.LineItems); matches != nil || score != 0.0 {
		t.Error("expected nil matches and zero score for empty invoice lines")
	}
	if matches, score := engine.MatchLineItems(createTestInvoice().LineItems, nil); matches != nil || score != 0.0 {
		t.Error("expected nil matches and zero score for empty PO lines")
	}
}

func TestUnmatchedInvoiceLines(t *testing.T) {
	matches := []LineItemMatch{
		{InvoiceIndex: 0, Matched: true},
		{InvoiceIndex: 2, Matched: false},
	}

	unmatched := UnmatchedInvoiceLines(3, matches)

	if len(unmatched) != 2 {
		t.Fatalf("expected 2 unmatched lines, got %d", len(unmatched))
	}
	if unmatched[0] != 1 || unmatched[1] != 2 {
		t.Errorf("unmatched = %v, want [1 2]", unmatched)
	}
}
