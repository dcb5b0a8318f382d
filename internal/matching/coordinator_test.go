package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/discrepancy"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/scoring"
)

type fakeVendorSearcher struct {
	vendors []*models.Vendor
	err     error
}

func (f *fakeVendorSearcher) SearchVendors(_ context.Context, _ string, limit int) ([]*models.Vendor, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.vendors) > limit {
		return f.vendors[:limit], nil
	}
	return f.vendors, nil
}

type fakePOFinder struct {
	pos []*models.PurchaseOrder
	err error
}

func (f *fakePOFinder) FindOpenPOs(_ context.Context, vendorID string, minAmount, maxAmount decimal.Decimal) ([]*models.PurchaseOrder, error) {
	if f.err != nil {
		return nil, f.err
	}

	var out []*models.PurchaseOrder
	for _, po := range f.pos {
		if po.VendorID != vendorID {
			continue
		}
		if po.TotalAmount.LessThan(minAmount) || po.TotalAmount.GreaterThan(maxAmount) {
			continue
		}
		out = append(out, po)
	}
	return out, nil
}

type fakeReasoner struct {
	verdict  Verdict
	err      error
	requests []*ReasonerRequest
}

func (f *fakeReasoner) Decide(_ context.Context, req *ReasonerRequest) (Verdict, error) {
	f.requests = append(f.requests, req)
	return f.verdict, f.err
}

func createMatchingInvoice(amount string) *models.Invoice {
	return &models.Invoice{
		ID:          "inv-1",
		Number:      "INV-2024-0001",
		VendorName:  "Acme Corp",
		InvoiceDate: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Currency:    "USD",
		TotalAmount: decimal.RequireFromString(amount),
		LineItems: []models.LineItem{
			{Description: "Industrial widget", Quantity: decimal.NewFromInt(10), Amount: decimal.RequireFromString(amount)},
		},
		ExtractionConfidence: 0.95,
	}
}

func createMatchingPO(number, amount string) *models.PurchaseOrder {
	return &models.PurchaseOrder{
		Number:      number,
		VendorID:    "vendor-1",
		CreatedDate: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Status:      models.POStatusOpen,
		Currency:    "USD",
		TotalAmount: decimal.RequireFromString(amount),
		LineItems: []models.POLineItem{
			{Description: "Industrial widget", Quantity: decimal.NewFromInt(10), Amount: decimal.RequireFromString(amount)},
		},
	}
}

func acmeVendor() *models.Vendor {
	return &models.Vendor{ID: "vendor-1", Name: "Acme Corporation"}
}

func TestMatchNoCandidates(t *testing.T) {
	coordinator := NewCoordinator(&fakeVendorSearcher{}, &fakePOFinder{}, nil, nil, nil)

	result, err := coordinator.MatchInvoiceToPO(context.Background(), createMatchingInvoice("1000.00"))
	if err != nil {
		t.Fatalf("no candidates must not be an error: %v", err)
	}

	if result.Matched {
		t.Error("expected unmatched result")
	}
	if !result.RequiresApproval {
		t.Error("unmatched invoices must require approval")
	}
	if result.MatchType != scoring.MatchNone {
		t.Errorf("match type = %s, want NONE", result.MatchType)
	}
	if result.Reason == "" {
		t.Error("expected a reason on the unmatched result")
	}
}

func TestMatchPerfect(t *testing.T) {
	searcher := &fakeVendorSearcher{vendors: []*models.Vendor{acmeVendor()}}
	finder := &fakePOFinder{pos: []*models.PurchaseOrder{createMatchingPO("PO-1", "1000.00")}}
	reasoner := &fakeReasoner{verdict: VerdictApprove}

	coordinator := NewCoordinator(searcher, finder, reasoner, nil, nil)
	result, err := coordinator.MatchInvoiceToPO(context.Background(), createMatchingInvoice("1000.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Matched {
		t.Fatal("expected a match")
	}
	if result.MatchType != scoring.MatchExact {
		t.Errorf("match type = %s, want EXACT (score %f)", result.MatchType, result.Scores.Overall)
	}
	if result.PONumber != "PO-1" {
		t.Errorf("matched PO = %s, want PO-1", result.PONumber)
	}
	if result.RequiresApproval {
		t.Error("exact clean match should not require approval")
	}
	if len(reasoner.requests) != 0 {
		t.Error("exact matches must not consult the reasoner")
	}
}

func TestMatchPicksBestCandidate(t *testing.T) {
	searcher := &fakeVendorSearcher{vendors: []*models.Vendor{acmeVendor()}}
	finder := &fakePOFinder{pos: []*models.PurchaseOrder{
		createMatchingPO("PO-close", "1040.00"),
		createMatchingPO("PO-exact", "1000.00"),
	}}

	coordinator := NewCoordinator(searcher, finder, nil, nil, nil)
	result, err := coordinator.MatchInvoiceToPO(context.Background(), createMatchingInvoice("1000.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.PONumber != "PO-exact" {
		t.Errorf("matched PO = %s, want PO-exact", result.PONumber)
	}
	if result.CandidateCount != 2 {
		t.Errorf("candidate count = %d, want 2", result.CandidateCount)
	}
}

func TestMatchReasonerPromotesPartial(t *testing.T) {
	// A 10% amount deviation lands the overall score in the PARTIAL band.
	searcher := &fakeVendorSearcher{vendors: []*models.Vendor{acmeVendor()}}
	finder := &fakePOFinder{pos: []*models.PurchaseOrder{createMatchingPO("PO-1", "1000.00")}}
	reasoner := &fakeReasoner{verdict: VerdictApprove}

	coordinator := NewCoordinator(searcher, finder, reasoner, nil, nil)
	result, err := coordinator.MatchInvoiceToPO(context.Background(), createMatchingInvoice("1100.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.AlgorithmicType != scoring.MatchPartial {
		t.Fatalf("algorithmic type = %s, want PARTIAL (score %f)", result.AlgorithmicType, result.Scores.Overall)
	}
	if len(reasoner.requests) != 1 {
		t.Fatalf("reasoner consultations = %d, want 1", len(reasoner.requests))
	}
	if result.MatchType != scoring.MatchFuzzy {
		t.Errorf("match type after APPROVE = %s, want FUZZY", result.MatchType)
	}
	if result.ReasonerVerdict != VerdictApprove {
		t.Errorf("verdict = %s, want APPROVE", result.ReasonerVerdict)
	}
}

func TestMatchReasonerDemotesPartial(t *testing.T) {
	searcher := &fakeVendorSearcher{vendors: []*models.Vendor{acmeVendor()}}
	finder := &fakePOFinder{pos: []*models.PurchaseOrder{createMatchingPO("PO-1", "1000.00")}}
	reasoner := &fakeReasoner{verdict: VerdictReviewRequired}

	coordinator := NewCoordinator(searcher, finder, reasoner, nil, nil)
	result, err := coordinator.MatchInvoiceToPO(context.Background(), createMatchingInvoice("1100.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.MatchType != scoring.MatchNone {
		t.Errorf("match type after REVIEW_REQUIRED = %s, want NONE", result.MatchType)
	}
	if result.Matched {
		t.Error("demotion to NONE must clear the matched flag")
	}
}

func TestMatchReasonerFailureKeepsAlgorithmicType(t *testing.T) {
	searcher := &fakeVendorSearcher{vendors: []*models.Vendor{acmeVendor()}}
	finder := &fakePOFinder{pos: []*models.PurchaseOrder{createMatchingPO("PO-1", "1000.00")}}
	reasoner := &fakeReasoner{err: errors.New("collaborator unreachable")}

	coordinator := NewCoordinator(searcher, finder, reasoner, nil, nil)
	result, err := coordinator.MatchInvoiceToPO(context.Background(), createMatchingInvoice("1100.00"))
	if err != nil {
		t.Fatalf("collaborator failure must not fail matching: %v", err)
	}

	if result.MatchType != result.AlgorithmicType {
		t.Errorf("match type = %s, want algorithmic %s kept", result.MatchType, result.AlgorithmicType)
	}
	if !result.ReasonerConsulted {
		t.Error("consultation should be recorded even on failure")
	}
}

func TestMatchNilReasonerKeepsAlgorithmicType(t *testing.T) {
	// Without a collaborator an ambiguous match must stay PARTIAL, never get
	// quietly promoted to a stronger classification.
	searcher := &fakeVendorSearcher{vendors: []*models.Vendor{acmeVendor()}}
	finder := &fakePOFinder{pos: []*models.PurchaseOrder{createMatchingPO("PO-1", "1000.00")}}

	coordinator := NewCoordinator(searcher, finder, nil, nil, nil)
	result, err := coordinator.MatchInvoiceToPO(context.Background(), createMatchingInvoice("1100.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.AlgorithmicType != scoring.MatchPartial {
		t.Fatalf("algorithmic type = %s, want PARTIAL (score %f)", result.AlgorithmicType, result.Scores.Overall)
	}
	if result.MatchType != scoring.MatchPartial {
		t.Errorf("match type = %s, want PARTIAL kept without a reasoner", result.MatchType)
	}
	if result.ReasonerConsulted {
		t.Error("no consultation should be recorded without a reasoner")
	}
	if result.ReasonerVerdict != "" {
		t.Errorf("verdict = %s, want empty without a reasoner", result.ReasonerVerdict)
	}
}

func TestMatchCriticalAmountDiscrepancyRequiresApproval(t *testing.T) {
	searcher := &fakeVendorSearcher{vendors: []*models.Vendor{acmeVendor()}}
	finder := &fakePOFinder{pos: []*models.PurchaseOrder{createMatchingPO("PO-1", "1000.00")}}

	coordinator := NewCoordinator(searcher, finder, nil, nil, nil)
	result, err := coordinator.MatchInvoiceToPO(context.Background(), createMatchingInvoice("1120.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := result.Discrepancies
	var amountDisc *discrepancy.Discrepancy
	for i := range d {
		if d[i].Type == discrepancy.TypeAmountMismatch {
			amountDisc = &d[i]
		}
	}
	if amountDisc == nil {
		t.Fatal("expected an amount discrepancy")
	}
	if amountDisc.Severity != discrepancy.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL for 12%% deviation", amountDisc.Severity)
	}
	if !result.RequiresApproval {
		t.Error("critical discrepancy must require approval")
	}
}

func TestMatchLookupFailure(t *testing.T) {
	searcher := &fakeVendorSearcher{err: errors.New("vendor store down")}
	coordinator := NewCoordinator(searcher, &fakePOFinder{}, nil, nil, nil)

	_, err := coordinator.MatchInvoiceToPO(context.Background(), createMatchingInvoice("1000.00"))
	if err == nil {
		t.Error("expected error when the vendor store is unavailable")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	bad := DefaultConfig()
	bad.AmountWindowPct = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero amount window")
	}
}
