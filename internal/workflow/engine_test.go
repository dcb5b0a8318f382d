package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/matching"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/risk"
)

type fakeLoader struct {
	invoices map[string]*models.Invoice
	err      error
}

func (f *fakeLoader) GetInvoice(_ context.Context, invoiceID string) (*models.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.invoices[invoiceID], nil
}

type fakeSink struct {
	saved []*WorkflowState
	err   error
}

func (f *fakeSink) SaveResult(_ context.Context, state *WorkflowState) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, state)
	return nil
}

type fakeVendors struct {
	vendors []*models.Vendor
	err     error
}

func (f *fakeVendors) SearchVendors(_ context.Context, _ string, limit int) ([]*models.Vendor, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.vendors) > limit {
		return f.vendors[:limit], nil
	}
	return f.vendors, nil
}

type fakePOs struct {
	pos []*models.PurchaseOrder
}

func (f *fakePOs) FindOpenPOs(_ context.Context, vendorID string, minAmount, maxAmount decimal.Decimal) ([]*models.PurchaseOrder, error) {
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

type fakeHistory struct {
	invoices []*models.Invoice
}

func (f *fakeHistory) SearchByVendor(_ context.Context, _ string, limit int) ([]*models.Invoice, error) {
	if len(f.invoices) > limit {
		return f.invoices[:limit], nil
	}
	return f.invoices, nil
}

type crashingHistory struct{}

func (crashingHistory) SearchByVendor(_ context.Context, _ string, _ int) ([]*models.Invoice, error) {
	panic("history store corrupted")
}

type fakeProfiles struct {
	profiles map[string]*models.VendorRiskProfile
}

func (f *fakeProfiles) GetProfile(_ context.Context, vendorID string) (*models.VendorRiskProfile, error) {
	return f.profiles[vendorID], nil
}

func testInvoice(id, number, amount string, date time.Time) *models.Invoice {
	return &models.Invoice{
		ID:          id,
		Number:      number,
		VendorName:  "Acme Corp",
		InvoiceDate: date,
		Currency:    "USD",
		TotalAmount: decimal.RequireFromString(amount),
		LineItems: []models.LineItem{
			{Description: "Industrial widget", Quantity: decimal.NewFromInt(1), Amount: decimal.RequireFromString(amount)},
		},
		ExtractionConfidence: 0.95,
	}
}

func testPO(number, amount string, created time.Time) *models.PurchaseOrder {
	return &models.PurchaseOrder{
		Number:      number,
		VendorID:    "vendor-1",
		CreatedDate: created,
		Status:      models.POStatusOpen,
		Currency:    "USD",
		TotalAmount: decimal.RequireFromString(amount),
		LineItems: []models.POLineItem{
			{Description: "Industrial widget", Quantity: decimal.NewFromInt(1), Amount: decimal.RequireFromString(amount)},
		},
	}
}

func goodProfile(vendorID string) *models.VendorRiskProfile {
	return &models.VendorRiskProfile{
		VendorID:             vendorID,
		RiskScore:            0.10,
		OnTimeRate:           0.96,
		InvoiceCount:         40,
		DaysSinceLastPayment: 12,
		OnboardedAt:          time.Now().AddDate(-3, 0, 0),
	}
}

func newTestEngine(loader InvoiceLoader, sink ResultSink, vendors matching.VendorSearcher, pos matching.POFinder, history risk.InvoiceHistory, profiles risk.ProfileStore) *Engine {
	matcher := matching.NewCoordinator(vendors, pos, nil, nil, nil)
	risks := risk.NewCoordinator(history, profiles, nil, nil)
	return NewEngine(loader, sink, matcher, risks, nil, nil)
}

func TestProcessInvoiceNotFound(t *testing.T) {
	engine := newTestEngine(
		&fakeLoader{invoices: map[string]*models.Invoice{}},
		&fakeSink{},
		&fakeVendors{}, &fakePOs{}, &fakeHistory{}, &fakeProfiles{},
	)

	state := engine.Process(context.Background(), "missing")

	if state.Status != StatusFailed {
		t.Errorf("status = %s, want FAILED", state.Status)
	}
	if state.Decision != DecisionRequiresReview {
		t.Errorf("decision = %s, want REQUIRES_REVIEW", state.Decision)
	}
	if !state.RequiresManualReview {
		t.Error("expected manual review on the failure path")
	}
	if !state.StageFailed(stageExtract) {
		t.Error("extract stage should be recorded as failed")
	}
	if state.DecisionReason == "" {
		t.Error("expected a decision reason")
	}
}

func TestProcessExtractionIncomplete(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	invoice := testInvoice("inv-1", "INV-1", "1000.00", date)
	invoice.ExtractionConfidence = 0.30

	engine := newTestEngine(
		&fakeLoader{invoices: map[string]*models.Invoice{"inv-1": invoice}},
		&fakeSink{},
		&fakeVendors{}, &fakePOs{}, &fakeHistory{}, &fakeProfiles{},
	)

	state := engine.Process(context.Background(), "inv-1")

	if state.Status != StatusFailed {
		t.Errorf("status = %s, want FAILED", state.Status)
	}
	if state.Decision != DecisionRequiresReview {
		t.Errorf("decision = %s, want REQUIRES_REVIEW", state.Decision)
	}
	if state.Matching != nil || state.Risk != nil {
		t.Error("no downstream stage should run for an incomplete extraction")
	}
}

func TestProcessAutoApprove(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	invoice := testInvoice("inv-1", "INV-1", "5137.50", date)

	sink := &fakeSink{}
	engine := newTestEngine(
		&fakeLoader{invoices: map[string]*models.Invoice{"inv-1": invoice}},
		sink,
		&fakeVendors{vendors: []*models.Vendor{{ID: "vendor-1", Name: "Acme Corporation"}}},
		&fakePOs{pos: []*models.PurchaseOrder{testPO("PO-1", "5137.50", date)}},
		&fakeHistory{invoices: []*models.Invoice{
			testInvoice("h1", "INV-H1", "5000.00", date.AddDate(0, -4, 0)),
			testInvoice("h2", "INV-H2", "5300.00", date.AddDate(0, -3, 0)),
			testInvoice("h3", "INV-H3", "4900.00", date.AddDate(0, -2, 0)),
		}},
		&fakeProfiles{profiles: map[string]*models.VendorRiskProfile{"vendor-1": goodProfile("vendor-1")}},
	)

	state := engine.Process(context.Background(), "inv-1")

	if state.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", state.Status)
	}
	if state.Decision != DecisionAutoApproved {
		t.Fatalf("decision = %s (%s), want AUTO_APPROVED", state.Decision, state.DecisionReason)
	}
	if state.RequiresManualReview {
		t.Error("auto approved invoices must not require manual review")
	}
	for _, stage := range []string{stageExtract, stageMatch, stageRisk, stageDecide} {
		if state.StageFailed(stage) {
			t.Errorf("stage %s recorded as failed", stage)
		}
	}
	if len(sink.saved) != 1 {
		t.Errorf("persisted states = %d, want 1", len(sink.saved))
	}
}

func TestProcessRejectsDuplicate(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	invoice := testInvoice("inv-1", "INV-1", "3200.00", date)

	engine := newTestEngine(
		&fakeLoader{invoices: map[string]*models.Invoice{"inv-1": invoice}},
		&fakeSink{},
		&fakeVendors{}, &fakePOs{},
		&fakeHistory{invoices: []*models.Invoice{
			testInvoice("inv-paid", "INV-1", "3200.00", date.AddDate(0, 0, -5)),
		}},
		&fakeProfiles{},
	)

	state := engine.Process(context.Background(), "inv-1")

	if state.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", state.Status)
	}
	if state.Decision != DecisionRejected {
		t.Errorf("decision = %s, want REJECTED", state.Decision)
	}
	if !state.RequiresManualReview {
		t.Error("rejections must require manual review")
	}
	if state.Risk == nil || !state.Risk.IsDuplicate() {
		t.Error("expected a duplicate finding on the risk assessment")
	}
}

func TestProcessEscalatesPriceAnomaly(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	// Roughly double the vendor's historical amounts: one critical flag,
	// overall risk still low, so the cascade escalates instead of rejecting.
	invoice := testInvoice("inv-1", "INV-1", "2000.00", date)

	engine := newTestEngine(
		&fakeLoader{invoices: map[string]*models.Invoice{"inv-1": invoice}},
		&fakeSink{},
		&fakeVendors{vendors: []*models.Vendor{{ID: "vendor-1", Name: "Acme Corporation"}}},
		&fakePOs{pos: []*models.PurchaseOrder{testPO("PO-1", "2000.00", date)}},
		&fakeHistory{invoices: []*models.Invoice{
			testInvoice("h1", "INV-H1", "950.00", date.AddDate(0, -4, 0)),
			testInvoice("h2", "INV-H2", "1000.00", date.AddDate(0, -3, 0)),
			testInvoice("h3", "INV-H3", "1050.00", date.AddDate(0, -2, 0)),
			testInvoice("h4", "INV-H4", "1000.00", date.AddDate(0, -1, 0)),
		}},
		&fakeProfiles{profiles: map[string]*models.VendorRiskProfile{"vendor-1": goodProfile("vendor-1")}},
	)

	state := engine.Process(context.Background(), "inv-1")

	if state.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", state.Status)
	}
	if state.Decision != DecisionEscalated {
		t.Errorf("decision = %s (%s), want ESCALATED", state.Decision, state.DecisionReason)
	}
	if state.Risk == nil || state.Risk.CountFlags(risk.FlagCritical) != 1 {
		t.Error("expected exactly one critical risk flag")
	}
	if state.Matching == nil || !state.Matching.Matched {
		t.Error("the perfect match should still be recorded alongside the escalation")
	}
}

func TestProcessDoubleFailure(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	invoice := testInvoice("inv-1", "INV-1", "1000.00", date)

	// Matching fails on the vendor store; the cancelled context takes down
	// risk assessment. With neither result there is nothing to decide on.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := newTestEngine(
		&fakeLoader{invoices: map[string]*models.Invoice{"inv-1": invoice}},
		&fakeSink{},
		&fakeVendors{err: errors.New("vendor store down")},
		&fakePOs{}, &fakeHistory{}, &fakeProfiles{},
	)

	state := engine.Process(ctx, "inv-1")

	if state.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", state.Status)
	}
	if state.Decision != DecisionRequiresReview {
		t.Errorf("decision = %s, want REQUIRES_REVIEW", state.Decision)
	}
	if state.Matching != nil || state.Risk != nil {
		t.Error("expected both pipeline results absent")
	}
	if !state.StageFailed(stageMatch) || !state.StageFailed(stageRisk) {
		t.Error("both stage failures should be on the audit trail")
	}
}

func TestProcessSurvivesDetectorPanic(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	invoice := testInvoice("inv-1", "INV-1", "5137.50", date)

	// A panicking history store takes down the duplicate and price detectors.
	// The run must still reach a terminal state with the failures recorded as
	// degraded detectors, not crash.
	sink := &fakeSink{}
	engine := newTestEngine(
		&fakeLoader{invoices: map[string]*models.Invoice{"inv-1": invoice}},
		sink,
		&fakeVendors{vendors: []*models.Vendor{{ID: "vendor-1", Name: "Acme Corporation"}}},
		&fakePOs{pos: []*models.PurchaseOrder{testPO("PO-1", "5137.50", date)}},
		crashingHistory{},
		&fakeProfiles{profiles: map[string]*models.VendorRiskProfile{"vendor-1": goodProfile("vendor-1")}},
	)

	state := engine.Process(context.Background(), "inv-1")

	if state.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", state.Status)
	}
	if state.Risk == nil {
		t.Fatal("expected a risk assessment built from the surviving detectors")
	}
	if got := len(state.Risk.DegradedDetectors); got != 2 {
		t.Errorf("degraded detectors = %d (%v), want 2", got, state.Risk.DegradedDetectors)
	}
	if state.Decision == "" {
		t.Error("expected a decision despite the detector failures")
	}
	if len(sink.saved) != 1 {
		t.Errorf("persisted states = %d, want 1", len(sink.saved))
	}
}

func TestProcessSinkFailureKeepsDecision(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	invoice := testInvoice("inv-1", "INV-1", "5137.50", date)

	engine := newTestEngine(
		&fakeLoader{invoices: map[string]*models.Invoice{"inv-1": invoice}},
		&fakeSink{err: errors.New("disk full")},
		&fakeVendors{vendors: []*models.Vendor{{ID: "vendor-1", Name: "Acme Corporation"}}},
		&fakePOs{pos: []*models.PurchaseOrder{testPO("PO-1", "5137.50", date)}},
		&fakeHistory{invoices: []*models.Invoice{
			testInvoice("h1", "INV-H1", "5000.00", date.AddDate(0, -4, 0)),
			testInvoice("h2", "INV-H2", "5300.00", date.AddDate(0, -3, 0)),
			testInvoice("h3", "INV-H3", "4900.00", date.AddDate(0, -2, 0)),
		}},
		&fakeProfiles{profiles: map[string]*models.VendorRiskProfile{"vendor-1": goodProfile("vendor-1")}},
	)

	state := engine.Process(context.Background(), "inv-1")

	if state.Status != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED despite sink failure", state.Status)
	}
	if state.Decision != DecisionAutoApproved {
		t.Errorf("decision = %s, want AUTO_APPROVED despite sink failure", state.Decision)
	}
	if !state.StageFailed(stagePersist) {
		t.Error("persist failure should be on the audit trail")
	}
}

func TestProcessIsRepeatable(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	invoice := testInvoice("inv-1", "INV-1", "5137.50", date)

	sink := &fakeSink{}
	engine := newTestEngine(
		&fakeLoader{invoices: map[string]*models.Invoice{"inv-1": invoice}},
		sink,
		&fakeVendors{vendors: []*models.Vendor{{ID: "vendor-1", Name: "Acme Corporation"}}},
		&fakePOs{pos: []*models.PurchaseOrder{testPO("PO-1", "5137.50", date)}},
		&fakeHistory{},
		&fakeProfiles{profiles: map[string]*models.VendorRiskProfile{"vendor-1": goodProfile("vendor-1")}},
	)

	first := engine.Process(context.Background(), "inv-1")
	second := engine.Process(context.Background(), "inv-1")

	if first.Decision != second.Decision {
		t.Errorf("decisions differ across runs: %s vs %s", first.Decision, second.Decision)
	}
	if first.ID == second.ID {
		t.Error("each run must get its own workflow id")
	}
	if len(sink.saved) != 2 {
		t.Errorf("persisted states = %d, want 2", len(sink.saved))
	}
}
