package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/workflow"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	// A plain :memory: database is per-connection; the pool would see
	// different databases. A throwaway file keeps the tests honest.
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func storeInvoice(id, number, vendor, amount string, date time.Time) *models.Invoice {
	return &models.Invoice{
		ID:          id,
		Number:      number,
		VendorName:  vendor,
		InvoiceDate: date,
		Currency:    "USD",
		TotalAmount: decimal.RequireFromString(amount),
		LineItems: []models.LineItem{
			{Description: "Industrial widget", Quantity: decimal.NewFromInt(1), Amount: decimal.RequireFromString(amount)},
		},
		ExtractionConfidence: 0.95,
	}
}

func mustSaveVendor(t *testing.T, s *Store, id, name string) {
	t.Helper()
	if err := s.SaveVendor(context.Background(), &models.Vendor{ID: id, Name: name}); err != nil {
		t.Fatalf("save vendor %s: %v", id, err)
	}
}

func TestInvoiceRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	invoice := storeInvoice("inv-1", "INV-1", "Acme Corp", "1500.00", date)
	invoice.PaymentTerms = "Net 30"
	invoice.ContentHash = "abc123"
	invoice.DueDate = date.AddDate(0, 1, 0)

	if err := s.SaveInvoice(ctx, invoice); err != nil {
		t.Fatalf("save invoice: %v", err)
	}

	got, err := s.GetInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if got == nil {
		t.Fatal("expected invoice, got nil")
	}
	if got.Number != invoice.Number || got.VendorName != invoice.VendorName {
		t.Errorf("got %s/%s, want %s/%s", got.Number, got.VendorName, invoice.Number, invoice.VendorName)
	}
	if !got.TotalAmount.Equal(invoice.TotalAmount) {
		t.Errorf("total amount = %s, want %s", got.TotalAmount, invoice.TotalAmount)
	}
	if !got.InvoiceDate.Equal(invoice.InvoiceDate) || !got.DueDate.Equal(invoice.DueDate) {
		t.Errorf("dates = %s/%s, want %s/%s", got.InvoiceDate, got.DueDate, invoice.InvoiceDate, invoice.DueDate)
	}
	if got.ContentHash != "abc123" || got.PaymentTerms != "Net 30" {
		t.Errorf("hash/terms = %s/%s, want abc123/Net 30", got.ContentHash, got.PaymentTerms)
	}
	if len(got.LineItems) != 1 {
		t.Errorf("line items = %d, want 1", len(got.LineItems))
	}
}

func TestGetInvoiceMissing(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetInvoice(context.Background(), "nope")
	if err != nil {
		t.Fatalf("missing invoice must not be an error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing invoice, got %+v", got)
	}
}

func TestSaveInvoiceIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	if err := s.SaveInvoice(ctx, storeInvoice("inv-1", "INV-1", "Acme Corp", "1500.00", date)); err != nil {
		t.Fatalf("save invoice: %v", err)
	}

	// A retried extraction with drifted fields must not overwrite the first.
	retry := storeInvoice("inv-1", "INV-1", "Acme Corp", "9999.00", date)
	if err := s.SaveInvoice(ctx, retry); err != nil {
		t.Fatalf("retried save: %v", err)
	}

	got, err := s.GetInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if !got.TotalAmount.Equal(decimal.RequireFromString("1500.00")) {
		t.Errorf("total amount = %s, want original 1500.00", got.TotalAmount)
	}
}

func TestSearchByVendor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	// Same vendor under two spellings that normalize identically.
	invoices := []*models.Invoice{
		storeInvoice("inv-1", "INV-1", "Acme Corp", "1000.00", date.AddDate(0, 0, -10)),
		storeInvoice("inv-2", "INV-2", "ACME Corporation", "1100.00", date),
		storeInvoice("inv-3", "INV-3", "Globex LLC", "900.00", date),
	}
	for _, invoice := range invoices {
		if err := s.SaveInvoice(ctx, invoice); err != nil {
			t.Fatalf("save %s: %v", invoice.ID, err)
		}
	}

	found, err := s.SearchByVendor(ctx, "Acme Corp", 10)
	if err != nil {
		t.Fatalf("search by vendor: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("found %d invoices, want 2", len(found))
	}
	if found[0].ID != "inv-2" {
		t.Errorf("first result = %s, want most recent inv-2", found[0].ID)
	}

	limited, err := s.SearchByVendor(ctx, "Acme Corp", 1)
	if err != nil {
		t.Fatalf("limited search: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited search returned %d, want 1", len(limited))
	}
}

func TestSearchVendors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustSaveVendor(t, s, "vendor-1", "Acme Corporation")
	mustSaveVendor(t, s, "vendor-2", "Acme Industries")
	mustSaveVendor(t, s, "vendor-3", "Globex LLC")

	found, err := s.SearchVendors(ctx, "Acme Corp", 10)
	if err != nil {
		t.Fatalf("search vendors: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("found %d vendors, want the 2 Acme entries", len(found))
	}
	for _, v := range found {
		if v.ID == "vendor-3" {
			t.Error("Globex should fall below the similarity floor")
		}
	}

	limited, err := s.SearchVendors(ctx, "Acme Corp", 1)
	if err != nil {
		t.Fatalf("limited search: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited search returned %d, want 1", len(limited))
	}

	exact, err := s.SearchVendors(ctx, "Globex LLC", 10)
	if err != nil {
		t.Fatalf("exact search: %v", err)
	}
	if len(exact) == 0 || exact[0].ID != "vendor-3" {
		t.Errorf("exact normalized match should rank first, got %+v", exact)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustSaveVendor(t, s, "vendor-1", "Acme Corporation")

	profile := &models.VendorRiskProfile{
		VendorID:             "vendor-1",
		RiskScore:            0.35,
		OnTimeRate:           0.82,
		InvoiceCount:         17,
		DaysSinceLastPayment: 45,
		HasUnresolvedFraud:   true,
		FraudFlagCount:       2,
		OnboardedAt:          time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.SaveProfile(ctx, profile); err != nil {
		t.Fatalf("save profile: %v", err)
	}

	got, err := s.GetProfile(ctx, "vendor-1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got == nil {
		t.Fatal("expected profile, got nil")
	}
	if got.RiskScore != 0.35 || got.OnTimeRate != 0.82 || got.InvoiceCount != 17 {
		t.Errorf("got %+v, want %+v", got, profile)
	}
	if !got.HasUnresolvedFraud || got.FraudFlagCount != 2 {
		t.Errorf("fraud fields = %v/%d, want true/2", got.HasUnresolvedFraud, got.FraudFlagCount)
	}
	if !got.OnboardedAt.Equal(profile.OnboardedAt) {
		t.Errorf("onboarded at = %s, want %s", got.OnboardedAt, profile.OnboardedAt)
	}

	missing, err := s.GetProfile(ctx, "vendor-unknown")
	if err != nil {
		t.Fatalf("missing profile must not be an error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing profile, got %+v", missing)
	}
}

func TestFindOpenPOs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mustSaveVendor(t, s, "vendor-1", "Acme Corporation")
	mustSaveVendor(t, s, "vendor-2", "Globex LLC")

	pos := []*models.PurchaseOrder{
		{Number: "PO-open", VendorID: "vendor-1", CreatedDate: created, Status: models.POStatusOpen, Currency: "USD", TotalAmount: decimal.RequireFromString("1000.00")},
		{Number: "PO-partial", VendorID: "vendor-1", CreatedDate: created.AddDate(0, 0, 3), Status: models.POStatusPartial, Currency: "USD", TotalAmount: decimal.RequireFromString("1100.00")},
		{Number: "PO-closed", VendorID: "vendor-1", CreatedDate: created, Status: models.POStatusClosed, Currency: "USD", TotalAmount: decimal.RequireFromString("1050.00")},
		{Number: "PO-expensive", VendorID: "vendor-1", CreatedDate: created, Status: models.POStatusOpen, Currency: "USD", TotalAmount: decimal.RequireFromString("5000.00")},
		{Number: "PO-other-vendor", VendorID: "vendor-2", CreatedDate: created, Status: models.POStatusOpen, Currency: "USD", TotalAmount: decimal.RequireFromString("1000.00")},
	}
	for _, po := range pos {
		if err := s.SavePurchaseOrder(ctx, po); err != nil {
			t.Fatalf("save %s: %v", po.Number, err)
		}
	}

	found, err := s.FindOpenPOs(ctx, "vendor-1",
		decimal.RequireFromString("900.00"), decimal.RequireFromString("1200.00"))
	if err != nil {
		t.Fatalf("find open POs: %v", err)
	}

	if len(found) != 2 {
		t.Fatalf("found %d POs, want 2, got %+v", len(found), found)
	}
	if found[0].Number != "PO-partial" {
		t.Errorf("first result = %s, want most recent PO-partial", found[0].Number)
	}
	for _, po := range found {
		if !po.Status.IsMatchable() {
			t.Errorf("PO %s in status %s is not matchable", po.Number, po.Status)
		}
	}
}

func TestResultRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	state := workflow.NewWorkflowState("inv-1")
	state.Status = workflow.StatusCompleted
	state.Decision = workflow.DecisionAutoApproved
	state.DecisionReason = "matched PO-1 with score 0.98 and low risk"

	if err := s.SaveResult(ctx, state); err != nil {
		t.Fatalf("save result: %v", err)
	}

	got, err := s.GetResultByInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if got == nil {
		t.Fatal("expected result, got nil")
	}
	if got.ID != state.ID || got.Decision != workflow.DecisionAutoApproved {
		t.Errorf("got %s/%s, want %s/AUTO_APPROVED", got.ID, got.Decision, state.ID)
	}
	if got.DecisionReason != state.DecisionReason {
		t.Errorf("decision reason = %q, want %q", got.DecisionReason, state.DecisionReason)
	}

	missing, err := s.GetResultByInvoice(ctx, "never-processed")
	if err != nil {
		t.Fatalf("missing result must not be an error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unprocessed invoice, got %+v", missing)
	}
}

func TestListResultsRequiringReview(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	approved := workflow.NewWorkflowState("inv-approved")
	approved.Status = workflow.StatusCompleted
	approved.Decision = workflow.DecisionAutoApproved

	flagged := workflow.NewWorkflowState("inv-flagged")
	flagged.Status = workflow.StatusCompleted
	flagged.Decision = workflow.DecisionRejected
	flagged.RequiresManualReview = true

	for _, state := range []*workflow.WorkflowState{approved, flagged} {
		if err := s.SaveResult(ctx, state); err != nil {
			t.Fatalf("save result for %s: %v", state.InvoiceID, err)
		}
	}

	queue, err := s.ListResultsRequiringReview(ctx, 10)
	if err != nil {
		t.Fatalf("list review queue: %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("queue length = %d, want 1", len(queue))
	}
	if queue[0].InvoiceID != "inv-flagged" {
		t.Errorf("queued invoice = %s, want inv-flagged", queue[0].InvoiceID)
	}
}
