package risk

import (
	"context"
	"fmt"
	"math"
	"strings"

	pkgerrors "invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"

	"invoice-reconciliation-service/internal/models"
)

// InvoiceHistory provides read access to previously processed invoices for
// duplicate and anomaly detection.
type InvoiceHistory interface {
	// SearchByVendor returns up to limit historical invoices for the vendor
	// name, most recent first.
	SearchByVendor(ctx context.Context, vendorName string, limit int) ([]*models.Invoice, error)
}

// DuplicateDetector checks an invoice against the vendor's historical
// invoices using three tiers of evidence: content hash, invoice number and
// fuzzy amount-plus-date proximity.
type DuplicateDetector struct {
	history InvoiceHistory
	config  *Config
	logger  logger.Logger
}

// NewDuplicateDetector creates a duplicate detector backed by the given
// invoice history.
func NewDuplicateDetector(history InvoiceHistory, config *Config, log logger.Logger) *DuplicateDetector {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &DuplicateDetector{
		history: history,
		config:  config,
		logger:  log.WithComponent("duplicate_detector"),
	}
}

// Detect searches the vendor's history for a duplicate of the invoice.
// Tiers are checked in order of evidence strength and the first hit wins:
// an identical content hash or an identical invoice number inside the
// duplicate window is conclusive (confidence 1.0); a near-identical amount
// close in time yields a graded confidence that must clear the configured
// floor. A result with IsDuplicate false is not an error.
func (d *DuplicateDetector) Detect(ctx context.Context, invoice *models.Invoice) (*DuplicateInfo, error) {
	candidates, err := d.history.SearchByVendor(ctx, invoice.VendorName, d.config.HistoryLookupLimit)
	if err != nil {
		return nil, pkgerrors.RiskError(pkgerrors.CodeHistoryLookup, "duplicate_detector", err).
			WithContext("invoice_id", invoice.ID).
			WithContext("vendor_name", invoice.VendorName)
	}

	if info := d.detectByContentHash(invoice, candidates); info != nil {
		return info, nil
	}
	if info := d.detectByNumber(invoice, candidates); info != nil {
		return info, nil
	}
	if info := d.detectFuzzy(invoice, candidates); info != nil {
		return info, nil
	}

	return &DuplicateInfo{IsDuplicate: false}, nil
}

// detectByContentHash matches on identical extracted content.
func (d *DuplicateDetector) detectByContentHash(invoice *models.Invoice, candidates []*models.Invoice) *DuplicateInfo {
	if invoice.ContentHash == "" {
		return nil
	}

	for _, c := range candidates {
		if c.ID == invoice.ID || c.ContentHash == "" {
			continue
		}

		daysApart := absInt(models.DaysBetween(c.InvoiceDate, invoice.InvoiceDate))
		if c.ContentHash == invoice.ContentHash && daysApart <= d.config.DuplicateWindowDays {
			d.logger.WithFields(logger.Fields{
				"invoice_id":   invoice.ID,
				"duplicate_id": c.ID,
			}).Warn("Duplicate detected via content hash")

			return &DuplicateInfo{
				IsDuplicate:     true,
				Confidence:      1.0,
				Tier:            1,
				DuplicateID:     c.ID,
				DuplicateNumber: c.Number,
				DaysApart:       daysApart,
				Reason:          "identical content hash",
			}
		}
	}

	return nil
}

// detectByNumber matches on the same invoice number from the same vendor.
func (d *DuplicateDetector) detectByNumber(invoice *models.Invoice, candidates []*models.Invoice) *DuplicateInfo {
	number := strings.TrimSpace(strings.ToUpper(invoice.Number))
	if number == "" {
		return nil
	}

	for _, c := range candidates {
		if c.ID == invoice.ID {
			continue
		}

		daysApart := absInt(models.DaysBetween(c.InvoiceDate, invoice.InvoiceDate))
		if strings.TrimSpace(strings.ToUpper(c.Number)) == number && daysApart <= d.config.DuplicateWindowDays {
			d.logger.WithFields(logger.Fields{
				"invoice_id":     invoice.ID,
				"duplicate_id":   c.ID,
				"invoice_number": invoice.Number,
			}).Warn("Duplicate detected via invoice number")

			return &DuplicateInfo{
				IsDuplicate:     true,
				Confidence:      1.0,
				Tier:            2,
				DuplicateID:     c.ID,
				DuplicateNumber: c.Number,
				DaysApart:       daysApart,
				Reason:          fmt.Sprintf("invoice number %s already billed by this vendor", invoice.Number),
			}
		}
	}

	return nil
}

// detectFuzzy matches on a near-identical amount close in time. Confidence is
// the weighted combination of amount proximity and date proximity; only
// results clearing the configured floor are reported, the best one wins.
func (d *DuplicateDetector) detectFuzzy(invoice *models.Invoice, candidates []*models.Invoice) *DuplicateInfo {
	if invoice.TotalAmount.IsZero() {
		return nil
	}

	var best *DuplicateInfo
	for _, c := range candidates {
		if c.ID == invoice.ID || c.TotalAmount.IsZero() {
			continue
		}

		daysApart := absInt(models.DaysBetween(c.InvoiceDate, invoice.InvoiceDate))
		if daysApart > d.config.FuzzyDuplicateWindowDays {
			continue
		}

		amountDiff := invoice.TotalAmount.Sub(c.TotalAmount).Abs().Div(c.TotalAmount.Abs()).InexactFloat64()
		if amountDiff > d.config.FuzzyAmountTolerance {
			continue
		}

		amountScore := 1.0 - amountDiff/d.config.FuzzyAmountTolerance
		dateScore := 1.0 - float64(daysApart)/float64(d.config.FuzzyDuplicateWindowDays)
		confidence := 0.6*amountScore + 0.4*dateScore

		if confidence < d.config.FuzzyConfidenceFloor {
			continue
		}

		if best == nil || confidence > best.Confidence {
			best = &DuplicateInfo{
				IsDuplicate:     true,
				Confidence:      confidence,
				Tier:            3,
				DuplicateID:     c.ID,
				DuplicateNumber: c.Number,
				DaysApart:       daysApart,
				Reason: fmt.Sprintf("amount %s within %.0f%% of invoice %s from %d days earlier",
					invoice.TotalAmount.String(), d.config.FuzzyAmountTolerance*100, c.Number, daysApart),
			}
		}
	}

	if best != nil {
		d.logger.WithFields(logger.Fields{
			"invoice_id":   invoice.ID,
			"duplicate_id": best.DuplicateID,
			"confidence":   best.Confidence,
		}).Warn("Probable duplicate detected via amount and date proximity")
	}

	return best
}

func absInt(v int) int {
	return int(math.Abs(float64(v)))
}
