package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	pkgerrors "invoice-reconciliation-service/pkg/errors"

	"invoice-reconciliation-service/internal/models"
)

// SaveInvoice stores one extracted invoice. Inserting the same id twice is a
// no-op so extraction retries stay idempotent.
func (s *Store) SaveInvoice(ctx context.Context, invoice *models.Invoice) error {
	lineItems, err := json.Marshal(invoice.LineItems)
	if err != nil {
		return pkgerrors.StorageError(pkgerrors.CodeSaveFailed, "marshal invoice line items", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO invoices
		(id, number, vendor_name, normalized_vendor, invoice_date, due_date,
		 currency, payment_terms, total_amount, extraction_confidence,
		 content_hash, line_items, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		invoice.ID, invoice.Number, invoice.VendorName,
		models.NormalizeVendorName(invoice.VendorName),
		invoice.InvoiceDate.Format(time.RFC3339),
		formatNullableTime(invoice.DueDate),
		invoice.Currency, invoice.PaymentTerms,
		invoice.TotalAmount.String(), invoice.ExtractionConfidence,
		invoice.ContentHash, string(lineItems),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return pkgerrors.StorageError(pkgerrors.CodeSaveFailed, "insert invoice", err).
			WithContext("invoice_id", invoice.ID)
	}
	return nil
}

// GetInvoice retrieves one invoice by id. Returns (nil, nil) when no invoice
// exists, per the workflow.InvoiceLoader contract.
func (s *Store) GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, number, vendor_name, invoice_date, due_date, currency,
		        payment_terms, total_amount, extraction_confidence,
		        content_hash, line_items
		 FROM invoices WHERE id = ?`, invoiceID)

	invoice, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "get invoice", err).
			WithContext("invoice_id", invoiceID)
	}
	return invoice, nil
}

// SearchByVendor returns up to limit invoices for the normalized vendor
// name, most recent invoice date first. Implements risk.InvoiceHistory.
func (s *Store) SearchByVendor(ctx context.Context, vendorName string, limit int) ([]*models.Invoice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, number, vendor_name, invoice_date, due_date, currency,
		        payment_terms, total_amount, extraction_confidence,
		        content_hash, line_items
		 FROM invoices
		 WHERE normalized_vendor = ?
		 ORDER BY invoice_date DESC
		 LIMIT ?`,
		models.NormalizeVendorName(vendorName), limit)
	if err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "search invoices by vendor", err).
			WithContext("vendor_name", vendorName)
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "scan invoice row", err)
		}
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "iterate invoice rows", err)
	}

	return invoices, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var (
		invoice      models.Invoice
		invoiceDate  string
		dueDate      sql.NullString
		totalAmount  string
		paymentTerms sql.NullString
		contentHash  sql.NullString
		lineItems    string
	)

	err := row.Scan(&invoice.ID, &invoice.Number, &invoice.VendorName,
		&invoiceDate, &dueDate, &invoice.Currency, &paymentTerms,
		&totalAmount, &invoice.ExtractionConfidence, &contentHash, &lineItems)
	if err != nil {
		return nil, err
	}

	invoice.PaymentTerms = paymentTerms.String
	invoice.ContentHash = contentHash.String

	invoice.InvoiceDate, err = time.Parse(time.RFC3339, invoiceDate)
	if err != nil {
		return nil, fmt.Errorf("parse invoice date: %w", err)
	}
	if dueDate.Valid && dueDate.String != "" {
		invoice.DueDate, err = time.Parse(time.RFC3339, dueDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse due date: %w", err)
		}
	}

	invoice.TotalAmount, err = models.ParseDecimalFromString(totalAmount)
	if err != nil {
		return nil, fmt.Errorf("parse total amount: %w", err)
	}

	if err := json.Unmarshal([]byte(lineItems), &invoice.LineItems); err != nil {
		return nil, fmt.Errorf("unmarshal line items: %w", err)
	}

	return &invoice, nil
}

func formatNullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339)
}
