package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "invoice-reconciliation-service/pkg/errors"

	"invoice-reconciliation-service/internal/models"
)

// SavePurchaseOrder stores one purchase order
func (s *Store) SavePurchaseOrder(ctx context.Context, po *models.PurchaseOrder) error {
	lineItems, err := json.Marshal(po.LineItems)
	if err != nil {
		return pkgerrors.StorageError(pkgerrors.CodeSaveFailed, "marshal PO line items", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO purchase_orders
		(number, vendor_id, created_date, status, currency, payment_terms,
		 total_amount, line_items)
		VALUES (?,?,?,?,?,?,?,?)`,
		po.Number, po.VendorID, po.CreatedDate.Format(time.RFC3339),
		string(po.Status), po.Currency, po.PaymentTerms,
		po.TotalAmount.String(), string(lineItems))
	if err != nil {
		return pkgerrors.StorageError(pkgerrors.CodeSaveFailed, "insert purchase order", err).
			WithContext("po_number", po.Number)
	}
	return nil
}

// FindOpenPOs returns the vendor's matchable purchase orders with totals
// inside [minAmount, maxAmount]. Implements matching.POFinder.
func (s *Store) FindOpenPOs(ctx context.Context, vendorID string, minAmount, maxAmount decimal.Decimal) ([]*models.PurchaseOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT number, vendor_id, created_date, status, currency,
		        payment_terms, total_amount, line_items
		 FROM purchase_orders
		 WHERE vendor_id = ?
		   AND status IN (?, ?)
		   AND CAST(total_amount AS REAL) BETWEEN ? AND ?
		 ORDER BY created_date DESC`,
		vendorID, string(models.POStatusOpen), string(models.POStatusPartial),
		minAmount.InexactFloat64(), maxAmount.InexactFloat64())
	if err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "find open purchase orders", err).
			WithContext("vendor_id", vendorID)
	}
	defer rows.Close()

	var pos []*models.PurchaseOrder
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "scan purchase order row", err)
		}
		pos = append(pos, po)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "iterate purchase order rows", err)
	}

	return pos, nil
}

func scanPurchaseOrder(rows *sql.Rows) (*models.PurchaseOrder, error) {
	var (
		po           models.PurchaseOrder
		createdDate  string
		status       string
		paymentTerms sql.NullString
		totalAmount  string
		lineItems    string
	)

	err := rows.Scan(&po.Number, &po.VendorID, &createdDate, &status,
		&po.Currency, &paymentTerms, &totalAmount, &lineItems)
	if err != nil {
		return nil, err
	}

	po.Status = models.POStatus(status)
	po.PaymentTerms = paymentTerms.String

	po.CreatedDate, err = time.Parse(time.RFC3339, createdDate)
	if err != nil {
		return nil, fmt.Errorf("parse created date: %w", err)
	}

	po.TotalAmount, err = models.ParseDecimalFromString(totalAmount)
	if err != nil {
		return nil, fmt.Errorf("parse total amount: %w", err)
	}

	if err := json.Unmarshal([]byte(lineItems), &po.LineItems); err != nil {
		return nil, fmt.Errorf("unmarshal line items: %w", err)
	}

	return &po, nil
}
