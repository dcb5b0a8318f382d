package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	pkgerrors "invoice-reconciliation-service/pkg/errors"

	"invoice-reconciliation-service/internal/workflow"
)

// SaveResult persists one terminal workflow state. The full state is stored
// as JSON alongside the columns the API and reports query on. Implements
// workflow.ResultSink.
func (s *Store) SaveResult(ctx context.Context, state *workflow.WorkflowState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return pkgerrors.StorageError(pkgerrors.CodeSaveFailed, "marshal workflow state", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO workflow_results
		(id, invoice_id, status, decision, requires_manual_review, payload,
		 created_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		state.ID, state.InvoiceID, string(state.Status), string(state.Decision),
		boolToInt(state.RequiresManualReview), string(payload),
		state.CreatedAt.Format(time.RFC3339),
		formatNullableTime(state.CompletedAt))
	if err != nil {
		return pkgerrors.StorageError(pkgerrors.CodeSaveFailed, "insert workflow result", err).
			WithContext("workflow_id", state.ID)
	}
	return nil
}

// GetResultByInvoice returns the most recent workflow result for the
// invoice, or (nil, nil) when the invoice was never processed.
func (s *Store) GetResultByInvoice(ctx context.Context, invoiceID string) (*workflow.WorkflowState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM workflow_results
		 WHERE invoice_id = ?
		 ORDER BY created_at DESC
		 LIMIT 1`, invoiceID)

	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "get workflow result", err).
			WithContext("invoice_id", invoiceID)
	}

	var state workflow.WorkflowState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "unmarshal workflow state", err)
	}
	return &state, nil
}

// ListResultsRequiringReview returns the workflow results flagged for manual
// review, most recent first.
func (s *Store) ListResultsRequiringReview(ctx context.Context, limit int) ([]*workflow.WorkflowState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM workflow_results
		 WHERE requires_manual_review = 1
		 ORDER BY created_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "list review queue", err)
	}
	defer rows.Close()

	var states []*workflow.WorkflowState
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "scan workflow result row", err)
		}

		var state workflow.WorkflowState
		if err := json.Unmarshal([]byte(payload), &state); err != nil {
			return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "unmarshal workflow state", err)
		}
		states = append(states, &state)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "iterate workflow result rows", err)
	}

	return states, nil
}
