// Package store provides the SQLite-backed persistence layer: extracted
// invoices, the vendor master, purchase orders, vendor risk profiles and
// terminal workflow results. It implements every collaborator interface the
// pipeline consumes.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"invoice-reconciliation-service/pkg/logger"
)

// Store wraps the database handle and implements the pipeline's collaborator
// interfaces: workflow.InvoiceLoader, workflow.ResultSink,
// matching.VendorSearcher, matching.POFinder, risk.InvoiceHistory and
// risk.ProfileStore.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func Open(dsn string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db, logger: log.WithComponent("store")}, nil
}

// Close closes the underlying database handle
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS invoices (
			id TEXT PRIMARY KEY,
			number TEXT NOT NULL,
			vendor_name TEXT NOT NULL,
			normalized_vendor TEXT NOT NULL,
			invoice_date DATETIME NOT NULL,
			due_date DATETIME,
			currency TEXT NOT NULL,
			payment_terms TEXT,
			total_amount TEXT NOT NULL,
			extraction_confidence REAL NOT NULL,
			content_hash TEXT,
			line_items TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_normalized_vendor ON invoices(normalized_vendor)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_number ON invoices(number)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_content_hash ON invoices(content_hash)`,

		`CREATE TABLE IF NOT EXISTS vendors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			normalized_name TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vendors_normalized_name ON vendors(normalized_name)`,

		`CREATE TABLE IF NOT EXISTS vendor_profiles (
			vendor_id TEXT PRIMARY KEY,
			risk_score REAL NOT NULL,
			on_time_rate REAL NOT NULL,
			invoice_count INTEGER NOT NULL,
			days_since_last_payment INTEGER NOT NULL,
			has_unresolved_fraud INTEGER NOT NULL,
			fraud_flag_count INTEGER NOT NULL,
			onboarded_at DATETIME,
			FOREIGN KEY (vendor_id) REFERENCES vendors(id)
		)`,

		`CREATE TABLE IF NOT EXISTS purchase_orders (
			number TEXT PRIMARY KEY,
			vendor_id TEXT NOT NULL,
			created_date DATETIME NOT NULL,
			status TEXT NOT NULL,
			currency TEXT NOT NULL,
			payment_terms TEXT,
			total_amount TEXT NOT NULL,
			line_items TEXT NOT NULL,
			FOREIGN KEY (vendor_id) REFERENCES vendors(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_purchase_orders_vendor ON purchase_orders(vendor_id)`,
		`CREATE INDEX IF NOT EXISTS idx_purchase_orders_status ON purchase_orders(status)`,

		`CREATE TABLE IF NOT EXISTS workflow_results (
			id TEXT PRIMARY KEY,
			invoice_id TEXT NOT NULL,
			status TEXT NOT NULL,
			decision TEXT NOT NULL,
			requires_manual_review INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_results_invoice ON workflow_results(invoice_id)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_results_decision ON workflow_results(decision)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
