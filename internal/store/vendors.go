package store

import (
	"context"
	"database/sql"
	"sort"
	"time"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	pkgerrors "invoice-reconciliation-service/pkg/errors"

	"invoice-reconciliation-service/internal/models"
)

// vendorSearchFloor is the minimum similarity (0-100) for a vendor to count
// as a search candidate.
const vendorSearchFloor = 60

// SaveVendor stores one vendor master record
func (s *Store) SaveVendor(ctx context.Context, vendor *models.Vendor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO vendors (id, name, normalized_name) VALUES (?,?,?)`,
		vendor.ID, vendor.Name, models.NormalizeVendorName(vendor.Name))
	if err != nil {
		return pkgerrors.StorageError(pkgerrors.CodeSaveFailed, "insert vendor", err).
			WithContext("vendor_id", vendor.ID)
	}
	return nil
}

// SearchVendors returns up to limit vendors ranked by name similarity to the
// query. Implements matching.VendorSearcher. An exact normalized match ranks
// first; the rest are ordered by the better of token-sorted and partial
// ratio. The vendor master is small enough to rank in memory.
func (s *Store) SearchVendors(ctx context.Context, name string, limit int) ([]*models.Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, normalized_name FROM vendors`)
	if err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "list vendors", err)
	}
	defer rows.Close()

	query := models.NormalizeVendorName(name)

	type ranked struct {
		vendor *models.Vendor
		score  int
	}

	var candidates []ranked
	for rows.Next() {
		var vendor models.Vendor
		var normalized string
		if err := rows.Scan(&vendor.ID, &vendor.Name, &normalized); err != nil {
			return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "scan vendor row", err)
		}

		score := 100
		if normalized != query {
			score = fuzzy.TokenSortRatio(query, normalized)
			if r := fuzzy.PartialRatio(query, normalized); r > score {
				score = r
			}
		}
		if score < vendorSearchFloor {
			continue
		}

		candidates = append(candidates, ranked{vendor: &vendor, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "iterate vendor rows", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	vendors := make([]*models.Vendor, 0, len(candidates))
	for _, c := range candidates {
		vendors = append(vendors, c.vendor)
	}
	return vendors, nil
}

// SaveProfile stores one vendor risk profile
func (s *Store) SaveProfile(ctx context.Context, profile *models.VendorRiskProfile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO vendor_profiles
		(vendor_id, risk_score, on_time_rate, invoice_count,
		 days_since_last_payment, has_unresolved_fraud, fraud_flag_count, onboarded_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		profile.VendorID, profile.RiskScore, profile.OnTimeRate,
		profile.InvoiceCount, profile.DaysSinceLastPayment,
		boolToInt(profile.HasUnresolvedFraud), profile.FraudFlagCount,
		formatNullableTime(profile.OnboardedAt))
	if err != nil {
		return pkgerrors.StorageError(pkgerrors.CodeSaveFailed, "insert vendor profile", err).
			WithContext("vendor_id", profile.VendorID)
	}
	return nil
}

// GetProfile retrieves the risk profile for a vendor. Returns (nil, nil)
// when none exists, per the risk.ProfileStore contract.
func (s *Store) GetProfile(ctx context.Context, vendorID string) (*models.VendorRiskProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT vendor_id, risk_score, on_time_rate, invoice_count,
		        days_since_last_payment, has_unresolved_fraud,
		        fraud_flag_count, onboarded_at
		 FROM vendor_profiles WHERE vendor_id = ?`, vendorID)

	var (
		profile     models.VendorRiskProfile
		fraud       int
		onboardedAt sql.NullString
	)
	err := row.Scan(&profile.VendorID, &profile.RiskScore, &profile.OnTimeRate,
		&profile.InvoiceCount, &profile.DaysSinceLastPayment, &fraud,
		&profile.FraudFlagCount, &onboardedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "get vendor profile", err).
			WithContext("vendor_id", vendorID)
	}

	profile.HasUnresolvedFraud = fraud != 0
	if onboardedAt.Valid && onboardedAt.String != "" {
		profile.OnboardedAt, err = time.Parse(time.RFC3339, onboardedAt.String)
		if err != nil {
			return nil, pkgerrors.StorageError(pkgerrors.CodeQueryFailed, "parse onboarded date", err)
		}
	}

	return &profile, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
