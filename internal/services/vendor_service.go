package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/souqly/backend/internal/models"
)

type VendorService struct {
	db *sql.DB
}

func NewVendorService(db *sql.DB) *VendorService {
	return &VendorService{db: db}
}

func (s *VendorService) GetVendor(ctx context.Context, id int64) (*models.Vendor, error) {
	var v models.Vendor
	var verifiedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, business_name, is_verified, verified_at
		FROM vendors
		WHERE id = $1`, id).
		Scan(&v.ID, &v.UserID, &v.BusinessName, &v.IsVerified, &verifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: vendor %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get vendor %d: %w", id, err)
	}
	if verifiedAt.Valid {
		v.VerifiedAt = &verifiedAt.Time
	}
	return &v, nil
}

// VerifyVendor records a verification decision. A FAILED decision revokes an
// earlier approval, which blocks new escrows against the vendor but leaves
// open ones alone.
func (s *VendorService) VerifyVendor(ctx context.Context, vendorID int64, req models.VendorVerificationRequest) (*models.Vendor, error) {
	if req.Status != models.VerificationVerified && req.Status != models.VerificationFailed {
		return nil, fmt.Errorf("%w: unknown verification status %q", ErrInvalidInput, req.Status)
	}

	now := time.Now()
	verified := req.Status == models.VerificationVerified
	var verifiedAt *time.Time
	if verified {
		verifiedAt = &now
	}

	err := RunInUnitOfWork(ctx, s.db, func(uow *UnitOfWork) error {
		result, err := uow.Tx.ExecContext(ctx, `
			UPDATE vendors
			SET is_verified = $1, verified_at = $2
			WHERE id = $3`, verified, verifiedAt, vendorID)
		if err != nil {
			return fmt.Errorf("verify vendor %d: %w", vendorID, err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: vendor %d", ErrNotFound, vendorID)
		}

		_, err = uow.Tx.ExecContext(ctx, `
			INSERT INTO vendor_verifications (vendor_id, status, notes, created_at)
			VALUES ($1, $2, $3, $4)`, vendorID, req.Status, req.Notes, now)
		if err != nil {
			return fmt.Errorf("record verification of vendor %d: %w", vendorID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("component", "vendor").Int64("vendor_id", vendorID).Str("status", req.Status).Msg("vendor verification recorded")
	return s.GetVendor(ctx, vendorID)
}
