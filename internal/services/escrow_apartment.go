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

// BookApartment reserves [CheckIn, CheckOut) and escrows the stay. The
// apartment row is locked before the conflict check, so of two overlapping
// bookings the second one to get the lock sees the first and fails.
func (s *EscrowService) BookApartment(ctx context.Context, req models.ApartmentBookingRequest) (*models.Reservation, error) {
	checkIn, checkOut, err := NormalizeStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}

	status := models.StatusPending
	if s.cfg.ApartmentAutoConfirm {
		status = models.StatusConfirmed
	}

	res := &models.Reservation{
		ApartmentID: req.ApartmentID,
		UserID:      req.UserID,
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		Nights:      Nights(checkIn, checkOut),
		Status:      status,
		CreatedAt:   time.Now(),
	}

	err = RunInUnitOfWork(ctx, s.db, func(uow *UnitOfWork) error {
		var apartment models.Apartment
		var hostID int64
		var verified bool
		err := uow.Tx.QueryRowContext(ctx, `
			SELECT a.id, a.vendor_id, a.price_per_night, v.user_id, v.is_verified
			FROM apartments a
			JOIN vendors v ON v.id = a.vendor_id
			WHERE a.id = $1
			FOR UPDATE OF a`, req.ApartmentID).
			Scan(&apartment.ID, &apartment.VendorID, &apartment.PricePerNight, &hostID, &verified)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: apartment %d", ErrNotFound, req.ApartmentID)
		}
		if err != nil {
			return fmt.Errorf("lock apartment %d: %w", req.ApartmentID, err)
		}

		if hostID == req.UserID {
			return fmt.Errorf("%w: hosts cannot book their own apartment", ErrInvalidInput)
		}
		if !verified {
			return fmt.Errorf("%w: host of apartment %d is not verified", ErrResourceUnavailable, apartment.ID)
		}

		conflict, err := s.availability.FindConflictTx(ctx, uow.Tx, apartment.ID, checkIn, checkOut)
		if err != nil {
			return err
		}
		if conflict != nil {
			return fmt.Errorf("%w: apartment %d is booked from %s to %s", ErrResourceUnavailable, apartment.ID,
				conflict.CheckIn.Format(time.DateOnly), conflict.CheckOut.Format(time.DateOnly))
		}

		res.TotalPrice = apartment.PricePerNight * int64(res.Nights)

		err = uow.Tx.QueryRowContext(ctx, `
			INSERT INTO apartment_bookings (apartment_id, user_id, check_in, check_out, nights, total_price, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			RETURNING id`,
			res.ApartmentID, res.UserID, res.CheckIn, res.CheckOut, res.Nights, res.TotalPrice, string(res.Status), res.CreatedAt).Scan(&res.ID)
		if err != nil {
			return fmt.Errorf("create apartment booking: %w", err)
		}

		return s.holdTx(ctx, uow, res.UserID, res.TotalPrice,
			fmt.Sprintf("APT-%d", res.ID), fmt.Sprintf("Payment for apartment booking #%d", res.ID))
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("component", "escrow").Int64("booking_id", res.ID).Int64("apartment_id", res.ApartmentID).
		Int("nights", res.Nights).Int64("total", res.TotalPrice).Msg("apartment booked")
	return res, nil
}

// apartmentLineItems pays the host. The dates free up on their own once the
// booking leaves PENDING and CONFIRMED.
func apartmentLineItems(ctx context.Context, tx *sql.Tx, rec *models.EscrowRecord) ([]models.LineItem, error) {
	return singlePayee(ctx, tx, `
		SELECT v.user_id
		FROM apartments a
		JOIN vendors v ON v.id = a.vendor_id
		WHERE a.id = $1`, rec)
}
