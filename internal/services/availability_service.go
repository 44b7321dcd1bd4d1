package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/souqly/backend/internal/models"
)

const day = 24 * time.Hour

type AvailabilityService struct {
	db *sql.DB
}

func NewAvailabilityService(db *sql.DB) *AvailabilityService {
	return &AvailabilityService{db: db}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NormalizeStay truncates both dates to UTC midnight and checks their order.
func NormalizeStay(checkIn, checkOut time.Time) (time.Time, time.Time, error) {
	in := checkIn.UTC().Truncate(day)
	out := checkOut.UTC().Truncate(day)
	if !out.After(in) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: check-out date must be after check-in date", ErrInvalidInput)
	}
	return in, out, nil
}

// Nights counts started days in [checkIn, checkOut).
func Nights(checkIn, checkOut time.Time) int {
	d := checkOut.Sub(checkIn)
	n := int(d / day)
	if d%day != 0 {
		n++
	}
	return n
}

// FindConflictTx returns the first reservation holding any part of
// [checkIn, checkOut), or nil. Callers that go on to book must hold the
// apartment row lock, otherwise the answer can be stale by commit time.
func (s *AvailabilityService) FindConflictTx(ctx context.Context, q queryer, apartmentID int64, checkIn, checkOut time.Time) (*models.Reservation, error) {
	var r models.Reservation
	err := q.QueryRowContext(ctx, `
		SELECT id, apartment_id, user_id, check_in, check_out, nights, total_price, status, created_at
		FROM apartment_bookings
		WHERE apartment_id = $1
		AND status IN ('PENDING', 'CONFIRMED')
		AND check_in < $3
		AND check_out > $2
		ORDER BY check_in
		LIMIT 1`, apartmentID, checkIn, checkOut).
		Scan(&r.ID, &r.ApartmentID, &r.UserID, &r.CheckIn, &r.CheckOut, &r.Nights, &r.TotalPrice, &r.Status, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find conflicting booking for apartment %d: %w", apartmentID, err)
	}
	return &r, nil
}

// IsAvailableTx reports whether no reservation holds any part of the range.
func (s *AvailabilityService) IsAvailableTx(ctx context.Context, q queryer, apartmentID int64, checkIn, checkOut time.Time) (bool, error) {
	conflict, err := s.FindConflictTx(ctx, q, apartmentID, checkIn, checkOut)
	if err != nil {
		return false, err
	}
	return conflict == nil, nil
}

// FindConflict is the read-only form of FindConflictTx.
func (s *AvailabilityService) FindConflict(ctx context.Context, apartmentID int64, checkIn, checkOut time.Time) (*models.Reservation, error) {
	in, out, err := NormalizeStay(checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	return s.FindConflictTx(ctx, s.db, apartmentID, in, out)
}

// IsAvailable is the read-only form of IsAvailableTx.
func (s *AvailabilityService) IsAvailable(ctx context.Context, apartmentID int64, checkIn, checkOut time.Time) (bool, error) {
	conflict, err := s.FindConflict(ctx, apartmentID, checkIn, checkOut)
	if err != nil {
		return false, err
	}
	return conflict == nil, nil
}

// Quote prices a stay and reports whether it is currently free. It takes no
// locks; only booking decides who gets the dates.
func (s *AvailabilityService) Quote(ctx context.Context, apartmentID int64, checkIn, checkOut time.Time) (*models.AvailabilityQuote, error) {
	in, out, err := NormalizeStay(checkIn, checkOut)
	if err != nil {
		return nil, err
	}

	var pricePerNight int64
	err = s.db.QueryRowContext(ctx, `SELECT price_per_night FROM apartments WHERE id = $1`, apartmentID).Scan(&pricePerNight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: apartment %d", ErrNotFound, apartmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("get apartment %d: %w", apartmentID, err)
	}

	conflict, err := s.FindConflictTx(ctx, s.db, apartmentID, in, out)
	if err != nil {
		return nil, err
	}

	nights := Nights(in, out)
	quote := &models.AvailabilityQuote{
		ApartmentID:   apartmentID,
		Available:     conflict == nil,
		Nights:        nights,
		PricePerNight: pricePerNight,
		TotalPrice:    pricePerNight * int64(nights),
	}
	if conflict != nil {
		quote.ConflictingBookingID = conflict.ID
	}
	return quote, nil
}
