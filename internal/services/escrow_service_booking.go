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

// BookService escrows the listing price, or the commitment fee for auto-repair
// listings whose final price is only known after inspection.
func (s *EscrowService) BookService(ctx context.Context, req models.ServiceBookingRequest) (*models.ServiceBooking, error) {
	now := time.Now()
	if !req.ScheduleDate.After(now) {
		return nil, fmt.Errorf("%w: schedule date must be in the future", ErrInvalidInput)
	}

	booking := &models.ServiceBooking{
		UserID:       req.UserID,
		ServiceID:    req.ServiceID,
		ScheduleDate: req.ScheduleDate,
		Status:       models.StatusPending,
		CreatedAt:    now,
	}

	err := RunInUnitOfWork(ctx, s.db, func(uow *UnitOfWork) error {
		var listing models.ServiceListing
		var providerID int64
		var verified bool
		err := uow.Tx.QueryRowContext(ctx, `
			SELECT s.id, s.vendor_id, s.name, s.kind, s.price, v.user_id, v.is_verified
			FROM services s
			JOIN vendors v ON v.id = s.vendor_id
			WHERE s.id = $1`, req.ServiceID).
			Scan(&listing.ID, &listing.VendorID, &listing.Name, &listing.Kind, &listing.Price, &providerID, &verified)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: service %d", ErrNotFound, req.ServiceID)
		}
		if err != nil {
			return fmt.Errorf("get service %d: %w", req.ServiceID, err)
		}

		if providerID == req.UserID {
			return fmt.Errorf("%w: providers cannot book their own service", ErrInvalidInput)
		}
		if !verified {
			return fmt.Errorf("%w: provider of service %d is not verified", ErrResourceUnavailable, listing.ID)
		}

		booking.Amount = listing.Price
		if listing.Kind == models.ServiceKindAutoRepair {
			booking.Amount = s.cfg.AutoRepairCommitmentFee
		}

		err = uow.Tx.QueryRowContext(ctx, `
			INSERT INTO service_bookings (user_id, service_id, schedule_date, amount, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			RETURNING id`,
			booking.UserID, booking.ServiceID, booking.ScheduleDate, booking.Amount, string(booking.Status), booking.CreatedAt).Scan(&booking.ID)
		if err != nil {
			return fmt.Errorf("create service booking: %w", err)
		}

		reference := fmt.Sprintf("SVC-%d", booking.ID)
		description := fmt.Sprintf("Payment for %s booking #%d", listing.Name, booking.ID)
		if listing.Kind == models.ServiceKindAutoRepair {
			reference = fmt.Sprintf("AUTO-COMMIT-%d", booking.ID)
			description = fmt.Sprintf("Commitment fee for auto repair booking #%d", booking.ID)
		}
		return s.holdTx(ctx, uow, booking.UserID, booking.Amount, reference, description)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("component", "escrow").Int64("service_booking_id", booking.ID).Int64("service_id", booking.ServiceID).
		Int64("amount", booking.Amount).Msg("service booked")
	return booking, nil
}

func serviceLineItems(ctx context.Context, tx *sql.Tx, rec *models.EscrowRecord) ([]models.LineItem, error) {
	return singlePayee(ctx, tx, `
		SELECT v.user_id
		FROM services s
		JOIN vendors v ON v.id = s.vendor_id
		WHERE s.id = $1`, rec)
}
