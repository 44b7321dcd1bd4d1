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

// BookRide takes an active rider off the market and escrows the fare.
func (s *EscrowService) BookRide(ctx context.Context, req models.RideRequest) (*models.Ride, error) {
	if req.Fare <= 0 {
		return nil, fmt.Errorf("%w: fare must be greater than 0", ErrInvalidInput)
	}

	ride := &models.Ride{
		UserID:         req.UserID,
		RiderID:        req.RiderID,
		PickupAddress:  req.PickupAddress,
		DropoffAddress: req.DropoffAddress,
		Fare:           req.Fare,
		Status:         models.StatusRequested,
		CreatedAt:      time.Now(),
	}

	err := RunInUnitOfWork(ctx, s.db, func(uow *UnitOfWork) error {
		var rider models.Rider
		var verified bool
		err := uow.Tx.QueryRowContext(ctx, `
			SELECT r.id, r.user_id, r.vendor_id, r.status, v.is_verified
			FROM riders r
			JOIN vendors v ON v.id = r.vendor_id
			WHERE r.id = $1
			FOR UPDATE OF r`, req.RiderID).
			Scan(&rider.ID, &rider.UserID, &rider.VendorID, &rider.Status, &verified)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: rider %d", ErrNotFound, req.RiderID)
		}
		if err != nil {
			return fmt.Errorf("lock rider %d: %w", req.RiderID, err)
		}

		if rider.UserID == req.UserID {
			return fmt.Errorf("%w: riders cannot book themselves", ErrInvalidInput)
		}
		if !verified {
			return fmt.Errorf("%w: rider %d is not verified", ErrResourceUnavailable, rider.ID)
		}
		if rider.Status != models.RiderStatusActive {
			return fmt.Errorf("%w: rider %d is %s", ErrResourceUnavailable, rider.ID, rider.Status)
		}

		if _, err := uow.Tx.ExecContext(ctx, `UPDATE riders SET status = $1 WHERE id = $2`, models.RiderStatusBusy, rider.ID); err != nil {
			return fmt.Errorf("hold rider %d: %w", rider.ID, err)
		}

		err = uow.Tx.QueryRowContext(ctx, `
			INSERT INTO rides (user_id, rider_id, pickup_address, dropoff_address, fare, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			RETURNING id`,
			ride.UserID, ride.RiderID, ride.PickupAddress, ride.DropoffAddress, ride.Fare, string(ride.Status), ride.CreatedAt).Scan(&ride.ID)
		if err != nil {
			return fmt.Errorf("create ride: %w", err)
		}

		return s.holdTx(ctx, uow, ride.UserID, ride.Fare,
			fmt.Sprintf("RIDE-%d", ride.ID), fmt.Sprintf("Payment for ride #%d", ride.ID))
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("component", "escrow").Int64("ride_id", ride.ID).Int64("rider_id", ride.RiderID).
		Int64("fare", ride.Fare).Msg("ride booked")
	return ride, nil
}

func rideLineItems(ctx context.Context, tx *sql.Tx, rec *models.EscrowRecord) ([]models.LineItem, error) {
	return singlePayee(ctx, tx, `SELECT user_id FROM riders WHERE id = $1`, rec)
}

// releaseRider puts the rider back on the market once the ride ends either way.
func releaseRider(ctx context.Context, tx *sql.Tx, rec *models.EscrowRecord, _ models.Status) error {
	if _, err := tx.ExecContext(ctx, `UPDATE riders SET status = $1 WHERE id = $2`, models.RiderStatusActive, rec.ResourceID); err != nil {
		return fmt.Errorf("release rider %d: %w", rec.ResourceID, err)
	}
	return nil
}
