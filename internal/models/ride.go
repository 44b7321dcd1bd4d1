package models

import "time"

const (
	RiderStatusActive  = "ACTIVE"
	RiderStatusBusy    = "BUSY"
	RiderStatusOffline = "OFFLINE"
)

type Rider struct {
	ID       int64  `json:"id" db:"id"`
	UserID   int64  `json:"user_id" db:"user_id"`
	VendorID int64  `json:"vendor_id" db:"vendor_id"`
	Status   string `json:"status" db:"status"`
}

type Ride struct {
	ID             int64     `json:"id" db:"id"`
	UserID         int64     `json:"user_id" db:"user_id"`
	RiderID        int64     `json:"rider_id" db:"rider_id"`
	PickupAddress  string    `json:"pickup_address" db:"pickup_address"`
	DropoffAddress string    `json:"dropoff_address" db:"dropoff_address"`
	Fare           int64     `json:"fare" db:"fare"`
	Status         Status    `json:"status" db:"status"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type RideRequest struct {
	UserID         int64  `json:"-"`
	RiderID        int64  `json:"riderId" validate:"required,gt=0"`
	PickupAddress  string `json:"pickupAddress" validate:"required,max=255"`
	DropoffAddress string `json:"dropoffAddress" validate:"required,max=255"`
	Fare           int64  `json:"fare" validate:"required,gt=0"`
}
