package models

import "time"

const (
	ServiceKindGeneral    = "GENERAL"
	ServiceKindAutoRepair = "AUTO_REPAIR"
)

// ServiceListing is a bookable service. Auto-repair listings escrow a fixed
// commitment fee instead of their price.
type ServiceListing struct {
	ID       int64  `json:"id" db:"id"`
	VendorID int64  `json:"vendor_id" db:"vendor_id"`
	Name     string `json:"name" db:"name"`
	Kind     string `json:"kind" db:"kind"`
	Price    int64  `json:"price" db:"price"`
}

type ServiceBooking struct {
	ID           int64     `json:"id" db:"id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	ServiceID    int64     `json:"service_id" db:"service_id"`
	ScheduleDate time.Time `json:"schedule_date" db:"schedule_date"`
	Amount       int64     `json:"amount" db:"amount"`
	Status       Status    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type ServiceBookingRequest struct {
	UserID       int64     `json:"-"`
	ServiceID    int64     `json:"serviceId" validate:"required,gt=0"`
	ScheduleDate time.Time `json:"scheduleDate" validate:"required"`
}
