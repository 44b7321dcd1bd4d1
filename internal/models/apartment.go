package models

import "time"

type Apartment struct {
	ID            int64  `json:"id" db:"id"`
	VendorID      int64  `json:"vendor_id" db:"vendor_id"`
	Title         string `json:"title" db:"title"`
	PricePerNight int64  `json:"price_per_night" db:"price_per_night"`
}

// Reservation is an apartment booking over the half-open range
// [CheckIn, CheckOut).
type Reservation struct {
	ID          int64     `json:"id" db:"id"`
	ApartmentID int64     `json:"apartment_id" db:"apartment_id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	CheckIn     time.Time `json:"check_in" db:"check_in"`
	CheckOut    time.Time `json:"check_out" db:"check_out"`
	Nights      int       `json:"nights" db:"nights"`
	TotalPrice  int64     `json:"total_price" db:"total_price"`
	Status      Status    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Overlaps reports whether r intersects [checkIn, checkOut).
func (r Reservation) Overlaps(checkIn, checkOut time.Time) bool {
	return r.CheckIn.Before(checkOut) && r.CheckOut.After(checkIn)
}

type ApartmentBookingRequest struct {
	UserID      int64     `json:"-"`
	ApartmentID int64     `json:"apartmentId" validate:"required,gt=0"`
	CheckIn     time.Time `json:"checkInDate" validate:"required"`
	CheckOut    time.Time `json:"checkOutDate" validate:"required,gtfield=CheckIn"`
}

// AvailabilityQuote answers an availability query for a date range.
type AvailabilityQuote struct {
	ApartmentID          int64 `json:"apartment_id"`
	Available            bool  `json:"available"`
	Nights               int   `json:"nights"`
	PricePerNight        int64 `json:"price_per_night"`
	TotalPrice           int64 `json:"total_price"`
	ConflictingBookingID int64 `json:"conflicting_booking_id,omitempty"`
}
