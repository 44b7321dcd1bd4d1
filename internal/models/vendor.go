package models

import "time"

const (
	VerificationVerified = "VERIFIED"
	VerificationFailed   = "FAILED"
)

// Vendor is a seller, rider operator, host or service provider. UserID owns
// the account that receives settlements.
type Vendor struct {
	ID           int64      `json:"id" db:"id"`
	UserID       int64      `json:"user_id" db:"user_id"`
	BusinessName string     `json:"business_name" db:"business_name"`
	IsVerified   bool       `json:"is_verified" db:"is_verified"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty" db:"verified_at"`
}

type VendorVerificationRequest struct {
	Status string `json:"status" validate:"required,oneof=VERIFIED FAILED"`
	Notes  string `json:"notes" validate:"max=500"`
}
