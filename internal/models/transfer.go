package models

import "time"

const TransferStatusSuccess = "SUCCESS"

// P2PTransfer is a direct account-to-account movement, always settled.
type P2PTransfer struct {
	ID              int64     `json:"id" db:"id"`
	SenderID        int64     `json:"sender_id" db:"sender_id"`
	ReceiverID      int64     `json:"receiver_id" db:"receiver_id"`
	Amount          int64     `json:"amount" db:"amount"`
	Description     string    `json:"description" db:"description"`
	Status          string    `json:"status" db:"status"`
	ClientReference *string   `json:"client_reference,omitempty" db:"client_reference"`
	Metadata        Metadata  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`

	SenderBalance   int64 `json:"sender_balance,omitempty"`
	ReceiverBalance int64 `json:"receiver_balance,omitempty"`
	Replayed        bool  `json:"replayed,omitempty"`
}

type TransferRequest struct {
	SenderID        int64    `json:"-"`
	ReceiverID      int64    `json:"receiverId" validate:"required,gt=0"`
	Amount          int64    `json:"amount" validate:"required,gt=0"`
	Description     string   `json:"description" validate:"max=200"`
	ClientReference string   `json:"clientReference" validate:"omitempty,max=64"`
	Metadata        Metadata `json:"-"`
}

type FundRequest struct {
	UserID           int64  `json:"-"`
	Amount           int64  `json:"amount" validate:"required,gt=0"`
	PaymentMethod    string `json:"paymentMethod" validate:"required,oneof=card bank_transfer paystack"`
	PaymentReference string `json:"paymentReference" validate:"omitempty,max=64"`
}

// PaymentRequest is a receiver-initiated request that a payer settles by
// scanning its code.
type PaymentRequest struct {
	Code       string    `json:"code"`
	ReceiverID int64     `json:"receiver_id"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}
