package models

import "time"

// Vertical identifies the kind of escrow-backed transaction.
type Vertical string

const (
	VerticalOrder            Vertical = "order"
	VerticalRide             Vertical = "ride"
	VerticalFoodOrder        Vertical = "food_order"
	VerticalApartmentBooking Vertical = "apartment_booking"
	VerticalServiceBooking   Vertical = "service_booking"
)

// Status is the lifecycle state of an escrow-backed transaction. Which
// statuses a vertical may use is decided by its lifecycle table.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusPending   Status = "PENDING"
	StatusOngoing   Status = "ONGOING"
	StatusPreparing Status = "PREPARING"
	StatusConfirmed Status = "CONFIRMED"
	StatusDelivered Status = "DELIVERED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// EscrowRecord is the common header of every escrow-backed transaction.
// ResourceID is the held resource when the vertical holds one (rider id,
// apartment id), zero otherwise.
type EscrowRecord struct {
	Vertical   Vertical  `json:"vertical"`
	ID         int64     `json:"id"`
	PayerID    int64     `json:"payer_id"`
	ResourceID int64     `json:"resource_id,omitempty"`
	Total      int64     `json:"total"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Settlement is set on the record returned by the settling transition.
	Settlement *SettlementPlan `json:"settlement,omitempty"`
}

// Transition is one accepted status change.
type Transition struct {
	Vertical   Vertical  `json:"vertical"`
	RecordID   int64     `json:"record_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	CreatedAt  time.Time `json:"created_at"`
}

// LineItem is one payable line of an escrow transaction. PayeeID is the user
// whose account receives the amount.
type LineItem struct {
	PayeeID   int64 `json:"payee_id"`
	Amount    int64 `json:"amount"`
	Fulfilled bool  `json:"fulfilled"`
}

// Payout is the aggregate amount owed to one payee.
type Payout struct {
	PayeeID   int64  `json:"payee_id"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

// SettlementPlan is the split of an escrowed total. Payouts plus Refund always
// add up to the escrowed total.
type SettlementPlan struct {
	Payouts []Payout `json:"payouts"`
	Refund  int64    `json:"refund"`
}

// PayoutTotal sums the payouts of the plan.
func (p SettlementPlan) PayoutTotal() int64 {
	var sum int64
	for _, po := range p.Payouts {
		sum += po.Amount
	}
	return sum
}
