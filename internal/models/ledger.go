package models

import "time"

const (
	DirectionDebit  = "DEBIT"
	DirectionCredit = "CREDIT"

	// EntryStatusSuccess is the only status a committed entry can have.
	EntryStatusSuccess = "SUCCESS"
)

// LedgerEntry is one immutable balance change. Amount is always positive; the
// direction carries the sign.
type LedgerEntry struct {
	ID           int64     `json:"id" db:"id"`
	AccountID    int64     `json:"account_id" db:"account_id"`
	Direction    string    `json:"direction" db:"direction"` // DEBIT or CREDIT
	Amount       int64     `json:"amount" db:"amount"`       // in minor units
	BalanceAfter int64     `json:"balance_after" db:"balance_after"`
	Description  string    `json:"description" db:"description"`
	Reference    string    `json:"reference" db:"reference"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Signed returns the entry's effect on the account balance.
func (e LedgerEntry) Signed() int64 {
	if e.Direction == DirectionDebit {
		return -e.Amount
	}
	return e.Amount
}

// Account is a user's wallet. Balance is a cached projection of its entries.
type Account struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Balance   int64     `json:"balance" db:"balance"`
	Currency  string    `json:"currency" db:"currency"`
	Version   int       `json:"version" db:"version"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Wallet is an account together with its most recent entries.
type Wallet struct {
	Account Account       `json:"account"`
	Entries []LedgerEntry `json:"entries"`
}

// Reconciliation compares the cached balance with the sum of the entry log.
type Reconciliation struct {
	AccountID     int64 `json:"account_id"`
	CachedBalance int64 `json:"cached_balance"`
	TotalCredits  int64 `json:"total_credits"`
	TotalDebits   int64 `json:"total_debits"`
	Consistent    bool  `json:"consistent"`
}

// DerivedBalance is credits minus debits.
func (r Reconciliation) DerivedBalance() int64 {
	return r.TotalCredits - r.TotalDebits
}
