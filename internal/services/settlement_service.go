package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/souqly/backend/internal/models"
)

var referencePrefixes = map[models.Vertical]string{
	models.VerticalOrder:            "ORD",
	models.VerticalRide:             "RIDE",
	models.VerticalFoodOrder:        "FOOD",
	models.VerticalApartmentBooking: "APT",
	models.VerticalServiceBooking:   "SVC",
}

func referencePrefix(v models.Vertical) string {
	if p, ok := referencePrefixes[v]; ok {
		return p
	}
	return "ESC"
}

// PayoutReference is unique per (transaction, payee).
func PayoutReference(v models.Vertical, recordID, payeeID int64) string {
	return fmt.Sprintf("%s-PAY-%d-%d", referencePrefix(v), recordID, payeeID)
}

// payoutReferencePattern matches every payout reference of one record.
func payoutReferencePattern(v models.Vertical, recordID int64) string {
	return fmt.Sprintf("%s-PAY-%d-%%", referencePrefix(v), recordID)
}

// SplitByPayee groups fulfilled lines by payee and sums them. Payouts are
// ordered by payee id, which is also the order their accounts get locked in.
// Unfulfilled lines are returned as Refund.
func SplitByPayee(items []models.LineItem) (models.SettlementPlan, error) {
	totals := make(map[int64]int64)
	var refund int64

	for _, item := range items {
		if item.Amount < 0 {
			return models.SettlementPlan{}, fmt.Errorf("%w: negative line amount for payee %d", ErrInvalidInput, item.PayeeID)
		}
		if !item.Fulfilled {
			refund += item.Amount
			continue
		}
		totals[item.PayeeID] += item.Amount
	}

	plan := models.SettlementPlan{Payouts: []models.Payout{}, Refund: refund}
	for payeeID, amount := range totals {
		if amount == 0 {
			continue
		}
		plan.Payouts = append(plan.Payouts, models.Payout{PayeeID: payeeID, Amount: amount})
	}
	sort.Slice(plan.Payouts, func(i, j int) bool {
		return plan.Payouts[i].PayeeID < plan.Payouts[j].PayeeID
	})
	return plan, nil
}

type SettlementService struct {
	ledger *LedgerService
}

func NewSettlementService(ledger *LedgerService) *SettlementService {
	return &SettlementService{ledger: ledger}
}

// SettleTx credits every payee of rec, plus the payer for unfulfilled lines.
// The credits always add up to rec.Total.
func (s *SettlementService) SettleTx(ctx context.Context, uow *UnitOfWork, rec *models.EscrowRecord, items []models.LineItem) (*models.SettlementPlan, error) {
	plan, err := SplitByPayee(items)
	if err != nil {
		return nil, err
	}

	if plan.PayoutTotal()+plan.Refund != rec.Total {
		return nil, fmt.Errorf("%w: %s %d lines add up to %d, escrowed %d",
			ErrSettlementMismatch, rec.Vertical, rec.ID, plan.PayoutTotal()+plan.Refund, rec.Total)
	}

	accounts := make([]int64, 0, len(plan.Payouts)+1)
	for _, payout := range plan.Payouts {
		accounts = append(accounts, payout.PayeeID)
	}
	if plan.Refund > 0 {
		accounts = append(accounts, rec.PayerID)
	}
	if err := s.ledger.LockAccountsTx(ctx, uow, accounts...); err != nil {
		return nil, err
	}

	prefix := referencePrefix(rec.Vertical)
	for i := range plan.Payouts {
		payout := &plan.Payouts[i]
		payout.Reference = PayoutReference(rec.Vertical, rec.ID, payout.PayeeID)
		description := fmt.Sprintf("Payment for %s #%d", rec.Vertical, rec.ID)
		if _, err := s.ledger.CreditTx(ctx, uow, payout.PayeeID, payout.Amount, payout.Reference, description); err != nil {
			return nil, err
		}
	}

	if plan.Refund > 0 {
		reference := fmt.Sprintf("%s-REFUND-%d-PARTIAL", prefix, rec.ID)
		description := fmt.Sprintf("Refund for unfulfilled items of %s #%d", rec.Vertical, rec.ID)
		if _, err := s.ledger.CreditTx(ctx, uow, rec.PayerID, plan.Refund, reference, description); err != nil {
			return nil, err
		}
	}

	return &plan, nil
}
