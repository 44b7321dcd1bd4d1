package handlers

import (
	"net/http"

	"github.com/souqly/backend/internal/models"
	"github.com/souqly/backend/internal/services"
)

type WalletHandler struct {
	ledger    *services.LedgerService
	validator *services.ValidationHelper
}

func NewWalletHandler(ledger *services.LedgerService) *WalletHandler {
	return &WalletHandler{
		ledger:    ledger,
		validator: services.NewValidationHelper(),
	}
}

// GetWallet returns the caller's balance and latest entries
// @Summary Get wallet
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{wallet=models.Wallet,balance=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet [get]
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	wallet, err := h.ledger.GetWallet(r.Context(), userID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"wallet":  wallet,
		"balance": services.ToMajorUnits(wallet.Account.Balance).StringFixed(2),
	})
}

// Fund credits the caller's wallet from an external payment
// @Summary Fund wallet
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.FundRequest true "Funding request"
// @Success 201 {object} object{entry=models.LedgerEntry}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /wallet/fund [post]
func (h *WalletHandler) Fund(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.FundRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	req.UserID = userID

	entry, err := h.ledger.Fund(r.Context(), req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"entry":   entry,
	})
}

// Reconcile compares the cached balance with the entry log
// @Summary Reconcile wallet
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Reconciliation
// @Router /wallet/reconcile [get]
func (h *WalletHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	rec, err := h.ledger.Reconcile(r.Context(), userID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
