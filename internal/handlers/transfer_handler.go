package handlers

import (
	"net/http"

	"github.com/souqly/backend/internal/models"
	"github.com/souqly/backend/internal/services"
)

type TransferHandler struct {
	transfers *services.TransferService
	validator *services.ValidationHelper
}

func NewTransferHandler(transfers *services.TransferService) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		validator: services.NewValidationHelper(),
	}
}

// CreateTransfer sends money from the caller to another wallet
// @Summary Create P2P transfer
// @Description A retried request with the same clientReference returns the original transfer
// @Tags Transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.TransferRequest true "Transfer request"
// @Success 201 {object} models.P2PTransfer
// @Success 200 {object} models.P2PTransfer "Replayed"
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /transfers [post]
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.TransferRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	req.SenderID = userID

	transfer, err := h.transfers.Transfer(r.Context(), req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if transfer.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, transfer)
}

// GetTransfer returns a transfer the caller sent or received
// @Summary Get transfer
// @Tags Transfers
// @Produce json
// @Security BearerAuth
// @Param id path int true "Transfer ID"
// @Success 200 {object} models.P2PTransfer
// @Failure 404 {object} services.ErrorResponse
// @Router /transfers/{id} [get]
func (h *TransferHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	transfer, err := h.transfers.GetTransfer(r.Context(), id)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	if transfer.SenderID != userID && transfer.ReceiverID != userID {
		services.SendErrorResponse(w, "Transfer not found", http.StatusNotFound, nil)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}
