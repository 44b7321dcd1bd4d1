package handlers

import (
	"net/http"

	"github.com/souqly/backend/internal/services"
)

type PaymentRequestHandler struct {
	service   *services.PaymentRequestService
	validator *services.ValidationHelper
}

func NewPaymentRequestHandler(service *services.PaymentRequestService) *PaymentRequestHandler {
	return &PaymentRequestHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Create publishes a payment request payable to the caller
// @Summary Create payment request
// @Description Returns a short-lived code and its QR image (base64 PNG)
// @Tags Payment Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64} true "Payment request"
// @Success 201 {object} object{code=string,qrImage=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /payment-requests [post]
func (h *PaymentRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount int64 `json:"amount" validate:"required,gt=0"`
	}
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	request, qrImage, err := h.service.Create(r.Context(), userID, req.Amount)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"request": request,
		"qrImage": qrImage,
	})
}

// Pay settles a scanned payment request from the caller's wallet
// @Summary Pay payment request
// @Tags Payment Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{code=string} true "Scanned code"
// @Success 200 {object} models.P2PTransfer
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /payment-requests/pay [post]
func (h *PaymentRequestHandler) Pay(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" validate:"required,max=64"`
	}
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	transfer, err := h.service.Pay(r.Context(), userID, req.Code)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}
