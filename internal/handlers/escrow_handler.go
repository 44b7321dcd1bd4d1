package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/souqly/backend/internal/middleware"
	"github.com/souqly/backend/internal/models"
	"github.com/souqly/backend/internal/services"
)

// EscrowHandler exposes the create paths of every vertical and the shared
// status operations.
type EscrowHandler struct {
	escrow       *services.EscrowService
	availability *services.AvailabilityService
	payouts      *services.PayoutService
	validator    *services.ValidationHelper
}

func NewEscrowHandler(escrow *services.EscrowService, availability *services.AvailabilityService, payouts *services.PayoutService) *EscrowHandler {
	return &EscrowHandler{
		escrow:       escrow,
		availability: availability,
		payouts:      payouts,
		validator:    services.NewValidationHelper(),
	}
}

// createEscrow decodes a request of the vertical's type, stamps the caller as
// payer and runs it through CreateTransaction.
func createEscrow[T any](h *EscrowHandler, vertical models.Vertical) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}

		var req T
		if !decodeJSON(w, r, h.validator, &req) {
			return
		}

		rec, err := h.escrow.CreateTransaction(r.Context(), vertical, userID, req)
		if err != nil {
			services.SendServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

// PlaceOrder escrows a multi-vendor order
// @Summary Place order
// @Tags Orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.OrderRequest true "Order"
// @Success 201 {object} models.EscrowRecord
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /orders [post]
func (h *EscrowHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	createEscrow[models.OrderRequest](h, models.VerticalOrder)(w, r)
}

// BookRide escrows a ride fare
// @Summary Book ride
// @Tags Rides
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.RideRequest true "Ride"
// @Success 201 {object} models.EscrowRecord
// @Failure 409 {object} services.ErrorResponse
// @Router /rides [post]
func (h *EscrowHandler) BookRide(w http.ResponseWriter, r *http.Request) {
	createEscrow[models.RideRequest](h, models.VerticalRide)(w, r)
}

// BookApartment escrows a stay
// @Summary Book apartment
// @Tags Apartments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ApartmentBookingRequest true "Booking"
// @Success 201 {object} models.EscrowRecord
// @Failure 409 {object} services.ErrorResponse
// @Router /apartments/bookings [post]
func (h *EscrowHandler) BookApartment(w http.ResponseWriter, r *http.Request) {
	createEscrow[models.ApartmentBookingRequest](h, models.VerticalApartmentBooking)(w, r)
}

// PlaceFoodOrder escrows a restaurant order
// @Summary Place food order
// @Tags Food
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.FoodOrderRequest true "Food order"
// @Success 201 {object} models.EscrowRecord
// @Router /food/orders [post]
func (h *EscrowHandler) PlaceFoodOrder(w http.ResponseWriter, r *http.Request) {
	createEscrow[models.FoodOrderRequest](h, models.VerticalFoodOrder)(w, r)
}

// BookService escrows a service booking
// @Summary Book service
// @Tags Services
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ServiceBookingRequest true "Booking"
// @Success 201 {object} models.EscrowRecord
// @Router /services/bookings [post]
func (h *EscrowHandler) BookService(w http.ResponseWriter, r *http.Request) {
	createEscrow[models.ServiceBookingRequest](h, models.VerticalServiceBooking)(w, r)
}

// MarkItemUnfulfilled flags an order line as not delivered
// @Summary Mark order item unfulfilled
// @Tags Orders
// @Produce json
// @Security BearerAuth
// @Param id path int true "Order ID"
// @Param itemId path int true "Item ID"
// @Success 200 {object} models.OrderItem
// @Failure 409 {object} services.ErrorResponse
// @Router /orders/{id}/items/{itemId}/unfulfilled [post]
func (h *EscrowHandler) MarkItemUnfulfilled(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.authorizedRecord(w, r, models.VerticalOrder)
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}

	item, err := h.escrow.MarkItemUnfulfilled(r.Context(), rec.ID, itemID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Availability quotes a stay
// @Summary Apartment availability
// @Tags Apartments
// @Produce json
// @Param id path int true "Apartment ID"
// @Param checkIn query string true "Check-in date (YYYY-MM-DD)"
// @Param checkOut query string true "Check-out date (YYYY-MM-DD)"
// @Success 200 {object} models.AvailabilityQuote
// @Router /apartments/{id}/availability [get]
func (h *EscrowHandler) Availability(w http.ResponseWriter, r *http.Request) {
	apartmentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	checkIn, err := time.Parse(time.DateOnly, r.URL.Query().Get("checkIn"))
	if err != nil {
		services.SendErrorResponse(w, "checkIn must be a YYYY-MM-DD date", http.StatusBadRequest, nil)
		return
	}
	checkOut, err := time.Parse(time.DateOnly, r.URL.Query().Get("checkOut"))
	if err != nil {
		services.SendErrorResponse(w, "checkOut must be a YYYY-MM-DD date", http.StatusBadRequest, nil)
		return
	}

	quote, err := h.availability.Quote(r.Context(), apartmentID, checkIn, checkOut)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// UpdateStatus moves a record along its lifecycle
// @Summary Advance escrow status
// @Tags Escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param vertical path string true "order, ride, food_order, apartment_booking or service_booking"
// @Param id path int true "Record ID"
// @Param request body object{status=string} true "Target status"
// @Success 200 {object} models.EscrowRecord
// @Failure 409 {object} services.ErrorResponse
// @Router /escrow/{vertical}/{id}/status [put]
func (h *EscrowHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.Status `json:"status" validate:"required"`
	}
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	owned, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}

	rec, err := h.escrow.AdvanceStatus(r.Context(), owned.Vertical, owned.ID, req.Status)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Complete settles a record to its payees
// @Summary Complete escrow
// @Tags Escrow
// @Produce json
// @Security BearerAuth
// @Param vertical path string true "Vertical"
// @Param id path int true "Record ID"
// @Success 200 {object} models.EscrowRecord
// @Failure 409 {object} services.ErrorResponse
// @Router /escrow/{vertical}/{id}/complete [post]
func (h *EscrowHandler) Complete(w http.ResponseWriter, r *http.Request) {
	owned, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}

	rec, err := h.escrow.Complete(r.Context(), owned.Vertical, owned.ID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Cancel cancels a record and applies the refund policy
// @Summary Cancel escrow
// @Tags Escrow
// @Produce json
// @Security BearerAuth
// @Param vertical path string true "Vertical"
// @Param id path int true "Record ID"
// @Success 200 {object} models.EscrowRecord
// @Failure 409 {object} services.ErrorResponse
// @Router /escrow/{vertical}/{id}/cancel [post]
func (h *EscrowHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	owned, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}

	rec, err := h.escrow.Cancel(r.Context(), owned.Vertical, owned.ID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetRecord returns a record and its status history
// @Summary Get escrow record
// @Tags Escrow
// @Produce json
// @Security BearerAuth
// @Param vertical path string true "Vertical"
// @Param id path int true "Record ID"
// @Success 200 {object} object{record=models.EscrowRecord,transitions=[]models.Transition}
// @Failure 404 {object} services.ErrorResponse
// @Router /escrow/{vertical}/{id} [get]
func (h *EscrowHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}

	transitions, err := h.escrow.GetTransitions(r.Context(), rec.Vertical, rec.ID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"record":      rec,
		"transitions": transitions,
	})
}

// Payout renders the pacs.008 payout instruction of a settled record
// @Summary Export payout instruction
// @Tags Escrow
// @Produce xml
// @Security BearerAuth
// @Param vertical path string true "Vertical"
// @Param id path int true "Record ID"
// @Success 200 {string} string "pacs.008.001.08 document"
// @Failure 409 {object} services.ErrorResponse
// @Router /escrow/{vertical}/{id}/payout [get]
func (h *EscrowHandler) Payout(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}

	doc, err := h.payouts.BuildPayoutInstruction(r.Context(), rec.Vertical, rec.ID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	xmlDoc, err := h.payouts.ConvertToXML(doc)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xmlDoc))
}

// ownedRecord loads the record named by the path. Only the payer and admins
// may read or move it; anyone else gets a 404.
func (h *EscrowHandler) ownedRecord(w http.ResponseWriter, r *http.Request) (*models.EscrowRecord, bool) {
	return h.authorizedRecord(w, r, vertical(r))
}

func (h *EscrowHandler) authorizedRecord(w http.ResponseWriter, r *http.Request, v models.Vertical) (*models.EscrowRecord, bool) {
	userID, ok := currentUser(w, r)
	if !ok {
		return nil, false
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return nil, false
	}

	rec, err := h.escrow.GetRecord(r.Context(), v, id)
	if err != nil {
		services.SendServiceError(w, err)
		return nil, false
	}
	if rec.PayerID != userID && middleware.RoleFromContext(r.Context()) != middleware.RoleAdmin {
		services.SendErrorResponse(w, "Record not found", http.StatusNotFound, nil)
		return nil, false
	}
	return rec, true
}

func vertical(r *http.Request) models.Vertical {
	return models.Vertical(chi.URLParam(r, "vertical"))
}
