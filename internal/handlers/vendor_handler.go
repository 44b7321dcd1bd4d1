package handlers

import (
	"net/http"

	"github.com/souqly/backend/internal/models"
	"github.com/souqly/backend/internal/services"
)

type VendorHandler struct {
	vendors   *services.VendorService
	validator *services.ValidationHelper
}

func NewVendorHandler(vendors *services.VendorService) *VendorHandler {
	return &VendorHandler{
		vendors:   vendors,
		validator: services.NewValidationHelper(),
	}
}

// VerifyVendor records a verification decision for a vendor
// @Summary Verify vendor
// @Description Admin only. FAILED revokes an earlier approval.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Vendor ID"
// @Param request body models.VendorVerificationRequest true "Decision"
// @Success 200 {object} models.Vendor
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/vendors/{id}/verify [post]
func (h *VendorHandler) VerifyVendor(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req models.VendorVerificationRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	vendor, err := h.vendors.VerifyVendor(r.Context(), vendorID, req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vendor)
}
