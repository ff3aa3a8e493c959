package controllers

import (
	"net/http"

	"rentscore/services"
)

// LandlordController lets landlords verify tenancies and payments
type LandlordController struct {
	propertyService *services.PropertyService
	ledgerService   *services.LedgerService
}

// VerifyTenancyDTO is the landlord's decision
type VerifyTenancyDTO struct {
	Approve bool `json:"approve"`
}

func NewLandlordController(propertyService *services.PropertyService, ledgerService *services.LedgerService) *LandlordController {
	return &LandlordController{
		propertyService: propertyService,
		ledgerService:   ledgerService,
	}
}

// ListTenancies returns tenancies of properties naming the caller as landlord
func (c *LandlordController) ListTenancies(w http.ResponseWriter, r *http.Request) {
	landlord, ok := currentUser(w, r)
	if !ok {
		return
	}

	tenancies, err := c.propertyService.ListLandlordTenancies(r.Context(), landlord.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenancies)
}

// VerifyTenancy approves or rejects a tenancy
func (c *LandlordController) VerifyTenancy(w http.ResponseWriter, r *http.Request) {
	landlord, ok := currentUser(w, r)
	if !ok {
		return
	}
	tenancyID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var dto VerifyTenancyDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	tenancy, err := c.propertyService.VerifyTenancy(r.Context(), landlord.UserID, tenancyID, dto.Approve)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenancy)
}

// VerifyPayment confirms a tenant's payment
func (c *LandlordController) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	landlord, ok := currentUser(w, r)
	if !ok {
		return
	}
	paymentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	event, err := c.ledgerService.VerifyPayment(r.Context(), landlord.UserID, paymentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}
