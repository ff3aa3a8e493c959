package controllers

import (
	"net/http"

	"rentscore/services"
)

// PropertyController handles the tenant's properties and payment ledger
type PropertyController struct {
	propertyService *services.PropertyService
	ledgerService   *services.LedgerService
}

func NewPropertyController(propertyService *services.PropertyService, ledgerService *services.LedgerService) *PropertyController {
	return &PropertyController{
		propertyService: propertyService,
		ledgerService:   ledgerService,
	}
}

// RegisterProperty creates a property, its tenancy and the rent schedule
func (c *PropertyController) RegisterProperty(w http.ResponseWriter, r *http.Request) {
	tenant, ok := currentTenant(w, r)
	if !ok {
		return
	}

	var dto services.RegisterPropertyDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	tenancy, err := c.propertyService.RegisterProperty(r.Context(), tenant.UserID, dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenancy)
}

// ListProperties returns the caller's tenancies
func (c *PropertyController) ListProperties(w http.ResponseWriter, r *http.Request) {
	tenant, ok := currentTenant(w, r)
	if !ok {
		return
	}

	tenancies, err := c.propertyService.ListTenancies(r.Context(), tenant.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenancies)
}

// LogPayment records a manual payment for a period
func (c *PropertyController) LogPayment(w http.ResponseWriter, r *http.Request) {
	tenant, ok := currentTenant(w, r)
	if !ok {
		return
	}
	propertyID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var dto services.LogPaymentDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	event, err := c.ledgerService.LogManualPayment(r.Context(), tenant.UserID, propertyID, dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListPayments returns the merged ledger of one property
func (c *PropertyController) ListPayments(w http.ResponseWriter, r *http.Request) {
	tenant, ok := currentTenant(w, r)
	if !ok {
		return
	}
	propertyID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	history, err := c.ledgerService.LoadPaymentHistory(r.Context(), tenant.UserID, propertyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
