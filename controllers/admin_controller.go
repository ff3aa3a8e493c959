package controllers

import (
	"net/http"

	"rentscore/services"
	"rentscore/utils"
)

// AdminController exposes operational endpoints
type AdminController struct {
	ledgerService *services.LedgerService
}

func NewAdminController(ledgerService *services.LedgerService) *AdminController {
	return &AdminController{ledgerService: ledgerService}
}

// IngestBankPayment stores a payment reported by the bank connection
func (c *AdminController) IngestBankPayment(w http.ResponseWriter, r *http.Request) {
	var dto services.BankPaymentDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	event, err := c.ledgerService.IngestBankPayment(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// GetMetrics returns the in-process counters
func (c *AdminController) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, utils.GetMetrics().GetMetricsSnapshot())
}
