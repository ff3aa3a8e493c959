package controllers

import (
	"net/http"

	"rentscore/services"

	"github.com/gorilla/mux"
)

// ReportController handles report generation, download and sharing
type ReportController struct {
	reportService *services.ReportService
}

func NewReportController(reportService *services.ReportService) *ReportController {
	return &ReportController{reportService: reportService}
}

// GenerateReport stores a new report snapshot
func (c *ReportController) GenerateReport(w http.ResponseWriter, r *http.Request) {
	tenant, ok := currentTenant(w, r)
	if !ok {
		return
	}

	var dto services.GenerateReportDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	report, err := c.reportService.Generate(r.Context(), tenant.UserID, dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// ListReports returns the caller's reports
func (c *ReportController) ListReports(w http.ResponseWriter, r *http.Request) {
	tenant, ok := currentTenant(w, r)
	if !ok {
		return
	}

	reports, err := c.reportService.List(r.Context(), tenant.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// GetReport returns one of the caller's reports
func (c *ReportController) GetReport(w http.ResponseWriter, r *http.Request) {
	tenant, ok := currentTenant(w, r)
	if !ok {
		return
	}

	report, err := c.reportService.Get(r.Context(), tenant.UserID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ExportReport returns a report as an XML download
func (c *ReportController) ExportReport(w http.ResponseWriter, r *http.Request) {
	tenant, ok := currentTenant(w, r)
	if !ok {
		return
	}
	reportID := mux.Vars(r)["id"]

	body, err := c.reportService.ExportXML(r.Context(), tenant.UserID, reportID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", `attachment; filename="rent-report-`+reportID+`.xml"`)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// ShareReport creates a share link for a report
func (c *ReportController) ShareReport(w http.ResponseWriter, r *http.Request) {
	tenant, ok := currentTenant(w, r)
	if !ok {
		return
	}

	share, err := c.reportService.ShareReport(r.Context(), tenant.UserID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, share)
}

// RevokeShare disables a share link
func (c *ReportController) RevokeShare(w http.ResponseWriter, r *http.Request) {
	tenant, ok := currentTenant(w, r)
	if !ok {
		return
	}

	if err := c.reportService.RevokeShare(r.Context(), tenant.UserID, mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OpenShare serves a shared report to an anonymous holder of the link
func (c *ReportController) OpenShare(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeErrorMessage(w, http.StatusNotFound, "not found")
		return
	}

	report, err := c.reportService.OpenShare(r.Context(), mux.Vars(r)["id"], token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
