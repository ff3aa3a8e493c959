package controllers

import (
	"net/http"

	"rentscore/services"
)

// ScoreController serves rent score, achievements and dashboard queries
type ScoreController struct {
	scoreService *services.ScoreService
}

func NewScoreController(scoreService *services.ScoreService) *ScoreController {
	return &ScoreController{scoreService: scoreService}
}

// GetScore recomputes the caller's metrics, optionally for one property
func (c *ScoreController) GetScore(w http.ResponseWriter, r *http.Request) {
	tenant, ok := currentTenant(w, r)
	if !ok {
		return
	}
	propertyID, ok := queryID(w, r, "propertyId")
	if !ok {
		return
	}

	result, err := c.scoreService.Recompute(r.Context(), tenant.UserID, propertyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetAchievements returns the caller's badges and streak
func (c *ScoreController) GetAchievements(w http.ResponseWriter, r *http.Request) {
	tenant, ok := currentTenant(w, r)
	if !ok {
		return
	}

	achievements, err := c.scoreService.Achievements(r.Context(), tenant.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, achievements)
}

// GetDashboardStats returns the dashboard aggregate
func (c *ScoreController) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	tenant, ok := currentTenant(w, r)
	if !ok {
		return
	}

	stats, err := c.scoreService.DashboardStats(r.Context(), tenant.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
