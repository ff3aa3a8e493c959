package controllers

import (
	"net/http"

	"rentscore/services"
)

// UserController serves the caller's profile
type UserController struct {
	userService *services.UserService
}

func NewUserController(userService *services.UserService) *UserController {
	return &UserController{userService: userService}
}

// GetMe returns the caller's profile
func (c *UserController) GetMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}

	profile, err := c.userService.GetProfile(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UpdateMe creates or updates the caller's profile
func (c *UserController) UpdateMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}

	var dto services.ProfileDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	profile, err := c.userService.UpsertProfile(r.Context(), identity.UserID, identity.Email, identity.Role, dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
