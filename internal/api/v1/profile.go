package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/teascan/teascan-go/internal/datastore"
	"github.com/teascan/teascan-go/internal/errors"
)

// initProfileRoutes registers the station profile endpoints.
func (c *Controller) initProfileRoutes() {
	c.Group.GET("/profile", c.GetProfile)
	c.Group.PUT("/profile", c.UpdateProfile)
}

// ProfileResponse is the station owner's profile in API form.
type ProfileResponse struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpdateProfileRequest carries the editable profile fields.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

func profileToResponse(profile *datastore.UserProfile) ProfileResponse {
	return ProfileResponse{
		UserID:      profile.UserID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		CreatedAt:   profile.CreatedAt,
		UpdatedAt:   profile.UpdatedAt,
	}
}

// GetProfile returns the profile of the station's configured user.
func (c *Controller) GetProfile(ctx echo.Context) error {
	profile, err := c.DS.GetUserProfile(c.Settings.Station.UserID)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "Profile not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to get profile", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, profileToResponse(&profile))
}

// UpdateProfile creates or updates the profile of the station's configured
// user.
func (c *Controller) UpdateProfile(ctx echo.Context) error {
	var req UpdateProfileRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid profile payload", http.StatusBadRequest)
	}

	profile := datastore.UserProfile{
		UserID:      c.Settings.Station.UserID,
		DisplayName: req.DisplayName,
		Email:       req.Email,
	}
	// Keep the original creation time on updates.
	if existing, err := c.DS.GetUserProfile(profile.UserID); err == nil {
		profile.CreatedAt = existing.CreatedAt
	}
	if err := c.DS.SaveUserProfile(&profile); err != nil {
		return c.HandleError(ctx, err, "Failed to save profile", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, profileToResponse(&profile))
}
