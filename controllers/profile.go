package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"databoard/middleware"
	"databoard/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type UpdateProfileRequest struct {
	Username *string `json:"username" binding:"omitempty,min=2,max=100"`
	Birthday *string `json:"birthday"`
	Phone    *string `json:"phone" binding:"omitempty,max=40"`
	Address  *string `json:"address" binding:"omitempty,max=255"`
	Sex      *string `json:"sex" binding:"omitempty,oneof=Male Female"`
	Photo    *string `json:"photo"`
}

// parseDate accepts a plain date or a full RFC 3339 timestamp.
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", raw)
}

func (h *Handler) GetProfile(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.CurrentUser(c))
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Validation failed", err)
		return
	}

	updates := map[string]any{}
	if req.Username != nil {
		updates["username"] = strings.TrimSpace(*req.Username)
	}
	if req.Birthday != nil {
		birthday, err := parseDate(*req.Birthday)
		if err != nil {
			respondError(c, http.StatusBadRequest, "Validation failed", err)
			return
		}
		updates["birthday"] = birthday
	}
	if req.Phone != nil {
		updates["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		updates["address"] = strings.TrimSpace(*req.Address)
	}
	if req.Sex != nil {
		updates["sex"] = *req.Sex
	}
	if req.Photo != nil {
		updates["photo"] = *req.Photo
	}

	if len(updates) > 0 {
		if err := h.dbc(c).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			log.Error().Err(err).Str("user_id", user.ID).Msg("UpdateProfile: update failed")
			respondError(c, http.StatusBadRequest, "Error updating profile", err)
			return
		}
	}

	var updated models.User
	if err := h.dbc(c).First(&updated, "id = ?", user.ID).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "Error updating profile", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
