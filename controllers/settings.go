package controllers

import (
	"errors"
	"net/http"

	"databoard/middleware"
	"databoard/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UpdateSettingsRequest struct {
	Theme    string `json:"theme" binding:"omitempty,oneof=light dark"`
	Language string `json:"language" binding:"omitempty,min=2,max=10"`
}

func (h *Handler) GetSettings(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var settings models.Settings
	if err := h.dbc(c).Where("user_id = ?", user.ID).First(&settings).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "Settings not found", nil)
			return
		}
		respondError(c, http.StatusInternalServerError, "Error fetching settings", err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings upserts on user_id so concurrent first writes cannot
// produce two rows.
func (h *Handler) UpdateSettings(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Validation failed", err)
		return
	}

	settings := models.Settings{UserID: user.ID, Theme: "light", Language: "en"}
	updates := []string{"updated_at"}
	if req.Theme != "" {
		settings.Theme = req.Theme
		updates = append(updates, "theme")
	}
	if req.Language != "" {
		settings.Language = req.Language
		updates = append(updates, "language")
	}

	err := h.dbc(c).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&settings).Error
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("UpdateSettings: upsert failed")
		respondError(c, http.StatusInternalServerError, "Error updating settings", err)
		return
	}

	var stored models.Settings
	if err := h.dbc(c).Where("user_id = ?", user.ID).First(&stored).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "Error updating settings", err)
		return
	}
	c.JSON(http.StatusOK, stored)
}
