package controllers

import (
	"errors"
	"net/http"
	"strings"

	"databoard/models"
	"databoard/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=2,max=100"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Validation failed", err)
		return
	}
	email := normalizeEmail(req.Email)

	var existing models.User
	err := h.dbc(c).Where("email = ?", email).First(&existing).Error
	if err == nil {
		respondError(c, http.StatusBadRequest, "Email already exists", nil)
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Error().Err(err).Msg("Signup: duplicate check failed")
		respondError(c, http.StatusInternalServerError, "Database error", err)
		return
	}

	hash, err := services.HashPassword(req.Password)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error creating user", err)
		return
	}

	user := models.User{
		Email:    email,
		Username: strings.TrimSpace(req.Username),
		Password: hash,
		Role:     models.RoleUser,
		IsActive: true,
	}
	if err := h.dbc(c).Create(&user).Error; err != nil {
		log.Error().Err(err).Str("email", email).Msg("Signup: create failed")
		respondError(c, http.StatusBadRequest, "Error creating user", err)
		return
	}

	log.Info().Str("user_id", user.ID).Msg("Signup: user created")
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": user})
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Validation failed", err)
		return
	}

	var user models.User
	if err := h.dbc(c).Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Msg("Login: lookup failed")
		}
		respondError(c, http.StatusBadRequest, "Invalid credentials", nil)
		return
	}
	if !services.CheckPassword(user.Password, req.Password) {
		respondError(c, http.StatusBadRequest, "Invalid credentials", nil)
		return
	}
	if !user.IsActive {
		respondError(c, http.StatusForbidden, "Account is disabled", nil)
		return
	}

	now := h.now()
	if err := h.dbc(c).Model(&user).Update("last_login", now).Error; err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Login: failed to record last login")
		respondError(c, http.StatusInternalServerError, "Login failed", err)
		return
	}
	user.LastLogin = &now

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Login failed", err)
		return
	}

	h.bumpStats(c.Request.Context(), user.ID, "user_logins")
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}
