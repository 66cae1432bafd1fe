// controllers/controllers.go - shared handler state and response helpers
package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"databoard/config"
	"databoard/middleware"
	"databoard/models"
	"databoard/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatClient is the assistant backend used by the AI routes.
type ChatClient interface {
	Chat(ctx context.Context, messages []services.ChatMessage) (string, error)
}

type Options struct {
	Tokens         *services.TokenService
	AI             ChatClient
	Parser         services.TableParser
	MaxUploadBytes int64
	ReportWorkers  int64
}

// Handler serves every API route from one explicit store handle.
type Handler struct {
	db       *gorm.DB
	tokens   *services.TokenService
	ai       ChatClient
	parser   services.TableParser
	renderer *services.ChartRenderer
	composer *services.ReportComposer

	reportSlots *semaphore.Weighted
	maxUpload   int64
	now         func() time.Time
}

func NewHandler(db *gorm.DB, opts Options) *Handler {
	if opts.Parser == nil {
		opts.Parser = services.Parser{}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.ReportWorkers <= 0 {
		opts.ReportWorkers = 2
	}
	renderer := services.NewChartRenderer()
	return &Handler{
		db:          db,
		tokens:      opts.Tokens,
		ai:          opts.AI,
		parser:      opts.Parser,
		renderer:    renderer,
		composer:    services.NewReportComposer(renderer),
		reportSlots: semaphore.NewWeighted(opts.ReportWorkers),
		maxUpload:   opts.MaxUploadBytes,
		now:         time.Now,
	}
}

func (h *Handler) dbc(c *gin.Context) *gorm.DB {
	return h.db.WithContext(c.Request.Context())
}

// respondError writes the {message, error} body used by every route.
func respondError(c *gin.Context, status int, message string, err error) {
	body := gin.H{"message": message}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(status, body)
}

func canAccess(user *models.User, ownerID string) bool {
	return user != nil && (user.ID == ownerID || user.IsAdmin())
}

// findOwned loads one record by id and enforces ownership. It writes the
// error response itself and reports whether the caller may continue.
func (h *Handler) findOwned(c *gin.Context, q *gorm.DB, dest any, id, notFound string, owner func() string) bool {
	if err := q.First(dest, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, notFound, nil)
			return false
		}
		log.Error().Err(err).Str("id", id).Msg("findOwned: database error")
		respondError(c, http.StatusInternalServerError, "Database error", err)
		return false
	}
	if !canAccess(middleware.CurrentUser(c), owner()) {
		respondError(c, http.StatusForbidden, "Unauthorized access", nil)
		return false
	}
	return true
}

// bumpStats increments one activity counter for the user, creating the row on first use.
func (h *Handler) bumpStats(ctx context.Context, userID, column string) {
	stats := models.DashboardStats{UserID: userID, LastUpdated: h.now()}
	switch column {
	case "files_uploaded":
		stats.FilesUploaded = 1
	case "charts_created":
		stats.ChartsCreated = 1
	case "reports_created":
		stats.ReportsCreated = 1
	case "user_logins":
		stats.UserLogins = 1
	default:
		return
	}

	err := h.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			column:         gorm.Expr(column + " + 1"),
			"last_updated": stats.LastUpdated,
		}),
	}).Create(&stats).Error
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("counter", column).Msg("bumpStats: failed")
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	if err := config.Ping(h.db); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"timestamp": h.now(),
			"error":     err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": h.now(),
		"database":  "connected",
	})
}
