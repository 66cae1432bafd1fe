package controllers

import (
	"net/http"

	"databoard/middleware"
	"databoard/models"
	"databoard/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const recentActivityLimit = 5

type typeCountRow struct {
	Type  string
	Count int64
}

// GetDashboard reports KPIs for the caller; admins see global numbers.
func (h *Handler) GetDashboard(c *gin.Context) {
	user := middleware.CurrentUser(c)
	isAdmin := user.IsAdmin()
	ctx := c.Request.Context()

	scope := func(q *gorm.DB) *gorm.DB {
		if isAdmin {
			return q
		}
		return q.Where("user_id = ?", user.ID)
	}

	var (
		fileSizes    []int64
		fileTypes    []string
		chartTypes   []typeCountRow
		chartTotal   int64
		reportsTotal int64
		totalUsers   int64
		stats        models.DashboardStats
		recentFiles  []services.Activity
		recentCharts []services.Activity
		recentRepts  []services.Activity
	)

	g, gctx := errgroup.WithContext(ctx)
	db := h.db.WithContext(gctx)

	g.Go(func() error {
		return scope(db.Model(&models.FileUpload{})).Pluck("size", &fileSizes).Error
	})
	g.Go(func() error {
		return scope(db.Model(&models.FileUpload{})).Distinct().Pluck("file_type", &fileTypes).Error
	})
	g.Go(func() error {
		return scope(db.Model(&models.Chart{})).
			Select("chart_type AS type, COUNT(*) AS count").
			Group("chart_type").
			Scan(&chartTypes).Error
	})
	g.Go(func() error {
		return scope(db.Model(&models.Chart{})).Count(&chartTotal).Error
	})
	g.Go(func() error {
		return scope(db.Model(&models.Report{})).Count(&reportsTotal).Error
	})
	g.Go(func() error {
		if !isAdmin {
			return nil
		}
		return db.Model(&models.User{}).Count(&totalUsers).Error
	})
	g.Go(func() error {
		return db.Where("user_id = ?", user.ID).Limit(1).Find(&stats).Error
	})
	g.Go(func() error {
		return recent(scope(db.Model(&models.FileUpload{})), "file", "filename", &recentFiles)
	})
	g.Go(func() error {
		return recent(scope(db.Model(&models.Chart{})), "chart", "title", &recentCharts)
	})
	g.Go(func() error {
		return recent(scope(db.Model(&models.Report{})), "report", "title", &recentRepts)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("GetDashboard: query failed")
		respondError(c, http.StatusInternalServerError, "Error generating KPIs", err)
		return
	}

	typesCount := make(map[string]int64, len(chartTypes))
	for _, t := range chartTypes {
		typesCount[t.Type] = t.Count
	}
	if fileTypes == nil {
		fileTypes = []string{}
	}

	lastActivity := h.now()
	if user.LastLogin != nil {
		lastActivity = *user.LastLogin
	}

	kpis := gin.H{
		"files": gin.H{
			"total":   len(fileSizes),
			"avgSize": services.AverageSize(fileSizes),
			"types":   fileTypes,
		},
		"charts": gin.H{
			"total":        chartTotal,
			"typesCount":   typesCount,
			"popularTypes": services.PopularTypes(typesCount, 3),
		},
		"reports": gin.H{
			"total": reportsTotal,
		},
		"user": gin.H{
			"lastActivity": lastActivity,
			"accountAge":   services.AccountAge(user.CreatedAt, h.now()),
		},
		"recentActivity": services.RecentActivity(recentActivityLimit, recentFiles, recentCharts, recentRepts),
		"activity": gin.H{
			"filesUploaded":  stats.FilesUploaded,
			"chartsCreated":  stats.ChartsCreated,
			"reportsCreated": stats.ReportsCreated,
			"userLogins":     stats.UserLogins,
			"lastUpdated":    stats.LastUpdated,
		},
	}
	if isAdmin {
		kpis["totalUsers"] = totalUsers
	}

	c.JSON(http.StatusOK, kpis)
}

// recent loads the newest records of one kind as activity entries.
func recent(q *gorm.DB, kind, nameColumn string, out *[]services.Activity) error {
	var scanned []services.Activity
	err := q.Select(nameColumn+" AS name, created_at").
		Order("created_at DESC").
		Limit(recentActivityLimit).
		Scan(&scanned).Error
	if err != nil {
		return err
	}
	for i := range scanned {
		scanned[i].Type = kind
	}
	*out = scanned
	return nil
}
