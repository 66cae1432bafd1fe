package controllers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"databoard/middleware"
	"databoard/models"
	"databoard/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CreateChartRequest struct {
	Title        string            `json:"title" binding:"required"`
	Description  string            `json:"description"`
	FileID       string            `json:"fileId" binding:"required"`
	ChartType    string            `json:"chartType" binding:"required,charttype"`
	XAxis        string            `json:"xAxis"`
	YAxis        string            `json:"yAxis"`
	GroupBy      string            `json:"groupBy"`
	StyleOptions datatypes.JSONMap `json:"styleOptions"`
}

// UpdateChartRequest only touches the fields that are present and non-empty.
type UpdateChartRequest struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	ChartType    string            `json:"chartType" binding:"omitempty,charttype"`
	XAxis        string            `json:"xAxis"`
	YAxis        string            `json:"yAxis"`
	StyleOptions datatypes.JSONMap `json:"styleOptions"`
}

func (h *Handler) CreateChart(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req CreateChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Title, file ID, and chart type are required", err)
		return
	}

	var file models.FileUpload
	if err := h.dbc(c).First(&file, "id = ?", req.FileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "File not found", nil)
			return
		}
		respondError(c, http.StatusInternalServerError, "Error creating chart", err)
		return
	}
	if !canAccess(user, file.UserID) {
		respondError(c, http.StatusForbidden, "Unauthorized access to file", nil)
		return
	}

	if err := h.ensureParsed(h.dbc(c), &file); err != nil {
		log.Error().Err(err).Str("file_id", file.ID).Msg("CreateChart: parse failed")
		respondError(c, http.StatusInternalServerError, "Error creating chart", err)
		return
	}

	styleOptions := req.StyleOptions
	if styleOptions == nil {
		styleOptions = datatypes.JSONMap{}
	}
	// The snapshot is an independent copy; later file edits never reach it.
	snapshot := file.ParsedData.Clone()
	chart := models.Chart{
		UserID:       user.ID,
		Title:        req.Title,
		Description:  req.Description,
		FileID:       file.ID,
		ChartType:    req.ChartType,
		XAxis:        req.XAxis,
		YAxis:        req.YAxis,
		GroupBy:      req.GroupBy,
		StyleOptions: styleOptions,
		Data:         snapshot,
		Columns:      snapshot.Columns(),
	}
	if err := h.dbc(c).Create(&chart).Error; err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("CreateChart: save failed")
		respondError(c, http.StatusInternalServerError, "Error creating chart", err)
		return
	}

	h.bumpStats(c.Request.Context(), user.ID, "charts_created")
	c.JSON(http.StatusCreated, chart)
}

func (h *Handler) ListCharts(c *gin.Context) {
	user := middleware.CurrentUser(c)

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		limit = 10
	}

	var (
		charts []models.Chart
		count  int64
	)
	q := h.dbc(c).Model(&models.Chart{}).Where("user_id = ?", user.ID)
	if err := q.Count(&count).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching user charts", err)
		return
	}
	err = h.dbc(c).Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&charts).Error
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching user charts", err)
		return
	}
	if charts == nil {
		charts = []models.Chart{}
	}

	c.JSON(http.StatusOK, gin.H{
		"charts":      charts,
		"totalPages":  int(math.Ceil(float64(count) / float64(limit))),
		"currentPage": page,
	})
}

func (h *Handler) GetChart(c *gin.Context) {
	var chart models.Chart
	if !h.findOwned(c, h.dbc(c), &chart, c.Param("id"), "Chart not found", func() string { return chart.UserID }) {
		return
	}
	c.JSON(http.StatusOK, chart)
}

func (h *Handler) UpdateChart(c *gin.Context) {
	var chart models.Chart
	if !h.findOwned(c, h.dbc(c), &chart, c.Param("id"), "Chart not found", func() string { return chart.UserID }) {
		return
	}

	var req UpdateChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Validation failed", err)
		return
	}

	updates := map[string]any{"updated_at": h.now()}
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.ChartType != "" {
		updates["chart_type"] = req.ChartType
	}
	if req.XAxis != "" {
		updates["x_axis"] = req.XAxis
	}
	if req.YAxis != "" {
		updates["y_axis"] = req.YAxis
	}
	if req.StyleOptions != nil {
		updates["style_options"] = req.StyleOptions
	}

	if err := h.dbc(c).Model(&chart).Updates(updates).Error; err != nil {
		log.Error().Err(err).Str("chart_id", chart.ID).Msg("UpdateChart: save failed")
		respondError(c, http.StatusInternalServerError, "Error updating chart", err)
		return
	}
	if err := h.dbc(c).First(&chart, "id = ?", chart.ID).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "Error updating chart", err)
		return
	}
	c.JSON(http.StatusOK, chart)
}

func (h *Handler) DeleteChart(c *gin.Context) {
	var chart models.Chart
	if !h.findOwned(c, h.dbc(c).Select("id", "user_id"), &chart, c.Param("id"), "Chart not found", func() string { return chart.UserID }) {
		return
	}
	if err := h.dbc(c).Delete(&models.Chart{}, "id = ?", chart.ID).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "Error deleting chart", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chart deleted successfully"})
}

func (h *Handler) GetChartData(c *gin.Context) {
	var chart models.Chart
	if !h.findOwned(c, h.dbc(c), &chart, c.Param("id"), "Chart not found", func() string { return chart.UserID }) {
		return
	}

	data := chart.Data
	if data == nil {
		data = models.Rows{}
	}
	columns := []string(chart.Columns)
	if columns == nil {
		columns = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"chartType":    chart.ChartType,
		"data":         data,
		"xAxis":        chart.XAxis,
		"yAxis":        chart.YAxis,
		"styleOptions": chart.StyleOptions,
		"columns":      columns,
	})
}

// GetChartImage renders the stored snapshot the same way reports embed it.
// Optional width and height query parameters are clamped to sane bounds.
func (h *Handler) GetChartImage(c *gin.Context) {
	var chart models.Chart
	if !h.findOwned(c, h.dbc(c), &chart, c.Param("id"), "Chart not found", func() string { return chart.UserID }) {
		return
	}

	width := boundedInt(c.Query("width"), services.DefaultChartWidth, 100, 2000)
	height := boundedInt(c.Query("height"), services.DefaultChartHeight, 100, 2000)

	png, err := h.renderer.RenderChart(&chart, width, height)
	if err != nil {
		log.Error().Err(err).Str("chart_id", chart.ID).Msg("GetChartImage: render failed")
		respondError(c, http.StatusInternalServerError, "Error rendering chart", err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func boundedInt(raw string, def, lo, hi int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return max(lo, min(hi, n))
}
