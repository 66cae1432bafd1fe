package controllers

import (
	"fmt"
	"net/http"
	"regexp"

	"databoard/middleware"
	"databoard/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var unsafeFilenameChars = regexp.MustCompile(`(?i)[^a-z0-9]`)

type CreateReportRequest struct {
	Title          string            `json:"title" binding:"required"`
	Description    string            `json:"description"`
	TemplateType   string            `json:"templateType" binding:"omitempty,templatetype"`
	FileIDs        []string          `json:"fileIds"`
	ChartIDs       []string          `json:"chartIds"`
	Content        datatypes.JSONMap `json:"content"`
	StylingOptions datatypes.JSONMap `json:"stylingOptions"`
}

type fileSummary struct {
	ID           string `json:"_id"`
	OriginalName string `json:"originalName"`
	FileType     string `json:"fileType"`
	Size         int64  `json:"size"`
}

type chartSummary struct {
	ID        string `json:"_id"`
	Title     string `json:"title"`
	ChartType string `json:"chartType"`
}

// inIDOrder returns records sorted by their position in ids. Records whose id
// is not listed are dropped.
func inIDOrder[T any](records []T, ids []string, id func(*T) string) []T {
	byID := make(map[string]int, len(records))
	for i := range records {
		byID[id(&records[i])] = i
	}
	out := make([]T, 0, len(ids))
	for _, want := range ids {
		if i, ok := byID[want]; ok {
			out = append(out, records[i])
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// CreateReport composes the PDF and only then persists the record, so a
// composition failure never leaves a report behind.
func (h *Handler) CreateReport(c *gin.Context) {
	user := middleware.CurrentUser(c)
	ctx := c.Request.Context()

	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Validation failed", err)
		return
	}
	fileIDs := dedupe(req.FileIDs)
	chartIDs := dedupe(req.ChartIDs)

	owned := func(q *gorm.DB) *gorm.DB {
		if user.IsAdmin() {
			return q
		}
		return q.Where("user_id = ?", user.ID)
	}

	var (
		files  []models.FileUpload
		charts []models.Chart
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(fileIDs) == 0 {
			return nil
		}
		return owned(h.db.WithContext(gctx)).Where("id IN ?", fileIDs).Find(&files).Error
	})
	g.Go(func() error {
		if len(chartIDs) == 0 {
			return nil
		}
		return owned(h.db.WithContext(gctx)).Where("id IN ?", chartIDs).Find(&charts).Error
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("CreateReport: loading sources failed")
		respondError(c, http.StatusInternalServerError, "Error creating report", err)
		return
	}
	if len(files) != len(fileIDs) || len(charts) != len(chartIDs) {
		respondError(c, http.StatusForbidden, "Some files/charts are inaccessible", nil)
		return
	}
	files = inIDOrder(files, fileIDs, func(f *models.FileUpload) string { return f.ID })
	charts = inIDOrder(charts, chartIDs, func(ch *models.Chart) string { return ch.ID })

	for i := range files {
		if err := h.ensureParsed(h.dbc(c), &files[i]); err != nil {
			log.Error().Err(err).Str("file_id", files[i].ID).Msg("CreateReport: parse failed")
			respondError(c, http.StatusInternalServerError, "Error creating report", err)
			return
		}
	}

	content := req.Content
	if content == nil {
		content = datatypes.JSONMap{}
	}
	styling := req.StylingOptions
	if styling == nil {
		styling = datatypes.JSONMap{}
	}
	templateType := req.TemplateType
	if templateType == "" {
		templateType = "custom"
	}
	report := models.Report{
		UserID:         user.ID,
		Title:          req.Title,
		Description:    req.Description,
		TemplateType:   templateType,
		FileIDs:        fileIDs,
		ChartIDs:       chartIDs,
		Content:        content,
		StylingOptions: styling,
	}

	if err := h.reportSlots.Acquire(ctx, 1); err != nil {
		respondError(c, http.StatusServiceUnavailable, "Report generation cancelled", err)
		return
	}
	pdf, err := h.composer.Compose(&report, files, charts)
	h.reportSlots.Release(1)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("CreateReport: composition failed")
		respondError(c, http.StatusInternalServerError, "Error creating report", err)
		return
	}
	report.PDFData = pdf

	if err := h.dbc(c).Create(&report).Error; err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("CreateReport: save failed")
		respondError(c, http.StatusInternalServerError, "Error creating report", err)
		return
	}
	h.bumpStats(ctx, user.ID, "reports_created")
	log.Info().Str("report_id", report.ID).Int("bytes", len(pdf)).Msg("CreateReport: stored")

	c.JSON(http.StatusCreated, gin.H{
		"_id":          report.ID,
		"title":        report.Title,
		"description":  report.Description,
		"templateType": report.TemplateType,
		"createdAt":    report.CreatedAt,
	})
}

func (h *Handler) ListReports(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var reports []models.Report
	err := h.dbc(c).Omit("pdf_data").
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Find(&reports).Error
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching user reports", err)
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}
	c.JSON(http.StatusOK, reports)
}

type reportView struct {
	models.Report
	FileDetails  []fileSummary  `json:"fileDetails"`
	ChartDetails []chartSummary `json:"chartDetails"`
}

// reportDetails pairs a report with summaries of what it links to.
func (h *Handler) reportDetails(db *gorm.DB, report *models.Report) (*reportView, error) {
	var (
		files  []fileSummary
		charts []chartSummary
	)
	if len(report.FileIDs) > 0 {
		if err := db.Model(&models.FileUpload{}).
			Select("id", "original_name", "file_type", "size").
			Where("id IN ?", []string(report.FileIDs)).
			Scan(&files).Error; err != nil {
			return nil, fmt.Errorf("load report files: %w", err)
		}
	}
	if len(report.ChartIDs) > 0 {
		if err := db.Model(&models.Chart{}).
			Select("id", "title", "chart_type").
			Where("id IN ?", []string(report.ChartIDs)).
			Scan(&charts).Error; err != nil {
			return nil, fmt.Errorf("load report charts: %w", err)
		}
	}

	return &reportView{
		Report:       *report,
		FileDetails:  inIDOrder(files, report.FileIDs, func(f *fileSummary) string { return f.ID }),
		ChartDetails: inIDOrder(charts, report.ChartIDs, func(ch *chartSummary) string { return ch.ID }),
	}, nil
}

func (h *Handler) GetReport(c *gin.Context) {
	var report models.Report
	if !h.findOwned(c, h.dbc(c).Omit("pdf_data"), &report, c.Param("id"), "Report not found", func() string { return report.UserID }) {
		return
	}

	body, err := h.reportDetails(h.dbc(c), &report)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching report", err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) DeleteReport(c *gin.Context) {
	var report models.Report
	if !h.findOwned(c, h.dbc(c).Select("id", "user_id"), &report, c.Param("id"), "Report not found", func() string { return report.UserID }) {
		return
	}
	if err := h.dbc(c).Delete(&models.Report{}, "id = ?", report.ID).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "Error deleting report", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Report deleted successfully"})
}

func reportFilename(title string) string {
	return unsafeFilenameChars.ReplaceAllString(title, "_") + ".pdf"
}

func (h *Handler) DownloadReport(c *gin.Context) {
	var report models.Report
	if !h.findOwned(c, h.dbc(c), &report, c.Param("id"), "Report not found", func() string { return report.UserID }) {
		return
	}
	if len(report.PDFData) == 0 {
		respondError(c, http.StatusNotFound, "PDF data not found", nil)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+reportFilename(report.Title))
	c.Data(http.StatusOK, "application/pdf", report.PDFData)
}
