// controllers/admin.go - cross-user management for role=admin callers
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

const unknownOwner = "Unknown User"

type adminChart struct {
	models.Chart
	FileName string `json:"fileName,omitempty"`
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"omitempty,role"`
	IsActive *bool  `json:"isActive"`
	Photo    string `json:"photo"`
}

type UpdateUserRequest struct {
	Username *string `json:"username" binding:"omitempty,min=2,max=100"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Role     *string `json:"role" binding:"omitempty,role"`
	IsActive *bool   `json:"isActive"`
	Photo    *string `json:"photo"`
	Password *string `json:"password" binding:"omitempty,min=6"`
}

// usernames maps every user id to its username.
func (h *Handler) usernames(db *gorm.DB) (map[string]string, error) {
	var users []models.User
	if err := db.Select("id", "username").Find(&users).Error; err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}
	return names, nil
}

// groupByOwner buckets records under their owner's username. Records whose
// owner no longer exists land under unknownOwner.
func groupByOwner[T any](records []T, names map[string]string, owner func(*T) string) map[string][]T {
	grouped := make(map[string][]T)
	for i := range records {
		name, ok := names[owner(&records[i])]
		if !ok {
			name = unknownOwner
		}
		grouped[name] = append(grouped[name], records[i])
	}
	return grouped
}

func (h *Handler) AdminListFiles(c *gin.Context) {
	var files []models.FileUpload
	if err := h.dbc(c).Omit("file_data", "parsed_data").Order("created_at DESC").Find(&files).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching files", err)
		return
	}
	names, err := h.usernames(h.dbc(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching files", err)
		return
	}
	c.JSON(http.StatusOK, groupByOwner(files, names, func(f *models.FileUpload) string { return f.UserID }))
}

func (h *Handler) AdminFileContent(c *gin.Context) {
	var file models.FileUpload
	if err := h.dbc(c).First(&file, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "File not found", nil)
			return
		}
		respondError(c, http.StatusInternalServerError, "Error fetching file content", err)
		return
	}
	if err := h.ensureParsed(h.dbc(c), &file); err != nil {
		log.Error().Err(err).Str("file_id", file.ID).Msg("AdminFileContent: parse failed")
		respondError(c, http.StatusInternalServerError, "Error fetching file content", err)
		return
	}
	c.JSON(http.StatusOK, fileContentBody(&file))
}

// adminDelete removes the record named by the id param, answering 404 when
// nothing matched.
func (h *Handler) adminDelete(c *gin.Context, model any, notFound, failed, deleted string) {
	res := h.dbc(c).Delete(model, "id = ?", c.Param("id"))
	if res.Error != nil {
		respondError(c, http.StatusInternalServerError, failed, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, http.StatusNotFound, notFound, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": deleted})
}

func (h *Handler) AdminDeleteFile(c *gin.Context) {
	h.adminDelete(c, &models.FileUpload{}, "File not found", "Error deleting file", "File deleted")
}

// withFileNames attaches the source file's original name to each chart.
func (h *Handler) withFileNames(db *gorm.DB, charts []models.Chart) ([]adminChart, error) {
	ids := make([]string, 0, len(charts))
	for _, ch := range charts {
		if ch.FileID != "" {
			ids = append(ids, ch.FileID)
		}
	}
	var files []fileSummary
	if len(ids) > 0 {
		err := db.Model(&models.FileUpload{}).Select("id", "original_name").Where("id IN ?", dedupe(ids)).Scan(&files).Error
		if err != nil {
			return nil, err
		}
	}
	names := make(map[string]string, len(files))
	for _, f := range files {
		names[f.ID] = f.OriginalName
	}

	out := make([]adminChart, len(charts))
	for i, ch := range charts {
		out[i] = adminChart{Chart: ch, FileName: names[ch.FileID]}
	}
	return out, nil
}

func (h *Handler) AdminListCharts(c *gin.Context) {
	var charts []models.Chart
	if err := h.dbc(c).Order("created_at DESC").Find(&charts).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching charts", err)
		return
	}
	withNames, err := h.withFileNames(h.dbc(c), charts)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching charts", err)
		return
	}
	names, err := h.usernames(h.dbc(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching charts", err)
		return
	}
	c.JSON(http.StatusOK, groupByOwner(withNames, names, func(ch *adminChart) string { return ch.UserID }))
}

func (h *Handler) AdminChartDetails(c *gin.Context) {
	var chart models.Chart
	if err := h.dbc(c).First(&chart, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "Chart configuration not found", nil)
			return
		}
		respondError(c, http.StatusInternalServerError, "Error fetching chart details", err)
		return
	}
	withNames, err := h.withFileNames(h.dbc(c), []models.Chart{chart})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching chart details", err)
		return
	}
	c.JSON(http.StatusOK, withNames[0])
}

func (h *Handler) AdminDeleteChart(c *gin.Context) {
	h.adminDelete(c, &models.Chart{}, "Chart configuration not found", "Error deleting chart configuration", "Chart configuration deleted")
}

func (h *Handler) AdminListReports(c *gin.Context) {
	var reports []models.Report
	if err := h.dbc(c).Omit("pdf_data").Order("created_at DESC").Find(&reports).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching reports", err)
		return
	}
	names, err := h.usernames(h.dbc(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching reports", err)
		return
	}
	c.JSON(http.StatusOK, groupByOwner(reports, names, func(r *models.Report) string { return r.UserID }))
}

func (h *Handler) AdminReportDetails(c *gin.Context) {
	var report models.Report
	if err := h.dbc(c).Omit("pdf_data").First(&report, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "Report not found", nil)
			return
		}
		respondError(c, http.StatusInternalServerError, "Error fetching report details", err)
		return
	}
	body, err := h.reportDetails(h.dbc(c), &report)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching report details", err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) AdminDeleteReport(c *gin.Context) {
	h.adminDelete(c, &models.Report{}, "Report not found", "Error deleting report", "Report deleted successfully")
}

func (h *Handler) AdminListUsers(c *gin.Context) {
	var users []models.User
	if err := h.dbc(c).Order("created_at ASC").Find(&users).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching users", err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) AdminGetUser(c *gin.Context) {
	var user models.User
	if err := h.dbc(c).First(&user, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "User not found", nil)
			return
		}
		respondError(c, http.StatusInternalServerError, "Error fetching user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) AdminCreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Error creating user", err)
		return
	}
	email := normalizeEmail(req.Email)

	var count int64
	if err := h.dbc(c).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "Error creating user", err)
		return
	}
	if count > 0 {
		respondError(c, http.StatusBadRequest, "Email already exists", nil)
		return
	}

	hash, err := services.HashPassword(req.Password)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error creating user", err)
		return
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	active := req.IsActive == nil || *req.IsActive

	user := models.User{
		Username: strings.TrimSpace(req.Username),
		Email:    email,
		Password: hash,
		Role:     role,
		IsActive: active,
		Photo:    req.Photo,
	}
	if err := h.dbc(c).Create(&user).Error; err != nil {
		respondError(c, http.StatusBadRequest, "Error creating user", err)
		return
	}
	// is_active has a column default, so false is written explicitly.
	if !active {
		if err := h.dbc(c).Model(&user).Update("is_active", false).Error; err != nil {
			respondError(c, http.StatusInternalServerError, "Error creating user", err)
			return
		}
	}
	log.Info().Str("user_id", user.ID).Str("role", role).Msg("AdminCreateUser: created")
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) AdminUpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Error updating user", err)
		return
	}

	updates := map[string]any{}
	if req.Username != nil {
		updates["username"] = strings.TrimSpace(*req.Username)
	}
	if req.Email != nil {
		updates["email"] = normalizeEmail(*req.Email)
	}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Photo != nil {
		updates["photo"] = *req.Photo
	}
	if req.Password != nil && *req.Password != "" {
		hash, err := services.HashPassword(*req.Password)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Error updating user", err)
			return
		}
		updates["password"] = hash
	}

	var user models.User
	err := h.dbc(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", c.Param("id")).Error; err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := tx.Model(&user).Updates(updates).Error; err != nil {
				return err
			}
		}
		return tx.First(&user, "id = ?", user.ID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "User not found", nil)
			return
		}
		respondError(c, http.StatusBadRequest, "Error updating user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) AdminDeleteUser(c *gin.Context) {
	h.adminDelete(c, &models.User{}, "User not found", "Error deleting user", "User deleted")
}
