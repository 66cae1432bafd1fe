// controllers/files.go - tabular file upload, editing and download
package controllers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"databoard/middleware"
	"databoard/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var allowedFileTypes = map[string]bool{
	models.MimeCSV:  true,
	models.MimeXLS:  true,
	models.MimeXLSX: true,
}

var blankFileTypes = map[string]string{
	"csv":  models.MimeCSV,
	"xls":  models.MimeXLS,
	"xlsx": models.MimeXLSX,
}

type ColumnUpdates struct {
	RenamedColumns map[string]string `json:"renamedColumns"`
	DeletedColumns []string          `json:"deletedColumns"`
}

type UpdateFileRequest struct {
	Content       *models.Rows   `json:"content"`
	NewFilename   string         `json:"newFilename"`
	ColumnUpdates *ColumnUpdates `json:"columnUpdates"`
}

type NewFileRequest struct {
	Filename string `json:"filename"`
	FileType string `json:"fileType"`
}

type fileWithContent struct {
	models.FileUpload
	Content models.Rows `json:"content"`
}

// resolveMimeType trusts the declared type unless it is generic, then falls
// back to the extension.
func resolveMimeType(header *multipart.FileHeader) string {
	declared := header.Header.Get("Content-Type")
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			declared = mediaType
		}
	}
	if allowedFileTypes[declared] {
		return declared
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".csv":
		return models.MimeCSV
	case ".xls":
		return models.MimeXLS
	case ".xlsx":
		return models.MimeXLSX
	}
	return declared
}

// ensureParsed fills an unfilled parse cache from the raw payload and
// persists the result. Once the cache is marked filled it is never re-derived,
// so content saved as an empty table stays empty.
func (h *Handler) ensureParsed(db *gorm.DB, file *models.FileUpload) error {
	if file.ParsedAt != nil || len(file.ParsedData) > 0 || len(file.FileData) == 0 {
		if file.ParsedData == nil {
			file.ParsedData = models.Rows{}
		}
		return nil
	}

	rows, columns, err := h.parser.Parse(file.FileData, file.FileType)
	if err != nil {
		return err
	}
	now := h.now()
	file.ParsedData = rows
	file.Columns = columns
	file.ParsedAt = &now

	return db.Model(file).Select("parsed_data", "columns", "parsed_at").Updates(map[string]any{
		"parsed_data": rows,
		"columns":     file.Columns,
		"parsed_at":   now,
	}).Error
}

func fileContentBody(file *models.FileUpload) gin.H {
	columns := []string(file.Columns)
	if columns == nil {
		columns = []string{}
	}
	return gin.H{
		"filename":    file.OriginalName,
		"content":     file.ParsedData,
		"columns":     columns,
		"rowCount":    len(file.ParsedData),
		"columnCount": len(columns),
	}
}

func (h *Handler) UploadFile(c *gin.Context) {
	user := middleware.CurrentUser(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("File too large (max %d bytes)", h.maxUpload), nil)
			return
		}
		respondError(c, http.StatusBadRequest, "No file uploaded", err)
		return
	}

	mimeType := resolveMimeType(header)
	if !allowedFileTypes[mimeType] {
		respondError(c, http.StatusBadRequest, "Error uploading file", errors.New("only CSV and Excel files are allowed"))
		return
	}

	src, err := header.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "Error uploading file", err)
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Error uploading file", err)
		return
	}

	rows, columns, err := h.parser.Parse(data, mimeType)
	if err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Str("filename", header.Filename).Msg("UploadFile: parse failed")
		respondError(c, http.StatusBadRequest, "Error parsing file", err)
		return
	}

	now := h.now()
	file := models.FileUpload{
		UserID:       user.ID,
		Filename:     header.Filename,
		OriginalName: header.Filename,
		FileType:     mimeType,
		FileData:     data,
		Size:         int64(len(data)),
		ParsedData:   rows,
		Columns:      columns,
		ParsedAt:     &now,
	}
	if err := h.dbc(c).Create(&file).Error; err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("UploadFile: save failed")
		respondError(c, http.StatusInternalServerError, "Error saving file to database", err)
		return
	}

	h.bumpStats(c.Request.Context(), user.ID, "files_uploaded")
	log.Info().Str("file_id", file.ID).Int("rows", len(rows)).Msg("UploadFile: stored")

	c.JSON(http.StatusCreated, gin.H{
		"_id":          file.ID,
		"userId":       file.UserID,
		"filename":     file.Filename,
		"originalName": file.OriginalName,
		"fileType":     file.FileType,
		"size":         file.Size,
		"columns":      file.Columns,
		"rowCount":     len(rows),
		"columnCount":  len(columns),
		"createdAt":    file.CreatedAt,
	})
}

func (h *Handler) ListFiles(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var files []models.FileUpload
	err := h.dbc(c).Omit("file_data").
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Find(&files).Error
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching user files", err)
		return
	}
	c.JSON(http.StatusOK, files)
}

func (h *Handler) GetFileContent(c *gin.Context) {
	var file models.FileUpload
	if !h.findOwned(c, h.dbc(c), &file, c.Param("id"), "File not found", func() string { return file.UserID }) {
		return
	}

	if err := h.ensureParsed(h.dbc(c), &file); err != nil {
		log.Error().Err(err).Str("file_id", file.ID).Msg("GetFileContent: parse failed")
		respondError(c, http.StatusInternalServerError, "Error fetching file content", err)
		return
	}
	c.JSON(http.StatusOK, fileContentBody(&file))
}

// applyColumnUpdates renames, then deletes, columns in every row.
func applyColumnUpdates(rows models.Rows, updates *ColumnUpdates) models.Rows {
	out := rows.Clone()
	if updates == nil {
		return out
	}
	for i := range out {
		// snapshot keys: renames mutate the key list
		for _, key := range append([]string(nil), out[i].Keys()...) {
			if to, ok := updates.RenamedColumns[key]; ok && to != "" {
				out[i].Rename(key, to)
			}
		}
		for _, col := range updates.DeletedColumns {
			out[i].Delete(col)
		}
	}
	return out
}

// UpdateFile replaces the parsed content, optionally renaming or dropping
// columns. With newFilename the result is saved as a new file instead.
func (h *Handler) UpdateFile(c *gin.Context) {
	var file models.FileUpload
	if !h.findOwned(c, h.dbc(c), &file, c.Param("id"), "File not found", func() string { return file.UserID }) {
		return
	}

	var req UpdateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Validation failed", err)
		return
	}

	if req.Content == nil {
		if err := h.ensureParsed(h.dbc(c), &file); err != nil {
			respondError(c, http.StatusInternalServerError, "Error updating file", err)
			return
		}
		req.Content = &file.ParsedData
	}
	updated := applyColumnUpdates(*req.Content, req.ColumnUpdates)
	now := h.now()

	if name := strings.TrimSpace(req.NewFilename); name != "" {
		copied := models.FileUpload{
			UserID:       file.UserID,
			Filename:     name,
			OriginalName: name,
			FileType:     file.FileType,
			FileData:     file.FileData,
			Size:         file.Size,
			ParsedData:   updated,
			Columns:      updated.Columns(),
			ParsedAt:     &now,
		}
		if err := h.dbc(c).Create(&copied).Error; err != nil {
			respondError(c, http.StatusInternalServerError, "Error updating file", err)
			return
		}
		c.JSON(http.StatusOK, fileWithContent{FileUpload: copied, Content: updated})
		return
	}

	file.ParsedData = updated
	file.Columns = updated.Columns()
	file.ParsedAt = &now
	err := h.dbc(c).Model(&file).Select("parsed_data", "columns", "parsed_at", "updated_at").Updates(map[string]any{
		"parsed_data": file.ParsedData,
		"columns":     file.Columns,
		"parsed_at":   now,
		"updated_at":  now,
	}).Error
	if err != nil {
		log.Error().Err(err).Str("file_id", file.ID).Msg("UpdateFile: save failed")
		respondError(c, http.StatusInternalServerError, "Error updating file", err)
		return
	}
	c.JSON(http.StatusOK, fileWithContent{FileUpload: file, Content: updated})
}

func (h *Handler) DownloadFile(c *gin.Context) {
	var file models.FileUpload
	if !h.findOwned(c, h.dbc(c), &file, c.Param("id"), "File not found", func() string { return file.UserID }) {
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.OriginalName}))
	c.Data(http.StatusOK, file.FileType, file.FileData)
}

func (h *Handler) CreateBlankFile(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req NewFileRequest
	// An empty body falls through to the field check below.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.Filename = strings.TrimSpace(req.Filename)

	if req.Filename == "" || req.FileType == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "Filename and fileType are required",
			"details": gin.H{
				"received": gin.H{"filename": req.Filename, "fileType": req.FileType},
				"expected": gin.H{"filename": "string", "fileType": "csv|xls|xlsx"},
			},
		})
		return
	}
	mimeType, ok := blankFileTypes[req.FileType]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"message":    "Invalid file type",
			"validTypes": []string{"csv", "xls", "xlsx"},
			"received":   req.FileType,
		})
		return
	}

	now := h.now()
	file := models.FileUpload{
		UserID:       user.ID,
		Filename:     req.Filename,
		OriginalName: req.Filename + "." + req.FileType,
		FileType:     mimeType,
		FileData:     []byte{},
		ParsedData:   models.Rows{},
		Columns:      []string{},
		ParsedAt:     &now,
	}
	if err := h.dbc(c).Create(&file).Error; err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("CreateBlankFile: save failed")
		respondError(c, http.StatusInternalServerError, "Error creating new file", err)
		return
	}
	c.JSON(http.StatusCreated, fileWithContent{FileUpload: file, Content: models.Rows{}})
}

func (h *Handler) DeleteFile(c *gin.Context) {
	var file models.FileUpload
	if !h.findOwned(c, h.dbc(c).Omit("file_data", "parsed_data"), &file, c.Param("id"), "File not found", func() string { return file.UserID }) {
		return
	}
	if err := h.dbc(c).Delete(&models.FileUpload{}, "id = ?", file.ID).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "Error deleting file", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted successfully"})
}
