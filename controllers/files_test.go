package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"databoard/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contentBody struct {
	Filename    string      `json:"filename"`
	Content     models.Rows `json:"content"`
	Columns     []string    `json:"columns"`
	RowCount    int         `json:"rowCount"`
	ColumnCount int         `json:"columnCount"`
}

func TestUploadCSV(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("uma", models.RoleUser)

	w := env.upload(token, "sales.csv", []byte(salesCSV))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode[map[string]any](t, w)
	assert.EqualValues(t, 3, body["rowCount"])
	assert.EqualValues(t, 2, body["columnCount"])
	assert.Equal(t, models.MimeCSV, body["fileType"])
	assert.NotContains(t, body, "fileData")
	assert.NotContains(t, body, "parsedData")

	w = env.do(http.MethodGet, "/api/fileUpload", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	files := decode[[]models.FileUpload](t, w)
	require.Len(t, files, 1)
	assert.Equal(t, "sales.csv", files[0].OriginalName)
}

func TestUploadRejectsOtherTypes(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("uma", models.RoleUser)

	w := env.upload(token, "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/fileUpload", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContentParsesOnceAndPersists(t *testing.T) {
	env := newTestEnv(t)
	u, token := env.user("uma", models.RoleUser)

	file := models.FileUpload{
		UserID:       u.ID,
		Filename:     "legacy.csv",
		OriginalName: "legacy.csv",
		FileType:     models.MimeCSV,
		FileData:     []byte(salesCSV),
		Size:         int64(len(salesCSV)),
	}
	require.NoError(t, env.db.Create(&file).Error)

	for range 2 {
		w := env.do(http.MethodGet, "/api/fileUpload/content/"+file.ID, token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decode[contentBody](t, w)
		assert.Equal(t, 3, body.RowCount)
		assert.Equal(t, []string{"region", "amount"}, body.Columns)
		assert.Equal(t, []string{"region", "amount"}, body.Content[0].Keys())
	}
	assert.Equal(t, int32(1), env.parser.calls.Load())

	var stored models.FileUpload
	require.NoError(t, env.db.First(&stored, "id = ?", file.ID).Error)
	assert.Len(t, stored.ParsedData, 3)
	assert.Equal(t, []string{"region", "amount"}, []string(stored.Columns))
}

func TestUpdateFileRenamesThenDeletes(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("uma", models.RoleUser)
	created := decode[map[string]any](t, env.upload(token, "sales.csv", []byte(salesCSV)))
	id := created["_id"].(string)

	w := env.do(http.MethodPut, "/api/fileUpload/"+id, token, map[string]any{
		"columnUpdates": map[string]any{
			"renamedColumns": map[string]string{"amount": "total", "region": "area"},
			"deletedColumns": []string{"area"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/fileUpload/content/"+id, token, nil)
	body := decode[contentBody](t, w)
	assert.Equal(t, []string{"total"}, body.Columns)
	v, _ := body.Content[2].Get("total")
	assert.Equal(t, "30", v)
}

func TestUpdateFileSaveAsCopy(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("uma", models.RoleUser)
	created := decode[map[string]any](t, env.upload(token, "sales.csv", []byte(salesCSV)))
	id := created["_id"].(string)

	w := env.do(http.MethodPut, "/api/fileUpload/"+id, token, map[string]any{
		"newFilename": "trimmed.csv",
		"content": []map[string]any{
			{"region": "west", "amount": 5},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	copied := decode[map[string]any](t, w)
	assert.NotEqual(t, id, copied["_id"])
	assert.Equal(t, "trimmed.csv", copied["originalName"])

	original := decode[contentBody](t, env.do(http.MethodGet, "/api/fileUpload/content/"+id, token, nil))
	assert.Equal(t, 3, original.RowCount)

	var count int64
	env.db.Model(&models.FileUpload{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestDownloadAndDeleteFile(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("uma", models.RoleUser)
	created := decode[map[string]any](t, env.upload(token, "sales.csv", []byte(salesCSV)))
	id := created["_id"].(string)

	w := env.do(http.MethodGet, "/api/fileUpload/download/"+id, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.MimeCSV, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "sales.csv")
	assert.Equal(t, salesCSV, w.Body.String())

	w = env.do(http.MethodDelete, "/api/fileUpload/"+id, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, "/api/fileUpload/download/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBlankFile(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("uma", models.RoleUser)

	w := env.do(http.MethodPost, "/api/fileUpload/new", token, map[string]string{"filename": "draft", "fileType": "xlsx"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode[map[string]any](t, w)
	assert.Equal(t, "draft.xlsx", body["originalName"])
	assert.Equal(t, models.MimeXLSX, body["fileType"])
	assert.Equal(t, []any{}, body["content"])

	w = env.do(http.MethodPost, "/api/fileUpload/new", token, map[string]string{"filename": "draft", "fileType": "pdf"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validTypes")

	w = env.do(http.MethodPost, "/api/fileUpload/new", token, map[string]string{"fileType": "csv"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	content := decode[contentBody](t, env.do(http.MethodGet, "/api/fileUpload/content/"+body["_id"].(string), token, nil))
	assert.Equal(t, 0, content.RowCount)
	assert.Equal(t, []string{}, content.Columns)
}

func TestCreateBlankFileRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("uma", models.RoleUser)

	req := httptest.NewRequest(http.MethodPost, "/api/fileUpload/new", strings.NewReader(`{"filename": "draft",`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "Invalid request body", body["message"])
	assert.NotEmpty(t, body["error"])

	// no body at all still gets the field-level explanation
	w = env.do(http.MethodPost, "/api/fileUpload/new", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Filename and fileType are required")
}

func TestClearedContentIsNotReparsed(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("uma", models.RoleUser)
	id := env.uploadSales(token)
	calls := env.parser.calls.Load()

	w := env.do(http.MethodPut, "/api/fileUpload/"+id, token, map[string]any{"content": []any{}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/fileUpload/content/"+id, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[contentBody](t, w)
	assert.Equal(t, 0, body.RowCount)
	assert.Empty(t, body.Columns)
	assert.Equal(t, calls, env.parser.calls.Load())
}

func TestApplyColumnUpdatesKeepsOrder(t *testing.T) {
	rows := models.Rows{models.NewRow("a", 1, "b", 2, "c", 3)}
	out := applyColumnUpdates(rows, &ColumnUpdates{
		RenamedColumns: map[string]string{"b": "beta"},
		DeletedColumns: []string{"c"},
	})
	assert.Equal(t, []string{"a", "beta"}, out[0].Keys())
	// the input is untouched
	assert.Equal(t, []string{"a", "b", "c"}, rows[0].Keys())
}
