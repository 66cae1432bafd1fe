package controllers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"databoard/models"
	"databoard/services"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
}

// countingParser records how many payloads were decoded.
type countingParser struct {
	calls atomic.Int32
}

func (p *countingParser) Parse(data []byte, mimeType string) (models.Rows, []string, error) {
	p.calls.Add(1)
	return services.ParseTable(data, mimeType)
}

type stubAI struct {
	reply string
	err   error
	got   []services.ChatMessage
}

func (s *stubAI) Chat(_ context.Context, messages []services.ChatMessage) (string, error) {
	s.got = messages
	return s.reply, s.err
}

type testEnv struct {
	t      *testing.T
	db     *gorm.DB
	h      *Handler
	router *gin.Engine
	parser *countingParser
	ai     *stubAI
	tokens *services.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	env := &testEnv{
		t:      t,
		db:     db,
		parser: &countingParser{},
		ai:     &stubAI{reply: "Try a line chart."},
		tokens: services.NewTokenService("test-secret", time.Hour),
	}
	env.h = NewHandler(db, Options{
		Tokens:         env.tokens,
		AI:             env.ai,
		Parser:         env.parser,
		MaxUploadBytes: 1 << 20,
	})
	env.router = gin.New()
	env.h.Routes(env.router, func(c *gin.Context) { c.Next() })
	return env
}

// user creates an account directly in the store and returns it with a token.
func (e *testEnv) user(name, role string) (*models.User, string) {
	e.t.Helper()
	hash, err := services.HashPassword("password1")
	require.NoError(e.t, err)
	u := models.User{
		Username: name,
		Email:    name + "@example.com",
		Password: hash,
		Role:     role,
		IsActive: true,
	}
	require.NoError(e.t, e.db.Create(&u).Error)
	token, err := e.tokens.Issue(u.ID)
	require.NoError(e.t, err)
	return &u, token
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(token, filename string, content []byte) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(e.t, err)
	_, err = part.Write(content)
	require.NoError(e.t, err)
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/fileUpload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

const salesCSV = "region,amount\nnorth,10\nsouth,20\neast,30\n"
