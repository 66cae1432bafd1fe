package controllers

import (
	"net/http"
	"testing"

	"databoard/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": "nadia", "email": "Nadia@Example.com", "password": "secret12",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "secret12")
	assert.NotContains(t, w.Body.String(), `"password"`)

	w = env.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": "other", "email": "nadia@example.com", "password": "secret12",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Email already exists")

	w = env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nadia@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nadia@example.com", "password": "secret12",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}](t, w)
	require.NotEmpty(t, body.Token)
	assert.NotNil(t, body.User.LastLogin)

	w = env.do(http.MethodGet, "/api/profile", body.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "nadia@example.com")

	var stats models.DashboardStats
	require.NoError(t, env.db.Where("user_id = ?", body.User.ID).First(&stats).Error)
	assert.Equal(t, 1, int(stats.UserLogins))
}

func TestLoginInactiveUser(t *testing.T) {
	env := newTestEnv(t)
	u, _ := env.user("idle", models.RoleUser)
	require.NoError(t, env.db.Model(u).Update("is_active", false).Error)

	w := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": u.Email, "password": "password1",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("sam", models.RoleUser)

	w := env.do(http.MethodPut, "/api/profile", token, map[string]string{
		"username": "Samuel", "birthday": "1990-04-02", "sex": "Male", "phone": "555",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	u := decode[models.User](t, w)
	assert.Equal(t, "Samuel", u.Username)
	require.NotNil(t, u.Birthday)
	assert.Equal(t, 1990, u.Birthday.Year())

	w = env.do(http.MethodPut, "/api/profile", token, map[string]string{"sex": "Other"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPut, "/api/profile", token, map[string]string{"birthday": "yesterday"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsUpsert(t *testing.T) {
	env := newTestEnv(t)
	u, token := env.user("kim", models.RoleUser)

	w := env.do(http.MethodGet, "/api/settings", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPut, "/api/settings", token, map[string]string{"theme": "dark"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s := decode[models.Settings](t, w)
	assert.Equal(t, "dark", s.Theme)
	assert.Equal(t, "en", s.Language)

	w = env.do(http.MethodPut, "/api/settings", token, map[string]string{"language": "fr"})
	require.Equal(t, http.StatusOK, w.Code)
	s = decode[models.Settings](t, w)
	assert.Equal(t, "dark", s.Theme)
	assert.Equal(t, "fr", s.Language)

	var count int64
	env.db.Model(&models.Settings{}).Where("user_id = ?", u.ID).Count(&count)
	assert.Equal(t, int64(1), count)

	w = env.do(http.MethodPut, "/api/settings", token, map[string]string{"theme": "neon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/profile", "/api/fileUpload", "/api/charts", "/api/reports", "/api/admin/users"} {
		w := env.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	_, token := env.user("plain", models.RoleUser)
	w := env.do(http.MethodGet, "/api/admin/users", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
