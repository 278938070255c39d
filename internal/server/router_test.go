package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"hr-portal/internal/auth"
	"hr-portal/internal/config"
)

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

func testRouter(health HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Server:  config.ServerConfig{MaxUploadMB: 1, CORSOrigins: []string{"*"}},
		Storage: config.StorageConfig{PublicPrefix: "/uploads"},
	}
	return NewRouter(&Dependencies{
		Config:  cfg,
		Health:  health,
		Tokens:  auth.NewTokenManager("router-secret", time.Hour, "hr-portal"),
		Revoker: auth.NewRevoker(nil),
	})
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter(fakeHealth{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	testRouter(fakeHealth{err: errors.New("down")}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := testRouter(fakeHealth{})
	routes := []struct{ method, path string }{
		{http.MethodGet, "/profile"},
		{http.MethodGet, "/tasks"},
		{http.MethodPost, "/tasks/1/take"},
		{http.MethodGet, "/api/chat/unread-count"},
		{http.MethodPost, "/api/withdrawal/request"},
		{http.MethodGet, "/admin/users"},
		{http.MethodPost, "/admin/moderation/1/approve"},
		{http.MethodPost, "/admin/moderation/approve-all"},
		{http.MethodGet, "/admin/access/check"},
	}
	for _, rt := range routes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, rt.method+" "+rt.path)
	}
}

func TestCORSConfig(t *testing.T) {
	all := corsConfig([]string{"*"})
	assert.True(t, all.AllowAllOrigins)
	assert.False(t, all.AllowCredentials)

	listed := corsConfig([]string{"https://portal.example"})
	assert.False(t, listed.AllowAllOrigins)
	assert.True(t, listed.AllowCredentials)
	assert.Equal(t, []string{"https://portal.example"}, listed.AllowOrigins)
}
