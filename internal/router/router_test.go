package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/typing-contest/internal/docstore"
	"github.com/iliyamo/typing-contest/internal/docstore/memstore"
	"github.com/iliyamo/typing-contest/internal/handler"
)

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func TestRoutes(t *testing.T) {
	e := echo.New()
	RegisterRoutes(e, handler.NewHealthHandler(nil))
	RegisterAuth(e, handler.NewAuthHandler(nil), "secret", passThrough)
	RegisterData(e, handler.NewDataHandler(memstore.New(), docstore.Paths{AppID: "a"}, nil, nil), "secret")

	t.Run("Should answer the health check", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})

	t.Run("Should guard data and admin routes with a token", func(t *testing.T) {
		for _, r := range []struct{ method, path string }{
			{http.MethodGet, "/v1/me"},
			{http.MethodGet, "/v1/leaderboard"},
			{http.MethodGet, "/v1/contest-texts"},
			{http.MethodGet, "/v1/admin/users"},
			{http.MethodDelete, "/v1/admin/users/u1/data"},
		} {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(r.method, r.path, nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code, r.path)
		}
	})
}
