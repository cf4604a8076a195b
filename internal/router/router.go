package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/typing-contest/internal/handler"
	"github.com/iliyamo/typing-contest/internal/middleware"
	"github.com/iliyamo/typing-contest/internal/utils"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers all authentication‑related routes.  Unauthenticated
// operations live under /v1/auth behind the rate limiter, while /v1/me
// requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limiter)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Refresh rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Logout accepts either a refresh_token body or a bearer token.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterData registers one-shot reads for signed-in users and the admin
// endpoints.  The admin group checks the token role first; the handlers
// then confirm the flag against the profile document.
func RegisterData(e *echo.Echo, d *handler.DataHandler, jwtSecret string) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	g.GET("/leaderboard", d.Leaderboard)
	g.GET("/contest-texts", d.ContestTexts)

	adm := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(utils.RoleAdmin))
	adm.GET("/users", d.Users)
	adm.DELETE("/users/:id/data", d.DeleteUserData)
}

// RegisterWS registers the live session endpoint.  Authentication happens
// inside the connection, either with ?token= or the login command.
func RegisterWS(e *echo.Echo, w *handler.WSHandler) {
	e.GET("/v1/ws", w.Serve)
}
