// Package router registers the HTTP API on an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/sidasi/sidasi-backend/internal/handler"
	"github.com/sidasi/sidasi-backend/internal/middleware"
	"github.com/sidasi/sidasi-backend/internal/model"
)

// RegisterRoutes registers the probes, which need no authentication.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Live)
	e.GET("/readyz", h.Ready)
}

// RegisterAuth registers the session endpoints under /v1/auth, behind
// their own rate limit, and the account endpoints every signed-in user may
// call.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// Logout takes a refresh token or a bearer token, so it sits outside
	// the JWT group.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)
	auth.GET("/me", a.Me)
	auth.PUT("/me", a.UpdateMe)
	auth.GET("/users/:id", a.GetUser)
}

// RegisterPublic registers the catalogue reads. cache may be nil.
func RegisterPublic(e *echo.Echo, p *handler.ProductHandler, cache echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if cache != nil {
		mw = append(mw, cache)
	}
	e.GET("/v1/products", p.List, mw...)
	e.GET("/v1/products/:id", p.Get, mw...)
}
