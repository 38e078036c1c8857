package router

import (
	"github.com/labstack/echo/v4"

	"github.com/sidasi/sidasi-backend/internal/handler"
	"github.com/sidasi/sidasi-backend/internal/middleware"
	"github.com/sidasi/sidasi-backend/internal/model"
)

// AdminHandlers groups the handlers behind the ADMIN routes.
type AdminHandlers struct {
	Auth         *handler.AuthHandler
	Products     *handler.ProductHandler
	Profiles     *handler.ProfileHandler
	History      *handler.HistoryHandler
	Transactions *handler.TransactionHandler
}

// RegisterAdmin registers ADMIN-scoped endpoints under /v1.
func RegisterAdmin(e *echo.Echo, h AdminHandlers, jwtSecret string) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)

	// ---- Users ----
	g.GET("/users", h.Auth.ListUsers)
	g.PUT("/users/:id", h.Auth.UpdateUser)

	// ---- Products ----
	g.POST("/products", h.Products.Create)
	g.PUT("/products/:id", h.Products.Update)
	g.DELETE("/products/:id", h.Products.Delete)

	g.GET("/profiles", h.Profiles.List)
	g.GET("/history", h.History.List)

	// ---- Transactions ----
	g.GET("/transactions", h.Transactions.List)
	g.PUT("/transactions/:id", h.Transactions.Validate)
}
