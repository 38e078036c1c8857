package router

import (
	"github.com/labstack/echo/v4"

	"github.com/sidasi/sidasi-backend/internal/handler"
	"github.com/sidasi/sidasi-backend/internal/middleware"
	"github.com/sidasi/sidasi-backend/internal/model"
)

// CustomerHandlers groups the handlers behind the signed-in routes.
type CustomerHandlers struct {
	Bookings     *handler.BookingHandler
	Profiles     *handler.ProfileHandler
	History      *handler.HistoryHandler
	Transactions *handler.TransactionHandler
}

// RegisterCustomer registers endpoints open to any signed-in user. The
// handlers restrict non-admins to their own records.
func RegisterCustomer(e *echo.Echo, h CustomerHandlers, jwtSecret string) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)

	// ---- Bookings ----
	g.GET("/bookings", h.Bookings.List)
	g.POST("/bookings", h.Bookings.Create)
	g.GET("/bookings/:id", h.Bookings.Get)
	g.PUT("/bookings/:id", h.Bookings.Update)
	g.DELETE("/bookings/:id", h.Bookings.Delete)
	g.GET("/bookings/:id/history", h.Bookings.History)

	// ---- Profiles ----
	g.POST("/profiles", h.Profiles.Create)
	g.GET("/profiles/:id", h.Profiles.Get)
	g.PUT("/profiles/:id", h.Profiles.UpdatePhoto)
	g.DELETE("/profiles/:id", h.Profiles.Delete)

	// ---- Customers (profiles addressed by user id) ----
	g.POST("/customers", h.Profiles.Create)
	g.GET("/customers/:user_id", h.Profiles.GetByUser)
	g.PUT("/customers/:user_id", h.Profiles.UpdatePhotoByUser)
	g.DELETE("/customers/:user_id", h.Profiles.DeleteByUser)

	g.GET("/history/:id", h.History.Get)
	g.GET("/transactions/:id", h.Transactions.Get)
}
