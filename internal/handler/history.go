package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sidasi/sidasi-backend/internal/repository"
)

// HistoryHandler exposes the read side of the booking audit trail. Rows
// are only ever written by the booking workflow.
type HistoryHandler struct {
	History *repository.HistoryRepo
}

func NewHistoryHandler(r *repository.HistoryRepo) *HistoryHandler { return &HistoryHandler{History: r} }

// List returns every history row, newest first. Admin only.
func (h *HistoryHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.History.List(ctx)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "history", out)
}

func (h *HistoryHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	v, err := h.History.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	if err := selfOrAdmin(c, v.UserID); err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "history entry", v)
}
