package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sidasi/sidasi-backend/internal/apperror"
	"github.com/sidasi/sidasi-backend/internal/model"
	"github.com/sidasi/sidasi-backend/internal/repository"
	"github.com/sidasi/sidasi-backend/internal/service"
)

// TransactionHandler is the payment-validation view of bookings. Marking
// a transaction validated goes through the booking workflow so the
// completion history row is written in the same transaction.
type TransactionHandler struct {
	Transactions *repository.TransactionRepo
	Bookings     BookingService
}

func NewTransactionHandler(t *repository.TransactionRepo, b BookingService) *TransactionHandler {
	return &TransactionHandler{Transactions: t, Bookings: b}
}

type validationReq struct {
	ValidationStatus string `json:"validation_status" form:"validation_status"`
}

// List returns transactions, optionally filtered by ?status=Pending|Done.
// Admin only.
func (h *TransactionHandler) List(c echo.Context) error {
	status := c.QueryParam("status")
	if status != "" && status != model.ValidationPending && status != model.ValidationDone {
		return fail(c, apperror.Validation("transaction.list", apperror.FieldError{Field: "status", Problem: "must be one of [Pending Done]"}))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.Transactions.List(ctx, status)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "transactions", out)
}

func (h *TransactionHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, err := h.Transactions.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	if err := selfOrAdmin(c, t.UserID); err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "transaction", t)
}

// Validate sets the validation status of a transaction. Admin only.
func (h *TransactionHandler) Validate(c echo.Context) error {
	const op = "transaction.validate"
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req validationReq
	if err := c.Bind(&req); err != nil {
		return fail(c, malformed(op))
	}
	if req.ValidationStatus == "" {
		return fail(c, apperror.Validation(op, apperror.FieldError{Field: "validation_status", Problem: "is required"}))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), bookingTimeout)
	defer cancel()

	res, err := h.Bookings.Update(ctx, id, service.UpdateBookingInput{ValidationStatus: &req.ValidationStatus})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "transaction updated", res)
}
