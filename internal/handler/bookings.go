package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sidasi/sidasi-backend/internal/apperror"
	"github.com/sidasi/sidasi-backend/internal/model"
	"github.com/sidasi/sidasi-backend/internal/service"
)

// BookingService is the booking workflow the HTTP layer drives.
type BookingService interface {
	Create(ctx context.Context, in service.CreateBookingInput) (uint64, error)
	Update(ctx context.Context, id uint64, in service.UpdateBookingInput) (service.UpdateResult, error)
	Delete(ctx context.Context, id uint64) (service.DeleteResult, error)
	Get(ctx context.Context, id uint64) (*model.Booking, error)
	List(ctx context.Context, userID uint64) ([]model.Booking, error)
	History(ctx context.Context, id uint64) ([]model.HistoryView, error)
}

// BookingHandler exposes the booking workflow. Bookings accept JSON or
// multipart bodies; in multipart form "products" carries a JSON array and
// "payment_proof" an optional file.
type BookingHandler struct {
	Bookings BookingService
	Store    Uploader
}

func NewBookingHandler(b BookingService, store Uploader) *BookingHandler {
	return &BookingHandler{Bookings: b, Store: store}
}

// bookingTimeout bounds a whole workflow call, retries included.
const bookingTimeout = 15 * time.Second

// Create handles POST /bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	const op = "booking.create"
	var in service.CreateBookingInput
	if isForm(c) {
		vals, err := c.FormParams()
		if err != nil {
			return fail(c, malformed(op))
		}
		var problems []apperror.FieldError
		if s := vals.Get("user_id"); s != "" {
			if in.UserID, err = strconv.ParseUint(s, 10, 64); err != nil {
				problems = append(problems, apperror.FieldError{Field: "user_id", Problem: "must be a positive integer"})
			}
		}
		in.BookingDate = vals.Get("booking_date")
		in.PaymentStatus = vals.Get("payment_status")
		if in.Items, err = formItems(vals); err != nil {
			problems = append(problems, apperror.FieldError{Field: "products", Problem: "must be a JSON array of {product_id, quantity}"})
		}
		if len(problems) > 0 {
			return fail(c, apperror.Validation(op, problems...))
		}
	} else if err := c.Bind(&in); err != nil {
		return fail(c, malformed(op))
	}

	me := caller(c)
	if in.UserID == 0 {
		in.UserID = me.UserID
	}
	if err := selfOrAdmin(c, in.UserID); err != nil {
		return fail(c, err)
	}

	proof, err := optionalUpload(c, h.Store, "payment_proof")
	if err != nil {
		return fail(c, err)
	}
	if proof != nil {
		in.PaymentProof = proof
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), bookingTimeout)
	defer cancel()

	id, err := h.Bookings.Create(ctx, in)
	if err != nil {
		discardUpload(c, h.Store, proof)
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, "booking created", echo.Map{"booking_id": id})
}

// Update handles PUT /bookings/:id. Only admins may change the owner or
// the validation status.
func (h *BookingHandler) Update(c echo.Context) error {
	const op = "booking.update"
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	in, err := bindBookingUpdate(c, op)
	if err != nil {
		return fail(c, err)
	}
	if !isAdmin(c) && (in.UserID != nil || in.ValidationStatus != nil) {
		return fail(c, apperror.Forbidden(op))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), bookingTimeout)
	defer cancel()

	if err := h.authorize(ctx, c, id); err != nil {
		return fail(c, err)
	}
	proof, err := optionalUpload(c, h.Store, "payment_proof")
	if err != nil {
		return fail(c, err)
	}
	if proof != nil {
		in.PaymentProof = proof
	}

	res, err := h.Bookings.Update(ctx, id, in)
	if err != nil {
		discardUpload(c, h.Store, proof)
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "booking updated", res)
}

// Delete handles DELETE /bookings/:id. Deleting a missing booking reports
// deleted: 0.
func (h *BookingHandler) Delete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), bookingTimeout)
	defer cancel()

	if err := h.authorize(ctx, c, id); err != nil {
		return fail(c, err)
	}
	res, err := h.Bookings.Delete(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "booking deleted", res)
}

// List handles GET /bookings. Admins see every booking, optionally
// filtered by ?user_id; everyone else sees their own.
func (h *BookingHandler) List(c echo.Context) error {
	userID := caller(c).UserID
	if isAdmin(c) {
		userID = 0
		if s := c.QueryParam("user_id"); s != "" {
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return fail(c, apperror.Validation("booking.list", apperror.FieldError{Field: "user_id", Problem: "must be a positive integer"}))
			}
			userID = n
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.Bookings.List(ctx, userID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "bookings", out)
}

// Get handles GET /bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	b, err := h.Bookings.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	if err := selfOrAdmin(c, b.UserID); err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "booking", b)
}

// History handles GET /bookings/:id/history.
func (h *BookingHandler) History(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	b, err := h.Bookings.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	if err := selfOrAdmin(c, b.UserID); err != nil {
		return fail(c, err)
	}
	out, err := h.Bookings.History(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "booking history", out)
}

// authorize lets admins through and checks ownership for everyone else. A
// missing booking is left for the workflow to report.
func (h *BookingHandler) authorize(ctx context.Context, c echo.Context, id uint64) error {
	if isAdmin(c) {
		return nil
	}
	b, err := h.Bookings.Get(ctx, id)
	if apperror.Is(err, apperror.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return selfOrAdmin(c, b.UserID)
}

func bindBookingUpdate(c echo.Context, op string) (service.UpdateBookingInput, error) {
	var in service.UpdateBookingInput
	if !isForm(c) {
		if err := c.Bind(&in); err != nil {
			return in, malformed(op)
		}
		return in, nil
	}
	vals, err := c.FormParams()
	if err != nil {
		return in, malformed(op)
	}
	var problems []apperror.FieldError
	if s := formString(vals, "user_id"); s != nil {
		n, err := strconv.ParseUint(*s, 10, 64)
		if err != nil {
			problems = append(problems, apperror.FieldError{Field: "user_id", Problem: "must be a positive integer"})
		}
		in.UserID = &n
	}
	in.BookingDate = formString(vals, "booking_date")
	in.PaymentStatus = formString(vals, "payment_status")
	in.ValidationStatus = formString(vals, "validation_status")
	if _, present := vals["products"]; present {
		items, err := formItems(vals)
		if err != nil {
			problems = append(problems, apperror.FieldError{Field: "products", Problem: "must be a JSON array of {product_id, quantity}"})
		}
		if items == nil {
			items = []service.LineItem{}
		}
		in.Items = items
	}
	if len(problems) > 0 {
		return in, apperror.Validation(op, problems...)
	}
	return in, nil
}

// formItems decodes the JSON array carried in the "products" form field.
func formItems(vals url.Values) ([]service.LineItem, error) {
	raw := vals.Get("products")
	if raw == "" {
		return nil, nil
	}
	var items []service.LineItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func malformed(op string) error {
	return apperror.Validation(op, apperror.FieldError{Field: "body", Problem: "is malformed"})
}
