package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sidasi/sidasi-backend/internal/apperror"
	"github.com/sidasi/sidasi-backend/internal/model"
	"github.com/sidasi/sidasi-backend/internal/repository"
	"github.com/sidasi/sidasi-backend/internal/validate"
)

// ProductHandler serves the product catalogue. Reads are public and
// cached; writes are admin only and flush the cache.
type ProductHandler struct {
	Products *repository.ProductRepo
	Store    Uploader
	// Invalidate, when set, drops cached catalogue responses after a write.
	Invalidate func(ctx context.Context)
}

func NewProductHandler(p *repository.ProductRepo, store Uploader, invalidate func(ctx context.Context)) *ProductHandler {
	return &ProductHandler{Products: p, Store: store, Invalidate: invalidate}
}

type productReq struct {
	Name     string          `json:"name" validate:"required,max=100"`
	Category string          `json:"category" validate:"max=64"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock" validate:"gte=0"`
	Unit     string          `json:"unit" validate:"max=32"`
	Status   string          `json:"status" validate:"max=32"`
}

func (h *ProductHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.Products.List(ctx)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "products", out)
}

func (h *ProductHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.Products.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "product", p)
}

func (h *ProductHandler) Create(c echo.Context) error {
	req, err := bindProduct(c, "product.create")
	if err != nil {
		return fail(c, err)
	}
	photo, err := optionalUpload(c, h.Store, "photo")
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p := req.model()
	p.Photo = photo
	if err := h.Products.Create(ctx, &p); err != nil {
		discardUpload(c, h.Store, photo)
		return fail(c, err)
	}
	h.invalidate(ctx)
	created, err := h.Products.GetByID(ctx, p.ID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, "product created", created)
}

// Update replaces every product field. The photo is kept unless a new
// file is uploaded.
func (h *ProductHandler) Update(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	req, err := bindProduct(c, "product.update")
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	before, err := h.Products.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	photo, err := optionalUpload(c, h.Store, "photo")
	if err != nil {
		return fail(c, err)
	}
	p := req.model()
	p.ID = id
	p.Photo = photo
	if err := h.Products.Update(ctx, &p); err != nil {
		discardUpload(c, h.Store, photo)
		return fail(c, err)
	}
	if photo != nil {
		discardUpload(c, h.Store, before.Photo)
	}
	h.invalidate(ctx)
	updated, err := h.Products.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "product updated", updated)
}

// Delete removes a product. Products still used by bookings yield 409.
func (h *ProductHandler) Delete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	before, err := h.Products.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Products.Delete(ctx, id); err != nil {
		return fail(c, err)
	}
	discardUpload(c, h.Store, before.Photo)
	h.invalidate(ctx)
	return ok(c, http.StatusOK, "product deleted", echo.Map{"id": id})
}

func (h *ProductHandler) invalidate(ctx context.Context) {
	if h.Invalidate != nil {
		h.Invalidate(context.WithoutCancel(ctx))
	}
}

func (r productReq) model() model.Product {
	return model.Product{
		Name: r.Name, Category: r.Category, Price: r.Price,
		Stock: r.Stock, Unit: r.Unit, Status: r.Status,
	}
}

func bindProduct(c echo.Context, op string) (productReq, error) {
	var req productReq
	var problems []apperror.FieldError
	if isForm(c) {
		vals, err := c.FormParams()
		if err != nil {
			return req, malformed(op)
		}
		problems = productFromForm(vals, &req)
	} else if err := c.Bind(&req); err != nil {
		return req, malformed(op)
	}
	if err := validate.Struct(op, req); err != nil {
		if !apperror.Is(err, apperror.KindValidation) {
			return req, err
		}
		problems = append(problems, apperror.FieldsOf(err)...)
	}
	if req.Price.IsNegative() {
		problems = append(problems, apperror.FieldError{Field: "price", Problem: "must not be negative"})
	}
	if len(problems) > 0 {
		return req, apperror.Validation(op, problems...)
	}
	return req, nil
}

func productFromForm(vals url.Values, req *productReq) []apperror.FieldError {
	var problems []apperror.FieldError
	req.Name = vals.Get("name")
	req.Category = vals.Get("category")
	req.Unit = vals.Get("unit")
	req.Status = vals.Get("status")
	if s := vals.Get("price"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			problems = append(problems, apperror.FieldError{Field: "price", Problem: "must be a decimal number"})
		}
		req.Price = d
	}
	if s := vals.Get("stock"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			problems = append(problems, apperror.FieldError{Field: "stock", Problem: "must be an integer"})
		}
		req.Stock = n
	}
	return problems
}
