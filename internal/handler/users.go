package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sidasi/sidasi-backend/internal/repository"
	"github.com/sidasi/sidasi-backend/internal/validate"
)

type userUpdateReq struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Address  *string `json:"address" validate:"omitempty,max=255"`
	Email    *string `json:"email" validate:"omitempty,email,max=191"`
	Password *string `json:"password" validate:"omitempty,min=6,max=72"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
}

// Me returns the authenticated user's account.
func (h *AuthHandler) Me(c echo.Context) error {
	return h.showUser(c, caller(c).UserID)
}

// ListUsers returns every account. Admin only.
func (h *AuthHandler) ListUsers(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "users", users)
}

// GetUser returns one account to its owner or an admin.
func (h *AuthHandler) GetUser(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := selfOrAdmin(c, id); err != nil {
		return fail(c, err)
	}
	return h.showUser(c, id)
}

// UpdateMe applies a partial update to the caller's own account.
func (h *AuthHandler) UpdateMe(c echo.Context) error {
	return h.updateUser(c, caller(c).UserID)
}

// UpdateUser applies a partial update to any account. Admin only.
func (h *AuthHandler) UpdateUser(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	return h.updateUser(c, id)
}

func (h *AuthHandler) showUser(c echo.Context, id uint64) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "user", u)
}

func (h *AuthHandler) updateUser(c echo.Context, id uint64) error {
	var req userUpdateReq
	if isForm(c) {
		vals, err := c.FormParams()
		if err != nil {
			return fail(c, malformed("user.update"))
		}
		req = userUpdateReq{
			Name:     formString(vals, "name"),
			Address:  formString(vals, "address"),
			Email:    formString(vals, "email"),
			Password: formString(vals, "password"),
			Phone:    formString(vals, "phone"),
		}
	} else if err := c.Bind(&req); err != nil {
		return fail(c, malformed("user.update"))
	}
	if req.Password != nil && strings.TrimSpace(*req.Password) == "" {
		req.Password = nil
	}
	if err := validate.Struct("user.update", req); err != nil {
		return fail(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	before, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	photo, err := optionalUpload(c, h.Store, "photo")
	if err != nil {
		return fail(c, err)
	}
	upd := repository.UserUpdate{
		Name: req.Name, Address: req.Address, Email: req.Email,
		Password: req.Password, Phone: req.Phone, Photo: photo,
	}
	if err := h.Users.Update(ctx, id, upd, h.Cfg.BcryptCost); err != nil {
		discardUpload(c, h.Store, photo)
		return fail(c, err)
	}
	if photo != nil {
		discardUpload(c, h.Store, &before.Photo)
	}
	return h.showUser(c, id)
}
