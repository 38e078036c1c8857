package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sidasi/sidasi-backend/internal/apperror"
	"github.com/sidasi/sidasi-backend/internal/model"
	"github.com/sidasi/sidasi-backend/internal/repository"
)

// ProfileHandler serves profiles by their own id (/profiles) and by the
// owning user id (/customers).
type ProfileHandler struct {
	Profiles *repository.ProfileRepo
	Store    Uploader
}

func NewProfileHandler(p *repository.ProfileRepo, store Uploader) *ProfileHandler {
	return &ProfileHandler{Profiles: p, Store: store}
}

type profileReq struct {
	UserID uint64 `json:"user_id"`
}

// Create adds a profile for user_id, the caller by default.
func (h *ProfileHandler) Create(c echo.Context) error {
	const op = "profile.create"
	var req profileReq
	if isForm(c) {
		vals, err := c.FormParams()
		if err != nil {
			return fail(c, malformed(op))
		}
		if s := vals.Get("user_id"); s != "" {
			if req.UserID, err = strconv.ParseUint(s, 10, 64); err != nil {
				return fail(c, apperror.Validation(op, apperror.FieldError{Field: "user_id", Problem: "must be a positive integer"}))
			}
		}
	} else if err := c.Bind(&req); err != nil {
		return fail(c, malformed(op))
	}
	if req.UserID == 0 {
		req.UserID = caller(c).UserID
	}
	if err := selfOrAdmin(c, req.UserID); err != nil {
		return fail(c, err)
	}
	photo, err := optionalUpload(c, h.Store, "photo")
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Profiles.Create(ctx, req.UserID, photo)
	if err != nil {
		discardUpload(c, h.Store, photo)
		return fail(c, err)
	}
	p, err := h.Profiles.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, "profile created", p)
}

// List returns every profile. Admin only.
func (h *ProfileHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.Profiles.List(ctx)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "profiles", out)
}

func (h *ProfileHandler) Get(c echo.Context) error {
	return h.withProfile(c, "id", h.Profiles.GetByID, func(ctx context.Context, p *model.Profile) error {
		return ok(c, http.StatusOK, "profile", p)
	})
}

// UpdatePhoto replaces the profile photo with the uploaded "photo" file.
func (h *ProfileHandler) UpdatePhoto(c echo.Context) error {
	return h.withProfile(c, "id", h.Profiles.GetByID, func(ctx context.Context, p *model.Profile) error {
		return h.replacePhoto(c, p, func(ref string) error { return h.Profiles.UpdatePhoto(ctx, p.ID, ref) })
	})
}

func (h *ProfileHandler) Delete(c echo.Context) error {
	return h.withProfile(c, "id", h.Profiles.GetByID, func(ctx context.Context, p *model.Profile) error {
		if err := h.Profiles.Delete(ctx, p.ID); err != nil {
			return fail(c, err)
		}
		discardUpload(c, h.Store, p.Photo)
		return ok(c, http.StatusOK, "profile deleted", echo.Map{"id": p.ID})
	})
}

// GetByUser handles GET /customers/:user_id.
func (h *ProfileHandler) GetByUser(c echo.Context) error {
	return h.withProfile(c, "user_id", h.Profiles.GetByUserID, func(ctx context.Context, p *model.Profile) error {
		return ok(c, http.StatusOK, "customer", p)
	})
}

// UpdatePhotoByUser handles PUT /customers/:user_id.
func (h *ProfileHandler) UpdatePhotoByUser(c echo.Context) error {
	return h.withProfile(c, "user_id", h.Profiles.GetByUserID, func(ctx context.Context, p *model.Profile) error {
		return h.replacePhoto(c, p, func(ref string) error { return h.Profiles.UpdatePhotoByUser(ctx, p.UserID, ref) })
	})
}

// DeleteByUser handles DELETE /customers/:user_id.
func (h *ProfileHandler) DeleteByUser(c echo.Context) error {
	return h.withProfile(c, "user_id", h.Profiles.GetByUserID, func(ctx context.Context, p *model.Profile) error {
		if err := h.Profiles.DeleteByUser(ctx, p.UserID); err != nil {
			return fail(c, err)
		}
		discardUpload(c, h.Store, p.Photo)
		return ok(c, http.StatusOK, "customer deleted", echo.Map{"user_id": p.UserID})
	})
}

// withProfile loads the profile addressed by the path parameter, checks
// the caller owns it (or is an admin) and hands it to fn.
func (h *ProfileHandler) withProfile(c echo.Context, param string,
	load func(context.Context, uint64) (*model.Profile, error),
	fn func(context.Context, *model.Profile) error) error {
	id, err := paramID(c, param)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := load(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	if err := selfOrAdmin(c, p.UserID); err != nil {
		return fail(c, err)
	}
	return fn(ctx, p)
}

func (h *ProfileHandler) replacePhoto(c echo.Context, p *model.Profile, save func(ref string) error) error {
	photo, err := optionalUpload(c, h.Store, "photo")
	if err != nil {
		return fail(c, err)
	}
	if photo == nil {
		return fail(c, apperror.Validation("profile.update", apperror.FieldError{Field: "photo", Problem: "is required"}))
	}
	if err := save(*photo); err != nil {
		discardUpload(c, h.Store, photo)
		return fail(c, err)
	}
	discardUpload(c, h.Store, p.Photo)
	p.Photo = photo
	return ok(c, http.StatusOK, "photo updated", p)
}
