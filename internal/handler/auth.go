package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sidasi/sidasi-backend/internal/apperror"
	"github.com/sidasi/sidasi-backend/internal/config"
	"github.com/sidasi/sidasi-backend/internal/middleware"
	"github.com/sidasi/sidasi-backend/internal/model"
	"github.com/sidasi/sidasi-backend/internal/repository"
	"github.com/sidasi/sidasi-backend/internal/utils"
	"github.com/sidasi/sidasi-backend/internal/validate"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	Store  Uploader
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, store Uploader) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Store: store}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name" form:"name" validate:"required,max=100"`
	Address  string `json:"address" form:"address" validate:"max=255"`
	Email    string `json:"email" form:"email" validate:"required,email,max=191"`
	Password string `json:"password" form:"password" validate:"required,min=6,max=72"`
	Phone    string `json:"phone" form:"phone" validate:"max=32"`
}
type loginReq struct {
	Email    string `json:"email" form:"email" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token" form:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type authResp struct {
	User    model.User `json:"user"`
	Access  tokenPart  `json:"access"`
	Refresh tokenPart  `json:"refresh"`
}

var errInvalidCredentials = errors.New("invalid credentials")

// Register creates a USER account, optionally with a photo, and returns a
// token pair immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return fail(c, malformed("auth.register"))
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct("auth.register", req); err != nil {
		return fail(c, err)
	}

	photo, err := optionalUpload(c, h.Store, "photo")
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	nu := repository.NewUser{Name: req.Name, Address: req.Address, Email: req.Email, Password: req.Password, Phone: req.Phone}
	if photo != nil {
		nu.Photo = *photo
	}
	uid, err := h.Users.Create(ctx, nu, h.Cfg.BcryptCost)
	if err != nil {
		discardUpload(c, h.Store, photo)
		return fail(c, err)
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, "registered", resp)
}

// Login verifies credentials and returns a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, malformed("auth.login"))
	}
	if err := validate.Struct("auth.login", req); err != nil {
		return fail(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return h.unauthorized(c, errInvalidCredentials.Error())
	}
	if err != nil {
		return fail(c, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return h.unauthorized(c, errInvalidCredentials.Error())
	}
	if utils.NeedsRehash(u.PasswordHash, h.Cfg.BcryptCost) {
		if err := h.Users.Update(ctx, u.ID, repository.UserUpdate{Password: &req.Password}, h.Cfg.BcryptCost); err != nil {
			middleware.Logger(c).Warn("password rehash failed", "user_id", u.ID, "err", err)
		}
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "logged in", resp)
}

// Refresh spends the presented refresh token and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fail(c, apperror.Validation("auth.refresh", apperror.FieldError{Field: "refresh_token", Problem: "is required"}))
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	next, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return fail(c, apperror.Internal("auth.refresh", err))
	}
	userID, err := h.Tokens.Rotate(ctx, hash, utils.HashRefreshRaw(next.Raw), next.Exp)
	if errors.Is(err, repository.ErrRefreshInvalid) {
		return h.unauthorized(c, "invalid refresh token")
	}
	if err != nil {
		return fail(c, err)
	}
	u, err := h.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return h.unauthorized(c, "invalid refresh token")
	}
	if err != nil {
		return fail(c, err)
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, apperror.Internal("auth.refresh", err))
	}
	return ok(c, http.StatusOK, "token refreshed", authResp{
		User:    u,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: next.Raw, Expires: next.Exp},
	})
}

// Logout revokes the refresh token in the body, or every token of the
// bearer when no body token is given.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if raw != "" {
		err := h.Tokens.Revoke(ctx, utils.HashRefreshRaw(raw))
		if errors.Is(err, repository.ErrRefreshInvalid) {
			return h.unauthorized(c, "invalid refresh token")
		}
		if err != nil {
			return fail(c, err)
		}
		return ok(c, http.StatusOK, "logged out", nil)
	}

	bearer := strings.TrimSpace(strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer "))
	if bearer == "" {
		return fail(c, apperror.Validation("auth.logout",
			apperror.FieldError{Field: "refresh_token", Problem: "provide a refresh_token or an Authorization header"}))
	}
	id, err := utils.ParseAccessToken(h.Cfg.JWTSecret, bearer)
	if err != nil {
		return h.unauthorized(c, "invalid or expired token")
	}
	n, err := h.Tokens.RevokeAll(ctx, id.UserID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "logged out of all sessions", echo.Map{"revoked": n})
}

func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, apperror.Internal("auth.issue", err)
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, apperror.Internal("auth.issue", err)
	}
	if err := h.Tokens.Store(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, apperror.Internal("auth.issue", err)
	}
	return authResp{
		User:    u,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

func (h *AuthHandler) unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, envelope{Message: msg})
}
