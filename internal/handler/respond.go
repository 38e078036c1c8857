package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sidasi/sidasi-backend/internal/apperror"
	"github.com/sidasi/sidasi-backend/internal/middleware"
	"github.com/sidasi/sidasi-backend/internal/model"
	"github.com/sidasi/sidasi-backend/internal/repository"
	"github.com/sidasi/sidasi-backend/internal/storage"
	"github.com/sidasi/sidasi-backend/internal/utils"
)

// envelope is the shape of every JSON response.
type envelope struct {
	Status  bool                  `json:"status"`
	Message string                `json:"message"`
	Data    interface{}           `json:"data"`
	Errors  []apperror.FieldError `json:"errors,omitempty"`
}

// Uploader persists an uploaded file and returns its public reference.
type Uploader interface {
	Save(fh *multipart.FileHeader) (string, error)
	Remove(ref string) error
}

func ok(c echo.Context, status int, msg string, data interface{}) error {
	return c.JSON(status, envelope{Status: true, Message: msg, Data: data})
}

// fail writes the response for err according to its kind. Internal errors
// are logged with the request logger and reported generically.
func fail(c echo.Context, err error) error {
	err = fromRepository(err)
	var ae *apperror.Error
	errors.As(err, &ae)

	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return c.JSON(http.StatusBadRequest, envelope{Message: ae.Message, Errors: ae.Fields})
	case apperror.KindNotFound:
		return c.JSON(http.StatusNotFound, envelope{Message: ae.Message})
	case apperror.KindConflict:
		return c.JSON(http.StatusConflict, envelope{Message: ae.Message})
	case apperror.KindForbidden:
		return c.JSON(http.StatusForbidden, envelope{Message: "forbidden"})
	case apperror.KindContention:
		middleware.Logger(c).Warn("request abandoned after lock wait retries", "err", err)
		c.Response().Header().Set(echo.HeaderRetryAfter, "1")
		return c.JSON(http.StatusServiceUnavailable, envelope{Message: "database is busy, please retry"})
	default:
		middleware.Logger(c).Error("request failed", "path", c.Path(), "err", err)
		return c.JSON(http.StatusInternalServerError, envelope{Message: "internal server error"})
	}
}

// fromRepository tags repository sentinels with a kind.
func fromRepository(err error) error {
	switch {
	case errors.Is(err, repository.ErrBookingNotFound):
		return apperror.NotFound("", "booking")
	case errors.Is(err, repository.ErrProductNotFound):
		return apperror.NotFound("", "product")
	case errors.Is(err, repository.ErrProfileNotFound):
		return apperror.NotFound("", "profile")
	case errors.Is(err, repository.ErrUserNotFound):
		return apperror.NotFound("", "user")
	case errors.Is(err, repository.ErrHistoryNotFound):
		return apperror.NotFound("", "history entry")
	case errors.Is(err, repository.ErrEmailExists):
		return apperror.Conflict("", "email already exists", err)
	case errors.Is(err, repository.ErrProfileExists):
		return apperror.Conflict("", "profile already exists", err)
	case errors.Is(err, repository.ErrConflict):
		return apperror.Conflict("", "resource is still referenced", err)
	case errors.Is(err, storage.ErrUnsupportedType):
		return apperror.Validation("", apperror.FieldError{Field: "file", Problem: "unsupported file type"})
	}
	return err
}

// paramID parses a positive integer path parameter.
func paramID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.Validation("", apperror.FieldError{Field: name, Problem: "must be a positive integer"})
	}
	return id, nil
}

// caller returns the authenticated identity; routes using it sit behind
// JWTAuth.
func caller(c echo.Context) utils.Identity {
	id, _ := middleware.IdentityFrom(c)
	return id
}

func isAdmin(c echo.Context) bool { return caller(c).Role == model.RoleAdmin }

// selfOrAdmin allows the owner of a resource or an admin.
func selfOrAdmin(c echo.Context, ownerID uint64) error {
	id := caller(c)
	if id.Role == model.RoleAdmin || (id.UserID != 0 && id.UserID == ownerID) {
		return nil
	}
	return apperror.Forbidden("")
}

// optionalUpload stores the file under field when present. A nil
// reference means no file was sent.
func optionalUpload(c echo.Context, store Uploader, field string) (*string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, apperror.Validation("", apperror.FieldError{Field: field, Problem: "could not read upload"})
	}
	ref, err := store.Save(fh)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// discardUpload removes a file stored for a request that then failed.
func discardUpload(c echo.Context, store Uploader, ref *string) {
	if ref == nil {
		return
	}
	if err := store.Remove(*ref); err != nil {
		middleware.Logger(c).Warn("could not remove orphaned upload", "ref", *ref, "err", err)
	}
}

// isForm reports whether the request body is form encoded.
func isForm(c echo.Context) bool {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	return strings.HasPrefix(ct, echo.MIMEMultipartForm) || strings.HasPrefix(ct, echo.MIMEApplicationForm)
}

// formString returns a pointer to the submitted value, or nil when the
// key is absent. Presence matters: an absent field keeps its stored value.
func formString(vals url.Values, key string) *string {
	if _, ok := vals[key]; !ok {
		return nil
	}
	s := vals.Get(key)
	return &s
}
