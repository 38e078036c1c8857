package middleware

// identity.go stores and reads the authenticated caller on the Echo
// context. JWTAuth writes it; handlers and the rate limiter read it.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sidasi/sidasi-backend/internal/utils"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// SetIdentity records the verified caller on the context.
func SetIdentity(c echo.Context, id utils.Identity) {
	c.Set(ctxUserID, id.UserID)
	c.Set(ctxRole, id.Role)
}

// IdentityFrom returns the caller recorded by JWTAuth.
func IdentityFrom(c echo.Context) (utils.Identity, bool) {
	uid, ok := c.Get(ctxUserID).(uint64)
	if !ok || uid == 0 {
		return utils.Identity{}, false
	}
	role, _ := c.Get(ctxRole).(string)
	return utils.Identity{UserID: uid, Role: role}, true
}

// currentUserID returns the caller id as a string, or "anon".
func currentUserID(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok {
		return strconv.FormatUint(id.UserID, 10)
	}
	return "anon"
}
