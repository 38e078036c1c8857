package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidasi/sidasi-backend/internal/config"
	"github.com/sidasi/sidasi-backend/internal/utils"
)

const secret = "test-secret"

func newServer() *echo.Echo {
	e := echo.New()
	whoami := func(c echo.Context) error {
		id, ok := IdentityFrom(c)
		if !ok {
			return c.NoContent(http.StatusTeapot)
		}
		return c.JSON(http.StatusOK, echo.Map{"user_id": id.UserID, "role": id.Role})
	}
	e.GET("/me", whoami, JWTAuth(secret))
	e.GET("/admin", whoami, JWTAuth(secret), RequireRole("ADMIN"))
	return e
}

func do(e *echo.Echo, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, uid uint64, role string) string {
	t.Helper()
	at, err := utils.NewAccessToken(secret, uid, role, 5)
	require.NoError(t, err)
	return at.Token
}

func TestJWTAuth(t *testing.T) {
	e := newServer()

	rec := do(e, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"status":false,"message":"missing bearer token","data":null}`, rec.Body.String())

	rec = do(e, "/me", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, "/me", token(t, 9, "USER"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":9,"role":"USER"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := newServer()

	assert.Equal(t, http.StatusForbidden, do(e, "/admin", token(t, 9, "USER")).Code)
	assert.Equal(t, http.StatusOK, do(e, "/admin", token(t, 1, "ADMIN")).Code)
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(RequestLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	e.GET("/ping", func(c echo.Context) error {
		Logger(c).Info("inside")
		return c.String(http.StatusOK, "pong")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	reqID := rec.Header().Get(echo.HeaderXRequestID)
	assert.NotEmpty(t, reqID)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, reqID, entry["request_id"])
	assert.EqualValues(t, 200, entry["status"])

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc-123")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(echo.HeaderXRequestID))
}

func TestCachedResponseReplay(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/products", nil), rec)

	cr := cachedResponse{Status: http.StatusOK, ContentType: echo.MIMEApplicationJSON, Body: []byte(`{"ok":true}`)}
	require.NoError(t, cr.replay(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, echo.MIMEApplicationJSON, rec.Header().Get(echo.HeaderContentType))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestRecorderStopsBufferingPastMax(t *testing.T) {
	r := &recorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK, max: 4}
	_, _ = r.Write([]byte("abc"))
	assert.False(t, r.overflow)
	_, _ = r.Write([]byte("de"))
	assert.True(t, r.overflow)
	assert.Zero(t, r.body.Len())
}

func TestCacheKeyUsesConcretePath(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "p", KeyStrategy: "route_query"}
	key := func(target string) string {
		return cacheKeyFrom(cfg, e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder()))
	}

	assert.NotEqual(t, key("/v1/products/1"), key("/v1/products/2"))
	assert.NotEqual(t, key("/v1/products?page=1"), key("/v1/products?page=2"))
	assert.Equal(t, key("/v1/products/1"), key("/v1/products/1"))
	assert.Equal(t, "p:/v1/products?page=1", key("/v1/products?page=1"))

	cfg.KeyStrategy = "route"
	assert.Equal(t, "p:/v1/products", key("/v1/products?page=1"))
}

func TestMiddlewaresPassThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, "api"))
	e.Use(NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil))
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "x") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/products", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/products")

	assert.Equal(t, "rl:api:ip:10.0.0.7", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip"}, c, "api"))
	assert.Equal(t, "rl:api:ip:10.0.0.7:user:anon:route:GET /v1/products", buildRateKey(config.RateLimitConfig{Prefix: "rl"}, c, "api"))

	SetIdentity(c, utils.Identity{UserID: 3, Role: "USER"})
	assert.Equal(t, "rl:auth:user:3", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c, "auth"))
	assert.Equal(t, 2, retryAfterSeconds(1500))
}

func TestParseDecision(t *testing.T) {
	d, err := parseDecision([]interface{}{int64(0), int64(0), int64(1500)})
	require.NoError(t, err)
	assert.False(t, d.allowed)
	assert.Equal(t, 2, d.retryAfter)

	d, err = parseDecision([]interface{}{int64(1), "4", int64(0)})
	require.NoError(t, err)
	assert.True(t, d.allowed)
	assert.Equal(t, int64(4), d.remaining)

	_, err = parseDecision("nope")
	assert.Error(t, err)
}
