package router

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sidasi/sidasi-backend/internal/config"
	"github.com/sidasi/sidasi-backend/internal/handler"
	"github.com/sidasi/sidasi-backend/internal/middleware"
)

// Handlers is every HTTP handler the API serves.
type Handlers struct {
	Health       *handler.HealthHandler
	Auth         *handler.AuthHandler
	Bookings     *handler.BookingHandler
	Products     *handler.ProductHandler
	Profiles     *handler.ProfileHandler
	History      *handler.HistoryHandler
	Transactions *handler.TransactionHandler
}

// Options carries the settings New needs besides the handlers. Redis may be
// nil, which turns caching and rate limiting off.
type Options struct {
	Cfg       config.Config
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	Redis     *redis.Client
	Logger    *slog.Logger
}

// New builds the Echo instance with the global middleware chain and every
// route registered.
func New(o Options, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(o.Logger)

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(o.Logger))
	if len(o.Cfg.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: o.Cfg.CORSOrigins}))
	} else {
		e.Use(echomw.CORS())
	}
	e.Use(echomw.BodyLimit(bodyLimit(o.Cfg.UploadMaxBytes)))
	e.Use(middleware.NewTokenBucket(o.RateLimit, o.Redis, "api"))

	e.Static("/uploads", o.Cfg.UploadDir)

	RegisterRoutes(e, h.Health)
	RegisterAuth(e, h.Auth, o.Cfg.JWTSecret, middleware.NewTokenBucket(o.RateLimit.ForAuth(), o.Redis, "auth"))
	RegisterPublic(e, h.Products, middleware.NewRedisCache(o.Cache, o.Redis))
	RegisterCustomer(e, CustomerHandlers{
		Bookings:     h.Bookings,
		Profiles:     h.Profiles,
		History:      h.History,
		Transactions: h.Transactions,
	}, o.Cfg.JWTSecret)
	RegisterAdmin(e, AdminHandlers{
		Auth:         h.Auth,
		Products:     h.Products,
		Profiles:     h.Profiles,
		History:      h.History,
		Transactions: h.Transactions,
	}, o.Cfg.JWTSecret)
	return e
}

// errorHandler renders errors that escape handlers, such as unknown routes
// or oversized bodies, in the usual envelope.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if s, ok := he.Message.(string); ok {
				msg = s
			} else {
				msg = http.StatusText(code)
			}
		} else {
			logger.Error("unhandled error", "path", c.Request().URL.Path, "err", err)
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, echo.Map{"status": false, "message": msg, "data": nil})
		}
		if werr != nil {
			logger.Warn("could not write error response", "err", werr)
		}
	}
}

// bodyLimit renders n bytes in the unit syntax BodyLimit parses.
func bodyLimit(n int64) string {
	kb := n / 1024
	if kb < 1 {
		kb = 1
	}
	return strconv.FormatInt(kb, 10) + "K"
}
