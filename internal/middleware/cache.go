package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/sidasi/sidasi-backend/internal/config"
)

// cachedResponse is what a catalogue read looks like in Redis.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// recorder tees the handler output into a buffer until it grows past max.
type recorder struct {
	http.ResponseWriter
	status   int
	body     bytes.Buffer
	max      int64
	overflow bool
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.overflow {
		if r.max > 0 && int64(r.body.Len()+len(b)) > r.max {
			r.overflow = true
			r.body.Reset()
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// cacheKeyFrom uses the concrete URL so /products/1 and /products/2 never
// share an entry.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
	u := c.Request().URL
	key := cfg.Prefix + ":" + u.Path
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route", "method_route":
	default:
		if u.RawQuery != "" {
			key += "?" + u.RawQuery
		}
	}
	return key
}

func (cr cachedResponse) replay(c echo.Context) error {
	c.Response().Header().Set("X-Cache", "HIT")
	return c.Blob(cr.Status, cr.ContentType, cr.Body)
}

// NewRedisCache serves product reads from Redis and stores 200 responses on
// a miss. Without Redis it does nothing.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKeyFrom(cfg, c)

			if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var cr cachedResponse
				if json.Unmarshal(raw, &cr) == nil && cr.Status != 0 {
					return cr.replay(c)
				}
			} else if err != redis.Nil {
				Logger(c).Warn("cache read failed", "key", key, "err", err)
			}

			rec := &recorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, max: int64(cfg.MaxBodyBytes)}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.overflow {
				return nil
			}
			raw, err := json.Marshal(cachedResponse{
				Status:      rec.status,
				ContentType: c.Response().Header().Get(echo.HeaderContentType),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				return nil
			}
			if err := rdb.SetEx(context.WithoutCancel(ctx), key, raw, ttl).Err(); err != nil {
				Logger(c).Warn("cache write failed", "key", key, "err", err)
			}
			return nil
		}
	}
}

// PurgeCache drops every cached product response. Product writes call it
// after they commit.
func PurgeCache(ctx context.Context, cfg config.CacheConfig, rdb *redis.Client, logger *slog.Logger) {
	if !cfg.Enabled || rdb == nil {
		return
	}
	var keys []string
	iter := rdb.Scan(ctx, 0, cfg.Prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.Warn("cache purge scan failed", "err", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	n, err := rdb.Del(ctx, keys...).Result()
	if err != nil {
		logger.Warn("cache purge failed", "err", err)
		return
	}
	logger.Debug("cache purged", "keys", n)
}
