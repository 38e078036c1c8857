package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/sidasi/sidasi-backend/internal/handler"
)

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestReadyReflectsDatabase(t *testing.T) {
	cases := []struct {
		name   string
		db     pinger
		status int
		data   string
	}{
		{"up", pinger{}, http.StatusOK, `{"database":"up","redis":"disabled"}`},
		{"down", pinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, `{"database":"down","redis":"disabled"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			h := handler.NewHealthHandler(tc.db, nil)
			e.GET("/readyz", h.Ready)

			rec := serve(e, httptest.NewRequest(http.MethodGet, "/readyz", nil), "")
			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tc.status == http.StatusOK, body.Status)
			assert.JSONEq(t, tc.data, string(body.Data))
		})
	}
}
