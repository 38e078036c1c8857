package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sidasi/sidasi-backend/internal/apperror"
	"github.com/sidasi/sidasi-backend/internal/handler"
	"github.com/sidasi/sidasi-backend/internal/middleware"
	"github.com/sidasi/sidasi-backend/internal/model"
	"github.com/sidasi/sidasi-backend/internal/service"
	"github.com/sidasi/sidasi-backend/internal/utils"
)

const secret = "handler-test-secret"

// --- Mock BookingService ---
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) Create(ctx context.Context, in service.CreateBookingInput) (uint64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(uint64), args.Error(1)
}
func (m *MockBookingService) Update(ctx context.Context, id uint64, in service.UpdateBookingInput) (service.UpdateResult, error) {
	args := m.Called(ctx, id, in)
	return args.Get(0).(service.UpdateResult), args.Error(1)
}
func (m *MockBookingService) Delete(ctx context.Context, id uint64) (service.DeleteResult, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.DeleteResult), args.Error(1)
}
func (m *MockBookingService) Get(ctx context.Context, id uint64) (*model.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}
func (m *MockBookingService) List(ctx context.Context, userID uint64) ([]model.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Booking), args.Error(1)
}
func (m *MockBookingService) History(ctx context.Context, id uint64) ([]model.HistoryView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.HistoryView), args.Error(1)
}

var _ handler.BookingService = (*MockBookingService)(nil)

// fakeStore records saved and removed uploads without touching disk.
type fakeStore struct {
	saved   []string
	removed []string
}

func (s *fakeStore) Save(fh *multipart.FileHeader) (string, error) {
	ref := "/uploads/" + fh.Filename
	s.saved = append(s.saved, ref)
	return ref, nil
}

func (s *fakeStore) Remove(ref string) error {
	s.removed = append(s.removed, ref)
	return nil
}

type response struct {
	Status  bool                  `json:"status"`
	Message string                `json:"message"`
	Data    json.RawMessage       `json:"data"`
	Errors  []apperror.FieldError `json:"errors"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var r response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r), rec.Body.String())
	return r
}

func bearer(t *testing.T, uid uint64, role string) string {
	t.Helper()
	at, err := utils.NewAccessToken(secret, uid, role, 5)
	require.NoError(t, err)
	return "Bearer " + at.Token
}

func newBookingServer(svc *MockBookingService, store *fakeStore) *echo.Echo {
	e := echo.New()
	h := handler.NewBookingHandler(svc, store)
	g := e.Group("/v1", middleware.JWTAuth(secret))
	g.GET("/bookings", h.List)
	g.POST("/bookings", h.Create)
	g.GET("/bookings/:id", h.Get)
	g.PUT("/bookings/:id", h.Update)
	g.DELETE("/bookings/:id", h.Delete)
	g.GET("/bookings/:id/history", h.History)
	return e
}

func serve(e *echo.Echo, req *http.Request, auth string) *httptest.ResponseRecorder {
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func multipartRequest(t *testing.T, method, path string, fields map[string]string, fileField, fileName string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte("file-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestCreateBookingDefaultsOwnerToCaller(t *testing.T) {
	svc := new(MockBookingService)
	e := newBookingServer(svc, &fakeStore{})

	svc.On("Create", mock.Anything, mock.MatchedBy(func(in service.CreateBookingInput) bool {
		return in.UserID == 4 && in.BookingDate == "2024-05-01" &&
			len(in.Items) == 1 && in.Items[0] == service.LineItem{ProductID: 9, Quantity: 2}
	})).Return(uint64(7), nil).Once()

	rec := serve(e, jsonRequest(http.MethodPost, "/v1/bookings",
		`{"booking_date":"2024-05-01","payment_status":"paid","products":[{"product_id":9,"quantity":2}]}`),
		bearer(t, 4, model.RoleUser))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r := decode(t, rec)
	assert.True(t, r.Status)
	assert.JSONEq(t, `{"booking_id":7}`, string(r.Data))
	svc.AssertExpectations(t)
}

func TestCreateBookingMultipartStoresProof(t *testing.T) {
	svc := new(MockBookingService)
	store := &fakeStore{}
	e := newBookingServer(svc, store)

	svc.On("Create", mock.Anything, mock.MatchedBy(func(in service.CreateBookingInput) bool {
		return in.UserID == 4 && in.PaymentProof != nil && *in.PaymentProof == "/uploads/proof.png" &&
			len(in.Items) == 2
	})).Return(uint64(11), nil).Once()

	req := multipartRequest(t, http.MethodPost, "/v1/bookings", map[string]string{
		"user_id":        "4",
		"booking_date":   "2024-05-01",
		"payment_status": "paid",
		"products":       `[{"product_id":1,"quantity":1},{"product_id":2,"quantity":3}]`,
	}, "payment_proof", "proof.png")
	rec := serve(e, req, bearer(t, 4, model.RoleUser))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"/uploads/proof.png"}, store.saved)
	assert.Empty(t, store.removed)
	svc.AssertExpectations(t)
}

func TestCreateBookingRemovesProofOnFailure(t *testing.T) {
	svc := new(MockBookingService)
	store := &fakeStore{}
	e := newBookingServer(svc, store)

	svc.On("Create", mock.Anything, mock.Anything).
		Return(uint64(0), apperror.Validation("booking.create", apperror.FieldError{Field: "booking_date", Problem: "is required"})).Once()

	req := multipartRequest(t, http.MethodPost, "/v1/bookings", map[string]string{
		"products": `[{"product_id":1,"quantity":1}]`,
	}, "payment_proof", "proof.png")
	rec := serve(e, req, bearer(t, 4, model.RoleUser))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	r := decode(t, rec)
	assert.False(t, r.Status)
	assert.Equal(t, []apperror.FieldError{{Field: "booking_date", Problem: "is required"}}, r.Errors)
	assert.Equal(t, []string{"/uploads/proof.png"}, store.removed)
}

func TestCreateBookingRejectsMalformedProducts(t *testing.T) {
	svc := new(MockBookingService)
	e := newBookingServer(svc, &fakeStore{})

	req := multipartRequest(t, http.MethodPost, "/v1/bookings", map[string]string{
		"booking_date": "2024-05-01",
		"products":     `not json`,
	}, "", "")
	rec := serve(e, req, bearer(t, 4, model.RoleUser))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "products", decode(t, rec).Errors[0].Field)
	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateBookingForAnotherUserIsForbidden(t *testing.T) {
	svc := new(MockBookingService)
	e := newBookingServer(svc, &fakeStore{})

	rec := serve(e, jsonRequest(http.MethodPost, "/v1/bookings",
		`{"user_id":99,"booking_date":"2024-05-01","products":[{"product_id":1,"quantity":1}]}`),
		bearer(t, 4, model.RoleUser))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateBookingContentionIsRetryable(t *testing.T) {
	svc := new(MockBookingService)
	e := newBookingServer(svc, &fakeStore{})

	svc.On("Create", mock.Anything, mock.Anything).
		Return(uint64(0), apperror.Contention("booking.create", errors.New("lock wait"))).Once()

	rec := serve(e, jsonRequest(http.MethodPost, "/v1/bookings",
		`{"user_id":99,"booking_date":"2024-05-01","products":[{"product_id":1,"quantity":1}]}`),
		bearer(t, 1, model.RoleAdmin))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(echo.HeaderRetryAfter))
}

func TestUpdateBookingStatusRequiresAdmin(t *testing.T) {
	svc := new(MockBookingService)
	e := newBookingServer(svc, &fakeStore{})

	rec := serve(e, jsonRequest(http.MethodPut, "/v1/bookings/3", `{"validation_status":"Done"}`),
		bearer(t, 4, model.RoleUser))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	svc.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateBookingAsAdmin(t *testing.T) {
	svc := new(MockBookingService)
	e := newBookingServer(svc, &fakeStore{})

	svc.On("Update", mock.Anything, uint64(3), mock.MatchedBy(func(in service.UpdateBookingInput) bool {
		return in.ValidationStatus != nil && *in.ValidationStatus == model.ValidationDone &&
			in.Items == nil && in.UserID == nil
	})).Return(service.UpdateResult{AffectedRows: 1, HistoryRecorded: true}, nil).Once()

	rec := serve(e, jsonRequest(http.MethodPut, "/v1/bookings/3", `{"validation_status":"Done"}`),
		bearer(t, 1, model.RoleAdmin))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"affected_rows":1,"items_replaced":0,"history_recorded":true}`, string(decode(t, rec).Data))
	svc.AssertExpectations(t)
}

func TestUpdateBookingMultipartReplacesItems(t *testing.T) {
	svc := new(MockBookingService)
	e := newBookingServer(svc, &fakeStore{})

	svc.On("Get", mock.Anything, uint64(3)).Return(&model.Booking{ID: 3, UserID: 4}, nil).Once()
	svc.On("Update", mock.Anything, uint64(3), mock.MatchedBy(func(in service.UpdateBookingInput) bool {
		return in.PaymentStatus != nil && *in.PaymentStatus == "paid" && in.BookingDate == nil &&
			len(in.Items) == 1 && in.Items[0].ProductID == 5
	})).Return(service.UpdateResult{AffectedRows: 1, ItemsReplaced: 1}, nil).Once()

	req := multipartRequest(t, http.MethodPut, "/v1/bookings/3", map[string]string{
		"payment_status": "paid",
		"products":       `[{"product_id":5,"quantity":1}]`,
	}, "", "")
	rec := serve(e, req, bearer(t, 4, model.RoleUser))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	svc.AssertExpectations(t)
}

func TestDeleteBookingOfAnotherUserIsForbidden(t *testing.T) {
	svc := new(MockBookingService)
	e := newBookingServer(svc, &fakeStore{})

	svc.On("Get", mock.Anything, uint64(3)).Return(&model.Booking{ID: 3, UserID: 8}, nil).Once()

	rec := serve(e, httptest.NewRequest(http.MethodDelete, "/v1/bookings/3", nil), bearer(t, 4, model.RoleUser))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	svc.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDeleteMissingBookingSucceeds(t *testing.T) {
	svc := new(MockBookingService)
	e := newBookingServer(svc, &fakeStore{})

	svc.On("Get", mock.Anything, uint64(3)).Return(nil, apperror.NotFound("booking.get", "booking")).Once()
	svc.On("Delete", mock.Anything, uint64(3)).Return(service.DeleteResult{}, nil).Once()

	rec := serve(e, httptest.NewRequest(http.MethodDelete, "/v1/bookings/3", nil), bearer(t, 4, model.RoleUser))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":0,"items_removed":0}`, string(decode(t, rec).Data))
	svc.AssertExpectations(t)
}

func TestListBookingsScopesToCaller(t *testing.T) {
	svc := new(MockBookingService)
	e := newBookingServer(svc, &fakeStore{})

	svc.On("List", mock.Anything, uint64(4)).Return([]model.Booking{{ID: 1, UserID: 4}}, nil).Once()
	svc.On("List", mock.Anything, uint64(5)).Return([]model.Booking{}, nil).Once()

	// a non-admin cannot widen the filter
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/v1/bookings?user_id=5", nil), bearer(t, 4, model.RoleUser))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/v1/bookings?user_id=5", nil), bearer(t, 1, model.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestGetBookingHidesInternalErrors(t *testing.T) {
	svc := new(MockBookingService)
	e := newBookingServer(svc, &fakeStore{})

	svc.On("Get", mock.Anything, uint64(3)).Return(nil, errors.New("connection reset")).Once()

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/v1/bookings/3", nil), bearer(t, 1, model.RoleAdmin))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode(t, rec).Message)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestBookingHistoryRequiresOwnership(t *testing.T) {
	svc := new(MockBookingService)
	e := newBookingServer(svc, &fakeStore{})

	svc.On("Get", mock.Anything, uint64(3)).Return(&model.Booking{ID: 3, UserID: 4}, nil)
	svc.On("History", mock.Anything, uint64(3)).Return([]model.HistoryView{{}}, nil).Once()

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/v1/bookings/3/history", nil), bearer(t, 8, model.RoleUser))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/v1/bookings/3/history", nil), bearer(t, 4, model.RoleUser))
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestBadBookingID(t *testing.T) {
	svc := new(MockBookingService)
	e := newBookingServer(svc, &fakeStore{})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/v1/bookings/abc", nil), bearer(t, 4, model.RoleUser))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "id", decode(t, rec).Errors[0].Field)
}
