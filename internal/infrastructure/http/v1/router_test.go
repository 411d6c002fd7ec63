package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordshop/internal/core/numerator"
	"recordshop/internal/domain/orders"
	"recordshop/internal/domain/records"
	v1 "recordshop/internal/infrastructure/http/v1"
	"recordshop/internal/infrastructure/http/v1/dto"
	"recordshop/internal/infrastructure/metrics"
	"recordshop/internal/infrastructure/storage/memory"
	"recordshop/pkg/logger"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testAPI struct {
	router http.Handler
	store  *memory.Store
}

func newTestAPI(t *testing.T, db pinger) *testAPI {
	t.Helper()
	store := memory.New()
	policy, err := orders.NewPolicy("")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)

	recordService := records.NewService(records.ServiceConfig{
		Repo:      store,
		TxManager: store,
		Events:    store,
		Audit:     store,
		Metrics:   collector,
	})
	coordinator := orders.NewCoordinator(orders.CoordinatorConfig{
		Stock:     store,
		Ledger:    store.Orders(),
		TxManager: store,
		Events:    store,
		Numbers:   &numerator.MockGenerator{},
		Policy:    policy,
		Metrics:   collector,
	})

	router := v1.NewRouter(v1.RouterConfig{
		Logger:      logger.NewNop(),
		Records:     recordService,
		Orders:      coordinator,
		Idempotency: memory.NewIdempotencyStore(time.Hour),
		Database:    db,
		Metrics:     collector,
		Gatherer:    reg,
		Version:     "test",
	})
	return &testAPI{router: router, store: store}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (a *testAPI) createRecord(t *testing.T, artist, album string, qty int64) dto.RecordResponse {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/records", map[string]any{
		"artist":   artist,
		"album":    album,
		"price":    "19.99",
		"qty":      qty,
		"format":   "vinyl",
		"category": "rock",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.RecordResponse](t, w)
}

func TestRecords_CreateAndGet(t *testing.T) {
	api := newTestAPI(t, pinger{})

	created := api.createRecord(t, "  Radiohead ", "OK Computer", 5)
	assert.Equal(t, "radiohead", created.Artist)
	assert.Equal(t, int64(5), created.Qty)
	assert.Equal(t, []string{}, created.TrackList)
	assert.NotEmpty(t, created.ID)

	w := api.do(t, http.MethodGet, "/api/v1/records/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[dto.RecordResponse](t, w)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "19.99", got.Price.String())
}

func TestRecords_CreateErrors(t *testing.T) {
	api := newTestAPI(t, pinger{})
	api.createRecord(t, "Radiohead", "OK Computer", 5)

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{
			name:   "duplicate key",
			body:   map[string]any{"artist": "radiohead", "album": "ok computer", "price": "1", "qty": 1, "format": "vinyl", "category": "rock"},
			status: http.StatusConflict,
			code:   "ALREADY_EXISTS",
		},
		{
			name:   "unknown format",
			body:   map[string]any{"artist": "A", "album": "B", "price": "1", "qty": 1, "format": "8-track", "category": "rock"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "missing artist",
			body:   map[string]any{"album": "B", "price": "1", "qty": 1, "format": "cd", "category": "jazz"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "negative quantity",
			body:   map[string]any{"artist": "A", "album": "B", "price": "1", "qty": -1, "format": "cd", "category": "jazz"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, "/api/v1/records", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[dto.ErrorResponse](t, w).Code)
		})
	}
}

func TestRecords_ValidationReportsFields(t *testing.T) {
	api := newTestAPI(t, pinger{})

	w := api.do(t, http.MethodPost, "/api/v1/records", map[string]any{
		"artist": "A", "album": "B", "format": "8-track", "category": "rock",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[dto.ErrorResponse](t, w)
	fields, ok := body.Details["fields"].(map[string]any)
	require.True(t, ok, body.Details)
	assert.Contains(t, fields, "format")
}

func TestRecords_GetErrors(t *testing.T) {
	api := newTestAPI(t, pinger{})

	w := api.do(t, http.MethodGet, "/api/v1/records/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_IDENTIFIER", decode[dto.ErrorResponse](t, w).Code)

	w = api.do(t, http.MethodGet, "/api/v1/records/0190a5b4-6d1e-7c2a-9f00-000000000001", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[dto.ErrorResponse](t, w).Code)
}

func TestRecords_UpdateAndHistory(t *testing.T) {
	api := newTestAPI(t, pinger{})
	created := api.createRecord(t, "Radiohead", "OK Computer", 5)

	w := api.do(t, http.MethodPut, "/api/v1/records/"+created.ID, map[string]any{"qty": 12})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[dto.RecordResponse](t, w)
	assert.Equal(t, int64(12), updated.Qty)
	assert.Equal(t, "radiohead", updated.Artist)

	w = api.do(t, http.MethodGet, "/api/v1/records/"+created.ID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]dto.AuditEntryResponse](t, w)
	require.Len(t, history, 2)
	assert.Equal(t, "update", history[0].Action)
	assert.Equal(t, "create", history[1].Action)
}

func TestRecords_SearchPagination(t *testing.T) {
	api := newTestAPI(t, pinger{})
	for _, album := range []string{"Kid A", "Amnesiac", "In Rainbows"} {
		api.createRecord(t, "Radiohead", album, 1)
	}
	api.createRecord(t, "Portishead", "Dummy", 1)

	w := api.do(t, http.MethodGet, "/api/v1/records?artist=radio&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[dto.SearchRecordsResponse](t, w)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, 1, page.PreviousPage)
	assert.Equal(t, 2, page.NextPage)
	assert.Equal(t, 2, page.PageCount)
	assert.Equal(t, 2, page.Limit)

	w = api.do(t, http.MethodGet, "/api/v1/records?artist=radio&limit=2&page=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[dto.SearchRecordsResponse](t, w)
	assert.Len(t, page.Records, 1)
	assert.Equal(t, 2, page.NextPage)

	w = api.do(t, http.MethodGet, "/api/v1/records?artist=nobody", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[dto.SearchRecordsResponse](t, w)
	assert.Empty(t, page.Records)
	assert.Equal(t, 1, page.PageCount)
}

func TestRecords_SearchRejectsBadPaging(t *testing.T) {
	api := newTestAPI(t, pinger{})

	for _, q := range []string{"page=0", "limit=0", "limit=101", "format=tape", "page=x", "page=1000001", "page=92233720368547760&limit=100"} {
		w := api.do(t, http.MethodGet, "/api/v1/records?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	w := api.do(t, http.MethodGet, "/api/v1/records?page=1000000&limit=100", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[dto.SearchRecordsResponse](t, w)
	assert.Empty(t, res.Records)
	assert.Equal(t, 1000000, res.CurrentPage)
}

func TestOrders_PlaceAndGet(t *testing.T) {
	api := newTestAPI(t, pinger{})
	rec := api.createRecord(t, "Radiohead", "OK Computer", 5)

	w := api.do(t, http.MethodPost, "/api/v1/orders", map[string]any{"recordId": rec.ID, "qty": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[dto.OrderResponse](t, w)
	assert.Equal(t, rec.ID, order.RecordID)
	assert.Equal(t, int64(2), order.Qty)
	assert.NotEmpty(t, order.Number)

	w = api.do(t, http.MethodGet, "/api/v1/orders/"+order.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order.ID, decode[dto.OrderResponse](t, w).ID)

	w = api.do(t, http.MethodGet, "/api/v1/records/"+rec.ID, nil)
	assert.Equal(t, int64(3), decode[dto.RecordResponse](t, w).Qty)
}

func TestOrders_Errors(t *testing.T) {
	api := newTestAPI(t, pinger{})
	rec := api.createRecord(t, "Radiohead", "OK Computer", 1)

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"insufficient stock", map[string]any{"recordId": rec.ID, "qty": 2}, http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK"},
		{"unknown record", map[string]any{"recordId": "0190a5b4-6d1e-7c2a-9f00-000000000001", "qty": 1}, http.StatusNotFound, "NOT_FOUND"},
		{"malformed record id", map[string]any{"recordId": "abc", "qty": 1}, http.StatusBadRequest, "INVALID_IDENTIFIER"},
		{"negative quantity", map[string]any{"recordId": rec.ID, "qty": -3}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing quantity", map[string]any{"recordId": rec.ID}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, "/api/v1/orders", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[dto.ErrorResponse](t, w).Code)
		})
	}

	w := api.do(t, http.MethodGet, "/api/v1/records/"+rec.ID, nil)
	assert.Equal(t, int64(1), decode[dto.RecordResponse](t, w).Qty)
}

func TestOrders_IdempotencyKeyReplays(t *testing.T) {
	api := newTestAPI(t, pinger{})
	rec := api.createRecord(t, "Radiohead", "OK Computer", 5)
	body := map[string]any{"recordId": rec.ID, "qty": 2}

	first := api.do(t, http.MethodPost, "/api/v1/orders", body, "Idempotency-Key", "order-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := api.do(t, http.MethodPost, "/api/v1/orders", body, "Idempotency-Key", "order-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, api.store.OrderCount())

	w := api.do(t, http.MethodPost, "/api/v1/orders", map[string]any{"recordId": rec.ID, "qty": 1}, "Idempotency-Key", "order-1")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "IDEMPOTENCY_MISMATCH", decode[dto.ErrorResponse](t, w).Code)
}

func TestOrders_FailedIdempotentAttemptCanRetry(t *testing.T) {
	api := newTestAPI(t, pinger{})
	rec := api.createRecord(t, "Radiohead", "OK Computer", 1)

	w := api.do(t, http.MethodPost, "/api/v1/orders", map[string]any{"recordId": rec.ID, "qty": 3}, "Idempotency-Key", "k")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/orders", map[string]any{"recordId": rec.ID, "qty": 1}, "Idempotency-Key", "k")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Empty(t, w.Header().Get("Idempotent-Replayed"))
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, pinger{})
	w := api.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	down := newTestAPI(t, pinger{err: errors.New("connection refused")})
	w = down.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestTraceHeadersAndMetrics(t *testing.T) {
	api := newTestAPI(t, pinger{})

	w := api.do(t, http.MethodGet, "/health/live", nil, "X-Request-ID", "req-42")
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	api.createRecord(t, "Radiohead", "OK Computer", 1)
	w = api.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "recordshop_http_requests_total"), w.Body.String())
}
