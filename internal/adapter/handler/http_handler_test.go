package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/realtime-inventory/internal/adapter/storage"
	"github.com/rl1809/realtime-inventory/internal/adapter/stream"
	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/metrics"
)

func newTestHandler(t *testing.T, ready func() bool) (*HTTPHandler, *stream.MemoryLog) {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Seed(context.Background(),
		domain.InventoryRecord{ProductID: "P001", StoreLocation: "NYC-Store-1", CurrentStock: 47, ReorderPoint: 20},
		domain.InventoryRecord{ProductID: "P005", StoreLocation: "Miami-Store-1", CurrentStock: 3, ReorderPoint: 5},
	))
	log := stream.NewMemoryLog(2, 0)

	reg := prometheus.NewRegistry()
	metrics.NewPipeline(reg)
	h := NewHTTPHandler(store, log, domain.DefaultThresholds(), nil, ready,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return h, log
}

func TestHealthCheck(t *testing.T) {
	ready := false
	h, _ := newTestHandler(t, func() bool { return ready })
	routes := h.Routes()

	resp := httptest.NewRecorder()
	routes.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	ready = true
	resp = httptest.NewRecorder()
	routes.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestListInventoryIncludesStatus(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/inventory", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var views []InventoryView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "P001", views[0].ProductID)
	assert.Equal(t, domain.StockStatusOK, views[0].Status)
	assert.Equal(t, domain.StockStatusCritical, views[1].Status)
}

func TestGetInventory(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes()

	resp := httptest.NewRecorder()
	routes.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/inventory/P005/Miami-Store-1", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var view InventoryView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &view))
	assert.Equal(t, 3, view.CurrentStock)
	assert.Equal(t, domain.StockStatusCritical, view.Status)

	resp = httptest.NewRecorder()
	routes.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/inventory/P404/Miami-Store-1", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSubmitTransaction(t *testing.T) {
	h, log := newTestHandler(t, nil)

	tx := domain.NewTransaction("tx-1", "P005", "Miami-Store-1", 1, decimal.RequireFromString("42.50"), time.Now())
	body, err := tx.Encode()
	require.NoError(t, err)

	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(string(body))))
	require.Equal(t, http.StatusAccepted, resp.Code)

	var out SubmitResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.True(t, out.Success)
	require.NotNil(t, out.Position)
	assert.Equal(t, 1, log.Len(out.Position.Partition))
}

func TestSubmitTransactionRejectsBadTotal(t *testing.T) {
	h, log := newTestHandler(t, nil)

	body := `{"transaction_id":"tx-1","product_id":"P005","store_location":"Miami-Store-1",
		"quantity":2,"unit_price":10.00,"total_amount":25.00}`
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Zero(t, log.Len(0)+log.Len(1))
}

func TestGRPCHealth(t *testing.T) {
	h := NewGRPCHandler()
	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := h.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ApplierService})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
	h.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())
	h.Shutdown()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
}
