package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/logger"
	"github.com/rl1809/realtime-inventory/internal/port"
)

const maxBodyBytes = 1 << 20

type HTTPHandler struct {
	store      port.InventoryStore
	log        port.TransactionLog
	thresholds domain.Thresholds
	logg       *logger.Logger
	ready      func() bool
	metrics    http.Handler
}

type InventoryView struct {
	domain.InventoryRecord
	Status domain.StockStatus `json:"status"`
}

type SubmitResponse struct {
	Success       bool                `json:"success"`
	Message       string              `json:"message"`
	TransactionID string              `json:"transaction_id,omitempty"`
	Position      *domain.LogPosition `json:"position,omitempty"`
}

// NewHTTPHandler serves inventory reads and accepts transactions onto the log. ready may be
// nil; metrics is mounted at /metrics when set.
func NewHTTPHandler(store port.InventoryStore, log port.TransactionLog, thresholds domain.Thresholds,
	logg *logger.Logger, ready func() bool, metrics http.Handler) *HTTPHandler {
	if logg == nil {
		logg = logger.Nop()
	}
	return &HTTPHandler{
		store:      store,
		log:        log,
		thresholds: thresholds,
		logg:       logg,
		ready:      ready,
		metrics:    metrics,
	}
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, middleware.Timeout(30*time.Second))

	r.Get("/health", h.HealthCheck)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/inventory", h.ListInventory)
		r.Get("/inventory/{productID}/{storeLocation}", h.GetInventory)
		r.Post("/transactions", h.SubmitTransaction)
	})
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil && !h.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListInventory(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.Scan(r.Context())
	if err != nil {
		h.logg.Error(r.Context(), "scan inventory", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "inventory unavailable"})
		return
	}
	views := make([]InventoryView, 0, len(records))
	for _, rec := range records {
		views = append(views, h.view(rec))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *HTTPHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	key := domain.Key{
		ProductID:     chi.URLParam(r, "productID"),
		StoreLocation: chi.URLParam(r, "storeLocation"),
	}
	rec, err := h.store.Get(r.Context(), key)
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
	case err != nil:
		h.logg.Error(r.Context(), "get inventory", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "inventory unavailable"})
	default:
		writeJSON(w, http.StatusOK, h.view(*rec))
	}
}

func (h *HTTPHandler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, SubmitResponse{Message: "invalid request body"})
		return
	}
	tx, err := domain.DecodeTransaction(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, SubmitResponse{Message: err.Error()})
		return
	}

	pos, err := h.log.Append(r.Context(), tx.StoreLocation, body)
	if err != nil {
		h.logg.Error(h.logg.WithTransaction(r.Context(), tx.TransactionID, tx.ProductID, tx.StoreLocation), "append transaction", err)
		writeJSON(w, http.StatusBadGateway, SubmitResponse{TransactionID: tx.TransactionID, Message: "transaction log unavailable"})
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		Success:       true,
		Message:       "transaction accepted",
		TransactionID: tx.TransactionID,
		Position:      &pos,
	})
}

func (h *HTTPHandler) view(rec domain.InventoryRecord) InventoryView {
	return InventoryView{InventoryRecord: rec, Status: h.thresholds.StatusOf(rec)}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
