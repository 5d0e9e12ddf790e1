package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/sync"
	"github.com/go-chi/chi/v5"
)

// syncManager is the surface the handlers need from sync.SyncManager.
type syncManager interface {
	Status() sync.ManagerStatus
	Health() sync.ManagerHealth
	Metrics() []sync.StrategyMetrics
	Stop()
	Restart() error
	SwitchStrategy(next domain.SyncStrategy) error
	TriggerSync(ctx context.Context) (*domain.SyncResult, error)
	HandleWebHook(w http.ResponseWriter, r *http.Request) error
}

// envelope is the uniform management response shape. The webhook route has
// its own wire contract and bypasses it.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(data interface{}) envelope {
	return envelope{Success: true, Data: data}
}

func okMessage(msg string) envelope {
	return envelope{Success: true, Message: msg}
}

func fail(msg string) envelope {
	return envelope{Success: false, Error: msg}
}

type syncHandler struct {
	encoder encoder
	mgr     syncManager
	records domain.SyncRecordRepo
	guard   func(http.Handler) http.Handler
}

func newSyncHandler(encoder encoder, mgr syncManager, records domain.SyncRecordRepo, guard func(http.Handler) http.Handler) *syncHandler {
	return &syncHandler{
		encoder: encoder,
		mgr:     mgr,
		records: records,
		guard:   guard,
	}
}

func (h syncHandler) Routes(r chi.Router) {
	// Authenticated by signature, not by API key.
	r.Post("/webhook", h.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(h.guard)

		r.Get("/status", h.handleStatus)
		r.Get("/health", h.handleHealth)
		r.Get("/metrics", h.handleMetrics)
		r.Get("/history", h.handleHistory)
		r.Post("/trigger", h.handleTrigger)
		r.Post("/stop", h.handleStop)
		r.Post("/restart", h.handleRestart)
		r.Post("/strategy", h.handleStrategy)
	})
}

func (h syncHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	// The manager already answered the request; the returned error only
	// drives its internal failover handling.
	_ = h.mgr.HandleWebHook(w, r)
}

func (h syncHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.encoder.StatusResponse(r.Context(), w, ok(h.mgr.Status()), http.StatusOK)
}

func (h syncHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.mgr.Health()

	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	h.encoder.StatusResponse(r.Context(), w, ok(health), status)
}

func (h syncHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	h.encoder.StatusResponse(r.Context(), w, ok(h.mgr.Metrics()), http.StatusOK)
}

func (h syncHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.encoder.StatusResponse(r.Context(), w, fail("invalid limit"), http.StatusBadRequest)
			return
		}
		limit = n
	}

	history, err := h.records.History(r.Context(), table, limit)
	if err != nil {
		h.encoder.StatusResponse(r.Context(), w, fail("could not load sync history"), http.StatusInternalServerError)
		return
	}

	h.encoder.StatusResponse(r.Context(), w, ok(history), http.StatusOK)
}

func (h syncHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.mgr.TriggerSync(r.Context())
	if err != nil {
		h.encoder.StatusResponse(r.Context(), w, fail(err.Error()), http.StatusConflict)
		return
	}

	if result == nil {
		h.encoder.StatusResponse(r.Context(), w, okMessage("sync trigger acknowledged"), http.StatusOK)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, ok(result), http.StatusOK)
}

func (h syncHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.mgr.Stop()
	h.encoder.StatusResponse(r.Context(), w, okMessage("sync stopped"), http.StatusOK)
}

func (h syncHandler) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Restart(); err != nil {
		h.encoder.StatusResponse(r.Context(), w, fail(err.Error()), http.StatusInternalServerError)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, okMessage("sync restarted"), http.StatusOK)
}

type strategyRequest struct {
	Strategy string `json:"strategy"`
}

func (h syncHandler) handleStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.encoder.StatusResponse(r.Context(), w, fail("invalid request body"), http.StatusBadRequest)
		return
	}

	strategy := domain.SyncStrategy(req.Strategy)
	if !strategy.Valid() {
		h.encoder.StatusResponse(r.Context(), w, fail("invalid strategy"), http.StatusBadRequest)
		return
	}

	if err := h.mgr.SwitchStrategy(strategy); err != nil {
		h.encoder.StatusResponse(r.Context(), w, fail(err.Error()), http.StatusInternalServerError)
		return
	}

	h.encoder.StatusResponse(r.Context(), w, ok(map[string]string{"strategy": req.Strategy}), http.StatusOK)
}
