package http

import (
	"net/http"

	"github.com/BugBridge/BugBridge/internal/sync"
	"github.com/go-chi/chi/v5"
)

// bugSyncManager is the surface the handlers need from sync.BugSyncManager.
type bugSyncManager interface {
	Status() sync.BugSyncStatus
	Start() error
	Stop()
	HandleWebHook(w http.ResponseWriter, r *http.Request) error
}

type bugSyncHandler struct {
	encoder encoder
	mgr     bugSyncManager
	guard   func(http.Handler) http.Handler
}

func newBugSyncHandler(encoder encoder, mgr bugSyncManager, guard func(http.Handler) http.Handler) *bugSyncHandler {
	return &bugSyncHandler{
		encoder: encoder,
		mgr:     mgr,
		guard:   guard,
	}
}

func (h bugSyncHandler) Routes(r chi.Router) {
	r.Post("/webhook", h.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(h.guard)

		r.Get("/status", h.handleStatus)
		r.Post("/start", h.handleStart)
		r.Post("/stop", h.handleStop)
	})
}

func (h bugSyncHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	_ = h.mgr.HandleWebHook(w, r)
}

func (h bugSyncHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.encoder.StatusResponse(r.Context(), w, ok(h.mgr.Status()), http.StatusOK)
}

func (h bugSyncHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Start(); err != nil {
		h.encoder.StatusResponse(r.Context(), w, fail(err.Error()), http.StatusInternalServerError)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, okMessage("bug sync started"), http.StatusOK)
}

func (h bugSyncHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.mgr.Stop()
	h.encoder.StatusResponse(r.Context(), w, okMessage("bug sync stopped"), http.StatusOK)
}
