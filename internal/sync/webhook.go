package sync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/internal/signature"
	"github.com/BugBridge/BugBridge/pkg/errors"
	"github.com/rs/zerolog"
)

const maxWebhookBody = 1 << 20

// WebHookSync applies verified inbound change notifications to the local
// store. It is passive: there is nothing to start or stop, every request is
// its own state machine.
type WebHookSync struct {
	log   zerolog.Logger
	codec *signature.Codec
	cfg   domain.WebhookConfig
	bugs  domain.BugRepo

	// OnSuccess and OnFailure inform the owning manager about accepted
	// events and handler failures. Set before the first request.
	OnSuccess func(event *domain.WebHookEvent)
	OnFailure func(err error)
}

func NewWebHookSync(log logger.Logger, codec *signature.Codec, cfg domain.WebhookConfig, bugs domain.BugRepo) *WebHookSync {
	return &WebHookSync{
		log:   log.With().Str("module", "sync").Str("strategy", "webhook").Logger(),
		codec: codec,
		cfg:   cfg,
		bugs:  bugs,
	}
}

func (ws *WebHookSync) Enabled() bool {
	return ws.cfg.Enabled
}

func (ws *WebHookSync) allowed(eventType string) bool {
	for _, t := range ws.cfg.AllowedEvents {
		if t == eventType {
			return true
		}
	}
	return false
}

// Handle verifies and applies one inbound webhook request. Rejections
// (signature, freshness, allow-list) are answered and return nil since the
// sender caused them. A dispatch failure answers 500 and returns the error
// so the owning manager can re-arm polling.
func (ws *WebHookSync) Handle(w http.ResponseWriter, r *http.Request) error {
	if !ws.cfg.Enabled {
		writeWebhookJSON(w, http.StatusNotFound, map[string]string{"error": "Webhook not enabled"})
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		ws.log.Error().Err(err).Msg("could not read webhook body")
		writeWebhookJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		ws.notifyFailure(err)
		return err
	}

	ts := r.Header.Get("x-timestamp")
	sig := r.Header.Get("x-signature")

	if !ws.codec.Verify(sig, signature.Context{Method: r.Method, Path: r.URL.Path, Timestamp: ts, Body: body}) {
		ws.log.Warn().Str("path", r.URL.Path).Msg("webhook rejected: invalid signature")
		writeWebhookJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		return nil
	}

	if ws.codec.IsExpired(ts) {
		ws.log.Warn().Str("timestamp", ts).Msg("webhook rejected: request expired")
		writeWebhookJSON(w, http.StatusBadRequest, map[string]string{"error": "Request expired"})
		return nil
	}

	var event domain.WebHookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		ws.log.Warn().Err(err).Msg("webhook rejected: malformed payload")
		writeWebhookJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
		return nil
	}

	if !ws.allowed(event.EventType) {
		ws.log.Warn().Str("event_type", event.EventType).Msg("webhook rejected: event type not allowed")
		writeWebhookJSON(w, http.StatusBadRequest, map[string]string{"error": "Event type not allowed"})
		return nil
	}

	if err := ws.dispatch(r.Context(), &event); err != nil {
		ws.log.Error().Err(err).
			Str("event_type", event.EventType).
			Str("entity_id", event.EntityID).
			Msg("webhook event processing failed")
		writeWebhookJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		ws.notifyFailure(err)
		return err
	}

	if ws.OnSuccess != nil {
		ws.OnSuccess(&event)
	}

	writeWebhookJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "eventId": event.EntityID})
	return nil
}

func (ws *WebHookSync) notifyFailure(err error) {
	if ws.OnFailure != nil {
		ws.OnFailure(err)
	}
}

// dispatch routes a verified event by entity type. Unknown entity types are
// acknowledged without action so new upstream event shapes never break
// delivery.
func (ws *WebHookSync) dispatch(ctx context.Context, event *domain.WebHookEvent) error {
	switch event.EntityType {
	case "bug":
		return ws.applyBugEvent(ctx, event)
	default:
		ws.log.Info().Str("entity_type", event.EntityType).Msg("ignoring event for unhandled entity type")
		return nil
	}
}

func (ws *WebHookSync) applyBugEvent(ctx context.Context, event *domain.WebHookEvent) error {
	switch event.Action {
	case domain.EventActionCreated, domain.EventActionUpdated:
		var bug domain.Bug
		if err := json.Unmarshal(event.Data, &bug); err != nil {
			return errors.Wrap(err, "could not decode bug payload")
		}
		if bug.ID == "" {
			bug.ID = event.EntityID
		}
		return ws.bugs.Upsert(ctx, &bug)
	case domain.EventActionDeleted:
		return ws.bugs.Delete(ctx, event.EntityID)
	default:
		return errors.New("unsupported bug action %q", event.Action)
	}
}

func writeWebhookJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
