// Package events defines the internal bus topics the sync subsystem
// publishes on, plus the default subscribers that turn them into log lines.
package events

import (
	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/rs/zerolog"
)

const (
	// TopicSyncRun carries the result of one completed pull cycle.
	TopicSyncRun = "events:sync:run"
	// TopicWebhookReceived carries each accepted inbound push event.
	TopicWebhookReceived = "events:sync:webhook"
	// TopicFailover carries automatic strategy switches.
	TopicFailover = "events:sync:failover"
)

// Bus is the part of EventBus.Bus the subscribers need.
type Bus interface {
	Subscribe(topic string, fn interface{}) error
	Publish(topic string, args ...interface{})
}

type Subscriber struct {
	log zerolog.Logger
	bus Bus
}

func NewSubscribers(log logger.Logger, bus Bus) Subscriber {
	s := Subscriber{
		log: log.With().Str("module", "events").Logger(),
		bus: bus,
	}

	s.Register()

	return s
}

func (s Subscriber) Register() {
	if err := s.bus.Subscribe(TopicSyncRun, s.logSyncRun); err != nil {
		s.log.Error().Err(err).Msgf("could not subscribe to %q topic", TopicSyncRun)
	}
	if err := s.bus.Subscribe(TopicWebhookReceived, s.logWebhookReceived); err != nil {
		s.log.Error().Err(err).Msgf("could not subscribe to %q topic", TopicWebhookReceived)
	}
	if err := s.bus.Subscribe(TopicFailover, s.logFailover); err != nil {
		s.log.Error().Err(err).Msgf("could not subscribe to %q topic", TopicFailover)
	}
}

func (s Subscriber) logSyncRun(strategy *domain.SyncStrategy, result *domain.SyncResult) {
	s.log.Debug().
		Str("strategy", string(*strategy)).
		Bool("success", result.Success).
		Int("synced", result.SyncedCount).
		Int("failed", result.FailedCount).
		Msg("sync cycle finished")
}

func (s Subscriber) logWebhookReceived(event *domain.WebHookEvent) {
	s.log.Debug().
		Str("event_type", event.EventType).
		Str("entity_type", event.EntityType).
		Str("entity_id", event.EntityID).
		Str("action", string(event.Action)).
		Msg("webhook event accepted")
}

func (s Subscriber) logFailover(from *domain.SyncStrategy, to *domain.SyncStrategy) {
	s.log.Warn().
		Str("from", string(*from)).
		Str("to", string(*to)).
		Msg("sync strategy failover")
}
