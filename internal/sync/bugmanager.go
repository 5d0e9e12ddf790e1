package sync

import (
	"net/http"
	gosync "sync"
	"time"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/internal/scheduler"
	"github.com/rs/zerolog"
)

// BugHealthJobID identifies the bug manager's webhook health check job.
const BugHealthJobID = "sync-bugs-health"

const (
	defaultWebhookCooldown = 30 * time.Second
	defaultHealthInterval  = 60 * time.Second
	defaultWebhookTimeout  = 5 * time.Minute
)

// pullRunner is the lifecycle surface the managers need from a pull strategy.
type pullRunner interface {
	Start() error
	Stop()
	Running() bool
}

// BugSyncManager coordinates the push and pull paths for bug records.
//
// Under the "both" strategy a successful webhook suspends polling for a
// cooldown so push and pull do not duplicate work, while a webhook failure
// or prolonged push silence re-arms polling. Convergence never depends on
// push alone.
type BugSyncManager struct {
	log     zerolog.Logger
	polling pullRunner
	webhook *WebHookSync
	sched   scheduler.Service

	strategy          domain.BugSyncStrategy
	fallbackToPolling bool
	webhookEnabled    bool
	cooldown          time.Duration
	healthInterval    time.Duration
	webhookTimeout    time.Duration
	pollingInterval   time.Duration

	m           gosync.Mutex
	running     bool
	lastWebHook time.Time
	resumeTimer *time.Timer
}

func NewBugSyncManager(log logger.Logger, cfg domain.SyncSettings, webhookCfg domain.WebhookConfig, polling pullRunner, webhook *WebHookSync, sched scheduler.Service) *BugSyncManager {
	strategy := domain.BugSyncStrategy(cfg.BugStrategy)
	switch strategy {
	case domain.BugSyncPolling, domain.BugSyncWebhook, domain.BugSyncBoth:
	default:
		strategy = domain.BugSyncBoth
	}

	m := &BugSyncManager{
		log:               log.With().Str("module", "sync").Str("manager", "bugs").Logger(),
		polling:           polling,
		webhook:           webhook,
		sched:             sched,
		strategy:          strategy,
		fallbackToPolling: cfg.FallbackToPolling,
		webhookEnabled:    webhookCfg.Enabled,
		cooldown:          msOrDefault(cfg.WebhookCooldownMs, defaultWebhookCooldown),
		healthInterval:    msOrDefault(cfg.HealthCheckMs, defaultHealthInterval),
		webhookTimeout:    msOrDefault(webhookCfg.HealthTimeoutMs, defaultWebhookTimeout),
		pollingInterval:   msOrDefault(cfg.PollingIntervalMs, 5*time.Minute),
	}

	if webhook != nil {
		webhook.OnSuccess = m.handleWebhookSuccess
		webhook.OnFailure = m.handleWebhookFailure
	}

	return m
}

func msOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// Start arms the configured paths. Calling Start while running is a no-op.
func (m *BugSyncManager) Start() error {
	m.m.Lock()
	if m.running {
		m.m.Unlock()
		m.log.Debug().Msg("bug sync already running")
		return nil
	}
	m.running = true
	strategy := m.strategy
	m.m.Unlock()

	if strategy == domain.BugSyncPolling || strategy == domain.BugSyncBoth {
		if err := m.polling.Start(); err != nil {
			m.m.Lock()
			m.running = false
			m.m.Unlock()
			return err
		}
	}

	// The webhook path is passive. Under "both" a recurring health check
	// re-arms polling whenever push goes silent.
	if strategy == domain.BugSyncBoth {
		if _, err := m.sched.AddJob(scheduler.JobFunc(m.healthCheck), m.healthInterval, BugHealthJobID); err != nil {
			m.log.Error().Err(err).Msg("could not schedule webhook health check")
		}
	}

	m.log.Info().Str("strategy", string(strategy)).Msg("bug sync started")
	return nil
}

// Stop halts polling, the health check and any pending cooldown resumption.
func (m *BugSyncManager) Stop() {
	m.m.Lock()
	if !m.running {
		m.m.Unlock()
		return
	}
	m.running = false
	if m.resumeTimer != nil {
		m.resumeTimer.Stop()
		m.resumeTimer = nil
	}
	m.m.Unlock()

	m.polling.Stop()
	_ = m.sched.RemoveJobByIdentifier(BugHealthJobID)

	m.log.Info().Msg("bug sync stopped")
}

func (m *BugSyncManager) Running() bool {
	m.m.Lock()
	defer m.m.Unlock()
	return m.running
}

// HandleWebHook forwards an inbound request to the webhook path.
func (m *BugSyncManager) HandleWebHook(w http.ResponseWriter, r *http.Request) error {
	return m.webhook.Handle(w, r)
}

func (m *BugSyncManager) handleWebhookSuccess(event *domain.WebHookEvent) {
	m.m.Lock()
	m.lastWebHook = time.Now()
	running, strategy := m.running, m.strategy
	m.m.Unlock()

	if !running || strategy != domain.BugSyncBoth {
		return
	}

	// Push is delivering, so suspend the pull fallback for the cooldown.
	m.polling.Stop()

	m.m.Lock()
	if m.resumeTimer != nil {
		m.resumeTimer.Stop()
	}
	m.resumeTimer = time.AfterFunc(m.cooldown, m.resumePolling)
	m.m.Unlock()

	m.log.Debug().
		Str("event_type", event.EventType).
		Dur("cooldown", m.cooldown).
		Msg("polling suspended after webhook delivery")
}

func (m *BugSyncManager) resumePolling() {
	m.m.Lock()
	m.resumeTimer = nil
	running, strategy := m.running, m.strategy
	m.m.Unlock()

	if !running || strategy != domain.BugSyncBoth {
		return
	}

	if err := m.polling.Start(); err != nil {
		m.log.Error().Err(err).Msg("could not resume polling after cooldown")
		return
	}
	m.log.Debug().Msg("polling resumed after webhook cooldown")
}

func (m *BugSyncManager) handleWebhookFailure(err error) {
	m.m.Lock()
	running, strategy := m.running, m.strategy
	if m.resumeTimer != nil {
		m.resumeTimer.Stop()
		m.resumeTimer = nil
	}
	m.m.Unlock()

	if !running || !m.fallbackToPolling || strategy != domain.BugSyncBoth {
		return
	}

	m.log.Warn().Err(err).Msg("webhook processing failed, re-arming polling")
	if err := m.polling.Start(); err != nil {
		m.log.Error().Err(err).Msg("could not re-arm polling")
	}
}

// healthCheck re-arms polling while the webhook path is unhealthy. It is
// level triggered: every unhealthy reading re-arms, relying on Start's
// idempotence rather than one-shot alerting.
func (m *BugSyncManager) healthCheck() {
	if m.webhookHealthy() {
		return
	}

	m.m.Lock()
	running := m.running
	m.m.Unlock()
	if !running {
		return
	}

	m.log.Warn().Msg("webhook unhealthy, ensuring polling is active")
	if err := m.polling.Start(); err != nil {
		m.log.Error().Err(err).Msg("could not re-arm polling from health check")
	}
}

// webhookHealthy derives health from push recency. A disabled webhook and a
// webhook that has never delivered both count as unhealthy.
func (m *BugSyncManager) webhookHealthy() bool {
	if !m.webhookEnabled {
		return false
	}

	m.m.Lock()
	last := m.lastWebHook
	m.m.Unlock()

	if last.IsZero() {
		return false
	}
	return time.Since(last) < m.webhookTimeout
}

// BugPollingStatus describes the pull path of the bug manager.
type BugPollingStatus struct {
	Enabled    bool   `json:"enabled"`
	IntervalMs int64  `json:"intervalMs"`
	Status     string `json:"status"`
}

// BugWebhookStatus describes the push path of the bug manager.
type BugWebhookStatus struct {
	Enabled      bool       `json:"enabled"`
	LastReceived *time.Time `json:"lastReceived"`
	IsHealthy    bool       `json:"isHealthy"`
	TimeoutMs    int64      `json:"timeoutMs"`
}

// BugSyncStatus is the externally visible state of the bug manager.
type BugSyncStatus struct {
	IsRunning bool                   `json:"isRunning"`
	Strategy  domain.BugSyncStrategy `json:"strategy"`
	Polling   BugPollingStatus       `json:"polling"`
	Webhook   BugWebhookStatus       `json:"webhook"`
}

func (m *BugSyncManager) Status() BugSyncStatus {
	m.m.Lock()
	running := m.running
	strategy := m.strategy
	last := m.lastWebHook
	m.m.Unlock()

	pollingStatus := "stopped"
	if m.polling.Running() {
		pollingStatus = "running"
	}

	var lastReceived *time.Time
	if !last.IsZero() {
		t := last
		lastReceived = &t
	}

	return BugSyncStatus{
		IsRunning: running,
		Strategy:  strategy,
		Polling: BugPollingStatus{
			Enabled:    strategy == domain.BugSyncPolling || strategy == domain.BugSyncBoth,
			IntervalMs: m.pollingInterval.Milliseconds(),
			Status:     pollingStatus,
		},
		Webhook: BugWebhookStatus{
			Enabled:      m.webhookEnabled && (strategy == domain.BugSyncWebhook || strategy == domain.BugSyncBoth),
			LastReceived: lastReceived,
			IsHealthy:    m.webhookHealthy(),
			TimeoutMs:    m.webhookTimeout.Milliseconds(),
		},
	}
}
