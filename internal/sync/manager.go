package sync

import (
	"context"
	"net/http"
	gosync "sync"
	"time"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/events"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/internal/scheduler"
	"github.com/BugBridge/BugBridge/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// HealthJobID identifies the manager's strategy health check job.
const HealthJobID = "sync-health"

// cycleRunner extends pullRunner with on-demand cycles and result observation.
type cycleRunner interface {
	pullRunner
	TriggerCycle(ctx context.Context) domain.SyncResult
	SetOnResult(fn func(result domain.SyncResult, took time.Duration))
}

// statusTable holds one status record per strategy. The strategy set is
// closed, so the table is a fixed struct rather than a map. Every record
// exists from construction on, initialized unhealthy.
type statusTable struct {
	polling     domain.SyncStatus
	webhook     domain.SyncStatus
	incremental domain.SyncStatus
	hybrid      domain.SyncStatus
}

func newStatusTable() statusTable {
	return statusTable{
		polling:     domain.SyncStatus{Strategy: domain.SyncStrategyPolling},
		webhook:     domain.SyncStatus{Strategy: domain.SyncStrategyWebhook},
		incremental: domain.SyncStatus{Strategy: domain.SyncStrategyIncremental},
		hybrid:      domain.SyncStatus{Strategy: domain.SyncStrategyHybrid},
	}
}

func (t *statusTable) get(s domain.SyncStrategy) *domain.SyncStatus {
	switch s {
	case domain.SyncStrategyPolling:
		return &t.polling
	case domain.SyncStrategyWebhook:
		return &t.webhook
	case domain.SyncStrategyIncremental:
		return &t.incremental
	case domain.SyncStrategyHybrid:
		return &t.hybrid
	}
	return nil
}

func (t *statusTable) list() []domain.SyncStatus {
	return []domain.SyncStatus{t.polling, t.webhook, t.incremental, t.hybrid}
}

type strategyMetrics struct {
	runs      int
	successes int
	total     time.Duration
}

func (m strategyMetrics) performance() domain.SyncPerformance {
	if m.runs == 0 {
		return domain.SyncPerformance{}
	}
	return domain.SyncPerformance{
		AvgResponseTime: m.total / time.Duration(m.runs),
		SuccessRate:     float64(m.successes) / float64(m.runs),
	}
}

type metricsTable struct {
	polling     strategyMetrics
	webhook     strategyMetrics
	incremental strategyMetrics
	hybrid      strategyMetrics
}

func (t *metricsTable) get(s domain.SyncStrategy) *strategyMetrics {
	switch s {
	case domain.SyncStrategyPolling:
		return &t.polling
	case domain.SyncStrategyWebhook:
		return &t.webhook
	case domain.SyncStrategyIncremental:
		return &t.incremental
	case domain.SyncStrategyHybrid:
		return &t.hybrid
	}
	return nil
}

// SyncManager owns the full strategy set. It starts the configured
// strategy, exposes runtime switching, and runs the sole automatic failover
// path: a periodic check of the current strategy's health that switches to
// the configured fallback when unhealthy.
type SyncManager struct {
	log         zerolog.Logger
	sched       scheduler.Service
	bus         events.Bus
	polling     cycleRunner
	incremental cycleRunner
	webhook     *WebHookSync

	fallback       domain.SyncStrategy
	enableFailover bool
	maxRetries     int
	healthInterval time.Duration
	webhookTimeout time.Duration

	sf singleflight.Group

	m       gosync.Mutex
	running bool
	current domain.SyncStrategy
	table   statusTable
	metrics metricsTable
}

func NewSyncManager(log logger.Logger, cfg domain.SyncSettings, webhookCfg domain.WebhookConfig, sched scheduler.Service, bus events.Bus, polling cycleRunner, incremental cycleRunner, webhook *WebHookSync) *SyncManager {
	current := domain.SyncStrategy(cfg.Strategy)
	if !current.Valid() {
		current = domain.SyncStrategyPolling
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	m := &SyncManager{
		log:            log.With().Str("module", "sync").Str("manager", "strategies").Logger(),
		sched:          sched,
		bus:            bus,
		polling:        polling,
		incremental:    incremental,
		webhook:        webhook,
		fallback:       domain.SyncStrategy(cfg.FallbackStrategy),
		enableFailover: cfg.EnableFailover,
		maxRetries:     maxRetries,
		healthInterval: msOrDefault(cfg.HealthCheckMs, defaultHealthInterval),
		webhookTimeout: msOrDefault(webhookCfg.HealthTimeoutMs, defaultWebhookTimeout),
		current:        current,
		table:          newStatusTable(),
	}

	polling.SetOnResult(func(result domain.SyncResult, took time.Duration) {
		m.observe(domain.SyncStrategyPolling, result, took)
	})
	incremental.SetOnResult(func(result domain.SyncResult, took time.Duration) {
		m.observe(domain.SyncStrategyIncremental, result, took)
	})
	if webhook != nil {
		webhook.OnSuccess = m.observeWebhookSuccess
		webhook.OnFailure = m.observeWebhookFailure
	}

	return m
}

// Start launches the configured strategy and the health check loop.
// Calling Start while running is a no-op.
func (m *SyncManager) Start() error {
	m.m.Lock()
	if m.running {
		m.m.Unlock()
		m.log.Debug().Msg("sync manager already running")
		return nil
	}
	m.running = true
	current := m.current
	m.m.Unlock()

	if err := m.startStrategy(current); err != nil {
		m.m.Lock()
		m.running = false
		m.m.Unlock()
		return err
	}

	if _, err := m.sched.AddJob(scheduler.JobFunc(m.healthCheck), m.healthInterval, HealthJobID); err != nil {
		m.log.Error().Err(err).Msg("could not schedule strategy health check")
	}

	m.log.Info().Str("strategy", string(current)).Msg("sync manager started")
	return nil
}

// Stop halts the current strategy and the health check loop.
func (m *SyncManager) Stop() {
	m.m.Lock()
	if !m.running {
		m.m.Unlock()
		return
	}
	m.running = false
	current := m.current
	m.m.Unlock()

	m.stopStrategy(current)
	_ = m.sched.RemoveJobByIdentifier(HealthJobID)

	m.log.Info().Msg("sync manager stopped")
}

// Restart stops and starts the current strategy.
func (m *SyncManager) Restart() error {
	m.Stop()
	return m.Start()
}

func (m *SyncManager) Running() bool {
	m.m.Lock()
	defer m.m.Unlock()
	return m.running
}

func (m *SyncManager) CurrentStrategy() domain.SyncStrategy {
	m.m.Lock()
	defer m.m.Unlock()
	return m.current
}

func (m *SyncManager) startStrategy(s domain.SyncStrategy) error {
	var err error
	switch s {
	case domain.SyncStrategyPolling:
		err = m.polling.Start()
	case domain.SyncStrategyIncremental:
		err = m.incremental.Start()
	case domain.SyncStrategyWebhook:
		// Passive, nothing to launch.
	case domain.SyncStrategyHybrid:
		// Hybrid runs both pull strategies concurrently.
		if err = m.polling.Start(); err == nil {
			err = m.incremental.Start()
		}
	}
	if err != nil {
		return errors.Wrap(err, "could not start strategy %q", s)
	}

	// A freshly started strategy gets a grace window until its first
	// result or health reading proves otherwise.
	m.m.Lock()
	if st := m.table.get(s); st != nil {
		st.IsHealthy = true
		st.FailureCount = 0
	}
	m.m.Unlock()

	return nil
}

func (m *SyncManager) stopStrategy(s domain.SyncStrategy) {
	switch s {
	case domain.SyncStrategyPolling:
		m.polling.Stop()
	case domain.SyncStrategyIncremental:
		m.incremental.Stop()
	case domain.SyncStrategyWebhook:
	case domain.SyncStrategyHybrid:
		m.polling.Stop()
		m.incremental.Stop()
	}
}

// SwitchStrategy moves to the given strategy at runtime. Switching to the
// current strategy is a no-op.
func (m *SyncManager) SwitchStrategy(next domain.SyncStrategy) error {
	if !next.Valid() {
		return errors.New("invalid sync strategy %q", next)
	}

	m.m.Lock()
	current := m.current
	m.m.Unlock()

	if next == current {
		m.log.Debug().Str("strategy", string(next)).Msg("strategy unchanged")
		return nil
	}

	m.stopStrategy(current)
	if err := m.startStrategy(next); err != nil {
		return err
	}

	m.m.Lock()
	m.current = next
	m.m.Unlock()

	m.log.Info().Str("from", string(current)).Str("to", string(next)).Msg("sync strategy switched")
	return nil
}

// TriggerSync requests an immediate synchronization. For scheduled pull
// strategies the request is advisory, the background cycles already run.
// Under hybrid it runs one polling cycle right away. Concurrent triggers
// collapse into a single execution.
func (m *SyncManager) TriggerSync(ctx context.Context) (*domain.SyncResult, error) {
	v, err, _ := m.sf.Do("trigger", func() (interface{}, error) {
		m.m.Lock()
		running, current := m.running, m.current
		m.m.Unlock()

		if !running {
			return nil, errors.New("sync manager is not running")
		}

		switch current {
		case domain.SyncStrategyHybrid:
			result := m.polling.TriggerCycle(ctx)
			return &result, nil
		case domain.SyncStrategyWebhook:
			m.log.Info().Msg("manual trigger ignored, webhook strategy is push driven")
		default:
			m.log.Info().Str("strategy", string(current)).Msg("manual trigger acknowledged, scheduled cycles cover pulls")
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*domain.SyncResult), nil
}

// HandleWebHook forwards an inbound request to the webhook strategy.
func (m *SyncManager) HandleWebHook(w http.ResponseWriter, r *http.Request) error {
	return m.webhook.Handle(w, r)
}

// observe folds one cycle result into the strategy's status record and
// rolling metrics. Each record mutation is a single atomic read-then-write
// under the manager lock.
func (m *SyncManager) observe(strategy domain.SyncStrategy, result domain.SyncResult, took time.Duration) {
	m.m.Lock()
	st := m.table.get(strategy)
	mt := m.metrics.get(strategy)

	mt.runs++
	mt.total += took
	if result.Success {
		mt.successes++
		st.IsHealthy = true
		st.LastSuccessTime = result.LastSyncTime
		st.FailureCount = 0
	} else {
		st.FailureCount++
		if st.FailureCount >= m.maxRetries {
			st.IsHealthy = false
		}
	}
	st.Performance = mt.performance()
	m.m.Unlock()

	m.bus.Publish(events.TopicSyncRun, &strategy, &result)
}

func (m *SyncManager) observeWebhookSuccess(event *domain.WebHookEvent) {
	m.m.Lock()
	st := &m.table.webhook
	mt := &m.metrics.webhook
	mt.runs++
	mt.successes++
	st.IsHealthy = true
	st.LastSuccessTime = time.Now()
	st.FailureCount = 0
	st.Performance = mt.performance()
	m.m.Unlock()

	m.bus.Publish(events.TopicWebhookReceived, event)
}

func (m *SyncManager) observeWebhookFailure(err error) {
	m.m.Lock()
	st := &m.table.webhook
	mt := &m.metrics.webhook
	mt.runs++
	st.FailureCount++
	if st.FailureCount >= m.maxRetries {
		st.IsHealthy = false
	}
	st.Performance = mt.performance()
	m.m.Unlock()

	m.log.Warn().Err(err).Msg("webhook strategy recorded a failure")
}

// healthCheck inspects only the current strategy and fails over to the
// configured fallback when unhealthy. The switch fires once per unhealthy
// episode because the fallback becomes the current strategy.
func (m *SyncManager) healthCheck() {
	m.m.Lock()
	if !m.running {
		m.m.Unlock()
		return
	}
	current := m.current

	// Webhook health is derived from push recency, not stored directly.
	wh := &m.table.webhook
	wh.IsHealthy = !wh.LastSuccessTime.IsZero() && time.Since(wh.LastSuccessTime) < m.webhookTimeout

	healthy := m.strategyHealthyLocked(current)
	fallback := m.fallback
	enabled := m.enableFailover
	m.m.Unlock()

	if healthy || !enabled || !fallback.Valid() || fallback == current {
		return
	}

	m.log.Warn().
		Str("from", string(current)).
		Str("to", string(fallback)).
		Msg("current strategy unhealthy, failing over")

	if err := m.SwitchStrategy(fallback); err != nil {
		m.log.Error().Err(err).Msg("failover switch failed")
		return
	}

	from, to := current, fallback
	m.bus.Publish(events.TopicFailover, &from, &to)
}

func (m *SyncManager) strategyHealthyLocked(s domain.SyncStrategy) bool {
	switch s {
	case domain.SyncStrategyWebhook:
		return m.table.webhook.IsHealthy
	case domain.SyncStrategyHybrid:
		// Hybrid stays healthy while either pull path is.
		return m.table.polling.IsHealthy || m.table.incremental.IsHealthy
	default:
		st := m.table.get(s)
		return st != nil && st.IsHealthy
	}
}

// ManagerStatus is the externally visible state of the strategy manager.
type ManagerStatus struct {
	IsRunning       bool                `json:"isRunning"`
	CurrentStrategy domain.SyncStrategy `json:"currentStrategy"`
	Strategies      []domain.SyncStatus `json:"strategies"`
}

func (m *SyncManager) Status() ManagerStatus {
	m.m.Lock()
	defer m.m.Unlock()
	return ManagerStatus{
		IsRunning:       m.running,
		CurrentStrategy: m.current,
		Strategies:      m.table.list(),
	}
}

// ManagerHealth is the health summary of the current strategy.
type ManagerHealth struct {
	Healthy         bool                `json:"healthy"`
	Strategy        domain.SyncStrategy `json:"strategy"`
	FailureCount    int                 `json:"failureCount"`
	LastSuccessTime time.Time           `json:"lastSuccessTime"`
}

func (m *SyncManager) Health() ManagerHealth {
	m.m.Lock()
	defer m.m.Unlock()

	st := m.table.get(m.current)
	return ManagerHealth{
		Healthy:         m.strategyHealthyLocked(m.current),
		Strategy:        m.current,
		FailureCount:    st.FailureCount,
		LastSuccessTime: st.LastSuccessTime,
	}
}

// StrategyMetrics is the rolling performance summary of one strategy.
type StrategyMetrics struct {
	Strategy          domain.SyncStrategy `json:"strategy"`
	Runs              int                 `json:"runs"`
	SuccessRate       float64             `json:"successRate"`
	AvgResponseTimeMs int64               `json:"avgResponseTimeMs"`
}

func (m *SyncManager) Metrics() []StrategyMetrics {
	m.m.Lock()
	defer m.m.Unlock()

	out := make([]StrategyMetrics, 0, len(domain.SyncStrategies))
	for _, s := range domain.SyncStrategies {
		mt := m.metrics.get(s)
		perf := mt.performance()
		out = append(out, StrategyMetrics{
			Strategy:          s,
			Runs:              mt.runs,
			SuccessRate:       perf.SuccessRate,
			AvgResponseTimeMs: perf.AvgResponseTime.Milliseconds(),
		})
	}
	return out
}
