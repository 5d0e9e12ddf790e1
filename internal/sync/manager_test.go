package sync

import (
	"context"
	"testing"
	"time"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/internal/signature"
	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func managerConfig(strategy, fallback string) domain.SyncSettings {
	return domain.SyncSettings{
		Strategy:         strategy,
		FallbackStrategy: fallback,
		EnableFailover:   true,
		MaxRetries:       1,
		HealthCheckMs:    60000,
	}
}

func newTestManager(t *testing.T, cfg domain.SyncSettings) (*SyncManager, *fakeCycleRunner, *fakeCycleRunner, *fakeScheduler) {
	t.Helper()

	sched := newFakeScheduler()
	polling := &fakeCycleRunner{}
	incremental := &fakeCycleRunner{}
	webhook := NewWebHookSync(logger.Mock(), signature.NewCodec(webhookSecret, 0), webhookConfig(), newMemBugRepo())

	m := NewSyncManager(logger.Mock(), cfg, webhookConfig(), sched, EventBus.New(), polling, incremental, webhook)
	return m, polling, incremental, sched
}

func TestSyncManager_StartRunsConfiguredStrategy(t *testing.T) {
	m, polling, incremental, sched := newTestManager(t, managerConfig("polling", "incremental"))

	require.NoError(t, m.Start())
	require.NoError(t, m.Start())

	assert.True(t, polling.Running())
	assert.False(t, incremental.Running())
	assert.Equal(t, 1, polling.startCount())
	assert.Equal(t, 1, sched.addCount(HealthJobID))

	m.Stop()
	assert.False(t, polling.Running())
	assert.False(t, sched.active(HealthJobID))
}

func TestSyncManager_HybridRunsBothPullStrategies(t *testing.T) {
	m, polling, incremental, _ := newTestManager(t, managerConfig("hybrid", ""))

	require.NoError(t, m.Start())

	assert.True(t, polling.Running())
	assert.True(t, incremental.Running())

	m.Stop()
	assert.False(t, polling.Running())
	assert.False(t, incremental.Running())
}

func TestSyncManager_StatusTableCoversAllStrategies(t *testing.T) {
	m, _, _, _ := newTestManager(t, managerConfig("polling", ""))

	status := m.Status()
	require.Len(t, status.Strategies, 4)
	for _, st := range status.Strategies {
		assert.False(t, st.IsHealthy, "every strategy starts unhealthy before its first start")
	}

	require.NoError(t, m.Start())

	status = m.Status()
	assert.Equal(t, domain.SyncStrategyPolling, status.CurrentStrategy)
	for _, st := range status.Strategies {
		if st.Strategy == domain.SyncStrategyPolling {
			assert.True(t, st.IsHealthy, "a freshly started strategy gets a grace window")
		} else {
			assert.False(t, st.IsHealthy)
		}
	}
}

func TestSyncManager_SwitchStrategy(t *testing.T) {
	m, polling, incremental, _ := newTestManager(t, managerConfig("polling", ""))
	require.NoError(t, m.Start())

	t.Run("same strategy is a no-op", func(t *testing.T) {
		require.NoError(t, m.SwitchStrategy(domain.SyncStrategyPolling))
		assert.Equal(t, 0, polling.stopCount())
	})

	t.Run("invalid strategy is rejected", func(t *testing.T) {
		assert.Error(t, m.SwitchStrategy(domain.SyncStrategy("carrier-pigeon")))
	})

	t.Run("switch stops old and starts new", func(t *testing.T) {
		require.NoError(t, m.SwitchStrategy(domain.SyncStrategyIncremental))
		assert.False(t, polling.Running())
		assert.True(t, incremental.Running())
		assert.Equal(t, domain.SyncStrategyIncremental, m.CurrentStrategy())
	})
}

func TestSyncManager_FailoverHappensExactlyOnce(t *testing.T) {
	m, polling, incremental, _ := newTestManager(t, managerConfig("polling", "incremental"))
	require.NoError(t, m.Start())

	// One failed cycle at MaxRetries=1 marks polling unhealthy.
	m.observe(domain.SyncStrategyPolling, domain.SyncResult{Success: false}, time.Millisecond)

	m.healthCheck()

	assert.Equal(t, domain.SyncStrategyIncremental, m.CurrentStrategy())
	assert.False(t, polling.Running())
	assert.True(t, incremental.Running())
	assert.Equal(t, 1, incremental.startCount())

	// Subsequent checks see the fallback as current and do not switch again.
	m.healthCheck()
	m.healthCheck()

	assert.Equal(t, domain.SyncStrategyIncremental, m.CurrentStrategy())
	assert.Equal(t, 1, incremental.startCount())
	assert.Equal(t, 1, polling.stopCount())
}

func TestSyncManager_NoFailoverWhenDisabled(t *testing.T) {
	cfg := managerConfig("polling", "incremental")
	cfg.EnableFailover = false
	m, _, incremental, _ := newTestManager(t, cfg)
	require.NoError(t, m.Start())

	m.observe(domain.SyncStrategyPolling, domain.SyncResult{Success: false}, time.Millisecond)
	m.healthCheck()

	assert.Equal(t, domain.SyncStrategyPolling, m.CurrentStrategy())
	assert.False(t, incremental.Running())
}

func TestSyncManager_TriggerSync(t *testing.T) {
	t.Run("not running", func(t *testing.T) {
		m, _, _, _ := newTestManager(t, managerConfig("polling", ""))
		_, err := m.TriggerSync(context.Background())
		assert.Error(t, err)
	})

	t.Run("advisory for scheduled pull strategies", func(t *testing.T) {
		m, polling, _, _ := newTestManager(t, managerConfig("polling", ""))
		require.NoError(t, m.Start())

		result, err := m.TriggerSync(context.Background())
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Equal(t, 0, polling.cycleCount())
	})

	t.Run("hybrid runs one polling cycle", func(t *testing.T) {
		m, polling, _, _ := newTestManager(t, managerConfig("hybrid", ""))
		polling.cycleResult = domain.SyncResult{Success: true, SyncedCount: 7}
		require.NoError(t, m.Start())

		result, err := m.TriggerSync(context.Background())
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, 7, result.SyncedCount)
		assert.Equal(t, 1, polling.cycleCount())
	})
}

func TestSyncManager_ObserveTracksHealthAndMetrics(t *testing.T) {
	m, _, _, _ := newTestManager(t, managerConfig("polling", ""))
	require.NoError(t, m.Start())

	now := time.Now()
	m.observe(domain.SyncStrategyPolling, domain.SyncResult{Success: true, SyncedCount: 2, LastSyncTime: now}, 10*time.Millisecond)
	m.observe(domain.SyncStrategyPolling, domain.SyncResult{Success: true, SyncedCount: 1, LastSyncTime: now}, 30*time.Millisecond)
	m.observe(domain.SyncStrategyPolling, domain.SyncResult{Success: false, LastSyncTime: now}, 20*time.Millisecond)

	var pollingMetrics StrategyMetrics
	for _, sm := range m.Metrics() {
		if sm.Strategy == domain.SyncStrategyPolling {
			pollingMetrics = sm
		}
	}

	assert.Equal(t, 3, pollingMetrics.Runs)
	assert.InDelta(t, 2.0/3.0, pollingMetrics.SuccessRate, 0.001)
	assert.Equal(t, int64(20), pollingMetrics.AvgResponseTimeMs)

	health := m.Health()
	assert.Equal(t, domain.SyncStrategyPolling, health.Strategy)
	assert.False(t, health.Healthy, "one failure at MaxRetries=1 marks the strategy unhealthy")
	assert.Equal(t, 1, health.FailureCount)
}

func TestSyncManager_WebhookHealthIsDerived(t *testing.T) {
	m, _, _, _ := newTestManager(t, managerConfig("webhook", "polling"))
	require.NoError(t, m.Start())

	// Never received a push: first health check derives unhealthy and the
	// manager fails over to polling.
	m.healthCheck()
	assert.Equal(t, domain.SyncStrategyPolling, m.CurrentStrategy())
}

func TestSyncManager_RestartKeepsStrategy(t *testing.T) {
	m, polling, _, _ := newTestManager(t, managerConfig("polling", ""))
	require.NoError(t, m.Start())
	require.NoError(t, m.Restart())

	assert.True(t, m.Running())
	assert.True(t, polling.Running())
	assert.Equal(t, 2, polling.startCount())
}
