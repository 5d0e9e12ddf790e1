package sync

import (
	"testing"
	"time"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/internal/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBugManager(t *testing.T, cfg domain.SyncSettings, webhookCfg domain.WebhookConfig, polling pullRunner) (*BugSyncManager, *fakeScheduler) {
	t.Helper()

	sched := newFakeScheduler()
	webhook := NewWebHookSync(logger.Mock(), signature.NewCodec(webhookSecret, 0), webhookCfg, newMemBugRepo())
	m := NewBugSyncManager(logger.Mock(), cfg, webhookCfg, polling, webhook, sched)
	return m, sched
}

func bothConfig(cooldownMs int) domain.SyncSettings {
	return domain.SyncSettings{
		BugStrategy:       string(domain.BugSyncBoth),
		FallbackToPolling: true,
		WebhookCooldownMs: cooldownMs,
		PollingIntervalMs: 300000,
	}
}

func TestBugSyncManager_StartArmsPollingAndHealthCheck(t *testing.T) {
	runner := &fakeRunner{}
	m, sched := newTestBugManager(t, bothConfig(0), webhookConfig(), runner)

	require.NoError(t, m.Start())
	require.NoError(t, m.Start())

	assert.True(t, runner.Running())
	assert.Equal(t, 1, runner.startCount(), "second start must be a no-op")
	assert.Equal(t, 1, sched.addCount(BugHealthJobID))

	m.Stop()
	assert.False(t, runner.Running())
	assert.False(t, sched.active(BugHealthJobID))
}

func TestBugSyncManager_WebhookSuccessSuspendsPollingForCooldown(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestBugManager(t, bothConfig(20), webhookConfig(), runner)

	require.NoError(t, m.Start())
	require.True(t, runner.Running())

	event := bugEvent(domain.EventActionUpdated, domain.Bug{ID: "5"})
	m.handleWebhookSuccess(&event)

	assert.False(t, runner.Running(), "push delivery must suspend the pull fallback")

	assert.Eventually(t, runner.Running, time.Second, 5*time.Millisecond,
		"polling must resume once the cooldown elapses with no further push activity")
}

func TestBugSyncManager_NewWebhookResetsCooldown(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestBugManager(t, bothConfig(40), webhookConfig(), runner)

	require.NoError(t, m.Start())

	event := bugEvent(domain.EventActionUpdated, domain.Bug{ID: "5"})
	m.handleWebhookSuccess(&event)
	time.Sleep(20 * time.Millisecond)
	m.handleWebhookSuccess(&event)
	time.Sleep(25 * time.Millisecond)

	// The second delivery restarted the 40ms cooldown, so 25ms after it
	// polling must still be suspended.
	assert.False(t, runner.Running())

	assert.Eventually(t, runner.Running, time.Second, 5*time.Millisecond)
}

func TestBugSyncManager_StopCancelsPendingResume(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestBugManager(t, bothConfig(20), webhookConfig(), runner)

	require.NoError(t, m.Start())

	event := bugEvent(domain.EventActionUpdated, domain.Bug{ID: "5"})
	m.handleWebhookSuccess(&event)
	m.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.False(t, runner.Running(), "a stopped manager must not resume polling")
}

func TestBugSyncManager_WebhookFailureRearmsPollingImmediately(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestBugManager(t, bothConfig(10000), webhookConfig(), runner)

	require.NoError(t, m.Start())

	event := bugEvent(domain.EventActionUpdated, domain.Bug{ID: "5"})
	m.handleWebhookSuccess(&event)
	require.False(t, runner.Running())

	m.handleWebhookFailure(assert.AnError)

	assert.True(t, runner.Running(), "a webhook failure must re-arm polling without waiting for the cooldown")
}

func TestBugSyncManager_HealthCheckRearmsWhileWebhookSilent(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestBugManager(t, bothConfig(10000), webhookConfig(), runner)

	require.NoError(t, m.Start())

	event := bugEvent(domain.EventActionUpdated, domain.Bug{ID: "5"})
	m.handleWebhookSuccess(&event)
	require.False(t, runner.Running())

	// No push activity was ever recorded inside the timeout window once we
	// age the last delivery out.
	m.m.Lock()
	m.lastWebHook = time.Now().Add(-time.Hour)
	m.m.Unlock()

	m.healthCheck()
	assert.True(t, runner.Running())

	// Level triggered: a second unhealthy reading re-arms again without error.
	runner.Stop()
	m.healthCheck()
	assert.True(t, runner.Running())
}

func TestBugSyncManager_PollingOnlyHasNoHealthJob(t *testing.T) {
	runner := &fakeRunner{}
	cfg := bothConfig(0)
	cfg.BugStrategy = string(domain.BugSyncPolling)
	m, sched := newTestBugManager(t, cfg, webhookConfig(), runner)

	require.NoError(t, m.Start())

	assert.True(t, runner.Running())
	assert.Zero(t, sched.addCount(BugHealthJobID))
}

func TestBugSyncManager_Status(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestBugManager(t, bothConfig(0), webhookConfig(), runner)

	require.NoError(t, m.Start())

	status := m.Status()
	assert.True(t, status.IsRunning)
	assert.Equal(t, domain.BugSyncBoth, status.Strategy)
	assert.True(t, status.Polling.Enabled)
	assert.Equal(t, "running", status.Polling.Status)
	assert.True(t, status.Webhook.Enabled)
	assert.False(t, status.Webhook.IsHealthy, "no delivery yet means unhealthy")
	assert.Nil(t, status.Webhook.LastReceived)

	event := bugEvent(domain.EventActionUpdated, domain.Bug{ID: "5"})
	m.handleWebhookSuccess(&event)

	status = m.Status()
	assert.True(t, status.Webhook.IsHealthy)
	require.NotNil(t, status.Webhook.LastReceived)
}
