package domain

import (
	"context"
	"encoding/json"
	"time"
)

// SyncStrategy selects how local records are kept consistent with the
// upstream system. The set is closed: the status table and the strategy
// switch operate over exactly these four values.
type SyncStrategy string

const (
	SyncStrategyPolling     SyncStrategy = "polling"
	SyncStrategyWebhook     SyncStrategy = "webhook"
	SyncStrategyIncremental SyncStrategy = "incremental"
	SyncStrategyHybrid      SyncStrategy = "hybrid"
)

// SyncStrategies lists every strategy in the order the status table reports them.
var SyncStrategies = []SyncStrategy{
	SyncStrategyPolling,
	SyncStrategyWebhook,
	SyncStrategyIncremental,
	SyncStrategyHybrid,
}

func (s SyncStrategy) Valid() bool {
	switch s {
	case SyncStrategyPolling, SyncStrategyWebhook, SyncStrategyIncremental, SyncStrategyHybrid:
		return true
	}
	return false
}

// BugSyncStrategy is the reduced strategy set of the bug-only manager.
type BugSyncStrategy string

const (
	BugSyncPolling BugSyncStrategy = "polling"
	BugSyncWebhook BugSyncStrategy = "webhook"
	BugSyncBoth    BugSyncStrategy = "both"
)

// SyncConfig holds the tunables of a pull strategy.
type SyncConfig struct {
	Interval        time.Duration
	BatchSize       int
	MaxRetries      int
	EnabledEntities []string

	// StrictCheckpoint controls whether the last-sync checkpoint only
	// advances when every item of the cycle persisted locally. The default
	// (false) advances optimistically; failed items are then visible in the
	// run result but not re-pulled on the next cycle.
	StrictCheckpoint bool
}

// SyncError records one failed item or call within a pull cycle.
type SyncError struct {
	Entity string `json:"entity"`
	ItemID string `json:"item_id,omitempty"`
	Err    string `json:"error"`
}

// SyncResult is the outcome of a single pull cycle.
type SyncResult struct {
	Success      bool        `json:"success"`
	SyncedCount  int         `json:"synced_count"`
	FailedCount  int         `json:"failed_count"`
	LastSyncTime time.Time   `json:"last_sync_time"`
	Errors       []SyncError `json:"errors,omitempty"`
}

// SyncPerformance tracks rolling performance figures of one strategy.
type SyncPerformance struct {
	AvgResponseTime time.Duration `json:"avg_response_time"`
	SuccessRate     float64       `json:"success_rate"`
}

// SyncStatus is the health record of one strategy.
type SyncStatus struct {
	Strategy        SyncStrategy    `json:"strategy"`
	IsHealthy       bool            `json:"is_healthy"`
	LastSuccessTime time.Time       `json:"last_success_time"`
	FailureCount    int             `json:"failure_count"`
	Performance     SyncPerformance `json:"performance"`
}

// EventAction is the change kind carried by a webhook event.
type EventAction string

const (
	EventActionCreated EventAction = "created"
	EventActionUpdated EventAction = "updated"
	EventActionDeleted EventAction = "deleted"
)

// WebHookEvent is one inbound change notification from the upstream system.
type WebHookEvent struct {
	EventType  string          `json:"eventType"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     EventAction     `json:"action"`
	Data       json.RawMessage `json:"data"`
	Timestamp  string          `json:"timestamp"`
}

// SyncRunStatus is the state of one table sync run.
type SyncRunStatus string

const (
	SyncRunRunning SyncRunStatus = "running"
	SyncRunSuccess SyncRunStatus = "success"
	SyncRunFailed  SyncRunStatus = "failed"
)

// SyncRecord is the audit log of one table's sync run. It is created when
// the run starts and finalized with a terminal status regardless of outcome.
type SyncRecord struct {
	ID           string        `json:"id"`
	TableName    string        `json:"table_name"`
	LastSyncTime time.Time     `json:"last_sync_time"`
	RecordCount  int           `json:"record_count"`
	Status       SyncRunStatus `json:"status"`
	Error        string        `json:"error,omitempty"`
}

// SyncTableConfig drives the incremental puller for one table.
type SyncTableConfig struct {
	TableName      string `mapstructure:"table_name" json:"table_name"`
	PrimaryKey     string `mapstructure:"primary_key" json:"primary_key"`
	TimestampField string `mapstructure:"timestamp_field" json:"timestamp_field"`
	Enabled        bool   `mapstructure:"enabled" json:"enabled"`
}

type SyncRecordRepo interface {
	// Store creates the record or replaces it by ID.
	Store(ctx context.Context, record *SyncRecord) error
	// History returns the most recent runs, optionally filtered by table name.
	History(ctx context.Context, tableName string, limit int) ([]SyncRecord, error)
}

type CheckpointRepo interface {
	// Get returns the stored checkpoint for the given name, or the zero
	// time when no checkpoint exists yet.
	Get(ctx context.Context, name string) (time.Time, error)
	Set(ctx context.Context, name string, t time.Time) error
}
