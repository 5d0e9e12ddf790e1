// Package sync implements the pull and push strategies that keep the local
// bug store consistent with the upstream system, plus the managers that
// select, supervise and fail over between them.
package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/internal/scheduler"
	"github.com/BugBridge/BugBridge/pkg/errors"
	"github.com/rs/zerolog"
)

// PollingJobID is the default scheduler identifier of the polling job.
const PollingJobID = "sync-polling"

// defaultPollingLookback bounds the first pull when no checkpoint exists yet.
const defaultPollingLookback = 24 * time.Hour

const pollingCheckpoint = "polling:bugs"

// bugSource is the upstream page fetch the pull strategies need.
type bugSource interface {
	GetBugs(ctx context.Context, query domain.BugListQuery) (*domain.BugPage, error)
}

// PollingSync pulls full pages of upstream bugs on a fixed interval.
//
// Start is idempotent while running. Stop bumps a generation token so a
// callback that was already scheduled, or a cycle in flight, discards its
// result instead of mutating state after the stop.
type PollingSync struct {
	log         zerolog.Logger
	scheduler   scheduler.Service
	source      bugSource
	bugs        domain.BugRepo
	checkpoints domain.CheckpointRepo
	cfg         domain.SyncConfig
	jobID       string

	onResult func(result domain.SyncResult, took time.Duration)

	m          gosync.Mutex
	running    bool
	gen        uint64
	lastResult *domain.SyncResult
}

func NewPollingSync(log logger.Logger, sched scheduler.Service, source bugSource, bugs domain.BugRepo, checkpoints domain.CheckpointRepo, cfg domain.SyncConfig, jobID string) *PollingSync {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if len(cfg.EnabledEntities) == 0 {
		cfg.EnabledEntities = []string{"bugs"}
	}
	if jobID == "" {
		jobID = PollingJobID
	}

	return &PollingSync{
		log:         log.With().Str("module", "sync").Str("strategy", "polling").Logger(),
		scheduler:   sched,
		source:      source,
		bugs:        bugs,
		checkpoints: checkpoints,
		cfg:         cfg,
		jobID:       jobID,
	}
}

// SetOnResult registers an observer called after every completed cycle.
// Call before Start.
func (p *PollingSync) SetOnResult(fn func(result domain.SyncResult, took time.Duration)) {
	p.onResult = fn
}

// Start performs one immediate cycle and schedules recurring cycles at the
// configured interval. Calling Start while running is a no-op.
func (p *PollingSync) Start() error {
	p.m.Lock()
	if p.running {
		p.m.Unlock()
		p.log.Debug().Msg("polling already running")
		return nil
	}
	p.running = true
	p.gen++
	gen := p.gen
	p.m.Unlock()

	if _, err := p.scheduler.AddJob(scheduler.JobFunc(func() {
		p.run(gen)
	}), p.cfg.Interval, p.jobID); err != nil {
		p.m.Lock()
		p.running = false
		p.m.Unlock()
		return errors.Wrap(err, "could not schedule polling job")
	}

	go p.run(gen)

	p.log.Info().Dur("interval", p.cfg.Interval).Int("batch_size", p.cfg.BatchSize).Msg("polling started")
	return nil
}

// Stop removes the scheduled job and invalidates outstanding callbacks.
func (p *PollingSync) Stop() {
	p.m.Lock()
	if !p.running {
		p.m.Unlock()
		return
	}
	p.running = false
	p.gen++
	p.m.Unlock()

	_ = p.scheduler.RemoveJobByIdentifier(p.jobID)

	p.log.Info().Msg("polling stopped")
}

func (p *PollingSync) Running() bool {
	p.m.Lock()
	defer p.m.Unlock()
	return p.running
}

// LastResult returns a copy of the most recent cycle result, or nil before
// the first cycle completes.
func (p *PollingSync) LastResult() *domain.SyncResult {
	p.m.Lock()
	defer p.m.Unlock()
	if p.lastResult == nil {
		return nil
	}
	r := *p.lastResult
	return &r
}

// TriggerCycle runs one cycle synchronously, outside the schedule.
func (p *PollingSync) TriggerCycle(ctx context.Context) domain.SyncResult {
	started := time.Now()
	result := p.cycle(ctx)
	p.record(result, time.Since(started))
	return result
}

func (p *PollingSync) stale(gen uint64) bool {
	p.m.Lock()
	defer p.m.Unlock()
	return !p.running || gen != p.gen
}

func (p *PollingSync) run(gen uint64) {
	if p.stale(gen) {
		return
	}

	started := time.Now()
	result := p.cycle(context.Background())

	// Stopped while the cycle was in flight. The result is discarded.
	if p.stale(gen) {
		return
	}

	p.record(result, time.Since(started))
}

func (p *PollingSync) record(result domain.SyncResult, took time.Duration) {
	p.m.Lock()
	r := result
	p.lastResult = &r
	p.m.Unlock()

	if p.onResult != nil {
		p.onResult(result, took)
	}
}

func (p *PollingSync) cycle(ctx context.Context) domain.SyncResult {
	result := domain.SyncResult{LastSyncTime: time.Now()}

	for _, entity := range p.cfg.EnabledEntities {
		switch entity {
		case "bugs":
			p.syncBugs(ctx, &result)
		default:
			p.log.Warn().Str("entity", entity).Msg("no handler for enabled entity")
			result.Errors = append(result.Errors, domain.SyncError{Entity: entity, Err: "unsupported entity"})
		}
	}

	result.Success = len(result.Errors) == 0

	p.log.Info().
		Bool("success", result.Success).
		Int("synced", result.SyncedCount).
		Int("failed", result.FailedCount).
		Msg("polling cycle finished")

	return result
}

// syncBugs pages through the upstream bug collection. One item's save
// failure is counted and skipped; a page fetch failure ends paging for the
// cycle since retries belong to the next scheduled cycle.
func (p *PollingSync) syncBugs(ctx context.Context, result *domain.SyncResult) {
	since, err := p.checkpoints.Get(ctx, pollingCheckpoint)
	if err != nil {
		p.log.Warn().Err(err).Msg("could not load polling checkpoint, using lookback window")
	}
	if since.IsZero() {
		since = time.Now().Add(-defaultPollingLookback)
	}

	callOK := true
	for page := 1; ; page++ {
		pageData, err := p.source.GetBugs(ctx, domain.BugListQuery{
			Page:          page,
			PageSize:      p.cfg.BatchSize,
			ModifiedSince: &since,
		})
		if err != nil {
			p.log.Error().Err(err).Int("page", page).Msg("bug page fetch failed")
			result.Errors = append(result.Errors, domain.SyncError{Entity: "bugs", Err: err.Error()})
			callOK = false
			break
		}

		for i := range pageData.Items {
			bug := pageData.Items[i]
			if err := p.bugs.Upsert(ctx, &bug); err != nil {
				p.log.Warn().Err(err).Str("bug_id", bug.ID).Msg("could not store bug locally")
				result.FailedCount++
				result.Errors = append(result.Errors, domain.SyncError{Entity: "bugs", ItemID: bug.ID, Err: err.Error()})
				continue
			}
			result.SyncedCount++
		}

		if len(pageData.Items) < p.cfg.BatchSize {
			break
		}
	}

	if callOK && (!p.cfg.StrictCheckpoint || result.FailedCount == 0) {
		if err := p.checkpoints.Set(ctx, pollingCheckpoint, result.LastSyncTime); err != nil {
			p.log.Error().Err(err).Msg("could not persist polling checkpoint")
		}
	}
}
