package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/internal/scheduler"
	"github.com/BugBridge/BugBridge/pkg/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IncrementalJobID is the default scheduler identifier of the incremental job.
const IncrementalJobID = "sync-incremental"

// defaultIncrementalLookback bounds a table's first pull when no checkpoint
// exists yet.
const defaultIncrementalLookback = time.Hour

// IncrementalSync pulls per-table changes since each table's stored
// checkpoint and writes an audit record for every run, terminal status
// included, whether the run succeeded or not.
type IncrementalSync struct {
	log         zerolog.Logger
	scheduler   scheduler.Service
	source      bugSource
	bugs        domain.BugRepo
	checkpoints domain.CheckpointRepo
	records     domain.SyncRecordRepo

	interval  time.Duration
	batchSize int
	strict    bool
	tables    []domain.SyncTableConfig
	jobID     string

	onResult func(result domain.SyncResult, took time.Duration)

	m          gosync.Mutex
	running    bool
	gen        uint64
	lastResult *domain.SyncResult
}

func NewIncrementalSync(log logger.Logger, sched scheduler.Service, source bugSource, bugs domain.BugRepo, checkpoints domain.CheckpointRepo, records domain.SyncRecordRepo, settings domain.IncrementalSyncSettings, strict bool) *IncrementalSync {
	interval := time.Duration(settings.CheckIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}
	batchSize := settings.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	return &IncrementalSync{
		log:         log.With().Str("module", "sync").Str("strategy", "incremental").Logger(),
		scheduler:   sched,
		source:      source,
		bugs:        bugs,
		checkpoints: checkpoints,
		records:     records,
		interval:    interval,
		batchSize:   batchSize,
		strict:      strict,
		tables:      settings.Tables,
		jobID:       IncrementalJobID,
	}
}

// SetOnResult registers an observer called after every completed cycle.
// Call before Start.
func (s *IncrementalSync) SetOnResult(fn func(result domain.SyncResult, took time.Duration)) {
	s.onResult = fn
}

// Start performs one immediate cycle and schedules recurring cycles.
// Calling Start while running is a no-op.
func (s *IncrementalSync) Start() error {
	s.m.Lock()
	if s.running {
		s.m.Unlock()
		s.log.Debug().Msg("incremental sync already running")
		return nil
	}
	s.running = true
	s.gen++
	gen := s.gen
	s.m.Unlock()

	if _, err := s.scheduler.AddJob(scheduler.JobFunc(func() {
		s.run(gen)
	}), s.interval, s.jobID); err != nil {
		s.m.Lock()
		s.running = false
		s.m.Unlock()
		return errors.Wrap(err, "could not schedule incremental sync job")
	}

	go s.run(gen)

	s.log.Info().Dur("interval", s.interval).Int("tables", len(s.tables)).Msg("incremental sync started")
	return nil
}

func (s *IncrementalSync) Stop() {
	s.m.Lock()
	if !s.running {
		s.m.Unlock()
		return
	}
	s.running = false
	s.gen++
	s.m.Unlock()

	_ = s.scheduler.RemoveJobByIdentifier(s.jobID)

	s.log.Info().Msg("incremental sync stopped")
}

func (s *IncrementalSync) Running() bool {
	s.m.Lock()
	defer s.m.Unlock()
	return s.running
}

func (s *IncrementalSync) LastResult() *domain.SyncResult {
	s.m.Lock()
	defer s.m.Unlock()
	if s.lastResult == nil {
		return nil
	}
	r := *s.lastResult
	return &r
}

// TriggerCycle runs one cycle synchronously, outside the schedule.
func (s *IncrementalSync) TriggerCycle(ctx context.Context) domain.SyncResult {
	started := time.Now()
	result := s.cycle(ctx)
	s.record(result, time.Since(started))
	return result
}

func (s *IncrementalSync) stale(gen uint64) bool {
	s.m.Lock()
	defer s.m.Unlock()
	return !s.running || gen != s.gen
}

func (s *IncrementalSync) run(gen uint64) {
	if s.stale(gen) {
		return
	}

	started := time.Now()
	result := s.cycle(context.Background())

	if s.stale(gen) {
		return
	}

	s.record(result, time.Since(started))
}

func (s *IncrementalSync) record(result domain.SyncResult, took time.Duration) {
	s.m.Lock()
	r := result
	s.lastResult = &r
	s.m.Unlock()

	if s.onResult != nil {
		s.onResult(result, took)
	}
}

func (s *IncrementalSync) cycle(ctx context.Context) domain.SyncResult {
	result := domain.SyncResult{LastSyncTime: time.Now()}

	for _, table := range s.tables {
		if !table.Enabled {
			continue
		}
		s.syncTable(ctx, table, &result)
	}

	result.Success = len(result.Errors) == 0

	s.log.Info().
		Bool("success", result.Success).
		Int("synced", result.SyncedCount).
		Int("failed", result.FailedCount).
		Msg("incremental cycle finished")

	return result
}

// syncTable pulls one table's changes since its checkpoint. The audit record
// is created before the pull and finalized on the way out no matter how the
// pull ends.
func (s *IncrementalSync) syncTable(ctx context.Context, table domain.SyncTableConfig, result *domain.SyncResult) {
	record := &domain.SyncRecord{
		ID:           uuid.New().String(),
		TableName:    table.TableName,
		LastSyncTime: time.Now(),
		Status:       domain.SyncRunRunning,
	}
	if err := s.records.Store(ctx, record); err != nil {
		s.log.Error().Err(err).Str("table", table.TableName).Msg("could not create sync record")
	}

	var (
		synced   int
		itemErrs []domain.SyncError
		runErr   error
	)
	defer func() {
		record.RecordCount = synced
		record.Status = domain.SyncRunSuccess
		if runErr != nil {
			record.Status = domain.SyncRunFailed
			record.Error = runErr.Error()
		}
		if err := s.records.Store(ctx, record); err != nil {
			s.log.Error().Err(err).Str("table", table.TableName).Msg("could not finalize sync record")
		}
	}()

	since, err := s.checkpoints.Get(ctx, table.TableName)
	if err != nil {
		runErr = errors.Wrap(err, "could not load checkpoint for table %q", table.TableName)
		result.Errors = append(result.Errors, domain.SyncError{Entity: table.TableName, Err: runErr.Error()})
		return
	}
	if since.IsZero() {
		since = time.Now().Add(-defaultIncrementalLookback)
	}

	switch table.TableName {
	case "bugs":
		synced, itemErrs, runErr = s.pullBugs(ctx, since)
	default:
		runErr = errors.New("unsupported sync table %q", table.TableName)
	}

	result.SyncedCount += synced
	result.FailedCount += len(itemErrs)
	result.Errors = append(result.Errors, itemErrs...)

	if runErr != nil {
		s.log.Error().Err(runErr).Str("table", table.TableName).Msg("table sync failed")
		result.Errors = append(result.Errors, domain.SyncError{Entity: table.TableName, Err: runErr.Error()})
		return
	}

	if !s.strict || len(itemErrs) == 0 {
		if err := s.checkpoints.Set(ctx, table.TableName, record.LastSyncTime); err != nil {
			s.log.Error().Err(err).Str("table", table.TableName).Msg("could not persist checkpoint")
		}
	}
}

func (s *IncrementalSync) pullBugs(ctx context.Context, since time.Time) (int, []domain.SyncError, error) {
	var (
		synced   int
		itemErrs []domain.SyncError
	)

	for page := 1; ; page++ {
		pageData, err := s.source.GetBugs(ctx, domain.BugListQuery{
			Page:          page,
			PageSize:      s.batchSize,
			ModifiedSince: &since,
		})
		if err != nil {
			return synced, itemErrs, err
		}

		for i := range pageData.Items {
			bug := pageData.Items[i]
			if err := s.bugs.Upsert(ctx, &bug); err != nil {
				s.log.Warn().Err(err).Str("bug_id", bug.ID).Msg("could not store bug locally")
				itemErrs = append(itemErrs, domain.SyncError{Entity: "bugs", ItemID: bug.ID, Err: err.Error()})
				continue
			}
			synced++
		}

		if len(pageData.Items) < s.batchSize {
			break
		}
	}

	return synced, itemErrs, nil
}
