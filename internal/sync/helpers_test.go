package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/pkg/errors"
	"github.com/robfig/cron/v3"
)

// fakeScheduler records scheduled jobs without running them.
type fakeScheduler struct {
	m       gosync.Mutex
	jobs    map[string]cron.Job
	adds    map[string]int
	removed []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		jobs: map[string]cron.Job{},
		adds: map[string]int{},
	}
}

func (f *fakeScheduler) Start() {}
func (f *fakeScheduler) Stop()  {}

func (f *fakeScheduler) AddJob(job cron.Job, interval time.Duration, identifier string) (int, error) {
	f.m.Lock()
	defer f.m.Unlock()

	if _, ok := f.jobs[identifier]; ok {
		return 0, fmt.Errorf("job with identifier '%s' already exists", identifier)
	}
	f.jobs[identifier] = job
	f.adds[identifier]++
	return len(f.jobs), nil
}

func (f *fakeScheduler) RemoveJobByIdentifier(id string) error {
	f.m.Lock()
	defer f.m.Unlock()

	delete(f.jobs, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeScheduler) GetNextRun(id string) (time.Time, error) {
	return time.Time{}, nil
}

func (f *fakeScheduler) addCount(id string) int {
	f.m.Lock()
	defer f.m.Unlock()
	return f.adds[id]
}

func (f *fakeScheduler) active(id string) bool {
	f.m.Lock()
	defer f.m.Unlock()
	_, ok := f.jobs[id]
	return ok
}

// memBugRepo is an in-memory domain.BugRepo. IDs listed in failIDs reject
// Upsert to simulate per-item persistence failure.
type memBugRepo struct {
	m       gosync.Mutex
	bugs    map[string]domain.Bug
	failIDs map[string]bool
	deleted []string
}

func newMemBugRepo() *memBugRepo {
	return &memBugRepo{bugs: map[string]domain.Bug{}, failIDs: map[string]bool{}}
}

func (r *memBugRepo) Upsert(ctx context.Context, bug *domain.Bug) error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.failIDs[bug.ID] {
		return errors.New("storage rejected bug %s", bug.ID)
	}
	r.bugs[bug.ID] = *bug
	return nil
}

func (r *memBugRepo) Delete(ctx context.Context, id string) error {
	r.m.Lock()
	defer r.m.Unlock()

	delete(r.bugs, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *memBugRepo) Count(ctx context.Context) (int64, error) {
	r.m.Lock()
	defer r.m.Unlock()
	return int64(len(r.bugs)), nil
}

func (r *memBugRepo) get(id string) (domain.Bug, bool) {
	r.m.Lock()
	defer r.m.Unlock()
	b, ok := r.bugs[id]
	return b, ok
}

func (r *memBugRepo) size() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.bugs)
}

type memCheckpoints struct {
	m      gosync.Mutex
	points map[string]time.Time
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{points: map[string]time.Time{}}
}

func (c *memCheckpoints) Get(ctx context.Context, name string) (time.Time, error) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.points[name], nil
}

func (c *memCheckpoints) Set(ctx context.Context, name string, t time.Time) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.points[name] = t
	return nil
}

func (c *memCheckpoints) get(name string) time.Time {
	c.m.Lock()
	defer c.m.Unlock()
	return c.points[name]
}

type memRecords struct {
	m       gosync.Mutex
	records map[string]domain.SyncRecord
}

func newMemRecords() *memRecords {
	return &memRecords{records: map[string]domain.SyncRecord{}}
}

func (r *memRecords) Store(ctx context.Context, record *domain.SyncRecord) error {
	r.m.Lock()
	defer r.m.Unlock()
	r.records[record.ID] = *record
	return nil
}

func (r *memRecords) History(ctx context.Context, tableName string, limit int) ([]domain.SyncRecord, error) {
	r.m.Lock()
	defer r.m.Unlock()

	var out []domain.SyncRecord
	for _, rec := range r.records {
		if tableName != "" && rec.TableName != tableName {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *memRecords) all() []domain.SyncRecord {
	r.m.Lock()
	defer r.m.Unlock()

	var out []domain.SyncRecord
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}

// pagedSource serves scripted pages of bugs. errAtPage, when non-zero,
// fails that page's fetch.
type pagedSource struct {
	m         gosync.Mutex
	pages     []domain.BugPage
	calls     []domain.BugListQuery
	errAtPage int
}

func (s *pagedSource) GetBugs(ctx context.Context, query domain.BugListQuery) (*domain.BugPage, error) {
	s.m.Lock()
	defer s.m.Unlock()

	s.calls = append(s.calls, query)

	if s.errAtPage != 0 && query.Page == s.errAtPage {
		return nil, errors.New("upstream unavailable")
	}
	if query.Page > len(s.pages) {
		return &domain.BugPage{Page: query.Page, PageSize: query.PageSize}, nil
	}
	return &s.pages[query.Page-1], nil
}

func (s *pagedSource) callCount() int {
	s.m.Lock()
	defer s.m.Unlock()
	return len(s.calls)
}

func (s *pagedSource) call(i int) domain.BugListQuery {
	s.m.Lock()
	defer s.m.Unlock()
	return s.calls[i]
}

func makeBugs(prefix string, n int) []domain.Bug {
	bugs := make([]domain.Bug, n)
	for i := range bugs {
		bugs[i] = domain.Bug{
			ID:     fmt.Sprintf("%s-%d", prefix, i+1),
			Title:  fmt.Sprintf("bug %s-%d", prefix, i+1),
			Status: "open",
		}
	}
	return bugs
}

// fakeRunner is a pullRunner that records lifecycle calls.
type fakeRunner struct {
	m       gosync.Mutex
	running bool
	starts  int
	stops   int
	startEr error
}

func (f *fakeRunner) Start() error {
	f.m.Lock()
	defer f.m.Unlock()

	if f.startEr != nil {
		return f.startEr
	}
	if f.running {
		return nil
	}
	f.running = true
	f.starts++
	return nil
}

func (f *fakeRunner) Stop() {
	f.m.Lock()
	defer f.m.Unlock()

	if !f.running {
		return
	}
	f.running = false
	f.stops++
}

func (f *fakeRunner) Running() bool {
	f.m.Lock()
	defer f.m.Unlock()
	return f.running
}

func (f *fakeRunner) startCount() int {
	f.m.Lock()
	defer f.m.Unlock()
	return f.starts
}

func (f *fakeRunner) stopCount() int {
	f.m.Lock()
	defer f.m.Unlock()
	return f.stops
}

// fakeCycleRunner extends fakeRunner with on-demand cycles for the
// strategy manager.
type fakeCycleRunner struct {
	fakeRunner
	cycleResult domain.SyncResult
	cycles      int
	onResult    func(result domain.SyncResult, took time.Duration)
}

func (f *fakeCycleRunner) TriggerCycle(ctx context.Context) domain.SyncResult {
	f.m.Lock()
	f.cycles++
	result := f.cycleResult
	f.m.Unlock()

	if f.onResult != nil {
		f.onResult(result, time.Millisecond)
	}
	return result
}

func (f *fakeCycleRunner) SetOnResult(fn func(result domain.SyncResult, took time.Duration)) {
	f.onResult = fn
}

func (f *fakeCycleRunner) cycleCount() int {
	f.m.Lock()
	defer f.m.Unlock()
	return f.cycles
}
