package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite database with the migrations applied.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	handler, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	db := &DB{
		log:     logger.Mock().With().Logger(),
		handler: handler,
		Driver:  "sqlite",
	}
	require.NoError(t, db.migrate())

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func TestNewDB(t *testing.T) {
	log := logger.Mock()

	t.Run("sqlite", func(t *testing.T) {
		db, err := NewDB(&domain.Config{
			ConfigPath: "/tmp/app",
			Database:   domain.DatabaseConfig{Type: "sqlite"},
		}, log)
		require.NoError(t, err)
		assert.Equal(t, "sqlite", db.Driver)
		assert.Contains(t, db.DSN, "bugbridge.db")
	})

	t.Run("postgres requires host", func(t *testing.T) {
		_, err := NewDB(&domain.Config{
			Database: domain.DatabaseConfig{Type: "postgres"},
		}, log)
		assert.ErrorContains(t, err, "postgres configuration is incomplete")
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := NewDB(&domain.Config{
			Database: domain.DatabaseConfig{Type: "oracle"},
		}, log)
		assert.ErrorContains(t, err, "unsupported database type")
	})
}

func TestBugRepo(t *testing.T) {
	db := newTestDB(t)
	repo := NewBugRepo(logger.Mock(), db)
	ctx := context.Background()

	t.Run("upsert requires id", func(t *testing.T) {
		assert.Error(t, repo.Upsert(ctx, &domain.Bug{Title: "no id"}))
	})

	t.Run("upsert is last writer wins", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, &domain.Bug{ID: "b-1", Title: "first", Status: "open"}))
		require.NoError(t, repo.Upsert(ctx, &domain.Bug{ID: "b-1", Title: "second", Status: "closed"}))

		var model bugModel
		require.NoError(t, db.Get().Where("id = ?", "b-1").First(&model).Error)
		assert.Equal(t, "second", model.Title)
		assert.Equal(t, "closed", model.Status)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, &domain.Bug{ID: "b-2", Title: "short lived"}))
		require.NoError(t, repo.Delete(ctx, "b-2"))

		err := db.Get().Where("id = ?", "b-2").First(&bugModel{}).Error
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

		// deleting an absent row is not an error
		assert.NoError(t, repo.Delete(ctx, "b-2"))
	})
}

func TestCheckpointRepo(t *testing.T) {
	db := newTestDB(t)
	repo := NewCheckpointRepo(logger.Mock(), db)
	ctx := context.Background()

	t.Run("missing checkpoint is zero time", func(t *testing.T) {
		got, err := repo.Get(ctx, "polling:bugs")
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})

	t.Run("set then get round trips", func(t *testing.T) {
		first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, repo.Set(ctx, "bugs", first))

		got, err := repo.Get(ctx, "bugs")
		require.NoError(t, err)
		assert.True(t, got.Equal(first))
	})

	t.Run("set replaces existing checkpoint", func(t *testing.T) {
		later := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
		require.NoError(t, repo.Set(ctx, "bugs", later))

		got, err := repo.Get(ctx, "bugs")
		require.NoError(t, err)
		assert.True(t, got.Equal(later))
	})
}

func TestSyncRecordRepo(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncRecordRepo(logger.Mock(), db)
	ctx := context.Background()

	t.Run("store requires id", func(t *testing.T) {
		assert.Error(t, repo.Store(ctx, &domain.SyncRecord{TableName: "bugs"}))
	})

	t.Run("store finalizes a running record in place", func(t *testing.T) {
		record := &domain.SyncRecord{
			ID:           "run-1",
			TableName:    "bugs",
			LastSyncTime: time.Now().UTC(),
			Status:       domain.SyncRunRunning,
		}
		require.NoError(t, repo.Store(ctx, record))

		record.Status = domain.SyncRunSuccess
		record.RecordCount = 42
		require.NoError(t, repo.Store(ctx, record))

		history, err := repo.History(ctx, "bugs", 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, domain.SyncRunSuccess, history[0].Status)
		assert.Equal(t, 42, history[0].RecordCount)
	})

	t.Run("history filters by table and honors limit", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			require.NoError(t, repo.Store(ctx, &domain.SyncRecord{
				ID:        fmt.Sprintf("run-users-%d", i),
				TableName: "users",
				Status:    domain.SyncRunSuccess,
			}))
		}

		history, err := repo.History(ctx, "users", 3)
		require.NoError(t, err)
		assert.Len(t, history, 3)

		bugsOnly, err := repo.History(ctx, "bugs", 10)
		require.NoError(t, err)
		require.Len(t, bugsOnly, 1)
		assert.Equal(t, "bugs", bugsOnly[0].TableName)
	})
}
