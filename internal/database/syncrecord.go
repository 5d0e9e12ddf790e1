package database

import (
	"context"
	"time"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm/clause"
)

type syncRecordModel struct {
	ID           string    `gorm:"primaryKey;column:id"`
	Table        string    `gorm:"column:table_name;index"`
	LastSyncTime time.Time `gorm:"column:last_sync_time"`
	RecordCount  int       `gorm:"column:record_count"`
	Status       string    `gorm:"column:status"`
	Error        string    `gorm:"column:error"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (syncRecordModel) TableName() string {
	return "sync_records"
}

func NewSyncRecordRepo(log logger.Logger, db *DB) domain.SyncRecordRepo {
	return &SyncRecordRepo{
		log: log.With().Str("repo", "sync_record").Logger(),
		db:  db,
	}
}

type SyncRecordRepo struct {
	log zerolog.Logger
	db  *DB
}

// Store creates the run record or replaces it by ID, so a run opened as
// "running" can be finalized in place.
func (r *SyncRecordRepo) Store(ctx context.Context, record *domain.SyncRecord) error {
	if record.ID == "" {
		return errors.New("sync record id is required")
	}

	model := syncRecordModel{
		ID:           record.ID,
		Table:        record.TableName,
		LastSyncTime: record.LastSyncTime,
		RecordCount:  record.RecordCount,
		Status:       string(record.Status),
		Error:        record.Error,
	}

	result := r.db.Get().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&model)
	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("table", record.TableName).Msg("Failed to store sync record")
		return errors.Wrap(result.Error, "failed to store sync record %s", record.ID)
	}

	return nil
}

func (r *SyncRecordRepo) History(ctx context.Context, tableName string, limit int) ([]domain.SyncRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := r.db.Get().WithContext(ctx).
		Model(&syncRecordModel{}).
		Order("created_at desc").
		Limit(limit)
	if tableName != "" {
		query = query.Where("table_name = ?", tableName)
	}

	var models []syncRecordModel
	if err := query.Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query sync history")
	}

	records := make([]domain.SyncRecord, 0, len(models))
	for _, m := range models {
		records = append(records, domain.SyncRecord{
			ID:           m.ID,
			TableName:    m.Table,
			LastSyncTime: m.LastSyncTime,
			RecordCount:  m.RecordCount,
			Status:       domain.SyncRunStatus(m.Status),
			Error:        m.Error,
		})
	}

	return records, nil
}
