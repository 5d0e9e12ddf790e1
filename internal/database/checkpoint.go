package database

import (
	"context"
	"time"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type checkpointModel struct {
	Name      string    `gorm:"primaryKey;column:name"`
	SyncedAt  time.Time `gorm:"column:synced_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (checkpointModel) TableName() string {
	return "sync_checkpoints"
}

func NewCheckpointRepo(log logger.Logger, db *DB) domain.CheckpointRepo {
	return &CheckpointRepo{
		log: log.With().Str("repo", "checkpoint").Logger(),
		db:  db,
	}
}

type CheckpointRepo struct {
	log zerolog.Logger
	db  *DB
}

// Get returns the zero time when no checkpoint is stored yet; callers apply
// their own default lookback.
func (r *CheckpointRepo) Get(ctx context.Context, name string) (time.Time, error) {
	var model checkpointModel
	result := r.db.Get().WithContext(ctx).
		Where("name = ?", name).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, errors.Wrap(result.Error, "failed to get checkpoint %s", name)
	}

	return model.SyncedAt, nil
}

func (r *CheckpointRepo) Set(ctx context.Context, name string, t time.Time) error {
	model := checkpointModel{Name: name, SyncedAt: t}

	result := r.db.Get().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"synced_at"}),
		}).
		Create(&model)
	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("name", name).Msg("Failed to set checkpoint")
		return errors.Wrap(result.Error, "failed to set checkpoint %s", name)
	}

	return nil
}
