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

// bugModel is the local mirror of one upstream defect record. Defined
// internally as an implementation detail of this repo.
type bugModel struct {
	ID          string    `gorm:"primaryKey;column:id"`
	Title       string    `gorm:"column:title"`
	Description string    `gorm:"column:description"`
	Status      string    `gorm:"column:status"`
	Priority    string    `gorm:"column:priority"`
	Reporter    string    `gorm:"column:reporter"`
	Assignee    string    `gorm:"column:assignee"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
	SyncedAt    time.Time `gorm:"column:synced_at;autoUpdateTime"`
}

func (bugModel) TableName() string {
	return "bugs"
}

func NewBugRepo(log logger.Logger, db *DB) domain.BugRepo {
	return &BugRepo{
		log: log.With().Str("repo", "bug").Logger(),
		db:  db,
	}
}

type BugRepo struct {
	log zerolog.Logger
	db  *DB
}

// Upsert creates or replaces the local record; last writer wins.
func (r *BugRepo) Upsert(ctx context.Context, bug *domain.Bug) error {
	if bug.ID == "" {
		return errors.New("bug id is required")
	}

	model := bugModel{
		ID:          bug.ID,
		Title:       bug.Title,
		Description: bug.Description,
		Status:      bug.Status,
		Priority:    bug.Priority,
		Reporter:    bug.Reporter,
		Assignee:    bug.Assignee,
		CreatedAt:   bug.CreatedAt,
		UpdatedAt:   bug.UpdatedAt,
	}

	result := r.db.Get().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&model)
	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("bug_id", bug.ID).Msg("Failed to upsert bug")
		return errors.Wrap(result.Error, "failed to upsert bug %s", bug.ID)
	}

	return nil
}

func (r *BugRepo) Delete(ctx context.Context, id string) error {
	result := r.db.Get().WithContext(ctx).
		Where("id = ?", id).
		Delete(&bugModel{})
	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("bug_id", id).Msg("Failed to delete bug")
		return errors.Wrap(result.Error, "failed to delete bug %s", id)
	}

	return nil
}

func (r *BugRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.Get().WithContext(ctx).
		Model(&bugModel{}).
		Count(&count)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to count bugs")
	}

	return count, nil
}
