package repository

import (
	"context"
	"errors"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetQuestByCode returns the quest with the given code, active or not, or
// nil if none exists
func (r *Repository) GetQuestByCode(ctx context.Context, tx *gorm.DB, code models.QuestCode) (*models.Quest, error) {
	var q models.Quest
	if err := r.conn(ctx, tx).Where("code = ?", code).Take(&q).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &q, nil
}

// ListQuests returns quests ordered by code
func (r *Repository) ListQuests(ctx context.Context, tx *gorm.DB, activeOnly bool) ([]models.Quest, error) {
	var quests []models.Quest
	q := r.conn(ctx, tx).Order("code")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&quests).Error
	return quests, err
}

// CreateQuestIfMissing inserts q unless a quest with its code exists
func (r *Repository) CreateQuestIfMissing(ctx context.Context, tx *gorm.DB, q *models.Quest) (bool, error) {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	res := r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(q)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetQuestActive toggles a quest on or off
func (r *Repository) SetQuestActive(ctx context.Context, tx *gorm.DB, code models.QuestCode, active bool) error {
	return r.conn(ctx, tx).Model(&models.Quest{}).Where("code = ?", code).Update("is_active", active).Error
}

// EnsureProgress lazily creates the progress row of (userID, quest)
func (r *Repository) EnsureProgress(ctx context.Context, tx *gorm.DB, userID string, quest *models.Quest) error {
	now := time.Now().UTC()
	row := models.QuestProgress{
		ID:        uuid.New(),
		UserID:    userID,
		QuestID:   quest.ID,
		Target:    quest.TargetValue,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// IncrementProgress atomically adds increment to the progress counter
func (r *Repository) IncrementProgress(ctx context.Context, tx *gorm.DB, userID string, questID uuid.UUID, increment int64) error {
	return r.conn(ctx, tx).Model(&models.QuestProgress{}).
		Where("user_id = ? AND quest_id = ?", userID, questID).
		Updates(map[string]interface{}{
			"progress":   gorm.Expr("progress + ?", increment),
			"updated_at": time.Now().UTC(),
		}).Error
}

// GetProgress returns the progress row of (userID, questID), or nil
func (r *Repository) GetProgress(ctx context.Context, tx *gorm.DB, userID string, questID uuid.UUID) (*models.QuestProgress, error) {
	var p models.QuestProgress
	err := r.conn(ctx, tx).Where("user_id = ? AND quest_id = ?", userID, questID).Take(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// MarkCompleted sets completed_at once. It returns false if it was set already.
func (r *Repository) MarkCompleted(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error) {
	res := r.conn(ctx, tx).Model(&models.QuestProgress{}).
		Where("id = ? AND completed_at IS NULL", id).
		Updates(map[string]interface{}{"completed_at": at, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkClaimed sets claimed_at once, and only on a completed row
func (r *Repository) MarkClaimed(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error) {
	res := r.conn(ctx, tx).Model(&models.QuestProgress{}).
		Where("id = ? AND claimed_at IS NULL AND completed_at IS NOT NULL", id).
		Updates(map[string]interface{}{"claimed_at": at, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListProgressByUser returns every progress row of a user
func (r *Repository) ListProgressByUser(ctx context.Context, tx *gorm.DB, userID string) ([]models.QuestProgress, error) {
	var rows []models.QuestProgress
	err := r.conn(ctx, tx).Where("user_id = ?", userID).Order("created_at").Find(&rows).Error
	return rows, err
}
