package repository

import (
	"context"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertClaim records that the reward identified by key was issued to
// userID. It returns false, without error, if the claim already exists.
// Concurrent callers with the same key are serialized by the unique index:
// exactly one of them sees true.
func (r *Repository) InsertClaim(ctx context.Context, tx *gorm.DB, userID, key string) (bool, error) {
	claim := models.RewardClaim{
		ID:        uuid.New(),
		UserID:    userID,
		RewardKey: key,
		CreatedAt: time.Now().UTC(),
	}
	res := r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(&claim)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// HasClaim reports whether the reward identified by key was issued
func (r *Repository) HasClaim(ctx context.Context, tx *gorm.DB, userID, key string) (bool, error) {
	var count int64
	err := r.conn(ctx, tx).Model(&models.RewardClaim{}).
		Where("user_id = ? AND reward_key = ?", userID, key).
		Count(&count).Error
	return count > 0, err
}
