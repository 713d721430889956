package repository

import (
	"context"
	"errors"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateBalance inserts a balance row unless one with the same user or the
// same referral code already exists. created is false on any conflict; the
// statement itself never fails on a conflict, so an enclosing transaction
// stays usable.
func (r *Repository) CreateBalance(ctx context.Context, tx *gorm.DB, b *models.AccountBalance) (bool, error) {
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	res := r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(b)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetBalance returns the balance row of a user, or nil if there is none
func (r *Repository) GetBalance(ctx context.Context, tx *gorm.DB, userID string) (*models.AccountBalance, error) {
	return r.findBalance(r.conn(ctx, tx).Where("user_id = ?", userID))
}

// GetBalanceForUpdate is GetBalance with a row lock held until the
// transaction ends
func (r *Repository) GetBalanceForUpdate(ctx context.Context, tx *gorm.DB, userID string) (*models.AccountBalance, error) {
	return r.findBalance(r.conn(ctx, tx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID))
}

// GetBalanceByReferralCode resolves a referral code to its owner's row
func (r *Repository) GetBalanceByReferralCode(ctx context.Context, tx *gorm.DB, code string) (*models.AccountBalance, error) {
	return r.findBalance(r.conn(ctx, tx).Where("referral_code = ?", code))
}

func (r *Repository) findBalance(q *gorm.DB) (*models.AccountBalance, error) {
	var b models.AccountBalance
	if err := q.Take(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// ReferralCodeExists reports whether code is already assigned
func (r *Repository) ReferralCodeExists(ctx context.Context, tx *gorm.DB, code string) (bool, error) {
	var count int64
	err := r.conn(ctx, tx).Model(&models.AccountBalance{}).Where("referral_code = ?", code).Count(&count).Error
	return count > 0, err
}

// AddEarned atomically adds amount to balance and total_earned. ok is false
// when the user has no balance row.
func (r *Repository) AddEarned(ctx context.Context, tx *gorm.DB, userID string, amount int64) (bool, error) {
	res := r.conn(ctx, tx).Model(&models.AccountBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":      gorm.Expr("balance + ?", amount),
			"total_earned": gorm.Expr("total_earned + ?", amount),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AddSpent atomically moves amount from balance to total_spent, only if
// the balance covers it. ok is false when the row is missing or the
// balance is too low.
func (r *Repository) AddSpent(ctx context.Context, tx *gorm.DB, userID string, amount int64) (bool, error) {
	res := r.conn(ctx, tx).Model(&models.AccountBalance{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance":     gorm.Expr("balance - ?", amount),
			"total_spent": gorm.Expr("total_spent + ?", amount),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetTier stores the derived tier of a user
func (r *Repository) SetTier(ctx context.Context, tx *gorm.DB, userID string, tier models.Tier) error {
	return r.conn(ctx, tx).Model(&models.AccountBalance{}).
		Where("user_id = ?", userID).
		Update("tier", tier).Error
}

// OverwriteTotals replaces the aggregate columns of a balance row. Only the
// reconciler uses it, with totals recomputed from the transaction log.
func (r *Repository) OverwriteTotals(ctx context.Context, tx *gorm.DB, userID string, earned, spent int64, tier models.Tier) error {
	return r.conn(ctx, tx).Model(&models.AccountBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":      earned - spent,
			"total_earned": earned,
			"total_spent":  spent,
			"tier":         tier,
			"updated_at":   time.Now().UTC(),
		}).Error
}

// ListBalanceUserIDs returns the ids of all users with a balance row
func (r *Repository) ListBalanceUserIDs(ctx context.Context, tx *gorm.DB) ([]string, error) {
	var ids []string
	err := r.conn(ctx, tx).Model(&models.AccountBalance{}).Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}
