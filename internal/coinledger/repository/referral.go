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

// CreateReferral inserts the referral edge of ref.ReferredID. It returns
// false if that user was referred already.
func (r *Repository) CreateReferral(ctx context.Context, tx *gorm.DB, ref *models.Referral) (bool, error) {
	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}
	now := time.Now().UTC()
	ref.CreatedAt = now
	ref.UpdatedAt = now
	res := r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(ref)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetReferralByReferred returns the referral edge of a referred user, or nil
func (r *Repository) GetReferralByReferred(ctx context.Context, tx *gorm.DB, referredID string) (*models.Referral, error) {
	var ref models.Referral
	if err := r.conn(ctx, tx).Where("referred_id = ?", referredID).Take(&ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}

// AdvanceReferralStatus moves a referral from one status to the next. It is
// a compare-and-set: false means the referral was not in status from.
func (r *Repository) AdvanceReferralStatus(ctx context.Context, tx *gorm.DB, referredID string, from, to models.ReferralStatus) (bool, error) {
	res := r.conn(ctx, tx).Model(&models.Referral{}).
		Where("referred_id = ? AND status = ?", referredID, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountReferralsByStatus groups a referrer's referrals by status
func (r *Repository) CountReferralsByStatus(ctx context.Context, tx *gorm.DB, referrerID string) (map[models.ReferralStatus]int64, error) {
	var rows []struct {
		Status models.ReferralStatus
		Total  int64
	}
	err := r.conn(ctx, tx).Model(&models.Referral{}).
		Select("status, COUNT(*) AS total").
		Where("referrer_id = ?", referrerID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.ReferralStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
