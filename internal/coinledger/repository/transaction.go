package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateTransaction appends an entry to the transaction log. Ids are
// UUIDv7, so entries sharing a created_at still list in write order.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *models.Transaction) error {
	if t.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("transaction id: %w", err)
		}
		t.ID = id
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return r.conn(ctx, tx).Create(t).Error
}

// ListTransactions returns a page of a user's transactions, most recent first
func (r *Repository) ListTransactions(ctx context.Context, tx *gorm.DB, userID string, limit, offset int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.conn(ctx, tx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	return txs, err
}

// ListTransactionsByReference returns every transaction of a user that
// points at referenceID
func (r *Repository) ListTransactionsByReference(ctx context.Context, tx *gorm.DB, userID, referenceID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.conn(ctx, tx).
		Where("user_id = ? AND reference_id = ?", userID, referenceID).
		Order("created_at").
		Find(&txs).Error
	return txs, err
}

// SumTransactions totals a user's log by direction
func (r *Repository) SumTransactions(ctx context.Context, tx *gorm.DB, userID string) (earned, spent int64, err error) {
	var rows []struct {
		Direction models.Direction
		Total     int64
	}
	err = r.conn(ctx, tx).Model(&models.Transaction{}).
		Select("direction, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", userID).
		Group("direction").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}
	for _, row := range rows {
		switch row.Direction {
		case models.DirectionEarned:
			earned = row.Total
		case models.DirectionSpent:
			spent = row.Total
		}
	}
	return earned, spent, nil
}

// SumEarnedBySource totals a user's earned coins from one source
func (r *Repository) SumEarnedBySource(ctx context.Context, tx *gorm.DB, userID, source string) (int64, error) {
	var total int64
	err := r.conn(ctx, tx).Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND direction = ? AND source = ?", userID, models.DirectionEarned, source).
		Scan(&total).Error
	return total, err
}
