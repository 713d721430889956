package service

import (
	"context"

	"github.com/25x8/coinledger/internal/coinledger/models"
	"gorm.io/gorm"
)

// BalanceCache is a read cache in front of balance rows. Get returns nil
// on a miss plus the user's invalidation generation; Set refuses the fill
// when Invalidate ran after that generation was read.
type BalanceCache interface {
	Get(ctx context.Context, userID string) (*models.AccountBalance, int64, error)
	Set(ctx context.Context, b *models.AccountBalance, gen int64) (bool, error)
	Invalidate(ctx context.Context, userIDs ...string) error
}

// txScope is one storage transaction plus the users whose balance rows it
// changed. A fresh scope is built for every attempt of a retried
// transaction.
type txScope struct {
	db      *gorm.DB
	touched []string
}

func (s *txScope) touch(userID string) {
	for _, id := range s.touched {
		if id == userID {
			return
		}
	}
	s.touched = append(s.touched, userID)
}
