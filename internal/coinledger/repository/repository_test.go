package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/jackc/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupRepo(t *testing.T) *Repository {
	t.Helper()
	// per-test in-memory database to avoid cross-test interference
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	repo := NewRepository(logger.Nop())
	require.NoError(t, repo.InitDB(DriverSQLite, dsn))
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCreateBalanceConflicts(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	created, err := repo.CreateBalance(ctx, nil, &models.AccountBalance{UserID: "u1", Tier: models.TierBronze, ReferralCode: "AAAA1111"})
	require.NoError(t, err)
	require.True(t, created)

	// same user
	created, err = repo.CreateBalance(ctx, nil, &models.AccountBalance{UserID: "u1", Tier: models.TierBronze, ReferralCode: "BBBB2222"})
	require.NoError(t, err)
	require.False(t, created)

	// same code, other user
	created, err = repo.CreateBalance(ctx, nil, &models.AccountBalance{UserID: "u2", Tier: models.TierBronze, ReferralCode: "AAAA1111"})
	require.NoError(t, err)
	require.False(t, created)

	b, err := repo.GetBalance(ctx, nil, "u1")
	require.NoError(t, err)
	require.Equal(t, "AAAA1111", b.ReferralCode)

	missing, err := repo.GetBalance(ctx, nil, "u2")
	require.NoError(t, err)
	require.Nil(t, missing)

	exists, err := repo.ReferralCodeExists(ctx, nil, "AAAA1111")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestAddEarnedAndSpent(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	ok, err := repo.AddEarned(ctx, nil, "ghost", 10)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = repo.CreateBalance(ctx, nil, &models.AccountBalance{UserID: "u1", Tier: models.TierBronze, ReferralCode: "AAAA1111"})
	require.NoError(t, err)

	ok, err = repo.AddEarned(ctx, nil, "u1", 100)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.AddSpent(ctx, nil, "u1", 101)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.AddSpent(ctx, nil, "u1", 40)
	require.NoError(t, err)
	require.True(t, ok)

	b, err := repo.GetBalance(ctx, nil, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(60), b.Balance)
	require.Equal(t, int64(100), b.TotalEarned)
	require.Equal(t, int64(40), b.TotalSpent)
}

func TestInsertClaimOnce(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	first, err := repo.InsertClaim(ctx, nil, "u1", "quest:abc")
	require.NoError(t, err)
	require.True(t, first)

	second, err := repo.InsertClaim(ctx, nil, "u1", "quest:abc")
	require.NoError(t, err)
	require.False(t, second)

	other, err := repo.InsertClaim(ctx, nil, "u2", "quest:abc")
	require.NoError(t, err)
	require.True(t, other)

	has, err := repo.HasClaim(ctx, nil, "u1", "quest:abc")
	require.NoError(t, err)
	require.True(t, has)
}

func TestTransactionRollsBackClaim(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.Transaction(ctx, func(tx *gorm.DB) error {
		ok, err := repo.InsertClaim(ctx, tx, "u1", "welcome_bonus")
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	has, err := repo.HasClaim(ctx, nil, "u1", "welcome_bonus")
	require.NoError(t, err)
	require.False(t, has)
}

func TestReferralCompareAndSet(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	created, err := repo.CreateReferral(ctx, nil, &models.Referral{ReferrerID: "u1", ReferredID: "u2", ReferralCode: "AAAA1111", Status: models.ReferralRegistered})
	require.NoError(t, err)
	require.True(t, created)

	created, err = repo.CreateReferral(ctx, nil, &models.Referral{ReferrerID: "u3", ReferredID: "u2", ReferralCode: "CCCC3333", Status: models.ReferralRegistered})
	require.NoError(t, err)
	require.False(t, created)

	moved, err := repo.AdvanceReferralStatus(ctx, nil, "u2", models.ReferralRegistered, models.ReferralFirstPurchase)
	require.NoError(t, err)
	require.True(t, moved)

	moved, err = repo.AdvanceReferralStatus(ctx, nil, "u2", models.ReferralRegistered, models.ReferralFirstPurchase)
	require.NoError(t, err)
	require.False(t, moved)

	counts, err := repo.CountReferralsByStatus(ctx, nil, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1), counts[models.ReferralFirstPurchase])
	require.Zero(t, counts[models.ReferralRegistered])
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "deadlock", err: fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"}), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "sqlite busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, want: true},
		{name: "sqlite constraint", err: sqlite3.Error{Code: sqlite3.ErrConstraint}, want: false},
		{name: "plain", err: errors.New("x"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestListTransactionsTiesFollowWriteOrder(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := repo.Transaction(ctx, func(tx *gorm.DB) error {
		for i := int64(1); i <= 20; i++ {
			if err := repo.CreateTransaction(ctx, tx, &models.Transaction{
				UserID:    "u1",
				Amount:    i,
				Direction: models.DirectionEarned,
				Source:    models.SourceAdjustment,
				CreatedAt: at,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	txs, err := repo.ListTransactions(ctx, nil, "u1", 100, 0)
	require.NoError(t, err)
	require.Len(t, txs, 20)
	for i, tx := range txs {
		require.Equal(t, int64(20-i), tx.Amount)
	}
}
