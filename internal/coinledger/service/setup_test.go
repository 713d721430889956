package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/25x8/coinledger/internal/coinledger/repository"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	repo         *repository.Repository
	ledger       *Ledger
	tracker      *QuestTracker
	attributor   *ReferralAttributor
	milestones   *PurchaseMilestones
	registration *Registration
	reconciler   *Reconciler
}

type fixedCounter struct {
	count int64
	err   error
	calls int
}

func (f *fixedCounter) PaidOrderCount(context.Context, string) (int64, error) {
	f.calls++
	return f.count, f.err
}

func setupEnv(t *testing.T, cache BalanceCache, orders PaidOrderCounter) *testEnv {
	t.Helper()
	// per-test in-memory database to avoid cross-test interference
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	log := logger.Nop()
	repo := repository.NewRepository(log)
	require.NoError(t, repo.InitDB(repository.DriverSQLite, dsn))
	t.Cleanup(func() { repo.Close() })

	ledger := NewLedger(repo, cache, log)
	tracker := NewQuestTracker(repo, ledger, log)
	require.NoError(t, tracker.SeedCatalog(context.Background(), true))
	attributor := NewReferralAttributor(repo, ledger, tracker, log)

	return &testEnv{
		repo:         repo,
		ledger:       ledger,
		tracker:      tracker,
		attributor:   attributor,
		milestones:   NewPurchaseMilestones(repo, ledger, tracker, attributor, orders, log),
		registration: NewRegistration(repo, ledger, tracker, attributor, log),
		reconciler:   NewReconciler(repo, ledger, 0, log),
	}
}

func (e *testEnv) balance(t *testing.T, userID string) *models.AccountBalance {
	t.Helper()
	row, err := e.repo.GetBalance(context.Background(), nil, userID)
	require.NoError(t, err)
	require.NotNil(t, row, "no balance row for %s", userID)
	return row
}

func (e *testEnv) quest(t *testing.T, code models.QuestCode) *models.Quest {
	t.Helper()
	q, err := e.repo.GetQuestByCode(context.Background(), nil, code)
	require.NoError(t, err)
	require.NotNil(t, q)
	return q
}

// requireConsistent checks balance = earned - spent >= 0 and that the log,
// both aggregated and paged through History, reproduces the stored totals
func (e *testEnv) requireConsistent(t *testing.T, userID string) {
	t.Helper()
	row := e.balance(t, userID)
	require.Equal(t, row.TotalEarned-row.TotalSpent, row.Balance)
	require.GreaterOrEqual(t, row.Balance, int64(0))

	earned, spent, err := e.repo.SumTransactions(context.Background(), nil, userID)
	require.NoError(t, err)
	require.Equal(t, row.TotalEarned, earned)
	require.Equal(t, row.TotalSpent, spent)
	require.Equal(t, models.TierFor(row.TotalEarned), row.Tier)

	var pagedEarned, pagedSpent int64
	for offset := 0; ; offset += maxHistoryLimit {
		page, err := e.ledger.History(context.Background(), userID, maxHistoryLimit, offset)
		require.NoError(t, err)
		for _, tx := range page {
			switch tx.Direction {
			case models.DirectionEarned:
				pagedEarned += tx.Amount
			case models.DirectionSpent:
				pagedSpent += tx.Amount
			}
		}
		if len(page) < maxHistoryLimit {
			break
		}
	}
	require.Equal(t, row.TotalEarned, pagedEarned)
	require.Equal(t, row.TotalSpent, pagedSpent)
}
