package service

import (
	"context"
	"testing"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/stretchr/testify/require"
)

func TestReconcileRepairsTamperedRow(t *testing.T) {
	env := setupEnv(t, nil, nil)
	ctx := context.Background()

	_, err := env.registration.Register(ctx, "u1", "")
	require.NoError(t, err)
	_, err = env.registration.Register(ctx, "u2", "")
	require.NoError(t, err)

	drift, err := env.reconciler.Reconcile(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, drift)

	require.NoError(t, env.repo.DB().Model(&models.AccountBalance{}).
		Where("user_id = ?", "u1").
		Updates(map[string]interface{}{"balance": 999, "total_earned": 5000, "tier": models.TierPlatinum}).Error)

	drifts, err := env.reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, "u1", drifts[0].UserID)
	require.Equal(t, int64(999), drifts[0].StoredBalance)
	require.Equal(t, int64(50), drifts[0].LogEarned)
	require.Equal(t, models.TierBronze, drifts[0].Tier)

	row := env.balance(t, "u1")
	require.Equal(t, int64(50), row.Balance)
	require.Equal(t, models.TierBronze, row.Tier)
	env.requireConsistent(t, "u1")

	_, err = env.reconciler.Reconcile(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReconcilerLoop(t *testing.T) {
	env := setupEnv(t, nil, nil)
	ctx := context.Background()
	_, err := env.registration.Register(ctx, "u1", "")
	require.NoError(t, err)
	require.NoError(t, env.repo.DB().Model(&models.AccountBalance{}).
		Where("user_id = ?", "u1").Update("balance", 7).Error)

	r := NewReconciler(env.repo, env.ledger, 20*time.Millisecond, logger.Nop())
	r.Start()
	require.Eventually(t, func() bool {
		row, err := env.repo.GetBalance(ctx, nil, "u1")
		return err == nil && row.Balance == 50
	}, 2*time.Second, 20*time.Millisecond)
	r.Stop()
	r.Stop()

	// disabled loop: Start and Stop are no-ops
	idle := NewReconciler(env.repo, env.ledger, 0, logger.Nop())
	idle.Start()
	idle.Stop()
}
