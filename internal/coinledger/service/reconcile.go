package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/25x8/coinledger/internal/coinledger/repository"
)

// Drift is a disagreement between a balance row and its transaction log
type Drift struct {
	UserID        string      `json:"user_id"`
	StoredEarned  int64       `json:"stored_earned"`
	StoredSpent   int64       `json:"stored_spent"`
	StoredBalance int64       `json:"stored_balance"`
	StoredTier    models.Tier `json:"stored_tier"`
	LogEarned     int64       `json:"log_earned"`
	LogSpent      int64       `json:"log_spent"`
	Tier          models.Tier `json:"tier"`
}

// Reconciler rebuilds balance rows from the transaction log, which is the
// source of truth
type Reconciler struct {
	repo     *repository.Repository
	ledger   *Ledger
	log      *logger.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReconciler creates a reconciler. A zero interval disables the
// periodic loop; Reconcile and ReconcileAll still work on demand.
func NewReconciler(repo *repository.Repository, ledger *Ledger, interval time.Duration, log *logger.Logger) *Reconciler {
	return &Reconciler{
		repo:     repo,
		ledger:   ledger,
		log:      log.With("service", "Reconciler"),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Reconcile checks one user and repairs the row if it drifted. The
// returned drift is nil when row and log agree.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (*Drift, error) {
	var drift *Drift
	err := r.ledger.run(ctx, func(s *txScope) error {
		drift = nil
		row, err := r.repo.GetBalanceForUpdate(ctx, s.db, userID)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("reconcile %s: %w", userID, ErrNotFound)
		}
		earned, spent, err := r.repo.SumTransactions(ctx, s.db, userID)
		if err != nil {
			return err
		}
		tier := models.TierFor(earned)
		if row.TotalEarned == earned && row.TotalSpent == spent && row.Balance == earned-spent && row.Tier == tier {
			return nil
		}
		drift = &Drift{
			UserID:        userID,
			StoredEarned:  row.TotalEarned,
			StoredSpent:   row.TotalSpent,
			StoredBalance: row.Balance,
			StoredTier:    row.Tier,
			LogEarned:     earned,
			LogSpent:      spent,
			Tier:          tier,
		}
		if err := r.repo.OverwriteTotals(ctx, s.db, userID, earned, spent, tier); err != nil {
			return err
		}
		s.touch(userID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if drift != nil {
		r.log.Warn("balance drift repaired", "user_id", userID,
			"stored_balance", drift.StoredBalance, "log_balance", drift.LogEarned-drift.LogSpent)
	}
	return drift, nil
}

// ReconcileAll reconciles every balance row and returns the drifts found
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]Drift, error) {
	ids, err := r.repo.ListBalanceUserIDs(ctx, nil)
	if err != nil {
		return nil, err
	}
	drifts := make([]Drift, 0)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return drifts, err
		}
		d, err := r.Reconcile(ctx, id)
		if err != nil {
			return drifts, err
		}
		if d != nil {
			drifts = append(drifts, *d)
		}
	}
	r.log.Info("reconciliation finished", "users", len(ids), "drifted", len(drifts))
	return drifts, nil
}

// Start starts the periodic reconciliation loop
func (r *Reconciler) Start() {
	if r.interval <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop()
	}()
}

// Stop stops the loop and waits for a running pass to finish
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Reconciler) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			if _, err := r.ReconcileAll(ctx); err != nil {
				r.log.Error("reconciliation failed", "error", err)
			}
			cancel()
		case <-r.stopCh:
			return
		}
	}
}
