package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/25x8/coinledger/internal/coinledger/repository"
	"github.com/25x8/coinledger/internal/coinledger/utils"
	"github.com/cenkalti/backoff/v5"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	maxCodeAttempts     = 10
	invalidateAttempts  = 3
)

// Ledger owns every balance row and the transaction log. All coin
// movements of the other services go through it.
type Ledger struct {
	repo  *repository.Repository
	cache BalanceCache
	log   *logger.Logger
	// random source of referral codes, crypto/rand when nil
	codeSource io.Reader
}

// NewLedger creates a ledger. cache may be nil.
func NewLedger(repo *repository.Repository, cache BalanceCache, log *logger.Logger) *Ledger {
	return &Ledger{
		repo:  repo,
		cache: cache,
		log:   log.With("service", "Ledger"),
	}
}

// run executes fn in a storage transaction and drops the cached rows of
// every user it touched once the transaction has committed
func (l *Ledger) run(ctx context.Context, fn func(s *txScope) error) error {
	var touched []string
	err := l.repo.Transaction(ctx, func(tx *gorm.DB) error {
		s := &txScope{db: tx}
		if err := fn(s); err != nil {
			return err
		}
		touched = s.touched
		return nil
	})
	if err != nil {
		return err
	}
	l.invalidate(ctx, touched...)
	return nil
}

// invalidate drops cached rows after a commit, retrying a failed call a
// few times before giving up
func (l *Ledger) invalidate(ctx context.Context, userIDs ...string) {
	if l.cache == nil || len(userIDs) == 0 {
		return
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, l.cache.Invalidate(ctx, userIDs...)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(invalidateAttempts))
	if err != nil {
		l.log.Error("balance cache invalidate failed", "users", userIDs, "error", err)
	}
}

// Initialize creates the balance row of userID with a fresh referral code.
// It is idempotent: an existing row is returned unchanged.
func (l *Ledger) Initialize(ctx context.Context, userID string) (*models.AccountBalance, error) {
	var row *models.AccountBalance
	err := l.run(ctx, func(s *txScope) error {
		var err error
		row, err = l.initialize(ctx, s, userID)
		return err
	})
	return row, err
}

func (l *Ledger) initialize(ctx context.Context, s *txScope, userID string) (*models.AccountBalance, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	existing, err := l.repo.GetBalance(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := utils.GenerateReferralCode(l.codeSource)
		if err != nil {
			return nil, fmt.Errorf("generate referral code: %w", err)
		}
		taken, err := l.repo.ReferralCodeExists(ctx, s.db, code)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}

		row := &models.AccountBalance{UserID: userID, Tier: models.TierBronze, ReferralCode: code}
		created, err := l.repo.CreateBalance(ctx, s.db, row)
		if err != nil {
			return nil, err
		}
		if created {
			s.touch(userID)
			l.log.Info("balance initialized", "user_id", userID)
			return row, nil
		}
		// lost a race: either the user row appeared or the code was taken
		existing, err := l.repo.GetBalance(ctx, s.db, userID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	l.log.Error("referral code generation exhausted", "user_id", userID, "attempts", maxCodeAttempts)
	return nil, ErrCodeGenerationExhausted
}

// Credit adds amount coins to userID and appends an earned transaction.
// A user without a balance row gets one on the first credit.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, source, description, referenceID string) (*models.Transaction, error) {
	var t *models.Transaction
	err := l.run(ctx, func(s *txScope) error {
		var err error
		t, err = l.credit(ctx, s, userID, amount, source, description, referenceID)
		return err
	})
	return t, err
}

func (l *Ledger) credit(ctx context.Context, s *txScope, userID string, amount int64, source, description, referenceID string) (*models.Transaction, error) {
	if err := validateMovement(userID, amount, source); err != nil {
		return nil, err
	}
	ok, err := l.repo.AddEarned(ctx, s.db, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("credit %s: %w", userID, err)
	}
	if !ok {
		// first reward of a user nobody initialized: create the row
		// without a welcome bonus and apply the credit to it
		if _, err := l.initialize(ctx, s, userID); err != nil {
			return nil, fmt.Errorf("credit %s: %w", userID, err)
		}
		if ok, err = l.repo.AddEarned(ctx, s.db, userID, amount); err != nil {
			return nil, fmt.Errorf("credit %s: %w", userID, err)
		}
		if !ok {
			return nil, fmt.Errorf("credit %s: %w", userID, ErrNotFound)
		}
	}
	t := &models.Transaction{
		UserID:      userID,
		Amount:      amount,
		Direction:   models.DirectionEarned,
		Source:      source,
		Description: description,
		ReferenceID: referenceID,
	}
	if err := l.repo.CreateTransaction(ctx, s.db, t); err != nil {
		return nil, err
	}
	if err := l.refreshTier(ctx, s, userID); err != nil {
		return nil, err
	}
	s.touch(userID)
	l.log.Debug("credited", "user_id", userID, "amount", amount, "source", source, "reference_id", referenceID)
	return t, nil
}

// Debit takes amount coins from userID. The balance never goes negative:
// a debit larger than the balance fails with ErrInsufficientBalance and
// changes nothing.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, source, description, referenceID string) (*models.Transaction, error) {
	var t *models.Transaction
	err := l.run(ctx, func(s *txScope) error {
		var err error
		t, err = l.debit(ctx, s, userID, amount, source, description, referenceID)
		return err
	})
	return t, err
}

func (l *Ledger) debit(ctx context.Context, s *txScope, userID string, amount int64, source, description, referenceID string) (*models.Transaction, error) {
	if err := validateMovement(userID, amount, source); err != nil {
		return nil, err
	}
	ok, err := l.repo.AddSpent(ctx, s.db, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("debit %s: %w", userID, err)
	}
	if !ok {
		row, err := l.repo.GetBalance(ctx, s.db, userID)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, fmt.Errorf("debit %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("debit %d from %d: %w", amount, row.Balance, ErrInsufficientBalance)
	}
	t := &models.Transaction{
		UserID:      userID,
		Amount:      amount,
		Direction:   models.DirectionSpent,
		Source:      source,
		Description: description,
		ReferenceID: referenceID,
	}
	if err := l.repo.CreateTransaction(ctx, s.db, t); err != nil {
		return nil, err
	}
	if err := l.refreshTier(ctx, s, userID); err != nil {
		return nil, err
	}
	s.touch(userID)
	return t, nil
}

// refreshTier stores the tier derived from the row's current totals. The
// row is already locked by the preceding update.
func (l *Ledger) refreshTier(ctx context.Context, s *txScope, userID string) error {
	row, err := l.repo.GetBalance(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrNotFound
	}
	tier := models.TierFor(row.TotalEarned)
	if tier == row.Tier {
		return nil
	}
	if err := l.repo.SetTier(ctx, s.db, userID, tier); err != nil {
		return err
	}
	l.log.Info("tier changed", "user_id", userID, "from", row.Tier, "to", tier)
	return nil
}

func validateMovement(userID string, amount int64, source string) error {
	switch {
	case userID == "":
		return fmt.Errorf("%w: empty user id", ErrInvalidInput)
	case amount <= 0:
		return fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidInput, amount)
	case source == "":
		return fmt.Errorf("%w: empty source", ErrInvalidInput)
	}
	return nil
}

// Balance returns the balance row of userID or ErrNotFound. Reads may be
// served from the cache; a fill that races a committed write is dropped.
func (l *Ledger) Balance(ctx context.Context, userID string) (*models.AccountBalance, error) {
	var (
		gen    int64
		cached = l.cache != nil
	)
	if cached {
		row, g, err := l.cache.Get(ctx, userID)
		switch {
		case err != nil:
			l.log.Warn("balance cache read failed", "user_id", userID, "error", err)
			cached = false
		case row != nil:
			return row, nil
		default:
			gen = g
		}
	}

	row, err := l.repo.GetBalance(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("balance of %s: %w", userID, ErrNotFound)
	}
	if cached {
		stored, err := l.cache.Set(ctx, row, gen)
		if err != nil {
			l.log.Warn("balance cache write failed", "user_id", userID, "error", err)
		} else if !stored {
			l.log.Debug("balance cache fill skipped after invalidation", "user_id", userID)
		}
	}
	return row, nil
}

// Summary is Balance in display form. A user without a row gets the zero
// state instead of an error.
func (l *Ledger) Summary(ctx context.Context, userID string) (models.BalanceSummary, error) {
	row, err := l.Balance(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.Summarize(userID, nil), nil
		}
		return models.BalanceSummary{}, err
	}
	return models.Summarize(userID, row), nil
}

// History returns a page of the user's transactions, most recent first.
// limit falls back to 20 and is capped at 100.
func (l *Ledger) History(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrInvalidInput)
	}
	return l.repo.ListTransactions(ctx, nil, userID, limit, offset)
}
