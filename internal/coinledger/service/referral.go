package service

import (
	"context"
	"fmt"

	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/25x8/coinledger/internal/coinledger/repository"
	"github.com/25x8/coinledger/internal/coinledger/utils"
)

const (
	ReferralRegistrationReward  int64 = 50
	ReferralFirstPurchaseReward int64 = 100
)

// AttributionResult is the outcome of ReferralAttributor.Attribute. The
// rejections are expected outcomes, not failures.
type AttributionResult string

const (
	AttributionRegistered      AttributionResult = "registered"
	AttributionInvalidCode     AttributionResult = "invalid_code"
	AttributionAlreadyReferred AttributionResult = "already_referred"
)

// Err returns the sentinel matching a rejection, nil for a registration
func (r AttributionResult) Err() error {
	switch r {
	case AttributionInvalidCode:
		return ErrInvalidReferralCode
	case AttributionAlreadyReferred:
		return ErrAlreadyReferred
	}
	return nil
}

// ReferralAttributor links referred users to their referrer and rewards
// the referrer on signup and on the referred user's first purchase
type ReferralAttributor struct {
	repo    *repository.Repository
	ledger  *Ledger
	tracker *QuestTracker
	log     *logger.Logger
}

func NewReferralAttributor(repo *repository.Repository, ledger *Ledger, tracker *QuestTracker, log *logger.Logger) *ReferralAttributor {
	return &ReferralAttributor{
		repo:    repo,
		ledger:  ledger,
		tracker: tracker,
		log:     log.With("service", "ReferralAttributor"),
	}
}

// Attribute records that referredID signed up with code
func (a *ReferralAttributor) Attribute(ctx context.Context, code, referredID string) (AttributionResult, error) {
	var res AttributionResult
	err := a.ledger.run(ctx, func(s *txScope) error {
		var err error
		res, err = a.attribute(ctx, s, code, referredID)
		return err
	})
	return res, err
}

func (a *ReferralAttributor) attribute(ctx context.Context, s *txScope, code, referredID string) (AttributionResult, error) {
	if referredID == "" {
		return "", fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	code = utils.NormalizeReferralCode(code)
	if !utils.ValidReferralCode(code) {
		return AttributionInvalidCode, nil
	}

	referrer, err := a.repo.GetBalanceByReferralCode(ctx, s.db, code)
	if err != nil {
		return "", err
	}
	if referrer == nil {
		return AttributionInvalidCode, nil
	}
	if referrer.UserID == referredID {
		a.log.Warn("referral rejected", "user_id", referredID, "error", ErrSelfReferral)
		return AttributionInvalidCode, nil
	}

	existing, err := a.repo.GetReferralByReferred(ctx, s.db, referredID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return AttributionAlreadyReferred, nil
	}
	return a.link(ctx, s, referrer, referredID, code)
}

// link stores the referral and pays the signup reward. The referral insert
// and the reward claim decide; callers working from a stale read can reach
// it concurrently.
func (a *ReferralAttributor) link(ctx context.Context, s *txScope, referrer *models.AccountBalance, referredID, code string) (AttributionResult, error) {
	created, err := a.repo.CreateReferral(ctx, s.db, &models.Referral{
		ReferrerID:   referrer.UserID,
		ReferredID:   referredID,
		ReferralCode: code,
		Status:       models.ReferralRegistered,
	})
	if err != nil {
		return "", err
	}
	if !created {
		return AttributionAlreadyReferred, nil
	}

	claimed, err := a.repo.InsertClaim(ctx, s.db, referrer.UserID, "referral_registered:"+referredID)
	if err != nil {
		return "", err
	}
	if claimed {
		if _, err := a.ledger.credit(ctx, s, referrer.UserID, ReferralRegistrationReward, models.SourceReferral, "Friend signed up", referredID); err != nil {
			return "", err
		}
		if _, err := a.tracker.advance(ctx, s, referrer.UserID, models.QuestReferFriend, 1); err != nil {
			return "", err
		}
	}
	a.log.Info("referral registered", "referrer_id", referrer.UserID, "referred_id", referredID)
	return AttributionRegistered, nil
}

// OnFirstPurchase rewards the referrer of userID for the user's first paid
// order. It does nothing if the user was not referred or the referral has
// already moved past registered.
func (a *ReferralAttributor) OnFirstPurchase(ctx context.Context, userID, orderID string, orderTotal float64) error {
	return a.ledger.run(ctx, func(s *txScope) error {
		return a.onFirstPurchase(ctx, s, userID, orderID, orderTotal)
	})
}

func (a *ReferralAttributor) onFirstPurchase(ctx context.Context, s *txScope, userID, orderID string, orderTotal float64) error {
	ref, err := a.repo.GetReferralByReferred(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if ref == nil || ref.Status != models.ReferralRegistered {
		return nil
	}
	return a.rewardFirstPurchase(ctx, s, ref, orderID, orderTotal)
}

// rewardFirstPurchase moves ref to first_purchase and pays its referrer.
// The status compare-and-set and the reward claim decide, so ref may be a
// stale snapshot.
func (a *ReferralAttributor) rewardFirstPurchase(ctx context.Context, s *txScope, ref *models.Referral, orderID string, orderTotal float64) error {
	userID := ref.ReferredID
	moved, err := a.repo.AdvanceReferralStatus(ctx, s.db, userID, models.ReferralRegistered, models.ReferralFirstPurchase)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	claimed, err := a.repo.InsertClaim(ctx, s.db, ref.ReferrerID, "referral_first_purchase:"+userID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if _, err := a.ledger.credit(ctx, s, ref.ReferrerID, ReferralFirstPurchaseReward, models.SourceReferral, "Friend made a first purchase", orderID); err != nil {
		return err
	}
	if _, err := a.tracker.advance(ctx, s, ref.ReferrerID, models.QuestReferFriendPurchase, 1); err != nil {
		return err
	}
	a.log.Info("referral first purchase rewarded", "referrer_id", ref.ReferrerID, "referred_id", userID, "order_id", orderID, "order_total", orderTotal)
	return nil
}

// Stats summarises the referrals made with the user's code
func (a *ReferralAttributor) Stats(ctx context.Context, referrerID string) (models.ReferralStats, error) {
	var stats models.ReferralStats
	row, err := a.repo.GetBalance(ctx, nil, referrerID)
	if err != nil {
		return stats, err
	}
	if row != nil {
		stats.ReferralCode = row.ReferralCode
	}
	counts, err := a.repo.CountReferralsByStatus(ctx, nil, referrerID)
	if err != nil {
		return stats, err
	}
	for status, n := range counts {
		stats.TotalReferrals += n
		switch status {
		case models.ReferralRegistered:
			stats.Registered += n
		case models.ReferralFirstPurchase, models.ReferralRewarded:
			stats.FirstPurchase += n
		}
	}
	stats.CoinsEarned, err = a.repo.SumEarnedBySource(ctx, nil, referrerID, models.SourceReferral)
	return stats, err
}
