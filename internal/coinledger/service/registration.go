package service

import (
	"context"

	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/25x8/coinledger/internal/coinledger/repository"
)

const WelcomeBonus int64 = 50

// RegistrationResult describes the outcome of Register
type RegistrationResult struct {
	Balance             *models.AccountBalance `json:"balance"`
	WelcomeBonusGranted bool                   `json:"welcome_bonus_granted"`
	// empty when no referral code was presented
	Referral AttributionResult `json:"referral,omitempty"`
}

// Registration is the signup flow: balance row, welcome bonus and
// referral attribution
type Registration struct {
	repo       *repository.Repository
	ledger     *Ledger
	tracker    *QuestTracker
	attributor *ReferralAttributor
	log        *logger.Logger
}

func NewRegistration(repo *repository.Repository, ledger *Ledger, tracker *QuestTracker, attributor *ReferralAttributor, log *logger.Logger) *Registration {
	return &Registration{
		repo:       repo,
		ledger:     ledger,
		tracker:    tracker,
		attributor: attributor,
		log:        log.With("service", "Registration"),
	}
}

// Register initializes userID and grants the welcome bonus once. A
// referral code, if given, is attributed in the same transaction. Calling
// Register again is safe and grants nothing new.
func (r *Registration) Register(ctx context.Context, userID, referralCode string) (*RegistrationResult, error) {
	var res *RegistrationResult
	err := r.ledger.run(ctx, func(s *txScope) error {
		res = &RegistrationResult{}
		if _, err := r.ledger.initialize(ctx, s, userID); err != nil {
			return err
		}
		claimed, err := r.repo.InsertClaim(ctx, s.db, userID, models.SourceWelcomeBonus)
		if err != nil {
			return err
		}
		if claimed {
			if _, err := r.ledger.credit(ctx, s, userID, WelcomeBonus, models.SourceWelcomeBonus, "Welcome bonus", ""); err != nil {
				return err
			}
			res.WelcomeBonusGranted = true
		}
		if referralCode != "" {
			if res.Referral, err = r.attributor.attribute(ctx, s, referralCode, userID); err != nil {
				return err
			}
		}
		res.Balance, err = r.repo.GetBalance(ctx, s.db, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("user registered", "user_id", userID, "welcome_bonus", res.WelcomeBonusGranted, "referral", res.Referral)
	return res, nil
}

// OnProfileCompleted advances the complete_profile quest of userID
func (r *Registration) OnProfileCompleted(ctx context.Context, userID string) (AdvanceResult, error) {
	var res AdvanceResult
	err := r.ledger.run(ctx, func(s *txScope) error {
		if _, err := r.ledger.initialize(ctx, s, userID); err != nil {
			return err
		}
		var err error
		res, err = r.tracker.advance(ctx, s, userID, models.QuestCompleteProfile, 1)
		return err
	})
	return res, err
}
