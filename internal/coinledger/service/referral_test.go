package service

import (
	"context"
	"strings"
	"testing"

	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/stretchr/testify/require"
)

// Scenario A
func TestRegisterGrantsWelcomeBonusOnce(t *testing.T) {
	env := setupEnv(t, nil, nil)
	ctx := context.Background()

	res, err := env.registration.Register(ctx, "u1", "")
	require.NoError(t, err)
	require.True(t, res.WelcomeBonusGranted)
	require.Empty(t, res.Referral)
	require.Len(t, res.Balance.ReferralCode, 8)
	require.Equal(t, int64(50), res.Balance.Balance)
	require.Equal(t, int64(50), res.Balance.TotalEarned)
	require.Equal(t, models.TierBronze, res.Balance.Tier)

	again, err := env.registration.Register(ctx, "u1", "")
	require.NoError(t, err)
	require.False(t, again.WelcomeBonusGranted)
	require.Equal(t, res.Balance.ReferralCode, again.Balance.ReferralCode)
	require.Equal(t, int64(50), again.Balance.Balance)

	txs, err := env.ledger.History(ctx, "u1", 0, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, models.SourceWelcomeBonus, txs[0].Source)
}

// Scenario B
func TestRegisterWithReferralCode(t *testing.T) {
	env := setupEnv(t, nil, nil)
	ctx := context.Background()

	u1, err := env.registration.Register(ctx, "u1", "")
	require.NoError(t, err)

	// codes are accepted regardless of case and surrounding spaces
	res, err := env.registration.Register(ctx, "u2", " "+strings.ToLower(u1.Balance.ReferralCode)+" ")
	require.NoError(t, err)
	require.Equal(t, AttributionRegistered, res.Referral)

	ref, err := env.repo.GetReferralByReferred(ctx, nil, "u2")
	require.NoError(t, err)
	require.Equal(t, "u1", ref.ReferrerID)
	require.Equal(t, models.ReferralRegistered, ref.Status)

	require.Equal(t, int64(100), env.balance(t, "u1").Balance)

	quest := env.quest(t, models.QuestReferFriend)
	p, err := env.repo.GetProgress(ctx, nil, "u1", quest.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), p.Progress)
	require.Equal(t, models.QuestInProgress, p.State())

	// presenting the code again after signup changes nothing
	again, err := env.registration.Register(ctx, "u2", u1.Balance.ReferralCode)
	require.NoError(t, err)
	require.Equal(t, AttributionAlreadyReferred, again.Referral)
	require.Equal(t, int64(100), env.balance(t, "u1").Balance)
	env.requireConsistent(t, "u1")
	env.requireConsistent(t, "u2")
}

func TestAttributeRejections(t *testing.T) {
	env := setupEnv(t, nil, nil)
	ctx := context.Background()

	u1, err := env.registration.Register(ctx, "u1", "")
	require.NoError(t, err)
	u3, err := env.registration.Register(ctx, "u3", "")
	require.NoError(t, err)

	tests := []struct {
		name string
		code string
		user string
		want AttributionResult
	}{
		{name: "malformed", code: "nope", user: "u2", want: AttributionInvalidCode},
		{name: "unknown", code: "ZZZZZZZZ", user: "u2", want: AttributionInvalidCode},
		{name: "self", code: u1.Balance.ReferralCode, user: "u1", want: AttributionInvalidCode},
		{name: "first", code: u1.Balance.ReferralCode, user: "u2", want: AttributionRegistered},
		{name: "second referrer", code: u3.Balance.ReferralCode, user: "u2", want: AttributionAlreadyReferred},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.attributor.Attribute(ctx, tt.code, tt.user)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	require.ErrorIs(t, AttributionInvalidCode.Err(), ErrInvalidReferralCode)
	require.ErrorIs(t, AttributionAlreadyReferred.Err(), ErrAlreadyReferred)
	require.NoError(t, AttributionRegistered.Err())

	self, err := env.repo.GetReferralByReferred(ctx, nil, "u1")
	require.NoError(t, err)
	require.Nil(t, self)
	require.Equal(t, int64(50), env.balance(t, "u3").Balance)
	require.Equal(t, int64(100), env.balance(t, "u1").Balance)
}

func TestOnFirstPurchaseIsGuarded(t *testing.T) {
	env := setupEnv(t, nil, nil)
	ctx := context.Background()

	u1, err := env.registration.Register(ctx, "u1", "")
	require.NoError(t, err)
	_, err = env.registration.Register(ctx, "u2", u1.Balance.ReferralCode)
	require.NoError(t, err)

	// not referred: no-op
	require.NoError(t, env.attributor.OnFirstPurchase(ctx, "u1", "o0", 10))

	require.NoError(t, env.attributor.OnFirstPurchase(ctx, "u2", "o1", 10))
	require.NoError(t, env.attributor.OnFirstPurchase(ctx, "u2", "o1", 10))

	ref, err := env.repo.GetReferralByReferred(ctx, nil, "u2")
	require.NoError(t, err)
	require.Equal(t, models.ReferralFirstPurchase, ref.Status)

	purchaseQuest := env.quest(t, models.QuestReferFriendPurchase)
	// 50 welcome + 50 signup + 100 first purchase + quest reward
	require.Equal(t, 200+purchaseQuest.RewardAmount, env.balance(t, "u1").Balance)

	stats, err := env.attributor.Stats(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, u1.Balance.ReferralCode, stats.ReferralCode)
	require.Equal(t, int64(1), stats.TotalReferrals)
	require.Equal(t, int64(1), stats.FirstPurchase)
	require.Zero(t, stats.Registered)
	require.Equal(t, int64(150), stats.CoinsEarned)
}

func TestProfileCompleted(t *testing.T) {
	env := setupEnv(t, nil, nil)
	ctx := context.Background()

	res, err := env.registration.OnProfileCompleted(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, AdvanceCompleted, res)

	res, err = env.registration.OnProfileCompleted(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, AdvanceCompleted, res)

	quest := env.quest(t, models.QuestCompleteProfile)
	require.Equal(t, quest.RewardAmount, env.balance(t, "u1").Balance)
}
