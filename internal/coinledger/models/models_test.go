package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		earned       int64
		want         Tier
		wantDiscount int
	}{
		{0, TierBronze, 5},
		{499, TierBronze, 5},
		{500, TierSilver, 10},
		{1999, TierSilver, 10},
		{2000, TierGold, 15},
		{5000, TierPlatinum, 20},
		{9999, TierPlatinum, 20},
		{10000, TierDiamond, 25},
		{1_000_000, TierDiamond, 25},
	}
	for _, tt := range tests {
		got := TierFor(tt.earned)
		require.Equal(t, tt.want, got, "earned %d", tt.earned)
		require.Equal(t, tt.wantDiscount, got.DiscountPercent())
	}
	require.Zero(t, Tier("wood").DiscountPercent())
}

func TestNextTier(t *testing.T) {
	next, missing, ok := NextTier(1200)
	require.True(t, ok)
	require.Equal(t, TierGold, next)
	require.Equal(t, int64(800), missing)

	_, _, ok = NextTier(10000)
	require.False(t, ok)
}

func TestSummarize(t *testing.T) {
	zero := Summarize("u1", nil)
	require.Equal(t, "u1", zero.UserID)
	require.Equal(t, TierBronze, zero.Tier)
	require.Equal(t, 5, zero.DiscountPercent)
	require.Equal(t, int64(500), zero.CoinsToNextTier)

	// the tier is derived from earned coins, not from the stored column
	s := Summarize("u1", &AccountBalance{UserID: "u1", Balance: 100, TotalEarned: 12000, TotalSpent: 11900, Tier: TierBronze, ReferralCode: "ABCD2345"})
	require.Equal(t, TierDiamond, s.Tier)
	require.Empty(t, s.NextTier)
	require.Zero(t, s.CoinsToNextTier)
	require.Equal(t, "ABCD2345", s.ReferralCode)
}

func TestQuestState(t *testing.T) {
	var missing *QuestProgress
	require.Equal(t, QuestNotStarted, missing.State())

	now := time.Now()
	p := &QuestProgress{Progress: 1, Target: 3}
	require.Equal(t, QuestInProgress, p.State())
	p.CompletedAt = &now
	require.Equal(t, QuestCompleted, p.State())
	p.ClaimedAt = &now
	require.Equal(t, QuestRewarded, p.State())
}

func TestParseQuestCode(t *testing.T) {
	code, err := ParseQuestCode("refer_friend")
	require.NoError(t, err)
	require.Equal(t, QuestReferFriend, code)

	_, err = ParseQuestCode("Refer_Friend")
	require.Error(t, err)
	require.Len(t, QuestCodes(), len(DefaultQuests))
	for _, c := range QuestCodes() {
		require.True(t, c.Valid())
	}
}
