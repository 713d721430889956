package models

// Tier is a discount level derived from lifetime earned coins
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
)

type tierRule struct {
	tier      Tier
	threshold int64
	discount  int
}

// ordered from lowest to highest
var tierRules = []tierRule{
	{TierBronze, 0, 5},
	{TierSilver, 500, 10},
	{TierGold, 2000, 15},
	{TierPlatinum, 5000, 20},
	{TierDiamond, 10000, 25},
}

// TierFor returns the tier for the given lifetime earned total.
// Earned coins never decrease, so spending never demotes a user.
func TierFor(totalEarned int64) Tier {
	tier := TierBronze
	for _, r := range tierRules {
		if totalEarned >= r.threshold {
			tier = r.tier
		}
	}
	return tier
}

// DiscountPercent returns the purchase discount attached to a tier
func (t Tier) DiscountPercent() int {
	for _, r := range tierRules {
		if r.tier == t {
			return r.discount
		}
	}
	return 0
}

// NextTier returns the tier above the one reached by totalEarned and the
// coins still missing. ok is false at the top tier.
func NextTier(totalEarned int64) (next Tier, missing int64, ok bool) {
	for _, r := range tierRules {
		if totalEarned < r.threshold {
			return r.tier, r.threshold - totalEarned, true
		}
	}
	return "", 0, false
}

// Summarize builds the display form of a balance row. A nil row yields the
// zero state of userID.
func Summarize(userID string, b *AccountBalance) BalanceSummary {
	s := BalanceSummary{UserID: userID, Tier: TierBronze}
	if b != nil {
		s.Balance = b.Balance
		s.TotalEarned = b.TotalEarned
		s.TotalSpent = b.TotalSpent
		s.Tier = TierFor(b.TotalEarned)
		s.ReferralCode = b.ReferralCode
	}
	s.DiscountPercent = s.Tier.DiscountPercent()
	if next, missing, ok := NextTier(s.TotalEarned); ok {
		s.NextTier = next
		s.CoinsToNextTier = missing
	}
	return s
}
