package models

import "fmt"

// QuestCode identifies a quest across event producers. The set is closed:
// producers can only reference codes declared here.
type QuestCode string

const (
	QuestCompleteProfile     QuestCode = "complete_profile"
	QuestFirstPurchase       QuestCode = "first_purchase"
	QuestSecondPurchase      QuestCode = "second_purchase"
	QuestFifthPurchase       QuestCode = "fifth_purchase"
	QuestTenthPurchase       QuestCode = "tenth_purchase"
	QuestBigOrder500         QuestCode = "big_order_500"
	QuestBigOrder1000        QuestCode = "big_order_1000"
	QuestBigOrder2500        QuestCode = "big_order_2500"
	QuestReferFriend         QuestCode = "refer_friend"
	QuestReferFriendPurchase QuestCode = "refer_friend_purchase"
)

// Quest types
const (
	QuestTypeProfile  = "profile"
	QuestTypePurchase = "purchase"
	QuestTypeReferral = "referral"
)

// DefaultQuests is the catalog seeded into an empty store. Administrators
// may change rewards or deactivate quests afterwards.
var DefaultQuests = []Quest{
	{Code: QuestCompleteProfile, Name: "Complete your profile", Description: "Add your name, phone and avatar", RewardAmount: 30, QuestType: QuestTypeProfile, TargetValue: 1, IsActive: true},
	{Code: QuestFirstPurchase, Name: "First purchase", Description: "Complete your first paid order", RewardAmount: 50, QuestType: QuestTypePurchase, TargetValue: 1, IsActive: true},
	{Code: QuestSecondPurchase, Name: "Coming back", Description: "Complete your second paid order", RewardAmount: 30, QuestType: QuestTypePurchase, TargetValue: 1, IsActive: true},
	{Code: QuestFifthPurchase, Name: "Regular customer", Description: "Complete five paid orders", RewardAmount: 75, QuestType: QuestTypePurchase, TargetValue: 1, IsActive: true},
	{Code: QuestTenthPurchase, Name: "Loyal customer", Description: "Complete ten paid orders", RewardAmount: 150, QuestType: QuestTypePurchase, TargetValue: 1, IsActive: true},
	{Code: QuestBigOrder500, Name: "Big basket", Description: "Place an order of 500 or more", RewardAmount: 25, QuestType: QuestTypePurchase, TargetValue: 1, IsActive: true},
	{Code: QuestBigOrder1000, Name: "Bigger basket", Description: "Place an order of 1000 or more", RewardAmount: 50, QuestType: QuestTypePurchase, TargetValue: 1, IsActive: true},
	{Code: QuestBigOrder2500, Name: "Whale", Description: "Place an order of 2500 or more", RewardAmount: 100, QuestType: QuestTypePurchase, TargetValue: 1, IsActive: true},
	{Code: QuestReferFriend, Name: "Bring your friends", Description: "Invite three friends who sign up", RewardAmount: 100, QuestType: QuestTypeReferral, TargetValue: 3, IsActive: true},
	{Code: QuestReferFriendPurchase, Name: "Friends who shop", Description: "A friend you invited completes a purchase", RewardAmount: 100, QuestType: QuestTypeReferral, TargetValue: 1, IsActive: true},
}

var questCodes = func() map[QuestCode]struct{} {
	m := make(map[QuestCode]struct{}, len(DefaultQuests))
	for _, q := range DefaultQuests {
		m[q.Code] = struct{}{}
	}
	return m
}()

// QuestCodes returns every declared quest code
func QuestCodes() []QuestCode {
	codes := make([]QuestCode, 0, len(DefaultQuests))
	for _, q := range DefaultQuests {
		codes = append(codes, q.Code)
	}
	return codes
}

// Valid reports whether c is a declared quest code
func (c QuestCode) Valid() bool {
	_, ok := questCodes[c]
	return ok
}

// ParseQuestCode converts an external string into a declared quest code
func ParseQuestCode(s string) (QuestCode, error) {
	c := QuestCode(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown quest code %q", s)
	}
	return c, nil
}
