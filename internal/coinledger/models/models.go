package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountBalance represents a user's coin balance. One row per user.
type AccountBalance struct {
	UserID       string    `json:"user_id" gorm:"primaryKey;type:varchar(128)"`
	Balance      int64     `json:"balance" gorm:"not null"`
	TotalEarned  int64     `json:"total_earned" gorm:"not null"`
	TotalSpent   int64     `json:"total_spent" gorm:"not null"`
	Tier         Tier      `json:"tier" gorm:"type:varchar(16);not null"`
	ReferralCode string    `json:"referral_code" gorm:"type:varchar(8);uniqueIndex;not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Transaction is an immutable entry of the coin transaction log
type Transaction struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      string    `json:"user_id" gorm:"type:varchar(128);index;not null"`
	Amount      int64     `json:"amount" gorm:"not null"`
	Direction   Direction `json:"direction" gorm:"type:varchar(8);not null"`
	Source      string    `json:"source" gorm:"type:varchar(64);not null"`
	Description string    `json:"description,omitempty"`
	ReferenceID string    `json:"reference_id,omitempty" gorm:"type:varchar(128);index"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

func (Transaction) TableName() string {
	return "coin_transactions"
}

// Quest is an administrator-managed quest definition
type Quest struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Code           QuestCode `json:"code" gorm:"type:varchar(64);uniqueIndex;not null"`
	Name           string    `json:"name" gorm:"not null"`
	Description    string    `json:"description"`
	RewardAmount   int64     `json:"reward_amount" gorm:"not null"`
	QuestType      string    `json:"quest_type" gorm:"type:varchar(32);not null"`
	IsActive       bool      `json:"is_active" gorm:"not null"`
	TargetValue    int64     `json:"target_value" gorm:"not null"`
	MaxCompletions *int      `json:"max_completions,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// QuestProgress tracks one user's progress on one quest
type QuestProgress struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      string     `json:"user_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_quest_progress_user_quest,priority:1"`
	QuestID     uuid.UUID  `json:"quest_id" gorm:"type:uuid;not null;uniqueIndex:idx_quest_progress_user_quest,priority:2"`
	Progress    int64      `json:"progress" gorm:"not null"`
	Target      int64      `json:"target" gorm:"not null"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (QuestProgress) TableName() string {
	return "quest_progress"
}

// State derives the progress state from the timestamps
func (p *QuestProgress) State() QuestState {
	switch {
	case p == nil:
		return QuestNotStarted
	case p.ClaimedAt != nil:
		return QuestRewarded
	case p.CompletedAt != nil:
		return QuestCompleted
	default:
		return QuestInProgress
	}
}

// QuestProgressView is a progress row joined with its quest, for display
type QuestProgressView struct {
	Quest    Quest          `json:"quest"`
	Progress *QuestProgress `json:"progress,omitempty"`
	State    QuestState     `json:"state"`
}

// Referral is the single referral edge of a referred user
type Referral struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	ReferrerID   string         `json:"referrer_id" gorm:"type:varchar(128);index;not null"`
	ReferredID   string         `json:"referred_id" gorm:"type:varchar(128);uniqueIndex;not null"`
	ReferralCode string         `json:"referral_code" gorm:"type:varchar(8);not null"`
	Status       ReferralStatus `json:"status" gorm:"type:varchar(16);not null"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// RewardClaim marks a reward as issued. The (user, key) pair is unique.
type RewardClaim struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_reward_claims_user_key,priority:1"`
	RewardKey string    `gorm:"type:varchar(160);not null;uniqueIndex:idx_reward_claims_user_key,priority:2"`
	CreatedAt time.Time
}

// ReferralStats summarises a referrer's referrals
type ReferralStats struct {
	ReferralCode   string `json:"referral_code"`
	TotalReferrals int64  `json:"total_referrals"`
	Registered     int64  `json:"registered"`
	FirstPurchase  int64  `json:"first_purchase"`
	CoinsEarned    int64  `json:"coins_earned"`
}

// BalanceSummary is the display form of a balance, including tier details
type BalanceSummary struct {
	UserID          string `json:"user_id"`
	Balance         int64  `json:"balance"`
	TotalEarned     int64  `json:"total_earned"`
	TotalSpent      int64  `json:"total_spent"`
	Tier            Tier   `json:"tier"`
	DiscountPercent int    `json:"discount_percent"`
	NextTier        Tier   `json:"next_tier,omitempty"`
	CoinsToNextTier int64  `json:"coins_to_next_tier,omitempty"`
	ReferralCode    string `json:"referral_code,omitempty"`
}

// PurchaseEvent is the payment-confirmation signal of the order collaborator
type PurchaseEvent struct {
	OrderID        string  `json:"order_id"`
	UserID         string  `json:"user_id"`
	OrderTotal     float64 `json:"order_total"`
	PaidOrderCount int64   `json:"paid_order_count,omitempty"`
}

// Direction of a transaction
type Direction string

const (
	DirectionEarned Direction = "earned"
	DirectionSpent  Direction = "spent"
)

// Transaction sources
const (
	SourceWelcomeBonus = "welcome_bonus"
	SourcePurchase     = "purchase"
	SourceReferral     = "referral"
	SourceQuest        = "quest"
	SourceRedemption   = "redemption"
	SourceAdjustment   = "admin_adjustment"
)

// ReferralStatus of a referral edge. It only moves forward.
type ReferralStatus string

const (
	ReferralRegistered    ReferralStatus = "registered"
	ReferralFirstPurchase ReferralStatus = "first_purchase"
	ReferralRewarded      ReferralStatus = "rewarded"
)

// QuestState of a (user, quest) pair
type QuestState string

const (
	QuestNotStarted QuestState = "not_started"
	QuestInProgress QuestState = "in_progress"
	QuestCompleted  QuestState = "completed"
	QuestRewarded   QuestState = "rewarded"
)
