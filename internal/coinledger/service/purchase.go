package service

import (
	"context"
	"fmt"

	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/25x8/coinledger/internal/coinledger/repository"
)

type milestone struct {
	reward int64
	quest  models.QuestCode
	label  string
}

// fixed bonuses for the Nth paid order
var countMilestones = map[int64]milestone{
	1:  {100, models.QuestFirstPurchase, "First purchase bonus"},
	2:  {50, models.QuestSecondPurchase, "Second purchase bonus"},
	5:  {150, models.QuestFifthPurchase, "Fifth purchase bonus"},
	10: {300, models.QuestTenthPurchase, "Tenth purchase bonus"},
}

// valueMilestone returns the bonus of the highest order-total threshold
// reached. Lower thresholds never stack on top of it.
func valueMilestone(total float64) (milestone, bool) {
	if total >= 2500 {
		return milestone{200, models.QuestBigOrder2500, "Order over 2500 bonus"}, true
	} else if total >= 1000 {
		return milestone{100, models.QuestBigOrder1000, "Order over 1000 bonus"}, true
	} else if total >= 500 {
		return milestone{50, models.QuestBigOrder500, "Order over 500 bonus"}, true
	}
	return milestone{}, false
}

// PurchaseOutcome describes what a purchase event produced
type PurchaseOutcome struct {
	Duplicate      bool                 `json:"duplicate"`
	PaidOrderCount int64                `json:"paid_order_count"`
	Credits        []models.Transaction `json:"credits"`
}

// PurchaseMilestones turns payment confirmations into milestone rewards
type PurchaseMilestones struct {
	repo       *repository.Repository
	ledger     *Ledger
	tracker    *QuestTracker
	attributor *ReferralAttributor
	orders     PaidOrderCounter
	log        *logger.Logger
}

// NewPurchaseMilestones creates the purchase policy. orders may be nil when
// every event carries its paid-order count.
func NewPurchaseMilestones(repo *repository.Repository, ledger *Ledger, tracker *QuestTracker, attributor *ReferralAttributor, orders PaidOrderCounter, log *logger.Logger) *PurchaseMilestones {
	return &PurchaseMilestones{
		repo:       repo,
		ledger:     ledger,
		tracker:    tracker,
		attributor: attributor,
		orders:     orders,
		log:        log.With("service", "PurchaseMilestones"),
	}
}

// OnPurchaseCompleted applies the count and value milestones of one paid
// order. A redelivered event for the same order is reported as a duplicate
// and changes nothing.
func (m *PurchaseMilestones) OnPurchaseCompleted(ctx context.Context, ev models.PurchaseEvent) (*PurchaseOutcome, error) {
	switch {
	case ev.OrderID == "":
		return nil, fmt.Errorf("%w: empty order id", ErrInvalidInput)
	case ev.UserID == "":
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidInput)
	case ev.OrderTotal < 0:
		return nil, fmt.Errorf("%w: negative order total", ErrInvalidInput)
	case ev.PaidOrderCount < 0:
		return nil, fmt.Errorf("%w: negative paid order count", ErrInvalidInput)
	}

	// the count is fetched before the transaction opens so no network call
	// runs while rows are locked
	count := ev.PaidOrderCount
	if count == 0 {
		if m.orders == nil {
			return nil, fmt.Errorf("%w: paid order count missing and no order system configured", ErrInvalidInput)
		}
		var err error
		count, err = m.orders.PaidOrderCount(ctx, ev.UserID)
		if err != nil {
			return nil, fmt.Errorf("paid order count of %s: %w", ev.UserID, err)
		}
		if count == 0 {
			// the order system has not caught up with this payment yet
			count = 1
		}
	}

	var out *PurchaseOutcome
	err := m.ledger.run(ctx, func(s *txScope) error {
		var err error
		out, err = m.apply(ctx, s, ev, count)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Duplicate {
		m.log.Info("duplicate purchase event ignored", "order_id", ev.OrderID, "user_id", ev.UserID)
	}
	return out, nil
}

func (m *PurchaseMilestones) apply(ctx context.Context, s *txScope, ev models.PurchaseEvent, count int64) (*PurchaseOutcome, error) {
	out := &PurchaseOutcome{PaidOrderCount: count}

	if _, err := m.ledger.initialize(ctx, s, ev.UserID); err != nil {
		return nil, err
	}
	first, err := m.repo.InsertClaim(ctx, s.db, ev.UserID, "order:"+ev.OrderID)
	if err != nil {
		return nil, err
	}
	if !first {
		out.Duplicate = true
		return out, nil
	}

	if ms, ok := countMilestones[count]; ok {
		claimed, err := m.repo.InsertClaim(ctx, s.db, ev.UserID, fmt.Sprintf("purchase_count:%d", count))
		if err != nil {
			return nil, err
		}
		if claimed {
			if err := m.reward(ctx, s, out, ev, ms); err != nil {
				return nil, err
			}
		}
	}

	if ms, ok := valueMilestone(ev.OrderTotal); ok {
		if err := m.reward(ctx, s, out, ev, ms); err != nil {
			return nil, err
		}
	}

	if count == 1 {
		if err := m.attributor.onFirstPurchase(ctx, s, ev.UserID, ev.OrderID, ev.OrderTotal); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *PurchaseMilestones) reward(ctx context.Context, s *txScope, out *PurchaseOutcome, ev models.PurchaseEvent, ms milestone) error {
	t, err := m.ledger.credit(ctx, s, ev.UserID, ms.reward, models.SourcePurchase, ms.label, ev.OrderID)
	if err != nil {
		return err
	}
	out.Credits = append(out.Credits, *t)
	if _, err := m.tracker.advance(ctx, s, ev.UserID, ms.quest, 1); err != nil {
		return err
	}
	return nil
}
