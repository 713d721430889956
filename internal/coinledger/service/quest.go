package service

import (
	"context"
	"fmt"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/25x8/coinledger/internal/coinledger/repository"
)

// AdvanceResult is the outcome of QuestTracker.Advance
type AdvanceResult string

const (
	AdvanceCompleted     AdvanceResult = "completed"
	AdvanceProgressed    AdvanceResult = "progressed"
	AdvanceQuestNotFound AdvanceResult = "quest_not_found"
)

func questRewardKey(q *models.Quest) string {
	return "quest:" + q.ID.String()
}

// QuestTracker records quest progress and pays quest rewards once
type QuestTracker struct {
	repo   *repository.Repository
	ledger *Ledger
	log    *logger.Logger
	now    func() time.Time
}

func NewQuestTracker(repo *repository.Repository, ledger *Ledger, log *logger.Logger) *QuestTracker {
	return &QuestTracker{
		repo:   repo,
		ledger: ledger,
		log:    log.With("service", "QuestTracker"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Advance adds increment to the user's progress on the quest. Unknown and
// inactive quests yield AdvanceQuestNotFound without an error, so retiring
// a quest never breaks the flows that still reference it.
func (q *QuestTracker) Advance(ctx context.Context, userID string, code models.QuestCode, increment int64) (AdvanceResult, error) {
	var res AdvanceResult
	err := q.ledger.run(ctx, func(s *txScope) error {
		var err error
		res, err = q.advance(ctx, s, userID, code, increment)
		return err
	})
	return res, err
}

func (q *QuestTracker) advance(ctx context.Context, s *txScope, userID string, code models.QuestCode, increment int64) (AdvanceResult, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	if increment <= 0 {
		return "", fmt.Errorf("%w: increment must be positive, got %d", ErrInvalidInput, increment)
	}
	if !code.Valid() {
		q.log.Warn("advance on undeclared quest code", "code", code)
		return AdvanceQuestNotFound, nil
	}

	quest, err := q.repo.GetQuestByCode(ctx, s.db, code)
	if err != nil {
		return "", err
	}
	if quest == nil || !quest.IsActive {
		q.log.Debug("quest missing or inactive", "code", code, "user_id", userID)
		return AdvanceQuestNotFound, nil
	}

	if err := q.repo.EnsureProgress(ctx, s.db, userID, quest); err != nil {
		return "", err
	}
	if err := q.repo.IncrementProgress(ctx, s.db, userID, quest.ID, increment); err != nil {
		return "", err
	}
	p, err := q.repo.GetProgress(ctx, s.db, userID, quest.ID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", fmt.Errorf("progress of %s on %s vanished", userID, code)
	}

	if p.CompletedAt == nil && p.Progress >= p.Target {
		now := q.now()
		marked, err := q.repo.MarkCompleted(ctx, s.db, p.ID, now)
		if err != nil {
			return "", err
		}
		if marked {
			p.CompletedAt = &now
			q.log.Info("quest completed", "user_id", userID, "code", code)
		}
	}
	if p.CompletedAt == nil {
		return AdvanceProgressed, nil
	}

	if err := q.issue(ctx, s, quest, p); err != nil {
		return "", err
	}
	return AdvanceCompleted, nil
}

// issue pays the quest reward of a completed progress row. The claim insert
// is the guard: of any number of callers only the one that inserts it
// credits the reward.
func (q *QuestTracker) issue(ctx context.Context, s *txScope, quest *models.Quest, p *models.QuestProgress) error {
	if p.ClaimedAt != nil {
		return nil
	}
	claimed, err := q.repo.InsertClaim(ctx, s.db, p.UserID, questRewardKey(quest))
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if quest.RewardAmount > 0 {
		if _, err := q.ledger.credit(ctx, s, p.UserID, quest.RewardAmount, models.SourceQuest, quest.Name, quest.ID.String()); err != nil {
			return fmt.Errorf("quest %s reward: %w", quest.Code, err)
		}
	}
	if _, err := q.repo.MarkClaimed(ctx, s.db, p.ID, q.now()); err != nil {
		return err
	}
	q.log.Info("quest rewarded", "user_id", p.UserID, "code", quest.Code, "amount", quest.RewardAmount)
	return nil
}

// ProgressOf lists the active quests, and any quest the user has progress
// on, with the user's progress. Read-only.
func (q *QuestTracker) ProgressOf(ctx context.Context, userID string) ([]models.QuestProgressView, error) {
	quests, err := q.repo.ListQuests(ctx, nil, false)
	if err != nil {
		return nil, err
	}
	rows, err := q.repo.ListProgressByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	byQuest := make(map[string]*models.QuestProgress, len(rows))
	for i := range rows {
		byQuest[rows[i].QuestID.String()] = &rows[i]
	}

	views := make([]models.QuestProgressView, 0, len(quests))
	for _, quest := range quests {
		p := byQuest[quest.ID.String()]
		if !quest.IsActive && p == nil {
			continue
		}
		views = append(views, models.QuestProgressView{Quest: quest, Progress: p, State: p.State()})
	}
	return views, nil
}

// SeedCatalog inserts the catalog quests that have no row yet when insert
// is set. Existing rows are never touched, so admin changes survive a
// restart. Declared codes without a row and rows with undeclared codes are
// reported.
func (q *QuestTracker) SeedCatalog(ctx context.Context, insert bool) error {
	if insert {
		inserted := 0
		for _, def := range models.DefaultQuests {
			quest := def
			now := q.now()
			quest.CreatedAt = now
			quest.UpdatedAt = now
			created, err := q.repo.CreateQuestIfMissing(ctx, nil, &quest)
			if err != nil {
				return fmt.Errorf("seed quest %s: %w", def.Code, err)
			}
			if created {
				inserted++
			}
		}
		q.log.Info("quest catalog seeded", "inserted", inserted)
	}

	stored, err := q.repo.ListQuests(ctx, nil, false)
	if err != nil {
		return err
	}
	present := make(map[models.QuestCode]bool, len(stored))
	for _, quest := range stored {
		present[quest.Code] = true
		if !quest.Code.Valid() {
			q.log.Warn("stored quest has an undeclared code and can never advance", "code", quest.Code)
		}
	}
	for _, code := range models.QuestCodes() {
		if !present[code] {
			q.log.Warn("declared quest code has no quest row", "code", code)
		}
	}
	return nil
}
