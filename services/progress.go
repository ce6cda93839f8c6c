package services

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"polystirolhub-backend/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DailyQuestSampleSize is how many daily quests each user gets per day.
const DailyQuestSampleSize = 3

// ProgressService is the progress tracker: it fans counter changes and
// reported values out to every enabled badge and quest definition sharing
// the condition key, decides completion, and triggers grants.
//
// Each definition is processed in its own short transaction; one
// misconfigured definition never blocks the others.
type ProgressService struct {
	DB          *gorm.DB
	Counters    *CounterService
	Registry    *ConditionRegistry
	Ledger      *LedgerService
	Badges      *BadgeService
	SideEffects *SideEffectService
}

func NewProgressService(db *gorm.DB, counters *CounterService, registry *ConditionRegistry, ledger *LedgerService, badges *BadgeService, effects *SideEffectService) *ProgressService {
	return &ProgressService{
		DB:          db,
		Counters:    counters,
		Registry:    registry,
		Ledger:      ledger,
		Badges:      badges,
		SideEffects: effects,
	}
}

// DateOf truncates a timestamp to its UTC calendar date, the scope
// identity of daily quest records.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// OnCounterDelta handles an inbound counter event: bump the counter, then
// re-derive progress for every definition keyed on it.
func (s *ProgressService) OnCounterDelta(userID, key string, delta int64) error {
	if err := s.Counters.Increment(s.DB, userID, key, delta); err != nil {
		return err
	}
	s.UpdateQuestProgress(userID, key, delta, nil)
	s.UpdateBadgeProgress(userID, key, delta, nil)
	return nil
}

// OnAbsoluteProgress handles a directly reported progress value (e.g.
// deaths at session end): no counter involved, the value is pushed as-is.
func (s *ProgressService) OnAbsoluteProgress(userID, key string, value int64) {
	s.UpdateQuestProgress(userID, key, 0, &value)
	s.UpdateBadgeProgress(userID, key, 0, &value)
}

// SyncFromCounter re-derives progress from the counter store alone, used
// after an authoritative resync overwrote counter values.
func (s *ProgressService) SyncFromCounter(userID, key string) {
	s.UpdateQuestProgress(userID, key, 0, nil)
	s.UpdateBadgeProgress(userID, key, 0, nil)
}

type questCompletion struct {
	quest models.Quest
}

// UpdateQuestProgress advances every enabled quest keyed on conditionKey.
// The new progress value is resolved with this precedence: a nonzero
// counter wins (counters are the source of truth), then a supplied
// absolute value (monotonic max), then the delta.
func (s *ProgressService) UpdateQuestProgress(userID, conditionKey string, delta int64, absolute *int64) {
	var quests []models.Quest
	if err := s.DB.Where("condition_key = ? AND is_active = ?", conditionKey, true).Find(&quests).Error; err != nil {
		log.Printf("[PROGRESS] failed to load quests for key %s: %v", conditionKey, err)
		return
	}
	if len(quests) == 0 {
		return
	}

	today := DateOf(time.Now())
	var completions []questCompletion

	for _, quest := range quests {
		completed, err := s.advanceQuest(quest, userID, today, delta, absolute)
		if err != nil {
			log.Printf("[PROGRESS] quest %s (%s) update for user %s failed: %v", quest.ID, quest.Name, userID, err)
			continue
		}
		if completed {
			completions = append(completions, questCompletion{quest: quest})
		}
	}

	for _, c := range completions {
		s.announceQuestCompletion(userID, c.quest)
	}
}

// advanceQuest runs one definition's scope resolution, progress update and
// completion inside a single transaction. Reports whether the quest was
// completed by this update.
func (s *ProgressService) advanceQuest(quest models.Quest, userID string, today time.Time, delta int64, absolute *int64) (bool, error) {
	completed := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var scope *time.Time
		if quest.QuestType == models.QuestTypeDaily {
			scope = &today
		}

		record, err := s.findOrCreateQuestRecord(tx, userID, quest.ID, scope)
		if err != nil {
			return err
		}
		if record.CompletedAt != nil {
			return nil // frozen
		}

		counterValue, err := s.Counters.Get(tx, userID, quest.ConditionKey)
		if err != nil {
			return err
		}
		switch {
		case counterValue > 0:
			record.Progress = counterValue
		case absolute != nil:
			if *absolute > record.Progress {
				record.Progress = *absolute
			}
		default:
			record.Progress += delta
		}

		updates := map[string]interface{}{"progress": record.Progress}
		if quest.TargetValue > 0 && record.Progress >= quest.TargetValue {
			now := time.Now().UTC()
			record.CompletedAt = &now
			record.ClaimedAt = &now // rewards auto-claim
			updates["completed_at"] = &now
			updates["claimed_at"] = &now
			completed = true
		}
		if err := tx.Model(&models.UserQuest{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to persist quest progress: %w", err)
		}

		if completed && (quest.RewardXP > 0 || quest.RewardBalance > 0) {
			if _, err := s.Ledger.CreditTx(tx, userID, quest.RewardXP, quest.RewardBalance); err != nil {
				return fmt.Errorf("failed to pay quest reward: %w", err)
			}
		}
		return nil
	})
	return completed, err
}

func (s *ProgressService) findOrCreateQuestRecord(tx *gorm.DB, userID, questID string, scope *time.Time) (*models.UserQuest, error) {
	q := tx.Where("user_id = ? AND quest_id = ?", userID, questID)
	if scope == nil {
		q = q.Where("quest_date IS NULL")
	} else {
		q = q.Where("quest_date = ?", *scope)
	}

	var record models.UserQuest
	err := q.First(&record).Error
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	record = models.UserQuest{
		ID:        uuid.NewString(),
		UserID:    userID,
		QuestID:   questID,
		Progress:  0,
		QuestDate: scope,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to create quest record: %w", err)
	}
	return &record, nil
}

// UpdateBadgeProgress advances every enabled threshold badge keyed on
// conditionKey; crossing the target freezes the progress record and hands
// off to the grant manager. Badges without a target are never completable
// through this path.
func (s *ProgressService) UpdateBadgeProgress(userID, conditionKey string, delta int64, absolute *int64) {
	var badges []models.Badge
	if err := s.DB.Where("condition_key = ? AND is_active = ?", conditionKey, true).Find(&badges).Error; err != nil {
		log.Printf("[PROGRESS] failed to load badges for key %s: %v", conditionKey, err)
		return
	}

	for _, badge := range badges {
		if badge.TargetValue == nil {
			continue
		}
		crossed, err := s.advanceBadge(badge, userID, delta, absolute)
		if err != nil {
			log.Printf("[PROGRESS] badge %s (%s) update for user %s failed: %v", badge.ID, badge.Name, userID, err)
			continue
		}
		if crossed {
			if _, err := s.Badges.AwardOrExtend(userID, badge.ID); err != nil {
				log.Printf("[PROGRESS] badge %s (%s) grant for user %s failed: %v", badge.ID, badge.Name, userID, err)
			}
		}
	}
}

func (s *ProgressService) advanceBadge(badge models.Badge, userID string, delta int64, absolute *int64) (bool, error) {
	crossed := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var record models.UserBadgeProgress
		err := tx.Where("user_id = ? AND badge_id = ?", userID, badge.ID).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record = models.UserBadgeProgress{
				ID:      uuid.NewString(),
				UserID:  userID,
				BadgeID: badge.ID,
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("failed to create badge progress: %w", err)
			}
		} else if err != nil {
			return err
		}
		if record.CompletedAt != nil {
			return nil // frozen
		}

		counterValue, err := s.Counters.Get(tx, userID, badge.ConditionKey)
		if err != nil {
			return err
		}
		switch {
		case counterValue > 0:
			record.Progress = counterValue
		case absolute != nil:
			if *absolute > record.Progress {
				record.Progress = *absolute
			}
		default:
			record.Progress += delta
		}

		updates := map[string]interface{}{"progress": record.Progress}
		if record.Progress >= *badge.TargetValue {
			now := time.Now().UTC()
			updates["completed_at"] = &now
			crossed = true
		}
		if err := tx.Model(&models.UserBadgeProgress{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to persist badge progress: %w", err)
		}
		return nil
	})
	return crossed, err
}

// InitializeDailyQuests materializes up to DailyQuestSampleSize randomly
// chosen enabled daily quests for the user and date, skipping any already
// present, then replays already-satisfied conditions into them.
func (s *ProgressService) InitializeDailyQuests(userID string, date time.Time) error {
	date = DateOf(date)

	var dailies []models.Quest
	if err := s.DB.Where("quest_type = ? AND is_active = ?", models.QuestTypeDaily, true).Find(&dailies).Error; err != nil {
		return fmt.Errorf("failed to load daily quests: %w", err)
	}
	if len(dailies) == 0 {
		return nil
	}

	var existingIDs []string
	if err := s.DB.Model(&models.UserQuest{}).
		Where("user_id = ? AND quest_date = ?", userID, date).
		Pluck("quest_id", &existingIDs).Error; err != nil {
		return err
	}
	existing := make(map[string]bool, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = true
	}

	available := make([]models.Quest, 0, len(dailies))
	for _, q := range dailies {
		if !existing[q.ID] {
			available = append(available, q)
		}
	}
	if len(available) == 0 {
		return nil
	}

	rand.Shuffle(len(available), func(i, j int) {
		available[i], available[j] = available[j], available[i]
	})
	n := DailyQuestSampleSize
	if len(available) < n {
		n = len(available)
	}
	selected := available[:n]

	for _, quest := range selected {
		record := models.UserQuest{
			ID:        uuid.NewString(),
			UserID:    userID,
			QuestID:   quest.ID,
			Progress:  0,
			QuestDate: &date,
		}
		if err := s.DB.Create(&record).Error; err != nil {
			log.Printf("[PROGRESS] failed to materialize daily quest %s for user %s: %v", quest.ID, userID, err)
		}
	}
	log.Printf("[PROGRESS] materialized %d daily quests for user %s on %s", len(selected), userID, date.Format("2006-01-02"))

	s.replayInitialConditions(userID, selected)
	return nil
}

// InitializeDailyQuestsForAllUsers is the midnight rollover entry point.
func (s *ProgressService) InitializeDailyQuestsForAllUsers(date time.Time) {
	var users []models.User
	if err := s.DB.Where("is_active = ?", true).Find(&users).Error; err != nil {
		log.Printf("[PROGRESS] daily rollover: failed to load users: %v", err)
		return
	}
	log.Printf("[PROGRESS] daily rollover for %d active users", len(users))
	for _, user := range users {
		if err := s.InitializeDailyQuests(user.ID, date); err != nil {
			log.Printf("[PROGRESS] daily rollover for user %s failed: %v", user.ID, err)
		}
	}
}

// InitializeAchievementQuests lazily materializes every enabled
// achievement quest for a user, once. A no-op when all exist already.
func (s *ProgressService) InitializeAchievementQuests(userID string) error {
	var achievements []models.Quest
	if err := s.DB.Where("quest_type = ? AND is_active = ?", models.QuestTypeAchievement, true).Find(&achievements).Error; err != nil {
		return fmt.Errorf("failed to load achievement quests: %w", err)
	}
	if len(achievements) == 0 {
		return nil
	}

	var existingIDs []string
	if err := s.DB.Model(&models.UserQuest{}).
		Where("user_id = ? AND quest_date IS NULL", userID).
		Pluck("quest_id", &existingIDs).Error; err != nil {
		return err
	}
	existing := make(map[string]bool, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = true
	}

	var created []models.Quest
	for _, quest := range achievements {
		if existing[quest.ID] {
			continue
		}
		record := models.UserQuest{
			ID:      uuid.NewString(),
			UserID:  userID,
			QuestID: quest.ID,
		}
		if err := s.DB.Create(&record).Error; err != nil {
			log.Printf("[PROGRESS] failed to materialize achievement %s for user %s: %v", quest.ID, userID, err)
			continue
		}
		created = append(created, quest)
	}
	if len(created) > 0 {
		log.Printf("[PROGRESS] materialized %d achievement quests for user %s", len(created), userID)
		s.replayInitialConditions(userID, created)
	}
	return nil
}

// replayInitialConditions pushes the current computed value of each
// quest's condition into freshly materialized records, so a quest whose
// condition is already satisfied completes immediately.
func (s *ProgressService) replayInitialConditions(userID string, quests []models.Quest) {
	seen := make(map[string]bool)
	for _, quest := range quests {
		if seen[quest.ConditionKey] {
			continue
		}
		seen[quest.ConditionKey] = true

		computer, ok := s.Registry.Resolve(quest.ConditionKey).(ProgressComputer)
		if !ok {
			continue
		}
		value, err := computer.ComputeProgress(s.DB, userID)
		if err != nil {
			log.Printf("[PROGRESS] initial condition check %s for user %s failed: %v", quest.ConditionKey, userID, err)
			continue
		}
		if value > 0 {
			s.UpdateQuestProgress(userID, quest.ConditionKey, 0, &value)
		}
	}
}

// QuestBoard is the quest-list read model.
type QuestBoard struct {
	Daily        []models.UserQuest `json:"daily"`
	Achievements []models.UserQuest `json:"achievements"`
}

// ListQuestProgress returns the user's daily quests for the date and all
// achievement records, materializing achievements on first read.
func (s *ProgressService) ListQuestProgress(userID string, date time.Time) (*QuestBoard, error) {
	if err := s.InitializeAchievementQuests(userID); err != nil {
		log.Printf("[PROGRESS] lazy achievement init for user %s failed: %v", userID, err)
	}
	date = DateOf(date)

	board := &QuestBoard{}
	if err := s.DB.Preload("Quest").
		Where("user_id = ? AND quest_date = ?", userID, date).
		Find(&board.Daily).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Preload("Quest").
		Where("user_id = ? AND quest_date IS NULL", userID).
		Find(&board.Achievements).Error; err != nil {
		return nil, err
	}
	return board, nil
}

func (s *ProgressService) announceQuestCompletion(userID string, quest models.Quest) {
	if s.SideEffects == nil {
		return
	}
	meta := datatypes.JSONMap{
		"quest_id":       quest.ID,
		"quest_name":     quest.Name,
		"quest_type":     string(quest.QuestType),
		"reward_xp":      quest.RewardXP,
		"reward_balance": quest.RewardBalance,
	}
	name := s.SideEffects.displayName(userID)
	if quest.QuestType == models.QuestTypeAchievement {
		s.SideEffects.Notify(userID, "achievement_unlocked", "Achievement unlocked!", quest.Name, quest.RewardXP, quest.RewardBalance, meta)
		s.SideEffects.RecordActivity(models.ActivityAchievementUnlocked,
			fmt.Sprintf("%s unlocked an achievement", name), "Achievement: "+quest.Name, &userID, nil, meta)
	}
	s.SideEffects.RecordActivity(models.ActivityQuestCompleted,
		fmt.Sprintf("%s completed a quest", name), "Quest: "+quest.Name, &userID, nil, meta)
}
