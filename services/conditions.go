package services

import (
	"errors"
	"fmt"
	"sort"

	"polystirolhub-backend/models"

	"gorm.io/gorm"
)

// ErrHandlerNotFound is returned when a periodic-only path resolves a
// condition key with no usable handler.
var ErrHandlerNotFound = errors.New("no handler for condition key")

// ConditionInfo describes a condition key for the admin API: how it is
// evaluated and what a definition using it must carry.
type ConditionInfo struct {
	Key                 string `json:"key"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	Periodic            bool   `json:"periodic"`
	RequiresTargetValue bool   `json:"requires_target_value"`
	RequiresAutoCheck   bool   `json:"requires_auto_check"`
}

// ConditionHandler is the base capability every registered condition has.
// Handlers additionally implement ProgressComputer and/or SubjectSelector.
type ConditionHandler interface {
	Info() ConditionInfo
}

// ProgressComputer computes a user's current progress value for
// event-driven conditions.
type ProgressComputer interface {
	ComputeProgress(db *gorm.DB, userID string) (int64, error)
}

// SubjectSelector picks the single current subject of a leader-style
// condition over the whole population. (nil, nil) means no eligible
// subject, which is a no-op pass, not an error.
type SubjectSelector interface {
	SelectSubject(db *gorm.DB) (*models.User, error)
}

// ConditionRegistry maps condition keys to handlers. Unknown keys resolve
// to a plain counter read, so new gameplay counters need no code changes.
type ConditionRegistry struct {
	counters *CounterService
	handlers map[string]ConditionHandler
}

func NewConditionRegistry(counters *CounterService) *ConditionRegistry {
	r := &ConditionRegistry{
		counters: counters,
		handlers: make(map[string]ConditionHandler),
	}
	r.Register(&xpLeaderCondition{})
	r.Register(&balanceLeaderCondition{})
	r.Register(&currencyAccumulatedCondition{})
	r.Register(&deathsInSessionCondition{})
	return r
}

// Register adds or replaces a handler under its own key.
func (r *ConditionRegistry) Register(h ConditionHandler) {
	r.handlers[h.Info().Key] = h
}

// Resolve returns the handler for key, falling back to an ad-hoc
// counter-backed handler for unregistered keys.
func (r *ConditionRegistry) Resolve(key string) ConditionHandler {
	if h, ok := r.handlers[key]; ok {
		return h
	}
	return &counterCondition{key: key, counters: r.counters}
}

// Describe lists all registered conditions, sorted by key.
func (r *ConditionRegistry) Describe() []ConditionInfo {
	out := make([]ConditionInfo, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// RequiresTargetValue reports whether definitions using key must carry a
// target. Ad-hoc counters always threshold, so unknown keys require one.
func (r *ConditionRegistry) RequiresTargetValue(key string) bool {
	if h, ok := r.handlers[key]; ok {
		return h.Info().RequiresTargetValue
	}
	return true
}

// --- built-in handlers ---

// xpLeaderCondition selects the active user with the most XP. Ties break
// toward the earlier account so leadership does not flap between equals.
type xpLeaderCondition struct{}

func (c *xpLeaderCondition) Info() ConditionInfo {
	return ConditionInfo{
		Key:               "xp_leader",
		Name:              "XP leader",
		Description:       "Held by the user with the highest XP on the site. Re-checked hourly.",
		Periodic:          true,
		RequiresAutoCheck: true,
	}
}

func (c *xpLeaderCondition) SelectSubject(db *gorm.DB) (*models.User, error) {
	var user models.User
	err := db.Where("is_active = ?", true).
		Order("xp DESC").Order("created_at ASC").
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select xp leader: %w", err)
	}
	return &user, nil
}

func (c *xpLeaderCondition) ComputeProgress(db *gorm.DB, userID string) (int64, error) {
	var user models.User
	if err := db.Select("xp").Where("id = ?", userID).First(&user).Error; err != nil {
		return 0, err
	}
	return user.XP, nil
}

// balanceLeaderCondition selects the active user with the largest balance.
type balanceLeaderCondition struct{}

func (c *balanceLeaderCondition) Info() ConditionInfo {
	return ConditionInfo{
		Key:               "balance_leader",
		Name:              "Currency leader",
		Description:       "Held by the user with the largest balance. Re-checked hourly.",
		Periodic:          true,
		RequiresAutoCheck: true,
	}
}

func (c *balanceLeaderCondition) SelectSubject(db *gorm.DB) (*models.User, error) {
	var user models.User
	err := db.Where("is_active = ?", true).
		Order("balance DESC").Order("created_at ASC").
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select balance leader: %w", err)
	}
	return &user, nil
}

// currencyAccumulatedCondition thresholds on the user's current balance.
type currencyAccumulatedCondition struct{}

func (c *currencyAccumulatedCondition) Info() ConditionInfo {
	return ConditionInfo{
		Key:                 "currency_accumulated",
		Name:                "Currency accumulated",
		Description:         "Reached when the user's balance meets the target value.",
		RequiresTargetValue: true,
	}
}

func (c *currencyAccumulatedCondition) ComputeProgress(db *gorm.DB, userID string) (int64, error) {
	var user models.User
	if err := db.Select("balance").Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return user.Balance, nil
}

// deathsInSessionCondition is event-driven: the session-end handler pushes
// the absolute death count, so there is nothing to compute here.
type deathsInSessionCondition struct{}

func (c *deathsInSessionCondition) Info() ConditionInfo {
	return ConditionInfo{
		Key:                 "deaths_in_session",
		Name:                "Deaths in one session",
		Description:         "Reported by the game server at session end.",
		RequiresTargetValue: true,
	}
}

func (c *deathsInSessionCondition) ComputeProgress(db *gorm.DB, userID string) (int64, error) {
	return 0, nil
}

// counterCondition is the open-registry fallback: the key is read straight
// from the counter store.
type counterCondition struct {
	key      string
	counters *CounterService
}

func (c *counterCondition) Info() ConditionInfo {
	return ConditionInfo{
		Key:                 c.key,
		Name:                c.key,
		Description:         "Ad-hoc counter tracked by the counter store.",
		RequiresTargetValue: true,
	}
}

func (c *counterCondition) ComputeProgress(db *gorm.DB, userID string) (int64, error) {
	return c.counters.Get(db, userID, c.key)
}
