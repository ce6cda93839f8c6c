package services

import (
	"errors"
	"fmt"
	"log"
	"math"

	"polystirolhub-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger error taxonomy. Direct callers (admin grant/debit endpoints) match
// these with errors.Is; fan-out paths only log them.
var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
)

// MaxLevel bounds the level search so the curve stays total for any XP.
const MaxLevel = 1000

// XPForLevel returns E(L): the additional XP required to advance from
// level L-1 to level L. E(L) = ceil(L/10) * 100.
func XPForLevel(level int) int64 {
	if level < 1 {
		return 0
	}
	return int64((level+9)/10) * 100
}

// TotalXPForLevel returns T(N): the total XP required to reach level N.
func TotalXPForLevel(level int) int64 {
	if level > MaxLevel {
		level = MaxLevel
	}
	var total int64
	for l := 1; l <= level; l++ {
		total += XPForLevel(l)
	}
	return total
}

// LevelFromXP returns the largest level N such that T(N) <= xp, floored at
// level 1 and capped at MaxLevel. Pure and total for all xp.
func LevelFromXP(xp int64) int {
	if xp < 0 {
		return 1
	}
	level := 1
	for level < MaxLevel && xp >= TotalXPForLevel(level+1) {
		level++
	}
	return level
}

// Progression describes a user's position on the level curve.
type Progression struct {
	Level             int     `json:"level"`
	TotalXP           int64   `json:"total_xp"`
	XPForCurrentLevel int64   `json:"xp_for_current_level"`
	XPForNextLevel    int64   `json:"xp_for_next_level"`
	XPProgress        int64   `json:"xp_progress"`
	XPNeeded          int64   `json:"xp_needed"`
	ProgressPercent   float64 `json:"progress_percent"`
}

// ProgressionFromXP recomputes the full progression snapshot from raw XP.
// Never stored; always derived.
func ProgressionFromXP(xp int64) Progression {
	if xp < 0 {
		xp = 0
	}
	level := LevelFromXP(xp)
	current := TotalXPForLevel(level)
	next := TotalXPForLevel(level + 1)

	percent := 100.0
	if step := XPForLevel(level + 1); step > 0 {
		percent = float64(xp-current) / float64(step) * 100
	}
	percent = math.Round(math.Min(100, math.Max(0, percent))*100) / 100

	return Progression{
		Level:             level,
		TotalXP:           xp,
		XPForCurrentLevel: current,
		XPForNextLevel:    next,
		XPProgress:        xp - current,
		XPNeeded:          next - xp,
		ProgressPercent:   percent,
	}
}

// CreditResult reports the balances after a credit.
type CreditResult struct {
	UserID        string      `json:"user_id"`
	XP            int64       `json:"xp"`
	Balance       int64       `json:"balance"`
	Level         int         `json:"level"`
	LeveledUp     bool        `json:"leveled_up"`
	PreviousLevel int         `json:"previous_level"`
	Progression   Progression `json:"progression"`
}

// DebitResult reports the balance after a debit.
type DebitResult struct {
	UserID     string `json:"user_id"`
	Balance    int64  `json:"balance"`
	OldBalance int64  `json:"old_balance"`
}

// LedgerService is the single entry point for XP and balance mutation.
// Every mutation locks the user row (SELECT ... FOR UPDATE) for the span of
// its read-modify-write so concurrent credits and debits serialize.
type LedgerService struct {
	DB          *gorm.DB
	SideEffects *SideEffectService // optional, level-up feed entries
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// Credit atomically adds XP and/or currency to a user and recomputes the
// denormalized level. Negative amounts and all-zero credits are rejected.
func (s *LedgerService) Credit(userID string, xpAmount, balanceAmount int64) (*CreditResult, error) {
	return s.CreditTx(s.DB, userID, xpAmount, balanceAmount)
}

// CreditTx is Credit running on the caller's handle so reward payment can
// share the enclosing grant transaction.
func (s *LedgerService) CreditTx(db *gorm.DB, userID string, xpAmount, balanceAmount int64) (*CreditResult, error) {
	if xpAmount < 0 || balanceAmount < 0 || (xpAmount == 0 && balanceAmount == 0) {
		return nil, ErrInvalidAmount
	}

	var res *CreditResult
	err := db.Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}

		oldLevel := user.Level
		user.XP += xpAmount
		user.Balance += balanceAmount
		user.Level = LevelFromXP(user.XP)

		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"xp":      user.XP,
				"balance": user.Balance,
				"level":   user.Level,
			}).Error; err != nil {
			return fmt.Errorf("failed to persist credit: %w", err)
		}

		res = &CreditResult{
			UserID:        user.ID,
			XP:            user.XP,
			Balance:       user.Balance,
			Level:         user.Level,
			LeveledUp:     user.Level > oldLevel,
			PreviousLevel: oldLevel,
			Progression:   ProgressionFromXP(user.XP),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.LeveledUp {
		log.Printf("[LEDGER] user %s leveled up: %d -> %d (xp=%d)", userID, res.PreviousLevel, res.Level, res.XP)
		if s.SideEffects != nil {
			s.SideEffects.RecordLevelUp(userID, res.PreviousLevel, res.Level)
		}
	}
	return res, nil
}

// Debit atomically removes currency from a user. The balance never goes
// negative: concurrent debits exceeding the balance fail with
// ErrInsufficientFunds once it runs out.
func (s *LedgerService) Debit(userID string, amount int64) (*DebitResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var res *DebitResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		if user.Balance-amount < 0 {
			return ErrInsufficientFunds
		}

		old := user.Balance
		user.Balance -= amount
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("balance", user.Balance).Error; err != nil {
			return fmt.Errorf("failed to persist debit: %w", err)
		}

		res = &DebitResult{UserID: user.ID, Balance: user.Balance, OldBalance: old}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Progression returns the level-curve snapshot for a user.
func (s *LedgerService) Progression(userID string) (*Progression, error) {
	var user models.User
	if err := s.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	p := ProgressionFromXP(user.XP)
	return &p, nil
}

func lockUser(tx *gorm.DB, userID string) (*models.User, error) {
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock user row: %w", err)
	}
	return &user, nil
}
