package services

import (
	"errors"
	"fmt"

	"polystirolhub-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterService stores per-user monotonically accumulated counters.
// Methods take the caller's *gorm.DB so they compose into an enclosing
// progress transaction; called standalone they are still single-statement
// atomic upserts.
type CounterService struct {
	DB *gorm.DB
}

func NewCounterService(db *gorm.DB) *CounterService {
	return &CounterService{DB: db}
}

// Increment adds delta to (user, key), creating the counter lazily.
// A single upsert statement, no read-then-write race.
func (s *CounterService) Increment(db *gorm.DB, userID, key string, delta int64) error {
	if delta <= 0 {
		return ErrInvalidAmount
	}
	counter := models.UserCounter{
		ID:         uuid.NewString(),
		UserID:     userID,
		CounterKey: key,
		Value:      delta,
	}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "counter_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value": gorm.Expr("user_counters.value + excluded.value"),
		}),
	}).Create(&counter).Error
	if err != nil {
		return fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	return nil
}

// Set overwrites (user, key) with an absolute value, used to resynchronize
// from an authoritative external source.
func (s *CounterService) Set(db *gorm.DB, userID, key string, value int64) error {
	if value < 0 {
		return ErrInvalidAmount
	}
	counter := models.UserCounter{
		ID:         uuid.NewString(),
		UserID:     userID,
		CounterKey: key,
		Value:      value,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "counter_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&counter).Error
	if err != nil {
		return fmt.Errorf("failed to set counter %s: %w", key, err)
	}
	return nil
}

// Get returns the counter value, 0 when absent.
func (s *CounterService) Get(db *gorm.DB, userID, key string) (int64, error) {
	var counter models.UserCounter
	err := db.Where("user_id = ? AND counter_key = ?", userID, key).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return counter.Value, nil
}

// GetAll returns every counter the user has touched, keyed by counter key.
func (s *CounterService) GetAll(db *gorm.DB, userID string) (map[string]int64, error) {
	var counters []models.UserCounter
	if err := db.Where("user_id = ?", userID).Find(&counters).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(counters))
	for _, c := range counters {
		out[c.CounterKey] = c.Value
	}
	return out, nil
}
