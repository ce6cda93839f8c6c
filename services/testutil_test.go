package services

import (
	"testing"

	"polystirolhub-backend/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a fresh in-memory database limited to a single
// connection so concurrent transactions serialize the way row locks
// serialize them in production.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.User{},
		&models.ExternalLink{},
		&models.UserCounter{},
		&models.Badge{},
		&models.UserBadge{},
		&models.UserBadgeProgress{},
		&models.Quest{},
		&models.UserQuest{},
		&models.Notification{},
		&models.Activity{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, xp, balance int64) *models.User {
	t.Helper()
	user := models.User{
		ID:       uuid.NewString(),
		IsActive: true,
		XP:       xp,
		Level:    LevelFromXP(xp),
		Balance:  balance,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return &user
}

func reloadUser(t *testing.T, db *gorm.DB, userID string) *models.User {
	t.Helper()
	var user models.User
	if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
		t.Fatalf("reload user %s: %v", userID, err)
	}
	return &user
}

func createTestBadge(t *testing.T, db *gorm.DB, badge models.Badge) *models.Badge {
	t.Helper()
	if badge.ID == "" {
		badge.ID = uuid.NewString()
	}
	if badge.Code == "" {
		badge.Code = "badge-" + badge.ID[:8]
	}
	if badge.Name == "" {
		badge.Name = badge.Code
	}
	if badge.ImageURL == "" {
		badge.ImageURL = "https://cdn.example.com/badges/" + badge.Code + ".png"
	}
	badge.IsActive = true
	if err := db.Create(&badge).Error; err != nil {
		t.Fatalf("create test badge: %v", err)
	}
	return &badge
}

func createTestQuest(t *testing.T, db *gorm.DB, quest models.Quest) *models.Quest {
	t.Helper()
	if quest.ID == "" {
		quest.ID = uuid.NewString()
	}
	if quest.Code == "" {
		quest.Code = "quest-" + quest.ID[:8]
	}
	if quest.Name == "" {
		quest.Name = quest.Code
	}
	quest.IsActive = true
	if err := db.Create(&quest).Error; err != nil {
		t.Fatalf("create test quest: %v", err)
	}
	return &quest
}

func int64Ptr(v int64) *int64 { return &v }

// newTestStack wires the full service graph on one test database.
func newTestStack(t *testing.T) (*gorm.DB, *LedgerService, *CounterService, *ConditionRegistry, *BadgeService, *ProgressService) {
	t.Helper()
	db := newTestDB(t)
	counters := NewCounterService(db)
	registry := NewConditionRegistry(counters)
	ledger := NewLedgerService(db)
	badges := NewBadgeService(db, ledger, registry, nil)
	progress := NewProgressService(db, counters, registry, ledger, badges, nil)
	return db, ledger, counters, registry, badges, progress
}
