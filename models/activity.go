package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityType tags entries in the public activity feed.
type ActivityType string

const (
	ActivityBadgeEarned         ActivityType = "badge_earned"
	ActivityQuestCompleted      ActivityType = "quest_completed"
	ActivityAchievementUnlocked ActivityType = "achievement_unlocked"
	ActivityLevelUp             ActivityType = "level_up"
)

// Activity is a feed entry, written best-effort alongside grants.
type Activity struct {
	ID          string            `gorm:"primaryKey;type:uuid" json:"id"`
	Type        ActivityType      `gorm:"not null;index" json:"type"`
	Title       string            `gorm:"not null" json:"title"`
	Description string            `json:"description"`
	UserID      *string           `gorm:"type:uuid;index" json:"user_id,omitempty"`
	ServerID    *string           `gorm:"type:uuid" json:"server_id,omitempty"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}
