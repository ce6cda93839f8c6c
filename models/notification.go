package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is a user-facing side-effect record. Creation is always
// best-effort: a failed insert is logged and never rolls back the grant
// that produced it.
type Notification struct {
	ID            string            `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string            `gorm:"type:uuid;not null;index" json:"user_id"`
	Type          string            `gorm:"not null;index" json:"type"` // badge_earned, achievement_unlocked, level_up, ...
	Title         string            `gorm:"not null" json:"title"`
	Message       string            `json:"message"`
	RewardXP      int64             `gorm:"not null;default:0" json:"reward_xp"`
	RewardBalance int64             `gorm:"not null;default:0" json:"reward_balance"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	IsRead        bool              `gorm:"not null;default:false;index" json:"is_read"`
	CreatedAt     time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}
