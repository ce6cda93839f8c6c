package models

import (
	"time"

	"gorm.io/gorm"
)

// User holds the account row the Ledger mutates. Level is denormalized from
// XP for read speed; only the ledger service writes xp/level/balance.
type User struct {
	ID       string  `gorm:"primaryKey;type:uuid" json:"id"`
	Username *string `gorm:"uniqueIndex" json:"username,omitempty"`
	Email    *string `gorm:"uniqueIndex" json:"email,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
	IsActive bool    `gorm:"default:true;index" json:"is_active"`

	XP      int64 `gorm:"not null;default:0" json:"xp"`
	Level   int   `gorm:"not null;default:1" json:"level"`
	Balance int64 `gorm:"not null;default:0" json:"balance"`

	SelectedBadgeID *string `gorm:"type:uuid" json:"selected_badge_id,omitempty"`

	Timestamps
}

// ExternalLink maps a game-platform identity (e.g., a Minecraft UUID) to a
// local user. The stats resync worker resolves inbound identities through it.
type ExternalLink struct {
	ID               string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID           string `gorm:"type:uuid;index;not null" json:"user_id"`
	Platform         string `gorm:"not null;uniqueIndex:uq_platform_external_id,priority:1" json:"platform"` // "MC", "discord", ...
	ExternalID       string `gorm:"not null;uniqueIndex:uq_platform_external_id,priority:2" json:"external_id"`
	PlatformUsername *string `json:"platform_username,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
