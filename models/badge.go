package models

import "time"

// BadgeType discriminates grant lifecycles.
type BadgeType string

const (
	BadgeTypePermanent BadgeType = "permanent" // granted once, never expires
	BadgeTypeEvent     BadgeType = "event"     // granted for participation, never expires
	BadgeTypeTemporary BadgeType = "temporary" // expires and may be renewed (leader badges)
)

// Badge is a rewardable definition. ConditionKey names the condition handler
// (or an ad-hoc counter); TargetValue is nil for leader/periodic conditions.
// AutoCheck marks the badge for the hourly periodic re-evaluation pass.
type Badge struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	Code        string    `gorm:"uniqueIndex;not null" json:"code"`
	Name        string    `gorm:"not null;index" json:"name"`
	Description *string   `json:"description,omitempty"`
	ImageURL    string    `gorm:"not null" json:"image_url"`
	UnicodeChar *string   `json:"unicode_char,omitempty"` // icon-font codepoint, e.g. "E000"
	BadgeType   BadgeType `gorm:"type:varchar(16);not null;default:'permanent'" json:"badge_type"`

	ConditionKey  string `gorm:"not null;index" json:"condition_key"`
	TargetValue   *int64 `json:"target_value,omitempty"`
	RewardXP      int64  `gorm:"not null;default:0" json:"reward_xp"`
	RewardBalance int64  `gorm:"not null;default:0" json:"reward_balance"`
	AutoCheck     bool   `gorm:"not null;default:false;index" json:"auto_check"`
	IsActive      bool   `gorm:"not null;default:true;index" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// UserBadge is the durable grant record: at most one per (user, badge).
// A temporary badge's ExpiresAt is pushed forward on re-qualification; the
// reward is paid only on the first grant.
type UserBadge struct {
	ID         string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string     `gorm:"type:uuid;not null;uniqueIndex:uq_user_badge,priority:1;index" json:"user_id"`
	BadgeID    string     `gorm:"type:uuid;not null;uniqueIndex:uq_user_badge,priority:2;index" json:"badge_id"`
	ReceivedAt time.Time  `gorm:"autoCreateTime" json:"received_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"` // nil for permanent/event grants

	Badge Badge `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
}

// UserBadgeProgress accumulates advancement toward a badge's target.
// Once CompletedAt is set the row is frozen.
type UserBadgeProgress struct {
	ID          string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string     `gorm:"type:uuid;not null;uniqueIndex:uq_user_badge_progress,priority:1" json:"user_id"`
	BadgeID     string     `gorm:"type:uuid;not null;uniqueIndex:uq_user_badge_progress,priority:2" json:"badge_id"`
	Progress    int64      `gorm:"not null;default:0" json:"progress"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
