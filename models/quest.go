package models

import "time"

// QuestType scopes quest progress records.
type QuestType string

const (
	QuestTypeDaily       QuestType = "daily"       // scoped to a calendar date
	QuestTypeAchievement QuestType = "achievement" // scoped once, unbounded lifetime
)

// Quest is a rewardable definition completed through the progress tracker.
type Quest struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	Code        string    `gorm:"uniqueIndex;not null" json:"code"`
	Name        string    `gorm:"not null;index" json:"name"`
	Description *string   `json:"description,omitempty"`
	QuestType   QuestType `gorm:"type:varchar(16);not null" json:"quest_type"`

	ConditionKey  string `gorm:"not null;index" json:"condition_key"`
	TargetValue   int64  `gorm:"not null" json:"target_value"`
	RewardXP      int64  `gorm:"not null;default:0" json:"reward_xp"`
	RewardBalance int64  `gorm:"not null;default:0" json:"reward_balance"`
	IsActive      bool   `gorm:"not null;default:true;index" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// UserQuest tracks one user's advancement on one quest within one scope.
// QuestDate is nil for achievements and a (midnight UTC) calendar date for
// dailies. Rewards auto-claim: CompletedAt and ClaimedAt are set together,
// after which Progress is frozen.
type UserQuest struct {
	ID          string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string     `gorm:"type:uuid;not null;uniqueIndex:uq_user_quest_date,priority:1;index" json:"user_id"`
	QuestID     string     `gorm:"type:uuid;not null;uniqueIndex:uq_user_quest_date,priority:2;index" json:"quest_id"`
	Progress    int64      `gorm:"not null;default:0" json:"progress"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	QuestDate   *time.Time `gorm:"uniqueIndex:uq_user_quest_date,priority:3;index" json:"quest_date,omitempty"`

	Quest Quest `gorm:"foreignKey:QuestID" json:"quest,omitempty"`
}
