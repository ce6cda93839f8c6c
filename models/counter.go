package models

import "time"

// UserCounter is a per-user named accumulator fed by game-server activity
// ("blocks_traveled", "messages_sent", ...). It is the source of truth for
// counter-backed badge and quest conditions.
type UserCounter struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string    `gorm:"type:uuid;not null;uniqueIndex:uq_user_counter,priority:1" json:"user_id"`
	CounterKey string    `gorm:"not null;uniqueIndex:uq_user_counter,priority:2;index" json:"counter_key"`
	Value      int64     `gorm:"not null;default:0" json:"value"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
