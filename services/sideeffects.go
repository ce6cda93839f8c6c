package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"polystirolhub-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SideEffectService writes notification and activity-feed records.
// Everything here is fire-and-forget: failures are logged and dropped,
// they never propagate into the grant or ledger transaction that
// triggered them.
type SideEffectService struct {
	DB *gorm.DB
}

func NewSideEffectService(db *gorm.DB) *SideEffectService {
	return &SideEffectService{DB: db}
}

// Notify creates a user notification. Best-effort.
func (s *SideEffectService) Notify(userID, kind, title, message string, rewardXP, rewardBalance int64, metadata datatypes.JSONMap) {
	n := models.Notification{
		ID:            uuid.NewString(),
		UserID:        userID,
		Type:          kind,
		Title:         title,
		Message:       message,
		RewardXP:      rewardXP,
		RewardBalance: rewardBalance,
		Metadata:      metadata,
	}
	if err := s.DB.Create(&n).Error; err != nil {
		log.Printf("[SIDE_EFFECT] failed to create %s notification for user %s: %v", kind, userID, err)
	}
}

// RecordActivity creates a public feed entry. Best-effort.
func (s *SideEffectService) RecordActivity(kind models.ActivityType, title, description string, userID, serverID *string, metadata datatypes.JSONMap) {
	a := models.Activity{
		ID:          uuid.NewString(),
		Type:        kind,
		Title:       title,
		Description: description,
		UserID:      userID,
		ServerID:    serverID,
		Metadata:    metadata,
	}
	if err := s.DB.Create(&a).Error; err != nil {
		log.Printf("[SIDE_EFFECT] failed to record %s activity: %v", kind, err)
	}
}

// RecordLevelUp writes the level-up feed entry emitted by the ledger.
func (s *SideEffectService) RecordLevelUp(userID string, oldLevel, newLevel int) {
	title := fmt.Sprintf("%s reached level %d", s.displayName(userID), newLevel)
	s.RecordActivity(models.ActivityLevelUp, title, "", &userID, nil, datatypes.JSONMap{
		"old_level": oldLevel,
		"new_level": newLevel,
	})
}

// displayName resolves a username for feed titles, falling back to a
// generic label when the lookup fails.
func (s *SideEffectService) displayName(userID string) string {
	var user models.User
	if err := s.DB.Select("username").Where("id = ?", userID).First(&user).Error; err == nil && user.Username != nil {
		return *user.Username
	}
	return "Player"
}

// ListNotifications returns the user's most recent notifications.
func (s *SideEffectService) ListNotifications(userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []models.Notification
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListActivity returns the newest public feed entries.
func (s *SideEffectService) ListActivity(limit int) ([]models.Activity, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []models.Activity
	err := s.DB.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// StreamNotificationsSSE streams new notifications for the authenticated
// user as server-sent events.
func (s *SideEffectService) StreamNotificationsSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		var lastMaxCreatedAt time.Time

		var latest models.Notification
		if err := s.DB.
			Where("user_id = ?", userID).
			Order("created_at DESC").
			First(&latest).Error; err == nil {
			lastMaxCreatedAt = latest.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("SSE init error for user %s: %v", userID, err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				var fresh []models.Notification
				err := s.DB.
					Where("user_id = ?", userID).
					Where("created_at > ?", lastMaxCreatedAt).
					Order("created_at ASC").
					Find(&fresh).Error
				if err != nil {
					log.Printf("SSE query error for user %s: %v", userID, err)
					continue
				}
				if len(fresh) == 0 {
					continue
				}

				lastMaxCreatedAt = fresh[len(fresh)-1].CreatedAt

				for _, n := range fresh {
					payload, _ := json.Marshal(n)
					fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
				}

				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}
