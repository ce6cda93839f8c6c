package services

import (
	"errors"

	"polystirolhub-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountService owns account existence and external-identity resolution.
// Balance/XP mutation stays in the ledger.
type AccountService struct {
	DB *gorm.DB
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{DB: db}
}

// EnsureUser returns the user row, creating a blank active account on
// first sight (idempotent).
func (s *AccountService) EnsureUser(userID string) (*models.User, error) {
	var user models.User
	err := s.DB.Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			ID:       userID,
			IsActive: true,
			XP:       0,
			Level:    1,
			Balance:  0,
		}
		if err := s.DB.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ResolveExternal maps a platform identity (e.g. a Minecraft UUID) to the
// local user through ExternalLink. ErrAccountNotFound when unlinked.
func (s *AccountService) ResolveExternal(platform, externalID string) (string, error) {
	var link models.ExternalLink
	err := s.DB.Where("platform = ? AND external_id = ?", platform, externalID).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrAccountNotFound
	}
	if err != nil {
		return "", err
	}
	return link.UserID, nil
}

// LinkExternal attaches a platform identity to a user, ignoring duplicate
// links for the same (platform, external_id) pair.
func (s *AccountService) LinkExternal(userID, platform, externalID string, platformUsername *string) (*models.ExternalLink, error) {
	link := models.ExternalLink{
		ID:               uuid.NewString(),
		UserID:           userID,
		Platform:         platform,
		ExternalID:       externalID,
		PlatformUsername: platformUsername,
	}
	if err := s.DB.Create(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}
