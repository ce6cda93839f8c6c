package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"polystirolhub-backend/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBadgeNotFound = errors.New("badge not found")
	// ErrAlreadyGranted guards the manual award path; the uniqueness
	// constraint prevents it from ever firing in normal flow.
	ErrAlreadyGranted = errors.New("badge already granted")

	errGrantConflict = errors.New("concurrent grant insert")
)

// DefaultExtendWindow is how far a temporary badge's expiry is pushed on
// each qualifying periodic pass.
const DefaultExtendWindow = time.Hour

// BadgeService is the grant manager: it idempotently creates or extends
// badge grant records, paying the reward through the ledger exactly once
// per first-time grant.
type BadgeService struct {
	DB           *gorm.DB
	Ledger       *LedgerService
	Registry     *ConditionRegistry
	SideEffects  *SideEffectService
	ExtendWindow time.Duration
}

func NewBadgeService(db *gorm.DB, ledger *LedgerService, registry *ConditionRegistry, effects *SideEffectService) *BadgeService {
	return &BadgeService{
		DB:           db,
		Ledger:       ledger,
		Registry:     registry,
		SideEffects:  effects,
		ExtendWindow: DefaultExtendWindow,
	}
}

// AwardOrExtend moves a (user, badge) pair through the grant state machine:
//
//	no grant               -> grant + pay reward
//	active temporary grant -> push expires_at forward, no reward
//	active permanent grant -> no-op
//	expired grant          -> re-issue, no reward
//
// Safe under concurrent calls for the same pair: the uniqueness constraint
// plus one retry resolves races to a single grant and a single payment.
func (s *BadgeService) AwardOrExtend(userID, badgeID string) (*models.UserBadge, error) {
	grant, firstTime, err := s.awardOrExtendOnce(userID, badgeID)
	if errors.Is(err, errGrantConflict) {
		// Lost the insert race; the winner's grant exists now, so this
		// pass resolves to extend/no-op.
		grant, firstTime, err = s.awardOrExtendOnce(userID, badgeID)
	}
	if err != nil {
		return nil, err
	}
	if firstTime {
		s.announceGrant(userID, badgeID)
	}
	return grant, nil
}

func (s *BadgeService) awardOrExtendOnce(userID, badgeID string) (*models.UserBadge, bool, error) {
	var badge models.Badge
	if err := s.DB.Where("id = ?", badgeID).First(&badge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrBadgeNotFound
		}
		return nil, false, err
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if badge.BadgeType == models.BadgeTypeTemporary {
		t := now.Add(s.ExtendWindow)
		expiresAt = &t
	}

	var grant models.UserBadge
	var firstTime bool
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		firstTime = false
		var existing models.UserBadge
		err := tx.Where("user_id = ? AND badge_id = ?", userID, badgeID).First(&existing).Error
		switch {
		case err == nil:
			if existing.ExpiresAt == nil || existing.ExpiresAt.After(now) {
				// Active grant: extend temporaries, leave the rest alone.
				if badge.BadgeType == models.BadgeTypeTemporary && existing.ExpiresAt != nil {
					if err := tx.Model(&existing).Update("expires_at", expiresAt).Error; err != nil {
						return fmt.Errorf("failed to extend badge grant: %w", err)
					}
					existing.ExpiresAt = expiresAt
					log.Printf("[GRANTS] extended badge %s for user %s until %s", badgeID, userID, expiresAt)
				}
				grant = existing
				return nil
			}
			// Expired grant: fresh lifecycle, but the reward was already
			// paid once, so only the record is refreshed.
			updates := map[string]interface{}{
				"received_at": now,
				"expires_at":  expiresAt,
			}
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to re-issue expired grant: %w", err)
			}
			existing.ReceivedAt = now
			existing.ExpiresAt = expiresAt
			grant = existing
			log.Printf("[GRANTS] re-issued expired badge %s for user %s", badgeID, userID)
			return nil

		case errors.Is(err, gorm.ErrRecordNotFound):
			// First-time grant: reward payment and grant insert commit or
			// roll back together.
			if badge.RewardXP > 0 || badge.RewardBalance > 0 {
				if _, err := s.Ledger.CreditTx(tx, userID, badge.RewardXP, badge.RewardBalance); err != nil {
					return fmt.Errorf("failed to pay badge reward: %w", err)
				}
			}
			grant = models.UserBadge{
				ID:         uuid.NewString(),
				UserID:     userID,
				BadgeID:    badgeID,
				ReceivedAt: now,
				ExpiresAt:  expiresAt,
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
				DoNothing: true,
			}).Create(&grant)
			if res.Error != nil {
				return fmt.Errorf("failed to insert badge grant: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				// A concurrent call inserted first; abort so the reward
				// credit rolls back with us.
				return errGrantConflict
			}
			firstTime = true
			return nil

		default:
			return err
		}
	})
	if err != nil {
		return nil, false, err
	}
	return &grant, firstTime, nil
}

// Award is the manual administrative path: it refuses when an active grant
// already exists instead of silently extending.
func (s *BadgeService) Award(userID, badgeID string) (*models.UserBadge, error) {
	now := time.Now().UTC()
	var existing models.UserBadge
	err := s.DB.Where("user_id = ? AND badge_id = ?", userID, badgeID).First(&existing).Error
	if err == nil && (existing.ExpiresAt == nil || existing.ExpiresAt.After(now)) {
		return nil, ErrAlreadyGranted
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return s.AwardOrExtend(userID, badgeID)
}

// ListActiveBadges returns the user's grants that have not expired.
func (s *BadgeService) ListActiveBadges(userID string) ([]models.UserBadge, error) {
	now := time.Now().UTC()
	var grants []models.UserBadge
	err := s.DB.Preload("Badge").
		Where("user_id = ?", userID).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("received_at DESC").
		Find(&grants).Error
	return grants, err
}

// CheckPeriodicBadges is the hourly re-evaluation pass: for every enabled
// auto-check badge, select the condition's current subject and award or
// extend for that single user. One badge failing never aborts the rest.
func (s *BadgeService) CheckPeriodicBadges() {
	var badges []models.Badge
	if err := s.DB.Where("auto_check = ? AND is_active = ?", true, true).Find(&badges).Error; err != nil {
		log.Printf("[PERIODIC] failed to load auto-check badges: %v", err)
		return
	}
	log.Printf("[PERIODIC] checking %d periodic badges", len(badges))

	for _, badge := range badges {
		handler := s.Registry.Resolve(badge.ConditionKey)
		selector, ok := handler.(SubjectSelector)
		if !ok {
			log.Printf("[PERIODIC] badge %s (%s): %v: %s", badge.ID, badge.Name, ErrHandlerNotFound, badge.ConditionKey)
			continue
		}

		subject, err := selector.SelectSubject(s.DB)
		if err != nil {
			log.Printf("[PERIODIC] badge %s (%s): subject selection failed: %v", badge.ID, badge.Name, err)
			continue
		}
		if subject == nil {
			log.Printf("[PERIODIC] badge %s (%s): no eligible subject", badge.ID, badge.Name)
			continue
		}

		if _, err := s.AwardOrExtend(subject.ID, badge.ID); err != nil {
			log.Printf("[PERIODIC] badge %s (%s): award/extend for user %s failed: %v", badge.ID, badge.Name, subject.ID, err)
		}
	}
}

func (s *BadgeService) announceGrant(userID, badgeID string) {
	if s.SideEffects == nil {
		return
	}
	var badge models.Badge
	if err := s.DB.Where("id = ?", badgeID).First(&badge).Error; err != nil {
		log.Printf("[GRANTS] failed to load badge %s for announcement: %v", badgeID, err)
		return
	}
	meta := datatypes.JSONMap{
		"badge_id":   badge.ID,
		"badge_name": badge.Name,
		"badge_type": string(badge.BadgeType),
	}
	s.SideEffects.Notify(userID, "badge_earned", "New badge!", badge.Name, badge.RewardXP, badge.RewardBalance, meta)
	title := fmt.Sprintf("%s earned a badge", s.SideEffects.displayName(userID))
	s.SideEffects.RecordActivity(models.ActivityBadgeEarned, title, "Badge: "+badge.Name, &userID, nil, meta)
}
