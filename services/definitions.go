// services/definitions.go
package services

import (
	"errors"
	"log"

	"polystirolhub-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// DefinitionService is the admin CRUD surface for badge and quest
// definitions. Validation covers required fields and registry contracts
// (target_value when the condition handler demands one); everything else
// is the admin's business.
type DefinitionService struct {
	DB       *gorm.DB
	Registry *ConditionRegistry
}

func NewDefinitionService(db *gorm.DB, registry *ConditionRegistry) *DefinitionService {
	return &DefinitionService{DB: db, Registry: registry}
}

// ListConditions exposes the registry metadata so admins can see which
// condition keys exist and what they require.
func (s *DefinitionService) ListConditions(c *fiber.Ctx) error {
	return c.JSON(s.Registry.Describe())
}

// --- badges ---

type badgeRequest struct {
	Name          string           `json:"name"`
	Code          string           `json:"code"`
	Description   *string          `json:"description"`
	ImageURL      string           `json:"image_url"`
	UnicodeChar   *string          `json:"unicode_char"`
	BadgeType     models.BadgeType `json:"badge_type"`
	ConditionKey  string           `json:"condition_key"`
	TargetValue   *int64           `json:"target_value"`
	RewardXP      int64            `json:"reward_xp"`
	RewardBalance int64            `json:"reward_balance"`
	AutoCheck     bool             `json:"auto_check"`
	IsActive      *bool            `json:"is_active"`
}

func (s *DefinitionService) validateBadge(req *badgeRequest) string {
	if req.Name == "" {
		return "name is required"
	}
	if req.ImageURL == "" {
		return "image_url is required"
	}
	if req.ConditionKey == "" {
		return "condition_key is required"
	}
	switch req.BadgeType {
	case models.BadgeTypePermanent, models.BadgeTypeEvent, models.BadgeTypeTemporary:
	case "":
		req.BadgeType = models.BadgeTypePermanent
	default:
		return "badge_type must be one of permanent, event, temporary"
	}
	if req.RewardXP < 0 || req.RewardBalance < 0 {
		return "rewards must be non-negative"
	}
	if s.Registry.RequiresTargetValue(req.ConditionKey) && req.TargetValue == nil {
		return "target_value is required for condition " + req.ConditionKey
	}
	if req.TargetValue != nil && *req.TargetValue <= 0 {
		return "target_value must be positive"
	}
	info := s.Registry.Resolve(req.ConditionKey).Info()
	if info.RequiresAutoCheck && !req.AutoCheck {
		return "condition " + req.ConditionKey + " is periodic and requires auto_check"
	}
	return ""
}

func (s *DefinitionService) CreateBadge(c *fiber.Ctx) error {
	var req badgeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	if msg := s.validateBadge(&req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	code := req.Code
	if code == "" {
		code = slug.Make(req.Name)
	}
	badge := models.Badge{
		ID:            uuid.NewString(),
		Code:          code,
		Name:          req.Name,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		UnicodeChar:   req.UnicodeChar,
		BadgeType:     req.BadgeType,
		ConditionKey:  req.ConditionKey,
		TargetValue:   req.TargetValue,
		RewardXP:      req.RewardXP,
		RewardBalance: req.RewardBalance,
		AutoCheck:     req.AutoCheck,
		IsActive:      true,
	}
	if req.IsActive != nil {
		badge.IsActive = *req.IsActive
	}
	if err := s.DB.Create(&badge).Error; err != nil {
		log.Printf("DB error creating badge: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create badge"})
	}
	return c.Status(fiber.StatusCreated).JSON(badge)
}

func (s *DefinitionService) UpdateBadge(c *fiber.Ctx) error {
	id := c.Params("id")
	var badge models.Badge
	if err := s.DB.Where("id = ?", id).First(&badge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "badge not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	var req badgeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	if msg := s.validateBadge(&req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	badge.Name = req.Name
	badge.Description = req.Description
	badge.ImageURL = req.ImageURL
	badge.UnicodeChar = req.UnicodeChar
	badge.BadgeType = req.BadgeType
	badge.ConditionKey = req.ConditionKey
	badge.TargetValue = req.TargetValue
	badge.RewardXP = req.RewardXP
	badge.RewardBalance = req.RewardBalance
	badge.AutoCheck = req.AutoCheck
	if req.Code != "" {
		badge.Code = req.Code
	}
	if req.IsActive != nil {
		badge.IsActive = *req.IsActive
	}
	if err := s.DB.Save(&badge).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update badge"})
	}
	return c.JSON(badge)
}

func (s *DefinitionService) DeleteBadge(c *fiber.Ctx) error {
	id := c.Params("id")
	res := s.DB.Where("id = ?", id).Delete(&models.Badge{})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete badge"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "badge not found"})
	}
	return c.JSON(fiber.Map{"message": "badge deleted"})
}

func (s *DefinitionService) ListBadges(c *fiber.Ctx) error {
	var badges []models.Badge
	if err := s.DB.Order("created_at DESC").Find(&badges).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list badges"})
	}
	return c.JSON(badges)
}

// --- quests ---

type questRequest struct {
	Name          string           `json:"name"`
	Code          string           `json:"code"`
	Description   *string          `json:"description"`
	QuestType     models.QuestType `json:"quest_type"`
	ConditionKey  string           `json:"condition_key"`
	TargetValue   int64            `json:"target_value"`
	RewardXP      int64            `json:"reward_xp"`
	RewardBalance int64            `json:"reward_balance"`
	IsActive      *bool            `json:"is_active"`
}

func validateQuest(req *questRequest) string {
	if req.Name == "" {
		return "name is required"
	}
	if req.ConditionKey == "" {
		return "condition_key is required"
	}
	if req.QuestType != models.QuestTypeDaily && req.QuestType != models.QuestTypeAchievement {
		return "quest_type must be daily or achievement"
	}
	if req.TargetValue <= 0 {
		return "target_value must be positive"
	}
	if req.RewardXP < 0 || req.RewardBalance < 0 {
		return "rewards must be non-negative"
	}
	return ""
}

func (s *DefinitionService) CreateQuest(c *fiber.Ctx) error {
	var req questRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	if msg := validateQuest(&req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	code := req.Code
	if code == "" {
		code = slug.Make(req.Name)
	}
	quest := models.Quest{
		ID:            uuid.NewString(),
		Code:          code,
		Name:          req.Name,
		Description:   req.Description,
		QuestType:     req.QuestType,
		ConditionKey:  req.ConditionKey,
		TargetValue:   req.TargetValue,
		RewardXP:      req.RewardXP,
		RewardBalance: req.RewardBalance,
		IsActive:      true,
	}
	if req.IsActive != nil {
		quest.IsActive = *req.IsActive
	}
	if err := s.DB.Create(&quest).Error; err != nil {
		log.Printf("DB error creating quest: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create quest"})
	}
	return c.Status(fiber.StatusCreated).JSON(quest)
}

func (s *DefinitionService) UpdateQuest(c *fiber.Ctx) error {
	id := c.Params("id")
	var quest models.Quest
	if err := s.DB.Where("id = ?", id).First(&quest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "quest not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	var req questRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	if msg := validateQuest(&req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	quest.Name = req.Name
	quest.Description = req.Description
	quest.QuestType = req.QuestType
	quest.ConditionKey = req.ConditionKey
	quest.TargetValue = req.TargetValue
	quest.RewardXP = req.RewardXP
	quest.RewardBalance = req.RewardBalance
	if req.Code != "" {
		quest.Code = req.Code
	}
	if req.IsActive != nil {
		quest.IsActive = *req.IsActive
	}
	if err := s.DB.Save(&quest).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update quest"})
	}
	return c.JSON(quest)
}

func (s *DefinitionService) DeleteQuest(c *fiber.Ctx) error {
	id := c.Params("id")
	res := s.DB.Where("id = ?", id).Delete(&models.Quest{})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete quest"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "quest not found"})
	}
	return c.JSON(fiber.Map{"message": "quest deleted"})
}

func (s *DefinitionService) ListQuests(c *fiber.Ctx) error {
	var quests []models.Quest
	if err := s.DB.Order("created_at DESC").Find(&quests).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list quests"})
	}
	return c.JSON(quests)
}
