package services

import (
	"context"
	"errors"
	"strings"

	"SmartInventory/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// 受邀成员的初始密码，首次登录后应自行修改
const DefaultMemberPassword = "Welcome123"

var (
	ErrMemberNotFound   = errors.New("member not found")
	ErrCannotTargetSelf = errors.New("you cannot target yourself")
	ErrInvalidRole      = errors.New("invalid role")
)

type TeamService struct {
	db *gorm.DB
}

func NewTeamService(db *gorm.DB) *TeamService {
	return &TeamService{db: db}
}

func (s *TeamService) ListMembers(ctx context.Context, shopID uint) ([]models.User, error) {
	var members []models.User
	err := s.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("created_at DESC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

// InviteMember 只能邀请 manager 或 staff，owner 永远只有注册开店的那一个
func (s *TeamService) InviteMember(ctx context.Context, shopID uint, email, role string) (*models.User, error) {
	if role != models.RoleManager && role != models.RoleStaff {
		return nil, ErrInvalidRole
	}

	normalized := strings.ToLower(strings.TrimSpace(email))

	var existing models.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalized).First(&existing).Error; err == nil {
		return nil, ErrEmailTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(DefaultMemberPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	member := models.User{
		ShopID:       shopID,
		Email:        normalized,
		PasswordHash: string(hashedPassword),
		Provider:     "local",
		Role:         role,
	}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		return nil, err
	}

	return &member, nil
}

func (s *TeamService) RemoveMember(ctx context.Context, shopID, actorID, memberID uint) error {
	if memberID == actorID {
		return ErrCannotTargetSelf
	}

	// owner 不可删除
	res := s.db.WithContext(ctx).
		Where("id = ? AND shop_id = ? AND role <> ?", memberID, shopID, models.RoleOwner).
		Delete(&models.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (s *TeamService) UpdateRole(ctx context.Context, shopID, actorID, memberID uint, newRole string) (*models.User, error) {
	if newRole != models.RoleManager && newRole != models.RoleStaff {
		return nil, ErrInvalidRole
	}
	if memberID == actorID {
		return nil, ErrCannotTargetSelf
	}

	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND shop_id = ? AND role <> ?", memberID, shopID, models.RoleOwner).
		Update("role", newRole)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrMemberNotFound
	}

	var member models.User
	if err := s.db.WithContext(ctx).First(&member, memberID).Error; err != nil {
		return nil, err
	}
	return &member, nil
}
