package services

import (
	"context"
	"testing"

	"SmartInventory/models"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func seedTeam(t *testing.T, db *gorm.DB) (owner, staff models.User) {
	t.Helper()

	shop := models.Shop{Name: "Corner Store"}
	require.NoError(t, db.Create(&shop).Error)
	owner = models.User{ShopID: shop.ID, Email: "owner@corner.test", Role: models.RoleOwner}
	staff = models.User{ShopID: shop.ID, Email: "staff@corner.test", Role: models.RoleStaff}
	require.NoError(t, db.Create(&owner).Error)
	require.NoError(t, db.Create(&staff).Error)
	return owner, staff
}

func TestInviteMember(t *testing.T) {
	db := newTestDB(t)
	svc := NewTeamService(db)
	owner, _ := seedTeam(t, db)

	member, err := svc.InviteMember(context.Background(), owner.ShopID, "New@Corner.Test", models.RoleManager)
	require.NoError(t, err)
	require.Equal(t, "new@corner.test", member.Email)
	require.Equal(t, models.RoleManager, member.Role)
	require.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(member.PasswordHash), []byte(DefaultMemberPassword)))

	// owner 角色不可邀请
	_, err = svc.InviteMember(context.Background(), owner.ShopID, "boss@corner.test", models.RoleOwner)
	require.ErrorIs(t, err, ErrInvalidRole)

	// 邮箱查重
	_, err = svc.InviteMember(context.Background(), owner.ShopID, "staff@corner.test", models.RoleStaff)
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRemoveMember(t *testing.T) {
	db := newTestDB(t)
	svc := NewTeamService(db)
	owner, staff := seedTeam(t, db)

	require.ErrorIs(t, svc.RemoveMember(context.Background(), owner.ShopID, owner.ID, owner.ID),
		ErrCannotTargetSelf)

	// owner 永远删不掉
	require.ErrorIs(t, svc.RemoveMember(context.Background(), owner.ShopID, staff.ID, owner.ID),
		ErrMemberNotFound)

	require.NoError(t, svc.RemoveMember(context.Background(), owner.ShopID, owner.ID, staff.ID))

	var count int64
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", staff.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestUpdateRole(t *testing.T) {
	db := newTestDB(t)
	svc := NewTeamService(db)
	owner, staff := seedTeam(t, db)

	member, err := svc.UpdateRole(context.Background(), owner.ShopID, owner.ID, staff.ID, models.RoleManager)
	require.NoError(t, err)
	require.Equal(t, models.RoleManager, member.Role)

	_, err = svc.UpdateRole(context.Background(), owner.ShopID, owner.ID, staff.ID, "admin")
	require.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.UpdateRole(context.Background(), owner.ShopID, owner.ID, owner.ID, models.RoleManager)
	require.ErrorIs(t, err, ErrCannotTargetSelf)

	// 降级 owner 同样不命中
	_, err = svc.UpdateRole(context.Background(), owner.ShopID, staff.ID, owner.ID, models.RoleStaff)
	require.ErrorIs(t, err, ErrMemberNotFound)
}
