package services

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"SmartInventory/config"
	"SmartInventory/models"

	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	db := newTestDB(t)
	return NewAuthService(db, &config.AuthConfig{
		JWTSecret:   "test-secret",
		TokenExpiry: 1,
	})
}

func TestSignupCreatesShopAndOwner(t *testing.T) {
	svc := newAuthService(t)

	user, err := svc.SignupLocal("Owner@Example.COM", "secret123", "")
	require.NoError(t, err)
	require.Equal(t, "owner@example.com", user.Email)
	require.Equal(t, models.RoleOwner, user.Role)
	require.NotZero(t, user.ShopID)
	require.NotNil(t, user.Shop)
	require.Equal(t, "owner's Shop", user.Shop.Name)

	// 重复注册同邮箱
	_, err = svc.SignupLocal("owner@example.com", "another", "")
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginLocal(t *testing.T) {
	svc := newAuthService(t)

	_, err := svc.SignupLocal("owner@example.com", "secret123", "My Shop")
	require.NoError(t, err)

	user, err := svc.LoginLocal("owner@example.com", "secret123")
	require.NoError(t, err)
	require.Equal(t, "owner@example.com", user.Email)

	_, err = svc.LoginLocal("owner@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.LoginLocal("nobody@example.com", "secret123")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newAuthService(t)

	user := &models.User{ID: 7, ShopID: 3, Email: "staff@example.com", Role: models.RoleStaff}
	resp, err := svc.GenerateToken(user)
	require.NoError(t, err)
	require.Equal(t, "Bearer", resp.TokenType)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, uint(7), claims.UserID)
	require.Equal(t, uint(3), claims.ShopID)
	require.Equal(t, models.RoleStaff, claims.Role)
}

func TestIdentityFromRequestSources(t *testing.T) {
	svc := newAuthService(t)

	user := &models.User{ID: 7, ShopID: 3, Email: "staff@example.com", Role: models.RoleStaff}
	resp, err := svc.GenerateToken(user)
	require.NoError(t, err)

	// Authorization header
	req := httptest.NewRequest(http.MethodGet, "/chat/ws", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	identity, err := svc.IdentityFromRequest(req)
	require.NoError(t, err)
	require.Equal(t, Identity{ID: 7, ShopID: 3, Role: models.RoleStaff}, *identity)

	// query 参数
	req = httptest.NewRequest(http.MethodGet, "/chat/ws?token="+resp.AccessToken, nil)
	identity, err = svc.IdentityFromRequest(req)
	require.NoError(t, err)
	require.Equal(t, uint(7), identity.ID)

	// cookie
	req = httptest.NewRequest(http.MethodGet, "/chat/ws", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: resp.AccessToken})
	identity, err = svc.IdentityFromRequest(req)
	require.NoError(t, err)
	require.Equal(t, uint(3), identity.ShopID)
}

func TestIdentityFromRequestRejections(t *testing.T) {
	svc := newAuthService(t)

	// 没有凭证
	req := httptest.NewRequest(http.MethodGet, "/chat/ws", nil)
	_, err := svc.IdentityFromRequest(req)
	require.ErrorIs(t, err, ErrUnauthorized)

	// 乱码token
	req = httptest.NewRequest(http.MethodGet, "/chat/ws", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	_, err = svc.IdentityFromRequest(req)
	require.ErrorIs(t, err, ErrUnauthorized)

	// 签名正确但身份残缺的载荷
	broken := &models.User{ID: 0, ShopID: 0, Email: "ghost@example.com"}
	resp, err := svc.GenerateToken(broken)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/chat/ws", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	_, err = svc.IdentityFromRequest(req)
	require.ErrorIs(t, err, ErrUnauthorized)

	// 换个密钥签的token
	other := NewAuthService(svc.Db, &config.AuthConfig{JWTSecret: "other-secret", TokenExpiry: 1})
	resp, err = other.GenerateToken(&models.User{ID: 7, ShopID: 3})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/chat/ws", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	_, err = svc.IdentityFromRequest(req)
	require.ErrorIs(t, err, ErrUnauthorized)
}
