package services

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"SmartInventory/config"
	"SmartInventory/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("this email is already registered")
	ErrUnauthorized       = errors.New("unauthorized")
)

type AuthService struct {
	Db          *gorm.DB
	jwtSecret   []byte
	tokenExpiry time.Duration
}

func NewAuthService(db *gorm.DB, config *config.AuthConfig) *AuthService {
	return &AuthService{
		Db:          db,
		jwtSecret:   []byte(config.JWTSecret),
		tokenExpiry: time.Duration(config.TokenExpiry) * time.Hour,
	}
}

type Claims struct {
	UserID uint   `json:"user_id"`
	ShopID uint   `json:"shop_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity 一条连接生命周期内不变的已认证主体
type Identity struct {
	ID     uint
	ShopID uint
	Role   string
}

func (s *AuthService) GenerateToken(user *models.User) (*models.AuthResponse, error) {
	claims := &Claims{
		UserID: user.ID,
		ShopID: user.ShopID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		AccessToken: tokenString,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenExpiry.Seconds()),
		User:        *user,
	}, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// IdentityFromRequest 校验 WebSocket 握手携带的凭证
// 依次尝试 Authorization header、token query 参数、access_token cookie，
// 签名或载荷不合法的一律拒绝接入
func (s *AuthService) IdentityFromRequest(r *http.Request) (*Identity, error) {
	var tokenString string

	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return nil, ErrUnauthorized
		}
		tokenString = parts[1]
	} else if t := r.URL.Query().Get("token"); t != "" {
		tokenString = strings.TrimSpace(strings.TrimPrefix(t, "Bearer "))
	} else if cookie, err := r.Cookie("access_token"); err == nil {
		tokenString = cookie.Value
	}

	if tokenString == "" {
		return nil, ErrUnauthorized
	}

	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, ErrUnauthorized
	}

	// 载荷必须能还原出完整身份
	if claims.UserID == 0 || claims.ShopID == 0 {
		return nil, ErrUnauthorized
	}

	return &Identity{
		ID:     claims.UserID,
		ShopID: claims.ShopID,
		Role:   claims.Role,
	}, nil
}

// SignupLocal 注册即开店：店铺和 owner 用户在同一事务里创建
func (s *AuthService) SignupLocal(email, password, shopName string) (*models.User, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))

	var existing models.User
	if err := s.Db.Where("email = ?", normalized).First(&existing).Error; err == nil {
		return nil, ErrEmailTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	if shopName == "" {
		shopName = strings.Split(normalized, "@")[0] + "'s Shop"
	}

	var user models.User
	err = s.Db.Transaction(func(tx *gorm.DB) error {
		shop := models.Shop{Name: shopName}
		if err := tx.Create(&shop).Error; err != nil {
			return err
		}
		user = models.User{
			ShopID:       shop.ID,
			Email:        normalized,
			PasswordHash: string(hashedPassword),
			Provider:     "local",
			Role:         models.RoleOwner,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		user.Shop = &shop
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *AuthService) LoginLocal(email, password string) (*models.User, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))

	var user models.User
	if err := s.Db.Preload("Shop").Where("email = ?", normalized).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.PasswordHash == "" {
		// OAuth 账号没有本地密码
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

func (s *AuthService) FindOrCreateOAuthUser(userInfo *OAuthUserInfo) (*models.User, error) {
	var user models.User

	// Try to find existing user
	err := s.Db.Preload("Shop").
		Where("provider = ? AND provider_id = ?", userInfo.Provider, userInfo.ID).
		First(&user).Error
	if err == nil {
		return &user, nil
	}

	// 同邮箱的本地账号直接绑定
	normalized := strings.ToLower(strings.TrimSpace(userInfo.Email))
	if normalized != "" {
		if err := s.Db.Preload("Shop").Where("email = ?", normalized).First(&user).Error; err == nil {
			user.Provider = userInfo.Provider
			user.ProviderID = userInfo.ID
			s.Db.Save(&user)
			return &user, nil
		}
	}

	// 新用户：开店并创建 owner
	createErr := s.Db.Transaction(func(tx *gorm.DB) error {
		shopName := userInfo.Name
		if shopName == "" {
			shopName = strings.Split(normalized, "@")[0]
		}
		shop := models.Shop{Name: shopName + "'s Shop"}
		if err := tx.Create(&shop).Error; err != nil {
			return err
		}
		user = models.User{
			ShopID:     shop.ID,
			Email:      normalized,
			Provider:   userInfo.Provider,
			ProviderID: userInfo.ID,
			Role:       models.RoleOwner,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		user.Shop = &shop
		return nil
	})
	if createErr != nil {
		return nil, createErr
	}

	return &user, nil
}
