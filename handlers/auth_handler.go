package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"SmartInventory/config"
	"SmartInventory/models"
	"SmartInventory/services"

	"github.com/labstack/echo/v4"
)

type AuthHandler struct {
	auth   *services.AuthService
	oauth  *services.OAuthService
	server *config.ServerConfig
	expiry time.Duration
}

func NewAuthHandler(auth *services.AuthService, oauth *services.OAuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		oauth:  oauth,
		server: &cfg.Server,
		expiry: time.Duration(cfg.Auth.TokenExpiry) * time.Hour,
	}
}

// 把JWT写进HttpOnly cookie，前端不接触令牌本体
func (h *AuthHandler) setTokenCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     "access_token",
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.expiry),
		HttpOnly: true,
		Secure:   h.server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// Signup 注册新店铺及店主账号
func (h *AuthHandler) Signup(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		ShopName string `json:"shop_name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request",
		})
	}
	if req.Email == "" || len(req.Password) < 6 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "email and a password of at least 6 characters are required",
		})
	}

	user, err := h.auth.SignupLocal(req.Email, req.Password, req.ShopName)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			return c.JSON(http.StatusConflict, map[string]string{
				"error": "email already registered",
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "signup failed",
		})
	}

	resp, err := h.auth.GenerateToken(user)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to issue token",
		})
	}
	h.setTokenCookie(c, resp.AccessToken)

	return c.JSON(http.StatusCreated, resp)
}

// Login 邮箱密码登录
func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request",
		})
	}

	user, err := h.auth.LoginLocal(req.Email, req.Password)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "invalid email or password",
		})
	}

	resp, err := h.auth.GenerateToken(user)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to issue token",
		})
	}
	h.setTokenCookie(c, resp.AccessToken)

	return c.JSON(http.StatusOK, resp)
}

// Logout 清除cookie
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, map[string]string{
		"message": "logged out",
	})
}

// Me 返回当前登录用户
func (h *AuthHandler) Me(c echo.Context) error {
	user := c.Get("user").(*models.User)
	return c.JSON(http.StatusOK, user)
}

// OAuthLogin 跳转第三方授权页，state写cookie防CSRF
func (h *AuthHandler) OAuthLogin(c echo.Context) error {
	provider := c.Param("provider")

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to generate state",
		})
	}
	state := hex.EncodeToString(buf)

	url, err := h.oauth.GetAuthURL(provider, state)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "unsupported provider",
		})
	}

	c.SetCookie(&http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   h.server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	return c.Redirect(http.StatusTemporaryRedirect, url)
}

// OAuthCallback 授权回调：校验state，换取用户信息，找到或创建账号后落cookie跳回前端
func (h *AuthHandler) OAuthCallback(c echo.Context) error {
	provider := c.Param("provider")

	stateCookie, err := c.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" || stateCookie.Value != c.QueryParam("state") {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid oauth state",
		})
	}

	code := c.QueryParam("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "missing authorization code",
		})
	}

	token, err := h.oauth.ExchangeCode(provider, code)
	if err != nil {
		log.Printf("OAuth code exchange failed: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "code exchange failed",
		})
	}

	info, err := h.oauth.GetUserInfo(provider, token)
	if err != nil {
		log.Printf("OAuth userinfo fetch failed: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "failed to fetch user info",
		})
	}

	user, err := h.auth.FindOrCreateOAuthUser(info)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to sign in",
		})
	}

	resp, err := h.auth.GenerateToken(user)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to issue token",
		})
	}
	h.setTokenCookie(c, resp.AccessToken)

	return c.Redirect(http.StatusTemporaryRedirect, fmt.Sprintf("%s/dashboard", h.server.FrontendOrigin))
}
