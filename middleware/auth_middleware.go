package middleware

import (
	"net/http"
	"strings"

	"SmartInventory/models"
	"SmartInventory/services"

	"github.com/labstack/echo/v4"
)

// AuthMiddleware 优先读 access_token cookie（浏览器端），其次 Authorization header
func AuthMiddleware(authService *services.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var tokenString string

			if cookie, err := c.Cookie("access_token"); err == nil && cookie.Value != "" {
				tokenString = cookie.Value
			} else {
				authHeader := c.Request().Header.Get("Authorization")
				if authHeader == "" {
					return c.JSON(http.StatusUnauthorized, map[string]string{
						"error": "missing authorization token",
					})
				}
				parts := strings.Split(authHeader, " ")
				if len(parts) != 2 || parts[0] != "Bearer" {
					return c.JSON(http.StatusUnauthorized, map[string]string{
						"error": "invalid authorization header",
					})
				}
				tokenString = parts[1]
			}

			claims, err := authService.ValidateToken(tokenString)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "invalid token",
				})
			}
			var user models.User
			if err := authService.Db.First(&user, claims.UserID).Error; err != nil {
				return c.JSON(http.StatusNotFound, map[string]string{
					"error": "user not found",
				})
			}

			c.Set("user", &user)
			return next(c)
		}
	}
}

// 角色层级：owner > manager > staff
func requireRoles(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := c.Get("user").(*models.User)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "authentication required",
				})
			}
			if !allowed[user.Role] {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "access denied: " + user.Role + " role does not have permission for this action",
				})
			}
			return next(c)
		}
	}
}

func IsOwner() echo.MiddlewareFunc {
	return requireRoles(models.RoleOwner)
}

func IsManager() echo.MiddlewareFunc {
	return requireRoles(models.RoleOwner, models.RoleManager)
}

func IsStaff() echo.MiddlewareFunc {
	return requireRoles(models.RoleOwner, models.RoleManager, models.RoleStaff)
}
