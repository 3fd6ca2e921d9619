package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"SmartInventory/models"
	"SmartInventory/services"

	"github.com/labstack/echo/v4"
)

type TeamHandler struct {
	team *services.TeamService
}

func NewTeamHandler(team *services.TeamService) *TeamHandler {
	return &TeamHandler{team: team}
}

// ListMembers 本店铺成员列表
func (h *TeamHandler) ListMembers(c echo.Context) error {
	user := c.Get("user").(*models.User)

	members, err := h.team.ListMembers(c.Request().Context(), user.ShopID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch members",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"members": members,
		"total":   len(members),
	})
}

// InviteMember 邀请成员，仅店主可用（路由层限制）
func (h *TeamHandler) InviteMember(c echo.Context) error {
	user := c.Get("user").(*models.User)

	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request",
		})
	}

	member, err := h.team.InviteMember(c.Request().Context(), user.ShopID, req.Email, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRole):
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "role must be manager or staff",
			})
		case errors.Is(err, services.ErrEmailTaken):
			return c.JSON(http.StatusConflict, map[string]string{
				"error": "email already registered",
			})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "failed to invite member",
			})
		}
	}

	return c.JSON(http.StatusCreated, member)
}

// RemoveMember 移除成员，不能移除自己或店主
func (h *TeamHandler) RemoveMember(c echo.Context) error {
	user := c.Get("user").(*models.User)

	memberID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid member id",
		})
	}

	err = h.team.RemoveMember(c.Request().Context(), user.ShopID, user.ID, uint(memberID))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCannotTargetSelf):
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "cannot remove yourself",
			})
		case errors.Is(err, services.ErrMemberNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "member not found",
			})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "failed to remove member",
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "member removed",
	})
}

// UpdateRole 调整成员角色
func (h *TeamHandler) UpdateRole(c echo.Context) error {
	user := c.Get("user").(*models.User)

	memberID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid member id",
		})
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request",
		})
	}

	member, err := h.team.UpdateRole(c.Request().Context(), user.ShopID, user.ID, uint(memberID), req.Role)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRole):
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "role must be manager or staff",
			})
		case errors.Is(err, services.ErrCannotTargetSelf):
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "cannot change your own role",
			})
		case errors.Is(err, services.ErrMemberNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "member not found",
			})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "failed to update role",
			})
		}
	}

	return c.JSON(http.StatusOK, member)
}
