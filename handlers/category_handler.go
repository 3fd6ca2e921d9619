package handlers

import (
	"net/http"
	"strconv"

	"SmartInventory/models"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type CategoryHandler struct {
	db *gorm.DB
}

func NewCategoryHandler(db *gorm.DB) *CategoryHandler {
	return &CategoryHandler{db: db}
}

// GetCategories 获取本店铺全部分类
func (h *CategoryHandler) GetCategories(c echo.Context) error {
	user := c.Get("user").(*models.User)

	var categories []models.Category
	if err := h.db.Where("shop_id = ?", user.ShopID).
		Order("name ASC, id ASC").
		Find(&categories).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    500,
			"message": "获取分类失败",
			"error":   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":    200,
		"message": "success",
		"data":    categories,
	})
}

// CreateCategory 创建分类
func (h *CategoryHandler) CreateCategory(c echo.Context) error {
	user := c.Get("user").(*models.User)

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    400,
			"message": "请求参数错误",
		})
	}

	category := models.Category{
		ShopID:      user.ShopID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.db.Create(&category).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    500,
			"message": "创建分类失败",
			"error":   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":    200,
		"message": "创建成功",
		"data":    category,
	})
}

// UpdateCategory 更新分类
func (h *CategoryHandler) UpdateCategory(c echo.Context) error {
	user := c.Get("user").(*models.User)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    400,
			"message": "无效的分类ID",
		})
	}

	var category models.Category
	if err := h.db.Where("shop_id = ?", user.ShopID).First(&category, id).Error; err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"code":    404,
			"message": "分类不存在",
		})
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    400,
			"message": "请求参数错误",
		})
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}

	if err := h.db.Model(&category).Updates(updates).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    500,
			"message": "更新失败",
			"error":   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":    200,
		"message": "更新成功",
		"data":    category,
	})
}

// DeleteCategory 删除分类，分类下还有商品时拒绝
func (h *CategoryHandler) DeleteCategory(c echo.Context) error {
	user := c.Get("user").(*models.User)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    400,
			"message": "无效的分类ID",
		})
	}

	var productCount int64
	h.db.Model(&models.Product{}).
		Where("shop_id = ? AND category_id = ?", user.ShopID, id).
		Count(&productCount)
	if productCount > 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    400,
			"message": "该分类下有商品，无法删除",
		})
	}

	result := h.db.Where("shop_id = ?", user.ShopID).Delete(&models.Category{}, id)
	if result.Error != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    500,
			"message": "删除失败",
			"error":   result.Error.Error(),
		})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"code":    404,
			"message": "分类不存在",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":    200,
		"message": "删除成功",
	})
}
