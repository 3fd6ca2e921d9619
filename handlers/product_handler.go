package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"SmartInventory/models"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type ProductHandler struct {
	db *gorm.DB
}

func NewProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{db: db}
}

// 校验目标分类属于本店铺
func (h *ProductHandler) categoryBelongsToShop(shopID uint, categoryID *uint) (bool, error) {
	if categoryID == nil {
		return true, nil
	}
	var count int64
	err := h.db.Model(&models.Category{}).
		Where("id = ? AND shop_id = ?", *categoryID, shopID).
		Count(&count).Error
	return count > 0, err
}

// GetProducts 获取商品列表，支持按分类和关键词过滤
func (h *ProductHandler) GetProducts(c echo.Context) error {
	user := c.Get("user").(*models.User)

	query := h.db.Preload("Category").Where("shop_id = ?", user.ShopID)

	if categoryID := c.QueryParam("category_id"); categoryID != "" {
		query = query.Where("category_id = ?", categoryID)
	}
	if search := strings.TrimSpace(c.QueryParam("search")); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("name LIKE ? OR sku LIKE ?", pattern, pattern)
	}

	var products []models.Product
	if err := query.Order("name ASC, id ASC").Find(&products).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    500,
			"message": "获取商品失败",
			"error":   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":    200,
		"message": "success",
		"data":    products,
	})
}

// GetProductByID 商品详情
func (h *ProductHandler) GetProductByID(c echo.Context) error {
	user := c.Get("user").(*models.User)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    400,
			"message": "无效的商品ID",
		})
	}

	var product models.Product
	if err := h.db.Preload("Category").
		Where("shop_id = ?", user.ShopID).
		First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"code":    404,
				"message": "商品不存在",
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    500,
			"message": "获取商品失败",
			"error":   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":    200,
		"message": "success",
		"data":    product,
	})
}

type productRequest struct {
	Name          string  `json:"name"`
	SKU           *string `json:"sku"`
	CategoryID    *uint   `json:"category_id"`
	Price         float64 `json:"price"`
	StockQuantity *int    `json:"stock_quantity"`
	Description   string  `json:"description"`
	ImageURL      string  `json:"image_url"`
}

// CreateProduct 创建商品，SKU在店铺内唯一
func (h *ProductHandler) CreateProduct(c echo.Context) error {
	user := c.Get("user").(*models.User)

	var req productRequest
	if err := c.Bind(&req); err != nil || req.Name == "" || req.Price < 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    400,
			"message": "请求参数错误",
		})
	}

	ok, err := h.categoryBelongsToShop(user.ShopID, req.CategoryID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    500,
			"message": "创建商品失败",
			"error":   err.Error(),
		})
	}
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    400,
			"message": "分类不存在",
		})
	}

	// 空字符串SKU按未填处理，避免撞唯一索引
	if req.SKU != nil && strings.TrimSpace(*req.SKU) == "" {
		req.SKU = nil
	}
	if req.SKU != nil {
		var count int64
		h.db.Model(&models.Product{}).
			Where("shop_id = ? AND sku = ?", user.ShopID, *req.SKU).
			Count(&count)
		if count > 0 {
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"code":    409,
				"message": "SKU已存在",
			})
		}
	}

	stock := 0
	if req.StockQuantity != nil {
		stock = *req.StockQuantity
	}
	product := models.Product{
		ShopID:        user.ShopID,
		CategoryID:    req.CategoryID,
		Name:          req.Name,
		SKU:           req.SKU,
		Price:         req.Price,
		StockQuantity: stock,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
	}
	if err := h.db.Create(&product).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    500,
			"message": "创建商品失败",
			"error":   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":    200,
		"message": "创建成功",
		"data":    product,
	})
}

// UpdateProduct 更新商品
func (h *ProductHandler) UpdateProduct(c echo.Context) error {
	user := c.Get("user").(*models.User)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    400,
			"message": "无效的商品ID",
		})
	}

	var product models.Product
	if err := h.db.Where("shop_id = ?", user.ShopID).First(&product, id).Error; err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"code":    404,
			"message": "商品不存在",
		})
	}

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    400,
			"message": "请求参数错误",
		})
	}

	if req.CategoryID != nil {
		ok, err := h.categoryBelongsToShop(user.ShopID, req.CategoryID)
		if err != nil || !ok {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"code":    400,
				"message": "分类不存在",
			})
		}
	}

	if req.SKU != nil && strings.TrimSpace(*req.SKU) == "" {
		req.SKU = nil
	}
	if req.SKU != nil {
		var count int64
		h.db.Model(&models.Product{}).
			Where("shop_id = ? AND sku = ? AND id <> ?", user.ShopID, *req.SKU, product.ID).
			Count(&count)
		if count > 0 {
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"code":    409,
				"message": "SKU已存在",
			})
		}
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.SKU != nil {
		updates["sku"] = req.SKU
	}
	if req.CategoryID != nil {
		updates["category_id"] = req.CategoryID
	}
	if req.Price > 0 {
		updates["price"] = req.Price
	}
	if req.StockQuantity != nil {
		updates["stock_quantity"] = *req.StockQuantity
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.ImageURL != "" {
		updates["image_url"] = req.ImageURL
	}

	if err := h.db.Model(&product).Updates(updates).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    500,
			"message": "更新失败",
			"error":   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":    200,
		"message": "更新成功",
		"data":    product,
	})
}

// DeleteProduct 删除商品
func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	user := c.Get("user").(*models.User)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    400,
			"message": "无效的商品ID",
		})
	}

	result := h.db.Where("shop_id = ?", user.ShopID).Delete(&models.Product{}, id)
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
			"message": "商品不存在",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":    200,
		"message": "删除成功",
	})
}
