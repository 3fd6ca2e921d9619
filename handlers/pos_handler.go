package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"SmartInventory/models"
	"SmartInventory/redis"
	"SmartInventory/services"

	"github.com/labstack/echo/v4"
)

type POSHandler struct {
	pos   *services.POSService
	redis *redis.RedisClient
}

func NewPOSHandler(pos *services.POSService, redisClient *redis.RedisClient) *POSHandler {
	return &POSHandler{pos: pos, redis: redisClient}
}

// CreateBill 收银结账，扣库存并记账单
func (h *POSHandler) CreateBill(c echo.Context) error {
	user := c.Get("user").(*models.User)

	var input services.CreateBillInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request",
		})
	}

	identity := services.Identity{ID: user.ID, ShopID: user.ShopID, Role: user.Role}
	bill, err := h.pos.CreateBill(c.Request().Context(), &identity, input)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyBill), errors.Is(err, services.ErrInvalidBillItem):
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		case errors.Is(err, services.ErrProductNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "product not found",
			})
		case errors.Is(err, services.ErrInsufficientStock):
			return c.JSON(http.StatusConflict, map[string]string{
				"error": err.Error(),
			})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "failed to create bill",
			})
		}
	}

	return c.JSON(http.StatusCreated, bill)
}

// ListBills 账单列表
func (h *POSHandler) ListBills(c echo.Context) error {
	user := c.Get("user").(*models.User)

	bills, err := h.pos.ListBills(c.Request().Context(), user.ShopID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch bills",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"bills": bills,
		"total": len(bills),
	})
}

// GetBill 账单详情
func (h *POSHandler) GetBill(c echo.Context) error {
	user := c.Get("user").(*models.User)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid bill id",
		})
	}

	bill, err := h.pos.GetBill(c.Request().Context(), user.ShopID, uint(id))
	if err != nil {
		if errors.Is(err, services.ErrBillNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "bill not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch bill",
		})
	}

	return c.JSON(http.StatusOK, bill)
}

// GetSalesSummary 当日营收，由Kafka消费端累计进Redis
func (h *POSHandler) GetSalesSummary(c echo.Context) error {
	user := c.Get("user").(*models.User)

	day := time.Now()
	if d := c.QueryParam("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "date must be YYYY-MM-DD",
			})
		}
		day = parsed
	}

	var total float64
	if h.redis != nil {
		v, err := h.redis.GetDailySales(c.Request().Context(), user.ShopID, day)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "failed to fetch sales summary",
			})
		}
		total = v
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"shop_id": user.ShopID,
		"date":    day.Format("2006-01-02"),
		"total":   total,
	})
}
