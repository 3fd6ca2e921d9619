package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"SmartInventory/redis"

	"github.com/IBM/sarama"
)

// SaleMessage POS 开单后发布的销售事件
type SaleMessage struct {
	BillID    uint    `json:"bill_id"`
	ShopID    uint    `json:"shop_id"`
	UserID    uint    `json:"user_id"`
	Total     float64 `json:"total"`
	Timestamp int64   `json:"timestamp"`
}

// SalesHandler 把销售事件折算进 Redis 的当日营业额
type SalesHandler struct {
	rdb *redis.RedisClient
}

func NewSalesHandler(rdb *redis.RedisClient) *SalesHandler {
	return &SalesHandler{rdb: rdb}
}

func (h *SalesHandler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	var sale SaleMessage

	if err := json.Unmarshal(message.Value, &sale); err != nil {
		log.Printf("Failed to unmarshal sale message: %v", err)
		return err
	}

	day := time.Unix(sale.Timestamp, 0)
	if sale.Timestamp == 0 {
		day = time.Now()
	}

	if err := h.rdb.AddDailySales(ctx, sale.ShopID, day, sale.Total); err != nil {
		log.Printf("Failed to record sale for shop %d: %v", sale.ShopID, err)
		return err
	}

	return nil
}
