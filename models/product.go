package models

import "time"

type Product struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ShopID        uint      `json:"shop_id" gorm:"index;uniqueIndex:idx_shop_sku"`
	CategoryID    *uint     `json:"category_id"`
	Name          string    `json:"name"`
	SKU           *string   `json:"sku" gorm:"uniqueIndex:idx_shop_sku"`
	Price         float64   `json:"price"`
	StockQuantity int       `json:"stock_quantity"`
	Description   string    `json:"description"`
	ImageURL      string    `json:"image_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	// 关联
	Category *Category `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
}

// StockMovement 记录每次库存变动（POS 出库为负数）
type StockMovement struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ShopID         uint      `json:"shop_id" gorm:"index"`
	ProductID      uint      `json:"product_id" gorm:"index"`
	QuantityChange int       `json:"quantity_change"`
	Reason         string    `json:"reason"`
	Notes          string    `json:"notes"`
	UserID         uint      `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
}
