package models

import "time"

type Bill struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	ShopID        uint       `json:"shop_id" gorm:"index"`
	UserID        uint       `json:"user_id"`
	Subtotal      float64    `json:"subtotal"`
	Tax           float64    `json:"tax"`
	Discount      float64    `json:"discount"`
	Total         float64    `json:"total"`
	PaymentMethod string     `json:"payment_method" gorm:"default:'cash'"`
	CreatedAt     time.Time  `json:"created_at"`
	Items         []BillItem `json:"items,omitempty" gorm:"foreignKey:BillID"`
}

type BillItem struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	BillID      uint    `json:"bill_id" gorm:"index"`
	ProductID   uint    `json:"product_id"`
	ProductName string  `json:"product_name"`
	SKU         *string `json:"sku"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
}
