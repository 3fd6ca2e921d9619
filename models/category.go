package models

import "time"

type Category struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	ShopID      uint      `json:"shop_id" gorm:"index"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
