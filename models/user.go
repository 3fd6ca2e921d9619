package models

import "time"

const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ShopID       uint      `json:"shop_id" gorm:"index"`
	Email        string    `json:"email" gorm:"uniqueIndex"`
	PasswordHash string    `json:"-"`
	Provider     string    `json:"provider"` // local, google, github
	ProviderID   string    `json:"provider_id,omitempty"`
	Role         string    `json:"role"` // owner, manager, staff
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Shop         *Shop     `json:"shop,omitempty" gorm:"foreignKey:ShopID"`
}

type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        User   `json:"user"`
}
