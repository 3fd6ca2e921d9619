package models

import "time"

type Conversation struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	ShopID        uint       `json:"shop_id" gorm:"index"`
	Title         string     `json:"title"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ConversationMember 既是成员表也是授权表：没有这行记录就不能读写该会话
type ConversationMember struct {
	ConversationID uint       `json:"conversation_id" gorm:"primaryKey;autoIncrement:false"`
	UserID         uint       `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	LastReadAt     *time.Time `json:"last_read_at"`
	CreatedAt      time.Time  `json:"created_at"`
}
