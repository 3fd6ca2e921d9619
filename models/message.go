package models

import "time"

// Message 软删除只清空 body 并打时间戳，记录本身永远保留
type Message struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	ConversationID uint       `json:"conversation_id" gorm:"index"`
	UserID         uint       `json:"user_id"`
	Body           string     `json:"body" gorm:"type:text"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at"`
	DeletedAt      *time.Time `json:"deleted_at"`
}

// MessageDelivery 投递回执，联合主键保证 (message, user) 至多一条
type MessageDelivery struct {
	MessageID uint      `json:"message_id" gorm:"primaryKey;autoIncrement:false"`
	UserID    uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `json:"created_at"`
}
