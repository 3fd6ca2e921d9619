package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"SmartInventory/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotMember = errors.New("not a conversation member")

// ChatService 聊天读写的一致性核心：消息、投递回执、会话新鲜度、已读状态
// 每个操作都是一个事务，时间戳一律取服务端时钟
type ChatService struct {
	db *gorm.DB
}

func NewChatService(db *gorm.DB) *ChatService {
	return &ChatService{db: db}
}

// IsMember 会话成员资格检查，所有聊天动作的授权依据
func (s *ChatService) IsMember(ctx context.Context, conversationID, userID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// JoinConversation 进房补投：找出别人发的、还没给该用户建回执的消息，批量补建
// 回执插入用 ON CONFLICT DO NOTHING，和并发的 PostMessage 撞上也不会重复
// 返回本次补投的消息 ID（可能为空），非成员返回 ErrNotMember
func (s *ChatService) JoinConversation(ctx context.Context, conversationID, userID uint) ([]uint, error) {
	var ids []uint

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member int64
		if err := tx.Model(&models.ConversationMember{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Count(&member).Error; err != nil {
			return err
		}
		if member == 0 {
			return ErrNotMember
		}

		if err := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND user_id <> ?", conversationID, userID).
			Where("NOT EXISTS (SELECT 1 FROM message_deliveries md WHERE md.message_id = messages.id AND md.user_id = ?)", userID).
			Order("id ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}

		if len(ids) == 0 {
			return nil
		}

		receipts := make([]models.MessageDelivery, 0, len(ids))
		for _, id := range ids {
			receipts = append(receipts, models.MessageDelivery{MessageID: id, UserID: userID})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipts).Error
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// PostMessage 发消息的复合写入，必须整体成功或整体失败：
// 消息行、其他成员的投递回执、会话 last_message_at、发送者自己的 last_read_at
// 空白 body 返回 (nil, nil)，非成员返回 ErrNotMember
func (s *ChatService) PostMessage(ctx context.Context, identity *Identity, conversationID uint, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}

	var msg models.Message

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member int64
		if err := tx.Model(&models.ConversationMember{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, identity.ID).
			Count(&member).Error; err != nil {
			return err
		}
		if member == 0 {
			return ErrNotMember
		}

		now := time.Now()
		msg = models.Message{
			ConversationID: conversationID,
			UserID:         identity.ID,
			Body:           body,
			CreatedAt:      now,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		// 除发送者外的全部成员各建一条回执
		var recipientIDs []uint
		if err := tx.Model(&models.ConversationMember{}).
			Where("conversation_id = ? AND user_id <> ?", conversationID, identity.ID).
			Pluck("user_id", &recipientIDs).Error; err != nil {
			return err
		}
		if len(recipientIDs) > 0 {
			receipts := make([]models.MessageDelivery, 0, len(recipientIDs))
			for _, uid := range recipientIDs {
				receipts = append(receipts, models.MessageDelivery{MessageID: msg.ID, UserID: uid})
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipts).Error; err != nil {
				return err
			}
		}

		// shop_id 一起限定，会话不属于本店铺时不改任何东西
		if err := tx.Model(&models.Conversation{}).
			Where("id = ? AND shop_id = ?", conversationID, identity.ShopID).
			Update("last_message_at", now).Error; err != nil {
			return err
		}

		// 发送者视为已读自己的消息
		return tx.Model(&models.ConversationMember{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, identity.ID).
			Update("last_read_at", now).Error
	})
	if err != nil {
		return nil, err
	}

	return &msg, nil
}

// EditMessage 只有作者本人能改；没命中任何行（消息不存在或不是作者）返回 (nil, nil)
func (s *ChatService) EditMessage(ctx context.Context, userID, messageID uint, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}

	var msg models.Message

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Message{}).
			Where("id = ? AND user_id = ?", messageID, userID).
			Updates(map[string]interface{}{"body": body, "edited_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&msg, messageID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &msg, nil
}

// DeleteMessage 软删除：清空 body 打上 deleted_at，同样只限作者本人
func (s *ChatService) DeleteMessage(ctx context.Context, userID, messageID uint) (*models.Message, error) {
	var msg models.Message

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Message{}).
			Where("id = ? AND user_id = ?", messageID, userID).
			Updates(map[string]interface{}{"body": "", "deleted_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&msg, messageID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &msg, nil
}

// MarkRead 更新成员的 last_read_at，返回是否真的更新到了行
// 零行更新是无害 no-op，调用方据此决定要不要广播
func (s *ChatService) MarkRead(ctx context.Context, conversationID, userID uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("last_read_at", time.Now())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListConversations 当前用户所在的会话，按最近消息排序
func (s *ChatService) ListConversations(ctx context.Context, shopID, userID uint) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.WithContext(ctx).
		Joins("JOIN conversation_members cm ON cm.conversation_id = conversations.id AND cm.user_id = ?", userID).
		Where("conversations.shop_id = ?", shopID).
		Order("conversations.last_message_at DESC NULLS LAST").
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

// CreateConversation 建会话并把创建者和指定成员拉进成员表
func (s *ChatService) CreateConversation(ctx context.Context, identity *Identity, title string, memberIDs []uint) (*models.Conversation, error) {
	var conversation models.Conversation

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conversation = models.Conversation{ShopID: identity.ShopID, Title: title}
		if err := tx.Create(&conversation).Error; err != nil {
			return err
		}

		seen := map[uint]bool{identity.ID: true}
		members := []models.ConversationMember{
			{ConversationID: conversation.ID, UserID: identity.ID},
		}
		for _, uid := range memberIDs {
			if seen[uid] {
				continue
			}
			// 只允许拉同店铺的用户
			var count int64
			if err := tx.Model(&models.User{}).
				Where("id = ? AND shop_id = ?", uid, identity.ShopID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				continue
			}
			seen[uid] = true
			members = append(members, models.ConversationMember{ConversationID: conversation.ID, UserID: uid})
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}
