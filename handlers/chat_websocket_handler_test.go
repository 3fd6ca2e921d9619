package handlers

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SmartInventory/config"
	"SmartInventory/models"
	"SmartInventory/services"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type wsEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wsFixture struct {
	db   *gorm.DB
	auth *services.AuthService
	hub  *Hub
	srv  *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	// busy timeout：两条连接的事件可能并发落库，sqlite 写锁冲突时等待而不是直接报错
	db, err := gorm.Open(sqlite.Open(":memory:?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrateAll(db))

	auth := services.NewAuthService(db, &config.AuthConfig{JWTSecret: "ws-test-secret", TokenExpiry: 1})
	chat := services.NewChatService(db)
	hub := NewHub(nil)
	handler := NewChatWebSocketHandler(auth, chat, hub, nil, nil, "")

	e := echo.New()
	e.GET("/ws", handler.HandleWebSocket)
	srv := httptest.NewServer(e)

	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})

	return &wsFixture{db: db, auth: auth, hub: hub, srv: srv}
}

func (f *wsFixture) dial(t *testing.T, user models.User) *websocket.Conn {
	t.Helper()
	resp, err := f.auth.GenerateToken(&user)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=" + resp.AccessToken
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWSEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event wsEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func requireNoWSEvent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var event wsEvent
	err := conn.ReadJSON(&event)
	require.Error(t, err, "expected silence, got %q", event.Type)
	netErr, ok := err.(net.Error)
	require.True(t, ok && netErr.Timeout(), "expected read timeout, got %v", err)
}

func sendWSEvent(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    eventType,
		"payload": json.RawMessage(raw),
	}))
}

func seedWSConversation(t *testing.T, db *gorm.DB) (models.Conversation, models.User, models.User, models.User) {
	t.Helper()

	shop := models.Shop{Name: "Corner Store"}
	require.NoError(t, db.Create(&shop).Error)
	otherShop := models.Shop{Name: "Rival Store"}
	require.NoError(t, db.Create(&otherShop).Error)

	alice := models.User{ShopID: shop.ID, Email: "alice@corner.test", Role: models.RoleOwner}
	bob := models.User{ShopID: shop.ID, Email: "bob@corner.test", Role: models.RoleStaff}
	mallory := models.User{ShopID: otherShop.ID, Email: "mallory@rival.test", Role: models.RoleOwner}
	for _, u := range []*models.User{&alice, &bob, &mallory} {
		require.NoError(t, db.Create(u).Error)
	}

	conv := models.Conversation{ShopID: shop.ID, Title: "general"}
	require.NoError(t, db.Create(&conv).Error)
	for _, u := range []models.User{alice, bob} {
		require.NoError(t, db.Create(&models.ConversationMember{
			ConversationID: conv.ID, UserID: u.ID,
		}).Error)
	}
	return conv, alice, bob, mallory
}

func TestWebSocketRejectsBadCredentials(t *testing.T) {
	f := newWSFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 401, resp.StatusCode)
}

func TestWebSocketChatFlow(t *testing.T) {
	f := newWSFixture(t)
	conv, alice, bob, _ := seedWSConversation(t, f.db)

	aliceConn := f.dial(t, alice)
	require.Equal(t, "user:online", readWSEvent(t, aliceConn).Type)

	bobConn := f.dial(t, bob)
	require.Equal(t, "user:online", readWSEvent(t, bobConn).Type)
	require.Equal(t, "user:online", readWSEvent(t, aliceConn).Type)

	joinPayload := map[string]interface{}{"conversation_id": conv.ID}
	sendWSEvent(t, aliceConn, "chat:join", joinPayload)
	require.Eventually(t, func() bool {
		return f.hub.RoomClients(conversationRoom(conv.ID)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	sendWSEvent(t, bobConn, "chat:join", joinPayload)
	require.Eventually(t, func() bool {
		return f.hub.RoomClients(conversationRoom(conv.ID)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// 消息广播给全部成员，包括发送者自己
	sendWSEvent(t, bobConn, "chat:message", map[string]interface{}{
		"conversation_id": conv.ID,
		"body":            "  hello alice  ",
	})

	var msg models.Message
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		event := readWSEvent(t, conn)
		require.Equal(t, "chat:message", event.Type)
		require.NoError(t, json.Unmarshal(event.Payload, &msg))
		require.Equal(t, "hello alice", msg.Body)
		require.Equal(t, bob.ID, msg.UserID)
	}

	// 回执在发送时就落库了
	var delivery models.MessageDelivery
	require.NoError(t, f.db.Where("message_id = ? AND user_id = ?", msg.ID, alice.ID).
		First(&delivery).Error)

	// typing 只发给别人；随后的 chat:read 两边都收
	// alice 的下一个事件直接是 chat:read，证明 typing 没有回流给她自己
	sendWSEvent(t, aliceConn, "chat:typing", joinPayload)
	require.Equal(t, "chat:typing", readWSEvent(t, bobConn).Type)

	sendWSEvent(t, aliceConn, "chat:read", joinPayload)
	require.Equal(t, "chat:read", readWSEvent(t, aliceConn).Type)
	require.Equal(t, "chat:read", readWSEvent(t, bobConn).Type)

	// 空白消息彻底无声
	sendWSEvent(t, bobConn, "chat:message", map[string]interface{}{
		"conversation_id": conv.ID,
		"body":            "   ",
	})
	requireNoWSEvent(t, aliceConn)
	requireNoWSEvent(t, bobConn)

	var count int64
	require.NoError(t, f.db.Model(&models.Message{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestWebSocketEditAndDelete(t *testing.T) {
	f := newWSFixture(t)
	conv, alice, bob, _ := seedWSConversation(t, f.db)

	aliceConn := f.dial(t, alice)
	require.Equal(t, "user:online", readWSEvent(t, aliceConn).Type)
	bobConn := f.dial(t, bob)
	require.Equal(t, "user:online", readWSEvent(t, bobConn).Type)
	require.Equal(t, "user:online", readWSEvent(t, aliceConn).Type)

	joinPayload := map[string]interface{}{"conversation_id": conv.ID}
	sendWSEvent(t, aliceConn, "chat:join", joinPayload)
	require.Eventually(t, func() bool {
		return f.hub.RoomClients(conversationRoom(conv.ID)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	sendWSEvent(t, bobConn, "chat:join", joinPayload)
	require.Eventually(t, func() bool {
		return f.hub.RoomClients(conversationRoom(conv.ID)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	sendWSEvent(t, aliceConn, "chat:message", map[string]interface{}{
		"conversation_id": conv.ID,
		"body":            "draft",
	})
	var msg models.Message
	event := readWSEvent(t, aliceConn)
	require.NoError(t, json.Unmarshal(event.Payload, &msg))
	require.Equal(t, "chat:message", readWSEvent(t, bobConn).Type)

	// 别人编辑不产生任何事件：两边收到的下一个事件是作者自己的编辑
	sendWSEvent(t, bobConn, "chat:edit", map[string]interface{}{
		"message_id": msg.ID,
		"body":       "hijacked",
	})

	// 作者编辑广播给所有人
	sendWSEvent(t, aliceConn, "chat:edit", map[string]interface{}{
		"message_id": msg.ID,
		"body":       "final",
	})
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		event := readWSEvent(t, conn)
		require.Equal(t, "chat:edit", event.Type)
		var edited models.Message
		require.NoError(t, json.Unmarshal(event.Payload, &edited))
		require.Equal(t, "final", edited.Body)
		require.NotNil(t, edited.EditedAt)
	}

	sendWSEvent(t, aliceConn, "chat:delete", map[string]interface{}{
		"message_id": msg.ID,
	})
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		event := readWSEvent(t, conn)
		require.Equal(t, "chat:delete", event.Type)
		var deleted models.Message
		require.NoError(t, json.Unmarshal(event.Payload, &deleted))
		require.Empty(t, deleted.Body)
		require.NotNil(t, deleted.DeletedAt)
	}
}

func TestWebSocketDeliveredBackfill(t *testing.T) {
	f := newWSFixture(t)
	conv, alice, bob, _ := seedWSConversation(t, f.db)

	// 投递缺口：消息在 bob 离线时入库，没有回执
	offline := models.Message{ConversationID: conv.ID, UserID: alice.ID, Body: "while you were away"}
	require.NoError(t, f.db.Create(&offline).Error)

	aliceConn := f.dial(t, alice)
	require.Equal(t, "user:online", readWSEvent(t, aliceConn).Type)
	sendWSEvent(t, aliceConn, "chat:join", map[string]interface{}{"conversation_id": conv.ID})
	require.Eventually(t, func() bool {
		return f.hub.RoomClients(conversationRoom(conv.ID)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	bobConn := f.dial(t, bob)
	require.Equal(t, "user:online", readWSEvent(t, bobConn).Type)
	require.Equal(t, "user:online", readWSEvent(t, aliceConn).Type)

	sendWSEvent(t, bobConn, "chat:join", map[string]interface{}{"conversation_id": conv.ID})

	// 补投回执只通知房间里的其他人，bob 自己不收
	event := readWSEvent(t, aliceConn)
	require.Equal(t, "chat:delivered", event.Type)
	var payload struct {
		UserID     uint   `json:"user_id"`
		MessageIDs []uint `json:"message_ids"`
	}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	require.Equal(t, bob.ID, payload.UserID)
	require.Equal(t, []uint{offline.ID}, payload.MessageIDs)
	requireNoWSEvent(t, bobConn)

	// 再次进房没有缺口，不再广播
	sendWSEvent(t, bobConn, "chat:join", map[string]interface{}{"conversation_id": conv.ID})
	requireNoWSEvent(t, aliceConn)
}

func TestWebSocketNonMemberIsSilentlyIgnored(t *testing.T) {
	f := newWSFixture(t)
	conv, alice, _, mallory := seedWSConversation(t, f.db)

	aliceConn := f.dial(t, alice)
	require.Equal(t, "user:online", readWSEvent(t, aliceConn).Type)
	sendWSEvent(t, aliceConn, "chat:join", map[string]interface{}{"conversation_id": conv.ID})
	require.Eventually(t, func() bool {
		return f.hub.RoomClients(conversationRoom(conv.ID)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// 别家店的用户能连上（她有合法身份），但任何会话动作都打不进来
	malloryConn := f.dial(t, mallory)
	require.Equal(t, "user:online", readWSEvent(t, malloryConn).Type)

	sendWSEvent(t, malloryConn, "chat:join", map[string]interface{}{"conversation_id": conv.ID})
	sendWSEvent(t, malloryConn, "chat:message", map[string]interface{}{
		"conversation_id": conv.ID,
		"body":            "let me in",
	})
	sendWSEvent(t, malloryConn, "chat:typing", map[string]interface{}{"conversation_id": conv.ID})

	requireNoWSEvent(t, malloryConn)
	requireNoWSEvent(t, aliceConn)

	var count int64
	require.NoError(t, f.db.Model(&models.Message{}).Count(&count).Error)
	require.Zero(t, count)
	require.Equal(t, 1, f.hub.RoomClients(conversationRoom(conv.ID)))
}

func TestWebSocketOfflineBroadcast(t *testing.T) {
	f := newWSFixture(t)
	_, alice, bob, _ := seedWSConversation(t, f.db)

	aliceConn := f.dial(t, alice)
	require.Equal(t, "user:online", readWSEvent(t, aliceConn).Type)
	bobConn := f.dial(t, bob)
	require.Equal(t, "user:online", readWSEvent(t, bobConn).Type)
	require.Equal(t, "user:online", readWSEvent(t, aliceConn).Type)

	bobConn.Close()

	event := readWSEvent(t, aliceConn)
	require.Equal(t, "user:offline", event.Type)
	var payload struct {
		UserID uint `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	require.Equal(t, bob.ID, payload.UserID)

	require.Eventually(t, func() bool {
		return f.hub.RoomClients(fmt.Sprintf("shop:%d", alice.ShopID)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
