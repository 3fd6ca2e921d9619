package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"SmartInventory/limiter"
	"SmartInventory/models"
	"SmartInventory/redis"
	"SmartInventory/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxEventSize   = 64 * 1024
	eventTimeout   = 5 * time.Second // 单个事件的处理时限，超时丢弃不阻塞队列
	redisOpTimeout = 3 * time.Second
)

type ChatWebSocketHandler struct {
	auth     *services.AuthService
	chat     *services.ChatService
	hub      *Hub
	redis    *redis.RedisClient
	limiter  *limiter.Manager // 可为 nil，聊天消息限速
	upgrader websocket.Upgrader
}

func NewChatWebSocketHandler(auth *services.AuthService, chat *services.ChatService, hub *Hub,
	redisClient *redis.RedisClient, limiterManager *limiter.Manager, allowedOrigin string) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{
		auth:    auth,
		chat:    chat,
		hub:     hub,
		redis:   redisClient,
		limiter: limiterManager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// 上行事件载荷
type conversationPayload struct {
	ConversationID uint `json:"conversation_id"`
}

type postMessagePayload struct {
	ConversationID uint   `json:"conversation_id"`
	Body           string `json:"body"`
}

type editMessagePayload struct {
	MessageID uint   `json:"message_id"`
	Body      string `json:"body"`
}

type deleteMessagePayload struct {
	MessageID uint `json:"message_id"`
}

func userPayload(userID uint) map[string]interface{} {
	return map[string]interface{}{"user_id": userID}
}

// HandleWebSocket 握手即认证：凭证无效的连接直接拒绝，不进任何房间
func (h *ChatWebSocketHandler) HandleWebSocket(c echo.Context) error {
	identity, err := h.auth.IdentityFromRequest(c.Request())
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "unauthorized",
		})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &ChatClient{
		ID:       uuid.New().String(),
		Identity: *identity,
		Conn:     ws,
		Send:     make(chan *ServerEvent, 256),
		rooms:    make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}

	// 入店铺房间并向全店广播上线（包括自己）
	room := shopRoom(identity.ShopID)
	h.hub.JoinRoom(client, room)
	h.hub.Broadcast(room, &ServerEvent{Type: "user:online", Payload: userPayload(identity.ID)}, nil)

	// 启动写入goroutine
	go h.writePump(client)

	// 当前goroutine处理读取
	h.readPump(client)

	return nil
}

// 读取客户端事件，逐条处理完再读下一条
func (h *ChatWebSocketHandler) readPump(client *ChatClient) {
	room := shopRoom(client.Identity.ShopID)

	defer func() {
		client.cancel()
		h.hub.Detach(client)
		client.Conn.Close()

		// 向店铺广播下线
		h.hub.Broadcast(room, &ServerEvent{Type: "user:offline", Payload: userPayload(client.Identity.ID)}, nil)
	}()

	client.Conn.SetReadLimit(maxEventSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var event ClientEvent
		err := client.Conn.ReadJSON(&event)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		h.handleEvent(client, &event)
	}
}

// 向客户端写入事件
func (h *ChatWebSocketHandler) writePump(client *ChatClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case <-client.ctx.Done():
			return

		case event, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn.WriteJSON(event); err != nil {
				log.Printf("WriteJSON error: %v", err)
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// 事件分发。未授权、校验失败、没命中行的动作一律静默丢弃，不回错误事件
func (h *ChatWebSocketHandler) handleEvent(client *ChatClient, event *ClientEvent) {
	ctx, cancel := context.WithTimeout(client.ctx, eventTimeout)
	defer cancel()

	switch event.Type {
	case "chat:join":
		h.handleJoin(ctx, client, event.Payload)
	case "chat:typing":
		h.handleTyping(ctx, client, event.Payload, "chat:typing")
	case "chat:stop_typing":
		h.handleTyping(ctx, client, event.Payload, "chat:stop_typing")
	case "chat:message":
		h.handleMessage(ctx, client, event.Payload)
	case "chat:edit":
		h.handleEdit(ctx, client, event.Payload)
	case "chat:delete":
		h.handleDelete(ctx, client, event.Payload)
	case "chat:read":
		h.handleRead(ctx, client, event.Payload)
	}
}

// 进会话房间并补投离线期间的消息
func (h *ChatWebSocketHandler) handleJoin(ctx context.Context, client *ChatClient, payload json.RawMessage) {
	var p conversationPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ConversationID == 0 {
		return
	}

	ids, err := h.chat.JoinConversation(ctx, p.ConversationID, client.Identity.ID)
	if err != nil {
		if !errors.Is(err, services.ErrNotMember) {
			log.Printf("chat:join failed for user %d: %v", client.Identity.ID, err)
		}
		return
	}

	room := conversationRoom(p.ConversationID)
	h.hub.JoinRoom(client, room)

	// 有补投才广播，空列表不发事件
	if len(ids) > 0 {
		h.hub.Broadcast(room, &ServerEvent{
			Type: "chat:delivered",
			Payload: map[string]interface{}{
				"user_id":     client.Identity.ID,
				"message_ids": ids,
			},
		}, map[string]bool{client.ID: true})
	}
}

func (h *ChatWebSocketHandler) handleTyping(ctx context.Context, client *ChatClient, payload json.RawMessage, eventType string) {
	var p conversationPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ConversationID == 0 {
		return
	}

	ok, err := h.chat.IsMember(ctx, p.ConversationID, client.Identity.ID)
	if err != nil || !ok {
		return
	}

	h.hub.Broadcast(conversationRoom(p.ConversationID), &ServerEvent{
		Type:    eventType,
		Payload: userPayload(client.Identity.ID),
	}, map[string]bool{client.ID: true})
}

func (h *ChatWebSocketHandler) handleMessage(ctx context.Context, client *ChatClient, payload json.RawMessage) {
	var p postMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ConversationID == 0 {
		return
	}

	// 消息限速，超速静默丢弃
	if h.limiter != nil {
		key := fmt.Sprintf("chat:user:%d", client.Identity.ID)
		if allowed, err := h.limiter.Allow(ctx, key, 20, 10*time.Second); err == nil && !allowed {
			return
		}
	}

	msg, err := h.chat.PostMessage(ctx, &client.Identity, p.ConversationID, p.Body)
	if err != nil {
		if !errors.Is(err, services.ErrNotMember) {
			log.Printf("chat:message failed for user %d: %v", client.Identity.ID, err)
		}
		return
	}
	if msg == nil {
		return
	}

	// 全房间广播，发送者也收到自己的消息作为确认
	h.hub.Broadcast(conversationRoom(msg.ConversationID), &ServerEvent{
		Type:    "chat:message",
		Payload: msg,
	}, nil)
}

func (h *ChatWebSocketHandler) handleEdit(ctx context.Context, client *ChatClient, payload json.RawMessage) {
	var p editMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.MessageID == 0 {
		return
	}

	msg, err := h.chat.EditMessage(ctx, client.Identity.ID, p.MessageID, p.Body)
	if err != nil {
		log.Printf("chat:edit failed for user %d: %v", client.Identity.ID, err)
		return
	}
	if msg == nil {
		return
	}

	h.hub.Broadcast(conversationRoom(msg.ConversationID), &ServerEvent{
		Type:    "chat:edit",
		Payload: msg,
	}, nil)
}

func (h *ChatWebSocketHandler) handleDelete(ctx context.Context, client *ChatClient, payload json.RawMessage) {
	var p deleteMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.MessageID == 0 {
		return
	}

	msg, err := h.chat.DeleteMessage(ctx, client.Identity.ID, p.MessageID)
	if err != nil {
		log.Printf("chat:delete failed for user %d: %v", client.Identity.ID, err)
		return
	}
	if msg == nil {
		return
	}

	h.hub.Broadcast(conversationRoom(msg.ConversationID), &ServerEvent{
		Type:    "chat:delete",
		Payload: msg,
	}, nil)
}

func (h *ChatWebSocketHandler) handleRead(ctx context.Context, client *ChatClient, payload json.RawMessage) {
	var p conversationPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ConversationID == 0 {
		return
	}

	updated, err := h.chat.MarkRead(ctx, p.ConversationID, client.Identity.ID)
	if err != nil {
		log.Printf("chat:read failed for user %d: %v", client.Identity.ID, err)
		return
	}
	// 零行更新不广播
	if !updated {
		return
	}

	h.hub.Broadcast(conversationRoom(p.ConversationID), &ServerEvent{
		Type:    "chat:read",
		Payload: userPayload(client.Identity.ID),
	}, nil)
}

// HTTP接口：获取本店铺在线用户列表
func (h *ChatWebSocketHandler) GetOnlineUsers(c echo.Context) error {
	user := c.Get("user").(*models.User)

	if h.redis == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"shop_id": user.ShopID,
			"count":   0,
			"users":   []interface{}{},
		})
	}

	result, err := h.redis.GetOnlineUsers(c.Request().Context(), user.ShopID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch online users",
		})
	}

	users := make([]map[string]interface{}, 0, len(result))
	for _, data := range result {
		var info map[string]interface{}
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			log.Printf("Failed to unmarshal online user info: %v", err)
			continue
		}
		users = append(users, info)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"shop_id": user.ShopID,
		"count":   len(users),
		"users":   users,
	})
}

// HTTP接口：当前用户的会话列表
func (h *ChatWebSocketHandler) ListConversations(c echo.Context) error {
	user := c.Get("user").(*models.User)

	conversations, err := h.chat.ListConversations(c.Request().Context(), user.ShopID, user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch conversations",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversations": conversations,
	})
}

// HTTP接口：创建会话
func (h *ChatWebSocketHandler) CreateConversation(c echo.Context) error {
	user := c.Get("user").(*models.User)

	var req struct {
		Title     string `json:"title"`
		MemberIDs []uint `json:"member_ids"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request",
		})
	}

	identity := services.Identity{ID: user.ID, ShopID: user.ShopID, Role: user.Role}
	conversation, err := h.chat.CreateConversation(c.Request().Context(), &identity, req.Title, req.MemberIDs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to create conversation",
		})
	}

	return c.JSON(http.StatusCreated, conversation)
}
