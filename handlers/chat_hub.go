package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"SmartInventory/redis"
	"SmartInventory/services"

	"github.com/gorilla/websocket"
)

// 下行事件
type ServerEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// 上行事件，payload 按事件类型再解
type ClientEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// 广播消息结构
type BroadcastMessage struct {
	Room      string          // 目标房间
	Event     *ServerEvent    // 要广播的事件
	ExceptIDs map[string]bool // 排除的客户端ID（不发送给这些客户端）
}

// ChatClient 代表一个 WebSocket 连接的客户端
type ChatClient struct {
	ID       string             // 客户端唯一标识（UUID）
	Identity services.Identity  // 连接期间不变的认证身份
	Conn     *websocket.Conn    // WebSocket连接
	Send     chan *ServerEvent  // 发送消息队列（缓冲256条）
	rooms    map[string]bool    // 已加入的房间
	mu       sync.RWMutex       // 保护 rooms
	ctx      context.Context    // 上下文管理
	cancel   context.CancelFunc // 取消函数
}

func (c *ChatClient) InRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[room]
}

// 房间 key：店铺房间只走 presence，会话房间走聊天事件
func shopRoom(shopID uint) string {
	return fmt.Sprintf("shop:%d", shopID)
}

func conversationRoom(conversationID uint) string {
	return fmt.Sprintf("conversation:%d", conversationID)
}

type subscription struct {
	client *ChatClient
	room   string
}

// Hub 进程级的房间表：房间 key -> 在线客户端集合
// 统一由 run 循环串行处理进出和广播，同一连接的动作保持发送顺序
type Hub struct {
	rooms map[string]map[string]*ChatClient
	mu    sync.RWMutex

	join      chan subscription
	leave     chan subscription
	detach    chan *ChatClient // 断开连接，整体移出所有房间
	broadcast chan *BroadcastMessage

	ctx    context.Context
	cancel context.CancelFunc
	redis  *redis.RedisClient // 可为 nil
}

func NewHub(redisClient *redis.RedisClient) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		rooms:     make(map[string]map[string]*ChatClient),
		join:      make(chan subscription, 16),
		leave:     make(chan subscription, 16),
		detach:    make(chan *ChatClient, 16),
		broadcast: make(chan *BroadcastMessage, 256),
		ctx:       ctx,
		cancel:    cancel,
		redis:     redisClient,
	}
	go h.run()
	return h
}

func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) JoinRoom(client *ChatClient, room string) {
	h.join <- subscription{client: client, room: room}
}

func (h *Hub) LeaveRoom(client *ChatClient, room string) {
	h.leave <- subscription{client: client, room: room}
}

func (h *Hub) Detach(client *ChatClient) {
	h.detach <- client
}

func (h *Hub) Broadcast(room string, event *ServerEvent, exceptIDs map[string]bool) {
	h.broadcast <- &BroadcastMessage{Room: room, Event: event, ExceptIDs: exceptIDs}
}

// 核心分发循环
func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case sub := <-h.join:
			h.addToRoom(sub.client, sub.room)

		case sub := <-h.leave:
			h.removeFromRoom(sub.client, sub.room)

		case client := <-h.detach:
			h.detachClient(client)

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *Hub) addToRoom(client *ChatClient, room string) {
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*ChatClient)
	}
	h.rooms[room][client.ID] = client
	h.mu.Unlock()

	client.mu.Lock()
	client.rooms[room] = true
	client.mu.Unlock()

	// 店铺房间成员同步到 Redis 在线列表
	if room == shopRoom(client.Identity.ShopID) {
		h.addUserToRedis(client)
	}
}

func (h *Hub) removeFromRoom(client *ChatClient, room string) {
	h.mu.Lock()
	if clients, ok := h.rooms[room]; ok {
		delete(clients, client.ID)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	client.mu.Lock()
	delete(client.rooms, room)
	client.mu.Unlock()
}

func (h *Hub) detachClient(client *ChatClient) {
	client.mu.Lock()
	rooms := make([]string, 0, len(client.rooms))
	for room := range client.rooms {
		rooms = append(rooms, room)
	}
	client.rooms = make(map[string]bool)
	client.mu.Unlock()

	h.mu.Lock()
	for _, room := range rooms {
		if clients, ok := h.rooms[room]; ok {
			delete(clients, client.ID)
			if len(clients) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	h.removeUserFromRedis(client)
	close(client.Send)
}

func (h *Hub) fanOut(message *BroadcastMessage) {
	h.mu.RLock()
	clients := make([]*ChatClient, 0, len(h.rooms[message.Room]))
	for _, client := range h.rooms[message.Room] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if message.ExceptIDs != nil && message.ExceptIDs[client.ID] {
			continue
		}

		select {
		case client.Send <- message.Event:
		default:
			// 发送缓冲满说明客户端已经跟不上，直接断开
			log.Printf("Client %s send buffer full, disconnecting", client.ID)
			client.cancel()
			if client.Conn != nil {
				client.Conn.Close()
			}
		}
	}
}

// RoomClients 房间当前在线客户端数（测试和在线列表用）
func (h *Hub) RoomClients(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// 添加用户到Redis在线列表
func (h *Hub) addUserToRedis(client *ChatClient) {
	if h.redis == nil {
		return
	}

	data, err := json.Marshal(map[string]interface{}{
		"user_id": client.Identity.ID,
		"role":    client.Identity.Role,
	})
	if err != nil {
		log.Printf("Failed to marshal online user info: %v", err)
		return
	}

	ctx, cancelFn := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancelFn()
	if err := h.redis.AddOnlineUser(ctx, client.Identity.ShopID, client.Identity.ID, data); err != nil {
		log.Printf("Failed to add user to Redis: %v", err)
	}
}

// 从Redis在线列表移除用户；同一用户还有别的连接在线时不动
func (h *Hub) removeUserFromRedis(client *ChatClient) {
	if h.redis == nil {
		return
	}

	room := shopRoom(client.Identity.ShopID)
	h.mu.RLock()
	hasOtherConnection := false
	for _, c := range h.rooms[room] {
		if c.Identity.ID == client.Identity.ID && c.ID != client.ID {
			hasOtherConnection = true
			break
		}
	}
	h.mu.RUnlock()

	if !hasOtherConnection {
		ctx, cancelFn := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancelFn()
		if err := h.redis.RemoveOnlineUser(ctx, client.Identity.ShopID, client.Identity.ID); err != nil {
			log.Printf("Failed to remove user from Redis: %v", err)
		}
	}
}
