package web

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"versus-service/logger"
	"versus-service/services"
)

// Hub 按 match code 分房间的 websocket 集线器。
// 事件从 Broker 订阅进来,按 match code 扇出到对应房间的
// 所有连接;投递是尽力而为的,慢客户端直接断开,
// 客户端重连后通过 GET match 对账。
//
// Hub 是显式构造、显式 Start/Stop 的服务,不是包级单例。
type Hub struct {
	broker services.EventBroker

	// rooms 只被 run goroutine 访问,无需加锁
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	events     <-chan services.BrokerMessage
	done       chan struct{}
}

// Client 一条 websocket 连接。一条连接同一时刻至多加入一个房间。
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	matchCode string
	userID    string

	// closed 只被 run goroutine 读写,防止 send 被关两次
	closed bool
}

// clientMessage 客户端发来的控制消息
type clientMessage struct {
	Type      string `json:"type"` // join-match | leave-match
	MatchCode string `json:"match_code,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

func NewHub(broker services.EventBroker) *Hub {
	return &Hub{
		broker:     broker,
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		done:       make(chan struct{}),
	}
}

// Start 订阅比赛事件并启动扇出循环
func (h *Hub) Start() error {
	events, err := h.broker.Subscribe(services.MatchEventsTopic)
	if err != nil {
		return err
	}
	h.events = events
	go h.run()
	logger.Println("[Hub] Started")
	return nil
}

// Stop 停止扇出循环并断开所有客户端
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			room, ok := h.rooms[client.matchCode]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.matchCode] = room
			}
			room[client] = true
			logger.Printf("[Hub] %s joined room %s (%d clients)", client.userID, client.matchCode, len(room))
			h.announce(services.EventPlayerJoined, client)

		case client := <-h.unregister:
			h.removeClient(client)

		case msg, ok := <-h.events:
			if !ok {
				logger.Errorln("[Hub] ❌ Broker subscription closed")
				return
			}
			h.fanOut(msg)

		case <-h.done:
			for code, room := range h.rooms {
				for client := range room {
					h.closeSend(client)
				}
				delete(h.rooms, code)
			}
			logger.Println("[Hub] Stopped")
			return
		}
	}
}

// removeClient 把客户端移出房间并广播掉线事件
func (h *Hub) removeClient(client *Client) {
	room, ok := h.rooms[client.matchCode]
	if !ok || !room[client] {
		// 没入过房间的连接也要关掉发送通道,让写循环退出
		h.closeSend(client)
		return
	}
	delete(room, client)
	h.closeSend(client)
	if len(room) == 0 {
		delete(h.rooms, client.matchCode)
	}
	logger.Printf("[Hub] %s left room %s (%d clients)", client.userID, client.matchCode, len(room))
	h.announce(services.EventPlayerDisconnected, client)
}

// closeSend 只能在 run goroutine 内调用
func (h *Hub) closeSend(client *Client) {
	if client.closed {
		return
	}
	client.closed = true
	close(client.send)
}

// fanOut 把一条 Broker 消息投递给对应房间的所有客户端
func (h *Hub) fanOut(msg services.BrokerMessage) {
	var event services.MatchEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Errorf("[Hub] Failed to unmarshal broker message: %v", err)
		return
	}

	room, ok := h.rooms[event.MatchCode]
	if !ok {
		return
	}

	for client := range room {
		select {
		case client.send <- msg.Value:
		default:
			// 发送缓冲满,客户端读得太慢,直接断开
			delete(room, client)
			h.closeSend(client)
			logger.Printf("[Hub] ⚠️ Dropped slow client %s in room %s", client.userID, event.MatchCode)
		}
	}
}

// announce 把加入/掉线事件经 Broker 发布,其他实例的房间也能看到
func (h *Hub) announce(eventType string, client *Client) {
	event := services.NewMatchEvent(eventType, client.matchCode, map[string]interface{}{
		"user_id": client.userID,
	})
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := h.broker.Publish(services.BrokerMessage{
		Topic: services.MatchEventsTopic,
		Key:   client.matchCode,
		Value: payload,
	}); err != nil {
		logger.Errorf("[Hub] Failed to publish %s: %v", eventType, err)
	}
}

// readPump 读取客户端控制消息 (join-match / leave-match)
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Printf("[Hub] WebSocket error: %v", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump 向客户端写入消息
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// handleMessage 处理客户端发来的控制消息
func (c *Client) handleMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Printf("[Hub] Failed to unmarshal client message: %v", err)
		return
	}

	switch msg.Type {
	case "join-match":
		if msg.MatchCode == "" || c.matchCode != "" {
			return
		}
		c.matchCode = msg.MatchCode
		if msg.UserID != "" {
			c.userID = msg.UserID
		}
		c.hub.register <- c

	case "leave-match":
		if c.matchCode != "" {
			c.hub.unregister <- c
		}
	}
}
