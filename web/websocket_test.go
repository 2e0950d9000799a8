package web

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"versus-service/config"
	"versus-service/models"
	"versus-service/services"
)

func newWSTestServer(t *testing.T) (*httptest.Server, *services.InMemoryBroker) {
	t.Helper()
	broker := services.NewInMemoryBroker()

	hub := NewHub(broker)
	if err := hub.Start(); err != nil {
		t.Fatalf("Hub start failed: %v", err)
	}
	t.Cleanup(hub.Stop)

	provider := &services.StaticQuestionProvider{Questions: []models.Question{
		{Prompt: "Q1", Options: []string{"a", "b"}, CorrectIndex: 0},
	}}
	svc := services.NewMatchService(services.NewMemoryRecordStore(), broker, provider, 1, 20)

	server := NewServer(&config.Config{Port: "0"}, svc, hub)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, broker
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *services.MatchEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event services.MatchEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return &event
}

func publishEvent(t *testing.T, broker services.EventBroker, eventType, code string) {
	t.Helper()
	payload, err := json.Marshal(services.NewMatchEvent(eventType, code, nil))
	if err != nil {
		t.Fatal(err)
	}
	if err := broker.Publish(services.BrokerMessage{
		Topic: services.MatchEventsTopic,
		Key:   code,
		Value: payload,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestWebSocketRoomFanOut(t *testing.T) {
	ts, broker := newWSTestServer(t)

	conn := dialWS(t, ts)
	if err := conn.WriteJSON(map[string]string{
		"type":       "join-match",
		"match_code": "room-1",
		"user_id":    playerA,
	}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	// 入房后首先收到自己的 player-joined
	event := readEvent(t, conn)
	if event.Type != services.EventPlayerJoined || event.MatchCode != "room-1" {
		t.Fatalf("Expected player-joined for room-1, got %+v", event)
	}

	// 其他房间的事件不会投递过来;随后发给本房间的事件要能收到
	publishEvent(t, broker, services.EventMatchUpdate, "other-room")
	publishEvent(t, broker, services.EventChatMessage, "room-1")

	event = readEvent(t, conn)
	if event.Type != services.EventChatMessage || event.MatchCode != "room-1" {
		t.Fatalf("Expected chat-message for room-1, got %+v", event)
	}
}

func TestWebSocketBothPlayersReceiveBroadcast(t *testing.T) {
	ts, broker := newWSTestServer(t)

	join := func(c *websocket.Conn, user string) {
		t.Helper()
		if err := c.WriteJSON(map[string]string{
			"type":       "join-match",
			"match_code": "room-1",
			"user_id":    user,
		}); err != nil {
			t.Fatal(err)
		}
	}

	// A 先入房并确认注册完成,再让 B 入房,事件顺序才可预期
	connA := dialWS(t, ts)
	join(connA, playerA)
	readEvent(t, connA) // A: player-joined(A)

	connB := dialWS(t, ts)
	join(connB, playerB)
	readEvent(t, connB) // B: player-joined(B)
	readEvent(t, connA) // A: player-joined(B)

	publishEvent(t, broker, services.EventMatchUpdate, "room-1")

	for name, conn := range map[string]*websocket.Conn{"A": connA, "B": connB} {
		event := readEvent(t, conn)
		if event.Type != services.EventMatchUpdate {
			t.Errorf("Client %s: expected match-update, got %s", name, event.Type)
		}
	}
}
