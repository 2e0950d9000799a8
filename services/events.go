package services

import (
	"time"
)

// 房间事件类型。交付语义: 尽力而为,至多一次,断线不补发,
// 客户端重连后以 GET match 拉取的记录为准。
const (
	EventPlayerJoined       = "player-joined"
	EventPlayerDisconnected = "player-disconnected"
	EventChatMessage        = "chat-message"
	EventPlayerBuzzed       = "player-buzzed"
	EventAnswerResult       = "answer-result"
	EventMatchUpdate        = "match-update"
	EventNotification       = "notification"
)

// MatchEvent 广播到比赛房间的事件信封
type MatchEvent struct {
	Type      string      `json:"type"`
	MatchCode string      `json:"match_code"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewMatchEvent 构造事件信封
func NewMatchEvent(eventType, matchCode string, data interface{}) *MatchEvent {
	return &MatchEvent{
		Type:      eventType,
		MatchCode: matchCode,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}
