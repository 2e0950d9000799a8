package services

// MatchEventsTopic 比赛事件的统一 topic,Key 为 match code
const MatchEventsTopic = "versus-match-events"

// BrokerMessage 在 Broker 中传输的消息结构
type BrokerMessage struct {
	Topic string
	Key   string // match code
	Value []byte // JSON 编码的 MatchEvent
}

// EventBroker 消息代理抽象。状态变更先提交到存储,再经
// Broker 广播;websocket Hub 订阅后按 Key 路由到对应房间。
// 单实例部署用 InMemoryBroker;多实例部署用 AMQPBroker,
// 任一实例提交的状态变更都能到达连在其他实例上的客户端。
type EventBroker interface {
	// Publish 发布消息到指定 Topic
	Publish(msg BrokerMessage) error
	// Subscribe 订阅指定 Topic,返回消息通道
	Subscribe(topic string) (<-chan BrokerMessage, error)
	// Close 关闭 Broker,释放所有订阅通道
	Close() error
}
