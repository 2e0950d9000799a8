package services

import (
	"sync"

	"versus-service/logger"
)

// InMemoryBroker 是 EventBroker 的进程内实现。
// 与消费组语义不同,这里是广播语义: 每条消息投递给该 Topic
// 的所有订阅者,因为每个订阅方都要把事件扇出到自己的房间。
type InMemoryBroker struct {
	subscribers map[string][]chan BrokerMessage
	closed      bool
	mu          sync.RWMutex
}

func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		subscribers: make(map[string][]chan BrokerMessage),
	}
}

// Publish 实现 EventBroker 接口
func (b *InMemoryBroker) Publish(msg BrokerMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	for _, ch := range b.subscribers[msg.Topic] {
		// 通道满了就丢弃,不阻塞发布方
		select {
		case ch <- msg:
		default:
			logger.Printf("[InMemoryBroker] ⚠️ Topic %s subscriber channel full. Message dropped.", msg.Topic)
		}
	}
	return nil
}

// Subscribe 实现 EventBroker 接口
func (b *InMemoryBroker) Subscribe(topic string) (<-chan BrokerMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan BrokerMessage, 256)
	b.subscribers[topic] = append(b.subscribers[topic], ch)

	logger.Printf("[InMemoryBroker] Subscriber added to topic %s (total: %d)", topic, len(b.subscribers[topic]))
	return ch, nil
}

// Close 实现 EventBroker 接口
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, chans := range b.subscribers {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subscribers = make(map[string][]chan BrokerMessage)

	logger.Println("[InMemoryBroker] Closed all channels.")
	return nil
}
