package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"versus-service/logger"
)

// AMQPBroker 是 EventBroker 的 AMQP 实现,用于多实例部署:
// 每个 Topic 对应一个 fanout exchange,每个实例以独占
// auto-delete 队列订阅,任一实例发布的事件所有实例都能收到。
type AMQPBroker struct {
	url  string
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
	done chan struct{}

	// 已声明的 exchange,重连后需要重新声明
	exchanges map[string]bool
	// 订阅者输出通道,重连后继续向同一通道投递
	outputs map[string][]chan BrokerMessage
}

// 重连退避参数
const (
	amqpInitialDelay = 1 * time.Second
	amqpMaxDelay     = 60 * time.Second
	amqpBackoff      = 2.0
)

// NewAMQPBroker 建立 AMQP 连接并启动断线监控
func NewAMQPBroker(url string) (*AMQPBroker, error) {
	b := &AMQPBroker{
		url:       url,
		done:      make(chan struct{}),
		exchanges: make(map[string]bool),
		outputs:   make(map[string][]chan BrokerMessage),
	}

	if err := b.connect(); err != nil {
		return nil, err
	}

	go b.monitorConnection()
	return b, nil
}

func (b *AMQPBroker) connect() error {
	logger.Printf("[AMQPBroker] Connecting to %s...", safeURL(b.url))

	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.ch = ch
	b.mu.Unlock()

	logger.Println("[AMQPBroker] ✅ Connected")
	return nil
}

// monitorConnection 监控连接状态,断线后指数退避重连
func (b *AMQPBroker) monitorConnection() {
	for {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()

		closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-b.done:
			return
		case err := <-closeCh:
			if err != nil {
				logger.Errorf("[AMQPBroker] ❌ Connection lost: %v", err)
			}
		}

		delay := amqpInitialDelay
		for {
			select {
			case <-b.done:
				return
			case <-time.After(delay):
			}

			if err := b.connect(); err != nil {
				logger.Errorf("[AMQPBroker] Reconnect failed: %v (retrying in %v)", err, delay)
				delay = time.Duration(float64(delay) * amqpBackoff)
				if delay > amqpMaxDelay {
					delay = amqpMaxDelay
				}
				continue
			}

			if err := b.restoreTopology(); err != nil {
				logger.Errorf("[AMQPBroker] Failed to restore topology: %v", err)
				continue
			}

			logger.Println("[AMQPBroker] ✅ Reconnected")
			break
		}
	}
}

// restoreTopology 重连后重新声明 exchange 并恢复所有订阅
func (b *AMQPBroker) restoreTopology() error {
	b.mu.Lock()
	topics := make([]string, 0, len(b.exchanges))
	for topic := range b.exchanges {
		topics = append(topics, topic)
	}
	b.mu.Unlock()

	for _, topic := range topics {
		if err := b.declareExchange(topic); err != nil {
			return err
		}

		b.mu.Lock()
		outputs := append([]chan BrokerMessage(nil), b.outputs[topic]...)
		b.mu.Unlock()

		for _, out := range outputs {
			if err := b.startConsumer(topic, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *AMQPBroker) declareExchange(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ch.ExchangeDeclare(topic, "fanout", false, true, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", topic, err)
	}
	b.exchanges[topic] = true
	return nil
}

// Publish 实现 EventBroker 接口
func (b *AMQPBroker) Publish(msg BrokerMessage) error {
	if err := b.declareExchange(msg.Topic); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// fanout exchange 忽略 routing key,这里仍带上 match code 便于排查
	return b.ch.Publish(msg.Topic, msg.Key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        msg.Value,
		Timestamp:   time.Now(),
	})
}

// Subscribe 实现 EventBroker 接口
func (b *AMQPBroker) Subscribe(topic string) (<-chan BrokerMessage, error) {
	if err := b.declareExchange(topic); err != nil {
		return nil, err
	}

	out := make(chan BrokerMessage, 256)

	b.mu.Lock()
	b.outputs[topic] = append(b.outputs[topic], out)
	b.mu.Unlock()

	if err := b.startConsumer(topic, out); err != nil {
		return nil, err
	}
	return out, nil
}

// startConsumer 为订阅者声明独占队列并启动消费循环。
// 消费循环在队列关闭(断线)时退出,重连后由 restoreTopology 重建。
func (b *AMQPBroker) startConsumer(topic string, out chan BrokerMessage) error {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", topic, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	logger.Printf("[AMQPBroker] Consuming topic %s (queue: %s)", topic, q.Name)

	go func() {
		for d := range deliveries {
			select {
			case out <- BrokerMessage{Topic: topic, Key: d.RoutingKey, Value: d.Body}:
			default:
				logger.Printf("[AMQPBroker] ⚠️ Topic %s subscriber channel full. Message dropped.", topic)
			}
		}
	}()
	return nil
}

// Close 实现 EventBroker 接口
func (b *AMQPBroker) Close() error {
	close(b.done)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, chans := range b.outputs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.outputs = make(map[string][]chan BrokerMessage)

	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// safeURL 去掉 URL 中的凭据再打日志
func safeURL(url string) string {
	if i := strings.IndexByte(url, '@'); i >= 0 {
		return "amqp://[credentials]" + url[i:]
	}
	return url
}
