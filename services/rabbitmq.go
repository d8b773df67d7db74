package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const consumerRetryDelay = 3 * time.Second

var errConsumerClosed = errors.New("rabbitmq delivery channel closed")

// delivery - конверт события в брокере: кому и что
type delivery struct {
	UserID int64 `json:"user_id"`
	Event  Event `json:"event"`
}

// RabbitNotifier публикует события в topic exchange с ключом user.<id>.
// Каждая реплика слушает user.* своей эксклюзивной очередью и отдаёт события
// в локальный реестр, так что получатель найдётся на любой реплике.
// Если брокер недоступен или breaker открыт, событие доставляется локально.
// Пока собственный консьюмер не работает, события своим пользователям
// тоже отдаются напрямую.
type RabbitNotifier struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel

	consuming  atomic.Bool
	retryDelay time.Duration

	publish  func(ctx context.Context, userID int64, event Event) error
	local    *LocalNotifier
	registry *Registry
	presence Presence
	breaker  *gobreaker.CircuitBreaker[struct{}]
	log      *zap.Logger
}

func NewRabbitNotifier(url, exchange string, registry *Registry, presence Presence, log *zap.Logger) (*RabbitNotifier, error) {
	n := newRabbitNotifier(url, exchange, registry, presence, log)
	n.mu.Lock()
	err := n.connect()
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}
	log.Info("RabbitMQ initialized", zap.String("exchange", exchange))
	return n, nil
}

func newRabbitNotifier(url, exchange string, registry *Registry, presence Presence, log *zap.Logger) *RabbitNotifier {
	n := &RabbitNotifier{
		url:        url,
		exchange:   exchange,
		retryDelay: consumerRetryDelay,
		local:      NewLocalNotifier(registry),
		registry:   registry,
		presence:   presence,
		log:        log,
	}
	n.publish = n.publishAMQP
	n.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "rabbitmq-publish",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return n
}

// connect (пере)открывает соединение и канал публикации. Вызывается под mu.
func (n *RabbitNotifier) connect() error {
	if n.conn != nil && !n.conn.IsClosed() && n.channel != nil && !n.channel.IsClosed() {
		return nil
	}
	if n.conn == nil || n.conn.IsClosed() {
		conn, err := amqp.Dial(n.url)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		n.conn = conn
	}
	channel, err := n.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(
		n.exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = channel.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	n.channel = channel
	return nil
}

func routingKey(userID int64) string {
	return fmt.Sprintf("user.%d", userID)
}

// Notify публикует событие; при ошибке публикации доставляет локально.
// Публикация не гарантирует доставку, поэтому результат - в сети ли получатель.
func (n *RabbitNotifier) Notify(ctx context.Context, userID int64, event Event) bool {
	_, err := n.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, n.publish(ctx, userID, event)
	})
	if err != nil {
		n.log.Warn("publish failed, delivering locally", zap.Int64("user_id", userID), zap.Error(err))
		return n.local.Notify(ctx, userID, event)
	}
	recordPush("broker", pushPublished)

	if !n.consuming.Load() {
		// свой консьюмер не слушает очередь: пользователи этой реплики получат только так
		if n.local.Notify(ctx, userID, event) {
			return true
		}
	}
	if n.presence == nil {
		return true
	}
	return n.presence.IsOnline(ctx, userID)
}

func (n *RabbitNotifier) publishAMQP(ctx context.Context, userID int64, event Event) error {
	body, err := json.Marshal(delivery{UserID: userID, Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.connect(); err != nil {
		return err
	}
	return n.channel.PublishWithContext(pubCtx,
		n.exchange,
		routingKey(userID),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
}

// Consume слушает события для всех пользователей и отдаёт их в реестр этого
// процесса. После обрыва переподключается через retryDelay. Блокируется до
// отмены ctx.
func (n *RabbitNotifier) Consume(ctx context.Context) error {
	for {
		err := n.consumeOnce(ctx)
		n.consuming.Store(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.log.Error("rabbitmq consumer stopped, reconnecting",
			zap.Error(err), zap.Duration("delay", n.retryDelay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(n.retryDelay):
		}
	}
}

func (n *RabbitNotifier) consumeOnce(ctx context.Context) error {
	n.mu.Lock()
	err := n.connect()
	var consumeChannel *amqp.Channel
	if err == nil {
		consumeChannel, err = n.conn.Channel()
	}
	n.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to open consume channel: %w", err)
	}
	defer consumeChannel.Close()

	q, err := consumeChannel.QueueDeclare(
		"",    // имя выдаст сервер
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := consumeChannel.QueueBind(q.Name, "user.*", n.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	msgs, err := consumeChannel.Consume(
		q.Name,
		"",
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	n.consuming.Store(true)
	n.log.Info("rabbitmq consumer started", zap.String("queue", q.Name))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errConsumerClosed
			}
			n.dispatch(msg.Body)
		}
	}
}

// dispatch отдаёт событие из брокера в локальный реестр
func (n *RabbitNotifier) dispatch(body []byte) {
	var d delivery
	if err := json.Unmarshal(body, &d); err != nil {
		n.log.Warn("failed to unmarshal delivery", zap.Error(err))
		return
	}
	result := pushOffline
	if n.registry.Send(d.UserID, d.Event) {
		result = pushDelivered
	}
	recordPush("consumer", result)
}

func (n *RabbitNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}
