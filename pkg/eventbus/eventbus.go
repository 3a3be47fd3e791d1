// Package eventbus publishes Uberfuzz's two optional fire-and-forget
// events over a connection-pooled RabbitMQ publisher, for an
// out-of-process diagnostic consumer. Uberfuzz itself never waits on a
// consumer.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"uberfuzz/config"
)

const connectionPoolSize = 4

const (
	PollinationCompletedQueue = "uberfuzz.pollination.completed"
	CrashFoundQueue           = "uberfuzz.crash.found"
)

// PollinationCompletedEvent reports one pollination cycle's outcome, the
// same data the aggregated logger already emits.
type PollinationCompletedEvent struct {
	Source         string `json:"source"`
	Destination    string `json:"destination"`
	CandidateCount int    `json:"candidate_count"`
	EliteLength    int    `json:"elite_length"`
	SelectedCount  int    `json:"selected_count"`
}

// CrashFoundEvent reports one newly observed crash descriptor.
type CrashFoundEvent struct {
	FuzzerIdentifier string `json:"fuzzer_identifier"`
	InputLength      int    `json:"input_length"`
	Signal           int    `json:"signal"`
}

// EventBus publishes Uberfuzz's domain events. PublishPollinationCompleted
// and PublishCrashFound never block the caller on a slow or absent broker:
// publish failures are logged and swallowed.
type EventBus interface {
	PublishPollinationCompleted(ctx context.Context, event PollinationCompletedEvent)
	PublishCrashFound(ctx context.Context, event CrashFoundEvent)
}

// noopBus is used when RabbitMQURL is not configured: every publish is
// dropped, never erroring.
type noopBus struct{ logger *zap.Logger }

func (n noopBus) PublishPollinationCompleted(ctx context.Context, event PollinationCompletedEvent) {
	n.logger.Debug("eventbus disabled, dropping pollination.completed event")
}

func (n noopBus) PublishCrashFound(ctx context.Context, event CrashFoundEvent) {
	n.logger.Debug("eventbus disabled, dropping crash.found event")
}

type rabbitBus struct {
	logger      *zap.Logger
	rabbitmqURL string
	ctx         context.Context

	mu          sync.Mutex
	connections []*mqConnection
}

type mqConnection struct {
	conn      *amqp.Connection
	closeChan chan *amqp.Error
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool
}

type Params struct {
	fx.In
	Config    *config.AppConfig
	Logger    *zap.Logger
	Lifecycle fx.Lifecycle
}

// New constructs the EventBus the fx graph wires in: a no-op bus when
// RabbitMQURL is empty, otherwise a connection-pooled publisher.
func New(p Params) EventBus {
	logger := p.Logger.Named("eventbus")
	if p.Config.RabbitMQURL == "" {
		logger.Info("RABBITMQ_URL not configured, event publishing disabled")
		return noopBus{logger: logger}
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := &rabbitBus{
		logger:      logger,
		rabbitmqURL: p.Config.RabbitMQURL,
		ctx:         ctx,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for i := 0; i < connectionPoolSize; i++ {
				conn, err := bus.newConnection()
				if err != nil {
					logger.Warn("failed to establish initial eventbus connection", zap.Error(err))
					continue
				}
				bus.mu.Lock()
				bus.connections = append(bus.connections, conn)
				bus.mu.Unlock()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})

	return bus
}

func (b *rabbitBus) newConnection() (*mqConnection, error) {
	conn, err := amqp.Dial(b.rabbitmqURL)
	if err != nil {
		return nil, err
	}
	mc := &mqConnection{conn: conn, closeChan: make(chan *amqp.Error), logger: b.logger}
	go mc.monitor(b.ctx)
	return mc, nil
}

func (c *mqConnection) monitor(ctx context.Context) {
	c.conn.NotifyClose(c.closeChan)
	select {
	case err := <-c.closeChan:
		c.logger.Warn("eventbus connection closed", zap.Error(err))
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	case <-ctx.Done():
	}
	c.conn.Close()
}

// activeConnection returns a random healthy connection, replenishing the
// pool if it has shrunk below its configured size.
func (b *rabbitBus) activeConnection() (*mqConnection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var candidates []*mqConnection
	for _, c := range b.connections {
		c.mu.Lock()
		alive := !c.closed
		c.mu.Unlock()
		if alive {
			candidates = append(candidates, c)
		}
	}

	if len(candidates) < connectionPoolSize {
		for i := 0; i < connectionPoolSize-len(candidates); i++ {
			c, err := b.newConnection()
			if err != nil {
				continue
			}
			b.connections = append(b.connections, c)
			candidates = append(candidates, c)
		}
	}

	if len(candidates) == 0 {
		return nil, errors.New("no active eventbus connections")
	}
	return candidates[rand.Intn(len(candidates))], nil
}

func (b *rabbitBus) publish(queue string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("failed to marshal event", zap.String("queue", queue), zap.Error(err))
		return
	}

	conn, err := b.activeConnection()
	if err != nil {
		b.logger.Warn("no eventbus connection available, dropping event", zap.String("queue", queue), zap.Error(err))
		return
	}

	ch, err := conn.conn.Channel()
	if err != nil {
		b.logger.Warn("failed to open eventbus channel, dropping event", zap.String("queue", queue), zap.Error(err))
		return
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(queue, false, false, false, false, nil); err != nil {
		b.logger.Warn("failed to declare eventbus queue, dropping event", zap.String("queue", queue), zap.Error(err))
		return
	}

	if err := ch.Publish("", queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	}); err != nil {
		b.logger.Warn("failed to publish event, dropping", zap.String("queue", queue), zap.Error(err))
	}
}

func (b *rabbitBus) PublishPollinationCompleted(ctx context.Context, event PollinationCompletedEvent) {
	go b.publish(PollinationCompletedQueue, event)
}

func (b *rabbitBus) PublishCrashFound(ctx context.Context, event CrashFoundEvent) {
	go b.publish(CrashFoundQueue, event)
}

// Module wires EventBus into the fx graph.
var Module = fx.Options(fx.Provide(New))
