package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ridestore/internal/models"
	"ridestore/pkg/logger"
)

const reconnectInterval = 10 * time.Second

type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	Exchange string
}

// RabbitMQPublisher publishes one message per touched table to a topic
// exchange with routing key "commit.<table>".
type RabbitMQPublisher struct {
	cfg    RabbitMQConfig
	logger *logger.Logger

	mu           sync.Mutex
	conn         *amqp.Connection
	ch           *amqp.Channel
	reconnecting bool
	done         chan struct{}
}

func NewRabbitMQPublisher(cfg RabbitMQConfig, log *logger.Logger) (*RabbitMQPublisher, error) {
	p := &RabbitMQPublisher{
		cfg:    cfg,
		logger: log.WithField("component", "rabbitmq_publisher"),
		done:   make(chan struct{}),
	}
	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return p, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, event *models.CommitEvent) error {
	p.mu.Lock()
	ch, conn := p.ch, p.conn
	p.mu.Unlock()

	if conn == nil || conn.IsClosed() || ch == nil || ch.IsClosed() {
		go p.reconnect()
		return errors.New("rabbitmq connection is closed")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode commit event: %w", err)
	}

	for _, table := range event.Tables {
		routingKey := fmt.Sprintf("commit.%s", table)
		err := ch.PublishWithContext(ctx, p.cfg.Exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%s:%s", event.TxID, table),
			Timestamp:    event.CommittedAt,
			Type:         event.Type,
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("failed to publish commit %d to %s: %w", event.Seq, routingKey, err)
		}
	}
	return nil
}

func (p *RabbitMQPublisher) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		return false
	}
	return p.ch != nil && !p.ch.IsClosed()
}

func (p *RabbitMQPublisher) Close() error {
	close(p.done)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.ch.IsClosed() {
		if err := p.ch.Close(); err != nil {
			return fmt.Errorf("failed to close rabbitmq channel: %w", err)
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("failed to close rabbitmq connection: %w", err)
		}
	}
	return nil
}

func (p *RabbitMQPublisher) connect() error {
	conn, err := amqp.Dial(fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		p.cfg.User,
		p.cfg.Password,
		p.cfg.Host,
		p.cfg.Port,
		p.cfg.VHost,
	))
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	if err := ch.ExchangeDeclare(p.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.cfg.Exchange, err)
	}

	p.mu.Lock()
	p.conn = conn
	p.ch = ch
	p.mu.Unlock()
	return nil
}

func (p *RabbitMQPublisher) reconnect() {
	p.mu.Lock()
	if p.reconnecting {
		p.mu.Unlock()
		return
	}
	p.reconnecting = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.reconnecting = false
		p.mu.Unlock()
	}()

	t := time.NewTicker(reconnectInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if err := p.connect(); err == nil {
				p.logger.Info("Reconnected to rabbitmq")
				return
			}
			p.logger.Warn("Failed to reconnect to rabbitmq")
		case <-p.done:
			return
		}
	}
}
