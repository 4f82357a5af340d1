package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "expensedash/internal/log"
)

const maxBackoff = 30 * time.Second

// AMQPPublisher publishes events to a durable direct exchange.
type AMQPPublisher struct {
	url          string
	exchangeName string
	logger       *applog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

var _ Publisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher creates a publisher. Call Connect before publishing.
func NewAMQPPublisher(url, exchangeName string, logger *applog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &AMQPPublisher{
		url:          url,
		exchangeName: exchangeName,
		logger:       logger.WithComponent(applog.ComponentEvents),
	}
}

// Connect dials the broker, retrying connection errors with exponential
// backoff until maxAttempts is reached or ctx is done.
func (p *AMQPPublisher) Connect(ctx context.Context, maxAttempts int) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		p.mu.Lock()
		lastErr = p.connectLocked()
		p.mu.Unlock()
		if lastErr == nil {
			return nil
		}
		if !isConnectionError(lastErr) {
			return lastErr
		}

		wait := exponentialBackoff(attempt)
		p.logger.WarnContext(ctx, "AMQP connection failed, retrying",
			applog.FieldError, lastErr,
			"attempt", attempt+1,
			"backoff", wait.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("connect AMQP after %d attempts: %w", maxAttempts, lastErr)
}

func (p *AMQPPublisher) connectLocked() error {
	conn, err := amqp091.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		p.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = channel
	return nil
}

// Publish sends e as a persistent JSON message. A dropped connection is
// re-dialled once before giving up.
func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	err = p.publishLocked(ctx, e.RoutingKey(), body)
	if err != nil && isConnectionError(err) {
		p.resetLocked()
		if cerr := p.connectLocked(); cerr != nil {
			return errors.Join(err, cerr)
		}
		err = p.publishLocked(ctx, e.RoutingKey(), body)
	}
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	p.logger.DebugContext(ctx, "Published expense event",
		"action", string(e.Action),
		applog.FieldExpenseID, e.ExpenseID,
		applog.FieldUserID, e.UserID,
		"exchange", p.exchangeName)
	return nil
}

func (p *AMQPPublisher) publishLocked(ctx context.Context, key string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.channel.PublishWithContext(
		ctx,
		p.exchangeName, // exchange
		key,            // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) resetLocked() {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

// exponentialBackoff returns 1s, 2s, 4s... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"eof",
		"broken pipe",
		"use of closed network connection",
		"no such host",
		"i/o timeout",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
