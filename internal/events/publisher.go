package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
)

const (
	// DefaultQueue is the durable queue status changes are routed to.
	DefaultQueue = StatusChangedType

	defaultBufferSize     = 256
	defaultPublishTimeout = 5 * time.Second
	contentTypeJSON       = "application/json"
)

var (
	// ErrPublisherClosed is returned once Close has been called.
	ErrPublisherClosed = errors.New("event publisher closed")
	// ErrBufferFull is returned when the broker cannot keep up with committed changes.
	ErrBufferFull = errors.New("event buffer full")
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange string, key string, mandatory bool, immediate bool, msg amqp.Publishing) error
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithBufferSize bounds the number of messages waiting for the broker.
func WithBufferSize(size int) Option {
	return func(publisher *Publisher) {
		if size > 0 {
			publisher.bufferSize = size
		}
	}
}

// WithPublishTimeout bounds each broker round trip.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(publisher *Publisher) {
		if timeout > 0 {
			publisher.publishTimeout = timeout
		}
	}
}

// WithCloser releases broker resources after the queue drains.
func WithCloser(closer func() error) Option {
	return func(publisher *Publisher) {
		publisher.closer = closer
	}
}

// Publisher implements booking.EventPublisher. Messages are accepted without
// blocking the caller and delivered by a single worker goroutine in commit order.
type Publisher struct {
	channel        Channel
	queue          string
	logger         *zap.Logger
	bufferSize     int
	publishTimeout time.Duration
	closer         func() error
	nowFn          func() time.Time

	mu       sync.RWMutex
	closed   bool
	messages chan StatusChangedMessage
	done     chan struct{}
}

// NewPublisher starts a publisher writing to queue over channel.
func NewPublisher(channel Channel, queue string, logger *zap.Logger, options ...Option) (*Publisher, error) {
	if channel == nil {
		return nil, errors.New("events: channel is nil")
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := &Publisher{
		channel:        channel,
		queue:          queue,
		logger:         logger,
		bufferSize:     defaultBufferSize,
		publishTimeout: defaultPublishTimeout,
		nowFn:          time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(publisher)
		}
	}
	publisher.messages = make(chan StatusChangedMessage, publisher.bufferSize)
	publisher.done = make(chan struct{})
	go publisher.run()
	return publisher, nil
}

// Dial connects to the broker, declares the durable queue and starts a publisher.
func Dial(url string, queue string, logger *zap.Logger, options ...Option) (*Publisher, error) {
	if strings.TrimSpace(queue) == "" {
		queue = DefaultQueue
	}
	connection, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial: %w", err)
	}
	channel, err := connection.Channel()
	if err != nil {
		_ = connection.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = connection.Close()
		return nil, fmt.Errorf("events: declare queue %s: %w", queue, err)
	}
	closer := func() error {
		return errors.Join(channel.Close(), connection.Close())
	}
	return NewPublisher(channel, queue, logger, append(options, WithCloser(closer))...)
}

// PublishStatusChanged enqueues the event for delivery.
func (publisher *Publisher) PublishStatusChanged(ctx context.Context, event booking.StatusChangedEvent) error {
	message := NewStatusChangedMessage(event)
	publisher.mu.RLock()
	defer publisher.mu.RUnlock()
	if publisher.closed {
		return ErrPublisherClosed
	}
	select {
	case publisher.messages <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w: reservation %s", ErrBufferFull, message.ReservationID)
	}
}

// Close stops accepting events, delivers what is buffered and releases the broker connection.
func (publisher *Publisher) Close() error {
	publisher.mu.Lock()
	if publisher.closed {
		publisher.mu.Unlock()
		<-publisher.done
		return nil
	}
	publisher.closed = true
	close(publisher.messages)
	publisher.mu.Unlock()

	<-publisher.done
	if publisher.closer != nil {
		return publisher.closer()
	}
	return nil
}

func (publisher *Publisher) run() {
	defer close(publisher.done)
	for message := range publisher.messages {
		if err := publisher.deliver(message); err != nil {
			publisher.logger.Warn("event publish failed",
				zap.String("queue", publisher.queue),
				zap.String("reservation_id", message.ReservationID),
				zap.String("to_status", message.ToStatus),
				zap.Int64("version", message.Version),
				zap.Error(err),
			)
			continue
		}
		publisher.logger.Debug("event published",
			zap.String("queue", publisher.queue),
			zap.String("reservation_id", message.ReservationID),
			zap.String("to_status", message.ToStatus),
		)
	}
}

func (publisher *Publisher) deliver(message StatusChangedMessage) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), publisher.publishTimeout)
	defer cancel()
	return publisher.channel.PublishWithContext(ctx, "", publisher.queue, false, false, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		Timestamp:    publisher.nowFn().UTC(),
		MessageId:    fmt.Sprintf("%s/%d", message.ReservationID, message.Version),
		Type:         message.Type,
		Body:         body,
	})
}
