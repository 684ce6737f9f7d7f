package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	TypeOrderScheduled = "order.scheduled"
	TypeCouponsMinted  = "coupons.minted"
)

const (
	// DefaultPublishTimeout bounds one Publish call, retries included.
	DefaultPublishTimeout = 2 * time.Second
	batchTimeout          = 10 * time.Millisecond
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"-"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// New stamps an event with a fresh id. key selects the Kafka partition.
func New(eventType, key string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evs ...Event) error
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes events to Kafka. Publishing happens after the
// business transaction has committed, so a write is detached from the
// caller's cancellation and bounded by Timeout instead.
type KafkaPublisher struct {
	Writer  MessageWriter
	Timeout time.Duration
}

type PublisherOption func(*KafkaPublisher)

func WithTimeout(d time.Duration) PublisherOption {
	return func(p *KafkaPublisher) { p.Timeout = d }
}

func NewKafkaPublisher(writer MessageWriter, opts ...PublisherOption) *KafkaPublisher {
	p := &KafkaPublisher{Writer: writer, Timeout: DefaultPublishTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func NewKafkaWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           batchTimeout,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evs ...Event) error {
	if len(evs) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.Key),
			Value: payload,
			Time:  ev.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(ev.Type)},
			},
		})
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), p.Timeout)
		defer cancel()
	}

	if err := p.Writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish events: %w", err)
	}
	return nil
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }
