package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"github.com/riplimit/backend/internal/models"
)

// Sink accepts fire-and-forget copies of stored notifications.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n *models.Notification) error
}

// --- Kafka ---

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes notifications keyed by recipient so one user's messages stay ordered.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Deliver(ctx context.Context, n *models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.UserID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Type)},
			{Key: "dedupe_key", Value: []byte(n.DedupeKey)},
		},
	})
}

func (k *KafkaSink) Close() error { return k.writer.Close() }

// --- Webhook ---

// WebhookSink POSTs each notification as JSON. The dedupe key is sent as Idempotency-Key.
type WebhookSink struct {
	client *resty.Client
	url    string
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &WebhookSink{client: c, url: url}
}

func (w *WebhookSink) Name() string { return "webhook" }

func (w *WebhookSink) Deliver(ctx context.Context, n *models.Notification) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", n.DedupeKey).
		SetBody(n).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// --- Circuit breaker ---

// ErrSinkUnavailable is returned while the breaker is open.
var ErrSinkUnavailable = errors.New("notification sink unavailable")

// ResilientSink bounds every delivery with a timeout and stops calling a failing sink
// until the breaker half-opens.
type ResilientSink struct {
	next    Sink
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewResilientSink(next Sink, timeout time.Duration, logger *slog.Logger) *ResilientSink {
	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("notification sink breaker changed state", "sink", name, "from", from.String(), "to", to.String())
		},
	}
	return &ResilientSink{next: next, cb: gobreaker.NewCircuitBreaker(settings), timeout: timeout}
}

func (r *ResilientSink) Name() string { return r.next.Name() }

func (r *ResilientSink) Deliver(ctx context.Context, n *models.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, r.next.Deliver(ctx, n)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", r.next.Name(), ErrSinkUnavailable)
	}
	return err
}
