// Package events publishes signal snapshots to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ispfinder/ispfinder/internal/config"
	"github.com/ispfinder/ispfinder/internal/retry"
)

// Kind names the signal carried by a message.
type Kind string

const (
	KindSpeedTest Kind = "speedtest"
	KindStatus    Kind = "status"
)

// Message is the JSON value written to the topic.
type Message struct {
	Kind    Kind            `json:"kind"`
	CityID  string          `json:"cityId"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher delivers signal snapshots to a sink.
type Publisher interface {
	Publish(ctx context.Context, kind Kind, cityID string, payload any) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Publish(context.Context, Kind, string, any) error { return nil }
func (Nop) Close() error                                      { return nil }

// KafkaPublisher writes messages keyed by city id so that the snapshots of a
// city stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	policy retry.Policy
	log    *slog.Logger
}

// New returns a KafkaPublisher when brokers are configured and Nop otherwise.
func New(cfg config.EventsConfig, log *slog.Logger) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		log.Info("event publishing disabled")
		return Nop{}, nil
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("events topic must not be empty")
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	log.Info("event publishing enabled", "topic", cfg.Topic, "brokers", strings.Join(cfg.Brokers, ","))
	return newKafkaPublisher(w, log), nil
}

func newKafkaPublisher(w messageWriter, log *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		policy: retry.Policy{
			MaxRetries:     2,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     time.Second,
			BackoffFactor:  2.0,
			Jitter:         true,
		},
		log: log.With("component", "events"),
	}
}

// Publish encodes payload and writes it, retrying transient broker errors.
func (p *KafkaPublisher) Publish(ctx context.Context, kind Kind, cityID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	value, err := json.Marshal(Message{Kind: kind, CityID: cityID, Payload: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", kind, err)
	}

	msg := kafka.Message{Key: []byte(cityID), Value: value}
	err = retry.Do(ctx, p.policy, func(ctx context.Context) error {
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			if isTransient(err) {
				return retry.Temporary(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		p.log.Warn("event publish failed", "kind", kind, "city_id", cityID, "error", err)
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}

	p.log.Debug("event published", "kind", kind, "city_id", cityID)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func isTransient(err error) bool {
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
