package repository

import (
	"context"
	"strconv"
	"sync"

	"SecMaster/internal/domain/models"
	"SecMaster/internal/domain/repository"
	pkgkafka "SecMaster/pkg/kafka"
)

// KafkaPublisher publishes domain events to the events topic.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// PublishEvent keys consensus events by instrument so they stay ordered per
// partition; other events are keyed by type.
func (p *KafkaPublisher) PublishEvent(ctx context.Context, ev models.DomainEvent) error {
	key := ev.Type
	if u, ok := ev.Payload.(models.ConsensusUpdate); ok {
		key = strconv.FormatInt(u.InstrumentID, 10)
	}
	return p.producer.Publish(ctx, p.topic, []byte(key), ev)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops events. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishEvent(context.Context, models.DomainEvent) error { return nil }
func (NopPublisher) Close() error                                           { return nil }

// RecordingPublisher keeps events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []models.DomainEvent
}

func (r *RecordingPublisher) PublishEvent(_ context.Context, ev models.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns the events of the given type, or all events when typ is empty.
func (r *RecordingPublisher) Events(typ string) []models.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DomainEvent
	for _, ev := range r.events {
		if typ == "" || ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *RecordingPublisher) Close() error { return nil }

var (
	_ repository.Publisher = (*KafkaPublisher)(nil)
	_ repository.Publisher = NopPublisher{}
	_ repository.Publisher = (*RecordingPublisher)(nil)
)
