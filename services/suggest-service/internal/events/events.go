package events

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotsuggest/libs/kafkax"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/slots"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultSuggestTopic = "suggest.slots.suggested.v1"
	EventSlotsSuggested = "slots.suggested.v1"
)

type SlotRef struct {
	StartISO string `json:"start_iso"`
	EndISO   string `json:"end_iso"`
}

// SlotsSuggested is emitted once per /suggest call that produced slots.
type SlotsSuggested struct {
	EventID    string    `json:"event_id"`
	ProviderID string    `json:"provider_id"`
	Timezone   string    `json:"timezone"`
	Source     string    `json:"source"`
	Slots      []SlotRef `json:"slots"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewSlotsSuggested(providerID, timezone, source string, candidates []slots.CandidateSlot, now time.Time) SlotsSuggested {
	refs := make([]SlotRef, 0, len(candidates))
	for _, c := range candidates {
		refs = append(refs, SlotRef{StartISO: c.Start.Format(slots.ISOLayout), EndISO: c.End.Format(slots.ISOLayout)})
	}
	return SlotsSuggested{
		EventID:    uuid.NewString(),
		ProviderID: providerID,
		Timezone:   timezone,
		Source:     source,
		Slots:      refs,
		OccurredAt: now.UTC(),
	}
}

type Publisher interface {
	PublishSlotsSuggested(ctx context.Context, evt SlotsSuggested) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by provider id so one provider's events
// stay ordered on a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultSuggestTopic
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
		topic: topic,
	}
}

func (p *KafkaPublisher) PublishSlotsSuggested(ctx context.Context, evt SlotsSuggested) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := kafkax.NewMessage(ctx, p.topic, evt.ProviderID, kafkax.EventMeta{
		EventID:   evt.EventID,
		EventType: EventSlotsSuggested,
	}, payload)
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", EventSlotsSuggested, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NoopPublisher struct{}

func (NoopPublisher) PublishSlotsSuggested(context.Context, SlotsSuggested) error { return nil }

func (NoopPublisher) Close() error { return nil }
