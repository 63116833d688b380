package notifier

import (
	"context"
	"fmt"
	"time"

	"serein/pkg/kafka"
	kafka_config "serein/pkg/kafka/config"
	kafka_middleware "serein/pkg/kafka/middleware"
	"serein/pkg/logger"
	"serein/pkg/model"
)

const (
	// Topic carries every availability change. Events are keyed per
	// (therapist, date) so one day's stream lands in a single partition
	// and is observed in emission order.
	Topic = "availability-changes"

	Source = "booking"
)

// TopicKey is the partition key for one therapist-day.
func TopicKey(therapistID string, slotDatetime time.Time) string {
	return therapistID + "|" + slotDatetime.UTC().Format("2006-01-02")
}

type messageSink interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Publisher broadcasts availability change events. Publication is
// fire-and-forget from the caller's point of view: bookable truth lives in
// storage, events only prompt subscribers to re-read it.
type Publisher struct {
	sink messageSink
	log  *logger.Logger
}

func NewPublisher(cfg *kafka_config.Config, log *logger.Logger) (*Publisher, error) {
	producer, err := kafka.NewProducer(cfg, Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to create availability producer: %w", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(log))

	return &Publisher{sink: producer, log: log}, nil
}

func (p *Publisher) Publish(ctx context.Context, event model.AvailabilityChangeEvent) error {
	msg := kafka.NewMessage().
		WithKey(TopicKey(event.TherapistID, event.SlotDatetime)).
		WithValue(event).
		WithEventType(event.ChangeType).
		WithSource(Source).
		Build()

	if err := p.sink.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish availability event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.sink.Close()
}
