package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"serein/pkg/kafka"
	kafka_config "serein/pkg/kafka/config"
	"serein/pkg/logger"
	"serein/pkg/model"
)

const subscriptionBuffer = 16

// Subscription is one live watch on a therapist-day. Events arrive on
// Events() in emission order. The channel closes when the subscription
// dies for any reason, including Unsubscribe; a closed channel tells the
// consumer to fall back to on-demand re-resolution.
type Subscription struct {
	TherapistID string
	Date        time.Time

	events chan model.AvailabilityChangeEvent
	key    string
	log    *logger.Logger

	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}

	// pending holds the one event coalesced out of a full buffer. Only
	// the consumer goroutine touches it.
	pending *model.AvailabilityChangeEvent
}

func (s *Subscription) Events() <-chan model.AvailabilityChangeEvent {
	return s.events
}

// Unsubscribe stops the consumer and closes the events channel. Safe to
// call more than once.
func (s *Subscription) Unsubscribe() {
	s.cancel()
	<-s.done
}

// handle filters the shared topic down to this subscription's key and
// forwards decoded events. A full buffer never blocks the consumer:
// overflow coalesces into a single pending event, delivered as soon as
// the receiver frees a slot. Receivers re-resolve on every event, so one
// surviving event carries the whole backlog's signal.
func (s *Subscription) handle(_ context.Context, msg kafka.Message) error {
	if msg.Key != s.key {
		return nil
	}

	var event model.AvailabilityChangeEvent
	if err := msg.DecodeValue(&event); err != nil {
		s.log.Warn("Dropping undecodable availability event",
			"key", msg.Key,
			"error", err,
		)
		return nil
	}

	if s.pending != nil {
		select {
		case s.events <- *s.pending:
			s.pending = nil
		default:
		}
	}
	if s.pending == nil {
		select {
		case s.events <- event:
			return nil
		default:
		}
	}

	// Still no room. Keep the newest event, except that a booked event
	// already pending must not lose to lock churn behind it.
	if s.pending == nil || event.ChangeType == model.ChangeBooked || s.pending.ChangeType != model.ChangeBooked {
		s.pending = &event
	}
	s.log.Warn("Subscription buffer full, coalescing availability events",
		"therapist_id", s.TherapistID,
		"change_type", event.ChangeType,
	)
	return nil
}

// Subscriber creates per-consumer subscriptions on the availability topic.
// Every subscription gets its own consumer group so the topic behaves as a
// broadcast: all watchers of a therapist-day see all of its events.
type Subscriber struct {
	cfg *kafka_config.Config
	log *logger.Logger
}

func NewSubscriber(cfg *kafka_config.Config, log *logger.Logger) *Subscriber {
	return &Subscriber{cfg: cfg, log: log}
}

func (s *Subscriber) Subscribe(ctx context.Context, therapistID string, date time.Time) (*Subscription, error) {
	if therapistID == "" {
		return nil, fmt.Errorf("therapist id cannot be empty")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		TherapistID: therapistID,
		Date:        date,
		events:      make(chan model.AvailabilityChangeEvent, subscriptionBuffer),
		key:         TopicKey(therapistID, date),
		log:         s.log,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	groupID := "availability-sub-" + uuid.NewString()
	consumer, err := kafka.NewConsumer(s.cfg, Topic, groupID, sub.handle)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create availability consumer: %w", err)
	}

	go func() {
		defer close(sub.done)
		defer sub.closeOnce.Do(func() { close(sub.events) })
		defer consumer.Close()

		err := consumer.Start(subCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("Availability subscription terminated",
				"therapist_id", therapistID,
				"group_id", groupID,
				"error", err,
			)
		}
	}()

	return sub, nil
}
