package notify

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sony/gobreaker"

	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	"github.com/drblury/flowguard/internal/runtime/ids"
	loggingpkg "github.com/drblury/flowguard/internal/runtime/logging"
	"github.com/drblury/flowguard/internal/runtime/metadata"
)

// Metadata keys set on notification messages.
const (
	MetadataKeyNotification = "flowguard_notification"
	MetadataKeyContentType  = "content_type"
)

// MessagePublisherConfig configures a MessagePublisher.
type MessagePublisherConfig struct {
	// Topic receives the notification messages. Required.
	Topic string
	// Codec encodes the payload. Nil means JSONCodec.
	Codec Codec
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
	// BreakerFailures is the number of consecutive failures that opens the breaker.
	BreakerFailures uint32
}

// MessagePublisher sends notifications as Watermill messages. A circuit
// breaker stops calling a failing broker until it has had time to recover.
type MessagePublisher struct {
	publisher message.Publisher
	topic     string
	codec     Codec
	breaker   *gobreaker.CircuitBreaker
	now       func() time.Time
}

func NewMessagePublisher(publisher message.Publisher, cfg MessagePublisherConfig, logger loggingpkg.ServiceLogger) (*MessagePublisher, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if cfg.Topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec{}
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	log := loggingpkg.OrNop(logger)
	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notifications:" + cfg.Topic,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("Notification breaker changed state", loggingpkg.LogFields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	return &MessagePublisher{
		publisher: publisher,
		topic:     cfg.Topic,
		codec:     cfg.Codec,
		breaker:   breaker,
		now:       time.Now,
	}, nil
}

func (p *MessagePublisher) Publish(ctx context.Context, name string, attributes metadata.Metadata) error {
	if name == "" {
		return errspkg.ErrNotificationNameMissing
	}

	n := Notification{
		ID:         ids.CreateULIDAt(p.now()),
		Name:       name,
		Attributes: attributes.Clone(),
	}
	payload, err := p.codec.Marshal(n)
	if err != nil {
		return err
	}

	msg := message.NewMessage(n.ID, payload)
	msg.Metadata.Set(MetadataKeyNotification, name)
	msg.Metadata.Set(MetadataKeyContentType, p.codec.ContentType())
	if ctx != nil {
		msg.SetContext(ctx)
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.publisher.Publish(p.topic, msg)
	})
	return err
}

// State reports the breaker state, for introspection.
func (p *MessagePublisher) State() string {
	return p.breaker.State().String()
}
