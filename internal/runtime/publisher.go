package runtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	idspkg "github.com/drblury/flowguard/internal/runtime/ids"
	metadatapkg "github.com/drblury/flowguard/internal/runtime/metadata"
)

// NewMessage builds a message with a ULID identity and a correlation id.
func NewMessage(payload []byte, metadata metadatapkg.Metadata) *message.Message {
	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata = metadatapkg.ToWatermill(metadata)
	if msg.Metadata.Get(MetadataKeyCorrelationID) == "" {
		msg.Metadata.Set(MetadataKeyCorrelationID, msg.UUID)
	}
	return msg
}

// Publish sends payload to topic on publisher.
func Publish(ctx context.Context, publisher message.Publisher, topic string, payload []byte, metadata metadatapkg.Metadata) error {
	if publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	msg := NewMessage(payload, metadata)
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return publisher.Publish(topic, msg)
}

// Publish sends payload to topic using the service transport, so that
// producers living next to a workflow do not need the Watermill APIs.
func (s *Service) Publish(ctx context.Context, topic string, payload []byte, metadata metadatapkg.Metadata) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	return Publish(ctx, s.publisher, topic, payload, metadata)
}
