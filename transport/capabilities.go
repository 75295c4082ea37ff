package transport

// Capabilities describes how a transport treats a message the service does
// not acknowledge, which decides what happens to a message an interceptor
// refuses.
type Capabilities struct {
	Name string `json:"name"`
	// SupportsAck means acknowledged messages are not delivered again.
	SupportsAck bool `json:"supports_ack"`
	// SupportsNack means a refused message is redelivered.
	SupportsNack bool `json:"supports_nack"`
	// SupportsOrdering means messages of one topic arrive in publish order.
	SupportsOrdering bool `json:"supports_ordering"`
	// MaxMessageSize in bytes, 0 when unknown.
	MaxMessageSize int64 `json:"max_message_size,omitempty"`
}

// RedeliversRefused reports whether a message refused by an interceptor comes
// back for another attempt.
func (c Capabilities) RedeliversRefused() bool {
	return c.SupportsAck && c.SupportsNack
}

// Capability sets of the built-in transports.
var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
		MaxMessageSize:   1 << 20,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
	}

	NATSCapabilities = Capabilities{
		Name:           "nats",
		MaxMessageSize: 1 << 20,
	}

	HTTPCapabilities = Capabilities{
		Name:        "http",
		SupportsAck: true,
	}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
		MaxMessageSize:   256 << 10,
	}
)
