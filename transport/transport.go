// Package transport builds the Watermill publisher and subscriber a flowguard
// service consumes from and publishes to. Each backend lives in its own
// sub-package and registers a Builder under its name.
package transport

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes the publisher and subscriber.
func (t Transport) Close() error {
	var firstErr error
	if t.Subscriber != nil {
		firstErr = t.Subscriber.Close()
	}
	if t.Publisher != nil && any(t.Publisher) != any(t.Subscriber) {
		if err := t.Publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config selects a transport by System and carries the settings of every
// backend. A builder only reads its own section.
type Config struct {
	System string

	Kafka    KafkaConfig
	RabbitMQ RabbitMQConfig
	NATS     NATSConfig
	HTTP     HTTPConfig
	AWS      AWSConfig
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string
}

type RabbitMQConfig struct {
	URL string
	// Prefetch caps the unacknowledged deliveries per consumer. Zero keeps
	// Watermill's durable pub/sub default of 1.
	Prefetch int
}

type NATSConfig struct {
	URL string
	// ClientName identifies the connection on the NATS server.
	ClientName string
	// MaxReconnects is the number of reconnect attempts; negative retries forever.
	MaxReconnects int
	ReconnectWait time.Duration
}

type HTTPConfig struct {
	ServerAddress string
	// PublisherURL is the base URL messages are posted to; the topic is appended.
	PublisherURL string
}

type AWSConfig struct {
	Region          string
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint optionally points at a custom endpoint such as LocalStack.
	Endpoint string
}
