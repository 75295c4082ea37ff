// Package rabbitmq provides the RabbitMQ (AMQP 0.9.1) transport.
package rabbitmq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/flowguard/transport"
)

const TransportName = "rabbitmq"

// Factories are variables so tests can build a transport without a broker.
var (
	ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
		return amqp.NewConnection(cfg, logger)
	}
	PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
		return amqp.NewPublisherWithConnection(cfg, logger, conn)
	}
	SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
		return amqp.NewSubscriberWithConnection(cfg, logger, conn)
	}
)

func init() {
	transport.Register(TransportName, Build, transport.RabbitMQCapabilities)
}

// Config returns the durable queue-per-topic setup used by Build. A refused
// delivery is nacked and requeued, so Prefetch also bounds how many throttled
// messages circulate at once.
func Config(cfg transport.RabbitMQConfig) amqp.Config {
	c := amqp.NewDurablePubSubConfig(cfg.URL, amqp.GenerateQueueNameTopicName)
	if cfg.Prefetch > 0 {
		c.Consume.Qos.PrefetchCount = cfg.Prefetch
	}
	return c
}

// Build creates a RabbitMQ transport. Publisher and subscriber share one
// reconnecting connection.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   cfg.RabbitMQ.URL,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	amqpCfg := Config(cfg.RabbitMQ)
	pub, err := PublisherFactory(amqpCfg, logger, conn)
	if err != nil {
		return transport.Transport{}, err
	}
	sub, err := SubscriberFactory(amqpCfg, logger, conn)
	if err != nil {
		_ = pub.Close()
		return transport.Transport{}, err
	}
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}
