// Package nats provides the NATS Core transport.
package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/flowguard/transport"
)

const TransportName = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	transport.Register(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a NATS Core transport. Core NATS has no redelivery, so a
// refused message is dropped.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	marshaler := &nats.NATSMarshaler{}
	opts := connectOptions(cfg.NATS)

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         cfg.NATS.URL,
			NatsOptions: opts,
			Marshaler:   marshaler,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:         cfg.NATS.URL,
			NatsOptions: opts,
			Unmarshaler: marshaler,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

func connectOptions(cfg transport.NATSConfig) []nc.Option {
	var opts []nc.Option
	if cfg.ClientName != "" {
		opts = append(opts, nc.Name(cfg.ClientName))
	}
	if cfg.MaxReconnects != 0 {
		opts = append(opts, nc.MaxReconnects(cfg.MaxReconnects))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nc.ReconnectWait(cfg.ReconnectWait))
	}
	return opts
}
