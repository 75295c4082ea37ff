// Package http provides the HTTP transport: messages are posted to
// PublisherURL+topic and received on a server listening at ServerAddress.
package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	watermillhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/flowguard/transport"
)

const TransportName = "http"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg watermillhttp.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return watermillhttp.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, cfg watermillhttp.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return watermillhttp.NewSubscriber(addr, cfg, logger)
}

func init() {
	transport.Register(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates an HTTP transport. The subscriber's server is started in the
// background once it has been created; a refused message is answered with an
// error status and it is up to the sender to retry.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	baseURL := cfg.HTTP.PublisherURL
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	publisher, err := PublisherFactory(
		watermillhttp.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				return watermillhttp.DefaultMarshalMessageFunc(baseURL+topic, msg)
			},
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		cfg.HTTP.ServerAddress,
		watermillhttp.SubscriberConfig{
			UnmarshalMessageFunc: watermillhttp.DefaultUnmarshalMessageFunc,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	if s, ok := subscriber.(*watermillhttp.Subscriber); ok {
		go func() {
			if err := s.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				logger.Error("HTTP subscriber server stopped", err, watermill.LogFields{"addr": cfg.HTTP.ServerAddress})
			}
		}()
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}
