package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/flowguard/transport"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.False(t, transport.CapabilitiesOf(TransportName).RedeliversRefused())
}

func TestBuild(t *testing.T) {
	cfg := transport.Config{
		System: TransportName,
		NATS: transport.NATSConfig{
			URL:           "nats://localhost:4222",
			ClientName:    "flowguard",
			MaxReconnects: -1,
			ReconnectWait: time.Second,
		},
	}

	t.Run("creates transport with mocked factories", func(t *testing.T) {
		restore := swapFactories()
		defer restore()

		mockPub := &mockPublisher{}
		mockSub := &mockSubscriber{}

		PublisherFactory = func(cfg nats.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
			assert.Equal(t, "nats://localhost:4222", cfg.URL)
			assert.Len(t, cfg.NatsOptions, 3)
			return mockPub, nil
		}
		SubscriberFactory = func(cfg nats.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
			assert.Equal(t, "nats://localhost:4222", cfg.URL)
			assert.Len(t, cfg.NatsOptions, 3)
			return mockSub, nil
		}

		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Same(t, mockPub, tr.Publisher)
		assert.Same(t, mockSub, tr.Subscriber)
	})

	t.Run("returns error when publisher factory fails", func(t *testing.T) {
		restore := swapFactories()
		defer restore()

		PublisherFactory = func(nats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), cfg, watermill.NopLogger{})
		assert.ErrorContains(t, err, "publisher error")
	})

	t.Run("closes publisher when subscriber factory fails", func(t *testing.T) {
		restore := swapFactories()
		defer restore()

		pub := &mockPublisher{}
		PublisherFactory = func(nats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return pub, nil
		}
		SubscriberFactory = func(nats.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		_, err := Build(context.Background(), cfg, watermill.NopLogger{})
		assert.ErrorContains(t, err, "subscriber error")
		assert.True(t, pub.closed)
	})
}

func TestConnectOptions(t *testing.T) {
	assert.Empty(t, connectOptions(transport.NATSConfig{URL: "nats://localhost:4222"}))
	assert.Len(t, connectOptions(transport.NATSConfig{ClientName: "svc"}), 1)
	assert.Len(t, connectOptions(transport.NATSConfig{MaxReconnects: 5, ReconnectWait: time.Second}), 2)
}

func swapFactories() func() {
	pub, sub := PublisherFactory, SubscriberFactory
	return func() {
		PublisherFactory = pub
		SubscriberFactory = sub
	}
}

type mockPublisher struct{ closed bool }

func (m *mockPublisher) Publish(string, ...*message.Message) error { return nil }
func (m *mockPublisher) Close() error {
	m.closed = true
	return nil
}

type mockSubscriber struct{}

func (m *mockSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}
func (m *mockSubscriber) Close() error { return nil }
