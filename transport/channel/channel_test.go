package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/flowguard/transport"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, transport.DefaultRegistry.Has(Alias))
	assert.Equal(t, "channel", transport.CapabilitiesOf(Alias).Name)
	assert.True(t, transport.CapabilitiesOf(TransportName).RedeliversRefused())
}

func TestBuildDeliversMessages(t *testing.T) {
	tr, err := Build(context.Background(), transport.Config{System: TransportName}, watermill.NopLogger{})
	require.NoError(t, err)
	defer tr.Close()

	msgs, err := tr.Subscriber.Subscribe(context.Background(), "orders")
	require.NoError(t, err)
	require.NoError(t, tr.Publisher.Publish("orders", message.NewMessage("m-1", []byte("hi"))))

	select {
	case msg := <-msgs:
		assert.Equal(t, "m-1", msg.UUID)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestBuildUsesFactory(t *testing.T) {
	original := Factory
	defer func() { Factory = original }()

	var gotCfg gochannel.Config
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	Factory = func(cfg gochannel.Config, _ watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
		gotCfg = cfg
		return pubSub, pubSub
	}

	tr, err := Build(context.Background(), transport.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pubSub, tr.Publisher)
	assert.Equal(t, int64(OutputBuffer), gotCfg.OutputChannelBuffer)
}
