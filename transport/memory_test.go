package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func assertSilent(t *testing.T, ch <-chan Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message on %s", msg.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBrokerReplaysRetainedInPublishOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewMemoryBroker()
	require.NoError(t, b.Publish(ctx, Message{Topic: "a/1", Payload: []byte("one"), Retained: true}))
	require.NoError(t, b.Publish(ctx, Message{Topic: "a/2", Payload: []byte("two"), Retained: true}))
	require.NoError(t, b.Publish(ctx, Message{Topic: "a/1", Payload: []byte("three"), Retained: true}))
	require.NoError(t, b.Publish(ctx, Message{Topic: "a/3", Payload: []byte("transient")}))
	require.NoError(t, b.Publish(ctx, Message{Topic: "b/1", Payload: []byte("other"), Retained: true}))

	out := make(chan Message)
	require.NoError(t, b.Subscribe(ctx, "a/+", out))

	assert.Equal(t, "two", string(receive(t, out).Payload))
	first := receive(t, out)
	assert.Equal(t, "a/1", first.Topic)
	assert.Equal(t, "three", string(first.Payload))
	assert.True(t, first.Retained)
	assertSilent(t, out)
}

func TestMemoryBrokerLiveDeliveryKeepsOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewMemoryBroker()
	out := make(chan Message)
	require.NoError(t, b.Subscribe(ctx, "x/#", out))

	for i := 0; i < 50; i++ {
		require.NoError(t, b.Publish(ctx, Message{Topic: "x/y", Payload: []byte{byte(i)}, Retained: true}))
	}
	for i := 0; i < 50; i++ {
		msg := receive(t, out)
		assert.Equal(t, []byte{byte(i)}, msg.Payload)
		assert.False(t, msg.Retained)
	}
}

func TestMemoryBrokerEmptyPayloadClearsRetained(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	require.NoError(t, b.Publish(ctx, Message{Topic: "a/1", Payload: []byte("x"), Retained: true}))
	_, ok := b.Retained("a/1")
	require.True(t, ok)

	require.NoError(t, b.Publish(ctx, Message{Topic: "a/1", Retained: true}))
	_, ok = b.Retained("a/1")
	assert.False(t, ok)
}

func TestMemoryBrokerStopsDeliveringAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewMemoryBroker()

	out := make(chan Message, 1)
	require.NoError(t, b.Subscribe(ctx, "#", out))
	cancel()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.subs) == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, b.Publish(context.Background(), Message{Topic: "a", Payload: []byte("x")}))
	assertSilent(t, out)
}

func TestMemoryBrokerClosed(t *testing.T) {
	b := NewMemoryBroker()
	require.NoError(t, b.Close())

	err := b.Publish(context.Background(), Message{Topic: "a"})
	assert.Error(t, err)
	err = b.Subscribe(context.Background(), "a", make(chan Message))
	assert.Error(t, err)
}

func TestPumpNeverBlocksProducer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Message)
	p := NewPump(ctx, out)
	for i := 0; i < 1000; i++ {
		p.Push(Message{Topic: "t", Payload: []byte{byte(i % 256)}})
	}
	for i := 0; i < 1000; i++ {
		assert.Equal(t, []byte{byte(i % 256)}, receive(t, out).Payload)
	}
}
