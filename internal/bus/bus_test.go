package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBus(t *testing.T) (*RedisBus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	b := NewRedisBus(redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2}))
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

// nextMessage skips subscription acks and returns the next message delivery.
func nextMessage(t *testing.T, l Link, timeout time.Duration) (Delivery, bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case d, ok := <-l.Deliveries():
			if !ok {
				return Delivery{}, false
			}
			if d.Kind == KindMessage {
				return d, true
			}
		case <-deadline:
			return Delivery{}, false
		}
	}
}

func testLinkContract(t *testing.T, b Bus) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	l, err := b.Link(ctx)
	require.NoError(t, err)
	defer l.Close()
	assert.False(t, l.Subscribed())

	require.NoError(t, l.Subscribe(ctx, "messages"))
	require.NoError(t, l.Subscribe(ctx, "messages.bob"))
	assert.True(t, l.Subscribed())

	require.NoError(t, b.Publish(ctx, "messages.bob", "_private_ alice -> bob: hi"))
	d, ok := nextMessage(t, l, time.Second)
	require.True(t, ok)
	assert.Equal(t, Delivery{Kind: KindMessage, Channel: "messages.bob", Payload: "_private_ alice -> bob: hi"}, d)

	require.NoError(t, b.Publish(ctx, "messages.carol", "not for us"))
	require.NoError(t, b.Publish(ctx, "messages", "alice: hello"))
	d, ok = nextMessage(t, l, time.Second)
	require.True(t, ok)
	assert.Equal(t, "alice: hello", d.Payload)

	require.NoError(t, l.Unsubscribe(ctx, "messages", "messages.bob"))
	require.NoError(t, l.Unsubscribe(ctx, "messages", "messages.bob"), "repeated unsubscribe must be tolerated")
	assert.False(t, l.Subscribed())

	require.NoError(t, b.Publish(ctx, "messages", "after unsubscribe"))
	_, ok = nextMessage(t, l, 100*time.Millisecond)
	assert.False(t, ok)
}

func TestMemoryBus_LinkContract(t *testing.T) {
	testLinkContract(t, NewMemoryBus())
}

func TestRedisBus_LinkContract(t *testing.T) {
	b, _ := newRedisBus(t)
	testLinkContract(t, b)
}

func TestRedisBus_PingUnavailable(t *testing.T) {
	b, mr := newRedisBus(t)
	require.NoError(t, b.Ping(context.Background()))

	mr.Close()
	err := b.Ping(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRedisBus_CloseEndsDeliveries(t *testing.T) {
	b, _ := newRedisBus(t)
	ctx := context.Background()
	l, err := b.Link(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Subscribe(ctx, "messages"))

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	select {
	case _, ok := <-drain(l.Deliveries()):
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("deliveries not closed after Close")
	}
}

// drain discards buffered deliveries and reports when the channel closes.
func drain(ch <-chan Delivery) <-chan Delivery {
	out := make(chan Delivery)
	go func() {
		for range ch {
		}
		close(out)
	}()
	return out
}

func TestMemoryBus_DropsWithoutSubscribers(t *testing.T) {
	b := NewMemoryBus()
	require.NoError(t, b.Publish(context.Background(), "messages", "nobody listening"))
	assert.Zero(t, b.DeliveryAttempts("messages"))
	assert.Zero(t, b.Subscribers("messages"))
}

func TestMemoryBus_FanOut(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()
	links := make([]Link, 3)
	for i := range links {
		l, err := b.Link(ctx)
		require.NoError(t, err)
		require.NoError(t, l.Subscribe(ctx, "messages"))
		links[i] = l
	}
	require.NoError(t, b.Publish(ctx, "messages", "hi all"))

	assert.Equal(t, 3, b.Subscribers("messages"))
	assert.Equal(t, 3, b.DeliveryAttempts("messages"))
	for _, l := range links {
		d, ok := nextMessage(t, l, time.Second)
		require.True(t, ok)
		assert.Equal(t, "hi all", d.Payload)
	}
}

func TestMemoryBus_Fail(t *testing.T) {
	b := NewMemoryBus()
	boom := errors.New("boom")
	b.Fail(boom)

	assert.ErrorIs(t, b.Publish(context.Background(), "messages", "x"), boom)
	assert.ErrorIs(t, b.Ping(context.Background()), boom)
	_, err := b.Link(context.Background())
	assert.ErrorIs(t, err, boom)

	b.Fail(nil)
	assert.NoError(t, b.Ping(context.Background()))
}
