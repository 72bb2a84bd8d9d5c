package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const deliveryBuffer = 256

// RedisBus 基于 Redis PUBLISH/SUBSCRIBE。发布复用共享客户端，每条 Link 独占一个 PubSub 连接。
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *RedisBus) Publish(ctx context.Context, channel, payload string) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *RedisBus) Link(ctx context.Context) (Link, error) {
	l := &redisLink{
		ps:         b.rdb.Subscribe(ctx),
		deliveries: make(chan Delivery, deliveryBuffer),
		subAcks:    make(chan string, 16),
		unsubAcks:  make(chan string, 16),
		done:       make(chan struct{}),
		channels:   make(map[string]struct{}),
	}
	return l, nil
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}

type redisLink struct {
	ps         *redis.PubSub
	deliveries chan Delivery
	subAcks    chan string
	unsubAcks  chan string
	done       chan struct{}
	start      sync.Once
	started    atomic.Bool
	closeOnce  sync.Once

	mu       sync.Mutex
	channels map[string]struct{}
}

func (l *redisLink) Subscribe(ctx context.Context, channels ...string) error {
	if err := l.ps.Subscribe(ctx, channels...); err != nil {
		return fmt.Errorf("subscribe %v: %w", channels, err)
	}
	l.start.Do(func() {
		l.started.Store(true)
		go l.receive()
	})
	return l.await(ctx, l.subAcks, channels)
}

// await 等待 channels 中每个频道的确认。
func (l *redisLink) await(ctx context.Context, acks <-chan string, channels []string) error {
	pending := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		pending[ch] = struct{}{}
	}
	for len(pending) > 0 {
		select {
		case ch := <-acks:
			delete(pending, ch)
		case <-l.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *redisLink) Unsubscribe(ctx context.Context, channels ...string) error {
	l.mu.Lock()
	for _, ch := range channels {
		delete(l.channels, ch)
	}
	l.mu.Unlock()
	if !l.started.Load() {
		return nil
	}
	if err := l.ps.Unsubscribe(ctx, channels...); err != nil {
		return err
	}
	return l.await(ctx, l.unsubAcks, channels)
}

func (l *redisLink) Subscribed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.channels) > 0
}

func (l *redisLink) Deliveries() <-chan Delivery { return l.deliveries }

func (l *redisLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.ps.Close()
	})
	return err
}

// receive 把 PubSub 上的回复翻译成 Delivery，链路关闭或出错时关闭 deliveries。
func (l *redisLink) receive() {
	defer close(l.deliveries)
	ctx := context.Background()
	for {
		msg, err := l.ps.Receive(ctx)
		if err != nil {
			select {
			case <-l.done:
			default:
				log.Warn().Err(err).Msg("bus receive")
			}
			return
		}
		var d Delivery
		switch m := msg.(type) {
		case *redis.Subscription:
			d = Delivery{Kind: Kind(m.Kind), Channel: m.Channel}
			switch m.Kind {
			case "subscribe":
				l.mu.Lock()
				l.channels[m.Channel] = struct{}{}
				l.mu.Unlock()
				select {
				case l.subAcks <- m.Channel:
				case <-l.done:
					return
				}
			case "unsubscribe":
				select {
				case l.unsubAcks <- m.Channel:
				default:
				}
			}
		case *redis.Message:
			d = Delivery{Kind: KindMessage, Channel: m.Channel, Payload: m.Payload}
		default:
			continue
		}
		select {
		case l.deliveries <- d:
		case <-l.done:
			return
		}
	}
}
