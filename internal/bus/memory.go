package bus

import (
	"context"
	"sync"
)

// MemoryBus 是进程内的总线实现，单进程部署或测试时使用。
// 慢订阅者的缓冲区满时消息被丢弃，不阻塞发布方。
type MemoryBus struct {
	mu       sync.RWMutex
	subs     map[string]map[*memoryLink]struct{}
	attempts map[string]int
	links    int
	fail     error
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs:     make(map[string]map[*memoryLink]struct{}),
		attempts: make(map[string]int),
	}
}

// Fail 让之后的 Publish、Subscribe 和 Ping 返回 err；传 nil 恢复正常。
func (b *MemoryBus) Fail(err error) {
	b.mu.Lock()
	b.fail = err
	b.mu.Unlock()
}

func (b *MemoryBus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fail
}

func (b *MemoryBus) Publish(_ context.Context, channel, payload string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	d := Delivery{Kind: KindMessage, Channel: channel, Payload: payload}
	for l := range b.subs[channel] {
		b.attempts[channel]++
		l.deliver(d)
	}
	return nil
}

func (b *MemoryBus) Link(context.Context) (Link, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	b.links++
	return &memoryLink{
		bus:        b,
		deliveries: make(chan Delivery, deliveryBuffer),
		done:       make(chan struct{}),
		channels:   make(map[string]struct{}),
	}, nil
}

func (b *MemoryBus) Close() error { return nil }

// Links 返回累计打开过的链路数。
func (b *MemoryBus) Links() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.links
}

// Subscribers 返回频道当前的订阅链路数。
func (b *MemoryBus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// DeliveryAttempts 返回发布到频道的消息被投递给订阅链路的次数。
func (b *MemoryBus) DeliveryAttempts(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.attempts[channel]
}

type memoryLink struct {
	bus        *MemoryBus
	deliveries chan Delivery
	done       chan struct{}
	closeOnce  sync.Once

	mu       sync.Mutex
	channels map[string]struct{}
}

func (l *memoryLink) deliver(d Delivery) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.deliveries <- d:
	default:
	}
}

func (l *memoryLink) Subscribe(_ context.Context, channels ...string) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	b := l.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	for _, ch := range channels {
		set := b.subs[ch]
		if set == nil {
			set = make(map[*memoryLink]struct{})
			b.subs[ch] = set
		}
		set[l] = struct{}{}
		l.mu.Lock()
		l.channels[ch] = struct{}{}
		l.mu.Unlock()
		l.deliver(Delivery{Kind: KindSubscribe, Channel: ch})
	}
	return nil
}

func (l *memoryLink) Unsubscribe(_ context.Context, channels ...string) error {
	b := l.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range channels {
		if set, ok := b.subs[ch]; ok {
			delete(set, l)
			if len(set) == 0 {
				delete(b.subs, ch)
			}
		}
		l.mu.Lock()
		delete(l.channels, ch)
		l.mu.Unlock()
	}
	return nil
}

func (l *memoryLink) Subscribed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.channels) > 0
}

func (l *memoryLink) Deliveries() <-chan Delivery { return l.deliveries }

// Close 只停止投递，不撤销订阅；退订由调用方负责。
func (l *memoryLink) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}
