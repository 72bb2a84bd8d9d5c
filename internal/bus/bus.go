// Package bus 抽象发布/订阅消息总线。
//
// 每个网关连接通过 Link 拿到自己独立的订阅链路；发布走共享的 Bus。
// 没有订阅者的频道上发布的消息会被丢弃，跨频道不保证顺序。
package bus

import (
	"context"
	"errors"
)

// ErrUnavailable 表示无法连接到总线后端。
var ErrUnavailable = errors.New("bus unavailable")

// ErrClosed 表示链路已关闭。
var ErrClosed = errors.New("bus link closed")

type Kind string

const (
	KindSubscribe   Kind = "subscribe"
	KindUnsubscribe Kind = "unsubscribe"
	KindMessage     Kind = "message"
)

// Delivery 是总线推送给订阅链路的事件；只有 KindMessage 携带消息体。
type Delivery struct {
	Kind    Kind
	Channel string
	Payload string
}

type Bus interface {
	Publish(ctx context.Context, channel, payload string) error
	// Link 打开一条专属的订阅链路，链路之间不共享订阅与回调。
	Link(ctx context.Context) (Link, error)
	Ping(ctx context.Context) error
	Close() error
}

type Link interface {
	// Subscribe 在返回前等待后端确认全部频道。
	Subscribe(ctx context.Context, channels ...string) error
	// Unsubscribe 尽力而为，重复退订不报错。
	Unsubscribe(ctx context.Context, channels ...string) error
	Subscribed() bool
	// Deliveries 在链路因后端故障结束时被关闭。
	Deliveries() <-chan Delivery
	Close() error
}
