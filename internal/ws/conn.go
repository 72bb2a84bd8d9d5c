package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chatrelay/internal/bus"
	"chatrelay/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	subscribeTimeout   = 5 * time.Second
	unsubscribeTimeout = 2 * time.Second
	pingPeriod         = 30 * time.Second
)

var (
	ErrInvalidToken = errors.New("invalid token")
	errConnClosed   = errors.New("connection closed")
)

// Socket 是网关连接所需的全双工文本通道。
type Socket interface {
	ReadText() (string, error)
	WriteText(msg string) error
	Ping() error
	// Close 携带关闭原因，空串表示正常关闭。
	Close(reason string) error
}

type State int32

const (
	StateConnecting State = iota
	StateSubscribing
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateSubscribing:
		return "SUBSCRIBING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Gateway 在客户端连接与总线之间转发消息，依赖在启动时注入。
type Gateway struct {
	bus       bus.Bus
	hub       *Hub
	broadcast string
}

func NewGateway(b bus.Bus, hub *Hub, broadcast string) *Gateway {
	return &Gateway{bus: b, hub: hub, broadcast: broadcast}
}

// Hub 返回网关使用的连接登记表。
func (g *Gateway) Hub() *Hub { return g.hub }

// Peer 描述发起连接的客户端。Login 为会话解析出的身份，匿名时为空。
type Peer struct {
	Name  string
	Token string
	Login string
}

// Conn 是一条网关连接，独占一条总线链路。
type Conn struct {
	id       string
	name     string
	token    string
	login    string
	gw       *Gateway
	sock     Socket
	link     bus.Link
	channels []string
	state    atomic.Int32

	// wmu 串行化对 socket 的写，并保证关闭之后不再写。
	wmu       sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Conn) ID() string   { return c.id }
func (c *Conn) Name() string { return c.name }

// Login 返回连接所属的身份登录名，匿名连接为空。
func (c *Conn) Login() string { return c.login }

// Channels 返回连接订阅的频道：广播频道与自己的私聊频道。
func (c *Conn) Channels() []string { return append([]string(nil), c.channels...) }

func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) setState(s State) { c.state.Store(int32(s)) }

// Serve 完整地运行一条连接直到关闭。
func (g *Gateway) Serve(ctx context.Context, sock Socket, p Peer) error {
	c, err := g.Open(ctx, sock, p)
	if err != nil {
		return err
	}
	c.Run(ctx)
	return nil
}

// Open 完成 CONNECTING 与 SUBSCRIBING：token 为空时直接关闭，否则打开专属链路并订阅
// 广播与私聊频道，两者都确认后进入 OPEN 并登记到 Hub。
func (g *Gateway) Open(ctx context.Context, sock Socket, p Peer) (*Conn, error) {
	c := &Conn{
		id:       uuid.NewString(),
		name:     p.Name,
		token:    p.Token,
		login:    p.Login,
		gw:       g,
		sock:     sock,
		channels: []string{g.broadcast, PrivateChannel(g.broadcast, p.Name)},
		done:     make(chan struct{}),
	}
	if p.Token == "" {
		metrics.WsRejectedTotal.WithLabelValues("invalid_token").Inc()
		c.CloseWith(ErrInvalidToken.Error())
		return nil, ErrInvalidToken
	}

	c.setState(StateSubscribing)
	sctx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	link, err := g.bus.Link(sctx)
	if err != nil {
		metrics.WsRejectedTotal.WithLabelValues("bus").Inc()
		c.CloseWith("bus unavailable")
		return nil, fmt.Errorf("open bus link: %w", err)
	}
	c.link = link
	for _, ch := range c.channels {
		if err := link.Subscribe(sctx, ch); err != nil {
			metrics.WsRejectedTotal.WithLabelValues("bus").Inc()
			c.CloseWith("bus unavailable")
			return nil, fmt.Errorf("subscribe %s: %w", ch, err)
		}
	}

	c.setState(StateOpen)
	g.hub.Register(c)
	log.Info().Str("conn_id", c.id).Str("name", c.name).Str("login", c.login).Str("token", c.token).Msg("ws open")
	return c, nil
}

// Run 并发处理入站消息与总线投递，任何一方结束都会关闭连接。
func (c *Conn) Run(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer c.Close()
		return c.readLoop(gctx)
	})
	g.Go(func() error {
		defer c.Close()
		return c.writeLoop(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errConnClosed) {
		log.Debug().Err(err).Str("conn_id", c.id).Msg("ws loop ended")
	}
}

// readLoop 顺序处理入站消息，上一条处理完才读下一条。
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		msg, err := c.sock.ReadText()
		if err != nil {
			return err
		}
		if err := c.handle(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Conn) handle(ctx context.Context, msg string) error {
	act, ok := Route(c.gw.broadcast, c.name, msg)
	if !ok {
		return nil
	}
	if err := c.gw.bus.Publish(ctx, act.Channel, act.Payload); err != nil {
		log.Error().Err(err).Str("conn_id", c.id).Str("channel", act.Channel).Msg("ws publish")
		return fmt.Errorf("publish %s: %w", act.Channel, err)
	}
	if !act.Echo {
		metrics.BusMessagesTotal.WithLabelValues("broadcast").Inc()
		return nil
	}
	metrics.BusMessagesTotal.WithLabelValues("private").Inc()
	return c.write(act.Payload)
}

func (c *Conn) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	deliveries := c.link.Deliveries()
	for {
		select {
		case <-c.done:
			return errConnClosed
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return bus.ErrClosed
			}
			if d.Kind != bus.KindMessage {
				continue
			}
			if err := c.write(d.Payload); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return err
			}
		}
	}
}

func (c *Conn) write(msg string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.State() != StateOpen {
		return errConnClosed
	}
	return c.sock.WriteText(msg)
}

func (c *Conn) ping() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.State() != StateOpen {
		return errConnClosed
	}
	return c.sock.Ping()
}

// Close 正常关闭连接，可重复调用。
func (c *Conn) Close() { c.CloseWith("") }

// CloseWith 进入 CLOSING：退订两个频道、释放链路、从 Hub 注销、关闭 socket，最后进入 CLOSED。
// 只有第一次调用生效。
func (c *Conn) CloseWith(reason string) {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		if c.State() != StateConnecting {
			c.setState(StateClosing)
		}
		c.wmu.Unlock()
		close(c.done)

		if c.link != nil {
			if c.link.Subscribed() {
				ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
				if err := c.link.Unsubscribe(ctx, c.channels...); err != nil {
					log.Debug().Err(err).Str("conn_id", c.id).Msg("ws unsubscribe")
				}
				cancel()
			}
			if err := c.link.Close(); err != nil {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("ws link close")
			}
		}
		c.gw.hub.Unregister(c)
		if err := c.sock.Close(reason); err != nil {
			log.Debug().Err(err).Str("conn_id", c.id).Msg("ws socket close")
		}
		c.setState(StateClosed)
		log.Info().Str("conn_id", c.id).Str("name", c.name).Str("reason", reason).Msg("ws closed")
	})
}
