package ws

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"chatrelay/internal/bus"

	"github.com/stretchr/testify/require"
)

// fakeSocket is an in-memory Socket. Closing in ends the read side like a client disconnect.
type fakeSocket struct {
	in       chan string
	closedCh chan struct{}

	mu     sync.Mutex
	out    []string
	closes int
	reason string
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{in: make(chan string, 16), closedCh: make(chan struct{})}
}

func (s *fakeSocket) ReadText() (string, error) {
	select {
	case m, ok := <-s.in:
		if !ok {
			return "", io.EOF
		}
		return m, nil
	case <-s.closedCh:
		return "", io.ErrClosedPipe
	}
}

func (s *fakeSocket) WriteText(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return io.ErrClosedPipe
	}
	s.out = append(s.out, msg)
	return nil
}

func (s *fakeSocket) Ping() error { return nil }

func (s *fakeSocket) Close(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closes == 1 {
		s.reason = reason
		close(s.closedCh)
	}
	return nil
}

func (s *fakeSocket) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.out...)
}

func (s *fakeSocket) count(msg string) int {
	n := 0
	for _, m := range s.written() {
		if m == msg {
			n++
		}
	}
	return n
}

func (s *fakeSocket) closeInfo() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes, s.reason
}

type harness struct {
	bus *bus.MemoryBus
	hub *Hub
	gw  *Gateway
}

func newHarness() *harness {
	b := bus.NewMemoryBus()
	hub := NewHub()
	return &harness{bus: b, hub: hub, gw: NewGateway(b, hub, "messages")}
}

// start opens a connection and runs it in the background; the returned channel
// closes once Run has returned.
func (h *harness) start(t *testing.T, name string) (*Conn, *fakeSocket, <-chan struct{}) {
	t.Helper()
	sock := newFakeSocket()
	c, err := h.gw.Open(context.Background(), sock, Peer{Name: name, Token: "tok" + name})
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()
	return c, sock, done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not finish")
	}
}
