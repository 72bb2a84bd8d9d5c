package ws

import (
	"sort"
	"sync"

	"chatrelay/internal/metrics"
)

// Hub 记录进程内所有处于 OPEN 的网关连接。同一显示名允许存在多个连接。
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewHub() *Hub { return &Hub{conns: make(map[string]*Conn)} }

func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.id]; ok {
		return
	}
	h.conns[c.id] = c
	metrics.WsConnections.Inc()
}

// Unregister 可重复调用。
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.id]; ok {
		delete(h.conns, c.id)
		metrics.WsConnections.Dec()
	}
}

func (h *Hub) Lookup(id string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

// Channels 返回连接订阅的频道。
func (h *Hub) Channels(id string) ([]string, bool) {
	c, ok := h.Lookup(id)
	if !ok {
		return nil, false
	}
	return c.Channels(), true
}

// Online 返回在线连接数。
func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Names 返回在线连接的显示名，按字母序，重名会重复出现。
func (h *Hub) Names() []string {
	h.mu.RLock()
	names := make([]string, 0, len(h.conns))
	for _, c := range h.conns {
		names = append(names, c.name)
	}
	h.mu.RUnlock()
	sort.Strings(names)
	return names
}

const reasonShutdown = "server shutdown"

// CloseAll 关闭所有连接，用于优雅停服。
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.CloseWith(reasonShutdown)
	}
}
