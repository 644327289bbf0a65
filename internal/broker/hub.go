// Package broker implements the YDL server: the routing table that maps
// channel names to their current subscribers, and the per-connection
// accept/handshake/fan-out loop that keeps it up to date.
package broker

import "sync"

// Hub owns the routing table. The connection and channel maps are guarded
// by the hub's RWMutex; each Channel guards its own subscriber set with a
// mutex of its own.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Conn    // connID -> Conn
	channels    map[string]*Channel // topic -> Channel
}

// Stats describes the hub's routing table at a point in time.
type Stats struct {
	Connections int
	Channels    int
	PerChannel  map[string]int
}

// NewHub creates an empty hub. No state survives a restart, so a fresh Hub
// is always the starting point.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Conn),
		channels:    make(map[string]*Channel),
	}
}

// Stats reports current connection and channel counts, for diagnostics.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{
		Connections: len(h.connections),
		Channels:    len(h.channels),
		PerChannel:  make(map[string]int, len(h.channels)),
	}
	for topic, ch := range h.channels {
		s.PerChannel[topic] = len(ch.snapshot())
	}
	return s
}

// CloseAll closes every currently-registered connection. Serve calls this
// on shutdown so a broker restart actually severs existing clients, rather
// than leaving their sockets open against a listener that's gone.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}

func (h *Hub) registerConn(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c.id] = c
}

// unregisterConn removes a connection from the hub and every channel it
// subscribed to, pruning channels left with no subscribers.
func (h *Hub) unregisterConn(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, c.id)

	for topic := range c.subscriptions {
		ch, ok := h.channels[topic]
		if !ok {
			continue
		}
		ch.removeSubscriber(c.id)
		if ch.isEmpty() {
			delete(h.channels, topic)
		}
	}
}

// getOrCreateChannel returns the Channel for topic, creating it if this is
// the first subscriber.
func (h *Hub) getOrCreateChannel(topic string) *Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.channels[topic]; ok {
		return ch
	}
	ch := newChannel(topic)
	h.channels[topic] = ch
	return ch
}

// getChannel returns the Channel for topic, or nil if nobody subscribes to
// it. Publishing to a nil channel is a documented no-op.
func (h *Hub) getChannel(topic string) *Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels[topic]
}
