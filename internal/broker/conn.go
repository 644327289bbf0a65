package broker

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sberkun/ydl/internal/log"
	"github.com/sberkun/ydl/internal/wire"
)

// Per-connection tunables.
const (
	// sendBufferSize bounds each subscriber's outbound queue. Once full, the
	// subscriber is considered too slow to keep up and is disconnected
	// rather than allowed to stall delivery to everyone else.
	sendBufferSize = 256

	// handshakeTimeout bounds how long a freshly accepted connection has to
	// send its subscription declaration frame.
	handshakeTimeout = 5 * time.Second
)

// connState is the per-connection lifecycle described in the protocol: a
// connection starts HANDSHAKING, becomes ACTIVE once it declares its
// subscriptions, and is CLOSED (terminal) on any error, EOF, or malformed
// frame.
type connState int32

const (
	stateHandshaking connState = iota
	stateActive
	stateClosed
)

// Conn is the broker's view of one client connection.
type Conn struct {
	id  string
	nc  net.Conn
	hub *Hub

	state atomic.Int32

	subscriptions map[string]bool // declared at handshake, immutable thereafter

	send      chan []byte // raw, already-framed bytes awaiting write
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(hub *Hub, nc net.Conn) *Conn {
	return &Conn{
		id:            uuid.NewString(),
		nc:            nc,
		hub:           hub,
		subscriptions: make(map[string]bool),
		send:          make(chan []byte, sendBufferSize),
		done:          make(chan struct{}),
	}
}

// ID returns the connection's identifier, used as its routing-table key.
func (c *Conn) ID() string { return c.id }

// enqueue hands a pre-framed message to this connection's write pump. If
// the outbound queue is full, the connection is treated as a slow
// subscriber and is disconnected — the bus keeps flowing for everyone else.
func (c *Conn) enqueue(raw []byte) {
	select {
	case c.send <- raw:
	case <-c.done:
	default:
		log.Warn("broker: outbound queue full, disconnecting slow subscriber", "conn_id", c.id)
		c.Close()
	}
}

// Close tears the connection down and de-registers it from the hub. Safe to
// call multiple times and from multiple goroutines.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(stateClosed))
		close(c.done)
		c.nc.Close()
		c.hub.unregisterConn(c)
	})
}

// serve runs the connection end to end: handshake, then read-and-route
// until error or EOF. It blocks until the connection closes.
func (c *Conn) serve() {
	defer c.Close()

	if !c.handshake() {
		return
	}

	go c.writePump()
	c.readLoop()
}

// handshake reads the subscription declaration frame. A missing or
// malformed declaration drops the connection without ever reaching ACTIVE.
func (c *Conn) handshake() bool {
	c.nc.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer c.nc.SetReadDeadline(time.Time{})

	msg, err := wire.ReadFrame(c.nc)
	if err != nil {
		log.Debug("broker: handshake failed", "conn_id", c.id, "error", err.Error())
		return false
	}
	if msg.Channel != wire.SubscribeChannel {
		log.Debug("broker: first frame was not a subscription declaration", "conn_id", c.id, "channel", msg.Channel)
		return false
	}

	for _, arg := range msg.Args {
		topic, ok := arg.(string)
		if !ok || topic == "" || topic == wire.SubscribeChannel {
			log.Debug("broker: invalid subscription channel name", "conn_id", c.id)
			return false
		}
		c.subscriptions[topic] = true
	}

	c.hub.registerConn(c)
	for topic := range c.subscriptions {
		c.hub.getOrCreateChannel(topic).addSubscriber(c)
	}
	c.state.Store(int32(stateActive))
	return true
}

// readLoop reads publish frames until the peer errs or disconnects,
// forwarding each one to the current subscribers of its channel.
func (c *Conn) readLoop() {
	for {
		raw, msg, err := wire.ReadRawFrame(c.nc)
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				log.Debug("broker: read error", "conn_id", c.id, "error", err.Error())
			}
			return
		}

		if msg.Channel == wire.SubscribeChannel {
			log.Debug("broker: unexpected subscription frame after handshake", "conn_id", c.id)
			return
		}

		c.route(msg.Channel, raw)
	}
}

// route fans a raw frame out to every current subscriber of topic. A
// channel with no subscribers is a silent no-op. The publisher itself
// receives the frame back if it is also subscribed — the broker applies no
// filter.
func (c *Conn) route(topic string, raw []byte) {
	ch := c.hub.getChannel(topic)
	if ch == nil {
		return
	}
	for _, sub := range ch.snapshot() {
		sub.enqueue(raw)
	}
}

// writePump drains the outbound queue to the socket. It owns all writes to
// nc so concurrent publishers routed to this subscriber never interleave
// frames on the wire.
func (c *Conn) writePump() {
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return
			}
			if _, err := c.nc.Write(raw); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
