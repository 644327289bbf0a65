package broker

import "sync"

// Channel holds the current subscribers of one channel name. Entries are
// created lazily by the hub on the first subscription and removed once the
// last subscriber disconnects.
type Channel struct {
	topic string

	mu          sync.RWMutex
	subscribers map[string]*Conn // connID -> Conn
}

func newChannel(topic string) *Channel {
	return &Channel{
		topic:       topic,
		subscribers: make(map[string]*Conn),
	}
}

func (ch *Channel) addSubscriber(c *Conn) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.subscribers[c.id] = c
}

func (ch *Channel) removeSubscriber(connID string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	delete(ch.subscribers, connID)
}

// snapshot returns the current subscribers. The routing loop iterates over
// a snapshot rather than the live map so a subscriber that errors and
// unregisters mid-fan-out doesn't race the iteration.
func (ch *Channel) snapshot() []*Conn {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	subs := make([]*Conn, 0, len(ch.subscribers))
	for _, c := range ch.subscribers {
		subs = append(subs, c)
	}
	return subs
}

func (ch *Channel) isEmpty() bool {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.subscribers) == 0
}
