// Package notifier wakes preview listeners when the workspace changed
// outside their own requests, e.g. a watched file was rewritten.
package notifier

import "sync"

// Event says what changed.
type Event struct {
	// Source names the changed file, or is empty for a plain refresh.
	Source string
}

// Notifier fans events out to subscribed listeners. Each listener holds at
// most one pending event; a newer event replaces an unread one.
type Notifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]chan Event
}

// New creates a Notifier.
func New() *Notifier {
	return &Notifier{listeners: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the listener goes away; it closes the channel.
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 1)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = ch
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast delivers ev to every listener without blocking.
func (n *Notifier) Broadcast(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.listeners {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Full: drop the stale event and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// Len returns the number of listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}
