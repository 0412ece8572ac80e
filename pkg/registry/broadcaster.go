package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// NotificationEmitter is implemented by managed objects that emit
// notifications.
type NotificationEmitter interface {
	AddNotificationListener(l Listener, f Filter)
	RemoveNotificationListener(l Listener) error
}

type subscription struct {
	listener Listener
	filter   Filter
}

// Broadcaster is a reusable NotificationEmitter. Managed objects embed it
// and call Emit.
//
// Emit delivers synchronously on the caller's goroutine, outside the
// broadcaster's lock: a notification emitted while handling a request
// reaches listeners before the request returns, and listeners may
// subscribe or unsubscribe from inside HandleNotification.
type Broadcaster struct {
	mu            sync.Mutex
	subscriptions []subscription
	sequence      atomic.Int64
}

// AddNotificationListener subscribes l. A nil filter accepts everything.
func (b *Broadcaster) AddNotificationListener(l Listener, f Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = append(b.subscriptions, subscription{listener: l, filter: f})
}

// RemoveNotificationListener removes every subscription of l.
func (b *Broadcaster) RemoveNotificationListener(l Listener) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subscriptions[:0]
	removed := false
	for _, s := range b.subscriptions {
		if s.listener == l {
			removed = true
			continue
		}
		kept = append(kept, s)
	}
	// Clear the tail so removed listeners can be collected.
	for i := len(kept); i < len(b.subscriptions); i++ {
		b.subscriptions[i] = subscription{}
	}
	b.subscriptions = kept

	if !removed {
		return ErrListenerNotFound
	}
	return nil
}

// ListenerCount returns the number of active subscriptions.
func (b *Broadcaster) ListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions)
}

// Emit stamps n with the next sequence number (and the current time if
// unset) and delivers it to every subscription whose filter accepts it.
func (b *Broadcaster) Emit(n Notification) {
	n.Sequence = b.sequence.Add(1)
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	b.mu.Lock()
	targets := make([]subscription, len(b.subscriptions))
	copy(targets, b.subscriptions)
	b.mu.Unlock()

	for _, s := range targets {
		if s.filter != nil && !s.filter.IsNotificationEnabled(n) {
			continue
		}
		s.listener.HandleNotification(n)
	}
}
