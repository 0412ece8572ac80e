package mx

import (
	"context"
	"fmt"

	"github.com/marmos91/dittomx/internal/logger"
	"github.com/marmos91/dittomx/internal/protocol/message"
	"github.com/marmos91/dittomx/internal/protocol/wire"
	"github.com/marmos91/dittomx/pkg/registry"
)

// forwardingListener relays registry notifications to the client under the
// listener id the client chose. One is created per subscription, so the
// pointer identifies the registration on removal.
type forwardingListener struct {
	conn       *Connection
	listenerID string
}

// HandleNotification implements registry.Listener. It runs on the
// emitter's goroutine.
func (l *forwardingListener) HandleNotification(n registry.Notification) {
	c := l.conn
	fatal := false

	c.mu.Lock()
	switch reg := c.registrations[l.listenerID]; {
	case c.stopped:
		c.metrics.RecordNotificationDropped("stopped")
	case reg == nil || reg.listener != l:
		c.metrics.RecordNotificationDropped("unsubscribed")
	default:
		msg, err := toNotification(l.listenerID, n)
		if err != nil {
			// Nothing reached the stream; drop this one and keep the session
			logger.Warn("Connection %s: dropping notification %s for listener %s: %v",
				c.id, n.Type, l.listenerID, err)
			c.metrics.RecordNotificationDropped("encode")
			break
		}
		if err := c.writeLocked(msg); err != nil {
			logger.Debug("Connection %s: write notification: %v", c.id, err)
			c.metrics.RecordNotificationDropped("write")
			fatal = true
			break
		}
		c.metrics.RecordNotificationSent()
	}
	c.mu.Unlock()

	if fatal {
		c.Stop()
	}
}

func toNotification(listenerID string, n registry.Notification) (*message.Notification, error) {
	userData, err := message.FromAny(n.UserData)
	if err != nil {
		return nil, fmt.Errorf("user data: %w", err)
	}

	return &message.Notification{
		ListenerID: listenerID,
		Payload: message.NotificationPayload{
			Type:      n.Type,
			Source:    n.Source.String(),
			Sequence:  n.Sequence,
			Timestamp: n.Timestamp,
			Message:   n.Message,
			UserData:  userData,
		},
	}, nil
}

// subscribe installs a forwarding listener for listenerID on target. A
// live registration under the same id is replaced.
func (c *Connection) subscribe(ctx context.Context, listenerID string, target registry.ObjectName, filterBlob []byte) error {
	prefixes, err := wire.DecodeFilter(filterBlob)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	var filter registry.Filter
	if len(prefixes) > 0 {
		filter = registry.TypePrefixFilter(prefixes)
	}

	c.mu.Lock()
	previous, replaced := c.registrations[listenerID]
	delete(c.registrations, listenerID)
	c.mu.Unlock()

	if replaced {
		if err := c.registry.RemoveNotificationListener(ctx, previous.target, previous.listener); err != nil {
			logger.Debug("Connection %s: replacing listener %s: %v", c.id, listenerID, err)
		}
	}

	l := &forwardingListener{conn: c, listenerID: listenerID}
	if err := c.registry.AddNotificationListener(ctx, target, l, filter); err != nil {
		return err
	}

	c.mu.Lock()
	stopped := c.stopped
	if !stopped {
		c.registrations[listenerID] = &registration{target: target, listener: l}
	}
	c.mu.Unlock()

	// Stop ran during the registry call and could not see this listener
	if stopped {
		_ = c.registry.RemoveNotificationListener(ctx, target, l)
	}
	return nil
}

// unsubscribe removes the listener registered under listenerID from target.
func (c *Connection) unsubscribe(ctx context.Context, listenerID string, target registry.ObjectName) error {
	c.mu.Lock()
	reg, ok := c.registrations[listenerID]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("listener %q: %w", listenerID, registry.ErrListenerNotFound)
	}

	if err := c.registry.RemoveNotificationListener(ctx, target, reg.listener); err != nil {
		return err
	}

	c.mu.Lock()
	if c.registrations[listenerID] == reg {
		delete(c.registrations, listenerID)
	}
	c.mu.Unlock()
	return nil
}
