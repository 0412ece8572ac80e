// Package registry defines the management registry that DittoMX exposes
// to remote clients, and provides an in-memory implementation.
//
// A registry holds managed objects addressed by ObjectName. Each object
// exposes attributes (read and optionally written), operations (invoked
// with positional parameters) and, optionally, notifications delivered to
// subscribed listeners.
//
// Example usage:
//
//	reg := registry.NewMemoryRegistry()
//	_ = reg.Register(registry.MustParseObjectName("app:type=Cache"), cacheObject)
//
//	size, err := reg.GetAttribute(ctx, registry.MustParseObjectName("app:type=Cache"), "Size")
package registry

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrTargetNotFound: no object is registered under the name.
	ErrTargetNotFound = errors.New("target not found")

	// ErrMemberNotFound: the object has no such attribute or operation, or
	// the operation does not accept the given parameters.
	ErrMemberNotFound = errors.New("member not found")

	// ErrListenerNotFound: the listener is not subscribed on the object.
	ErrListenerNotFound = errors.New("listener not found")

	// ErrReadOnly: the attribute cannot be written.
	ErrReadOnly = errors.New("attribute is read-only")

	// ErrAlreadyRegistered: an object already uses the name.
	ErrAlreadyRegistered = errors.New("object already registered")

	// ErrNotificationsUnsupported: the object does not emit notifications.
	ErrNotificationsUnsupported = errors.New("object does not emit notifications")
)

// Registry is the management registry consumed by connections.
//
// Implementations must be safe for concurrent use and must not hold
// internal locks while delivering notifications, so listeners may call back
// into the registry.
type Registry interface {
	// GetAttribute returns the value of an attribute.
	GetAttribute(ctx context.Context, name ObjectName, attribute string) (any, error)

	// SetAttribute writes an attribute.
	SetAttribute(ctx context.Context, name ObjectName, attribute string, value any) error

	// Invoke calls an operation with positional parameters.
	Invoke(ctx context.Context, name ObjectName, operation string, params []any) (any, error)

	// IsRegistered reports whether an object is registered under name.
	IsRegistered(ctx context.Context, name ObjectName) bool

	// QueryNames returns the registered names matching pattern, sorted.
	QueryNames(ctx context.Context, pattern ObjectName) ([]ObjectName, error)

	// Describe returns the metadata of an object.
	Describe(ctx context.Context, name ObjectName) (*ObjectInfo, error)

	// Domains returns the distinct domains of registered objects, sorted.
	Domains(ctx context.Context) []string

	// ObjectCount returns the number of registered objects.
	ObjectCount(ctx context.Context) int

	// AddNotificationListener subscribes l to notifications emitted by the
	// object. A nil filter accepts every notification.
	AddNotificationListener(ctx context.Context, name ObjectName, l Listener, f Filter) error

	// RemoveNotificationListener cancels every subscription of l on the
	// object. Returns ErrListenerNotFound if l was not subscribed.
	RemoveNotificationListener(ctx context.Context, name ObjectName, l Listener) error
}

// ============================================================================
// Notifications
// ============================================================================

// Notification is an event emitted by a managed object.
type Notification struct {
	// Type is a dotted event type, e.g. "attribute.change".
	Type string

	// Source is the name of the emitting object.
	Source ObjectName

	// Sequence increases per emitter.
	Sequence int64

	Timestamp time.Time
	Message   string

	// UserData is an optional plain value (see message.FromAny for the
	// supported types).
	UserData any
}

// Listener receives notifications.
//
// HandleNotification runs on the emitter's goroutine. Listeners must be
// comparable (typically pointers): removal finds them by equality.
type Listener interface {
	HandleNotification(n Notification)
}

// Filter selects the notifications delivered to a listener.
type Filter interface {
	IsNotificationEnabled(n Notification) bool
}

// TypePrefixFilter accepts notifications whose type starts with any of
// its prefixes. An empty filter accepts everything.
type TypePrefixFilter []string

func (f TypePrefixFilter) IsNotificationEnabled(n Notification) bool {
	if len(f) == 0 {
		return true
	}
	for _, prefix := range f {
		if strings.HasPrefix(n.Type, prefix) {
			return true
		}
	}
	return false
}

// ============================================================================
// Metadata
// ============================================================================

// ObjectInfo describes a managed object.
type ObjectInfo struct {
	Name          ObjectName
	Description   string
	Attributes    []AttributeInfo
	Operations    []OperationInfo
	Notifications []NotificationInfo
}

// AttributeInfo describes one attribute.
type AttributeInfo struct {
	Name        string
	Type        string
	Description string
	Writable    bool
}

// OperationInfo describes one operation. Params lists parameter type names.
type OperationInfo struct {
	Name        string
	Params      []string
	ReturnType  string
	Description string
}

// NotificationInfo describes the notification types an object may emit.
type NotificationInfo struct {
	Types       []string
	Description string
}
