package registry

import (
	"context"
	"fmt"
	"sort"
)

// ManagedObject is an object that can be registered in a MemoryRegistry.
//
// Objects that also implement NotificationEmitter accept notification
// listeners.
type ManagedObject interface {
	// Info returns the object's metadata. The Name field is filled in by
	// the registry.
	Info() ObjectInfo

	GetAttribute(ctx context.Context, attribute string) (any, error)
	SetAttribute(ctx context.Context, attribute string, value any) error
	Invoke(ctx context.Context, operation string, params []any) (any, error)
}

// Attribute defines one attribute of a StandardObject.
// A nil Set makes the attribute read-only.
type Attribute struct {
	Info AttributeInfo
	Get  func(ctx context.Context) (any, error)
	Set  func(ctx context.Context, value any) error
}

// Operation defines one operation of a StandardObject.
// Invoke is only called with exactly len(Info.Params) parameters.
type Operation struct {
	Info   OperationInfo
	Invoke func(ctx context.Context, params []any) (any, error)
}

// StandardObject is a ManagedObject assembled from attribute and operation
// definitions. It embeds a Broadcaster, so it always emits notifications.
//
// A StandardObject must be fully defined before it is registered; the
// definition maps are not guarded against concurrent modification.
type StandardObject struct {
	Broadcaster

	description   string
	attributes    map[string]Attribute
	operations    map[string]Operation
	notifications []NotificationInfo
}

// NewStandardObject creates an empty object.
func NewStandardObject(description string) *StandardObject {
	return &StandardObject{
		description: description,
		attributes:  make(map[string]Attribute),
		operations:  make(map[string]Operation),
	}
}

// WithAttribute adds or replaces an attribute. The Writable flag of the info
// is derived from whether Set is provided.
func (o *StandardObject) WithAttribute(attr Attribute) *StandardObject {
	attr.Info.Writable = attr.Set != nil
	o.attributes[attr.Info.Name] = attr
	return o
}

// WithOperation adds or replaces an operation.
func (o *StandardObject) WithOperation(op Operation) *StandardObject {
	o.operations[op.Info.Name] = op
	return o
}

// WithNotifications declares notification types the object emits.
func (o *StandardObject) WithNotifications(info NotificationInfo) *StandardObject {
	o.notifications = append(o.notifications, info)
	return o
}

func (o *StandardObject) Info() ObjectInfo {
	info := ObjectInfo{Description: o.description}

	for _, a := range o.attributes {
		info.Attributes = append(info.Attributes, a.Info)
	}
	sort.Slice(info.Attributes, func(i, j int) bool {
		return info.Attributes[i].Name < info.Attributes[j].Name
	})

	for _, op := range o.operations {
		info.Operations = append(info.Operations, op.Info)
	}
	sort.Slice(info.Operations, func(i, j int) bool {
		return info.Operations[i].Name < info.Operations[j].Name
	})

	info.Notifications = append(info.Notifications, o.notifications...)
	return info
}

func (o *StandardObject) GetAttribute(ctx context.Context, attribute string) (any, error) {
	attr, ok := o.attributes[attribute]
	if !ok || attr.Get == nil {
		return nil, fmt.Errorf("attribute %q: %w", attribute, ErrMemberNotFound)
	}
	return attr.Get(ctx)
}

func (o *StandardObject) SetAttribute(ctx context.Context, attribute string, value any) error {
	attr, ok := o.attributes[attribute]
	if !ok {
		return fmt.Errorf("attribute %q: %w", attribute, ErrMemberNotFound)
	}
	if attr.Set == nil {
		return fmt.Errorf("attribute %q: %w", attribute, ErrReadOnly)
	}
	return attr.Set(ctx, value)
}

func (o *StandardObject) Invoke(ctx context.Context, operation string, params []any) (any, error) {
	op, ok := o.operations[operation]
	if !ok {
		return nil, fmt.Errorf("operation %q: %w", operation, ErrMemberNotFound)
	}
	if len(params) != len(op.Info.Params) {
		return nil, fmt.Errorf("operation %q takes %d parameters, got %d: %w",
			operation, len(op.Info.Params), len(params), ErrMemberNotFound)
	}
	return op.Invoke(ctx, params)
}
