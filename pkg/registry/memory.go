package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRegistry is an in-process Registry.
//
// The registry lock only guards the name table: objects are looked up under
// a read lock and then called without it, so object methods and listeners
// may freely re-enter the registry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	objects map[string]registeredObject
}

type registeredObject struct {
	name   ObjectName
	object ManagedObject
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		objects: make(map[string]registeredObject),
	}
}

// Register adds obj under name.
//
// Returns an error if name is a pattern, obj is nil, or the name is taken
// (wrapping ErrAlreadyRegistered).
func (r *MemoryRegistry) Register(name ObjectName, obj ManagedObject) error {
	if obj == nil {
		return fmt.Errorf("cannot register nil object as %s", name)
	}
	if name.IsZero() {
		return fmt.Errorf("cannot register object with empty name")
	}
	if name.IsPattern() {
		return fmt.Errorf("cannot register object under pattern %s", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := name.String()
	if _, exists := r.objects[key]; exists {
		return fmt.Errorf("%s: %w", key, ErrAlreadyRegistered)
	}
	r.objects[key] = registeredObject{name: name, object: obj}
	return nil
}

// Unregister removes the object registered under name.
func (r *MemoryRegistry) Unregister(name ObjectName) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := name.String()
	if _, exists := r.objects[key]; !exists {
		return fmt.Errorf("%s: %w", key, ErrTargetNotFound)
	}
	delete(r.objects, key)
	return nil
}

func (r *MemoryRegistry) lookup(name ObjectName) (ManagedObject, error) {
	r.mu.RLock()
	entry, ok := r.objects[name.String()]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrTargetNotFound)
	}
	return entry.object, nil
}

func (r *MemoryRegistry) GetAttribute(ctx context.Context, name ObjectName, attribute string) (any, error) {
	obj, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return obj.GetAttribute(ctx, attribute)
}

func (r *MemoryRegistry) SetAttribute(ctx context.Context, name ObjectName, attribute string, value any) error {
	obj, err := r.lookup(name)
	if err != nil {
		return err
	}
	return obj.SetAttribute(ctx, attribute, value)
}

func (r *MemoryRegistry) Invoke(ctx context.Context, name ObjectName, operation string, params []any) (any, error) {
	obj, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return obj.Invoke(ctx, operation, params)
}

func (r *MemoryRegistry) IsRegistered(_ context.Context, name ObjectName) bool {
	_, err := r.lookup(name)
	return err == nil
}

func (r *MemoryRegistry) QueryNames(ctx context.Context, pattern ObjectName) ([]ObjectName, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []ObjectName
	for _, entry := range r.objects {
		if pattern.IsZero() || pattern.Matches(entry.name) {
			names = append(names, entry.name)
		}
	}

	sort.Slice(names, func(i, j int) bool {
		return names[i].String() < names[j].String()
	})
	return names, nil
}

func (r *MemoryRegistry) Describe(_ context.Context, name ObjectName) (*ObjectInfo, error) {
	obj, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	info := obj.Info()
	info.Name = name
	return &info, nil
}

func (r *MemoryRegistry) Domains(_ context.Context) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var domains []string
	for _, entry := range r.objects {
		d := entry.name.Domain()
		if !seen[d] {
			seen[d] = true
			domains = append(domains, d)
		}
	}
	sort.Strings(domains)
	return domains
}

func (r *MemoryRegistry) ObjectCount(_ context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

func (r *MemoryRegistry) AddNotificationListener(_ context.Context, name ObjectName, l Listener, f Filter) error {
	obj, err := r.lookup(name)
	if err != nil {
		return err
	}
	emitter, ok := obj.(NotificationEmitter)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotificationsUnsupported)
	}
	emitter.AddNotificationListener(l, f)
	return nil
}

func (r *MemoryRegistry) RemoveNotificationListener(_ context.Context, name ObjectName, l Listener) error {
	obj, err := r.lookup(name)
	if err != nil {
		return err
	}
	emitter, ok := obj.(NotificationEmitter)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrListenerNotFound)
	}
	if err := emitter.RemoveNotificationListener(l); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

var (
	_ Registry            = (*MemoryRegistry)(nil)
	_ ManagedObject       = (*StandardObject)(nil)
	_ NotificationEmitter = (*Broadcaster)(nil)
	_ AttributeStore      = (*MemoryAttributeStore)(nil)
)
