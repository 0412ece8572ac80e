package registry

import (
	"context"
	"sync"
)

// AttributeStore persists attribute values written through the registry.
//
// Values are plain Go values of the kinds supported on the wire (nil, bool,
// int64, float64, string, []byte, []any); implementations may normalize
// integer and float widths on the way back.
type AttributeStore interface {
	// Load returns the stored value. found is false when nothing is stored.
	Load(ctx context.Context, object, attribute string) (value any, found bool, err error)

	// Save stores value, replacing any previous one.
	Save(ctx context.Context, object, attribute string, value any) error

	// Delete removes a stored value. Deleting a missing value is not an error.
	Delete(ctx context.Context, object, attribute string) error

	// Close releases the store's resources.
	Close() error
}

// MemoryAttributeStore keeps values in a map; nothing survives a restart.
type MemoryAttributeStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMemoryAttributeStore creates an empty store.
func NewMemoryAttributeStore() *MemoryAttributeStore {
	return &MemoryAttributeStore{values: make(map[string]any)}
}

func attributeKey(object, attribute string) string {
	return object + "#" + attribute
}

func (s *MemoryAttributeStore) Load(ctx context.Context, object, attribute string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[attributeKey(object, attribute)]
	return v, ok, nil
}

func (s *MemoryAttributeStore) Save(ctx context.Context, object, attribute string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[attributeKey(object, attribute)] = value
	return nil
}

func (s *MemoryAttributeStore) Delete(ctx context.Context, object, attribute string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, attributeKey(object, attribute))
	return nil
}

func (s *MemoryAttributeStore) Close() error {
	return nil
}
