// Package badger provides a persistent registry.AttributeStore backed by
// BadgerDB.
//
// Keys are "attr:<object name>#<attribute>"; values are XDR-encoded
// message.Value blobs, so anything that can cross the wire can be stored.
package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittomx/internal/logger"
	"github.com/marmos91/dittomx/internal/protocol/message"
	"github.com/marmos91/dittomx/internal/protocol/wire"
	"github.com/marmos91/dittomx/pkg/registry"
)

const keyPrefix = "attr:"

// Config configures the store.
type Config struct {
	// Path is the directory holding the database files.
	Path string

	// InMemory runs BadgerDB without touching disk. Path is ignored.
	InMemory bool

	// BadgerOptions overrides the defaults derived from Path when set.
	BadgerOptions *badger.Options
}

// AttributeStore implements registry.AttributeStore on BadgerDB.
//
// Thread Safety:
// BadgerDB transactions are safe for concurrent use; the store adds no
// locking of its own.
type AttributeStore struct {
	db *badger.DB
}

// NewAttributeStore opens (or creates) the database.
func NewAttributeStore(ctx context.Context, cfg Config) (*AttributeStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	switch {
	case cfg.BadgerOptions != nil:
		opts = *cfg.BadgerOptions
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	default:
		if cfg.Path == "" {
			return nil, errors.New("badger attribute store: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	// Attribute values are tiny; keep logs quiet and skip compression.
	opts = opts.WithLoggingLevel(badger.WARNING).WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}

	logger.Debug("Badger attribute store opened (path=%q in_memory=%v)", cfg.Path, cfg.InMemory)
	return &AttributeStore{db: db}, nil
}

func key(object, attribute string) []byte {
	return []byte(keyPrefix + object + "#" + attribute)
}

// Load implements registry.AttributeStore.
func (s *AttributeStore) Load(ctx context.Context, object, attribute string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var value message.Value
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(object, attribute))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			decoded, err := wire.UnmarshalValue(val)
			if err != nil {
				return err
			}
			value = decoded
			found = true
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("load %s#%s: %w", object, attribute, err)
	}
	if !found {
		return nil, false, nil
	}
	return value.Any(), true, nil
}

// Save implements registry.AttributeStore.
func (s *AttributeStore) Save(ctx context.Context, object, attribute string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v, err := message.FromAny(value)
	if err != nil {
		return fmt.Errorf("save %s#%s: %w", object, attribute, err)
	}
	data, err := wire.MarshalValue(v)
	if err != nil {
		return fmt.Errorf("save %s#%s: %w", object, attribute, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(object, attribute), data)
	})
}

// Delete implements registry.AttributeStore.
func (s *AttributeStore) Delete(ctx context.Context, object, attribute string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(object, attribute))
	})
}

// Keys lists the stored "<object>#<attribute>" entries of object, or of
// every object when object is empty.
func (s *AttributeStore) Keys(ctx context.Context, object string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(keyPrefix)
	if object != "" {
		prefix = key(object, "")
	}
	var keys []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Close implements registry.AttributeStore.
func (s *AttributeStore) Close() error {
	return s.db.Close()
}

var _ registry.AttributeStore = (*AttributeStore)(nil)
