package badger

import (
	"context"
	"testing"

	"github.com/marmos91/dittomx/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) *AttributeStore {
	t.Helper()
	store, err := NewAttributeStore(context.Background(), Config{Path: path})
	require.NoError(t, err)
	return store
}

func TestAttributeStore(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, t.TempDir())
	defer func() { _ = store.Close() }()

	const object = "dittomx:name=app,type=Properties"

	t.Run("MissingValue", func(t *testing.T) {
		_, found, err := store.Load(ctx, object, "Level")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, object, "Level", 7))
		require.NoError(t, store.Save(ctx, object, "Tags", []any{"a", true}))

		v, found, err := store.Load(ctx, object, "Level")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(7), v)

		v, found, err = store.Load(ctx, object, "Tags")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []any{"a", true}, v)
	})

	t.Run("Keys", func(t *testing.T) {
		keys, err := store.Keys(ctx, object)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{object + "#Level", object + "#Tags"}, keys)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, object, "Tags"))
		require.NoError(t, store.Delete(ctx, object, "Tags"))

		_, found, err := store.Load(ctx, object, "Tags")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("UnsupportedValue", func(t *testing.T) {
		assert.Error(t, store.Save(ctx, object, "Bad", make(chan int)))
	})
}

func TestAttributeStore_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := openStore(t, dir)
	require.NoError(t, store.Save(ctx, "obj", "Name", "persisted"))
	require.NoError(t, store.Close())

	reopened := openStore(t, dir)
	defer func() { _ = reopened.Close() }()

	v, found, err := reopened.Load(ctx, "obj", "Name")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "persisted", v)
}

func TestAttributeStore_BacksPropertiesObject(t *testing.T) {
	ctx := context.Background()
	store, err := NewAttributeStore(ctx, Config{InMemory: true})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	name, err := registry.PropertiesObjectName("app")
	require.NoError(t, err)

	obj, err := registry.NewPropertiesObject(name, []registry.PropertyDef{
		{Name: "Enabled", Default: false, Writable: true},
	}, store)
	require.NoError(t, err)

	require.NoError(t, obj.SetAttribute(ctx, "Enabled", true))
	v, err := obj.GetAttribute(ctx, "Enabled")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestNewAttributeStore_RequiresPath(t *testing.T) {
	_, err := NewAttributeStore(context.Background(), Config{})
	assert.Error(t, err)
}
