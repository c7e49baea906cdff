package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/store/cache"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	keyed := cache.NewKeyedStore(cache.Config{Capacity: 64, DefaultTTL: time.Minute})
	t.Cleanup(keyed.Close)
	return NewManager(keyed, time.Minute, time.Minute)
}

func TestManagerSaveGet(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, ok := m.Get(ctx, "263770123456", "stage")
	assert.False(t, ok)

	m.Save(ctx, "263770123456", "stage", "MENU")
	value, ok := m.Get(ctx, "263770123456", "stage")
	require.True(t, ok)
	assert.Equal(t, "MENU", value)

	// Scopes are isolated per user.
	_, ok = m.Get(ctx, "263770999999", "stage")
	assert.False(t, ok)
}

func TestManagerSaveAllFetchAll(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	m.SaveAll(ctx, "u1", map[string]any{"a": "1", "b": "2"})
	data := m.FetchAll(ctx, "u1")
	assert.Len(t, data, 2)
	assert.Equal(t, "1", data["a"])
}

func TestManagerEvict(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	m.Save(ctx, "u1", "a", "1")
	m.Save(ctx, "u1", "b", "2")

	m.Evict(ctx, "u1", "a")
	_, ok := m.Get(ctx, "u1", "a")
	assert.False(t, ok)
	_, ok = m.Get(ctx, "u1", "b")
	assert.True(t, ok)

	// Evicting an unknown key is a no-op.
	m.Evict(ctx, "u1", "missing")
}

func TestManagerClearRetainsMatchingKeys(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	m.Save(ctx, "u1", "stage", "MENU")
	m.Save(ctx, "u1", "cart", []any{"item"})
	m.SaveProp(ctx, "u1", "language", "en")

	m.Clear(ctx, "u1", PropsKey)

	_, ok := m.Get(ctx, "u1", "stage")
	assert.False(t, ok)
	_, ok = m.Get(ctx, "u1", "cart")
	assert.False(t, ok)

	lang, ok := m.GetFromProps(ctx, "u1", "language")
	require.True(t, ok, "props must survive a retaining clear")
	assert.Equal(t, "en", lang)
}

func TestManagerClearWithoutRetainDropsScope(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	m.Save(ctx, "u1", "stage", "MENU")
	m.Clear(ctx, "u1")
	assert.Empty(t, m.FetchAll(ctx, "u1"))
}

func TestManagerProps(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	m.SaveProp(ctx, "u1", "language", "en")
	m.SaveProp(ctx, "u1", "currency", "USD")

	props := m.Props(ctx, "u1")
	assert.Len(t, props, 2)

	value, ok := m.GetFromProps(ctx, "u1", "language")
	require.True(t, ok)
	assert.Equal(t, "en", value)

	assert.True(t, m.EvictProp(ctx, "u1", "language"))
	assert.False(t, m.EvictProp(ctx, "u1", "language"))

	_, ok = m.GetFromProps(ctx, "u1", "currency")
	assert.True(t, ok)
}

func TestManagerGlobalScope(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	m.SaveGlobal(ctx, "maintenance", true)
	value, ok := m.GetGlobal(ctx, "maintenance")
	require.True(t, ok)
	assert.Equal(t, true, value)

	// Global state is invisible from user scopes and vice versa.
	_, ok = m.Get(ctx, "u1", "maintenance")
	assert.False(t, ok)
	m.Save(ctx, "u1", "private", 1)
	_, ok = m.GetGlobal(ctx, "private")
	assert.False(t, ok)

	assert.True(t, m.KeyInSession(ctx, "u1", "maintenance", true))
	assert.False(t, m.KeyInSession(ctx, "u1", "maintenance", false))

	m.EvictGlobal(ctx, "maintenance")
	_, ok = m.GetGlobal(ctx, "maintenance")
	assert.False(t, ok)
}

func TestManagerClearGlobal(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	m.SaveGlobal(ctx, "a", 1)
	m.ClearGlobal(ctx)
	_, ok := m.GetGlobal(ctx, "a")
	assert.False(t, ok)
}
