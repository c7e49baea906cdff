// Package session implements the conversation-scoped key-value state
// the bot engine reads and writes between webhook deliveries.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/chatrelay/chatrelay/store/cache"
)

// Manager stores arbitrary key-value data per conversation scope
// (the WhatsApp user id) plus one global scope shared by the whole
// bot. Every scope is a single serialized blob in the cache store:
// each mutation re-reads, modifies and rewrites the whole blob, so
// concurrent writers to the same scope are last-writer-wins. The
// per-user webhook lock keeps the expected writer sequential; a
// concurrent browser-originated write can still race (known hazard).
type Manager struct {
	cache      *cache.KeyedStore
	sessionTTL time.Duration
	globalTTL  time.Duration
}

// NewManager creates a session manager over the keyed cache store.
func NewManager(keyed *cache.KeyedStore, sessionTTL, globalTTL time.Duration) *Manager {
	if sessionTTL <= 0 {
		sessionTTL = 30 * time.Minute
	}
	if globalTTL <= 0 {
		globalTTL = 24 * time.Hour
	}
	return &Manager{
		cache:      keyed,
		sessionTTL: sessionTTL,
		globalTTL:  globalTTL,
	}
}

func (m *Manager) fetch(ctx context.Context, scopeKey string) map[string]any {
	raw, ok := m.cache.Get(ctx, scopeKey)
	if !ok {
		return map[string]any{}
	}
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		slog.Warn("discarding undecodable scope blob", "scope", scopeKey, "error", err)
		return map[string]any{}
	}
	return data
}

func (m *Manager) write(ctx context.Context, scopeKey string, data map[string]any, ttl time.Duration) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Warn("failed to marshal scope blob", "scope", scopeKey, "error", err)
		return
	}
	m.cache.Set(ctx, scopeKey, raw, ttl)
}

// Save stores a key-value pair in the conversation scope. The write
// refreshes the scope's sliding TTL.
func (m *Manager) Save(ctx context.Context, scope, key string, value any) {
	data := m.fetch(ctx, scope)
	data[key] = value
	m.write(ctx, scope, data, m.sessionTTL)
}

// SaveAll applies Save per entry; the batch is not atomic.
func (m *Manager) SaveAll(ctx context.Context, scope string, values map[string]any) {
	for key, value := range values {
		m.Save(ctx, scope, key, value)
	}
}

// Get retrieves a key from the conversation scope.
func (m *Manager) Get(ctx context.Context, scope, key string) (any, bool) {
	data := m.fetch(ctx, scope)
	value, ok := data[key]
	return value, ok
}

// FetchAll returns the whole scope blob.
func (m *Manager) FetchAll(ctx context.Context, scope string) map[string]any {
	return m.fetch(ctx, scope)
}

// Evict removes a key from the conversation scope. Unknown keys are
// a no-op.
func (m *Manager) Evict(ctx context.Context, scope, key string) {
	data := m.fetch(ctx, scope)
	if _, ok := data[key]; !ok {
		return
	}
	delete(data, key)
	m.write(ctx, scope, data, m.sessionTTL)
}

// EvictAll removes multiple keys from the conversation scope.
func (m *Manager) EvictAll(ctx context.Context, scope string, keys []string) {
	for _, key := range keys {
		m.Evict(ctx, scope, key)
	}
}

// Clear deletes the conversation scope. With retainKeys, every key
// that does not contain any retain substring is evicted instead;
// substring match, not exact match, so sentinel and property key
// conventions survive a clear.
func (m *Manager) Clear(ctx context.Context, scope string, retainKeys ...string) {
	if len(retainKeys) == 0 {
		m.cache.Delete(ctx, scope)
		return
	}

	data := m.fetch(ctx, scope)
	for key := range data {
		retained := false
		for _, retain := range retainKeys {
			if strings.Contains(key, retain) {
				retained = true
				break
			}
		}
		if !retained {
			delete(data, key)
		}
	}
	m.write(ctx, scope, data, m.sessionTTL)
}

// KeyInSession checks if a key exists in the conversation scope or,
// with checkGlobal, in the global scope.
func (m *Manager) KeyInSession(ctx context.Context, scope, key string, checkGlobal bool) bool {
	if checkGlobal {
		_, ok := m.GetGlobal(ctx, key)
		return ok
	}
	_, ok := m.Get(ctx, scope, key)
	return ok
}

// Props returns the property sub-namespace of the scope.
func (m *Manager) Props(ctx context.Context, scope string) map[string]any {
	value, ok := m.Get(ctx, scope, PropsKey)
	if !ok {
		return map[string]any{}
	}
	props, ok := value.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return props
}

// SaveProp stores a property under the reserved props key.
func (m *Manager) SaveProp(ctx context.Context, scope, propKey string, value any) {
	props := m.Props(ctx, scope)
	props[propKey] = value
	m.Save(ctx, scope, PropsKey, props)
}

// GetFromProps retrieves a property.
func (m *Manager) GetFromProps(ctx context.Context, scope, propKey string) (any, bool) {
	props := m.Props(ctx, scope)
	value, ok := props[propKey]
	return value, ok
}

// EvictProp removes a property. Reports whether it existed.
func (m *Manager) EvictProp(ctx context.Context, scope, propKey string) bool {
	props := m.Props(ctx, scope)
	if _, ok := props[propKey]; !ok {
		return false
	}
	delete(props, propKey)
	m.Save(ctx, scope, PropsKey, props)
	return true
}

// SaveGlobal stores a key-value pair in the global scope.
func (m *Manager) SaveGlobal(ctx context.Context, key string, value any) {
	data := m.fetch(ctx, globalScopeKey)
	data[key] = value
	m.write(ctx, globalScopeKey, data, m.globalTTL)
}

// GetGlobal retrieves a key from the global scope.
func (m *Manager) GetGlobal(ctx context.Context, key string) (any, bool) {
	data := m.fetch(ctx, globalScopeKey)
	value, ok := data[key]
	return value, ok
}

// EvictGlobal removes a key from the global scope.
func (m *Manager) EvictGlobal(ctx context.Context, key string) {
	data := m.fetch(ctx, globalScopeKey)
	if _, ok := data[key]; !ok {
		return
	}
	delete(data, key)
	m.write(ctx, globalScopeKey, data, m.globalTTL)
}

// ClearGlobal deletes the global scope.
func (m *Manager) ClearGlobal(ctx context.Context) {
	m.cache.Delete(ctx, globalScopeKey)
}
