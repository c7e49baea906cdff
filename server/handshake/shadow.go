package handshake

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chatrelay/chatrelay/store"
	"github.com/chatrelay/chatrelay/store/cache"
)

// shadowKeyPrefix namespaces session shadows inside the cache store.
const shadowKeyPrefix = "session:"

// Shadow is the lease-bounded cache copy of a session mapping, kept
// under session:<wa_id> for fast lookup on the webhook path. The
// durable record stays authoritative; a missing or stale shadow just
// forces a store read.
type Shadow struct {
	SID       string    `json:"sid"`
	User      string    `json:"user"`
	ExpiresOn time.Time `json:"expires_on"`
}

// Expired reports whether the shadow's own expiry has passed.
func (s *Shadow) Expired(now time.Time) bool {
	return s.ExpiresOn.Before(now)
}

// ShadowKey returns the cache key for a wa_id.
func ShadowKey(waID string) string {
	return shadowKeyPrefix + waID
}

// WriteShadow refreshes the cache copy of a mapping. The entry's TTL
// is clamped to the mapping's remaining lifetime; mappings that are
// already expired are not cached.
func WriteShadow(ctx context.Context, keyed *cache.KeyedStore, mapping *store.SessionMapping) {
	remaining := time.Until(mapping.ExpiresOn)
	if remaining <= 0 {
		return
	}
	raw, err := json.Marshal(&Shadow{
		SID:       mapping.SID,
		User:      mapping.User,
		ExpiresOn: mapping.ExpiresOn,
	})
	if err != nil {
		return
	}
	keyed.Set(ctx, ShadowKey(mapping.WaID), raw, remaining)
}

// ReadShadow returns the cached shadow for a wa_id. Undecodable and
// expired entries are dropped and reported as absent.
func ReadShadow(ctx context.Context, keyed *cache.KeyedStore, waID string) (*Shadow, bool) {
	raw, ok := keyed.Get(ctx, ShadowKey(waID))
	if !ok {
		return nil, false
	}
	shadow := &Shadow{}
	if err := json.Unmarshal(raw, shadow); err != nil {
		keyed.Delete(ctx, ShadowKey(waID))
		return nil, false
	}
	if shadow.Expired(time.Now()) {
		keyed.Delete(ctx, ShadowKey(waID))
		return nil, false
	}
	return shadow, true
}

// DeleteShadow removes the cached shadow for a wa_id.
func DeleteShadow(ctx context.Context, keyed *cache.KeyedStore, waID string) {
	keyed.Delete(ctx, ShadowKey(waID))
}
