package store

import "time"

// SessionStatus is the lifecycle state of a session mapping.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionExpired SessionStatus = "expired"
)

// SessionMapping binds an external WhatsApp user id to a currently
// valid web session. At most one mapping exists per wa_id; a new
// login overwrites the previous one in place.
type SessionMapping struct {
	WaID        string
	SID         string
	User        string
	Status      SessionStatus
	ExpiresOn   time.Time
	CreatedFrom string
	LastUsed    time.Time
	CreatedTs   int64
	UpdatedTs   int64
}

// Expired reports whether the mapping's expiry has passed.
func (m *SessionMapping) Expired(now time.Time) bool {
	return !m.ExpiresOn.IsZero() && m.ExpiresOn.Before(now)
}

// UpsertSessionMapping specifies the data for creating or replacing
// a mapping. Upsert is idempotent per wa_id.
type UpsertSessionMapping struct {
	WaID        string
	SID         string
	User        string
	ExpiresOn   time.Time
	CreatedFrom string
}

// LookupState distinguishes the outcomes of a mapping lookup.
type LookupState int

const (
	LookupFound LookupState = iota
	LookupNotFound
	LookupExpired
)

// SessionLookup is the result of GetSessionMapping. An expired
// mapping is reported as LookupExpired with the stale record
// attached, never as an error.
type SessionLookup struct {
	State   LookupState
	Mapping *SessionMapping
}
