package store

import "time"

// LoginToken is a single-use credential binding a browser login to a
// WhatsApp user id. It is deleted on redemption or expiry detection
// and never reused.
type LoginToken struct {
	Token     string
	WaID      string
	ExpiresOn time.Time
	CreatedTs int64
}

// Expired reports whether the token's expiry has passed.
func (t *LoginToken) Expired(now time.Time) bool {
	return t.ExpiresOn.Before(now)
}
