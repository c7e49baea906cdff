package session

// Reserved keys inside a scope blob.
const (
	// PropsKey is the reserved sub-namespace for user properties.
	// Props live inside the scope blob, so they share the scope's
	// TTL and never get their own expiry.
	PropsKey = "props"

	// KeyValidAuthSession records the web session the conversation
	// believes is valid: {sid, user, full_name, login_time}.
	KeyValidAuthSession = "auth_session"

	// KeyAuthExpireAt records when the resumable session expires.
	KeyAuthExpireAt = "auth_expire_at"
)

// globalScopeKey is the single fixed cache key for global-scoped
// data, used for both reads and writes.
const globalScopeKey = "global"
