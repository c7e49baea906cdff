// Package middleware hosts the echo middleware chatrelay installs in
// front of its webhook and API routes.
package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/observability"
	"github.com/chatrelay/chatrelay/server/auth"
	"github.com/chatrelay/chatrelay/server/handshake"
	"github.com/chatrelay/chatrelay/server/session"
	"github.com/chatrelay/chatrelay/server/webhook"
	"github.com/chatrelay/chatrelay/store"
	"github.com/chatrelay/chatrelay/store/cache"
)

// SessionResumer upgrades webhook requests from chat users who
// completed the login-link handshake: when an active session mapping
// exists for the sender, the request proceeds with that user's
// identity instead of as a guest. Every failure along the way
// degrades silently to guest; resumption is best-effort and must
// never block webhook delivery.
type SessionResumer struct {
	store         *store.Store
	cache         *cache.KeyedStore
	sessions      *session.Manager
	authenticator *auth.Authenticator
	verifier      *webhook.Verifier
	metrics       *observability.Metrics

	webhookPath string
}

// NewSessionResumer creates the resumption middleware for the given
// webhook path.
func NewSessionResumer(
	st *store.Store,
	keyed *cache.KeyedStore,
	sessions *session.Manager,
	authenticator *auth.Authenticator,
	verifier *webhook.Verifier,
	metrics *observability.Metrics,
	webhookPath string,
) *SessionResumer {
	return &SessionResumer{
		store:         st,
		cache:         keyed,
		sessions:      sessions,
		authenticator: authenticator,
		verifier:      verifier,
		metrics:       metrics,
		webhookPath:   webhookPath,
	}
}

// Middleware returns the echo middleware func.
func (r *SessionResumer) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodPost || req.URL.Path != r.webhookPath {
				return next(c)
			}
			if _, ok := auth.IdentityFromContext(req.Context()); ok {
				return next(c)
			}

			body, err := io.ReadAll(req.Body)
			if err != nil {
				return next(c)
			}
			// The handler downstream re-reads the body.
			req.Body = io.NopCloser(bytes.NewReader(body))

			if !r.verifier.Verify(req.Header, body) {
				r.metrics.SignatureFailures.Inc()
				slog.Warn("webhook signature verification failed", "path", req.URL.Path)
				return next(c)
			}

			identity, ok := r.resume(c, body)
			if ok {
				c.SetRequest(req.WithContext(auth.WithIdentity(req.Context(), identity)))
				r.metrics.SessionsResumed.Inc()
			}
			return next(c)
		}
	}
}

func (r *SessionResumer) resume(c echo.Context, body []byte) (*auth.Identity, bool) {
	ctx := c.Request().Context()

	payload, err := webhook.ParsePayload(body)
	if err != nil {
		return nil, false
	}
	user, ok := payload.Sender()
	if !ok || user.WaID == "" {
		return nil, false
	}
	logger := slog.With("wa_id", user.WaID)

	mapping, ok := r.lookupMapping(ctx, user.WaID, logger)
	if !ok {
		return nil, false
	}

	// The conversation's own auth marker must exist and agree on the
	// sid; a mapping or shadow hit alone is not enough. A logout
	// clears the marker without touching the durable record, and the
	// scope blob's own TTL can lapse first; either way the user is a
	// guest again.
	if !r.markerAgrees(ctx, user.WaID, mapping.SID) {
		logger.Debug("conversation auth marker absent or mismatched, not resuming")
		return nil, false
	}

	identity, err := r.authenticator.Validate(ctx, mapping.SID)
	if err != nil {
		logger.Debug("stored sid failed validation, not resuming", "error", err)
		return nil, false
	}

	if err := r.store.TouchSessionLastUsed(ctx, user.WaID); err != nil {
		logger.Warn("failed to touch session last_used", "error", err)
	}
	// Refresh the shadow alongside last_used; WriteShadow clamps the
	// entry's TTL to the mapping's remaining lifetime.
	handshake.WriteShadow(ctx, r.cache, mapping)
	return identity, true
}

// markerAgrees checks the conversation's auth marker against the sid
// resolved from the mapping. Missing or undecodable markers fail the
// check.
func (r *SessionResumer) markerAgrees(ctx context.Context, waID, sid string) bool {
	marker, ok := r.sessions.Get(ctx, waID, session.KeyValidAuthSession)
	if !ok {
		return false
	}
	fields, ok := marker.(map[string]any)
	if !ok {
		return false
	}
	markerSID, ok := fields["sid"].(string)
	return ok && markerSID == sid
}

// lookupMapping finds the session mapping for a wa_id, cache shadow
// first, then the durable record.
func (r *SessionResumer) lookupMapping(ctx context.Context, waID string, logger *slog.Logger) (*store.SessionMapping, bool) {
	if shadow, ok := handshake.ReadShadow(ctx, r.cache, waID); ok {
		return &store.SessionMapping{
			WaID:      waID,
			SID:       shadow.SID,
			User:      shadow.User,
			Status:    store.SessionActive,
			ExpiresOn: shadow.ExpiresOn,
		}, true
	}

	lookup, err := r.store.GetSessionMapping(ctx, waID)
	if err != nil {
		logger.Warn("session mapping lookup failed", "error", err)
		return nil, false
	}
	switch lookup.State {
	case store.LookupFound:
		return lookup.Mapping, true
	case store.LookupExpired:
		// Mark off the hot path; the guest outcome does not wait.
		go func() {
			markCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.store.MarkSessionExpired(markCtx, waID); err != nil {
				slog.Warn("failed to mark session expired", "wa_id", waID, "error", err)
			}
		}()
		return nil, false
	default:
		return nil, false
	}
}
