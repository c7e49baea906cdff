// Package handshake implements the one-time login-link flow binding
// a browser-authenticated user to a WhatsApp conversation.
package handshake

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/chatrelay/chatrelay/internal/profile"
	"github.com/chatrelay/chatrelay/server/session"
	"github.com/chatrelay/chatrelay/store"
	"github.com/chatrelay/chatrelay/store/cache"
)

const tokenBytes = 32

// ErrLinkUnavailable is the user-safe failure when a login link
// cannot be issued right now.
var ErrLinkUnavailable = errors.New("could not generate a login link right now, please try again later")

// LoginLink is a freshly issued one-time login URL.
type LoginLink struct {
	URL           string
	ExpiryMinutes int
}

// Outcome classifies a redemption attempt.
type Outcome int

const (
	RedeemSuccess Outcome = iota
	// RedeemInvalid: the token does not exist, was already used, or
	// was consumed by a previous terminal failure.
	RedeemInvalid
	// RedeemExpired: the link existed but its expiry had passed; the
	// token record is deleted so the link stays single-use.
	RedeemExpired
)

// RedeemResult reports a redemption attempt.
type RedeemResult struct {
	Outcome Outcome
	Mapping *store.SessionMapping
}

// Service issues and redeems login tokens.
type Service struct {
	profile  *profile.Profile
	store    *store.Store
	cache    *cache.KeyedStore
	sessions *session.Manager
}

// NewService creates the handshake service.
func NewService(p *profile.Profile, st *store.Store, keyed *cache.KeyedStore, sessions *session.Manager) *Service {
	return &Service{
		profile:  p,
		store:    st,
		cache:    keyed,
		sessions: sessions,
	}
}

// Generate creates a one-time login token bound to waID and returns
// the absolute URL to visit. A persistence failure is surfaced as
// ErrLinkUnavailable, never as a raw store error.
func (s *Service) Generate(ctx context.Context, waID string) (*LoginLink, error) {
	token, err := newToken()
	if err != nil {
		slog.Error("failed to generate login token", "wa_id", waID, "error", err)
		return nil, ErrLinkUnavailable
	}

	expiresOn := time.Now().Add(s.profile.LoginLinkExpiry)
	if _, err := s.store.CreateLoginToken(ctx, &store.LoginToken{
		Token:     token,
		WaID:      waID,
		ExpiresOn: expiresOn,
	}); err != nil {
		slog.Error("failed to persist login token", "wa_id", waID, "error", err)
		return nil, ErrLinkUnavailable
	}

	return &LoginLink{
		URL:           fmt.Sprintf("%s/bot-login?token=%s", s.profile.InstanceURL, token),
		ExpiryMinutes: int(s.profile.LoginLinkExpiry.Minutes()),
	}, nil
}

// Redeem consumes a login token on behalf of an authenticated
// browser session and creates the resumable session mapping.
//
// The mapping's TTL is min(configured login duration, remaining
// lifetime of the browser session): the bot must never keep acting
// as a user whose underlying web session has expired. sidRemaining
// <= 0 means the remaining lifetime is unknown and the full login
// duration applies.
func (s *Service) Redeem(ctx context.Context, token, user, sid string, sidRemaining time.Duration, origin string) (*RedeemResult, error) {
	record, err := s.store.GetLoginToken(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up login token")
	}
	if record == nil {
		return &RedeemResult{Outcome: RedeemInvalid}, nil
	}

	now := time.Now()
	if record.Expired(now) {
		// Terminal failure consumes the token too.
		if err := s.store.DeleteLoginToken(ctx, token); err != nil {
			slog.Warn("failed to delete expired login token", "error", err)
		}
		return &RedeemResult{Outcome: RedeemExpired}, nil
	}

	ttl := s.profile.LoginDuration
	if sidRemaining > 0 && sidRemaining < ttl {
		ttl = sidRemaining
	}
	expiresOn := now.Add(ttl)

	mapping, err := s.store.UpsertSessionMapping(ctx, &store.UpsertSessionMapping{
		WaID:        record.WaID,
		SID:         sid,
		User:        user,
		ExpiresOn:   expiresOn,
		CreatedFrom: origin,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to save session mapping")
	}

	// The conversation keeps its own record of the session it
	// believes is valid; resumption requires both to agree.
	s.sessions.Save(ctx, record.WaID, session.KeyAuthExpireAt, expiresOn.Format(time.RFC3339))
	s.sessions.Save(ctx, record.WaID, session.KeyValidAuthSession, map[string]any{
		"sid":        sid,
		"user":       user,
		"login_time": now.Format(time.RFC3339),
	})

	WriteShadow(ctx, s.cache, mapping)

	// Single-use: consume the token on success.
	if err := s.store.DeleteLoginToken(ctx, token); err != nil {
		slog.Warn("failed to delete redeemed login token", "error", err)
	}

	return &RedeemResult{Outcome: RedeemSuccess, Mapping: mapping}, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to read random bytes")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
