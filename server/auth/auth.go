// Package auth issues and validates browser session tokens. The
// session id (sid) handed to the login-link handshake and injected
// by the resumption hook is a signed JWT carrying its own expiry, so
// the remaining lifetime of the underlying browser session is always
// recoverable from the token itself.
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/chatrelay/chatrelay/store"
)

const (
	// CookieName carries the sid in browser requests.
	CookieName = "chatrelay_sid"

	issuer = "chatrelay"

	// DefaultSessionDuration bounds a browser session.
	DefaultSessionDuration = 14 * 24 * time.Hour
)

var (
	// ErrInvalidCredentials is returned on a failed email/password check.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidSession is returned when a sid fails validation.
	ErrInvalidSession = errors.New("auth: invalid session")
)

// Identity is a validated browser session.
type Identity struct {
	UserID    int32
	Email     string
	Nickname  string
	ExpiresAt time.Time
}

// Remaining returns how long the underlying browser session is still
// valid. Zero or negative means expired.
func (i *Identity) Remaining(now time.Time) time.Duration {
	return i.ExpiresAt.Sub(now)
}

type claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	Nickname string `json:"nickname,omitempty"`
}

// Authenticator validates credentials and session tokens against the
// user store.
type Authenticator struct {
	store           *store.Store
	secret          []byte
	sessionDuration time.Duration
}

// NewAuthenticator creates an authenticator signing with secret.
func NewAuthenticator(st *store.Store, secret string, sessionDuration time.Duration) *Authenticator {
	if sessionDuration <= 0 {
		sessionDuration = DefaultSessionDuration
	}
	return &Authenticator{
		store:           st,
		secret:          []byte(secret),
		sessionDuration: sessionDuration,
	}
}

// SignIn checks the password and issues a new sid.
func (a *Authenticator) SignIn(ctx context.Context, email, password string) (string, *Identity, error) {
	user, err := a.store.GetUser(ctx, &store.FindUser{Email: &email})
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to find user")
	}
	if user == nil || user.RowStatus != "NORMAL" {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := time.Now()
	expiresAt := now.Add(a.sessionDuration)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   formatUserID(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:    user.Email,
		Nickname: user.Nickname,
	})
	sid, err := token.SignedString(a.secret)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to sign session token")
	}

	return sid, &Identity{
		UserID:    user.ID,
		Email:     user.Email,
		Nickname:  user.Nickname,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate parses and verifies a sid. The user record is re-checked
// so a disabled user cannot keep resuming sessions through the bot.
func (a *Authenticator) Validate(ctx context.Context, sid string) (*Identity, error) {
	parsed, err := jwt.ParseWithClaims(sid, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.ExpiresAt == nil {
		return nil, ErrInvalidSession
	}

	userID, err := parseUserID(c.Subject)
	if err != nil {
		return nil, ErrInvalidSession
	}
	user, err := a.store.GetUser(ctx, &store.FindUser{ID: &userID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user")
	}
	if user == nil || user.RowStatus != "NORMAL" {
		return nil, ErrInvalidSession
	}

	return &Identity{
		UserID:    user.ID,
		Email:     user.Email,
		Nickname:  user.Nickname,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// HashPassword hashes a password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "failed to hash password")
	}
	return string(hash), nil
}
