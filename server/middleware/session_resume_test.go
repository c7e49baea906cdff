package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/observability"
	"github.com/chatrelay/chatrelay/internal/profile"
	"github.com/chatrelay/chatrelay/server/auth"
	"github.com/chatrelay/chatrelay/server/handshake"
	"github.com/chatrelay/chatrelay/server/session"
	"github.com/chatrelay/chatrelay/server/webhook"
	"github.com/chatrelay/chatrelay/store"
	"github.com/chatrelay/chatrelay/store/cache"
)

const webhookBody = `{
  "entry": [{"changes": [{"value": {
    "contacts": [{"wa_id": "263770123456", "profile": {"name": "Ada"}}],
    "messages": [{"id": "wamid.1", "from": "263770123456", "type": "text", "text": {"body": "hi"}}]
  }}]}]
}`

type fakeDriver struct {
	store.Driver

	mu      sync.Mutex
	user    *store.User
	mapping *store.SessionMapping
	expired []string
	touched []string
}

func (d *fakeDriver) GetUser(_ context.Context, _ *store.FindUser) (*store.User, error) {
	return d.user, nil
}

func (d *fakeDriver) GetSessionMapping(_ context.Context, waID string) (*store.SessionMapping, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mapping == nil || d.mapping.WaID != waID {
		return nil, nil
	}
	return d.mapping, nil
}

func (d *fakeDriver) MarkSessionExpired(_ context.Context, waID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expired = append(d.expired, waID)
	return nil
}

func (d *fakeDriver) TouchSessionLastUsed(_ context.Context, waID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touched = append(d.touched, waID)
	return nil
}

func (d *fakeDriver) markedExpired() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.expired...)
}

func (d *fakeDriver) touchedIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.touched...)
}

type fixture struct {
	driver        *fakeDriver
	cache         *cache.KeyedStore
	sessions      *session.Manager
	authenticator *auth.Authenticator
	resumer       *SessionResumer
	sid           string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p := &profile.Profile{Mode: "dev", Secret: "test-secret"}
	require.NoError(t, p.Validate())

	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	driver := &fakeDriver{user: &store.User{
		ID:           1,
		Email:        "ada@example.com",
		PasswordHash: hash,
		RowStatus:    "NORMAL",
	}}

	st := store.New(driver, p)
	keyed := cache.NewKeyedStore(cache.Config{Capacity: 64, DefaultTTL: time.Minute})
	t.Cleanup(keyed.Close)
	sessions := session.NewManager(keyed, time.Minute, time.Minute)
	authenticator := auth.NewAuthenticator(st, p.Secret, time.Hour)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	sid, _, err := authenticator.SignIn(context.Background(), "ada@example.com", "hunter2")
	require.NoError(t, err)

	resumer := NewSessionResumer(st, keyed, sessions, authenticator, webhook.NewVerifier(p), metrics, "/webhook")
	return &fixture{
		driver:        driver,
		cache:         keyed,
		sessions:      sessions,
		authenticator: authenticator,
		resumer:       resumer,
		sid:           sid,
	}
}

// bindSession installs an active mapping plus the matching
// conversation marker, as a completed handshake would.
func (f *fixture) bindSession(t *testing.T, expiresOn time.Time) {
	t.Helper()
	f.driver.mapping = &store.SessionMapping{
		WaID:      "263770123456",
		SID:       f.sid,
		User:      "ada@example.com",
		Status:    store.SessionActive,
		ExpiresOn: expiresOn,
	}
	f.sessions.Save(context.Background(), "263770123456", session.KeyValidAuthSession, map[string]any{
		"sid":  f.sid,
		"user": "ada@example.com",
	})
}

// run sends a POST through the middleware and reports the identity
// the downstream handler observed, plus the body it could read.
func (f *fixture) run(t *testing.T, path, body string) (*auth.Identity, string) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var identity *auth.Identity
	var seenBody string
	handler := f.resumer.Middleware()(func(c echo.Context) error {
		if id, ok := auth.IdentityFromContext(c.Request().Context()); ok {
			identity = id
		}
		raw, err := io.ReadAll(c.Request().Body)
		require.NoError(t, err)
		seenBody = string(raw)
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	return identity, seenBody
}

func TestResumeActiveSession(t *testing.T) {
	f := newFixture(t)
	f.bindSession(t, time.Now().Add(10*time.Minute))

	identity, body := f.run(t, "/webhook", webhookBody)
	require.NotNil(t, identity, "active mapping must resume the session")
	assert.Equal(t, "ada@example.com", identity.Email)
	assert.Equal(t, webhookBody, body, "body must be readable downstream")
	assert.Equal(t, []string{"263770123456"}, f.driver.touchedIDs())

	// The resumed lookup warms the cache shadow.
	_, ok := handshake.ReadShadow(context.Background(), f.cache, "263770123456")
	assert.True(t, ok)
}

func TestResumeFromShadow(t *testing.T) {
	f := newFixture(t)
	f.bindSession(t, time.Now().Add(10*time.Minute))
	handshake.WriteShadow(context.Background(), f.cache, f.driver.mapping)

	// Remove the durable record: the shadow alone must carry the sid.
	f.driver.mapping = nil

	identity, _ := f.run(t, "/webhook", webhookBody)
	require.NotNil(t, identity)
	assert.Equal(t, "ada@example.com", identity.Email)

	// The success path rewrites the shadow with the remaining TTL.
	shadow, ok := handshake.ReadShadow(context.Background(), f.cache, "263770123456")
	require.True(t, ok)
	assert.Equal(t, f.sid, shadow.SID)
}

func TestNoMappingStaysGuest(t *testing.T) {
	f := newFixture(t)

	identity, body := f.run(t, "/webhook", webhookBody)
	assert.Nil(t, identity)
	assert.Equal(t, webhookBody, body)
	assert.Empty(t, f.driver.touchedIDs())
}

func TestExpiredMappingNeverResumes(t *testing.T) {
	f := newFixture(t)
	f.bindSession(t, time.Now().Add(-time.Minute))

	identity, _ := f.run(t, "/webhook", webhookBody)
	assert.Nil(t, identity, "an expired mapping must not resume")

	// Expiry is marked off the request path.
	assert.Eventually(t, func() bool {
		expired := f.driver.markedExpired()
		return len(expired) == 1 && expired[0] == "263770123456"
	}, time.Second, 10*time.Millisecond)
}

func TestMarkerAbsentStaysGuest(t *testing.T) {
	f := newFixture(t)
	// Active mapping and warm shadow, but no conversation marker:
	// both sources must agree before a session resumes.
	f.driver.mapping = &store.SessionMapping{
		WaID:      "263770123456",
		SID:       f.sid,
		User:      "ada@example.com",
		Status:    store.SessionActive,
		ExpiresOn: time.Now().Add(10 * time.Minute),
	}
	handshake.WriteShadow(context.Background(), f.cache, f.driver.mapping)

	identity, _ := f.run(t, "/webhook", webhookBody)
	assert.Nil(t, identity, "a mapping hit without the auth marker must not resume")
	assert.Empty(t, f.driver.touchedIDs())
}

func TestMalformedMarkerStaysGuest(t *testing.T) {
	f := newFixture(t)
	f.bindSession(t, time.Now().Add(10*time.Minute))
	f.sessions.Save(context.Background(), "263770123456", session.KeyValidAuthSession, "not-a-map")

	identity, _ := f.run(t, "/webhook", webhookBody)
	assert.Nil(t, identity)
}

func TestLogoutThenWebhookStaysGuest(t *testing.T) {
	f := newFixture(t)
	f.bindSession(t, time.Now().Add(10*time.Minute))
	handshake.WriteShadow(context.Background(), f.cache, f.driver.mapping)

	// A chat-side logout clears the conversation scope but leaves the
	// durable mapping and shadow in place.
	f.sessions.Clear(context.Background(), "263770123456", session.PropsKey)

	identity, _ := f.run(t, "/webhook", webhookBody)
	assert.Nil(t, identity, "a logged-out user must not be resumed from the surviving mapping")
	assert.Empty(t, f.driver.touchedIDs())
}

func TestMarkerMismatchStaysGuest(t *testing.T) {
	f := newFixture(t)
	f.bindSession(t, time.Now().Add(10*time.Minute))
	// A chat-side logout re-bound the marker to another sid.
	f.sessions.Save(context.Background(), "263770123456", session.KeyValidAuthSession, map[string]any{
		"sid": "someone-else",
	})

	identity, _ := f.run(t, "/webhook", webhookBody)
	assert.Nil(t, identity)
}

func TestInvalidStoredSIDStaysGuest(t *testing.T) {
	f := newFixture(t)
	f.bindSession(t, time.Now().Add(10*time.Minute))
	f.driver.mapping.SID = "not-a-valid-token"
	f.sessions.Save(context.Background(), "263770123456", session.KeyValidAuthSession, map[string]any{
		"sid": "not-a-valid-token",
	})

	identity, _ := f.run(t, "/webhook", webhookBody)
	assert.Nil(t, identity)
}

func TestBadSignatureStaysGuest(t *testing.T) {
	p := &profile.Profile{Mode: "prod", Secret: "test-secret", AppSecret: "app", ValidateSignature: true}
	require.NoError(t, p.Validate())

	f := newFixture(t)
	f.resumer.verifier = webhook.NewVerifier(p)
	f.bindSession(t, time.Now().Add(10*time.Minute))

	identity, body := f.run(t, "/webhook", webhookBody)
	assert.Nil(t, identity, "unsigned payloads must never resume a session")
	assert.Equal(t, webhookBody, body, "the request still reaches the handler")
}

func TestOtherPathsUntouched(t *testing.T) {
	f := newFixture(t)
	f.bindSession(t, time.Now().Add(10*time.Minute))

	identity, _ := f.run(t, "/api/v1/messages", webhookBody)
	assert.Nil(t, identity)
	assert.Empty(t, f.driver.touchedIDs())
}
