package handshake

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/profile"
	"github.com/chatrelay/chatrelay/server/session"
	"github.com/chatrelay/chatrelay/store"
	"github.com/chatrelay/chatrelay/store/cache"
)

// fakeDriver keeps tokens and mappings in maps. Unimplemented driver
// methods are inherited from the nil embedded interface.
type fakeDriver struct {
	store.Driver
	tokens   map[string]*store.LoginToken
	mappings map[string]*store.SessionMapping
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		tokens:   map[string]*store.LoginToken{},
		mappings: map[string]*store.SessionMapping{},
	}
}

func (d *fakeDriver) CreateLoginToken(_ context.Context, create *store.LoginToken) (*store.LoginToken, error) {
	d.tokens[create.Token] = create
	return create, nil
}

func (d *fakeDriver) GetLoginToken(_ context.Context, token string) (*store.LoginToken, error) {
	return d.tokens[token], nil
}

func (d *fakeDriver) DeleteLoginToken(_ context.Context, token string) error {
	delete(d.tokens, token)
	return nil
}

func (d *fakeDriver) UpsertSessionMapping(_ context.Context, upsert *store.UpsertSessionMapping) (*store.SessionMapping, error) {
	mapping := &store.SessionMapping{
		WaID:        upsert.WaID,
		SID:         upsert.SID,
		User:        upsert.User,
		Status:      store.SessionActive,
		ExpiresOn:   upsert.ExpiresOn,
		CreatedFrom: upsert.CreatedFrom,
	}
	d.mappings[upsert.WaID] = mapping
	return mapping, nil
}

func (d *fakeDriver) GetSessionMapping(_ context.Context, waID string) (*store.SessionMapping, error) {
	return d.mappings[waID], nil
}

type fixture struct {
	service  *Service
	driver   *fakeDriver
	cache    *cache.KeyedStore
	sessions *session.Manager
	profile  *profile.Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p := &profile.Profile{
		Mode:            "dev",
		Secret:          "test-secret",
		InstanceURL:     "https://relay.example.com",
		LoginLinkExpiry: 5 * time.Minute,
		LoginDuration:   10 * time.Minute,
	}
	require.NoError(t, p.Validate())

	driver := newFakeDriver()
	st := store.New(driver, p)
	keyed := cache.NewKeyedStore(cache.Config{Capacity: 64, DefaultTTL: time.Minute})
	t.Cleanup(keyed.Close)
	sessions := session.NewManager(keyed, time.Minute, time.Minute)

	return &fixture{
		service:  NewService(p, st, keyed, sessions),
		driver:   driver,
		cache:    keyed,
		sessions: sessions,
		profile:  p,
	}
}

func TestGenerateLoginLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	link, err := f.service.Generate(ctx, "263770123456")
	require.NoError(t, err)
	assert.Contains(t, link.URL, "https://relay.example.com/bot-login?token=")
	assert.Equal(t, 5, link.ExpiryMinutes)
	assert.Len(t, f.driver.tokens, 1)

	// Two links never share a token.
	link2, err := f.service.Generate(ctx, "263770123456")
	require.NoError(t, err)
	assert.NotEqual(t, link.URL, link2.URL)
}

func TestRedeemSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	link, err := f.service.Generate(ctx, "263770123456")
	require.NoError(t, err)
	token := tokenFromURL(t, link.URL)

	result, err := f.service.Redeem(ctx, token, "ada@example.com", "sid-1", time.Hour, "web")
	require.NoError(t, err)
	require.Equal(t, RedeemSuccess, result.Outcome)

	mapping := f.driver.mappings["263770123456"]
	require.NotNil(t, mapping)
	assert.Equal(t, "sid-1", mapping.SID)
	assert.Equal(t, "ada@example.com", mapping.User)
	// Requested duration is shorter than the browser session here.
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), mapping.ExpiresOn, 2*time.Second)

	// Token is single-use.
	assert.Empty(t, f.driver.tokens)
	again, err := f.service.Redeem(ctx, token, "ada@example.com", "sid-1", time.Hour, "web")
	require.NoError(t, err)
	assert.Equal(t, RedeemInvalid, again.Outcome)

	// The cache shadow and the conversation auth markers exist.
	shadow, ok := ReadShadow(ctx, f.cache, "263770123456")
	require.True(t, ok)
	assert.Equal(t, "sid-1", shadow.SID)
	assert.True(t, f.sessions.KeyInSession(ctx, "263770123456", session.KeyValidAuthSession, false))
}

func TestRedeemClampsToBrowserSessionRemaining(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	link, err := f.service.Generate(ctx, "263770123456")
	require.NoError(t, err)

	// Browser session has only 3 minutes left; the mapping must not
	// outlive it even though 10 minutes were requested.
	result, err := f.service.Redeem(ctx, tokenFromURL(t, link.URL), "ada@example.com", "sid-1", 3*time.Minute, "web")
	require.NoError(t, err)
	require.Equal(t, RedeemSuccess, result.Outcome)
	assert.WithinDuration(t, time.Now().Add(3*time.Minute), result.Mapping.ExpiresOn, 2*time.Second)
}

func TestRedeemExpiredToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.driver.tokens["stale"] = &store.LoginToken{
		Token:     "stale",
		WaID:      "263770123456",
		ExpiresOn: time.Now().Add(-time.Minute),
	}

	result, err := f.service.Redeem(ctx, "stale", "ada@example.com", "sid-1", time.Hour, "web")
	require.NoError(t, err)
	assert.Equal(t, RedeemExpired, result.Outcome)
	assert.Empty(t, f.driver.tokens, "expired token must be consumed")
	assert.Empty(t, f.driver.mappings)
}

func TestRedeemUnknownToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result, err := f.service.Redeem(ctx, "never-issued", "ada@example.com", "sid-1", time.Hour, "web")
	require.NoError(t, err)
	assert.Equal(t, RedeemInvalid, result.Outcome)
}

func TestShadowRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, ok := ReadShadow(ctx, f.cache, "263770123456")
	assert.False(t, ok)

	WriteShadow(ctx, f.cache, &store.SessionMapping{
		WaID:      "263770123456",
		SID:       "sid-1",
		User:      "ada@example.com",
		ExpiresOn: time.Now().Add(time.Minute),
	})
	shadow, ok := ReadShadow(ctx, f.cache, "263770123456")
	require.True(t, ok)
	assert.Equal(t, "sid-1", shadow.SID)

	DeleteShadow(ctx, f.cache, "263770123456")
	_, ok = ReadShadow(ctx, f.cache, "263770123456")
	assert.False(t, ok)
}

func TestShadowSkipsExpiredMapping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	WriteShadow(ctx, f.cache, &store.SessionMapping{
		WaID:      "263770123456",
		SID:       "sid-1",
		ExpiresOn: time.Now().Add(-time.Minute),
	})
	_, ok := ReadShadow(ctx, f.cache, "263770123456")
	assert.False(t, ok, "expired mappings must never be cached")
}

func tokenFromURL(t *testing.T, url string) string {
	t.Helper()
	_, token, found := strings.Cut(url, "token=")
	require.True(t, found)
	return token
}
