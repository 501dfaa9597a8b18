package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/squidstack/squidflags/pkg/auth"
	"github.com/squidstack/squidflags/pkg/model"
	"github.com/squidstack/squidflags/pkg/storage"
	"github.com/squidstack/squidflags/pkg/targeting"
)

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) Login(ctx context.Context, username, password string) (auth.Result, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(auth.Result), args.Error(1)
}

// recordingSyncer records calls in order and what the targeting context
// reported at refresh time.
type recordingSyncer struct {
	mu         sync.Mutex
	calls      []string
	tc         *targeting.Context
	adminAtRef []bool
	refreshErr error
	delay      time.Duration
}

func (r *recordingSyncer) SetTargetingContext(tc *targeting.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "target")
	r.tc = tc
}

func (r *recordingSyncer) Refresh(_ context.Context, reason string) error {
	time.Sleep(r.delay)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "refresh:"+reason)
	r.adminAtRef = append(r.adminAtRef, r.tc.Bool(targeting.IsAdmin))
	return r.refreshErr
}

func (r *recordingSyncer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func jwtExpiringAt(t time.Time) string {
	payload := fmt.Sprintf(`{"sub":"squid","exp":%d}`, t.Unix())
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig"
}

func jwtExpiringAtMillis(t time.Time) string {
	payload := fmt.Sprintf(`{"sub":"squid","exp":%.3f}`, float64(t.UnixMilli())/1000)
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig"
}

type fixture struct {
	backend *storage.Memory
	store   *Store
	auth    *mockAuth
	sync    *recordingSyncer
	manager *Manager
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{backend: storage.NewMemory(), auth: &mockAuth{}, sync: &recordingSyncer{}}
	f.store = NewStore(storage.New(f.backend))
	f.manager = NewManager(f.auth, f.store, f.sync, opts...)
	return f
}

func (f *fixture) raw(key string) (string, bool) {
	v, ok, _ := f.backend.GetItem(context.Background(), key)
	return v, ok
}

func TestLogin_PersistsNormalizedSession(t *testing.T) {
	f := newFixture()
	f.auth.On("Login", mock.Anything, "squid", "pw").Return(auth.Result{
		Token:   "h.p.s",
		Profile: &auth.Profile{UserID: "7", Username: "squid", FullName: "Squid Ink", Roles: []string{"admin"}, HasRoles: true},
	}, nil)

	sess, err := f.manager.Login(context.Background(), Credentials{Username: "squid", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "h.p.s", sess.Token)
	assert.True(t, sess.User.IsAdmin)
	assert.Equal(t, "7", sess.User.ID)
	assert.Equal(t, "Squid Ink", sess.User.Name)

	tok, ok := f.store.Token()
	require.True(t, ok)
	assert.Equal(t, "h.p.s", tok)
	user, ok := f.store.User()
	require.True(t, ok)
	assert.Equal(t, []string{"admin"}, user.Roles)

	// targeting is wired before the refresh so the refresh sees the new user
	assert.Equal(t, []string{"target", "refresh:login"}, f.sync.Calls())
	assert.Equal(t, []bool{true}, f.sync.adminAtRef)
	f.auth.AssertExpectations(t)
}

func TestLogin_AuthFailure_PassedThrough(t *testing.T) {
	f := newFixture()
	lerr := &auth.LoginError{Kind: auth.InvalidCredentials, Status: 401, Message: auth.InvalidCredentialsMessage}
	f.auth.On("Login", mock.Anything, "squid", "bad").Return(auth.Result{}, lerr).Once()

	_, err := f.manager.Login(context.Background(), Credentials{Username: "squid", Password: "bad"})
	assert.Same(t, lerr, err)
	assert.Empty(t, f.sync.Calls())
	_, ok := f.raw(TokenKey)
	assert.False(t, ok)
	f.auth.AssertNumberOfCalls(t, "Login", 1)
}

func TestLogin_RefreshFailure_Swallowed(t *testing.T) {
	f := newFixture()
	f.sync.refreshErr = errors.New("flags offline")
	f.auth.On("Login", mock.Anything, "u", "pw").Return(auth.Result{Token: "t"}, nil)

	sess, err := f.manager.Login(context.Background(), Credentials{Username: "u", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "u", sess.User.Username)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		profile *auth.Profile
		creds   Credentials
		want    model.UserProfile
	}{
		{
			name:  "plain acknowledgement uses hint",
			creds: Credentials{Username: "u", IsAdmin: true},
			want:  model.UserProfile{Username: "u", Roles: []string{}, IsAdmin: true},
		},
		{
			name:    "no roles falls back to hint",
			profile: &auth.Profile{Username: "u", Name: "Alt Name"},
			creds:   Credentials{IsAdmin: true},
			want:    model.UserProfile{Username: "u", Name: "Alt Name", Roles: []string{}, IsAdmin: true},
		},
		{
			name:    "roles override hint",
			profile: &auth.Profile{ID: "1", UserID: "2", Roles: []string{"user"}, HasRoles: true},
			creds:   Credentials{Username: "form", IsAdmin: true},
			want:    model.UserProfile{ID: "1", Username: "form", Name: "form", Roles: []string{"user"}, IsAdmin: false},
		},
		{
			name:    "name falls back to user",
			profile: &auth.Profile{},
			want:    model.UserProfile{Name: "user", Roles: []string{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize(tt.profile, tt.creds))
		})
	}
}

func TestLogout_ClearsBothKeys(t *testing.T) {
	for _, prior := range []map[string]string{
		{TokenKey: "t", UserKey: `{"username":"u"}`},
		{TokenKey: "t"},
		{UserKey: `{"username":"u"}`},
		{},
	} {
		f := newFixture()
		for k, v := range prior {
			require.NoError(t, f.backend.SetItem(context.Background(), k, v))
		}

		f.manager.Logout(context.Background())

		_, ok := f.raw(TokenKey)
		assert.False(t, ok)
		_, ok = f.raw(UserKey)
		assert.False(t, ok)
		assert.Equal(t, []string{"target", "refresh:logout"}, f.sync.Calls())
		assert.Equal(t, []bool{false}, f.sync.adminAtRef)
	}
}

func TestStore_CorruptUser_Absent(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.backend.SetItem(context.Background(), UserKey, "{not json"))

	_, ok := f.store.User()
	assert.False(t, ok)
	assert.Nil(t, f.store.Session().User)
}

func TestStartExpiryWatch_AlreadyExpired_ClearsImmediately(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.backend.SetItem(context.Background(), TokenKey, jwtExpiringAt(time.Now().Add(-time.Second))))
	require.NoError(t, f.backend.SetItem(context.Background(), UserKey, `{"username":"u"}`))

	reloads := 0
	cancel := f.manager.StartExpiryWatch(func() { reloads++ })
	defer cancel()

	assert.Equal(t, 1, reloads)
	_, ok := f.raw(TokenKey)
	assert.False(t, ok)
	_, ok = f.raw(UserKey)
	assert.False(t, ok)
	assert.False(t, f.manager.Armed())
}

func TestStartExpiryWatch_FiresAfterExpiry(t *testing.T) {
	f := newFixture(WithExpirySkew(10 * time.Millisecond))
	require.NoError(t, f.backend.SetItem(context.Background(), TokenKey, jwtExpiringAt(time.Now().Add(2*time.Second))))
	require.NoError(t, f.backend.SetItem(context.Background(), UserKey, `{"username":"u"}`))

	expired := make(chan struct{}, 1)
	cancel := f.manager.StartExpiryWatch(func() { expired <- struct{}{} })
	defer cancel()
	assert.True(t, f.manager.Armed())

	select {
	case <-expired:
	case <-time.After(5 * time.Second):
		t.Fatal("expiry watch did not fire")
	}
	_, ok := f.raw(TokenKey)
	assert.False(t, ok)
	_, ok = f.raw(UserKey)
	assert.False(t, ok)
}

func TestStartExpiryWatch_BeyondHorizonOrUnknown_NoTimer(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.backend.SetItem(context.Background(), TokenKey, jwtExpiringAt(time.Now().Add(48*time.Hour))))
	cancel := f.manager.StartExpiryWatch(func() {})
	assert.False(t, f.manager.Armed())
	cancel()

	require.NoError(t, f.backend.SetItem(context.Background(), TokenKey, "header."+base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"x"}`))+".sig"))
	cancel = f.manager.StartExpiryWatch(func() {})
	assert.False(t, f.manager.Armed())
	cancel()

	_, ok := f.raw(TokenKey)
	assert.True(t, ok)
}

func TestLogout_CancelsExpiryTimer(t *testing.T) {
	f := newFixture(WithExpirySkew(0))
	require.NoError(t, f.backend.SetItem(context.Background(), TokenKey, jwtExpiringAt(time.Now().Add(2*time.Second))))

	fired := make(chan struct{}, 1)
	cancel := f.manager.StartExpiryWatch(func() { fired <- struct{}{} })
	defer cancel()
	require.True(t, f.manager.Armed())

	f.manager.Logout(context.Background())
	assert.False(t, f.manager.Armed())

	select {
	case <-fired:
		t.Fatal("expiry fired after logout")
	case <-time.After(2500 * time.Millisecond):
	}
}

func TestCancel_StopsTimer(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.backend.SetItem(context.Background(), TokenKey, jwtExpiringAt(time.Now().Add(time.Hour))))

	cancel := f.manager.StartExpiryWatch(func() {})
	require.True(t, f.manager.Armed())
	cancel()
	cancel()
	assert.False(t, f.manager.Armed())
}

func TestStartExpiryWatch_RearmReplacesTimer(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.backend.SetItem(context.Background(), TokenKey, jwtExpiringAt(time.Now().Add(time.Hour))))

	first := f.manager.StartExpiryWatch(func() {})
	second := f.manager.StartExpiryWatch(func() {})
	require.True(t, f.manager.Armed())

	// cancelling a superseded watch leaves the current one alone
	first()
	assert.True(t, f.manager.Armed())
	second()
	assert.False(t, f.manager.Armed())
}

func TestLogin_RearmsActiveWatch(t *testing.T) {
	f := newFixture()
	cancel := f.manager.StartExpiryWatch(func() {})
	defer cancel()
	require.False(t, f.manager.Armed())

	f.auth.On("Login", mock.Anything, "u", "pw").Return(auth.Result{Token: jwtExpiringAt(time.Now().Add(time.Hour))}, nil)
	_, err := f.manager.Login(context.Background(), Credentials{Username: "u", Password: "pw"})
	require.NoError(t, err)
	assert.True(t, f.manager.Armed())
}

func TestLogin_WhileOldTokenExpires_KeepsNewSession(t *testing.T) {
	f := newFixture(WithExpirySkew(0))
	require.NoError(t, f.backend.SetItem(context.Background(), TokenKey, jwtExpiringAtMillis(time.Now().Add(300*time.Millisecond))))

	expired := make(chan struct{}, 1)
	cancel := f.manager.StartExpiryWatch(func() { expired <- struct{}{} })
	defer cancel()
	require.True(t, f.manager.Armed())

	fresh := jwtExpiringAt(time.Now().Add(time.Hour))
	f.auth.On("Login", mock.Anything, "u", "pw").Return(auth.Result{Token: fresh}, nil)
	// the old token's expiry passes while the login refresh is in flight
	f.sync.delay = 600 * time.Millisecond

	_, err := f.manager.Login(context.Background(), Credentials{Username: "u", Password: "pw"})
	require.NoError(t, err)

	tok, ok := f.store.Token()
	require.True(t, ok)
	assert.Equal(t, fresh, tok)
	assert.True(t, f.manager.Armed())
	select {
	case <-expired:
		t.Fatal("old token expiry cleared the new session")
	default:
	}
}
