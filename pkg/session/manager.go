// Package session persists the authenticated session and drives its lifecycle:
// login, logout, and forced teardown when the bearer token expires.
package session

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/squidstack/squidflags/pkg/auth"
	"github.com/squidstack/squidflags/pkg/model"
	"github.com/squidstack/squidflags/pkg/targeting"
	"github.com/squidstack/squidflags/pkg/token"
)

// Refresh reasons and lifecycle events.
const (
	ReasonLogin   = "login"
	ReasonLogout  = "logout"
	ReasonExpired = "expired"

	EventLogin       = "login"
	EventLoginFailed = "login_failed"
	EventLogout      = "logout"
	EventExpired     = "expired"
)

const (
	DefaultExpiryHorizon = 24 * time.Hour
	DefaultExpirySkew    = 250 * time.Millisecond
)

type Authenticator interface {
	Login(ctx context.Context, username, password string) (auth.Result, error)
}

// Syncer is the part of the flag sync controller the manager drives.
type Syncer interface {
	SetTargetingContext(tc *targeting.Context)
	Refresh(ctx context.Context, reason string) error
}

// Credentials of a login attempt. IsAdmin is the caller's hint, used only
// when the authentication service does not report roles.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"isAdmin"`
}

type Manager struct {
	auth      Authenticator
	store     *Store
	inspector *token.Inspector
	sync      Syncer

	horizon time.Duration
	skew    time.Duration
	events  func(event string)

	mu        sync.Mutex
	timer     *time.Timer
	timerGen  uint64
	watchID   uint64
	onExpired func()
}

type Option func(*Manager)

// WithExpiryHorizon sets how far ahead an expiry timer may be armed.
func WithExpiryHorizon(d time.Duration) Option {
	return func(m *Manager) { m.horizon = d }
}

// WithExpirySkew sets how long after the expiry instant the timer fires.
func WithExpirySkew(d time.Duration) Option {
	return func(m *Manager) { m.skew = d }
}

func WithEventObserver(f func(event string)) Option {
	return func(m *Manager) { m.events = f }
}

func NewManager(a Authenticator, store *Store, s Syncer, opts ...Option) *Manager {
	m := &Manager{
		auth:      a,
		store:     store,
		inspector: token.NewInspector(store),
		sync:      s,
		horizon:   DefaultExpiryHorizon,
		skew:      DefaultExpirySkew,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) Session() model.Session { return m.store.Session() }

// ExpiresAt reports the expiry of the current token, when known.
func (m *Manager) ExpiresAt() (time.Time, bool) { return m.inspector.ExpiresAt() }

// WireTargeting installs a targeting context that reads the current session.
func (m *Manager) WireTargeting() {
	m.sync.SetTargetingContext(targeting.New(m.store))
}

// Login verifies credentials and persists the new session. Authentication
// errors are returned unchanged; a failed flag refresh is not an error.
func (m *Manager) Login(ctx context.Context, creds Credentials) (model.Session, error) {
	res, err := m.auth.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		m.event(EventLoginFailed)
		return model.Session{}, err
	}

	// the previous session's timer must not fire on the new one
	m.mu.Lock()
	m.stopTimerLocked()
	m.mu.Unlock()

	user := normalize(res.Profile, creds)
	sess := model.Session{Token: res.Token, User: &user}
	if !m.store.save(sess) {
		log.Warn("session could not be fully persisted")
	}
	log.WithFields(log.Fields{"username": user.Username, "admin": user.IsAdmin}).Debug("login complete; user normalized")

	// targeting must be in place before the refresh evaluates flags
	m.WireTargeting()
	if err := m.sync.Refresh(ctx, ReasonLogin); err != nil {
		log.Debugf("flag refresh after login failed: %v", err)
	}
	m.event(EventLogin)

	m.mu.Lock()
	watching := m.onExpired != nil
	m.mu.Unlock()
	if watching {
		m.arm()
	}
	return sess, nil
}

// Logout clears the session unconditionally and cancels any pending expiry timer.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.stopTimerLocked()
	m.mu.Unlock()

	if !m.store.clear() {
		log.Warn("session could not be fully cleared")
	}
	log.Debug("logout complete; user cleared")

	m.WireTargeting()
	if err := m.sync.Refresh(ctx, ReasonLogout); err != nil {
		log.Debugf("flag refresh after logout failed: %v", err)
	}
	m.event(EventLogout)
}

// StartExpiryWatch clears the session when its token expires and then calls
// onExpired. An already expired token is cleared before StartExpiryWatch
// returns. Tokens without a known expiry, or expiring beyond the horizon, arm
// no timer. The returned function cancels the watch.
func (m *Manager) StartExpiryWatch(onExpired func()) (cancel func()) {
	m.mu.Lock()
	m.watchID++
	id := m.watchID
	m.onExpired = onExpired
	m.mu.Unlock()

	m.arm()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.watchID != id {
				return
			}
			m.onExpired = nil
			m.stopTimerLocked()
		})
	}
}

func (m *Manager) arm() {
	if m.inspector.IsExpired() {
		log.Info("session token expired, clearing session now")
		m.expire()
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()

	left, ok := m.inspector.UntilExpiry()
	if !ok || left <= 0 || left >= m.horizon {
		return
	}
	gen := m.timerGen
	m.timer = time.AfterFunc(left+m.skew, func() { m.fire(gen) })
	log.WithField("in", left).Debug("session expiry timer armed")
}

func (m *Manager) fire(gen uint64) {
	m.mu.Lock()
	if gen != m.timerGen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	log.Info("session token expiry reached, clearing session")
	m.expire()
}

func (m *Manager) expire() {
	if !m.store.clear() {
		log.Warn("expired session could not be fully cleared")
	}

	m.mu.Lock()
	m.stopTimerLocked()
	onExpired := m.onExpired
	m.mu.Unlock()

	m.WireTargeting()
	m.event(EventExpired)
	if onExpired != nil {
		onExpired()
	}
}

// stopTimerLocked cancels the pending timer and invalidates any callback
// already waiting for the lock.
func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
}

// Armed reports whether an expiry timer is pending.
func (m *Manager) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

func (m *Manager) event(name string) {
	if m.events != nil {
		m.events(name)
	}
}
