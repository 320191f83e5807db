package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ajayykmr/billing-notifier/internal/api"
)

var (
	// ErrNotFound is returned by a Store that holds no session.
	ErrNotFound = errors.New("session not found")
	// ErrNoSession is returned when no session has been loaded or begun.
	ErrNoSession = errors.New("no active session")
	// ErrExpired is returned when the session token's exp claim has passed.
	ErrExpired = errors.New("session expired")
)

// Session is the signed-in staff member and their bearer token.
type Session struct {
	Token   string    `json:"token"`
	User    api.User  `json:"user"`
	SavedAt time.Time `json:"saved_at"`
}

// ExpiresAt reads the exp claim of the token without verifying its
// signature; the server remains the authority. Opaque tokens report false.
func (s Session) ExpiresAt() (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Store persists at most one session.
type Store interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Clear(ctx context.Context) error
}

// Option customises the Manager.
type Option func(*Manager)

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager owns the process-wide session with an explicit lifecycle:
// Load or Begin makes a session current, Clear ends it.
type Manager struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	current *Session
}

// NewManager constructs a Manager over store.
func NewManager(store Store, logger zerolog.Logger, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session manager: store dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	m := &Manager{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Load reads the persisted session. A missing session is not an error. An
// expired one is cleared from the store.
func (m *Manager) Load(ctx context.Context) error {
	s, err := m.store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		m.set(nil)
		return nil
	}
	if err != nil {
		return err
	}
	if m.expired(*s) {
		m.logger.Info().Msg("stored session has expired; clearing")
		return m.Clear(ctx)
	}
	m.set(s)
	return nil
}

// Begin persists s and makes it current.
func (m *Manager) Begin(ctx context.Context, s Session) error {
	if s.Token == "" {
		return errors.New("session manager: token is required")
	}
	if s.SavedAt.IsZero() {
		s.SavedAt = m.now().UTC()
	}
	if err := m.store.Save(ctx, &s); err != nil {
		return err
	}
	m.set(&s)
	m.logger.Info().Str("user_id", s.User.ID).Msg("session started")
	return nil
}

// Clear removes the session from memory and from the store.
func (m *Manager) Clear(ctx context.Context) error {
	m.set(nil)
	return m.store.Clear(ctx)
}

// Current returns a copy of the active session.
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// Token returns the bearer token of the active, unexpired session.
func (m *Manager) Token() (string, error) {
	s, ok := m.Current()
	if !ok {
		return "", ErrNoSession
	}
	if m.expired(s) {
		return "", ErrExpired
	}
	return s.Token, nil
}

func (m *Manager) expired(s Session) bool {
	exp, ok := s.ExpiresAt()
	return ok && !m.now().Before(exp)
}

func (m *Manager) set(s *Session) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
}
