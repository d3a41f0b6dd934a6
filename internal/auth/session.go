package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionStore defines the persistence contract for session tokens.
type SessionStore interface {
	Save(ctx context.Context, token, userID string, expiresAt time.Time) error
	Get(ctx context.Context, token string) (SessionRecord, bool, error)
	Delete(ctx context.Context, token string) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// SessionRecord captures a session retrieved from the backing store.
type SessionRecord struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// SessionOption configures a SessionManager instance.
type SessionOption func(*SessionManager)

// WithStore injects a custom SessionStore implementation.
func WithStore(store SessionStore) SessionOption {
	return func(m *SessionManager) {
		m.store = store
	}
}

// WithTokenFactory overrides token generation, primarily for tests.
func WithTokenFactory(factory func() string) SessionOption {
	return func(m *SessionManager) {
		if factory != nil {
			m.tokenFactory = factory
		}
	}
}

// SessionManager coordinates session creation and validation against a
// backing store. Tokens are opaque UUID strings with a fixed TTL; validation
// never extends expiry, so revocation and timeout are both absolute.
type SessionManager struct {
	store        SessionStore
	ttl          time.Duration
	tokenFactory func() string
}

// DefaultSessionTTL bounds how long an issued token remains valid.
const DefaultSessionTTL = 24 * time.Hour

// NewSessionManager constructs a SessionManager with the provided TTL and
// options. It defaults to a 24-hour TTL and an in-memory store for local
// development when no store is supplied.
func NewSessionManager(ttl time.Duration, opts ...SessionOption) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	manager := &SessionManager{
		ttl:          ttl,
		tokenFactory: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	if manager.store == nil {
		manager.store = NewMemorySessionStore()
	}
	return manager
}

// Create issues a new session token for the provided user identifier.
func (m *SessionManager) Create(ctx context.Context, userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrInvalidUserID
	}
	token := m.tokenFactory()
	expiresAt := time.Now().Add(m.ttl).UTC()
	if err := m.store.Save(ctx, token, userID, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate checks the backing store for the provided token and returns the
// associated user when valid. A store failure is returned as an error so
// callers can distinguish "not authenticated" from "store unreachable".
func (m *SessionManager) Validate(ctx context.Context, token string) (string, time.Time, bool, error) {
	if token == "" {
		return "", time.Time{}, false, nil
	}
	record, ok, err := m.store.Get(ctx, token)
	if err != nil {
		return "", time.Time{}, false, err
	}
	if !ok {
		return "", time.Time{}, false, nil
	}
	if !record.ExpiresAt.IsZero() && time.Now().After(record.ExpiresAt) {
		_ = m.store.Delete(ctx, token)
		return "", time.Time{}, false, nil
	}
	return record.UserID, record.ExpiresAt, true, nil
}

// Revoke deletes the session token from the backing store. Revoking an
// absent token is not an error.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, token)
}

// PurgeExpired removes any expired sessions from the backing store and
// reports how many were removed.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int, error) {
	return m.store.PurgeExpired(ctx, time.Now())
}

// Ping verifies the underlying session store is reachable when it exposes a
// ping method.
func (m *SessionManager) Ping(ctx context.Context) error {
	if m == nil || m.store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if pinger, ok := m.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// ErrInvalidUserID is returned when attempting to create a session without a
// user identifier.
var ErrInvalidUserID = errors.New("userID is required")
