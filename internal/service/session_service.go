package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workbench/internal/dto"
)

var (
	// ErrNoSession is returned when no session has been started.
	ErrNoSession = errors.New("no active session")
	// ErrSessionExpired is returned once the token's expiry has passed.
	ErrSessionExpired = errors.New("session expired; sign in again")
	// ErrInvalidToken is returned for tokens that cannot be decoded.
	ErrInvalidToken = errors.New("invalid session token")
)

// Session is the signed-in student's platform credential.
type Session struct {
	Token     string     `json:"token"`
	UserID    string     `json:"user_id"`
	Role      string     `json:"role,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Response renders the session without its token.
func (s Session) Response() dto.SessionResponse {
	return dto.SessionResponse{UserID: s.UserID, Role: s.Role, ExpiresAt: s.ExpiresAt}
}

// IsExpired reports whether a session expiring at expiresAt is expired at now.
// Sessions without an expiry never expire.
func IsExpired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && !now.Before(*expiresAt)
}

// SessionStore persists the session between restarts.
type SessionStore interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, session Session) error
	Delete(ctx context.Context) error
}

// RedisSessionStore keeps the session under a single Redis key.
type RedisSessionStore struct {
	client *redis.Client
	key    string
}

// NewRedisSessionStore constructs a Redis backed store.
func NewRedisSessionStore(client *redis.Client, key string) *RedisSessionStore {
	return &RedisSessionStore{client: client, key: key}
}

// Load returns the stored session or ErrNoSession.
func (s *RedisSessionStore) Load(ctx context.Context) (Session, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

// Save stores the session.
func (s *RedisSessionStore) Save(ctx context.Context, session Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, s.key, payload, 0).Err()
}

// Delete removes the stored session.
func (s *RedisSessionStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// MemorySessionStore keeps the session in process memory.
type MemorySessionStore struct {
	mu      sync.Mutex
	session *Session
}

// NewMemorySessionStore constructs an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

// Load returns the stored session or ErrNoSession.
func (s *MemorySessionStore) Load(context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Session{}, ErrNoSession
	}
	return *s.session, nil
}

// Save stores the session.
func (s *MemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &session
	return nil
}

// Delete removes the stored session.
func (s *MemorySessionStore) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

// SessionManager owns the current session and supplies its token to the
// classroom gateway.
type SessionManager struct {
	store  SessionStore
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	current *Session
}

// NewSessionManager constructs a manager. now defaults to time.Now.
func NewSessionManager(store SessionStore, now func() time.Time, logger zerolog.Logger) *SessionManager {
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		store:  store,
		now:    now,
		logger: logger.With().Str("component", "session_manager").Logger(),
	}
}

// Begin decodes the token's claims and stores the session. The signature is
// not verified here; the platform verifies it on every call.
func (m *SessionManager) Begin(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	session := Session{
		Token:  token,
		UserID: subjectFromClaims(claims),
		Role:   roleFromClaims(claims),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt := exp.Time.UTC()
		session.ExpiresAt = &expiresAt
	}
	if IsExpired(session.ExpiresAt, m.now()) {
		return Session{}, ErrSessionExpired
	}

	if err := m.store.Save(ctx, session); err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	m.current = &session
	m.mu.Unlock()

	m.logger.Info().Str("user_id", session.UserID).Msg("session started")
	return session, nil
}

// Current returns the active session, restoring it from the store if needed.
func (m *SessionManager) Current(ctx context.Context) (Session, error) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current == nil {
		restored, err := m.store.Load(ctx)
		if err != nil {
			return Session{}, err
		}
		m.mu.Lock()
		m.current = &restored
		m.mu.Unlock()
		current = &restored
	}

	if IsExpired(current.ExpiresAt, m.now()) {
		return Session{}, ErrSessionExpired
	}
	return *current, nil
}

// Token returns the bearer token for outgoing platform calls.
func (m *SessionManager) Token(ctx context.Context) (string, error) {
	session, err := m.Current(ctx)
	if err != nil {
		return "", err
	}
	return session.Token, nil
}

// End discards the session.
func (m *SessionManager) End(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	if err := m.store.Delete(ctx); err != nil {
		return err
	}
	m.logger.Info().Msg("session ended")
	return nil
}

func subjectFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"sub", "user_id", "id"} {
		switch value := claims[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		case float64:
			if value >= 0 && value == math.Trunc(value) {
				return strconv.FormatUint(uint64(value), 10)
			}
		case json.Number:
			return value.String()
		}
	}
	return ""
}

func roleFromClaims(claims jwt.MapClaims) string {
	if role, ok := claims["role"].(string); ok {
		return strings.ToLower(strings.TrimSpace(role))
	}
	return ""
}
