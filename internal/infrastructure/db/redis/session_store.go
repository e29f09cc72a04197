package redis

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/classroomhub/classroom/internal/core/domain"
	"github.com/classroomhub/classroom/internal/core/ports"
)

const (
	nonceSize      = 24
	defaultSessTTL = 30 * 24 * time.Hour
	keyInfo        = "classroom session store v1"
)

// ErrSealedValueCorrupt is returned when a stored value cannot be opened with
// the configured key.
var ErrSealedValueCorrupt = errors.New("sealed session value corrupt or key mismatch")

// SessionStore keeps the provider session in Redis under a single key.
// Values are sealed with NaCl secretbox.
// Key format: session:<storage_key>
type SessionStore struct {
	client *redis.Client
	key    string
	secret [32]byte
	ttl    time.Duration
}

var _ ports.SessionStore = (*SessionStore)(nil)

// NewSessionStore derives the sealing key from passphrase. ttl <= 0 uses 30 days.
func NewSessionStore(client *redis.Client, storageKey, passphrase string, ttl time.Duration) (*SessionStore, error) {
	if passphrase == "" {
		return nil, errors.New("session store: empty key")
	}
	if ttl <= 0 {
		ttl = defaultSessTTL
	}
	s := &SessionStore{client: client, key: "session:" + storageKey, ttl: ttl}
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(passphrase), []byte(storageKey), []byte(keyInfo)), s.secret[:]); err != nil {
		return nil, fmt.Errorf("session store: derive key: %w", err)
	}
	return s, nil
}

type storedSession struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Identity     domain.Identity `json:"identity"`
}

// Load returns nil, nil when no session is stored.
func (s *SessionStore) Load(ctx context.Context) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session load: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return nil, ErrSealedValueCorrupt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.secret)
	if !ok {
		return nil, ErrSealedValueCorrupt
	}

	var st storedSession
	if err := json.Unmarshal(plain, &st); err != nil {
		return nil, fmt.Errorf("session load: %w", err)
	}
	return &domain.Session{
		AccessToken:  st.AccessToken,
		RefreshToken: st.RefreshToken,
		ExpiresAt:    st.ExpiresAt,
		Identity:     st.Identity,
	}, nil
}

// Save seals and stores sess, replacing any previous value.
func (s *SessionStore) Save(ctx context.Context, sess *domain.Session) error {
	plain, err := json.Marshal(storedSession{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
		Identity:     sess.Identity,
	})
	if err != nil {
		return fmt.Errorf("session save: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("session save: nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &s.secret)

	if err := s.client.Set(ctx, s.key, sealed, s.ttl).Err(); err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	return nil
}

// Clear removes the stored session.
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
