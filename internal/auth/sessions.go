package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mssola/useragent"
	"github.com/redis/go-redis/v9"

	"pagepress/internal/models"
)

const sessionKeyPrefix = "pagepress:session:"

var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps sessions in Redis under an opaque token with a TTL.
type SessionStore struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

func NewSessionStore(rdb redis.Cmdable, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: ttl, now: time.Now}
}

// Create opens a session for user. The user agent is parsed once and
// stored alongside it.
func (s *SessionStore) Create(ctx context.Context, user *models.User, userAgent string) (*models.Session, error) {
	token, err := randomToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	now := s.now().UTC()
	sess := &models.Session{
		Token:     token,
		UserID:    user.ID,
		UserEmail: user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		UserAgent: userAgent,
	}
	if userAgent != "" {
		ua := useragent.New(userAgent)
		sess.Browser, _ = ua.Browser()
		sess.OS = ua.OS()
		sess.Mobile = ua.Mobile()
	}

	b, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKeyPrefix+token, b, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// Get returns the live session for token or ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	b, err := s.rdb.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if !sess.ExpiresAt.After(s.now()) {
		return nil, ErrSessionNotFound
	}
	sess.Token = token
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.rdb.Del(ctx, sessionKeyPrefix+token).Err()
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
