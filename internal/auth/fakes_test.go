package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"pagepress/internal/models"
	"pagepress/internal/repositories"
)

type fakeSessions struct {
	mu       sync.Mutex
	byToken  map[string]*models.Session
	getErr   error
	deleted  []string
	lastUA   string
	sequence int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byToken: make(map[string]*models.Session)}
}

func (f *fakeSessions) Create(ctx context.Context, user *models.User, userAgent string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequence++
	f.lastUA = userAgent
	s := &models.Session{
		Token:     "tok-" + user.ID,
		UserID:    user.ID,
		UserEmail: user.Email,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	f.byToken[s.Token] = s
	return s, nil
}

func (f *fakeSessions) Get(ctx context.Context, token string) (*models.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byToken[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) Delete(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byToken, token)
	f.deleted = append(f.deleted, token)
	return nil
}

type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]*models.User
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byEmail: make(map[string]*models.User)}
	for _, u := range users {
		f.byEmail[u.Email] = u
	}
	return f
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpsertByEmail(ctx context.Context, email, name, image string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(email)
	u, ok := f.byEmail[email]
	if !ok {
		u = &models.User{ID: "usr-" + email, Email: email}
		f.byEmail[email] = u
	}
	u.Name, u.Image = name, image
	return u, nil
}

type fakeProvider struct {
	identity  *Identity
	err       error
	gotCode   string
	lastState string
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	p.lastState = state
	return "https://accounts.example.test/o/oauth2/auth?state=" + state
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	p.gotCode = code
	if p.err != nil {
		return nil, p.err
	}
	return p.identity, nil
}
