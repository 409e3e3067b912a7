package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"pagepress/internal/config"
)

// Identity is what the identity provider vouches for after sign-in.
type Identity struct {
	Email    string
	Name     string
	Picture  string
	Verified bool
}

// IdentityProvider runs the authorization-code flow.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// GoogleProvider signs users in with Google and reads their userinfo.
type GoogleProvider struct {
	conf    *oauth2.Config
	apiOpts []option.ClientOption
}

func NewGoogleProvider(cfg config.AuthConfig, opts ...option.ClientOption) *GoogleProvider {
	return &GoogleProvider{
		conf: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{googleoauth2.OpenIDScope, googleoauth2.UserinfoEmailScope, googleoauth2.UserinfoProfileScope},
		},
		apiOpts: opts,
	}
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	opts := append([]option.ClientOption{option.WithTokenSource(p.conf.TokenSource(ctx, tok))}, p.apiOpts...)
	svc, err := googleoauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create userinfo client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}

	id := &Identity{Email: info.Email, Name: info.Name, Picture: info.Picture}
	if info.VerifiedEmail != nil {
		id.Verified = *info.VerifiedEmail
	}
	return id, nil
}
