// Package github links GitHub accounts to registered users. It runs the
// OAuth authorization-code flow against GitHub and, once GitHub vouches for
// a login name, hands that name to the authenticator for an external login.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauth2github "golang.org/x/oauth2/github"

	"github.com/keyxmakerx/sentinel/internal/config"
)

const userAPIURL = "https://api.github.com/user"

// Provider is the OAuth identity provider as seen by the handler.
type Provider interface {
	// AuthCodeURL returns the authorize URL the browser is sent to.
	AuthCodeURL(state, verifier string) string

	// Username exchanges an authorization code and returns the verified
	// GitHub login name.
	Username(ctx context.Context, code, verifier string) (string, error)
}

var _ Provider = (*OAuthProvider)(nil)

// OAuthProvider talks to GitHub through golang.org/x/oauth2.
type OAuthProvider struct {
	oauth   *oauth2.Config
	userURL string
	timeout time.Duration
}

// NewProvider creates a provider for the configured GitHub OAuth app.
func NewProvider(cfg config.GitHubConfig) *OAuthProvider {
	return newProvider(cfg, oauth2github.Endpoint, userAPIURL)
}

func newProvider(cfg config.GitHubConfig, endpoint oauth2.Endpoint, userURL string) *OAuthProvider {
	return &OAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     endpoint,
			Scopes:       []string{"user:email"},
		},
		userURL: userURL,
		timeout: 10 * time.Second,
	}
}

// AuthCodeURL implements Provider. The verifier is sent as a PKCE S256
// challenge.
func (p *OAuthProvider) AuthCodeURL(state, verifier string) string {
	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Username implements Provider.
func (p *OAuthProvider) Username(ctx context.Context, code, verifier string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", fmt.Errorf("exchanging code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return "", fmt.Errorf("building profile request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching profile: unexpected status %d", resp.StatusCode)
	}

	var profile struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("decoding profile: %w", err)
	}
	if profile.Login == "" {
		return "", fmt.Errorf("profile has no login")
	}
	return profile.Login, nil
}
