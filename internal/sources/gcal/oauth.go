package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// OAuthConfig holds the Google OAuth client settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OAuthClient refreshes user tokens and builds calendar services.
type OAuthClient struct {
	config *oauth2.Config
}

// NewOAuthClient creates a read-only calendar OAuth client.
func NewOAuthClient(cfg OAuthConfig) *OAuthClient {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{calendar.CalendarReadonlyScope}
	}
	return &OAuthClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
	}
}

// AuthURL returns the consent URL for linking a calendar.
func (c *OAuthClient) AuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return c.config.Exchange(ctx, code)
}

// Service builds a calendar service for token. A nil client uses the token as-is without refresh.
func (c *OAuthClient) Service(ctx context.Context, token *oauth2.Token, opts ...option.ClientOption) (*calendar.Service, error) {
	var src oauth2.TokenSource = oauth2.StaticTokenSource(token)
	if c != nil && c.config.ClientID != "" {
		src = c.config.TokenSource(ctx, token)
	}
	all := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, src))}, opts...)
	return calendar.NewService(ctx, all...)
}

// ParseToken accepts either a bare access token or a JSON-encoded oauth2 token.
func ParseToken(raw string) (*oauth2.Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty token")
	}
	if !strings.HasPrefix(raw, "{") {
		return &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}, nil
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("token has neither access nor refresh token")
	}
	return &tok, nil
}
