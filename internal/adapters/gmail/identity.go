package gmail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mikey/sift-mail/internal/core"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	oauth2v2 "google.golang.org/api/oauth2/v2"
)

// DefaultRevokeURL is Google's token revocation endpoint
const DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// DefaultHTTPTimeout bounds every Google API call when no timeout is configured
const DefaultHTTPTimeout = 20 * time.Second

// Identity implements core.IdentityProvider for Google accounts
type Identity struct {
	config      *oauth2.Config
	httpTimeout time.Duration
	revokeURL   string
	logger      *zap.Logger
	opts        []option.ClientOption
}

// NewIdentity creates a new Google identity provider
func NewIdentity(config *oauth2.Config, httpTimeout time.Duration, revokeURL string, logger *zap.Logger, opts ...option.ClientOption) *Identity {
	if revokeURL == "" {
		revokeURL = DefaultRevokeURL
	}
	if httpTimeout <= 0 {
		httpTimeout = DefaultHTTPTimeout
	}
	return &Identity{
		config:      config,
		httpTimeout: httpTimeout,
		revokeURL:   revokeURL,
		logger:      logger,
		opts:        opts,
	}
}

// AuthCodeURL returns the consent URL. Offline access with a forced consent
// prompt makes Google issue a refresh token on every connect.
func (i *Identity) AuthCodeURL(state string) string {
	return i.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"))
}

// Exchange trades an authorization code for a credential
func (i *Identity) Exchange(ctx context.Context, code string) (*core.TokenRecord, error) {
	tok, err := i.config.Exchange(i.httpContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return fromOAuthToken(tok), nil
}

// LookupEmail asks the userinfo endpoint for the address and falls back to
// the Gmail profile when userinfo has none. Each lookup is bounded by the
// identity timeout.
func (i *Identity) LookupEmail(ctx context.Context, token *core.TokenRecord) (string, error) {
	ts := i.config.TokenSource(i.httpContext(ctx), toOAuthToken(token))
	opts := append([]option.ClientOption{
		option.WithHTTPClient(boundedClient(i.httpContext(ctx), ts, i.httpTimeout)),
	}, i.opts...)

	email, err := i.userinfoEmail(ctx, opts)
	if err == nil {
		return email, nil
	}
	i.logger.Debug("Userinfo lookup failed, trying Gmail profile", zap.Error(err))

	email, profileErr := i.profileEmail(ctx, opts)
	if profileErr != nil {
		return "", errors.Join(err, profileErr)
	}
	return email, nil
}

func (i *Identity) userinfoEmail(ctx context.Context, opts []option.ClientOption) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, i.httpTimeout)
	defer cancel()

	svc, err := oauth2v2.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("userinfo: %w", err)
	}
	if info.Email == "" {
		return "", errors.New("userinfo: no email returned")
	}
	return strings.ToLower(info.Email), nil
}

func (i *Identity) profileEmail(ctx context.Context, opts []option.ClientOption) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, i.httpTimeout)
	defer cancel()

	svc, err := gmailv1.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("gmail client: %w", err)
	}
	profile, err := svc.Users.GetProfile(me).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gmail profile: %w", err)
	}
	if profile.EmailAddress == "" {
		return "", errors.New("gmail profile: no email returned")
	}
	return strings.ToLower(profile.EmailAddress), nil
}

// Revoke invalidates the credential at Google. The refresh token is
// preferred since revoking it also invalidates derived access tokens.
func (i *Identity) Revoke(ctx context.Context, token *core.TokenRecord) error {
	value := token.RefreshToken
	if value == "" {
		value = token.AccessToken
	}
	if value == "" {
		return errors.New("no token to revoke")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.revokeURL,
		strings.NewReader(url.Values{"token": {value}}.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := &http.Client{Timeout: i.httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("revoke returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (i *Identity) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: i.httpTimeout})
}

// boundedClient returns an authorized HTTP client whose requests, token
// refreshes included, give up after timeout
func boundedClient(ctx context.Context, src oauth2.TokenSource, timeout time.Duration) *http.Client {
	client := oauth2.NewClient(ctx, src)
	client.Timeout = timeout
	return client
}
