package factory

import (
	"fmt"

	"github.com/mikey/sift-mail/internal/adapters/gmail"
	"github.com/mikey/sift-mail/internal/config"
	"github.com/mikey/sift-mail/internal/core"
	"github.com/mikey/sift-mail/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleFactory creates the Gmail mailbox connector and the Google identity provider
type GoogleFactory struct {
	cfg    *config.Config
	logger *zap.Logger
	text   *utils.TextProcessor
	tokens *core.TokenStore
}

// NewGoogleFactory creates a new Google factory
func NewGoogleFactory(cfg *config.Config, logger *zap.Logger, text *utils.TextProcessor, tokens *core.TokenStore) *GoogleFactory {
	return &GoogleFactory{
		cfg:    cfg,
		logger: logger,
		text:   text,
		tokens: tokens,
	}
}

// OAuthConfig builds the OAuth client configuration
func (f *GoogleFactory) OAuthConfig() (*oauth2.Config, error) {
	oc, err := f.cfg.GetOAuth()
	if err != nil {
		return nil, err
	}
	if oc.ClientID == "" || oc.ClientSecret == "" {
		return nil, fmt.Errorf("oauth.client_id and oauth.client_secret are required")
	}
	if oc.RedirectURL == "" {
		return nil, fmt.Errorf("oauth.redirect_url is required")
	}
	return &oauth2.Config{
		ClientID:     oc.ClientID,
		ClientSecret: oc.ClientSecret,
		RedirectURL:  oc.RedirectURL,
		Scopes:       oc.Scopes,
		Endpoint:     google.Endpoint,
	}, nil
}

// CreateConnector creates the Gmail mailbox connector
func (f *GoogleFactory) CreateConnector() (core.MailboxConnector, error) {
	oauthCfg, err := f.OAuthConfig()
	if err != nil {
		return nil, err
	}
	oc, err := f.cfg.GetOAuth()
	if err != nil {
		return nil, err
	}
	return gmail.NewConnector(oauthCfg, f.tokens, f.text, f.logger.Named("gmail"), oc.HTTPTimeout), nil
}

// CreateIdentityProvider creates the Google identity provider
func (f *GoogleFactory) CreateIdentityProvider() (core.IdentityProvider, error) {
	oauthCfg, err := f.OAuthConfig()
	if err != nil {
		return nil, err
	}
	oc, err := f.cfg.GetOAuth()
	if err != nil {
		return nil, err
	}
	return gmail.NewIdentity(oauthCfg, oc.HTTPTimeout, gmail.DefaultRevokeURL, f.logger.Named("identity")), nil
}
