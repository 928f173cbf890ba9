package gmail

import (
	"context"
	"net/http"
	"time"

	"github.com/mikey/sift-mail/internal/core"
	"github.com/mikey/sift-mail/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Connector opens Gmail clients from stored account credentials
type Connector struct {
	config      *oauth2.Config
	tokens      *core.TokenStore
	text        *utils.TextProcessor
	logger      *zap.Logger
	httpTimeout time.Duration
	opts        []option.ClientOption
}

// NewConnector creates a new connector. opts are appended to every Gmail
// service, e.g. a custom endpoint.
func NewConnector(config *oauth2.Config, tokens *core.TokenStore, text *utils.TextProcessor, logger *zap.Logger, httpTimeout time.Duration, opts ...option.ClientOption) *Connector {
	if httpTimeout <= 0 {
		httpTimeout = DefaultHTTPTimeout
	}
	return &Connector{
		config:      config,
		tokens:      tokens,
		text:        text,
		logger:      logger,
		httpTimeout: httpTimeout,
		opts:        opts,
	}
}

// Connect returns core.ErrNotConnected when the account has no credential
func (c *Connector) Connect(ctx context.Context, account string) (core.MailboxProvider, error) {
	record, err := c.tokens.Load(ctx, account)
	if err != nil {
		return nil, err
	}

	// The refresh client outlives the request context.
	refreshCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: c.httpTimeout})
	src := &persistingTokenSource{
		base:    c.config.TokenSource(refreshCtx, toOAuthToken(record)),
		account: account,
		tokens:  c.tokens,
		logger:  c.logger,
		last:    record.AccessToken,
	}

	opts := append([]option.ClientOption{
		option.WithHTTPClient(boundedClient(refreshCtx, src, c.httpTimeout)),
	}, c.opts...)
	svc, err := gmailv1.NewService(ctx, opts...)
	if err != nil {
		return nil, core.ProviderError("create gmail client", err)
	}
	return NewClient(svc, c.text, c.logger.With(zap.String("account", account))), nil
}
