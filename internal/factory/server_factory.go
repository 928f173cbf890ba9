package factory

import (
	"github.com/mikey/sift-mail/internal/adapters/httpapi"
	"github.com/mikey/sift-mail/internal/config"
	"github.com/mikey/sift-mail/internal/core"
	"github.com/mikey/sift-mail/internal/oauthstate"
	"github.com/mikey/sift-mail/internal/ports"
	"go.uber.org/zap"
)

// ServerFactory creates the HTTP frontend
type ServerFactory struct {
	cfg        *config.Config
	logger     *zap.Logger
	accounts   *core.AccountService
	quarantine *core.QuarantineService
	mailbox    *core.MailboxService
	digest     ports.DigestSender
}

// NewServerFactory creates a new server factory
func NewServerFactory(
	cfg *config.Config,
	logger *zap.Logger,
	accounts *core.AccountService,
	quarantine *core.QuarantineService,
	mailbox *core.MailboxService,
	digest ports.DigestSender,
) *ServerFactory {
	return &ServerFactory{
		cfg:        cfg,
		logger:     logger,
		accounts:   accounts,
		quarantine: quarantine,
		mailbox:    mailbox,
		digest:     digest,
	}
}

// CreateFrontend creates the HTTP API server
func (f *ServerFactory) CreateFrontend() (ports.Frontend, error) {
	sc, err := f.cfg.GetServer()
	if err != nil {
		return nil, err
	}
	oc, err := f.cfg.GetOAuth()
	if err != nil {
		return nil, err
	}
	if oc.StateSecret == "" {
		f.logger.Warn("No oauth.state_secret configured, pending sign-ins will not survive a restart")
	}
	signer, err := oauthstate.NewSigner(oc.StateSecret, oc.StateTTL)
	if err != nil {
		return nil, err
	}

	return httpapi.NewServer(
		f.accounts,
		f.quarantine,
		f.mailbox,
		signer,
		f.digest,
		httpapi.Options{
			ListenAddress:   sc.ListenAddress,
			APIKey:          sc.APIKey,
			CORSOrigins:     sc.CORSOrigins,
			ReadTimeout:     sc.ReadTimeout,
			WriteTimeout:    sc.WriteTimeout,
			ShutdownTimeout: sc.ShutdownTimeout,
			CookieSecure:    oc.CookieSecure,
			DigestLimit:     f.cfg.GetDigest().Limit,
		},
		f.logger.Named("http"),
	), nil
}
