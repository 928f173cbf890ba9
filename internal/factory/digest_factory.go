package factory

import (
	"github.com/mikey/sift-mail/internal/adapters/digest"
	"github.com/mikey/sift-mail/internal/config"
	"github.com/mikey/sift-mail/internal/ports"
	"go.uber.org/zap"
)

// DigestFactory creates the digest sender
type DigestFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewDigestFactory creates a new digest factory
func NewDigestFactory(cfg *config.Config, logger *zap.Logger) *DigestFactory {
	return &DigestFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateDigestSender returns nil when no SMTP relay is configured
func (f *DigestFactory) CreateDigestSender() ports.DigestSender {
	dc := f.cfg.GetDigest()
	if dc.SMTPAddress == "" {
		f.logger.Info("Digest delivery disabled, no SMTP relay configured")
		return nil
	}
	return digest.NewSMTPSender(dc.SMTPAddress, dc.HELO, dc.Username, dc.Password, dc.From, dc.Subject, f.logger.Named("digest"))
}
