package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/sift-mail/internal/config"
	"github.com/mikey/sift-mail/internal/core"
	"github.com/mikey/sift-mail/internal/factory"
	"github.com/mikey/sift-mail/internal/logging"
	"github.com/mikey/sift-mail/internal/ports"
	"github.com/mikey/sift-mail/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTextFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewGoogleFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewDigestFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewServerFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register key-value store
	if err := container.Provide(func(f *factory.StoreFactory) (core.KeyValueStore, error) {
		return f.CreateStore()
	}); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}

	// Register provider adapters
	if err := container.Provide(func(f *factory.GoogleFactory) (core.MailboxConnector, error) {
		return f.CreateConnector()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.GoogleFactory) (core.IdentityProvider, error) {
		return f.CreateIdentityProvider()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.DigestFactory) ports.DigestSender {
		return f.CreateDigestSender()
	}); err != nil {
		return nil, err
	}

	// Register policy
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (core.PolicySettings, error) {
		p, err := cfg.GetPolicy()
		if err != nil {
			return core.PolicySettings{}, err
		}
		logger.Info("Loaded quarantine policy",
			zap.Float64("threshold", p.Threshold),
			zap.String("label", p.QuarantineLabel),
			zap.Int("max_batch_size", p.MaxBatchSize))
		return core.PolicySettings{
			Threshold:        p.Threshold,
			QuarantineLabel:  p.QuarantineLabel,
			DefaultBatchSize: p.DefaultBatchSize,
			MaxBatchSize:     p.MaxBatchSize,
		}, nil
	}); err != nil {
		return nil, err
	}

	// Register services
	if err := container.Provide(core.NewAccountService); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewQuarantineService); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewMailboxService); err != nil {
		return nil, err
	}

	// Register HTTP frontend
	if err := container.Provide(func(f *factory.ServerFactory) (ports.Frontend, error) {
		return f.CreateFrontend()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideEngine registers the stores and shared state the services are built from
func provideEngine(container *dig.Container) error {
	if err := container.Provide(core.NewAuditLog); err != nil {
		return err
	}
	if err := container.Provide(core.NewModeStore); err != nil {
		return err
	}
	if err := container.Provide(core.NewRuleStore); err != nil {
		return err
	}
	if err := container.Provide(core.NewTokenStore); err != nil {
		return err
	}
	if err := container.Provide(core.NewLabelResolver); err != nil {
		return err
	}
	return container.Provide(core.NewAccountLocks)
}
