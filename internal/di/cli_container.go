package di

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/sift-mail/internal/adapters/rfc822"
	"github.com/mikey/sift-mail/internal/config"
	"github.com/mikey/sift-mail/internal/core"
	"github.com/mikey/sift-mail/internal/factory"
	"github.com/mikey/sift-mail/internal/logging"
	"github.com/mikey/sift-mail/internal/senderlist"
	"github.com/mikey/sift-mail/internal/utils"
)

// CLIFlags contains all command line flags for the scoring CLI
type CLIFlags struct {
	// Rule flags
	Allow   string
	Block   string
	Account string

	// Decision flags
	Threshold float64

	// Input and output flags
	InputFile  string
	JSONOutput bool
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// Threshold is the decision threshold used by the CLI
type Threshold float64

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags, _ := ParseFlagSet(flag.CommandLine, os.Args[1:])
	return flags
}

// ParseFlagSet registers the CLI flags on fs and parses args
func ParseFlagSet(fs *flag.FlagSet, args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}

	// Rule flags
	fs.StringVar(&flags.Allow, "allow", "", "Comma-separated allowlist entries (address or @domain)")
	fs.StringVar(&flags.Block, "block", "", "Comma-separated blocklist entries (address, @domain or domain)")
	fs.StringVar(&flags.Account, "account", "", "Also apply the stored rules of this account")

	// Decision flags
	fs.Float64Var(&flags.Threshold, "threshold", -1, "Quarantine threshold (default: policy.threshold from config)")

	// Input and output flags
	fs.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	fs.BoolVar(&flags.JSONOutput, "json", false, "Print the result as JSON")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file (default: search the standard locations)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.NewFromFile(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}
		return config.New()
	}); err != nil {
		return nil, err
	}

	// Register text processing and parsing
	if err := container.Provide(factory.NewTextFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.TextFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.TextFactory) *rfc822.Parser {
		return f.CreateParser()
	}); err != nil {
		return nil, err
	}

	// The store is only opened when an account's rules are requested
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}

	// Register rules
	if err := container.Provide(func(flags *CLIFlags, f *factory.StoreFactory, logger *zap.Logger) (core.RuleSet, error) {
		return loadRules(flags, f, logger)
	}); err != nil {
		return nil, err
	}

	// Register threshold
	if err := container.Provide(func(flags *CLIFlags, cfg *config.Config) (Threshold, error) {
		if flags.Threshold >= 0 {
			if flags.Threshold > 1 {
				return 0, fmt.Errorf("threshold %v outside [0,1]", flags.Threshold)
			}
			return Threshold(flags.Threshold), nil
		}
		p, err := cfg.GetPolicy()
		if err != nil {
			return 0, err
		}
		return Threshold(p.Threshold), nil
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// loadRules merges the flag lists with the stored rules of the requested account
func loadRules(flags *CLIFlags, f *factory.StoreFactory, logger *zap.Logger) (core.RuleSet, error) {
	rules := core.RuleSet{
		Allow: senderlist.Normalize(splitList(flags.Allow)),
		Block: senderlist.Normalize(splitList(flags.Block)),
	}
	if flags.Account == "" {
		return rules, nil
	}

	kv, err := f.CreateStore()
	if err != nil {
		return core.RuleSet{}, err
	}
	if stopper, ok := kv.(interface{ Stop() }); ok {
		defer stopper.Stop()
	}

	stored, err := core.NewRuleStore(kv, core.NewAuditLog(kv, logger)).Get(context.Background(), flags.Account)
	if err != nil {
		return core.RuleSet{}, err
	}
	logger.Info("Loaded account rules",
		zap.String("account", flags.Account),
		zap.Int("allow", len(stored.Allow)),
		zap.Int("block", len(stored.Block)))

	rules.Allow = senderlist.Merge(rules.Allow, stored.Allow)
	rules.Block = senderlist.Merge(rules.Block, stored.Block)
	return rules, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
