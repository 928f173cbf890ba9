package core

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// RevokeResult reports the outcome of the best-effort token revocation
type RevokeResult struct {
	OK        bool   `json:"ok"`
	Attempted bool   `json:"revoke_attempted"`
	Revoked   bool   `json:"revoked"`
	Error     string `json:"revoke_error,omitempty"`
}

// AccountService manages the lifecycle of connected accounts
type AccountService struct {
	identity IdentityProvider
	tokens   *TokenStore
	modes    *ModeStore
	rules    *RuleStore
	audit    *AuditLog
	labels   *LabelResolver
	locks    *AccountLocks
	logger   *zap.Logger
	now      func() int64
}

// NewAccountService creates a new account service
func NewAccountService(
	identity IdentityProvider,
	tokens *TokenStore,
	modes *ModeStore,
	rules *RuleStore,
	audit *AuditLog,
	labels *LabelResolver,
	locks *AccountLocks,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		identity: identity,
		tokens:   tokens,
		modes:    modes,
		rules:    rules,
		audit:    audit,
		labels:   labels,
		locks:    locks,
		logger:   logger,
		now:      unixNow,
	}
}

// AuthCodeURL returns the consent URL for a verified state value
func (s *AccountService) AuthCodeURL(state string) string {
	return s.identity.AuthCodeURL(state)
}

// Connect completes the authorization-code flow and initialises the account.
// A newly connected account always starts in shadow mode.
func (s *AccountService) Connect(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", ValidationError("authorization code is required")
	}
	token, err := s.identity.Exchange(ctx, code)
	if err != nil {
		return "", ProviderError("token exchange", err)
	}
	account, err := s.identity.LookupEmail(ctx, token)
	if err != nil {
		return "", ProviderError("email lookup", err)
	}
	if account == "" {
		return "", ProviderError("email lookup", errors.New("identity provider returned no address"))
	}

	unlock := s.locks.Lock(account)
	defer unlock()

	if err := s.tokens.Save(ctx, account, token); err != nil {
		return "", err
	}
	if _, err := s.modes.EnsureDefault(ctx, account); err != nil {
		return "", err
	}
	s.labels.ForgetAccount(account)
	s.audit.Append(ctx, account, AuditEntry{
		Timestamp: s.now(),
		Event:     EventOAuthConnected,
		Account:   account,
	})

	s.logger.Info("Account connected", zap.String("account", account))
	return account, nil
}

// Revoke invalidates the account's credential at the provider and forgets it locally.
// The provider call is best-effort; its outcome is reported in the result.
func (s *AccountService) Revoke(ctx context.Context, account string) (*RevokeResult, error) {
	if account == "" {
		return nil, ValidationError("account is required")
	}

	unlock := s.locks.Lock(account)
	defer unlock()

	result := &RevokeResult{OK: true}
	token, err := s.tokens.Load(ctx, account)
	switch {
	case err == nil:
		result.Attempted = true
		if err := s.identity.Revoke(ctx, token); err != nil {
			result.Error = err.Error()
			s.logger.Warn("Token revocation failed", zap.String("account", account), zap.Error(err))
		} else {
			result.Revoked = true
		}
	case IsNotConnected(err):
		s.logger.Debug("No stored token to revoke", zap.String("account", account))
	default:
		return nil, err
	}

	if err := s.tokens.Delete(ctx, account); err != nil {
		return nil, err
	}
	s.labels.ForgetAccount(account)
	s.audit.Append(ctx, account, AuditEntry{
		Timestamp: s.now(),
		Event:     EventAccountRevoked,
	})

	s.logger.Info("Account revoked",
		zap.String("account", account),
		zap.Bool("revoked", result.Revoked))
	return result, nil
}

// Delete erases every record of the account: token, settings, rules and audit log
func (s *AccountService) Delete(ctx context.Context, account string) error {
	if account == "" {
		return ValidationError("account is required")
	}

	unlock := s.locks.Lock(account)
	defer unlock()

	err := errors.Join(
		s.tokens.Delete(ctx, account),
		s.modes.Delete(ctx, account),
		s.rules.Delete(ctx, account),
		s.audit.Delete(ctx, account),
	)
	s.labels.ForgetAccount(account)
	if err != nil {
		s.logger.Error("Account deletion incomplete", zap.String("account", account), zap.Error(err))
		return StorageError("delete account", err)
	}

	s.logger.Info("Account deleted", zap.String("account", account))
	return nil
}

// SetMode changes the account's enforcement mode
func (s *AccountService) SetMode(ctx context.Context, account string, shadow bool) (ModeSetting, error) {
	if account == "" {
		return ModeSetting{}, ValidationError("account is required")
	}
	unlock := s.locks.Lock(account)
	defer unlock()
	return s.modes.Set(ctx, account, shadow)
}

// Mode returns the account's enforcement mode
func (s *AccountService) Mode(ctx context.Context, account string) (ModeSetting, error) {
	if account == "" {
		return ModeSetting{}, ValidationError("account is required")
	}
	return s.modes.Get(ctx, account)
}

// Rules returns the account's allow and block lists
func (s *AccountService) Rules(ctx context.Context, account string) (RuleSet, error) {
	if account == "" {
		return RuleSet{}, ValidationError("account is required")
	}
	return s.rules.Get(ctx, account)
}

// AddAllow unions entries into the account's allow list
func (s *AccountService) AddAllow(ctx context.Context, account string, entries []string) (RuleSet, error) {
	if err := validateRuleInput(account, entries); err != nil {
		return RuleSet{}, err
	}
	unlock := s.locks.Lock(account)
	defer unlock()
	return s.rules.AddAllow(ctx, account, entries)
}

// AddBlock unions entries into the account's block list
func (s *AccountService) AddBlock(ctx context.Context, account string, entries []string) (RuleSet, error) {
	if err := validateRuleInput(account, entries); err != nil {
		return RuleSet{}, err
	}
	unlock := s.locks.Lock(account)
	defer unlock()
	return s.rules.AddBlock(ctx, account, entries)
}

// Audit returns the most recent audit entries of the account
func (s *AccountService) Audit(ctx context.Context, account string, limit int) ([]AuditEntry, error) {
	if account == "" {
		return nil, ValidationError("account is required")
	}
	if limit < 0 {
		return nil, ValidationError("limit must not be negative")
	}
	return s.audit.List(ctx, account, limit)
}

func validateRuleInput(account string, entries []string) error {
	if account == "" {
		return ValidationError("account is required")
	}
	if entries == nil {
		return ValidationError("entries are required")
	}
	return nil
}
