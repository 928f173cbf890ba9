package core

import (
	"context"

	"go.uber.org/zap"
)

// DefaultListSize is the page size of message listings without an explicit max
const DefaultListSize = 25

// ScoredMessage is the result of scoring one mailbox message
type ScoredMessage struct {
	ID      string   `json:"id"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// MailboxService exposes read-only mailbox operations of connected accounts
type MailboxService struct {
	connector MailboxConnector
	rules     *RuleStore
	labels    *LabelResolver
	logger    *zap.Logger
	policy    PolicySettings
}

// NewMailboxService creates a new mailbox service
func NewMailboxService(connector MailboxConnector, rules *RuleStore, labels *LabelResolver, logger *zap.Logger, policy PolicySettings) *MailboxService {
	return &MailboxService{
		connector: connector,
		rules:     rules,
		labels:    labels,
		logger:    logger,
		policy:    policy,
	}
}

// Profile returns the mailbox profile
func (s *MailboxService) Profile(ctx context.Context, account string) (*Profile, error) {
	provider, err := s.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	profile, err := provider.Profile(ctx)
	if err != nil {
		return nil, ProviderError("get profile", err)
	}
	return profile, nil
}

// Labels returns every label of the mailbox
func (s *MailboxService) Labels(ctx context.Context, account string) ([]Label, error) {
	provider, err := s.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	labels, err := provider.ListLabels(ctx)
	if err != nil {
		return nil, ProviderError("list labels", err)
	}
	return labels, nil
}

// ListMessages returns metadata of up to max messages carrying the label
func (s *MailboxService) ListMessages(ctx context.Context, account, label, query string, max int) ([]*Message, error) {
	max, err := s.pageSize(max)
	if err != nil {
		return nil, err
	}
	provider, err := s.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	return s.fetchPage(ctx, provider, label, query, max)
}

// GetMessage returns the metadata of one message
func (s *MailboxService) GetMessage(ctx context.Context, account, id string) (*Message, error) {
	if id == "" {
		return nil, ValidationError("message id is required")
	}
	provider, err := s.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	msg, err := provider.GetMessage(ctx, id)
	if err != nil {
		return nil, ProviderError("get message", err).WithDetail("message_id", id)
	}
	return msg, nil
}

// Score scores one message against the account's current rules without acting on it
func (s *MailboxService) Score(ctx context.Context, account, id string) (*ScoredMessage, error) {
	msg, err := s.GetMessage(ctx, account, id)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.Get(ctx, account)
	if err != nil {
		return nil, err
	}
	result := ScoreMessage(msg.Headers, msg.Snippet, rules)
	return &ScoredMessage{ID: id, Score: result.Score, Reasons: result.Reasons}, nil
}

// Digest summarises the messages held in a quarantine label. A label that does
// not exist yet yields an empty digest.
func (s *MailboxService) Digest(ctx context.Context, account, labelName string, limit int) ([]DigestItem, error) {
	if labelName == "" {
		labelName = s.policy.QuarantineLabel
	}
	limit, err := s.pageSize(limit)
	if err != nil {
		return nil, err
	}
	provider, err := s.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	labelID, found, err := s.labels.Find(ctx, provider, account, labelName)
	if err != nil {
		return nil, err
	}
	if !found {
		return []DigestItem{}, nil
	}

	msgs, err := s.fetchPage(ctx, provider, labelID, "", limit)
	if err != nil {
		return nil, err
	}
	items := make([]DigestItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, DigestItem{
			ID:      m.ID,
			From:    headerValue(m.Headers, "From"),
			Subject: headerValue(m.Headers, "Subject"),
			Snippet: m.Snippet,
			Date:    headerValue(m.Headers, "Date"),
		})
	}
	return items, nil
}

func (s *MailboxService) fetchPage(ctx context.Context, provider MailboxProvider, label, query string, max int) ([]*Message, error) {
	ids, err := provider.ListMessages(ctx, label, query, max)
	if err != nil {
		return nil, ProviderError("list messages", err)
	}
	msgs := make([]*Message, 0, len(ids))
	for _, id := range ids {
		msg, err := provider.GetMessage(ctx, id)
		if err != nil {
			return nil, ProviderError("get message", err).WithDetail("message_id", id)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (s *MailboxService) pageSize(max int) (int, error) {
	if max < 0 {
		return 0, ValidationError("max must not be negative").WithDetail("max", max)
	}
	if max == 0 {
		max = DefaultListSize
	}
	if s.policy.MaxBatchSize > 0 && max > s.policy.MaxBatchSize {
		max = s.policy.MaxBatchSize
	}
	return max, nil
}

func (s *MailboxService) connect(ctx context.Context, account string) (MailboxProvider, error) {
	if account == "" {
		return nil, ValidationError("account is required")
	}
	provider, err := s.connector.Connect(ctx, account)
	if err != nil {
		s.logger.Debug("Mailbox connect failed", zap.String("account", account), zap.Error(err))
		return nil, err
	}
	return provider, nil
}
