package core

import (
	"context"
	"fmt"

	"github.com/mikey/sift-mail/internal/metrics"
	"go.uber.org/zap"
)

// PolicySettings holds the engine-wide decision parameters
type PolicySettings struct {
	Threshold        float64
	QuarantineLabel  string
	DefaultBatchSize int
	MaxBatchSize     int
}

// QuarantineService decides and executes quarantine actions for an account's messages
type QuarantineService struct {
	connector MailboxConnector
	rules     *RuleStore
	modes     *ModeStore
	audit     *AuditLog
	labels    *LabelResolver
	locks     *AccountLocks
	logger    *zap.Logger
	policy    PolicySettings
	now       func() int64
}

// NewQuarantineService creates a new quarantine service
func NewQuarantineService(
	connector MailboxConnector,
	rules *RuleStore,
	modes *ModeStore,
	audit *AuditLog,
	labels *LabelResolver,
	locks *AccountLocks,
	logger *zap.Logger,
	policy PolicySettings,
) *QuarantineService {
	return &QuarantineService{
		connector: connector,
		rules:     rules,
		modes:     modes,
		audit:     audit,
		labels:    labels,
		locks:     locks,
		logger:    logger,
		policy:    policy,
		now:       unixNow,
	}
}

// Policy returns the configured decision parameters
func (s *QuarantineService) Policy() PolicySettings {
	return s.policy
}

// decide maps a score and the effective mode to an action
func decide(score, threshold float64, shadow bool) Action {
	if !MeetsThreshold(score, threshold) {
		return ActionNone
	}
	if shadow {
		return ActionWouldQuarantine
	}
	return ActionQuarantine
}

// Quarantine re-scores a message and, depending on the account mode, moves it
// from the inbox into the quarantine label
func (s *QuarantineService) Quarantine(ctx context.Context, account, messageID, labelName string) (*Decision, error) {
	if account == "" || messageID == "" {
		return nil, ValidationError("account and message id are required")
	}
	if labelName == "" {
		labelName = s.policy.QuarantineLabel
	}

	unlock := s.locks.Lock(account)
	defer unlock()

	provider, err := s.connector.Connect(ctx, account)
	if err != nil {
		return nil, s.fail("quarantine", err)
	}
	mode, err := s.modes.Get(ctx, account)
	if err != nil {
		return nil, s.fail("quarantine", err)
	}
	rules, err := s.rules.Get(ctx, account)
	if err != nil {
		return nil, s.fail("quarantine", err)
	}

	msg, err := provider.GetMessage(ctx, messageID)
	if err != nil {
		return nil, s.fail("quarantine", ProviderError("get message", err))
	}
	result := s.score(msg, rules)
	action := decide(result.Score, s.policy.Threshold, mode.Shadow)

	if action == ActionQuarantine {
		applied, _, err := s.moveToQuarantine(ctx, provider, account, msg, labelName, "")
		if err != nil {
			return nil, s.fail("quarantine", err)
		}
		if !applied {
			s.logger.Info("Message already quarantined",
				zap.String("account", account),
				zap.String("message_id", messageID),
				zap.String("label", labelName))
			metrics.Decisions.WithLabelValues("quarantine", "already_quarantined").Inc()
			return &Decision{OK: true, Action: action, Score: float64Ptr(result.Score), Reasons: result.Reasons}, nil
		}
	}

	if action.Actionable() {
		s.audit.Append(ctx, account, AuditEntry{
			Timestamp: s.now(),
			Event:     string(action),
			MessageID: messageID,
			Score:     float64Ptr(result.Score),
			Reasons:   result.Reasons,
		})
	}

	s.logger.Info("Quarantine decision",
		zap.String("account", account),
		zap.String("message_id", messageID),
		zap.Float64("score", result.Score),
		zap.Strings("reasons", result.Reasons),
		zap.Bool("shadow", mode.Shadow),
		zap.String("action", string(action)))
	metrics.Decisions.WithLabelValues("quarantine", string(action)).Inc()

	return &Decision{OK: true, Action: action, Score: float64Ptr(result.Score), Reasons: result.Reasons}, nil
}

// Undo moves a quarantined message back to the inbox. A missing quarantine
// label is tolerated: only the inbox label is added then.
func (s *QuarantineService) Undo(ctx context.Context, account, messageID, labelName string) (*Decision, error) {
	if account == "" || messageID == "" {
		return nil, ValidationError("account and message id are required")
	}
	if labelName == "" {
		labelName = s.policy.QuarantineLabel
	}

	unlock := s.locks.Lock(account)
	defer unlock()

	provider, err := s.connector.Connect(ctx, account)
	if err != nil {
		return nil, s.fail("undo", err)
	}
	mode, err := s.modes.Get(ctx, account)
	if err != nil {
		return nil, s.fail("undo", err)
	}

	action := ActionWouldRestore
	if !mode.Shadow {
		action = ActionRestore
		qid, found, err := s.labels.Find(ctx, provider, account, labelName)
		if err != nil {
			return nil, s.fail("undo", err)
		}
		var remove []string
		if found {
			remove = []string{qid}
		}
		if err := provider.ModifyLabels(ctx, messageID, []string{InboxLabel}, remove); err != nil {
			return nil, s.fail("undo", ProviderError("modify message", err))
		}
	}

	s.audit.Append(ctx, account, AuditEntry{
		Timestamp: s.now(),
		Event:     string(action),
		MessageID: messageID,
	})

	s.logger.Info("Undo decision",
		zap.String("account", account),
		zap.String("message_id", messageID),
		zap.Bool("shadow", mode.Shadow),
		zap.String("action", string(action)))
	metrics.Decisions.WithLabelValues("undo", string(action)).Inc()

	return &Decision{OK: true, Action: action}, nil
}

// moveToQuarantine ensures the label exists and moves the message out of the inbox.
// qid may carry an already resolved label ID. It reports false when the message
// was already quarantined and nothing had to change, and returns the label ID
// that was finally used. A rejected label ID is re-resolved and the move retried
// once, which recovers from a label deleted in the mailbox since it was cached.
func (s *QuarantineService) moveToQuarantine(ctx context.Context, provider MailboxProvider, account string, msg *Message, labelName, qid string) (bool, string, error) {
	if qid == "" {
		var err error
		qid, err = s.labels.Ensure(ctx, provider, account, labelName)
		if err != nil {
			return false, "", err
		}
	}
	if msg.HasLabel(qid) && !msg.HasLabel(InboxLabel) {
		return false, qid, nil
	}
	err := provider.ModifyLabels(ctx, msg.ID, []string{qid}, []string{InboxLabel})
	if err == nil {
		return true, qid, nil
	}

	s.labels.Forget(account, labelName)
	fresh, ensureErr := s.labels.Ensure(ctx, provider, account, labelName)
	if ensureErr != nil || fresh == qid {
		return false, "", ProviderError("modify message", err)
	}
	s.logger.Info("Quarantine label changed, retrying",
		zap.String("account", account),
		zap.String("label", labelName),
		zap.String("stale_id", qid),
		zap.String("label_id", fresh))
	if err := provider.ModifyLabels(ctx, msg.ID, []string{fresh}, []string{InboxLabel}); err != nil {
		s.labels.Forget(account, labelName)
		return false, "", ProviderError("modify message", err)
	}
	return true, fresh, nil
}

func (s *QuarantineService) score(msg *Message, rules RuleSet) ScoreResult {
	result := ScoreMessage(msg.Headers, msg.Snippet, rules)
	metrics.MessagesScored.Inc()
	metrics.ScoreDistribution.Observe(result.Score)
	return result
}

func (s *QuarantineService) fail(operation string, err error) error {
	kind := "internal"
	if t, ok := ErrorTypeOf(err); ok {
		kind = string(t)
	}
	metrics.OperationErrors.WithLabelValues(operation, kind).Inc()
	s.logger.Warn("Operation failed",
		zap.String("operation", operation),
		zap.String("kind", kind),
		zap.Error(err))
	if _, ok := ErrorTypeOf(err); ok {
		return err
	}
	return fmt.Errorf("%s: %w", operation, err)
}
