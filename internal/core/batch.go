package core

import (
	"context"

	"github.com/mikey/sift-mail/internal/metrics"
	"go.uber.org/zap"
)

// normalizeBatch validates a batch request and fills in defaults
func (s *QuarantineService) normalizeBatch(req BatchRequest) (BatchRequest, error) {
	if req.Account == "" {
		return req, ValidationError("account is required")
	}
	if req.MaxResults < 0 {
		return req, ValidationError("max_results must not be negative").WithDetail("max_results", req.MaxResults)
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return req, ValidationError("threshold must be within [0, 1]").WithDetail("threshold", req.Threshold)
	}
	if req.MaxResults == 0 {
		req.MaxResults = s.policy.DefaultBatchSize
	}
	if s.policy.MaxBatchSize > 0 && req.MaxResults > s.policy.MaxBatchSize {
		req.MaxResults = s.policy.MaxBatchSize
	}
	if req.SourceLabel == "" {
		req.SourceLabel = InboxLabel
	}
	if req.QuarantineLabel == "" {
		req.QuarantineLabel = s.policy.QuarantineLabel
	}
	return req, nil
}

type scoredMessage struct {
	msg    *Message
	result ScoreResult
	action Action
}

// Classify scores a page of messages from the source label and applies the
// quarantine decision to each. The account's shadow mode and the request's
// dry-run flag each suppress mailbox mutation on their own.
func (s *QuarantineService) Classify(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	req, err := s.normalizeBatch(req)
	if err != nil {
		return nil, s.fail("classify", err)
	}

	unlock := s.locks.Lock(req.Account)
	defer unlock()

	provider, err := s.connector.Connect(ctx, req.Account)
	if err != nil {
		return nil, s.fail("classify", err)
	}
	mode, err := s.modes.Get(ctx, req.Account)
	if err != nil {
		return nil, s.fail("classify", err)
	}
	rules, err := s.rules.Get(ctx, req.Account)
	if err != nil {
		return nil, s.fail("classify", err)
	}

	ids, err := provider.ListMessages(ctx, req.SourceLabel, "", req.MaxResults)
	if err != nil {
		return nil, s.fail("classify", ProviderError("list messages", err))
	}

	shadow := mode.Shadow || req.DryRun

	var qid string
	if !shadow {
		qid, err = s.labels.Ensure(ctx, provider, req.Account, req.QuarantineLabel)
		if err != nil {
			return nil, s.fail("classify", err)
		}
	}

	// Score everything first so a fetch failure leaves the mailbox untouched
	scored := make([]scoredMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := provider.GetMessage(ctx, id)
		if err != nil {
			return nil, s.fail("classify", ProviderError("get message", err).WithDetail("message_id", id))
		}
		result := s.score(msg, rules)
		scored = append(scored, scoredMessage{
			msg:    msg,
			result: result,
			action: decide(result.Score, req.Threshold, shadow),
		})
	}

	out := &BatchResult{
		Account:   req.Account,
		Label:     req.SourceLabel,
		Threshold: req.Threshold,
		DryRun:    shadow,
		Counts: map[Action]int{
			ActionNone:            0,
			ActionWouldQuarantine: 0,
			ActionQuarantine:      0,
		},
		Items: make([]BatchItem, 0, len(scored)),
	}

	for _, sm := range scored {
		audit := sm.action.Actionable()
		if sm.action == ActionQuarantine {
			applied, used, err := s.moveToQuarantine(ctx, provider, req.Account, sm.msg, req.QuarantineLabel, qid)
			if err != nil {
				return nil, s.fail("classify", err)
			}
			qid = used
			audit = applied
		}
		if audit {
			s.audit.Append(ctx, req.Account, AuditEntry{
				Timestamp: s.now(),
				Event:     string(sm.action),
				MessageID: sm.msg.ID,
				Score:     float64Ptr(sm.result.Score),
				Reasons:   sm.result.Reasons,
			})
		}
		out.Counts[sm.action]++
		out.Items = append(out.Items, BatchItem{
			ID:      sm.msg.ID,
			Score:   sm.result.Score,
			Reasons: sm.result.Reasons,
			Action:  sm.action,
		})
		metrics.Decisions.WithLabelValues("classify", string(sm.action)).Inc()
	}
	out.Count = len(out.Items)

	s.logger.Info("Batch classification complete",
		zap.String("account", req.Account),
		zap.String("label", req.SourceLabel),
		zap.Int("count", out.Count),
		zap.Int("quarantined", out.Counts[ActionQuarantine]),
		zap.Int("would_quarantine", out.Counts[ActionWouldQuarantine]),
		zap.Bool("dry_run", shadow))

	return out, nil
}
