package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mikey/sift-mail/internal/senderlist"
)

// RuleStore persists per-account allow and block lists
type RuleStore struct {
	kv    KeyValueStore
	audit *AuditLog
	now   func() int64
}

// NewRuleStore creates a new rule store
func NewRuleStore(kv KeyValueStore, audit *AuditLog) *RuleStore {
	return &RuleStore{kv: kv, audit: audit, now: unixNow}
}

// Get returns the account's rules, or an empty set when none are stored
func (s *RuleStore) Get(ctx context.Context, account string) (RuleSet, error) {
	data, err := s.kv.Get(ctx, AccountKey(NamespaceRules, account))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return emptyRuleSet(), nil
		}
		return RuleSet{}, StorageError("load rules", err)
	}
	return decodeRuleSet(data)
}

// AddAllow unions entries into the allow list
func (s *RuleStore) AddAllow(ctx context.Context, account string, entries []string) (RuleSet, error) {
	return s.add(ctx, account, entries, true)
}

// AddBlock unions entries into the block list
func (s *RuleStore) AddBlock(ctx context.Context, account string, entries []string) (RuleSet, error) {
	return s.add(ctx, account, entries, false)
}

// Delete removes the account's rules
func (s *RuleStore) Delete(ctx context.Context, account string) error {
	if err := s.kv.Delete(ctx, AccountKey(NamespaceRules, account)); err != nil {
		return StorageError("delete rules", err)
	}
	return nil
}

func (s *RuleStore) add(ctx context.Context, account string, entries []string, allow bool) (RuleSet, error) {
	var updated RuleSet
	err := s.kv.Update(ctx, AccountKey(NamespaceRules, account), func(current []byte) ([]byte, error) {
		rules := emptyRuleSet()
		if current != nil {
			decoded, err := decodeRuleSet(current)
			if err != nil {
				return nil, err
			}
			rules = decoded
		}
		if allow {
			rules.Allow = senderlist.Merge(rules.Allow, entries)
		} else {
			rules.Block = senderlist.Merge(rules.Block, entries)
		}
		updated = rules
		return json.MarshalIndent(rules, "", "  ")
	})
	if err != nil {
		return RuleSet{}, StorageError("save rules", err)
	}

	event := EventRulesBlockAdd
	if allow {
		event = EventRulesAllowAdd
	}
	s.audit.Append(ctx, account, AuditEntry{
		Timestamp: s.now(),
		Event:     event,
		Entries:   senderlist.Normalize(entries),
	})
	return updated, nil
}

func emptyRuleSet() RuleSet {
	return RuleSet{Allow: []string{}, Block: []string{}}
}

func decodeRuleSet(data []byte) (RuleSet, error) {
	var rules RuleSet
	if err := json.Unmarshal(data, &rules); err != nil {
		return RuleSet{}, StorageError("decode rules", fmt.Errorf("malformed rules record: %w", err))
	}
	rules.Allow = senderlist.Normalize(rules.Allow)
	rules.Block = senderlist.Normalize(rules.Block)
	return rules, nil
}
