package core

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// DefaultAuditLimit is the number of entries List returns when no limit is given
const DefaultAuditLimit = 200

// AuditLog is the append-only per-account event log
type AuditLog struct {
	kv     KeyValueStore
	logger *zap.Logger
}

// NewAuditLog creates a new audit log
func NewAuditLog(kv KeyValueStore, logger *zap.Logger) *AuditLog {
	return &AuditLog{kv: kv, logger: logger}
}

// Append writes one entry. A write failure is logged and returned for the
// caller to observe; it never undoes the operation being audited.
func (a *AuditLog) Append(ctx context.Context, account string, entry AuditEntry) error {
	if entry.Timestamp == 0 {
		entry.Timestamp = unixNow()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		a.logger.Error("Failed to encode audit entry", zap.Error(err), zap.String("event", entry.Event))
		return StorageError("encode audit entry", err)
	}
	if err := a.kv.Append(ctx, AccountKey(NamespaceLogs, account), line); err != nil {
		a.logger.Error("Failed to append audit entry",
			zap.Error(err),
			zap.String("account", account),
			zap.String("event", entry.Event))
		return StorageError("append audit entry", err)
	}
	a.logger.Debug("Audit entry appended",
		zap.String("account", account),
		zap.String("event", entry.Event),
		zap.String("message_id", entry.MessageID))
	return nil
}

// List returns the most recent limit entries, oldest first. Malformed lines are skipped.
func (a *AuditLog) List(ctx context.Context, account string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	lines, err := a.kv.ReadLines(ctx, AccountKey(NamespaceLogs, account))
	if err != nil {
		return nil, StorageError("read audit log", err)
	}

	entries := make([]AuditEntry, 0, len(lines))
	for _, line := range lines {
		var entry AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			a.logger.Debug("Skipping malformed audit line", zap.String("account", account), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Delete erases the whole log of an account
func (a *AuditLog) Delete(ctx context.Context, account string) error {
	if err := a.kv.Delete(ctx, AccountKey(NamespaceLogs, account)); err != nil {
		return StorageError("delete audit log", err)
	}
	return nil
}

func unixNow() int64 {
	return time.Now().Unix()
}
