package core

import (
	"time"
)

// Action is the outcome of a quarantine decision
type Action string

const (
	ActionNone            Action = "none"
	ActionQuarantine      Action = "quarantine"
	ActionWouldQuarantine Action = "would_quarantine"
	ActionRestore         Action = "restore"
	ActionWouldRestore    Action = "would_restore"
)

// Actionable reports whether the action is recorded in the audit log
func (a Action) Actionable() bool {
	return a != ActionNone && a != ""
}

// Audit event names
const (
	EventOAuthConnected  = "oauth_connected"
	EventAccountRevoked  = "account_revoked"
	EventModeSet         = "mode_set"
	EventRulesAllowAdd   = "rules_allow_add"
	EventRulesBlockAdd   = "rules_block_add"
	EventQuarantine      = string(ActionQuarantine)
	EventWouldQuarantine = string(ActionWouldQuarantine)
	EventRestore         = string(ActionRestore)
	EventWouldRestore    = string(ActionWouldRestore)
)

// Gmail system label that holds incoming mail
const InboxLabel = "INBOX"

// Message is the metadata view of a mailbox message
type Message struct {
	ID           string            `json:"id"`
	ThreadID     string            `json:"threadId,omitempty"`
	Headers      map[string]string `json:"headers"`
	Snippet      string            `json:"snippet"`
	InternalDate time.Time         `json:"internalDate"`
	LabelIDs     []string          `json:"labelIds,omitempty"`
}

// HasLabel reports whether the message currently carries the label
func (m *Message) HasLabel(labelID string) bool {
	for _, id := range m.LabelIDs {
		if id == labelID {
			return true
		}
	}
	return false
}

// Label is a provider label
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Profile describes the connected mailbox
type Profile struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int64  `json:"messagesTotal"`
	ThreadsTotal  int64  `json:"threadsTotal"`
	HistoryID     uint64 `json:"historyId"`
}

// ScoreResult is the outcome of scoring a single message
type ScoreResult struct {
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// RuleSet holds an account's allow and block entries
type RuleSet struct {
	Allow []string `json:"allow"`
	Block []string `json:"block"`
}

// ModeSetting is the per-account enforcement mode
type ModeSetting struct {
	Shadow bool `json:"shadow"`
}

// AuditEntry is one line of an account's audit log
type AuditEntry struct {
	Timestamp int64    `json:"ts"`
	Event     string   `json:"event"`
	MessageID string   `json:"id,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Reasons   []string `json:"reasons,omitempty"`
	Shadow    *bool    `json:"shadow,omitempty"`
	Entries   []string `json:"entries,omitempty"`
	Account   string   `json:"email,omitempty"`
}

// Decision is the result of a single-message quarantine or undo
type Decision struct {
	OK      bool     `json:"ok"`
	Action  Action   `json:"action"`
	Score   *float64 `json:"score,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// BatchItem is the per-message outcome of a batch classification
type BatchItem struct {
	ID      string   `json:"id"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
	Action  Action   `json:"action"`
}

// BatchRequest describes a batch classification run
type BatchRequest struct {
	Account         string
	SourceLabel     string
	MaxResults      int
	Threshold       float64
	DryRun          bool
	QuarantineLabel string
}

// BatchResult aggregates a batch classification run
type BatchResult struct {
	Account   string         `json:"email"`
	Label     string         `json:"label"`
	Threshold float64        `json:"threshold"`
	DryRun    bool           `json:"dry_run"`
	Count     int            `json:"count"`
	Counts    map[Action]int `json:"counts"`
	Items     []BatchItem    `json:"items"`
}

// DigestItem summarises one quarantined message
type DigestItem struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
}

// TokenRecord is the stored OAuth credential of an account
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

func float64Ptr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }
