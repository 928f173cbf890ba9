package core_test

import (
	"context"
	"testing"

	"github.com/mikey/sift-mail/internal/adapters/store"
	"github.com/mikey/sift-mail/internal/core"
	"github.com/mikey/sift-mail/internal/core/coretest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAccount = "user@example.com"

var testPolicy = core.PolicySettings{
	Threshold:        0.7,
	QuarantineLabel:  "Sift/Quarantine",
	DefaultBatchSize: 50,
	MaxBatchSize:     500,
}

type engine struct {
	kv         *store.MemoryStore
	mailbox    *coretest.Mailbox
	identity   *coretest.Identity
	audit      *core.AuditLog
	modes      *core.ModeStore
	rules      *core.RuleStore
	tokens     *core.TokenStore
	accounts   *core.AccountService
	quarantine *core.QuarantineService
	reader     *core.MailboxService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	logger := zap.NewNop()
	kv := store.NewMemoryStore(logger)
	mailbox := coretest.NewMailbox(testAccount)
	connector := coretest.NewConnector(mailbox)
	identity := coretest.NewIdentity()

	audit := core.NewAuditLog(kv, logger)
	modes := core.NewModeStore(kv, audit)
	rules := core.NewRuleStore(kv, audit)
	tokens := core.NewTokenStore(kv)
	labels := core.NewLabelResolver()
	locks := core.NewAccountLocks()

	return &engine{
		kv:         kv,
		mailbox:    mailbox,
		identity:   identity,
		audit:      audit,
		modes:      modes,
		rules:      rules,
		tokens:     tokens,
		accounts:   core.NewAccountService(identity, tokens, modes, rules, audit, labels, locks, logger),
		quarantine: core.NewQuarantineService(connector, rules, modes, audit, labels, locks, logger, testPolicy),
		reader:     core.NewMailboxService(connector, rules, labels, logger, testPolicy),
	}
}

// seed adds one low, one medium and one high risk message
func (e *engine) seed() {
	e.mailbox.
		AddMessage("low", map[string]string{
			"From":             "bob@example.com",
			"Subject":          "Lunch?",
			"List-Unsubscribe": "<mailto:u@example.com>",
			"Date":             "Mon, 1 Jan 2024 10:00:00 +0000",
		}, "Are we still on for lunch tomorrow at noon?").
		AddMessage("mid", map[string]string{
			"From":    "Alice <alice@example.com>",
			"Subject": "Invoice attached",
		}, "Please find the invoice for last month attached.").
		AddMessage("high", map[string]string{
			"From":    "Promo <promo@deals.xyz>",
			"Subject": "You are a WINNER",
		}, "Claim at bit.ly/x")
}

func (e *engine) setLive(t *testing.T) {
	t.Helper()
	_, err := e.modes.Set(context.Background(), testAccount, false)
	require.NoError(t, err)
}

func (e *engine) events(t *testing.T) []string {
	t.Helper()
	entries, err := e.audit.List(context.Background(), testAccount, 0)
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Event)
	}
	return out
}
