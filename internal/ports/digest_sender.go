package ports

import (
	"context"

	"github.com/mikey/sift-mail/internal/core"
)

// DigestSender delivers a quarantine digest to a mailbox owner
type DigestSender interface {
	// Send emails the digest items of account to recipient
	Send(ctx context.Context, account, recipient string, items []core.DigestItem) error
}
