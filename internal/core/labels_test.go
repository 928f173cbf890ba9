package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikey/sift-mail/internal/core"
	"github.com/mikey/sift-mail/internal/core/coretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureLabelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mailbox := coretest.NewMailbox(testAccount)
	resolver := core.NewLabelResolver()

	first, err := resolver.Ensure(ctx, mailbox, testAccount, "Sift/Quarantine")
	require.NoError(t, err)
	second, err := resolver.Ensure(ctx, mailbox, testAccount, "Sift/Quarantine")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mailbox.Calls["create"])

	// a fresh resolver finds the existing label instead of creating another
	third, err := core.NewLabelResolver().Ensure(ctx, mailbox, testAccount, "Sift/Quarantine")
	require.NoError(t, err)
	assert.Equal(t, first, third)
	assert.Equal(t, 1, mailbox.Calls["create"])
}

func TestFindLabelRefreshesCache(t *testing.T) {
	ctx := context.Background()
	mailbox := coretest.NewMailbox(testAccount)
	resolver := core.NewLabelResolver()

	_, found, err := resolver.Find(ctx, mailbox, testAccount, "Archive")
	require.NoError(t, err)
	assert.False(t, found)

	id := mailbox.AddLabel("Archive")
	got, found, err := resolver.Find(ctx, mailbox, testAccount, "Archive")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, got)
}

func TestEnsureLabelProviderFailure(t *testing.T) {
	mailbox := coretest.NewMailbox(testAccount)
	mailbox.Fail["labels"] = errors.New("boom")

	_, err := core.NewLabelResolver().Ensure(context.Background(), mailbox, testAccount, "Sift/Quarantine")
	require.Error(t, err)
	assert.True(t, core.IsProviderError(err))
}

// stalledMailbox blocks ListLabels until released
type stalledMailbox struct {
	*coretest.Mailbox
	entered chan struct{}
	release chan struct{}
}

func (m *stalledMailbox) ListLabels(ctx context.Context) ([]core.Label, error) {
	close(m.entered)
	<-m.release
	return m.Mailbox.ListLabels(ctx)
}

func TestEnsureLabelDoesNotBlockOtherAccounts(t *testing.T) {
	ctx := context.Background()
	resolver := core.NewLabelResolver()
	slow := &stalledMailbox{
		Mailbox: coretest.NewMailbox("a@example.com"),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	other := coretest.NewMailbox("b@example.com")

	slowDone := make(chan error, 1)
	go func() {
		_, err := resolver.Ensure(ctx, slow, "a@example.com", "Sift/Quarantine")
		slowDone <- err
	}()
	<-slow.entered

	otherDone := make(chan error, 1)
	go func() {
		_, err := resolver.Ensure(ctx, other, "b@example.com", "Sift/Quarantine")
		otherDone <- err
	}()

	select {
	case err := <-otherDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("label lookup of one account waited for another account's provider call")
	}

	close(slow.release)
	require.NoError(t, <-slowDone)
	_, ok := slow.LabelID("Sift/Quarantine")
	assert.True(t, ok)
}
