package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mikey/sift-mail/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actions(items []core.BatchItem) map[string]core.Action {
	out := make(map[string]core.Action, len(items))
	for _, item := range items {
		out[item.ID] = item.Action
	}
	return out
}

func TestClassifyLiveAppliesThreshold(t *testing.T) {
	e := newEngine(t)
	e.seed()
	e.setLive(t)

	// "mid" scores exactly 0.4 and the comparison is inclusive
	result, err := e.quarantine.Classify(context.Background(), core.BatchRequest{
		Account:   testAccount,
		Threshold: 0.4,
	})
	require.NoError(t, err)

	assert.Equal(t, core.InboxLabel, result.Label)
	assert.False(t, result.DryRun)
	assert.Equal(t, 3, result.Count)
	assert.Equal(t, map[string]core.Action{
		"low":  core.ActionNone,
		"mid":  core.ActionQuarantine,
		"high": core.ActionQuarantine,
	}, actions(result.Items))
	assert.Equal(t, 1, result.Counts[core.ActionNone])
	assert.Equal(t, 2, result.Counts[core.ActionQuarantine])
	assert.Equal(t, 0, result.Counts[core.ActionWouldQuarantine])

	qid, ok := e.mailbox.LabelID(testPolicy.QuarantineLabel)
	require.True(t, ok)
	assert.Equal(t, []string{qid}, e.mailbox.LabelsOf("mid"))
	assert.Equal(t, []string{qid}, e.mailbox.LabelsOf("high"))
	assert.Equal(t, []string{core.InboxLabel}, e.mailbox.LabelsOf("low"))
	assert.Equal(t, []string{core.EventModeSet, core.EventQuarantine, core.EventQuarantine}, e.events(t))
}

func TestClassifyDryRunLeavesMailboxUntouched(t *testing.T) {
	e := newEngine(t)
	e.seed()
	e.setLive(t)

	result, err := e.quarantine.Classify(context.Background(), core.BatchRequest{
		Account:   testAccount,
		Threshold: 0.4,
		DryRun:    true,
	})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 2, result.Counts[core.ActionWouldQuarantine])
	assert.Zero(t, e.mailbox.Calls["modify"])
	assert.Zero(t, e.mailbox.Calls["create"])
	_, ok := e.mailbox.LabelID(testPolicy.QuarantineLabel)
	assert.False(t, ok)
	assert.Equal(t, []string{core.EventModeSet, core.EventWouldQuarantine, core.EventWouldQuarantine}, e.events(t))
}

func TestClassifyShadowOverridesLiveRequest(t *testing.T) {
	e := newEngine(t)
	e.seed()

	result, err := e.quarantine.Classify(context.Background(), core.BatchRequest{
		Account:   testAccount,
		Threshold: 0.7,
		DryRun:    false,
	})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, map[string]core.Action{
		"low":  core.ActionNone,
		"mid":  core.ActionNone,
		"high": core.ActionWouldQuarantine,
	}, actions(result.Items))
	assert.Zero(t, e.mailbox.Calls["modify"])
}

func TestClassifyRespectsMaxResults(t *testing.T) {
	e := newEngine(t)
	e.seed()

	result, err := e.quarantine.Classify(context.Background(), core.BatchRequest{
		Account:    testAccount,
		MaxResults: 2,
		Threshold:  0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)
}

func TestClassifyFetchFailureMutatesNothing(t *testing.T) {
	e := newEngine(t)
	e.seed()
	e.setLive(t)
	e.mailbox.Fail["get"] = errors.New("quota exceeded")

	_, err := e.quarantine.Classify(context.Background(), core.BatchRequest{Account: testAccount, Threshold: 0.1})
	require.Error(t, err)
	assert.True(t, core.IsProviderError(err))
	assert.Zero(t, e.mailbox.Calls["modify"])
}

func TestClassifyValidation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	for name, req := range map[string]core.BatchRequest{
		"missing account":    {Threshold: 0.5},
		"negative max":       {Account: testAccount, MaxResults: -1},
		"threshold too high": {Account: testAccount, Threshold: 1.5},
		"negative threshold": {Account: testAccount, Threshold: -0.1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.quarantine.Classify(ctx, req)
			assert.True(t, core.IsValidationError(err))
		})
	}
}

func TestClassifyEmptySource(t *testing.T) {
	e := newEngine(t)

	result, err := e.quarantine.Classify(context.Background(), core.BatchRequest{
		Account:     testAccount,
		SourceLabel: "SPAM",
		Threshold:   0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.NotNil(t, result.Items)
}

func TestClassifyShadowAtThreshold(t *testing.T) {
	e := newEngine(t)
	e.seed()

	result, err := e.quarantine.Classify(context.Background(), core.BatchRequest{
		Account:   testAccount,
		Threshold: 0.4,
		DryRun:    false,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Count)
	assert.Equal(t, map[string]core.Action{
		"low":  core.ActionNone,
		"mid":  core.ActionWouldQuarantine,
		"high": core.ActionWouldQuarantine,
	}, actions(result.Items))
	assert.Zero(t, e.mailbox.Calls["modify"])
	assert.Zero(t, e.mailbox.Calls["create"])
}

func TestClassifyRecoversFromDeletedLabel(t *testing.T) {
	e := newEngine(t)
	e.seed()
	e.setLive(t)
	ctx := context.Background()

	_, err := e.quarantine.Quarantine(ctx, testAccount, "high", "")
	require.NoError(t, err)
	e.mailbox.DeleteLabel(testPolicy.QuarantineLabel)
	for _, id := range []string{"high2", "high3"} {
		e.mailbox.AddMessage(id, map[string]string{
			"From":    "Promo <promo@deals.xyz>",
			"Subject": "You are a WINNER",
		}, "Claim at bit.ly/x")
	}

	result, err := e.quarantine.Classify(ctx, core.BatchRequest{
		Account:   testAccount,
		Threshold: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Counts[core.ActionQuarantine])

	fresh, ok := e.mailbox.LabelID(testPolicy.QuarantineLabel)
	require.True(t, ok)
	assert.Equal(t, []string{fresh}, e.mailbox.LabelsOf("high2"))
	assert.Equal(t, []string{fresh}, e.mailbox.LabelsOf("high3"))
	// one failed move, its retry, then the next message uses the fresh ID directly
	assert.Equal(t, 4, e.mailbox.Calls["modify"])
	assert.Equal(t, 2, e.mailbox.Calls["create"])
}
