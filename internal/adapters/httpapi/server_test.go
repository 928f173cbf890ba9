package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mikey/sift-mail/internal/adapters/store"
	"github.com/mikey/sift-mail/internal/core"
	"github.com/mikey/sift-mail/internal/core/coretest"
	"github.com/mikey/sift-mail/internal/oauthstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testKey     = "secret-key"
	testAccount = "user@example.com"
)

type sentDigest struct {
	account   string
	recipient string
	items     []core.DigestItem
}

type fakeDigestSender struct {
	sent []sentDigest
	err  error
}

func (f *fakeDigestSender) Send(ctx context.Context, account, recipient string, items []core.DigestItem) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentDigest{account: account, recipient: recipient, items: items})
	return nil
}

type testServer struct {
	*Server
	mailbox  *coretest.Mailbox
	identity *coretest.Identity
	digest   *fakeDigestSender
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	kv := store.NewMemoryStore(logger)
	mailbox := coretest.NewMailbox(testAccount)
	mailbox.
		AddMessage("low", map[string]string{
			"From":             "bob@example.com",
			"Subject":          "Lunch?",
			"List-Unsubscribe": "<mailto:u@example.com>",
		}, "Are we still on for lunch tomorrow at noon?").
		AddMessage("high", map[string]string{
			"From":    "Promo <promo@deals.xyz>",
			"Subject": "You are a WINNER",
		}, "Claim at bit.ly/x")
	connector := coretest.NewConnector(mailbox)
	identity := coretest.NewIdentity()

	policy := core.PolicySettings{Threshold: 0.7, QuarantineLabel: "Sift/Quarantine", DefaultBatchSize: 50, MaxBatchSize: 500}
	audit := core.NewAuditLog(kv, logger)
	modes := core.NewModeStore(kv, audit)
	rules := core.NewRuleStore(kv, audit)
	tokens := core.NewTokenStore(kv)
	labels := core.NewLabelResolver()
	locks := core.NewAccountLocks()

	signer, err := oauthstate.NewSigner("state-secret", 0)
	require.NoError(t, err)
	digest := &fakeDigestSender{}

	srv := NewServer(
		core.NewAccountService(identity, tokens, modes, rules, audit, labels, locks, logger),
		core.NewQuarantineService(connector, rules, modes, audit, labels, locks, logger, policy),
		core.NewMailboxService(connector, rules, labels, logger, policy),
		signer,
		digest,
		Options{APIKey: testKey},
		logger,
	)
	return &testServer{Server: srv, mailbox: mailbox, identity: identity, digest: digest}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(APIKeyHeader, testKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthIsOpen(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.NotZero(t, body["time"])
}

func TestAPIKeyRequired(t *testing.T) {
	ts := newTestServer(t)

	for _, key := range []string{"", "wrong"} {
		req := httptest.NewRequest(http.MethodGet, "/mode?email="+testAccount, nil)
		if key != "" {
			req.Header.Set(APIKeyHeader, key)
		}
		rec := httptest.NewRecorder()
		ts.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthorized", decode(t, rec)["error"])
	}
}

func TestEmptyAPIKeyFailsClosed(t *testing.T) {
	ts := newTestServer(t)
	ts.opts.APIKey = ""

	req := httptest.NewRequest(http.MethodGet, "/mode?email="+testAccount, nil)
	req.Header.Set(APIKeyHeader, "")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOAuthFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.identity.Codes["code-1"] = testAccount

	start := httptest.NewRecorder()
	ts.Handler().ServeHTTP(start, httptest.NewRequest(http.MethodGet, "/auth/start", nil))
	require.Equal(t, http.StatusFound, start.Code)

	cookies := start.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, oauthstate.CookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	location, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	assert.Equal(t, cookie.Value, state)

	t.Run("mismatched state", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1&state=forged", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		ts.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "state_mismatch", decode(t, rec)["error"])
	})

	t.Run("missing cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1&state="+url.QueryEscape(state), nil)
		rec := httptest.NewRecorder()
		ts.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("connected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1&state="+url.QueryEscape(state), nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		ts.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), testAccount)

		cleared := rec.Result().Cookies()
		require.Len(t, cleared, 1)
		assert.Equal(t, -1, cleared[0].MaxAge)

		mode := ts.do(t, http.MethodGet, "/mode?email="+testAccount, nil)
		require.Equal(t, http.StatusOK, mode.Code)
		assert.Equal(t, true, decode(t, mode)["shadow"])
	})
}

func TestOAuthCallbackDenied(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "validation", body["error"])
	assert.Equal(t, "access_denied", body["details"].(map[string]any)["error"])
}

func TestModeAndRules(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/mode", map[string]any{"email": testAccount})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "is required", decode(t, rec)["details"].(map[string]any)["shadow"])

	rec = ts.do(t, http.MethodPost, "/mode", map[string]any{"email": testAccount, "shadow": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["shadow"])

	rec = ts.do(t, http.MethodPost, "/rules/block", map[string]any{"email": testAccount, "entries": []string{"Spam.Test"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"spam.test"}, decode(t, rec)["block"])

	rec = ts.do(t, http.MethodPost, "/rules/allow", map[string]any{"email": testAccount})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/rules?email="+testAccount, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []any{}, body["allow"])
	assert.Equal(t, []any{"spam.test"}, body["block"])

	rec = ts.do(t, http.MethodGet, "/audit?email="+testAccount+"&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, core.EventRulesBlockAdd, items[0].(map[string]any)["event"])
}

func TestMissingEmailQuery(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/mode", "/rules", "/audit", "/mailbox/profile", "/mailbox/labels", "/digest"} {
		rec := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestMalformedBody(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/mailbox/quarantine", strings.NewReader("{"))
	req.Header.Set(APIKeyHeader, testKey)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decode(t, rec)["error"])
}

func TestMailboxEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/mailbox/profile?email="+testAccount, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testAccount, decode(t, rec)["emailAddress"])

	rec = ts.do(t, http.MethodGet, "/mailbox/labels?email="+testAccount, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["labels"])

	rec = ts.do(t, http.MethodGet, "/mailbox/messages?email="+testAccount+"&max_results=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["messages"], 1)

	rec = ts.do(t, http.MethodGet, "/mailbox/messages/high?email="+testAccount, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "high", decode(t, rec)["id"])

	rec = ts.do(t, http.MethodGet, "/mailbox/messages/ghost?email="+testAccount, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/mailbox/score", map[string]any{"email": testAccount, "message_id": "high"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.85, decode(t, rec)["score"], 1e-9)

	rec = ts.do(t, http.MethodGet, "/mailbox/profile?email=stranger@example.com", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_connected", decode(t, rec)["error"])
}

func TestQuarantineAndUndo(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/mailbox/quarantine", map[string]any{"email": testAccount, "message_id": "high"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "would_quarantine", decode(t, rec)["action"])

	rec = ts.do(t, http.MethodPost, "/mode", map[string]any{"email": testAccount, "shadow": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/mailbox/quarantine", map[string]any{"email": testAccount, "message_id": "high"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "quarantine", body["action"])
	assert.Equal(t, true, body["ok"])
	assert.NotContains(t, ts.mailbox.LabelsOf("high"), core.InboxLabel)

	rec = ts.do(t, http.MethodPost, "/mailbox/undo", map[string]any{"email": testAccount, "message_id": "high"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "restore", decode(t, rec)["action"])
	assert.Equal(t, []string{core.InboxLabel}, ts.mailbox.LabelsOf("high"))

	rec = ts.do(t, http.MethodPost, "/mailbox/undo", map[string]any{"email": testAccount})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProviderErrorsMapToBadGateway(t *testing.T) {
	ts := newTestServer(t)
	ts.mailbox.Fail["profile"] = assert.AnError

	rec := ts.do(t, http.MethodGet, "/mailbox/profile?email="+testAccount, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "provider", decode(t, rec)["error"])
}

func TestBatchClassifyDefaultsToDryRun(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/mode", map[string]any{"email": testAccount, "shadow": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/mailbox/batch-classify", map[string]any{"email": testAccount})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["dry_run"])
	assert.InDelta(t, 0.7, body["threshold"], 1e-9)
	assert.EqualValues(t, 2, body["count"])
	assert.Zero(t, ts.mailbox.Calls["modify"])

	rec = ts.do(t, http.MethodPost, "/mailbox/batch-classify", map[string]any{
		"email":                testAccount,
		"dry_run":              false,
		"quarantine_threshold": 0.5,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["dry_run"])
	assert.EqualValues(t, 1, body["counts"].(map[string]any)["quarantine"])

	rec = ts.do(t, http.MethodPost, "/mailbox/batch-classify", map[string]any{"email": testAccount, "quarantine_threshold": 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDigestEndpoints(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/mode", map[string]any{"email": testAccount, "shadow": false})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/mailbox/quarantine", map[string]any{"email": testAccount, "message_id": "high"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/digest?email="+testAccount, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "You are a WINNER", items[0].(map[string]any)["subject"])

	rec = ts.do(t, http.MethodGet, "/digest?email="+testAccount+"&html=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Sift Mail Digest")

	rec = ts.do(t, http.MethodPost, "/digest/send", map[string]any{"email": testAccount})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["sent"])
	assert.Equal(t, testAccount, body["recipient"])
	require.Len(t, ts.digest.sent, 1)
	assert.Equal(t, testAccount, ts.digest.sent[0].recipient)

	rec = ts.do(t, http.MethodPost, "/digest/send", map[string]any{"email": testAccount, "recipient": "not-an-address"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.digest.err = assert.AnError
	rec = ts.do(t, http.MethodPost, "/digest/send", map[string]any{"email": testAccount, "recipient": "ops@example.com"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAccountLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/account/revoke", map[string]any{"email": testAccount})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, false, body["revoke_attempted"])

	rec = ts.do(t, http.MethodPost, "/account/delete", map[string]any{"email": testAccount})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ok"])

	rec = ts.do(t, http.MethodPost, "/account/delete", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
