package digest

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/mikey/sift-mail/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var sampleItems = []core.DigestItem{
	{ID: "m1", From: "Promo <deals@shop.xyz>", Subject: "<b>Free</b> gift", Snippet: "claim now", Date: "Mon, 1 Jan 2024 10:00:00 +0000"},
}

func TestRenderHTMLEscapes(t *testing.T) {
	page, err := RenderHTML("alice@example.com", sampleItems)
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, Title)
	assert.Contains(t, html, "&lt;b&gt;Free&lt;/b&gt; gift")
	assert.Contains(t, html, "Promo &lt;deals@shop.xyz&gt;")
	assert.NotContains(t, html, "<b>Free</b>")
}

func TestRenderEmpty(t *testing.T) {
	page, err := RenderHTML("", nil)
	require.NoError(t, err)
	assert.Contains(t, string(page), "No quarantined messages.")

	text, err := RenderText("alice@example.com", nil)
	require.NoError(t, err)
	assert.Contains(t, string(text), "No quarantined messages.")
}

// captureBackend is a go-smtp backend recording delivered messages
type captureBackend struct {
	mu       sync.Mutex
	from     string
	to       []string
	data     string
	authUser string
}

func (b *captureBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &captureSession{backend: b}, nil
}

type captureSession struct {
	backend *captureBackend
}

func (s *captureSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *captureSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != "relay" || password != "pw" {
			return errors.New("invalid credentials")
		}
		s.backend.mu.Lock()
		s.backend.authUser = username
		s.backend.mu.Unlock()
		return nil
	}), nil
}

func (s *captureSession) Mail(from string, _ *smtp.MailOptions) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.from = from
	return nil
}

func (s *captureSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.to = append(s.backend.to, to)
	return nil
}

func (s *captureSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.data = string(data)
	return nil
}

func (s *captureSession) Reset() {}

func (s *captureSession) Logout() error { return nil }

func startRelay(t *testing.T) (*captureBackend, string) {
	t.Helper()
	be := &captureBackend{}
	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = srv.Serve(l)
	}()
	t.Cleanup(func() { srv.Close() })
	return be, l.Addr().String()
}

func TestSMTPSenderDelivers(t *testing.T) {
	be, addr := startRelay(t)
	sender := NewSMTPSender(addr, "sift.test", "relay", "pw", "sift@example.com", "Your digest", zap.NewNop())

	err := sender.Send(context.Background(), "alice@example.com", "", sampleItems)
	require.NoError(t, err)

	be.mu.Lock()
	defer be.mu.Unlock()
	assert.Equal(t, "relay", be.authUser)
	assert.Equal(t, "sift@example.com", be.from)
	assert.Equal(t, []string{"alice@example.com"}, be.to)
	assert.Contains(t, be.data, "Subject: Your digest")
	assert.Contains(t, be.data, "multipart/alternative")
	assert.Contains(t, be.data, "text/html")
	assert.True(t, strings.Contains(be.data, "Free") && strings.Contains(be.data, "gift"))
}

func TestSMTPSenderRejectsBadAuth(t *testing.T) {
	_, addr := startRelay(t)
	sender := NewSMTPSender(addr, "sift.test", "relay", "wrong", "sift@example.com", "Your digest", zap.NewNop())

	err := sender.Send(context.Background(), "alice@example.com", "bob@example.com", sampleItems)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH failed")
}

func TestSMTPSenderUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	sender := NewSMTPSender(addr, "", "", "", "sift@example.com", "Your digest", zap.NewNop())
	err = sender.Send(context.Background(), "alice@example.com", "", sampleItems)
	assert.Error(t, err)
}
