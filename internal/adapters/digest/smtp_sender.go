package digest

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/mikey/sift-mail/internal/core"
	"go.uber.org/zap"
)

const (
	dialTimeout    = 10 * time.Second
	sessionTimeout = 30 * time.Second
)

// SMTPSender delivers digests through an SMTP relay
type SMTPSender struct {
	addr     string
	helo     string
	username string
	password string
	from     string
	subject  string
	logger   *zap.Logger
	now      func() time.Time
}

// NewSMTPSender creates a new SMTP digest sender. Authentication is used when
// username is set.
func NewSMTPSender(addr, helo, username, password, from, subject string, logger *zap.Logger) *SMTPSender {
	if helo == "" {
		if hostname, err := os.Hostname(); err == nil {
			helo = hostname
		} else {
			helo = "localhost"
		}
	}
	return &SMTPSender{
		addr:     addr,
		helo:     helo,
		username: username,
		password: password,
		from:     from,
		subject:  subject,
		logger:   logger,
		now:      time.Now,
	}
}

// Send renders the digest and submits it to the relay
func (s *SMTPSender) Send(ctx context.Context, account, recipient string, items []core.DigestItem) error {
	if recipient == "" {
		recipient = account
	}
	msg, err := s.compose(account, recipient, items)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, recipient, msg); err != nil {
		return err
	}
	s.logger.Info("Sent digest",
		zap.String("account", account),
		zap.String("recipient", recipient),
		zap.Int("items", len(items)))
	return nil
}

// compose builds a multipart/alternative message with text and HTML bodies
func (s *SMTPSender) compose(account, recipient string, items []core.DigestItem) ([]byte, error) {
	textBody, err := RenderText(account, items)
	if err != nil {
		return nil, err
	}
	htmlBody, err := RenderHTML(account, items)
	if err != nil {
		return nil, err
	}

	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{{Address: s.from}})
	h.SetAddressList("To", []*mail.Address{{Address: recipient}})
	h.SetSubject(s.subject)
	h.SetMessageID(uuid.NewString() + "@sift-mail")
	h.Set("Auto-Submitted", "auto-generated")

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline writer: %w", err)
	}
	for _, part := range []struct {
		contentType string
		body        []byte
	}{
		{"text/plain", textBody},
		{"text/html", htmlBody},
	} {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		pw, err := iw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s part: %w", part.contentType, err)
		}
		if _, err := pw.Write(part.body); err != nil {
			pw.Close()
			return nil, fmt.Errorf("failed to write %s part: %w", part.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return nil, fmt.Errorf("failed to close %s part: %w", part.contentType, err)
		}
	}
	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *SMTPSender) deliver(ctx context.Context, recipient string, msg []byte) error {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP relay: %w", err)
	}

	deadline := time.Now().Add(sessionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(s.helo); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}
	if err := c.Mail(s.from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(recipient, nil); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send digest data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// The relay already accepted the message.
		s.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}
