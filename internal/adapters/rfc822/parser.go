// Package rfc822 turns raw messages into the metadata view the scorer consumes.
package rfc822

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/mikey/sift-mail/internal/adapters/gmail"
	"github.com/mikey/sift-mail/internal/core"
	"github.com/mikey/sift-mail/internal/utils"
	"go.uber.org/zap"
)

// maxBodyRead bounds how much of a text part is read to build the snippet
const maxBodyRead = 64 << 10

var htmlTag = regexp.MustCompile(`(?s)<[^>]*>`)

// Parser reads RFC 822 messages
type Parser struct {
	text        *utils.TextProcessor
	logger      *zap.Logger
	snippetSize int
}

// NewParser creates a new parser
func NewParser(text *utils.TextProcessor, logger *zap.Logger) *Parser {
	return &Parser{
		text:        text,
		logger:      logger,
		snippetSize: utils.DefaultSnippetSize,
	}
}

// Parse reads one message. The body is reduced to a snippet the same way
// provider snippets are, so a local file scores like its mailbox copy.
func (p *Parser) Parse(r io.Reader) (*core.Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if err != nil {
		p.logger.Debug("Unknown charset in message header", zap.Error(err))
	}
	defer mr.Close()

	msg := &core.Message{
		Headers: make(map[string]string, len(gmail.MetadataHeaders)),
	}
	for _, name := range gmail.MetadataHeaders {
		if !mr.Header.Has(name) {
			continue
		}
		value, err := mr.Header.Text(name)
		if err != nil {
			// Keep the raw value when an encoded word cannot be decoded
			value = mr.Header.Get(name)
		}
		msg.Headers[name] = p.text.ProcessHeader(value)
	}
	msg.ID = strings.Trim(msg.Headers["Message-ID"], "<>")
	if date, err := mr.Header.Date(); err == nil {
		msg.InternalDate = date.UTC()
	}

	body, err := p.extractText(mr)
	if err != nil {
		return nil, err
	}
	msg.Snippet = p.text.ProcessSnippet(body, p.snippetSize)
	return msg, nil
}

// extractText returns the first text/plain part, falling back to the first
// text/html part with tags stripped
func (p *Parser) extractText(mr *mail.Reader) (string, error) {
	var htmlBody string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				p.logger.Debug("Skipping part with unknown charset", zap.Error(err))
				continue
			}
			return "", fmt.Errorf("failed to read message part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, err := h.ContentType()
		if err != nil {
			mediaType = "text/plain"
		}

		switch mediaType {
		case "text/plain":
			data, err := io.ReadAll(io.LimitReader(part.Body, maxBodyRead))
			if err != nil {
				return "", fmt.Errorf("failed to read text part: %w", err)
			}
			return string(data), nil
		case "text/html":
			if htmlBody != "" {
				continue
			}
			data, err := io.ReadAll(io.LimitReader(part.Body, maxBodyRead))
			if err != nil {
				return "", fmt.Errorf("failed to read html part: %w", err)
			}
			htmlBody = htmlTag.ReplaceAllString(string(data), " ")
		}
	}
	return htmlBody, nil
}
