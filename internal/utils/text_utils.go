package utils

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultSnippetSize bounds snippets derived from message bodies
const DefaultSnippetSize = 200

// TextProcessor provides utilities for cleaning provider text
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText truncates text to at most maxRunes runes.
// A non-positive limit disables truncation.
func (tp *TextProcessor) TruncateText(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)
	truncated := string(runes[:maxRunes])

	tp.logger.Debug("Text truncated",
		zap.Int("original_runes", len(runes)),
		zap.Int("max_runes", maxRunes))

	return truncated
}

// SanitizeUTF8 drops invalid UTF-8 bytes from text
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(text[i:])
			if size == 1 {
				continue
			}
		}
		result = append(result, r)
	}

	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(string(result))))

	return string(result)
}

// CollapseWhitespace replaces runs of whitespace and control characters with one space
func (tp *TextProcessor) CollapseWhitespace(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// ProcessSnippet turns a provider snippet or a body excerpt into plain single-line text.
// Gmail returns snippets with HTML entities escaped.
func (tp *TextProcessor) ProcessSnippet(text string, maxRunes int) string {
	text = tp.SanitizeUTF8(text)
	text = html.UnescapeString(text)
	text = tp.CollapseWhitespace(text)
	return tp.TruncateText(text, maxRunes)
}

// ProcessHeader sanitizes a header value for display and scoring
func (tp *TextProcessor) ProcessHeader(value string) string {
	return strings.TrimSpace(tp.CollapseWhitespace(tp.SanitizeUTF8(value)))
}
