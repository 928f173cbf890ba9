package factory

import (
	"github.com/mikey/sift-mail/internal/adapters/rfc822"
	"github.com/mikey/sift-mail/internal/utils"
	"go.uber.org/zap"
)

// TextFactory creates the text cleaning and message parsing components.
// Every component shares one TextProcessor so provider snippets and
// locally parsed bodies are normalized identically.
type TextFactory struct {
	logger    *zap.Logger
	processor *utils.TextProcessor
}

// NewTextFactory creates a new TextFactory
func NewTextFactory(logger *zap.Logger) *TextFactory {
	return &TextFactory{
		logger:    logger,
		processor: utils.NewTextProcessor(logger.Named("text")),
	}
}

// CreateTextProcessor returns the shared TextProcessor
func (f *TextFactory) CreateTextProcessor() *utils.TextProcessor {
	return f.processor
}

// CreateParser creates an RFC 822 parser for offline scoring
func (f *TextFactory) CreateParser() *rfc822.Parser {
	return rfc822.NewParser(f.processor, f.logger.Named("rfc822"))
}
