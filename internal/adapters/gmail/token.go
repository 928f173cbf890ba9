package gmail

import (
	"context"
	"sync"

	"github.com/mikey/sift-mail/internal/core"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

func toOAuthToken(r *core.TokenRecord) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
		Expiry:       r.Expiry,
	}
}

func fromOAuthToken(t *oauth2.Token) *core.TokenRecord {
	record := &core.TokenRecord{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
	if scope, ok := t.Extra("scope").(string); ok {
		record.Scope = scope
	}
	return record
}

// persistingTokenSource stores refreshed credentials so the next request of
// the account starts from the newest access token.
type persistingTokenSource struct {
	base    oauth2.TokenSource
	account string
	tokens  *core.TokenStore
	logger  *zap.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last {
		return tok, nil
	}
	s.last = tok.AccessToken

	if err := s.tokens.Save(context.Background(), s.account, fromOAuthToken(tok)); err != nil {
		s.logger.Warn("Failed to persist refreshed token",
			zap.String("account", s.account),
			zap.Error(err))
	} else {
		s.logger.Debug("Persisted refreshed token", zap.String("account", s.account))
	}
	return tok, nil
}
