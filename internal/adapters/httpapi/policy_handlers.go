package httpapi

import (
	"context"
	"net/http"

	"github.com/mikey/sift-mail/internal/core"
)

type modeRequest struct {
	Email  string `json:"email" validate:"required"`
	Shadow *bool  `json:"shadow" validate:"required"`
}

type rulesRequest struct {
	Email   string   `json:"email" validate:"required"`
	Entries []string `json:"entries" validate:"required"`
}

// handleGetMode handles GET /mode
func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	account, err := accountQuery(r)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	mode, err := s.accounts.Mode(r.Context(), account)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, mode)
}

// handleSetMode handles POST /mode
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	mode, err := s.accounts.SetMode(r.Context(), req.Email, *req.Shadow)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, mode)
}

// handleGetRules handles GET /rules
func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	account, err := accountQuery(r)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	rules, err := s.accounts.Rules(r.Context(), account)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, rules)
}

// handleAddAllow handles POST /rules/allow
func (s *Server) handleAddAllow(w http.ResponseWriter, r *http.Request) {
	s.addRules(w, r, s.accounts.AddAllow)
}

// handleAddBlock handles POST /rules/block
func (s *Server) handleAddBlock(w http.ResponseWriter, r *http.Request) {
	s.addRules(w, r, s.accounts.AddBlock)
}

func (s *Server) addRules(w http.ResponseWriter, r *http.Request, add func(ctx context.Context, account string, entries []string) (core.RuleSet, error)) {
	var req rulesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	rules, err := add(r.Context(), req.Email, req.Entries)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, rules)
}

// handleAudit handles GET /audit
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	account, err := accountQuery(r)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", core.DefaultAuditLimit)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	items, err := s.accounts.Audit(r.Context(), account, limit)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"items": items})
}
