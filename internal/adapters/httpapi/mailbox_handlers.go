package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mikey/sift-mail/internal/adapters/digest"
	"github.com/mikey/sift-mail/internal/core"
	"go.uber.org/zap"
)

type messageRequest struct {
	Email     string `json:"email" validate:"required"`
	MessageID string `json:"message_id" validate:"required"`
	LabelName string `json:"label_name"`
}

type batchRequest struct {
	Email               string   `json:"email" validate:"required"`
	Label               string   `json:"label"`
	MaxResults          int      `json:"max_results" validate:"gte=0"`
	QuarantineThreshold *float64 `json:"quarantine_threshold" validate:"omitempty,gte=0,lte=1"`
	DryRun              *bool    `json:"dry_run"`
	QuarantineLabel     string   `json:"quarantine_label"`
}

type digestSendRequest struct {
	Email     string `json:"email" validate:"required"`
	Recipient string `json:"recipient" validate:"omitempty,email"`
	Label     string `json:"label"`
	Limit     int    `json:"limit" validate:"gte=0"`
}

// handleProfile handles GET /mailbox/profile
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	account, err := accountQuery(r)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	profile, err := s.mailbox.Profile(r.Context(), account)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, profile)
}

// handleLabels handles GET /mailbox/labels
func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	account, err := accountQuery(r)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	labels, err := s.mailbox.Labels(r.Context(), account)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"labels": labels})
}

// handleListMessages handles GET /mailbox/messages
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	account, err := accountQuery(r)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	max, err := intQuery(r, "max_results", 0)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	label := core.InboxLabel
	if r.URL.Query().Has("label") {
		label = r.URL.Query().Get("label")
	}
	msgs, err := s.mailbox.ListMessages(r.Context(), account, label, r.URL.Query().Get("q"), max)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"messages": msgs})
}

// handleGetMessage handles GET /mailbox/messages/{id}
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	account, err := accountQuery(r)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	msg, err := s.mailbox.GetMessage(r.Context(), account, chi.URLParam(r, "id"))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, msg)
}

// handleScore handles POST /mailbox/score
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	scored, err := s.mailbox.Score(r.Context(), req.Email, req.MessageID)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, scored)
}

// handleQuarantine handles POST /mailbox/quarantine
func (s *Server) handleQuarantine(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	decision, err := s.quarantine.Quarantine(r.Context(), req.Email, req.MessageID, req.LabelName)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, decision)
}

// handleUndo handles POST /mailbox/undo
func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	decision, err := s.quarantine.Undo(r.Context(), req.Email, req.MessageID, req.LabelName)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, decision)
}

// handleBatchClassify handles POST /mailbox/batch-classify
func (s *Server) handleBatchClassify(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleServiceError(w, r, err)
		return
	}

	policy := s.quarantine.Policy()
	threshold := policy.Threshold
	if req.QuarantineThreshold != nil {
		threshold = *req.QuarantineThreshold
	}
	dryRun := true
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}

	result, err := s.quarantine.Classify(r.Context(), core.BatchRequest{
		Account:         req.Email,
		SourceLabel:     req.Label,
		MaxResults:      req.MaxResults,
		Threshold:       threshold,
		DryRun:          dryRun,
		QuarantineLabel: req.QuarantineLabel,
	})
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, result)
}

// handleDigest handles GET /digest
func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	account, err := accountQuery(r)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", s.opts.DigestLimit)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	asHTML, err := boolQuery(r, "html")
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}

	items, err := s.mailbox.Digest(r.Context(), account, r.URL.Query().Get("label"), limit)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}

	if !asHTML {
		writeJSON(w, s.logger, http.StatusOK, map[string]any{"items": items})
		return
	}
	body, err := digest.RenderHTML(account, items)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("Failed to write digest page", zap.Error(err))
	}
}

// handleDigestSend handles POST /digest/send
func (s *Server) handleDigestSend(w http.ResponseWriter, r *http.Request) {
	if s.digest == nil {
		writeError(w, s.logger, http.StatusNotImplemented, "not_configured", "digest delivery is not configured", nil)
		return
	}
	var req digestSendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = s.opts.DigestLimit
	}

	items, err := s.mailbox.Digest(r.Context(), req.Email, req.Label, limit)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	recipient := req.Recipient
	if recipient == "" {
		recipient = req.Email
	}
	if err := s.digest.Send(r.Context(), req.Email, recipient, items); err != nil {
		s.handleServiceError(w, r, core.ProviderError("send digest", err))
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"ok": true, "sent": len(items), "recipient": recipient})
}
