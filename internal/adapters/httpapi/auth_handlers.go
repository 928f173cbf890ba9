package httpapi

import (
	"html/template"
	"net/http"

	"github.com/mikey/sift-mail/internal/core"
	"github.com/mikey/sift-mail/internal/oauthstate"
	"go.uber.org/zap"
)

var connectedPage = template.Must(template.New("connected").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Connected</title></head>
<body><h2>Connected</h2><p>Account: <strong>{{.}}</strong></p>
<p>You can close this tab and return to the app.</p></body></html>
`))

type accountRequest struct {
	Email string `json:"email" validate:"required"`
}

// handleAuthStart handles GET /auth/start
func (s *Server) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	state, err := s.state.Issue()
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthstate.CookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(s.state.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.accounts.AuthCodeURL(state), http.StatusFound)
}

// handleAuthCallback handles GET /auth/callback
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		s.handleServiceError(w, r, core.ValidationError("authorization was not granted").WithDetail("error", denied))
		return
	}

	var cookieValue string
	if c, err := r.Cookie(oauthstate.CookieName); err == nil {
		cookieValue = c.Value
	}
	if err := s.state.Verify(cookieValue, q.Get("state")); err != nil {
		s.logger.Warn("OAuth state rejected", zap.Error(err))
		s.handleServiceError(w, r, err)
		return
	}

	account, err := s.accounts.Connect(r.Context(), q.Get("code"))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthstate.CookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	if r.Header.Get("Accept") == "application/json" {
		writeJSON(w, s.logger, http.StatusOK, map[string]any{"ok": true, "email": account})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := connectedPage.Execute(w, account); err != nil {
		s.logger.Warn("Failed to render connected page", zap.Error(err))
	}
}

// handleAccountRevoke handles POST /account/revoke
func (s *Server) handleAccountRevoke(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	result, err := s.accounts.Revoke(r.Context(), req.Email)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, result)
}

// handleAccountDelete handles POST /account/delete
func (s *Server) handleAccountDelete(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	if err := s.accounts.Delete(r.Context(), req.Email); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]bool{"ok": true})
}
