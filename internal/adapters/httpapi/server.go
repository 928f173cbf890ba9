package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mikey/sift-mail/internal/core"
	"github.com/mikey/sift-mail/internal/oauthstate"
	"github.com/mikey/sift-mail/internal/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options configures the HTTP server
type Options struct {
	ListenAddress   string
	APIKey          string
	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CookieSecure    bool
	DigestLimit     int
}

// Server exposes the policy engine over HTTP
type Server struct {
	accounts   *core.AccountService
	quarantine *core.QuarantineService
	mailbox    *core.MailboxService
	state      *oauthstate.Signer
	digest     ports.DigestSender
	opts       Options
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
	now        func() time.Time
}

// NewServer creates a new HTTP server and registers its routes
func NewServer(
	accounts *core.AccountService,
	quarantine *core.QuarantineService,
	mailbox *core.MailboxService,
	state *oauthstate.Signer,
	digest ports.DigestSender,
	opts Options,
	logger *zap.Logger,
) *Server {
	if opts.DigestLimit <= 0 {
		opts.DigestLimit = 50
	}
	s := &Server{
		accounts:   accounts,
		quarantine: quarantine,
		mailbox:    mailbox,
		state:      state,
		digest:     digest,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(metricsMiddleware)

	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Open endpoints
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/auth", func(r chi.Router) {
		r.Get("/start", s.handleAuthStart)
		r.Get("/callback", s.handleAuthCallback)
	})

	// Protected endpoints
	r.Group(func(r chi.Router) {
		r.Use(s.apiKeyMiddleware)

		r.Post("/account/revoke", s.handleAccountRevoke)
		r.Post("/account/delete", s.handleAccountDelete)

		r.Get("/mode", s.handleGetMode)
		r.Post("/mode", s.handleSetMode)

		r.Get("/rules", s.handleGetRules)
		r.Post("/rules/allow", s.handleAddAllow)
		r.Post("/rules/block", s.handleAddBlock)

		r.Route("/mailbox", func(r chi.Router) {
			r.Get("/profile", s.handleProfile)
			r.Get("/labels", s.handleLabels)
			r.Get("/messages", s.handleListMessages)
			r.Get("/messages/{id}", s.handleGetMessage)
			r.Post("/score", s.handleScore)
			r.Post("/quarantine", s.handleQuarantine)
			r.Post("/undo", s.handleUndo)
			r.Post("/batch-classify", s.handleBatchClassify)
		})

		r.Get("/digest", s.handleDigest)
		r.Post("/digest/send", s.handleDigestSend)
		r.Get("/audit", s.handleAudit)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, s.logger, http.StatusNotFound, string(core.ErrorTypeNotFound), "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, s.logger, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	return r
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts listening in the background
func (s *Server) Start() error {
	if s.opts.APIKey == "" {
		s.logger.Warn("No API key configured, protected endpoints will reject every request")
	}

	ln, err := net.Listen("tcp", s.opts.ListenAddress)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	s.logger.Info("HTTP API starting", zap.String("address", ln.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts the server down
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"ok": true, "time": s.now().Unix()})
}
