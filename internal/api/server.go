// Package api provides the HTTP surface of mailsift: the session
// gate, the search and export endpoints, and result rendering.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/afpdata/mailsift/internal/config"
	"github.com/afpdata/mailsift/internal/query"
)

// sessionCookie carries the session token between requests.
const sessionCookie = "mailsift_session"

// Server represents the HTTP server.
type Server struct {
	cfg         *config.Config
	engine      query.Engine
	cache       *query.ResultCache
	sessions    *SessionStore
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter

	// storeErr is the configuration error resolved once at startup.
	// When set, search endpoints answer with a persistent warning
	// instead of attempting queries.
	storeErr error

	now func() time.Time
}

// NewServer creates the HTTP server. engine may be nil when the store
// configuration is incomplete; pass the validation error as storeErr.
func NewServer(cfg *config.Config, engine query.Engine, cache *query.ResultCache, logger *slog.Logger, storeErr error) *Server {
	s := &Server{
		cfg:      cfg,
		engine:   engine,
		cache:    cache,
		sessions: NewSessionStore(12 * time.Hour),
		logger:   logger,
		storeErr: storeErr,
		now:      time.Now,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	if len(s.cfg.Server.CORSOrigins) > 0 {
		r.Use(CORSMiddleware(CORSConfig{
			AllowedOrigins:   s.cfg.Server.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Cookie"},
			AllowCredentials: s.cfg.Server.CORSCredentials,
			MaxAge:           86400,
		}))
	}

	s.rateLimiter = NewRateLimiter(10, 20)
	r.Use(RateLimitMiddleware(s.rateLimiter))

	// Health check and the gate itself are reachable without a session
	r.Get("/health", s.handleHealth)
	r.Post("/session", s.handleLogin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.gateMiddleware)

		r.Get("/search", s.handleSearch)
		r.Get("/messages/{id}", s.handleGetMessage)
		r.Get("/categories", s.handleCategories)
		r.Get("/export", s.handleExport)
	})

	return r
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Server.BindAddr, strconv.Itoa(s.cfg.Server.Port))

	if s.cfg.Server.SessionSecret == "" {
		s.logger.Warn("session gate disabled: set [server] session_secret in config.toml")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// SessionJanitor sweeps idle sessions until ctx is cancelled. Run it
// alongside the server so abandoned sessions don't pin their result
// sets for the process lifetime.
func (s *Server) SessionJanitor(ctx context.Context, every time.Duration) {
	s.sessions.Janitor(ctx, every)
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// gateMiddleware enforces the session gate. Once a session has passed
// the secret check, that success is cached for the session's lifetime.
// With no secret configured, the gate is open but sessions still track
// last results for export.
func (s *Server) gateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := s.sessionFrom(r)

		if s.cfg.Server.SessionSecret != "" {
			if sess == nil || !sess.IsAuthenticated() {
				writeError(w, http.StatusUnauthorized, "authentication_required", "Enter the access password via POST /session")
				return
			}
		} else if sess == nil {
			sess = s.sessions.Create()
			s.setSessionCookie(w, sess)
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

// handleLogin checks the shared secret and marks the session
// authenticated.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Secret string `json:"secret"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Expected JSON body with a secret field")
		return
	}

	if s.cfg.Server.SessionSecret != "" &&
		subtle.ConstantTimeCompare([]byte(body.Secret), []byte(s.cfg.Server.SessionSecret)) != 1 {
		s.logger.Warn("session gate mismatch", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "authentication_failed", "Incorrect password")
		return
	}

	sess := s.sessionFrom(r)
	if sess == nil {
		sess = s.sessions.Create()
	}
	sess.Authenticate()
	s.setSessionCookie(w, sess)

	writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": true})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) sessionFrom(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	return s.sessions.Get(cookie.Value)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type sessionKey struct{}

func withSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

func sessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionKey{}).(*Session)
	return sess
}
