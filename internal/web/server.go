// Package web provides the HTTP API for the lead import wizard.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/JonMunkholm/leadflow/internal/config"
	"github.com/JonMunkholm/leadflow/internal/core"
	mw "github.com/JonMunkholm/leadflow/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server for the import API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
	limiter *rateLimiter
}

// NewServer creates a Server for service configured by cfg.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.limiter = newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(s.limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.Security))
		r.Use(mw.Tenant(s.cfg.Security))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

			r.Get("/fields", s.handleFields)
			r.Get("/campaigns", s.handleCampaigns)
			r.Get("/templates", s.handleListTemplates)
			r.Delete("/templates/{templateID}", s.handleDeleteTemplate)

			r.Post("/imports", s.handleCreateImport)
			r.Get("/imports/history", s.handleHistory)
			r.Get("/imports/{id}", s.handleGetImport)
			r.Delete("/imports/{id}", s.handleDeleteImport)
			r.Post("/imports/{id}/file", s.handleUploadFile)
			r.Put("/imports/{id}/mapping", s.handleUpdateMapping)
			r.Post("/imports/{id}/mapping/template", s.handleApplyTemplate)
			r.Get("/imports/{id}/templates", s.handleMatchTemplates)
			r.Post("/imports/{id}/templates", s.handleSaveTemplate)
			r.Post("/imports/{id}/preview", s.handleConfirmMapping)
			r.Get("/imports/{id}/preview", s.handlePreview)
			r.Post("/imports/{id}/back", s.handleBack)
			r.Post("/imports/{id}/reset", s.handleReset)
			r.Get("/imports/{id}/invalid.csv", s.handleInvalidRows)
		})

		// Commits are bounded by the import commit timeout instead of the
		// request timeout.
		r.Post("/imports/{id}/commit", s.handleCommit)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter is a fixed-window request limiter per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
	done     chan struct{}
	once     sync.Once
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup drops visitors idle for two windows until stop is called.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
		}
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() { close(rl.done) })
}

// allow consumes a token for ip and reports whether one was available.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok || time.Since(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: time.Now()}
		return true
	}
	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// RemoteAddr has already been rewritten by TrustedRealIP.
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}

		if !rl.allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			respondErrorJSON(w, core.MapError(errRateLimited), http.StatusTooManyRequests, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
