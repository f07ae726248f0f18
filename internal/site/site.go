// Package site serves the operator HTTP endpoints: a health check and an
// optional static directory.
package site

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/intakebot/core/logger"
)

// Pinger checks database reachability; *sqlx.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures New.
type Options struct {
	// Listen is the address to bind, e.g. ":8080". Empty disables the server.
	Listen string
	// Dir is served on "/" when set.
	Dir string
	DB  Pinger
	// Cursor reports the next update id the bot will request.
	Cursor func() int
	// Pending reports queued outbound jobs.
	Pending func() int
}

// Server is the operator HTTP server.
type Server struct {
	opts Options
	srv  *http.Server
	done chan error
}

// New builds a Server; it does not listen until Start.
func New(opts Options) *Server {
	s := &Server{opts: opts}
	s.srv = &http.Server{
		Addr:              opts.Listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Enabled reports whether a listen address is configured.
func (s *Server) Enabled() bool {
	return s != nil && s.opts.Listen != ""
}

// Routes returns the router of the site.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestLog)

	r.Get("/health", s.health)
	if s.opts.Dir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.opts.Dir)))
	}
	return r
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("site: listen %s: %w", s.opts.Listen, err)
	}
	s.done = make(chan error, 1)
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			logger.Error(ctx, "site", "serve", logger.Err(err))
		}
		s.done <- err
	}()
	logger.Info(ctx, "site", "listen",
		slog.String("status", "ok"),
		slog.String("listen", ln.Addr().String()),
	)
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.Enabled() || s.done == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("site: shutdown: %w", err)
	}
	return <-s.done
}

type healthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Cursor  *int              `json:"cursor,omitempty"`
	Pending *int              `json:"pending,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Checks: map[string]string{"api": "ok"}}
	code := http.StatusOK

	if s.opts.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.DB.PingContext(ctx); err != nil {
			logger.Warn(r.Context(), "site", "health.db", logger.Err(err))
			resp.Status = "degraded"
			resp.Checks["database"] = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			resp.Checks["database"] = "ok"
		}
	}
	if s.opts.Cursor != nil {
		c := s.opts.Cursor()
		resp.Cursor = &c
	}
	if s.opts.Pending != nil {
		p := s.opts.Pending()
		resp.Pending = &p
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := logger.WithRID(r.Context(), chiMiddleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(ctx))
		logger.Debug(ctx, "site", "request",
			slog.String("op", r.Method+" "+r.URL.Path),
			slog.Int("http_code", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
