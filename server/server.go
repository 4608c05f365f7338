package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/spektr-org/pivot/engine"
	"github.com/spektr-org/pivot/permission"
	"github.com/spektr-org/pivot/schema"
)

// ============================================================================
// SERVER: HTTP surface over the data source registry and sessions
// ============================================================================
// One registry is shared by every session. Each session has its own
// filters and its requests run one at a time. A role given in the X-Role
// header is resolved against the permission registry for the table named
// by ?table= (or the default table).
// ============================================================================

// RoleHeader carries the caller's role id.
const RoleHeader = "X-Role"

// ExportPrefix names exported files.
const ExportPrefix = "自助分析数据"

// Options configures a Server.
type Options struct {
	Table       string               // default table for permission lookups
	Schema      *schema.Config       // fixed schema for uploads; nil means discover
	Permissions *permission.Registry // nil disables role checks
	SessionTTL  time.Duration        // idle sessions are dropped after this; 0 keeps them
	Engine      []engine.Option
}

// Server is the pivot HTTP API.
type Server struct {
	router   chi.Router
	registry *engine.Registry
	sessions *sessionStore
	opts     Options

	mu     sync.RWMutex
	schema *schema.Config // schema of the loaded data source
}

// New creates a server reading from reg. sch describes the data already
// loaded into reg, if any.
func New(reg *engine.Registry, sch *schema.Config, opts Options) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		registry: reg,
		sessions: newSessionStore(),
		opts:     opts,
		schema:   sch,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/datasource", s.handleLoadDataSource)
		r.Get("/fields", s.handleFields)
		r.Get("/roles", s.handleRoles)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteSession)
			r.Get("/filters", s.withSession(s.handleListFilters))
			r.Post("/filters/{key}", s.withSession(s.handleInitFilter))
			r.Delete("/filters/{key}", s.withSession(s.handleRemoveFilter))
			r.Put("/filters/{key}/date-agg", s.withSession(s.handleDateAggregation))
			r.Post("/filters/{key}/toggle", s.withSession(s.handleToggleOption))
			r.Post("/filters/{key}/toggle-all", s.withSession(s.handleToggleSelectAll))
			r.Put("/filters/{key}/selection", s.withSession(s.handleSelection))
			r.Put("/filters/{key}/measure", s.withSession(s.handleMeasureFilter))
			r.Put("/filters/{key}/expanded", s.withSession(s.handleExpanded))
			r.Post("/query", s.withSession(s.handleQuery))
			r.Post("/export", s.withSession(s.handleExport))
		})
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.opts.SessionTTL > 0 {
		go s.expireSessions(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Pivot server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Printf("🛑 Pivot server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	}
}

func (s *Server) expireSessions(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SessionTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.expire(s.opts.SessionTTL); n > 0 {
				log.Printf("🧹 Pivot: expired %d idle sessions", n)
			}
		}
	}
}

// currentSchema returns the schema of the loaded data source.
func (s *Server) currentSchema() *schema.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema
}

// sessionOptions puts the schema's date field first so configured
// options can still override it.
func (s *Server) sessionOptions() []engine.Option {
	var opts []engine.Option
	if sch := s.currentSchema(); sch != nil {
		opts = append(opts, engine.WithDateField(sch.DateField()))
	}
	return append(opts, s.opts.Engine...)
}

// policy resolves the caller's access policy. It returns nil, nil when the
// request carries no role or role checks are disabled.
func (s *Server) policy(r *http.Request, fields []engine.FieldSpec) (*permission.Policy, error) {
	role := r.Header.Get(RoleHeader)
	if role == "" || s.opts.Permissions == nil {
		return nil, nil
	}
	table := r.URL.Query().Get("table")
	if table == "" {
		table = s.opts.Table
	}
	return s.opts.Permissions.Resolve(role, table, fields)
}
