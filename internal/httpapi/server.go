package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"booksearcher/internal/history"
	"booksearcher/internal/logging"
	"booksearcher/internal/searcher"
	"booksearcher/internal/services/prowlarr"
	"booksearcher/internal/sessioncache"
)

// ErrAlreadyRunning reports that another server holds the lock file.
var ErrAlreadyRunning = errors.New("another booksearcher server is already running")

// Searcher is the orchestrator surface the API exposes.
type Searcher interface {
	Search(ctx context.Context, req searcher.Request) (*searcher.Run, error)
	Grab(ctx context.Context, sessionID, position int) (searcher.GrabOutcome, error)
	GrabRelease(ctx context.Context, guid string, indexerID int) (searcher.GrabOutcome, error)
	Load(id int) (sessioncache.Session, error)
	Stats() searcher.Stats
}

// Sessions lists cached searches.
type Sessions interface {
	List() ([]sessioncache.Summary, error)
	Stats(ctx context.Context) (sessioncache.Stats, error)
}

// HistoryTotals reads ledger totals.
type HistoryTotals interface {
	Totals(ctx context.Context) (history.Totals, error)
}

// Config holds the listener settings.
type Config struct {
	Bind     string
	Token    string
	LockPath string
}

// Deps are the components behind the routes. History, Registry and
// ClientStats are optional.
type Deps struct {
	Searcher    Searcher
	Sessions    Sessions
	History     HistoryTotals
	Registry    *prometheus.Registry
	ClientStats func() prowlarr.Stats
}

// Server serves the BookSearcher HTTP API.
type Server struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	lock   *flock.Flock

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// New validates deps and builds a server. It does not listen yet.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Searcher == nil || deps.Sessions == nil {
		return nil, errors.New("httpapi: searcher and sessions are required")
	}
	cfg.Bind = strings.TrimSpace(cfg.Bind)
	if cfg.Bind == "" {
		return nil, errors.New("httpapi: bind address is empty")
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logging.NewComponentLogger(logger, "api-server"),
	}
	if path := strings.TrimSpace(cfg.LockPath); path != "" {
		s.lock = flock.New(path)
	}
	return s, nil
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /api/search", s.authorized(s.handleSearch))
	mux.Handle("POST /api/grab", s.authorized(s.handleGrab))
	mux.Handle("GET /api/sessions", s.authorized(s.handleSessions))
	mux.Handle("GET /api/sessions/{id}", s.authorized(s.handleSession))
	mux.Handle("GET /api/stats", s.authorized(s.handleStats))
	if s.deps.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	}
	return otelhttp.NewHandler(s.withRequestID(mux), "booksearcher-api")
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return authMiddleware(s.cfg.Token, next)
}

// Start takes the lock, listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("httpapi: server already started")
	}
	if s.lock != nil {
		if err := os.MkdirAll(filepath.Dir(s.cfg.LockPath), 0o755); err != nil {
			return fmt.Errorf("create lock directory: %w", err)
		}
		ok, err := s.lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, s.cfg.LockPath)
		}
	}

	listener, err := net.Listen("tcp", s.cfg.Bind)
	if err != nil {
		s.unlock()
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	server := s.server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.cfg.Token != ""),
	)
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down and releases the lock. It is safe to call more
// than once.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
	}
	s.server = nil
	s.listener = nil
	s.unlock()
	s.logger.Info("api server stopped")
}

func (s *Server) unlock() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed to release server lock", logging.Error(err))
	}
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}
