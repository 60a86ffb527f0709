package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voicewire/voicewire/internal/health"
	"github.com/voicewire/voicewire/internal/observe"
	"github.com/voicewire/voicewire/internal/session"
)

// reapInterval is how often the idle-session reaper scans.
const reapInterval = time.Minute

// ServerConfig configures a Server.
type ServerConfig struct {
	// Addr is the listen address, host:port.
	Addr string

	// IdleSessionMax destroys sessions idle longer than this. Zero disables
	// the reaper.
	IdleSessionMax time.Duration

	// Health serves the liveness and readiness probes. Optional.
	Health *health.Handler

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// Server accepts event-socket connections and runs one Router loop per
// client. It also serves the Prometheus scrape endpoint and health probes on
// the same listener.
type Server struct {
	cfg     ServerConfig
	store   *session.Store
	router  *Router
	machine *Machine
	log     *slog.Logger
	metrics *observe.Metrics
	httpSrv *http.Server
}

// NewServer wires the HTTP mux and the event socket endpoint.
func NewServer(cfg ServerConfig, store *session.Store, machine *Machine) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	s := &Server{
		cfg:     cfg,
		store:   store,
		machine: machine,
		router:  NewRouter(machine, cfg.Logger),
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleSocket)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /sessions", s.handleSessions)
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("listening", "addr", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway: serve: %w", err)
		}
		return nil
	})

	if s.cfg.IdleSessionMax > 0 {
		g.Go(func() error {
			s.reapLoop(ctx)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// handleSocket upgrades to a websocket and runs the session's event loop. The
// session lives for the duration of the connection.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := r.URL.Query().Get("session")
	if id == "" {
		id = uuid.NewString()
	}
	sess, existed := s.store.GetOrCreate(id)
	if existed {
		// One socket per session: a reconnect replaces the old attachment.
		s.log.Info("session reattached", "session_id", id)
	} else {
		s.metrics.ActiveSessions.Add(r.Context(), 1)
	}
	s.log.Info("client connected", "session_id", id, "remote", r.RemoteAddr)

	client := s.machine.NewClient(sess, newWSTransport(conn))
	err = s.router.Serve(r.Context(), conn, client)

	// The reaper may have destroyed the session already; only count once.
	if s.store.Get(id) != nil {
		s.store.Destroy(id)
		s.machine.Forget(id)
		s.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("client disconnected", "session_id", id, "error", err)
		conn.Close(websocket.StatusInternalError, "event loop error")
		return
	}
	s.log.Info("client disconnected", "session_id", id)
	conn.Close(websocket.StatusNormalClosure, "session closed")
}

// handleSessions serves session diagnostics as JSON.
func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(s.store.Snapshots()); err != nil {
		s.log.Warn("session snapshot encode failed", "error", err)
	}
}

// reapLoop destroys sessions that have gone quiet.
func (s *Server) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range s.store.ReapIdle(s.cfg.IdleSessionMax) {
				s.machine.Forget(id)
				s.metrics.ActiveSessions.Add(ctx, -1)
				s.log.Info("idle session reaped", "session_id", id)
			}
		}
	}
}
