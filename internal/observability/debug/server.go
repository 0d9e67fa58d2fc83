// Package debug serves a loopback HTTP endpoint with pprof, a liveness probe
// and a JSON dump of the scheduler state.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"orderbot/internal/dispatch"
	rtsup "orderbot/internal/runtime/supervisor"
	logx "orderbot/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

type Config struct {
	Enabled bool
	Addr    string
	// AllowRemote permits a non-loopback bind. There is no auth.
	AllowRemote bool
}

// SnapshotFunc returns the current scheduler state.
type SnapshotFunc func() dispatch.Snapshot

type Server struct {
	snap SnapshotFunc
	log  logx.Logger

	mu  sync.Mutex
	cfg Config
	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, snap SnapshotFunc, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, snap: snap, log: log}
}

// Addr is the bound address, or "" when not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start binds and serves in the background. It is a no-op when disabled or
// already running.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.srv != nil {
		return nil
	}
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if !s.cfg.AllowRemote && !isLoopbackAddr(addr) {
		return errors.New("debug server refused to start: non-loopback addr requires allow_remote")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(s.log))
	sup.Go("http.serve", func(context.Context) error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	s.ln, s.srv, s.sup = ln, srv, sup
	s.log.Info("debug server started", logx.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts the server down gracefully within ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.ln, s.srv, s.sup = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	sup.Cancel()
	_ = sup.Wait(ctx)
	s.log.Info("debug server stopped")
	return err
}

// Reconfigure restarts the server when the bind settings change.
func (s *Server) Reconfigure(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	if running && (!cfg.Enabled || prev.Addr != cfg.Addr || prev.AllowRemote != cfg.AllowRemote) {
		if err := s.Stop(ctx); err != nil {
			return err
		}
		running = false
	}
	if !running && cfg.Enabled {
		return s.Start(ctx)
	}
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.HandleFunc("/debug/pprof/", hpprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	return mux
}

type orderView struct {
	ID       int    `json:"id"`
	Class    string `json:"class"`
	Status   string `json:"status"`
	WorkerID int    `json:"worker_id,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

type workerView struct {
	ID      int    `json:"id"`
	Status  string `json:"status"`
	OrderID int    `json:"order_id,omitempty"`
}

type snapshotView struct {
	Now            time.Time      `json:"now"`
	ProcessingTime string         `json:"processing_time"`
	Pending        []orderView    `json:"pending"`
	Processing     []orderView    `json:"processing"`
	Complete       []orderView    `json:"complete"`
	Workers        []workerView   `json:"workers"`
	Stats          dispatch.Stats `json:"stats"`
}

func ordersView(in []dispatch.Order) []orderView {
	out := make([]orderView, 0, len(in))
	for _, o := range in {
		out = append(out, orderView{ID: o.ID, Class: o.Class.String(), Status: o.Status.String(), WorkerID: o.WorkerID, Attempts: o.Attempts})
	}
	return out
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.snap()
	v := snapshotView{
		Now:            snap.Now,
		ProcessingTime: snap.ProcessingTime.String(),
		Pending:        ordersView(snap.Pending),
		Processing:     ordersView(snap.Processing),
		Complete:       ordersView(snap.Complete),
		Workers:        make([]workerView, 0, len(snap.Workers)),
		Stats:          snap.Stats,
	}
	for _, wk := range snap.Workers {
		v.Workers = append(v.Workers, workerView{ID: wk.ID, Status: wk.Status.String(), OrderID: wk.OrderID})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("snapshot encode failed", logx.Err(err))
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || strings.TrimSpace(h) == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
