package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"xacto/pkg/a_misc/config"
	"xacto/pkg/db"
	"xacto/pkg/registry"
)

// Server accepts client connections and serves one transaction per
// connection.
type Server struct {
	cfg      *config.Config
	db       *db.Db
	registry *registry.Registry

	// OnFatal is called with invariant violations. The default exits the
	// process.
	OnFatal func(err error)

	mu       sync.Mutex
	listener net.Listener
	status   *http.Server

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	closed  atomic.Bool
}

func New(cfg *config.Config, d *db.Db) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		db:       d,
		registry: registry.New(),
		OnFatal: func(err error) {
			log.Fatal("invariant violated", zap.Error(err))
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// ListenAndServe listens on the configured address, starts the status server
// when one is configured and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.WithStack(err)
	}
	if s.cfg.StatusAddr != "" {
		s.startStatusServer()
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown closes it.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		l.Close()
		return nil
	}
	s.listener = l
	s.workers.Add(1)
	s.mu.Unlock()
	defer s.workers.Done()

	log.Info("xacto server listening", zap.Stringer("addr", l.Addr()))
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warn("accept failed, retrying", zap.Error(err))
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return errors.WithStack(err)
		}
		s.workers.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Registry exposes the client registry; for diagnostics.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// StatusHandler serves /status and /metrics.
func (s *Server) StatusHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) startStatusServer() {
	srv := &http.Server{Addr: s.cfg.StatusAddr, Handler: s.StatusHandler()}
	s.mu.Lock()
	s.status = srv
	s.mu.Unlock()

	go func() {
		log.Info("status server listening", zap.String("addr", s.cfg.StatusAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("status server failed", zap.Error(err))
		}
	}()
}

// Shutdown stops accepting, shuts every client connection down, waits for
// the workers to finish and stops the db. ctx bounds the wait for clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return nil
	}
	l, status := s.listener, s.status
	s.mu.Unlock()

	log.Info("xacto server shutting down")
	if l != nil {
		l.Close()
	}
	if status != nil {
		if err := status.Shutdown(ctx); err != nil {
			log.Warn("status server shutdown failed", zap.Error(err))
		}
	}

	// unblocks commits waiting on transactions that will never finish
	s.cancel()
	s.registry.ShutdownAll()
	err := s.registry.WaitForEmpty(ctx)
	if err != nil {
		log.Warn("clients still connected after shutdown timeout", zap.Int("count", s.registry.Count()), zap.Error(err))
	}
	s.workers.Wait()

	s.db.Stop()
	log.Info("xacto server stopped")
	return err
}
