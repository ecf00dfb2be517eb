// Package server exposes latino evaluation over the network: a Connect
// (HTTP/JSON and binary protobuf) handler, a native gRPC server with
// reflection, and a language server for editors.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/tliron/commonlog"
	"google.golang.org/grpc"

	"github.com/chazu/latino/cache"
	"github.com/chazu/latino/vm"
)

var log = commonlog.GetLogger("latino.server")

// Server owns the session store and the transports that share it.
type Server struct {
	sessions *SessionStore
	eval     *EvalService
	mux      *http.ServeMux
	grpc     *grpc.Server

	http        *http.Server
	stopSweeper func()
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	cache         *cache.Cache
	vmOpts        []vm.Option
	sweepInterval time.Duration
	sessionTTL    time.Duration
}

// WithCache compiles requests through c.
func WithCache(c *cache.Cache) Option {
	return func(cfg *serverConfig) { cfg.cache = c }
}

// WithVMOptions applies opts to every session VM.
func WithVMOptions(opts ...vm.Option) Option {
	return func(cfg *serverConfig) { cfg.vmOpts = append(cfg.vmOpts, opts...) }
}

// WithSessionTTL expires sessions idle for longer than ttl, checking every
// interval.
func WithSessionTTL(interval, ttl time.Duration) Option {
	return func(cfg *serverConfig) {
		cfg.sweepInterval = interval
		cfg.sessionTTL = ttl
	}
}

// New creates a Server.
func New(opts ...Option) (*Server, error) {
	cfg := &serverConfig{
		sweepInterval: 5 * time.Minute,
		sessionTTL:    30 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sessions := NewSessionStore(cfg.vmOpts...)
	eval := NewEvalService(sessions, cfg.cache)

	gs, err := NewGRPCServer(eval)
	if err != nil {
		return nil, err
	}

	s := &Server{
		sessions: sessions,
		eval:     eval,
		mux:      http.NewServeMux(),
		grpc:     gs,
	}

	path, handler := eval.Handler()
	s.mux.Handle(path, handler)

	s.stopSweeper = sessions.StartSweeper(cfg.sweepInterval, cfg.sessionTTL)

	return s, nil
}

// Handler returns the Connect HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Sessions returns the server's session store.
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

// ListenAndServe serves Connect requests on addr until Shutdown.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.mux}
	log.Infof("latino eval server listening on %s", addr)
	log.Infof("  Connect (HTTP/JSON): http://%s%s", addr, EvaluateProcedure)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeGRPC serves native gRPC on lis until Shutdown.
func (s *Server) ServeGRPC(lis net.Listener) error {
	log.Infof("  gRPC (binary):       grpc://%s", lis.Addr())
	return s.grpc.Serve(lis)
}

// Shutdown stops both transports and destroys every session.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	s.grpc.GracefulStop()
	s.Stop()
	return err
}

// Stop releases the sessions without waiting for in-flight requests.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.sessions.Close()
}
