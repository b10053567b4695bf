package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chazu/jasm/asm"
	"github.com/chazu/jasm/resolver"
)

// Server is the assembly server. It serves Connect, gRPC and gRPC-Web on
// one port; HTTP/2 is accepted without TLS.
type Server struct {
	worker  *Worker
	service *AssemblerService
	mux     *http.ServeMux

	mu      sync.Mutex
	http    *http.Server
	stopped bool
}

// New creates a Server resolving against res. opts supplies the
// assembler defaults for every request.
func New(res *resolver.Resolver, opts asm.Options) *Server {
	worker := NewWorker(res)
	s := &Server{
		worker:  worker,
		service: NewAssemblerService(worker, opts),
		mux:     http.NewServeMux(),
	}
	path, handler := s.service.Handler()
	s.mux.Handle(path, handler)
	return s
}

// Service returns the underlying AssemblerService.
func (s *Server) Service() *AssemblerService { return s.service }

// Handler returns the HTTP handler serving every procedure.
func (s *Server) Handler() http.Handler { return s.mux }

// Reload replaces the resolver used by subsequent requests.
func (s *Server) Reload(res *resolver.Resolver) error {
	return s.worker.SetResolver(res)
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	var protocols http.Protocols
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)
	hs := &http.Server{
		Handler:           s.mux,
		Protocols:         &protocols,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.http = hs
	s.mu.Unlock()

	log.Infof("jasm server listening on %s", ln.Addr())
	log.Infof("  Connect: http://%s%s", ln.Addr(), AssembleProcedure)
	err := hs.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return fmt.Errorf("serve: %w", err)
}

// Stop shuts down the server. It is safe to call more than once, and
// before or concurrently with Serve.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopped = true
	hs := s.http
	s.mu.Unlock()
	if hs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hs.Shutdown(ctx)
	}
	s.worker.Stop()
}
