// Package mediaserver is the static-file HTTP server collaborator named in
// spec.md §6: it serves files under a configured root so a `SetAVTransportURI`
// invocation built by the Control Engine has a `{MEDIA_URL}` to point at. It
// never touches device or profile state, only a directory root, wrapping
// plain http.FileServer.
package mediaserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Server serves the contents of Root over plain HTTP for LAN devices to
// fetch as media URLs.
type Server struct {
	Root   string
	Addr   string
	logger *zap.Logger

	httpServer *http.Server
	listener   net.Listener
}

// New builds a Server rooted at root, listening on addr (e.g. ":8123").
// root is resolved to an absolute path so the served tree is stable
// regardless of the caller's working directory.
func New(root, addr string, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving media root %q: %w", root, err)
	}
	return &Server{Root: absRoot, Addr: addr, logger: logger}, nil
}

// Start binds the listener and begins serving in the background. It returns
// once the listener is bound, so URL() is safe to call immediately after.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("binding media server on %s: %w", s.Addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(s.Root)))

	s.httpServer = &http.Server{Handler: s.withLogging(mux)}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Warn("mediaserver: serve exited", zap.Error(err))
		}
	}()

	s.logger.Info("mediaserver: serving", zap.String("root", s.Root), zap.String("addr", listener.Addr().String()))
	return nil
}

// URL returns the URL a device should fetch path from, e.g.
// "http://192.168.1.10:8123/song.mp3" for path "song.mp3".
func (s *Server) URL(hostIP, path string) string {
	if s.listener == nil {
		return ""
	}
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	return fmt.Sprintf("http://%s:%s/%s", hostIP, port, path)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("mediaserver: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
