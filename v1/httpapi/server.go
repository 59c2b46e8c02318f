package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Server runs the API router.
type Server struct {
	cfg  Config
	http *http.Server
	log  Logger
}

func NewServer(cfg Config, handler http.Handler, log Logger) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg: cfg,
		log: log,
		http: &http.Server{
			Addr:         cfg.Address,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Start binds the listener synchronously so address errors surface at
// startup, then serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.log.Info("Starting HTTP server", nil, map[string]interface{}{"address": ln.Addr().String()})

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server stopped", err, nil)
		}
	}()
	return nil
}

// Shutdown waits for in-flight requests up to the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	s.log.Info("Shutting down HTTP server", nil, nil)
	return s.http.Shutdown(ctx)
}
