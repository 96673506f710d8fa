// Package metrics exposes the process's Prometheus registry over HTTP.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthFunc reports whether the bot is able to serve.
type HealthFunc func(ctx context.Context) error

type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
}

func NewHandler(health HealthFunc, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if health == nil {
			return
		}
		if err := health(r.Context()); err != nil {
			logger.Warn("Health check failed", zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	return mux
}

// Start listens on addr and serves in the background.
func Start(addr string, health HealthFunc, logger *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewHandler(health, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}

	logger.Info("Starting metrics server", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
