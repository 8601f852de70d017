// Package metricsserver exposes a metrics handler on its own fasthttp listener.
package metricsserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pagegraph/internal/common/configtypes"
)

// MetricsHandler serves the metrics exposition
type MetricsHandler interface {
	ServeHTTP(ctx *fasthttp.RequestCtx)
}

// Server is a running metrics endpoint
type Server struct {
	srv    *fasthttp.Server
	ln     net.Listener
	done   chan struct{}
	logger *zap.Logger
}

// Start listens on cfg.Listen and serves handler under cfg.Path. It returns
// nil when metrics are disabled.
func Start(cfg configtypes.MetricsConfig, handler MetricsHandler, logger *zap.Logger) (*Server, error) {
	if !cfg.Enabled {
		logger.Info("Metrics collection disabled")
		return nil, nil
	}

	listen, err := configtypes.NormalizeListen(cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("invalid metrics listen address: %w", err)
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", listen, err)
	}
	return Serve(ln, cfg.Path, handler, logger), nil
}

// Serve serves handler under path on an existing listener
func Serve(ln net.Listener, path string, handler MetricsHandler, logger *zap.Logger) *Server {
	s := &Server{
		srv: &fasthttp.Server{
			Handler:            createMetricsHandler(path, handler),
			Name:               "pagegraph-metrics",
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       10 * time.Second,
			MaxRequestBodySize: 1 * 1024,
			TCPKeepalive:       true,
			TCPKeepalivePeriod: 30 * time.Second,
			MaxConnsPerIP:      100,
			MaxRequestsPerConn: 1000,
			Concurrency:        100,
		},
		ln:     ln,
		done:   make(chan struct{}),
		logger: logger,
	}

	go func() {
		defer close(s.done)
		logger.Info("Metrics server listening",
			zap.String("listen", ln.Addr().String()),
			zap.String("path", path))

		if err := s.srv.Serve(ln); err != nil {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	return s
}

// Addr returns the address the server listens on
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Shutdown stops accepting connections and waits for active ones to finish
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if err := s.srv.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func createMetricsHandler(metricsPath string, metrics MetricsHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == metricsPath {
			metrics.ServeHTTP(ctx)
			return
		}

		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString("Not Found")
	}
}
