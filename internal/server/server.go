// internal/server/server.go
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/signalnine/oncall/internal/config"
	"github.com/signalnine/oncall/internal/history"
	"github.com/signalnine/oncall/internal/metrics"
)

// Server is the analysis HTTP API
type Server struct {
	cfg    config.ServerConfig
	engine *gin.Engine
	server *http.Server
	log    zerolog.Logger
}

// New builds the gin engine and HTTP server. db and m may be nil.
func New(cfg config.ServerConfig, runner Runner, db *history.DB, m *metrics.Handler, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:    cfg,
		engine: gin.New(),
		log:    log.With().Str("component", "server").Logger(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.loggingMiddleware())

	NewHandler(runner, db, cfg.MaxConcurrent, cfg.ResultTTL, log).Register(s.engine)
	s.engine.GET("/metrics", gin.WrapH(m.HTTPHandler()))

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the engine for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and serves in the background until
// ctx is done. It returns the bound address, which differs from the
// configured one when the port is 0.
func (s *Server) Start(ctx context.Context) (string, <-chan error, error) {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return "", nil, fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}

	tlsOn := s.cfg.TLSCert != "" && s.cfg.TLSKey != ""
	if tlsOn {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCert, s.cfg.TLSKey)
		if err != nil {
			ln.Close()
			return "", nil, fmt.Errorf("load TLS cert: %w", err)
		}
		s.server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	addr := ln.Addr().String()
	s.log.Info().Str("addr", addr).Bool("tls", tlsOn).Msg("API server starting")

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsOn {
			err = s.server.ServeTLS(ln, "", "")
		} else {
			err = s.server.Serve(ln)
		}
		if err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("API server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	return addr, errCh, nil
}

// Run serves until ctx is cancelled or the listener fails
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	_, errCh, err := s.Start(ctx)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		// drain so Shutdown completes before returning
		for range errCh {
		}
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP Request")
	}
}
