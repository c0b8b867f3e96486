package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
)

// Start serves the API until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	httpServer := s.setupHTTPServer()

	if s.config.TLS.Enabled() {
		if err := s.setupCertificateManager(ctx); err != nil {
			return err
		}
		tlsConfig, err := s.buildTLSConfig()
		if err != nil {
			s.stopCertificateManager()
			return err
		}
		httpServer.TLSConfig = tlsConfig
	}

	if err := s.startVaultWatchers(ctx); err != nil {
		s.stopBackground()
		return err
	}

	listener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		s.stopBackground()
		return fmt.Errorf("server failed to listen on %s: %w", httpServer.Addr, err)
	}

	s.displayServerInfo(listener.Addr().String())
	return s.serveWithGracefulShutdown(ctx, httpServer, listener)
}

// setupHTTPServer creates and configures the HTTP server
func (s *Server) setupHTTPServer() *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(s.config.Host, s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// serveWithGracefulShutdown serves on listener and handles graceful shutdown
func (s *Server) serveWithGracefulShutdown(ctx context.Context, server *http.Server, listener net.Listener) error {
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting HTTP server",
			"address", listener.Addr().String(),
			"tls_enabled", server.TLSConfig != nil)

		var err error
		if server.TLSConfig != nil {
			// Certificates come from TLSConfig.GetCertificate.
			err = server.ServeTLS(listener, "", "")
		} else {
			err = server.Serve(listener)
		}
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err, ok := <-serverErrors:
		s.stopBackground()
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("Shutdown requested, starting graceful shutdown", "reason", context.Cause(ctx))
		return s.performGracefulShutdown(server)
	}
}

// performGracefulShutdown drains in-flight requests, then stops background workers
func (s *Server) performGracefulShutdown(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server...")
	err := server.Shutdown(shutdownCtx)
	s.stopBackground()

	if err != nil {
		s.logger.LogError(err, "Failed to shutdown server gracefully, forcing close")
		return server.Close()
	}
	s.logger.Info("Server shutdown completed successfully")
	return nil
}

// stopBackground stops watchers, the rate limiter cleanup and the session store
func (s *Server) stopBackground() {
	for _, vw := range s.vaultWatchers {
		if err := vw.Stop(); err != nil {
			s.logger.LogError(err, "Failed to stop Vault watcher")
		}
	}
	s.stopCertificateManager()

	if s.rateLimiter != nil {
		s.rateLimiter.Close()
		s.logger.Debug("Rate limiter cleaned up")
	}
	s.sessions.Stop()
}

func (s *Server) stopCertificateManager() {
	if s.certManager == nil {
		return
	}
	if err := s.certManager.Stop(); err != nil {
		s.logger.LogError(err, "Failed to stop certificate manager")
	}
}
