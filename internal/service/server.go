package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wisefido-risk/internal/config"

	"go.uber.org/zap"
)

// Server HTTP 服务器
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(cfg config.HTTPConfig, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return &Server{httpServer: s, logger: logger}
}

// Start 开始监听，正常关闭时返回 nil
func (s *Server) Start() error {
	s.logger.Info("Starting wisefido-risk HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 优雅关闭
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping wisefido-risk HTTP server")
	return s.httpServer.Shutdown(ctx)
}
