// Package api отдает сохраненные сигналы и метрики по HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/skalibog/bfsignals/internal/metrics"
	"github.com/skalibog/bfsignals/internal/storage"
	"github.com/skalibog/bfsignals/pkg/logger"
)

// Server HTTP API только для чтения
type Server struct {
	echo *echo.Echo
	addr string
}

// NewServer создает сервер. journal и rec могут быть nil.
func NewServer(addr string, store storage.SignalStore, journal storage.Journal, rec *metrics.Recorder) *Server {
	if journal == nil {
		journal = storage.NopJournal{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogging())

	h := &handler{store: store, journal: journal}
	h.register(e)
	e.GET("/metrics", echo.WrapHandler(rec.Handler()))

	return &Server{echo: e, addr: addr}
}

// Handler возвращает http.Handler, удобно для тестов
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start слушает адрес до отмены контекста, затем корректно останавливается
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP сервер запущен", zap.String("addr", s.addr))
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP сервера: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки HTTP сервера: %w", err)
	}
	logger.Info("HTTP сервер остановлен")
	return nil
}

func requestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Debug("HTTP запрос",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)))
			return nil
		}
	}
}
