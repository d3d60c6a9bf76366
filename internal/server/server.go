// Пакет server — служебный HTTP-сервер бота: Prometheus метрики
// и health endpoints для Kubernetes probes. Пользовательский трафик
// через него не ходит — бот общается с Telegram по long polling.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rprz/defectbot/internal/config"
)

// Server — служебный HTTP-сервер бота.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт служебный сервер с настроенными маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, health *HealthHandler) *Server {
	router := chi.NewRouter()

	router.Use(RequestLogger(logger))
	router.Use(MetricsMiddleware())

	router.Get("/metrics", promhttp.Handler().ServeHTTP)
	router.Get("/health/live", health.HealthLive)
	router.Get("/health/ready", health.HealthReady)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
		cfg:        cfg,
	}
}

// Start запускает сервер в отдельной горутине.
// Ошибка сервера (кроме штатной остановки) отправляется в errCh.
func (s *Server) Start(errCh chan<- error) {
	go func() {
		s.logger.Info("Служебный HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}()
}

// Shutdown останавливает сервер, дожидаясь завершения активных запросов
// в пределах таймаута из конфигурации.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при остановке HTTP-сервера: %w", err)
	}

	s.logger.Info("Служебный HTTP-сервер остановлен")
	return nil
}
