// Точка входа бота учёта несоответствий РПРЗ.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rprz/defectbot/internal/config"
	"github.com/rprz/defectbot/internal/domain/session"
	"github.com/rprz/defectbot/internal/server"
	"github.com/rprz/defectbot/internal/service"
	"github.com/rprz/defectbot/internal/storage/actindex"
	"github.com/rprz/defectbot/internal/storage/actstore"
	"github.com/rprz/defectbot/internal/transport/telegram"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Бот запускается",
		slog.String("version", config.Version),
		slog.String("storage_dir", cfg.StorageDir),
		slog.Int("retention_days", cfg.RetentionDays),
		slog.Int("metrics_port", cfg.MetricsPort),
	)

	// --- Инициализация компонентов ---

	// 1. Хранилище актов
	store, err := actstore.New(cfg.StorageDir, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. In-memory индекс номеров актов
	idx := actindex.New(logger)
	corrupt := idx.BuildFromStore(store)
	logger.Info("Индекс актов построен",
		slog.Int("acts", idx.Len()),
		slog.Int("corrupt", corrupt),
	)

	// 3. Сессии диалогов
	sessions := session.NewStore(cfg.SessionTimeout)

	// 4. Клиент Telegram
	tg, err := telegram.New(cfg.Token, cfg.TelegramAPIURL, logger)
	if err != nil {
		logger.Error("Ошибка подключения к Telegram", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Сервисный слой
	regSvc := service.NewRegistrationService(sessions, store, idx, tg, tg, logger)
	actsSvc := service.NewActsService(idx, tg, logger)
	router := service.NewRouter(sessions, regSvc, actsSvc, tg, logger)

	// 6. Фоновые процессы
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6.1 Очистка устаревших актов
	sweepSvc := service.NewSweepService(store, idx, cfg.RetentionDays, cfg.SweepInterval, logger)
	sweepSvc.Start(ctx)

	// 6.2 Сверка индекса с диском
	reconcileSvc := service.NewReconcileService(store, idx, cfg.ReconcileInterval, logger)
	reconcileSvc.Start(ctx)

	// 6.3 topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(
		cfg.DephealthGroup,
		cfg.DephealthDepName,
		cfg.TelegramAPIURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("telegram_api_url", cfg.TelegramAPIURL),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 7. Служебный HTTP-сервер: /metrics и health endpoints
	health := server.NewHealthHandler(cfg.StorageDir, idx)
	srv := server.New(cfg, logger, health)

	errCh := make(chan error, 1)
	srv.Start(errCh)

	// 8. Цикл long polling в отдельной горутине
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		tg.Run(ctx, router.Handle)
	}()

	// --- Ожидание сигнала завершения ---

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("Ошибка служебного сервера", slog.String("error", err.Error()))
	}

	// --- Graceful shutdown ---

	cancel()
	<-pollDone

	sweepSvc.Stop()
	reconcileSvc.Stop()
	if dephealthErr == nil {
		dephealthSvc.Stop()
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("Ошибка остановки служебного сервера", slog.String("error", err.Error()))
	}

	logger.Info("Бот остановлен")
}
