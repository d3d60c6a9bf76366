// sweep.go — сервис фоновой очистки устаревших актов.
//
// Очистка сканирует хранилище, разбирает метки времени из info.json
// и рекурсивно удаляет акты старше срока хранения. Повреждённая запись
// не прерывает проход: она логируется и пропускается.
//
// Запускается как горутина с периодическим тикером (BOT_SWEEP_INTERVAL)
// и не блокирует обработку сообщений пользователей.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rprz/defectbot/internal/storage/actindex"
	"github.com/rprz/defectbot/internal/storage/actstore"
)

// Prometheus метрики очистки
var (
	// sweepRunsTotal — количество запусков очистки.
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_sweep_runs_total",
		Help: "Общее количество запусков очистки устаревших актов",
	})

	// sweepDeletedTotal — количество удалённых актов.
	sweepDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_sweep_acts_deleted_total",
		Help: "Общее количество актов, удалённых очисткой",
	})

	// sweepErrorsTotal — ошибки при обработке отдельных актов.
	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_sweep_errors_total",
		Help: "Общее количество ошибок очистки",
	})

	// sweepDurationSeconds — длительность прохода очистки.
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bot_sweep_duration_seconds",
		Help:    "Длительность прохода очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	// storageBytes — объём хранилища актов на диске.
	storageBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_storage_bytes",
		Help: "Суммарный размер файлов хранилища актов в байтах",
	})
)

// SweepResult — результат одного прохода очистки.
type SweepResult struct {
	// Scanned — количество просмотренных актов
	Scanned int
	// Deleted — количество удалённых актов
	Deleted int
	// Corrupt — количество пропущенных повреждённых записей
	Corrupt int
	// Errors — количество ошибок удаления
	Errors int
	// Duration — длительность прохода
	Duration time.Duration
}

// SweepService — сервис фоновой очистки устаревших актов.
type SweepService struct {
	store         *actstore.Store
	idx           *actindex.Index
	retentionDays int
	interval      time.Duration
	logger        *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewSweepService создаёт сервис очистки.
func NewSweepService(
	store *actstore.Store,
	idx *actindex.Index,
	retentionDays int,
	interval time.Duration,
	logger *slog.Logger,
) *SweepService {
	return &SweepService{
		store:         store,
		idx:           idx,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger.With(slog.String("component", "sweep")),
	}
}

// Start запускает фоновую горутину очистки с периодическим тикером.
// Первый проход выполняется сразу после старта, в горутине.
func (sv *SweepService) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	sv.cancel = cancel

	go sv.run(sweepCtx)

	sv.logger.Info("Очистка запущена",
		slog.Int("retention_days", sv.retentionDays),
		slog.String("interval", sv.interval.String()),
	)
}

// Stop останавливает фоновый процесс очистки.
func (sv *SweepService) Stop() {
	if sv.cancel != nil {
		sv.cancel()
	}
	sv.logger.Info("Очистка остановлена")
}

// run — основной цикл фоновой горутины.
func (sv *SweepService) run(ctx context.Context) {
	sv.RunOnce()

	ticker := time.NewTicker(sv.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sv.RunOnce()
		}
	}
}

// RunOnce выполняет один проход очистки.
// Потокобезопасен: mutex защищает от параллельного запуска.
func (sv *SweepService) RunOnce() *SweepResult {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	start := time.Now()
	now := start.UTC()
	result := &SweepResult{}

	entries, corrupt := sv.store.ScanAll()
	result.Scanned = len(entries)
	result.Corrupt = corrupt

	for _, e := range entries {
		if !e.Meta.OlderThan(now, sv.retentionDays) {
			continue
		}

		if err := sv.store.Delete(e.Dir); err != nil {
			sv.logger.Error("Ошибка удаления устаревшего акта",
				slog.String("act_number", e.Meta.ActNumber),
				slog.String("dir", e.Dir),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}

		sv.idx.Remove(e.Meta.ActNumber)
		result.Deleted++

		sv.logger.Info("Удалён устаревший акт",
			slog.String("act_number", e.Meta.ActNumber),
			slog.Time("registered_at", e.Meta.RegisteredAt),
		)
	}

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepDeletedTotal.Add(float64(result.Deleted))
	sweepErrorsTotal.Add(float64(result.Errors + result.Corrupt))
	sweepDurationSeconds.Observe(result.Duration.Seconds())
	actsTotal.Set(float64(sv.idx.Len()))
	storageBytes.Set(float64(sv.store.UsageBytes()))

	sv.logger.Info("Очистка завершена",
		slog.Int("scanned", result.Scanned),
		slog.Int("deleted", result.Deleted),
		slog.Int("corrupt", result.Corrupt),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}
