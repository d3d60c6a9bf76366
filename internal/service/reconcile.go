// reconcile.go — периодическая сверка индекса актов с диском.
//
// Индекс в памяти может разойтись с хранилищем после ручного
// вмешательства в каталоги или сбоя. Сверка перестраивает индекс
// из info.json и логирует расхождения.
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

// Prometheus метрики сверки
var (
	// reconcileRunsTotal — количество запусков сверки.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_reconcile_runs_total",
		Help: "Общее количество запусков сверки индекса",
	})

	// reconcileCorruptTotal — повреждённые записи, найденные сверкой.
	reconcileCorruptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_reconcile_corrupt_total",
		Help: "Общее количество повреждённых записей, найденных сверкой",
	})

	// reconcileDurationSeconds — длительность сверки.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bot_reconcile_duration_seconds",
		Help:    "Длительность сверки индекса в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})
)

// ReconcileService — сервис периодической сверки индекса с диском.
type ReconcileService struct {
	store    *actstore.Store
	idx      *actindex.Index
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	store *actstore.Store,
	idx *actindex.Index,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		store:    store,
		idx:      idx,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину сверки.
func (rs *ReconcileService) Start(ctx context.Context) {
	recCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel

	go rs.run(recCtx)

	rs.logger.Info("Сверка индекса запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновый процесс сверки.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("Сверка индекса остановлена")
}

func (rs *ReconcileService) run(ctx context.Context) {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.RunOnce()
		}
	}
}

// RunOnce выполняет одну сверку: перестраивает индекс из хранилища.
func (rs *ReconcileService) RunOnce() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	start := time.Now()
	before := rs.idx.Len()

	corrupt := rs.idx.BuildFromStore(rs.store)
	after := rs.idx.Len()

	duration := time.Since(start)

	reconcileRunsTotal.Inc()
	reconcileCorruptTotal.Add(float64(corrupt))
	reconcileDurationSeconds.Observe(duration.Seconds())
	actsTotal.Set(float64(after))

	if before != after {
		rs.logger.Warn("Сверка обнаружила расхождение индекса с диском",
			slog.Int("before", before),
			slog.Int("after", after),
		)
	}

	rs.logger.Info("Сверка индекса завершена",
		slog.Int("acts", after),
		slog.Int("corrupt", corrupt),
		slog.Duration("duration", duration),
	)
}
