// health.go — обработчики health endpoints для Kubernetes probes.
package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/rprz/defectbot/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// IndexReadinessChecker — интерфейс для проверки готовности индекса.
type IndexReadinessChecker interface {
	IsReady() bool
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// storageDir — корень хранилища актов (для проверки FS)
	storageDir string
	// idx — ссылка на индекс для проверки готовности
	idx IndexReadinessChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(storageDir string, idx IndexReadinessChecker) *HealthHandler {
	return &HealthHandler{
		version:    config.Version,
		storageDir: storageDir,
		idx:        idx,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс бота жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "defectbot",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: запись в хранилище актов, готовность индекса.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := h.checkStorage()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	indexReady := true
	if h.idx != nil {
		indexReady = h.idx.IsReady()
	}
	if !indexReady {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "defectbot",
		"checks": map[string]any{
			"storage":     fsCheck,
			"index_ready": indexReady,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// checkStorage проверяет, что в корень хранилища можно писать:
// создаёт и удаляет временный файл.
func (h *HealthHandler) checkStorage() map[string]any {
	if h.storageDir == "" {
		return map[string]any{"status": "ok"}
	}

	probe := filepath.Join(h.storageDir, ".health-"+uuid.New().String()[:8])
	if err := os.WriteFile(probe, []byte("ok"), 0o640); err != nil {
		return map[string]any{
			"status": statusFail,
			"error":  err.Error(),
		}
	}
	_ = os.Remove(probe)

	return map[string]any{"status": "ok"}
}
