// Пакет config — загрузка и валидация конфигурации бота учёта
// несоответствий из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации бота.
type Config struct {
	// Токен Telegram Bot API
	Token string
	// Корневая директория хранения актов
	StorageDir string
	// Срок хранения актов в днях
	RetentionDays int
	// Интервал запуска очистки старых актов
	SweepInterval time.Duration
	// Интервал сверки индекса с диском
	ReconcileInterval time.Duration
	// Таймаут неактивности сессии регистрации
	SessionTimeout time.Duration
	// Порт служебного HTTP-сервера (/metrics, /health)
	MetricsPort int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown служебного HTTP-сервера
	ShutdownTimeout time.Duration
	// Интервал проверки доступности Telegram API (topologymetrics)
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя зависимости (целевого сервиса) в метриках topologymetrics
	DephealthDepName string
	// URL Telegram API для проверки доступности
	TelegramAPIURL string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// BOT_TOKEN — обязательный
	cfg.Token, err = getEnvRequired("BOT_TOKEN")
	if err != nil {
		return nil, err
	}

	// BOT_STORAGE_DIR — корень хранилища актов (по умолчанию "storage")
	cfg.StorageDir = getEnvDefault("BOT_STORAGE_DIR", "storage")

	// BOT_RETENTION_DAYS — срок хранения актов (по умолчанию 90 дней)
	retention, err := getEnvInt("BOT_RETENTION_DAYS", 90)
	if err != nil {
		return nil, fmt.Errorf("BOT_RETENTION_DAYS: %w", err)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("BOT_RETENTION_DAYS: значение должно быть положительным, получено %d", retention)
	}
	cfg.RetentionDays = retention

	// BOT_SWEEP_INTERVAL — интервал очистки старых актов (по умолчанию 24h)
	cfg.SweepInterval, err = getEnvDuration("BOT_SWEEP_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("BOT_SWEEP_INTERVAL: %w", err)
	}

	// BOT_RECONCILE_INTERVAL — интервал сверки индекса (по умолчанию 6h)
	cfg.ReconcileInterval, err = getEnvDuration("BOT_RECONCILE_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("BOT_RECONCILE_INTERVAL: %w", err)
	}

	// BOT_SESSION_TIMEOUT — таймаут неактивности сессии регистрации (по умолчанию 2h)
	cfg.SessionTimeout, err = getEnvDuration("BOT_SESSION_TIMEOUT", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("BOT_SESSION_TIMEOUT: %w", err)
	}

	// BOT_METRICS_PORT — порт служебного сервера (по умолчанию 8090)
	port, err := getEnvInt("BOT_METRICS_PORT", 8090)
	if err != nil {
		return nil, fmt.Errorf("BOT_METRICS_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("BOT_METRICS_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.MetricsPort = port

	// BOT_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("BOT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("BOT_LOG_LEVEL: %w", err)
	}

	// BOT_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("BOT_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("BOT_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// BOT_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("BOT_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BOT_SHUTDOWN_TIMEOUT: %w", err)
	}

	// BOT_DEPHEALTH_CHECK_INTERVAL — интервал проверки Telegram API (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("BOT_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BOT_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// BOT_DEPHEALTH_GROUP — имя группы в метриках topologymetrics (по умолчанию "defectbot")
	cfg.DephealthGroup = getEnvDefault("BOT_DEPHEALTH_GROUP", "defectbot")

	// BOT_DEPHEALTH_DEP_NAME — имя зависимости в метриках (по умолчанию "telegram-api")
	cfg.DephealthDepName = getEnvDefault("BOT_DEPHEALTH_DEP_NAME", "telegram-api")

	// BOT_TELEGRAM_API_URL — URL для проверки доступности Telegram API
	cfg.TelegramAPIURL = getEnvDefault("BOT_TELEGRAM_API_URL", "https://api.telegram.org")

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 24h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
