// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// LogFormat определяет формат логов.
type LogFormat string

const (
	// LogFormatText - человекочитаемый формат key=value.
	LogFormatText LogFormat = "text"
	// LogFormatJSON - JSON, по одной записи на строку.
	LogFormatJSON LogFormat = "json"
)

// Config содержит все настройки сервиса.
type Config struct {
	// DBPath - путь к SQLite базе данных с изображениями.
	DBPath string

	// UploadDir - директория, куда попадают загруженные изображения.
	UploadDir string

	// Extensions - список расширений изображений (без точки, lowercase).
	Extensions []string

	// EmbeddingServiceURL - базовый URL сервиса эмбеддингов.
	EmbeddingServiceURL string

	// EmbedTimeout - таймаут запроса эмбеддинга одного изображения.
	EmbedTimeout time.Duration

	// SearchTimeout - таймаут запроса поиска.
	SearchTimeout time.Duration

	// HealthTimeout - таймаут проверки здоровья сервиса эмбеддингов.
	HealthTimeout time.Duration

	// BatchSize - размер батча очереди эмбеддингов.
	BatchSize int

	// BatchPause - пауза между батчами, если очередь не пуста.
	BatchPause time.Duration

	// HTTPAddr - адрес административного HTTP сервера.
	HTTPAddr string

	// AdminToken - статический bearer токен для административных ручек (пусто = без проверки).
	AdminToken string

	// DefaultTopK - количество результатов поиска по умолчанию.
	DefaultTopK int

	// Watch - следить за UploadDir и ставить новые файлы в очередь.
	Watch bool

	// WatchDebounce - время ожидания после последней записи в файл.
	WatchDebounce time.Duration

	// LogLevel - уровень логирования (debug, info, warn, error).
	LogLevel string

	// LogFormat - формат логов (text, json).
	LogFormat LogFormat

	// NoProgress - отключить прогресс-бар.
	NoProgress bool

	// Verbose - подробный вывод.
	Verbose bool
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() *Config {
	return &Config{
		DBPath:              filepath.Join("data", "photovault.sqlite"),
		UploadDir:           "uploads",
		Extensions:          []string{"jpg", "jpeg", "png", "gif", "webp", "heic", "heif"},
		EmbeddingServiceURL: "http://localhost:5000",
		EmbedTimeout:        30 * time.Second,
		SearchTimeout:       30 * time.Second,
		HealthTimeout:       5 * time.Second,
		BatchSize:           5,
		BatchPause:          2 * time.Second,
		HTTPAddr:            ":3001",
		DefaultTopK:         20,
		WatchDebounce:       500 * time.Millisecond,
		LogLevel:            "info",
		LogFormat:           LogFormatText,
	}
}

// Validate проверяет корректность конфигурации.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("путь к БД не указан (--db)")
	}
	if c.EmbeddingServiceURL == "" {
		return fmt.Errorf("URL сервиса эмбеддингов не указан (--clip-url)")
	}
	u, err := url.Parse(c.EmbeddingServiceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("некорректный URL сервиса эмбеддингов: %q", c.EmbeddingServiceURL)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("размер батча должен быть >= 1, получено: %d", c.BatchSize)
	}
	if c.BatchPause < 0 {
		return fmt.Errorf("пауза между батчами не может быть отрицательной: %s", c.BatchPause)
	}
	if c.EmbedTimeout <= 0 || c.SearchTimeout <= 0 || c.HealthTimeout <= 0 {
		return fmt.Errorf("таймауты должны быть положительными")
	}
	if c.DefaultTopK < 1 {
		return fmt.Errorf("top_k по умолчанию должен быть >= 1, получено: %d", c.DefaultTopK)
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("неизвестный формат логов: %s (доступны: text, json)", c.LogFormat)
	}
	if c.Watch && c.UploadDir == "" {
		return fmt.Errorf("для --watch нужна директория загрузок (--upload-dir)")
	}

	c.EmbeddingServiceURL = strings.TrimRight(c.EmbeddingServiceURL, "/")

	return nil
}

// HasExtension проверяет, является ли файл с таким расширением изображением.
func (c *Config) HasExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, e := range c.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
