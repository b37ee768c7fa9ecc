// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig представляет структуру конфигурационного файла YAML.
// Все поля опциональны - если не указаны, используются значения по умолчанию.
type FileConfig struct {
	// Storage - настройки хранилища изображений.
	Storage *StorageConfig `yaml:"storage,omitempty"`

	// Embedding - настройки сервиса эмбеддингов.
	Embedding *EmbeddingConfig `yaml:"embedding,omitempty"`

	// Queue - настройки очереди эмбеддингов.
	Queue *QueueConfig `yaml:"queue,omitempty"`

	// Server - настройки HTTP сервера.
	Server *ServerConfig `yaml:"server,omitempty"`

	// Watch - настройки слежения за директорией загрузок.
	Watch *WatchConfig `yaml:"watch,omitempty"`

	// Log - настройки логирования.
	Log *LogConfig `yaml:"log,omitempty"`
}

// StorageConfig содержит настройки хранилища.
type StorageConfig struct {
	// DB - путь к SQLite базе данных.
	DB string `yaml:"db,omitempty"`

	// UploadDir - директория загрузок.
	UploadDir string `yaml:"upload_dir,omitempty"`

	// Extensions - расширения изображений.
	Extensions []string `yaml:"extensions,omitempty"`
}

// EmbeddingConfig содержит настройки сервиса эмбеддингов.
type EmbeddingConfig struct {
	URL           string        `yaml:"url,omitempty"`
	EmbedTimeout  time.Duration `yaml:"embed_timeout,omitempty"`
	SearchTimeout time.Duration `yaml:"search_timeout,omitempty"`
	HealthTimeout time.Duration `yaml:"health_timeout,omitempty"`
}

// QueueConfig содержит настройки очереди.
type QueueConfig struct {
	// BatchSize - размер батча.
	BatchSize int `yaml:"batch_size,omitempty"`

	// BatchPause - пауза между батчами. Указатель, чтобы отличать 0 от отсутствия.
	BatchPause *time.Duration `yaml:"batch_pause,omitempty"`
}

// ServerConfig содержит настройки HTTP сервера.
type ServerConfig struct {
	Addr        string `yaml:"addr,omitempty"`
	AdminToken  string `yaml:"admin_token,omitempty"`
	DefaultTopK int    `yaml:"default_top_k,omitempty"`
}

// WatchConfig содержит настройки watcher.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled,omitempty"`
	Debounce time.Duration `yaml:"debounce,omitempty"`
}

// LogConfig содержит настройки логирования.
type LogConfig struct {
	Level      string `yaml:"level,omitempty"`
	Format     string `yaml:"format,omitempty"`
	NoProgress bool   `yaml:"no_progress,omitempty"`
}

// DefaultConfigPaths возвращает список путей для поиска конфигурационного файла.
// Поиск выполняется в следующем порядке:
// 1. ./photovault.yaml (текущая директория)
// 2. ./photovault.yml
// 3. ~/.config/photovault/config.yaml
// 4. ~/.config/photovault/config.yml
func DefaultConfigPaths() []string {
	paths := []string{
		"photovault.yaml",
		"photovault.yml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "photovault", "config.yaml"),
			filepath.Join(home, ".config", "photovault", "config.yml"),
		)
	}

	return paths
}

// LoadFromFile загружает конфигурацию из указанного файла.
// Возвращает nil, nil если файл не существует.
func LoadFromFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("ошибка парсинга YAML в %s: %w", path, err)
	}

	return &fc, nil
}

// FindAndLoadConfig ищет и загружает конфигурационный файл из стандартных путей.
// Если configPath указан явно, использует только его.
// Возвращает nil, "", nil если файл не найден.
func FindAndLoadConfig(configPath string) (*FileConfig, string, error) {
	if configPath != "" {
		fc, err := LoadFromFile(configPath)
		if err != nil {
			return nil, "", err
		}
		if fc == nil {
			return nil, "", fmt.Errorf("файл конфигурации не найден: %s", configPath)
		}
		return fc, configPath, nil
	}

	for _, path := range DefaultConfigPaths() {
		fc, err := LoadFromFile(path)
		if err != nil {
			return nil, "", err
		}
		if fc != nil {
			return fc, path, nil
		}
	}

	return nil, "", nil
}

// ApplyToConfig применяет настройки из файла к основной конфигурации.
// Переменные окружения и CLI флаги применяются после файла.
func (fc *FileConfig) ApplyToConfig(cfg *Config) {
	if fc == nil {
		return
	}

	if s := fc.Storage; s != nil {
		if s.DB != "" {
			cfg.DBPath = s.DB
		}
		if s.UploadDir != "" {
			cfg.UploadDir = s.UploadDir
		}
		if len(s.Extensions) > 0 {
			cfg.Extensions = s.Extensions
		}
	}

	if e := fc.Embedding; e != nil {
		if e.URL != "" {
			cfg.EmbeddingServiceURL = e.URL
		}
		if e.EmbedTimeout > 0 {
			cfg.EmbedTimeout = e.EmbedTimeout
		}
		if e.SearchTimeout > 0 {
			cfg.SearchTimeout = e.SearchTimeout
		}
		if e.HealthTimeout > 0 {
			cfg.HealthTimeout = e.HealthTimeout
		}
	}

	if q := fc.Queue; q != nil {
		if q.BatchSize > 0 {
			cfg.BatchSize = q.BatchSize
		}
		if q.BatchPause != nil {
			cfg.BatchPause = *q.BatchPause
		}
	}

	if s := fc.Server; s != nil {
		if s.Addr != "" {
			cfg.HTTPAddr = s.Addr
		}
		if s.AdminToken != "" {
			cfg.AdminToken = s.AdminToken
		}
		if s.DefaultTopK > 0 {
			cfg.DefaultTopK = s.DefaultTopK
		}
	}

	if w := fc.Watch; w != nil {
		if w.Enabled {
			cfg.Watch = true
		}
		if w.Debounce > 0 {
			cfg.WatchDebounce = w.Debounce
		}
	}

	if l := fc.Log; l != nil {
		if l.Level != "" {
			cfg.LogLevel = l.Level
		}
		if l.Format != "" {
			cfg.LogFormat = LogFormat(l.Format)
		}
		if l.NoProgress {
			cfg.NoProgress = true
		}
	}
}

// GenerateExampleConfig генерирует пример конфигурационного файла.
func GenerateExampleConfig() string {
	return `# photovault configuration file
# Все параметры опциональны - если не указаны, используются значения по умолчанию.
# Переменные окружения (PHOTOVAULT_*) и CLI флаги имеют приоритет над этим файлом.

storage:
  # Путь к SQLite базе данных
  db: "./data/photovault.sqlite"
  # Директория загруженных изображений
  upload_dir: "./uploads"
  # Расширения изображений (без точки)
  extensions:
    - jpg
    - jpeg
    - png
    - webp

embedding:
  # URL сервиса эмбеддингов (CLIP)
  url: "http://localhost:5000"
  embed_timeout: 30s
  search_timeout: 30s
  health_timeout: 5s

queue:
  # Сколько изображений обрабатывается параллельно
  batch_size: 5
  # Пауза между батчами
  batch_pause: 2s

server:
  addr: ":3001"
  # Bearer токен для административных ручек (пусто = без проверки)
  admin_token: ""
  default_top_k: 20

watch:
  # Ставить в очередь новые файлы из upload_dir
  enabled: false
  debounce: 500ms

log:
  # debug, info, warn, error
  level: info
  # text или json
  format: text
  no_progress: false
`
}
