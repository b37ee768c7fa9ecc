package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix - префикс переменных окружения сервиса.
const EnvPrefix = "PHOTOVAULT_"

// LookupFunc возвращает значение переменной окружения.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv загружает переменные из .env файлов в окружение процесса.
// Уже заданные переменные не перезаписываются, отсутствующие файлы пропускаются.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("не удалось загрузить %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv применяет переменные окружения к конфигурации.
// lookup == nil означает os.LookupEnv.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	// CLIP_SERVICE_URL оставлен для совместимости со старыми деплоями.
	str(&cfg.EmbeddingServiceURL, EnvPrefix+"EMBEDDING_URL", "CLIP_SERVICE_URL")
	str(&cfg.DBPath, EnvPrefix+"DB")
	str(&cfg.UploadDir, EnvPrefix+"UPLOAD_DIR")
	str(&cfg.HTTPAddr, EnvPrefix+"ADDR")
	str(&cfg.AdminToken, EnvPrefix+"ADMIN_TOKEN")
	str(&cfg.LogLevel, EnvPrefix+"LOG_LEVEL")

	var format string
	str(&format, EnvPrefix+"LOG_FORMAT")
	if format != "" {
		cfg.LogFormat = LogFormat(format)
	}

	var exts string
	str(&exts, EnvPrefix+"EXTENSIONS")
	if exts != "" {
		cfg.Extensions = splitList(exts)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvPrefix + "BATCH_SIZE", &cfg.BatchSize},
		{EnvPrefix + "DEFAULT_TOP_K", &cfg.DefaultTopK},
	}
	for _, it := range ints {
		v, ok := lookup(it.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: ожидается целое число, получено %q", it.key, v)
		}
		*it.dst = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvPrefix + "BATCH_PAUSE", &cfg.BatchPause},
		{EnvPrefix + "EMBED_TIMEOUT", &cfg.EmbedTimeout},
		{EnvPrefix + "SEARCH_TIMEOUT", &cfg.SearchTimeout},
		{EnvPrefix + "HEALTH_TIMEOUT", &cfg.HealthTimeout},
		{EnvPrefix + "WATCH_DEBOUNCE", &cfg.WatchDebounce},
	}
	for _, it := range durations {
		v, ok := lookup(it.key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: ожидается длительность (например 2s), получено %q", it.key, v)
		}
		*it.dst = d
	}

	if v, ok := lookup(EnvPrefix + "WATCH"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: ожидается true/false, получено %q", EnvPrefix+"WATCH", v)
		}
		cfg.Watch = b
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
