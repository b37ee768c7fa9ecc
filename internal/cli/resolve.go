package cli

import (
	"github.com/artemshloyda/photovault/internal/config"
)

// flagOverrides переносит значение флага из flags в итоговую конфигурацию.
var flagOverrides = map[string]func(dst, flags *config.Config){
	"db":             func(d, f *config.Config) { d.DBPath = f.DBPath },
	"upload-dir":     func(d, f *config.Config) { d.UploadDir = f.UploadDir },
	"ext":            func(d, f *config.Config) { d.Extensions = f.Extensions },
	"clip-url":       func(d, f *config.Config) { d.EmbeddingServiceURL = f.EmbeddingServiceURL },
	"embed-timeout":  func(d, f *config.Config) { d.EmbedTimeout = f.EmbedTimeout },
	"batch-size":     func(d, f *config.Config) { d.BatchSize = f.BatchSize },
	"batch-pause":    func(d, f *config.Config) { d.BatchPause = f.BatchPause },
	"log-level":      func(d, f *config.Config) { d.LogLevel = f.LogLevel },
	"log-format":     func(d, f *config.Config) { d.LogFormat = f.LogFormat },
	"verbose":        func(d, f *config.Config) { d.Verbose = f.Verbose },
	"addr":           func(d, f *config.Config) { d.HTTPAddr = f.HTTPAddr },
	"admin-token":    func(d, f *config.Config) { d.AdminToken = f.AdminToken },
	"top-k":          func(d, f *config.Config) { d.DefaultTopK = f.DefaultTopK },
	"watch":          func(d, f *config.Config) { d.Watch = f.Watch },
	"watch-debounce": func(d, f *config.Config) { d.WatchDebounce = f.WatchDebounce },
	"no-progress":    func(d, f *config.Config) { d.NoProgress = f.NoProgress },
}

// resolve собирает конфигурацию по слоям: defaults, файл, окружение,
// явно заданные флаги. changed сообщает, задан ли флаг в командной строке.
func resolve(fc *config.FileConfig, lookup config.LookupFunc, flags *config.Config, changed func(name string) bool) (*config.Config, error) {
	cfg := config.DefaultConfig()
	fc.ApplyToConfig(cfg)

	if err := config.ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	for name, apply := range flagOverrides {
		if changed(name) {
			apply(cfg, flags)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
