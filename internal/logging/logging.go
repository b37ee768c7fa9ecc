// Package logging создаёт slog логгер по настройкам из конфига.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/artemshloyda/photovault/internal/config"
)

// ParseLevel разбирает уровень логирования: debug, info, warn, error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("неизвестный уровень логирования %q", s)
	}
	return level, nil
}

// New создаёт логгер с text или JSON обработчиком.
func New(level string, format config.LogFormat, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch format {
	case config.LogFormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case config.LogFormatText, "":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("неизвестный формат логов %q", format)
	}

	return slog.New(h), nil
}

// Discard возвращает логгер, который ничего не пишет.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
