// Package scanner ищет изображения в директории загрузок и регистрирует их в хранилище.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/artemshloyda/photovault/internal/config"
)

// File - найденный файл изображения.
type File struct {
	// Path - абсолютный путь к файлу.
	Path string

	// RelPath - путь относительно директории загрузок.
	RelPath string

	// Size - размер в байтах.
	Size int64

	// ModTime - время изменения.
	ModTime time.Time
}

// Scanner обходит директорию загрузок.
type Scanner struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New создаёт Scanner. logger может быть nil.
func New(cfg *config.Config, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{cfg: cfg, logger: logger}
}

// SkipDir сообщает, что директорию не нужно обходить (скрытые директории).
func SkipDir(name string) bool {
	return len(name) > 1 && name[0] == '.'
}

// SkipFile сообщает, что файл не является изображением для импорта: macOS metadata (._*) и скрытые файлы.
func SkipFile(name string) bool {
	return strings.HasPrefix(name, ".")
}

// Scan обходит директорию и отправляет найденные изображения в канал.
// Оба канала закрываются после завершения обхода.
func (s *Scanner) Scan(ctx context.Context) (<-chan File, <-chan error) {
	files := make(chan File, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		root := s.cfg.UploadDir
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			if err != nil {
				if path == root {
					return err
				}
				s.logger.Warn("не удалось прочитать путь", "path", path, "error", err)
				return nil
			}

			if d.IsDir() {
				if path != root && SkipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}

			if SkipFile(d.Name()) || !s.cfg.HasExtension(filepath.Ext(path)) {
				return nil
			}

			file, err := s.describe(path, d)
			if err != nil {
				s.logger.Warn("не удалось получить информацию о файле", "path", path, "error", err)
				return nil
			}

			select {
			case files <- file:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})

		if err != nil {
			errs <- fmt.Errorf("сканирование %s: %w", root, err)
		}
	}()

	return files, errs
}

func (s *Scanner) describe(path string, d os.DirEntry) (File, error) {
	info, err := d.Info()
	if err != nil {
		return File{}, err
	}
	return Describe(s.cfg.UploadDir, path, info)
}

// Describe строит File по пути и информации о файле.
func Describe(root, path string, info os.FileInfo) (File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return File{}, fmt.Errorf("не удалось получить абсолютный путь %s: %w", path, err)
	}

	relPath, err := filepath.Rel(root, path)
	if err != nil {
		relPath = filepath.Base(path)
	}

	return File{
		Path:    absPath,
		RelPath: relPath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// CountFiles возвращает количество изображений в директории (для progress bar).
func (s *Scanner) CountFiles() (int64, error) {
	var count int64
	root := s.cfg.UploadDir

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !SkipFile(d.Name()) && s.cfg.HasExtension(filepath.Ext(path)) {
			count++
		}
		return nil
	})

	return count, err
}
