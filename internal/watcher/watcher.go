// Package watcher следит за директорией загрузок и импортирует новые изображения.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/artemshloyda/photovault/internal/config"
	"github.com/artemshloyda/photovault/internal/scanner"
)

// Importer регистрирует файл и ставит его в очередь эмбеддингов.
type Importer interface {
	Import(ctx context.Context, f scanner.File) (scanner.ImportResult, error)
}

// Watcher следит за директорией загрузок.
type Watcher struct {
	cfg    *config.Config
	logger *slog.Logger

	watcher *fsnotify.Watcher

	// debounce - сколько файл должен не меняться, чтобы считаться записанным.
	debounce time.Duration

	// pending - файлы, ожидающие debounce. Доступ только из loop.
	pending map[string]time.Time
}

// New создаёт Watcher для cfg.UploadDir.
func New(cfg *config.Config, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("не удалось создать watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	debounce := cfg.WatchDebounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	return &Watcher{
		cfg:      cfg,
		logger:   logger,
		watcher:  w,
		debounce: debounce,
		pending:  make(map[string]time.Time),
	}, nil
}

// Watch начинает слежение и возвращает канал готовых файлов.
// Канал закрывается при отмене ctx.
func (w *Watcher) Watch(ctx context.Context) (<-chan scanner.File, error) {
	// существующие файлы импортирует команда import, здесь только подписка
	if err := w.addRecursive(w.cfg.UploadDir, false); err != nil {
		_ = w.watcher.Close()
		return nil, err
	}

	files := make(chan scanner.File, 100)
	go w.loop(ctx, files)
	return files, nil
}

// Run импортирует каждый новый файл до отмены ctx.
func (w *Watcher) Run(ctx context.Context, imp Importer) error {
	files, err := w.Watch(ctx)
	if err != nil {
		return err
	}

	w.logger.Info("слежение за директорией загрузок", "dir", w.cfg.UploadDir, "debounce", w.debounce)

	for f := range files {
		res, err := imp.Import(ctx, f)
		if err != nil {
			w.logger.Error("не удалось импортировать файл", "path", f.Path, "error", err)
			continue
		}
		w.logger.Info("новый файл в директории загрузок",
			"image_id", res.Image.ID, "path", f.RelPath, "created", res.Created, "queued", res.Queued)
	}
	return nil
}

// addRecursive подписывается на dir и все вложенные директории.
// При collect подходящие файлы из поддерева попадают в pending.
func (w *Watcher) addRecursive(dir string, collect bool) error {
	now := time.Now()
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			// Скрытые директории пропускаем, кроме самой корневой
			if path != dir && scanner.SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("не удалось добавить директорию %s: %w", path, err)
			}
			return nil
		}

		if collect && d.Type().IsRegular() && w.accepts(path) {
			w.pending[path] = now
		}
		return nil
	})
}

// accepts проверяет имя файла: не скрытый и с поддерживаемым расширением.
func (w *Watcher) accepts(path string) bool {
	name := filepath.Base(path)
	return !scanner.SkipFile(name) && w.cfg.HasExtension(filepath.Ext(name))
}

func (w *Watcher) loop(ctx context.Context, files chan<- scanner.File) {
	defer close(files)
	defer func() { _ = w.watcher.Close() }()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("ошибка watcher", "error", err)

		case now := <-ticker.C:
			for _, f := range w.ready(now) {
				select {
				case files <- f:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		// Новая или перемещённая директория: подписываемся и забираем уже лежащие в ней файлы
		if event.Has(fsnotify.Create) {
			if err := w.addRecursive(event.Name, true); err != nil {
				w.logger.Warn("не удалось следить за новой директорией", "dir", event.Name, "error", err)
			}
		}
		return
	}

	if !w.accepts(event.Name) {
		return
	}

	// каждое событие записи откладывает обработку
	w.pending[event.Name] = time.Now()
}

// ready возвращает файлы, которые не менялись дольше debounce.
func (w *Watcher) ready(now time.Time) []scanner.File {
	var out []scanner.File
	for path, touched := range w.pending {
		if now.Sub(touched) < w.debounce {
			continue
		}
		delete(w.pending, path)

		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		f, err := scanner.Describe(w.cfg.UploadDir, path, info)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Close закрывает watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
