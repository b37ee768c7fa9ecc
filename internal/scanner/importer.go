package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"github.com/artemshloyda/photovault/internal/storage"
)

// Registrar регистрирует изображение или возвращает уже существующее.
type Registrar interface {
	RegisterImage(ctx context.Context, img storage.NewImage) (storage.Image, bool, error)
}

// Enqueuer ставит изображение в очередь эмбеддингов.
type Enqueuer interface {
	Enqueue(imageID int64, path string) error
}

// ImportResult - итог импорта одного файла.
type ImportResult struct {
	Image   storage.Image
	Created bool
	Queued  bool
}

// Importer регистрирует найденные файлы и ставит в очередь те, у которых нет эмбеддинга.
// Используется и командой import, и watcher'ом.
type Importer struct {
	store  Registrar
	queue  Enqueuer
	logger *slog.Logger
}

// NewImporter создаёт Importer. logger может быть nil.
func NewImporter(store Registrar, q Enqueuer, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, queue: q, logger: logger}
}

// Import регистрирует файл. Изображение ставится в очередь, если эмбеддинга ещё нет.
func (i *Importer) Import(ctx context.Context, f File) (ImportResult, error) {
	name := filepath.Base(f.Path)

	// Регистрируем файл, повторный импорт возвращает существующую запись
	img, created, err := i.store.RegisterImage(ctx, storage.NewImage{
		Filename:     name,
		OriginalName: name,
		MimeType:     MimeType(f.Path),
		Size:         f.Size,
		FilePath:     f.Path,
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("не удалось зарегистрировать %s: %w", f.Path, err)
	}

	res := ImportResult{Image: img, Created: created}
	if created {
		i.logger.Info("изображение зарегистрировано", "image_id", img.ID, "path", f.Path)
	}
	// Эмбеддинг уже есть
	if img.HasEmbedding {
		return res, nil
	}

	if err := i.queue.Enqueue(img.ID, img.FilePath); err != nil {
		return res, fmt.Errorf("не удалось поставить %d в очередь: %w", img.ID, err)
	}
	res.Queued = true
	return res, nil
}

// MimeType определяет MIME тип по расширению.
func MimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
