// Package storage содержит логику работы с SQLite базой данных.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Storage предоставляет методы для работы с таблицей изображений.
type Storage struct {
	db *sql.DB
}

// New создаёт новое подключение к SQLite и выполняет миграции.
func New(dbPath string) (*Storage, error) {
	// Создаём директорию для БД, если её ещё нет
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию для БД: %w", err)
	}

	// Параметры для concurrent доступа: записи эмбеддингов идут из нескольких горутин
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть БД: %w", err)
	}

	// Проверяем подключение
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	// Настраиваем пул соединений
	db.SetMaxOpenConns(1) // SQLite не поддерживает concurrent writes
	db.SetMaxIdleConns(1)

	s := &Storage{db: db}

	// Выполняем миграции
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось выполнить миграции: %w", err)
	}

	return s, nil
}

// migrate выполняет все SQL-миграции.
func (s *Storage) migrate() error {
	for i, m := range GetMigrations() {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("миграция %d: %w", i+1, err)
		}
	}
	return nil
}

// Close закрывает подключение к БД.
func (s *Storage) Close() error {
	return s.db.Close()
}

const imageColumns = `id, filename, original_name, mime_type, size, file_path, embedding IS NOT NULL, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (Image, error) {
	var (
		img       Image
		createdAt int64
	)
	err := row.Scan(&img.ID, &img.Filename, &img.OriginalName, &img.MimeType,
		&img.Size, &img.FilePath, &img.HasEmbedding, &createdAt)
	if err != nil {
		return Image{}, err
	}
	img.CreatedAt = time.Unix(createdAt, 0).UTC()
	return img, nil
}

// InsertImage регистрирует новое изображение и возвращает его ID.
// Если файл с таким путём уже зарегистрирован, возвращает ErrDuplicate.
func (s *Storage) InsertImage(ctx context.Context, img NewImage) (int64, error) {
	if img.FilePath == "" {
		return 0, fmt.Errorf("путь к файлу не указан")
	}
	if img.Filename == "" {
		img.Filename = filepath.Base(img.FilePath)
	}
	if img.OriginalName == "" {
		img.OriginalName = img.Filename
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO images (filename, original_name, mime_type, size, file_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		img.Filename, img.OriginalName, img.MimeType, img.Size, img.FilePath, time.Now().Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, fmt.Errorf("%s: %w", img.FilePath, ErrDuplicate)
		}
		return 0, fmt.Errorf("не удалось добавить изображение: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("не удалось получить ID изображения: %w", err)
	}
	return id, nil
}

// RegisterImage возвращает запись для файла, создавая её при необходимости.
// created == true, если запись была создана этим вызовом.
func (s *Storage) RegisterImage(ctx context.Context, img NewImage) (Image, bool, error) {
	id, err := s.InsertImage(ctx, img)
	switch {
	case err == nil:
		stored, err := s.GetImage(ctx, id)
		return stored, true, err
	case errors.Is(err, ErrDuplicate):
		stored, err := s.GetImageByPath(ctx, img.FilePath)
		return stored, false, err
	default:
		return Image{}, false, err
	}
}

// GetImage возвращает изображение по ID.
func (s *Storage) GetImage(ctx context.Context, id int64) (Image, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Image{}, fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Image{}, fmt.Errorf("не удалось прочитать изображение %d: %w", id, err)
	}
	return img, nil
}

// GetImageByPath возвращает изображение по пути к файлу.
func (s *Storage) GetImageByPath(ctx context.Context, path string) (Image, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE file_path = ?`, path)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Image{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return Image{}, fmt.Errorf("не удалось прочитать изображение %s: %w", path, err)
	}
	return img, nil
}

// ListImages возвращает все изображения в порядке ID.
func (s *Storage) ListImages(ctx context.Context) ([]Image, error) {
	return s.queryImages(ctx, `SELECT `+imageColumns+` FROM images ORDER BY id`)
}

// GetImagesByIDs возвращает изображения с указанными ID.
// Отсутствующие ID просто не попадают в результат.
func (s *Storage) GetImagesByIDs(ctx context.Context, ids []int64) (map[int64]Image, error) {
	out := make(map[int64]Image, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	images, err := s.queryImages(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		out[img.ID] = img
	}
	return out, nil
}

func (s *Storage) queryImages(ctx context.Context, query string, args ...any) ([]Image, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить список изображений: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var images []Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("не удалось прочитать строку: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// ListImagesWithoutEmbedding возвращает изображения, для которых эмбеддинг ещё не посчитан.
func (s *Storage) ListImagesWithoutEmbedding(ctx context.Context) ([]ImageRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_path FROM images WHERE embedding IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить изображения без эмбеддинга: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var refs []ImageRef
	for rows.Next() {
		var ref ImageRef
		if err := rows.Scan(&ref.ID, &ref.FilePath); err != nil {
			return nil, fmt.Errorf("не удалось прочитать строку: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// UpdateEmbedding записывает эмбеддинг одного изображения целиком.
func (s *Storage) UpdateEmbedding(ctx context.Context, id int64, vec []float64) error {
	encoded, err := EncodeVector(vec)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "UPDATE images SET embedding = ? WHERE id = ?", encoded, id)
	if err != nil {
		return fmt.Errorf("не удалось сохранить эмбеддинг %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("не удалось сохранить эмбеддинг %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetEmbedding возвращает разобранный эмбеддинг изображения.
func (s *Storage) GetEmbedding(ctx context.Context, id int64) ([]float64, error) {
	row, err := s.RawEmbedding(ctx, id)
	if err != nil {
		return nil, err
	}
	return DecodeVector(row.Raw)
}

// RawEmbedding возвращает эмбеддинг изображения без разбора.
// Raw == nil, если эмбеддинг не посчитан.
func (s *Storage) RawEmbedding(ctx context.Context, id int64) (EmbeddingRow, error) {
	row := EmbeddingRow{ID: id}
	err := s.db.QueryRowContext(ctx, "SELECT embedding FROM images WHERE id = ?", id).Scan(&row.Raw)
	if errors.Is(err, sql.ErrNoRows) {
		return EmbeddingRow{}, fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return EmbeddingRow{}, fmt.Errorf("не удалось прочитать эмбеддинг %d: %w", id, err)
	}
	return row, nil
}

// ListEmbeddings возвращает сырые эмбеддинги всех изображений, у которых они есть.
func (s *Storage) ListEmbeddings(ctx context.Context) ([]EmbeddingRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, embedding FROM images WHERE embedding IS NOT NULL ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("не удалось получить эмбеддинги: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EmbeddingRow
	for rows.Next() {
		var r EmbeddingRow
		if err := rows.Scan(&r.ID, &r.Raw); err != nil {
			return nil, fmt.Errorf("не удалось прочитать строку: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountCoverage возвращает количество изображений всего и с эмбеддингом.
func (s *Storage) CountCoverage(ctx context.Context) (Coverage, error) {
	var c Coverage
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(embedding) FROM images").Scan(&c.Total, &c.WithEmbedding)
	if err != nil {
		return Coverage{}, fmt.Errorf("не удалось посчитать покрытие: %w", err)
	}
	return c, nil
}

// isUniqueConstraintError проверяет, является ли ошибка нарушением уникальности.
func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
