// Package storage содержит модели и логику работы с SQLite базой данных.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound - запись не найдена.
	ErrNotFound = errors.New("изображение не найдено")

	// ErrDuplicate - изображение с таким путём уже есть.
	ErrDuplicate = errors.New("изображение с таким путём уже существует")

	// ErrMalformedEmbedding - сохранённый эмбеддинг не является массивом чисел.
	ErrMalformedEmbedding = errors.New("некорректный формат эмбеддинга")
)

// Image представляет запись об изображении.
type Image struct {
	// ID - уникальный идентификатор изображения.
	ID int64 `json:"id"`

	// Filename - имя файла на диске.
	Filename string `json:"filename"`

	// OriginalName - имя файла при загрузке.
	OriginalName string `json:"original_name"`

	// MimeType - MIME тип файла.
	MimeType string `json:"mime_type"`

	// Size - размер файла в байтах.
	Size int64 `json:"size"`

	// FilePath - абсолютный путь к файлу.
	FilePath string `json:"file_path"`

	// HasEmbedding - посчитан ли эмбеддинг.
	HasEmbedding bool `json:"has_embedding"`

	// CreatedAt - время регистрации изображения.
	CreatedAt time.Time `json:"created_at"`
}

// NewImage содержит данные для регистрации изображения.
type NewImage struct {
	Filename     string
	OriginalName string
	MimeType     string
	Size         int64
	FilePath     string
}

// ImageRef - минимальная информация для постановки в очередь.
type ImageRef struct {
	ID       int64
	FilePath string
}

// EmbeddingRow - сырое значение колонки embedding.
// Raw может быть string, []byte или уже разобранным массивом.
type EmbeddingRow struct {
	ID  int64
	Raw any
}

// Coverage содержит покрытие изображений эмбеддингами.
type Coverage struct {
	Total         int64 `json:"total_images"`
	WithEmbedding int64 `json:"images_with_embeddings"`
}

// Without возвращает количество изображений без эмбеддинга.
func (c Coverage) Without() int64 {
	return c.Total - c.WithEmbedding
}

// Percent возвращает процент покрытия.
func (c Coverage) Percent() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.WithEmbedding) / float64(c.Total) * 100
}

// DecodeVector разбирает сохранённый эмбеддинг.
// Поддерживаются JSON массив в виде строки или байт, JSON строка с массивом внутри
// (двойное кодирование) и уже разобранные []float64 / []any.
func DecodeVector(raw any) ([]float64, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("%w: значение отсутствует", ErrMalformedEmbedding)
	case []float64:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: пустой массив", ErrMalformedEmbedding)
		}
		return v, nil
	case []any:
		return fromAnySlice(v)
	case string:
		return decodeJSONVector([]byte(v), true)
	case []byte:
		return decodeJSONVector(v, true)
	default:
		return nil, fmt.Errorf("%w: неожиданный тип %T", ErrMalformedEmbedding, raw)
	}
}

func decodeJSONVector(data []byte, allowNested bool) ([]float64, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: пустая строка", ErrMalformedEmbedding)
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
	}

	switch p := parsed.(type) {
	case []any:
		return fromAnySlice(p)
	case string:
		if allowNested {
			return decodeJSONVector([]byte(p), false)
		}
	}
	return nil, fmt.Errorf("%w: ожидается массив чисел, получено %T", ErrMalformedEmbedding, parsed)
}

func fromAnySlice(items []any) ([]float64, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: пустой массив", ErrMalformedEmbedding)
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: элемент %d имеет тип %T", ErrMalformedEmbedding, i, item)
		}
		out[i] = f
	}
	return out, nil
}

// EncodeVector сериализует эмбеддинг для хранения.
func EncodeVector(vec []float64) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("%w: пустой массив", ErrMalformedEmbedding)
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
	}
	return string(b), nil
}
