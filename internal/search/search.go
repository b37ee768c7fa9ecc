// Package search реализует семантический поиск по сохранённым эмбеддингам.
// Ранжирование выполняет внешний сервис, здесь только сбор векторов и сборка ответа.
package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/artemshloyda/photovault/internal/embedding"
	"github.com/artemshloyda/photovault/internal/storage"
)

// ErrInvalidQuery - пустой запрос или некорректный top_k.
var ErrInvalidQuery = errors.New("некорректный поисковый запрос")

// Store - чтение эмбеддингов и изображений.
type Store interface {
	ListEmbeddings(ctx context.Context) ([]storage.EmbeddingRow, error)
	GetImagesByIDs(ctx context.Context, ids []int64) (map[int64]storage.Image, error)
}

// Ranker ранжирует эмбеддинги по текстовому запросу.
type Ranker interface {
	Search(ctx context.Context, query string, embeddings map[int64][]float64, topK int) ([]embedding.Match, error)
}

// Hit - изображение с оценкой похожести.
type Hit struct {
	storage.Image
	Similarity float64 `json:"similarity"`
}

// Response - результат поиска.
type Response struct {
	Query   string `json:"query"`
	Results []Hit  `json:"results"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// Service выполняет поиск.
type Service struct {
	store  Store
	ranker Ranker
	logger *slog.Logger
}

// New создаёт сервис поиска. logger может быть nil.
func New(store Store, ranker Ranker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{store: store, ranker: ranker, logger: logger}
}

// Search ищет изображения по запросу. Повреждённые эмбеддинги пропускаются,
// поиск из-за них не прерывается. Результаты отсортированы по убыванию похожести.
func (s *Service) Search(ctx context.Context, query string, topK int) (Response, error) {
	// Валидируем запрос
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{}, fmt.Errorf("%w: пустой запрос", ErrInvalidQuery)
	}
	if topK < 1 {
		return Response{}, fmt.Errorf("%w: top_k должен быть не меньше 1, получено %d", ErrInvalidQuery, topK)
	}

	// Собираем сохранённые эмбеддинги
	vectors, total, err := s.collect(ctx)
	if err != nil {
		return Response{}, err
	}
	if total == 0 {
		return Response{Query: query, Results: []Hit{}, Message: "нет изображений с эмбеддингами"}, nil
	}
	if len(vectors) == 0 {
		return Response{Query: query, Results: []Hit{}, Message: "нет корректных эмбеддингов, изображения нужно переобработать"}, nil
	}

	s.logger.Info("отправка эмбеддингов на поиск", "count", len(vectors), "skipped", total-len(vectors), "top_k", topK)

	// Ранжирование выполняет сервис эмбеддингов
	matches, err := s.ranker.Search(ctx, query, vectors, topK)
	if err != nil {
		return Response{}, fmt.Errorf("поиск не выполнен: %w", err)
	}
	if len(matches) == 0 {
		return Response{Query: query, Results: []Hit{}}, nil
	}

	// Подтягиваем записи изображений
	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.ImageID
	}
	images, err := s.store.GetImagesByIDs(ctx, ids)
	if err != nil {
		return Response{}, err
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		img, ok := images[m.ImageID]
		if !ok {
			// изображение удалено между чтением эмбеддингов и ответом сервиса
			continue
		}
		hits = append(hits, Hit{Image: img, Similarity: m.Similarity})
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})

	return Response{Query: query, Results: hits, Total: len(hits)}, nil
}

// collect читает все сохранённые эмбеддинги и возвращает корректные вместе
// с общим количеством строк.
func (s *Service) collect(ctx context.Context) (map[int64][]float64, int, error) {
	rows, err := s.store.ListEmbeddings(ctx)
	if err != nil {
		return nil, 0, err
	}

	vectors := make(map[int64][]float64, len(rows))
	for _, row := range rows {
		vec, err := storage.DecodeVector(row.Raw)
		if err != nil {
			s.logger.Warn("пропущен повреждённый эмбеддинг", "image_id", row.ID, "error", err)
			continue
		}
		vectors[row.ID] = vec
	}
	return vectors, len(rows), nil
}
