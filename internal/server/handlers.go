package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artemshloyda/photovault/internal/embedding"
	"github.com/artemshloyda/photovault/internal/search"
	"github.com/artemshloyda/photovault/internal/storage"
	"github.com/artemshloyda/photovault/internal/worker"
)

// parseID разбирает {id} из пути. Возвращает false, если id не положительное число.
func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// enqueueStatus возвращает HTTP статус для ошибки Enqueue.
func enqueueStatus(err error) int {
	switch {
	case errors.Is(err, worker.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, worker.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "некорректный id изображения")
		return
	}

	img, err := s.store.GetImage(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "изображение не найдено")
		return
	}
	if err != nil {
		s.logger.Error("не удалось получить изображение", "image_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "не удалось получить изображение")
		return
	}

	if _, err := os.Stat(img.FilePath); err != nil {
		s.logger.Warn("файл изображения не найден", "image_id", id, "path", img.FilePath, "error", err)
		writeError(w, http.StatusNotFound, "файл изображения не найден на диске")
		return
	}

	if err := s.queue.Enqueue(img.ID, img.FilePath); err != nil {
		writeError(w, enqueueStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "изображение добавлено в очередь эмбеддингов",
		"image_id": img.ID,
	})
}

func (s *Server) handleRegenerateAll(w http.ResponseWriter, r *http.Request) {
	images, err := s.store.ListImages(r.Context())
	if err != nil {
		s.logger.Error("не удалось получить список изображений", "error", err)
		writeError(w, http.StatusInternalServerError, "не удалось поставить эмбеддинги в очередь")
		return
	}

	if len(images) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "изображения не найдены",
			"queued":  0,
		})
		return
	}

	// Файлы, которых нет на диске, не ставим в очередь
	skipped := 0
	for _, img := range images {
		if _, err := os.Stat(img.FilePath); err != nil {
			skipped++
			s.logger.Warn("пропуск изображения: файл не найден", "image_id", img.ID, "path", img.FilePath)
			continue
		}
		if err := s.queue.Enqueue(img.ID, img.FilePath); err != nil {
			writeError(w, enqueueStatus(err), err.Error())
			return
		}
	}

	s.logger.Info("все изображения поставлены в очередь", "total", len(images), "skipped", skipped)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "все изображения добавлены в очередь эмбеддингов",
		"total":   len(images),
		"queued":  s.queue.Stats().InFlight(), // очередь + текущий батч
	})
}

type queueSummary struct {
	Pending      int     `json:"pending"`
	Processing   bool    `json:"processing"`
	Processed    int64   `json:"processed"`
	Failed       int64   `json:"failed"`
	CurrentBatch []int64 `json:"current_batch"`
}

type embeddingStatsResponse struct {
	TotalImages        int64        `json:"total_images"`
	WithEmbeddings     int64        `json:"images_with_embeddings"`
	WithoutEmbeddings  int64        `json:"images_without_embeddings"`
	CoveragePercentage float64      `json:"coverage_percentage"`
	EmbeddingServiceUp bool         `json:"clip_service_available"`
	Queue              queueSummary `json:"queue"`
}

func (s *Server) handleEmbeddingStats(w http.ResponseWriter, r *http.Request) {
	cov, err := s.store.CountCoverage(r.Context())
	if err != nil {
		s.logger.Error("не удалось посчитать покрытие", "error", err)
		writeError(w, http.StatusInternalServerError, "не удалось получить статистику эмбеддингов")
		return
	}

	stats := s.queue.Stats()
	writeJSON(w, http.StatusOK, embeddingStatsResponse{
		TotalImages:        cov.Total,
		WithEmbeddings:     cov.WithEmbedding,
		WithoutEmbeddings:  cov.Without(),
		CoveragePercentage: cov.Percent(),
		EmbeddingServiceUp: s.health.Available(r.Context()),
		Queue: queueSummary{
			Pending:      stats.Pending,
			Processing:   stats.Processing,
			Processed:    stats.Processed,
			Failed:       stats.Failed,
			CurrentBatch: stats.CurrentBatch,
		},
	})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Stats())
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	n := s.queue.Clear()
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "очередь очищена",
		"cleared": n,
	})
}

// maxSearchBodySize ограничивает тело запроса поиска.
const maxSearchBodySize = 64 << 10

type searchRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxSearchBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "слишком большой запрос")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("некорректный запрос: %v", err))
		return
	}

	topK := s.defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	resp, err := s.searcher.Search(r.Context(), req.Query, topK)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, search.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, embedding.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "сервис поиска недоступен, проверьте, что сервис эмбеддингов запущен")
	default:
		s.logger.Error("ошибка поиска", "query", req.Query, "error", err)
		writeError(w, http.StatusInternalServerError, "не удалось выполнить поиск")
	}
}

type debugEmbeddingResponse struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	RawType      string    `json:"raw_type"`
	RawLength    int       `json:"raw_length"`
	ParseSuccess bool      `json:"parse_success"`
	ParseError   string    `json:"parse_error,omitempty"`
	Dimension    int       `json:"dimension"`
	SampleValues []float64 `json:"sample_values,omitempty"`
}

func (s *Server) handleDebugEmbedding(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "некорректный id изображения")
		return
	}

	img, err := s.store.GetImage(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "изображение не найдено")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "не удалось получить изображение")
		return
	}

	row, err := s.store.RawEmbedding(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "не удалось прочитать эмбеддинг")
		return
	}

	resp := debugEmbeddingResponse{ID: img.ID, Filename: img.Filename}
	switch raw := row.Raw.(type) {
	case nil:
		resp.RawType = "null"
	case string:
		resp.RawType = "string"
		resp.RawLength = len(raw)
	case []byte:
		resp.RawType = "bytes"
		resp.RawLength = len(raw)
	default:
		resp.RawType = fmt.Sprintf("%T", raw)
	}

	vec, err := storage.DecodeVector(row.Raw)
	if err != nil {
		resp.ParseError = err.Error()
	} else {
		resp.ParseSuccess = true
		resp.Dimension = len(vec)
		resp.SampleValues = vec[:min(5, len(vec))]
	}

	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status             string       `json:"status"`
	Timestamp          time.Time    `json:"timestamp"`
	UptimeSeconds      float64      `json:"uptime_seconds"`
	EmbeddingServiceUp bool         `json:"clip_service_available"`
	EmbeddingQueue     worker.Stats `json:"embedding_queue"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:             "OK",
		Timestamp:          time.Now().UTC(),
		UptimeSeconds:      time.Since(s.started).Seconds(),
		EmbeddingServiceUp: s.health.Available(r.Context()),
		EmbeddingQueue:     s.queue.Stats(),
	})
}
