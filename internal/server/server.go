// Package server содержит административный HTTP API пайплайна эмбеддингов.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artemshloyda/photovault/internal/logging"
	"github.com/artemshloyda/photovault/internal/search"
	"github.com/artemshloyda/photovault/internal/storage"
	"github.com/artemshloyda/photovault/internal/worker"
)

// Queue - операции очереди эмбеддингов, доступные через API.
type Queue interface {
	Enqueue(imageID int64, path string) error
	Stats() worker.Stats
	Clear() int
}

// Store - чтение изображений и эмбеддингов.
type Store interface {
	GetImage(ctx context.Context, id int64) (storage.Image, error)
	ListImages(ctx context.Context) ([]storage.Image, error)
	CountCoverage(ctx context.Context) (storage.Coverage, error)
	RawEmbedding(ctx context.Context, id int64) (storage.EmbeddingRow, error)
}

// Searcher выполняет семантический поиск.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) (search.Response, error)
}

// HealthChecker проверяет доступность сервиса эмбеддингов.
type HealthChecker interface {
	Available(ctx context.Context) bool
}

// Server - HTTP обработчик административного API.
type Server struct {
	store    Store
	queue    Queue
	searcher Searcher
	health   HealthChecker

	logger      *slog.Logger
	adminToken  string
	defaultTopK int
	metrics     http.Handler
	middlewares []func(http.Handler) http.Handler

	started time.Time
	router  chi.Router
}

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAdminToken включает проверку Bearer токена для изменяющих запросов.
// Пустой токен отключает проверку.
func WithAdminToken(token string) Option {
	return func(s *Server) { s.adminToken = token }
}

// WithDefaultTopK задаёт top_k по умолчанию для поиска.
func WithDefaultTopK(k int) Option {
	return func(s *Server) {
		if k > 0 {
			s.defaultTopK = k
		}
	}
}

// WithMetricsHandler монтирует обработчик /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithMiddleware добавляет middleware для всех маршрутов /api, кроме /api/health.
// Сюда подключается внешняя аутентификация.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(s *Server) { s.middlewares = append(s.middlewares, mw...) }
}

// New создаёт сервер и регистрирует маршруты.
func New(store Store, q Queue, searcher Searcher, health HealthChecker, opts ...Option) *Server {
	s := &Server{
		store:       store,
		queue:       q,
		searcher:    searcher,
		health:      health,
		logger:      logging.Discard(),
		defaultTopK: 20,
		started:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/api/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.middlewares...)

		r.Get("/images/embedding-stats", s.handleEmbeddingStats)
		r.Get("/images/debug-embedding/{id}", s.handleDebugEmbedding)
		r.Post("/images/clip-search", s.handleSearch)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)

			r.Post("/images/{id}/regenerate-embedding", s.handleRegenerate)
			r.Post("/images/regenerate-all-embeddings", s.handleRegenerateAll)
			r.Get("/queue/stats", s.handleQueueStats)
			r.Post("/queue/clear", s.handleQueueClear)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "маршрут не найден")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "метод не поддерживается")
	})

	return r
}

// ServeHTTP реализует http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run слушает addr до отмены ctx, затем корректно останавливает сервер.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP сервер запущен", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP сервер: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("остановка HTTP сервера: %w", err)
	}
	s.logger.Info("HTTP сервер остановлен")
	return nil
}
