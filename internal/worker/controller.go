// Package worker содержит очередь эмбеддингов: контроллер и цикл пакетной обработки.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/artemshloyda/photovault/internal/metrics"
	"github.com/artemshloyda/photovault/internal/queue"
)

var (
	// ErrInvalidArgument - некорректные аргументы Enqueue.
	ErrInvalidArgument = errors.New("некорректный аргумент")

	// ErrClosed - контроллер остановлен и не принимает задачи.
	ErrClosed = errors.New("очередь эмбеддингов остановлена")
)

// Embedder получает эмбеддинг изображения по пути к файлу.
type Embedder interface {
	EmbedImage(ctx context.Context, imagePath string) ([]float64, error)
}

// EmbeddingStore сохраняет эмбеддинг одного изображения.
type EmbeddingStore interface {
	UpdateEmbedding(ctx context.Context, imageID int64, vec []float64) error
}

// Result - итог обработки одной задачи.
type Result struct {
	Job       queue.Job
	Embedding []float64
	Err       error
	Duration  time.Duration
}

// Controller - единственная точка входа в очередь эмбеддингов.
// Цикл обработки запускается лениво при первой задаче и останавливается,
// когда очередь пуста. Одновременно работает не больше одного цикла.
type Controller struct {
	embedder Embedder
	store    EmbeddingStore
	queue    *queue.Queue
	logger   *slog.Logger
	metrics  *metrics.Metrics
	observer func(Result)

	batchSize  int
	batchPause time.Duration

	// ctx живёт до Shutdown; Clear его не трогает.
	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}

	// mu защищает всё ниже и мутации queue, чтобы pending и running
	// менялись атомарно вместе с очередью.
	mu           sync.Mutex
	running      bool
	closed       bool
	idle         chan struct{}
	pending      int
	processed    int64
	failed       int64
	currentBatch []int64
	loopStarts   int64
}

// Option настраивает Controller.
type Option func(*Controller)

// WithBatchSize задаёт размер батча.
func WithBatchSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithBatchPause задаёт паузу между батчами.
func WithBatchPause(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.batchPause = d
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithObserver задаёт функцию, которая вызывается после каждой задачи.
// Вызывается из горутин батча параллельно, должна быть потокобезопасной.
func WithObserver(fn func(Result)) Option {
	return func(c *Controller) { c.observer = fn }
}

// New создаёт контроллер очереди эмбеддингов.
func New(emb Embedder, st EmbeddingStore, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		embedder:   emb,
		store:      st,
		queue:      queue.New(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		batchSize:  5,
		batchPause: 2 * time.Second,
		ctx:        ctx,
		cancel:     cancel,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enqueue ставит изображение в очередь и запускает цикл обработки, если он не активен.
// Не блокируется. Повторная постановка того же изображения допустима.
func (c *Controller) Enqueue(imageID int64, path string) error {
	if imageID <= 0 {
		return fmt.Errorf("%w: id изображения должен быть положительным, получено %d", ErrInvalidArgument, imageID)
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: путь к файлу изображения %d пуст", ErrInvalidArgument, imageID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.pending = c.queue.Enqueue(queue.Job{ImageID: imageID, SourcePath: path, EnqueuedAt: time.Now()})
	c.metrics.Enqueued()
	c.logger.Debug("изображение добавлено в очередь эмбеддингов", "image_id", imageID, "pending", c.pending)

	// Решение о запуске принимается под тем же мьютексом, что и добавление,
	// а флаг сбрасывается циклом тоже под ним.
	if !c.running {
		c.running = true
		c.loopStarts++
		c.idle = make(chan struct{})
		c.metrics.LoopStarted()
		go c.run(c.idle)
	}
	c.metrics.SetQueue(c.pending, c.running)

	return nil
}

// Stats возвращает согласованный снимок состояния очереди.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := make([]int64, len(c.currentBatch))
	copy(batch, c.currentBatch)

	return Stats{
		QueueLength:  c.queue.Len(),
		Pending:      c.pending,
		Processing:   c.running,
		Processed:    c.processed,
		Failed:       c.failed,
		CurrentBatch: batch,
	}
}

// Clear удаляет задачи, ещё не взятые в работу, и возвращает их количество.
// Текущий батч дорабатывает и обновляет счётчики.
func (c *Controller) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.queue.Clear()
	c.pending = 0
	c.metrics.SetQueue(0, c.running)
	c.logger.Info("очередь эмбеддингов очищена", "dropped", n)
	return n
}

// Wait блокируется, пока цикл обработки не станет неактивным.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		if !c.running {
			c.mu.Unlock()
			return nil
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Shutdown перестаёт принимать задачи, отбрасывает очередь и ждёт текущий батч.
// Если ctx истекает раньше, запросы текущего батча отменяются.
func (c *Controller) Shutdown(ctx context.Context) error {
	// Закрываем приём задач и сбрасываем очередь
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.stop)
	}
	dropped := c.queue.Clear()
	c.pending = 0
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Warn("остановка: задачи удалены из очереди", "dropped", dropped)
	}

	// Ждём текущий батч, по таймауту отменяем запросы
	err := c.Wait(ctx)
	if err != nil {
		c.cancel()
		return fmt.Errorf("не дождались завершения батча: %w", err)
	}
	c.cancel()
	return nil
}

