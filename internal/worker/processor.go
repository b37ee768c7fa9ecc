package worker

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/artemshloyda/photovault/internal/queue"
)

// run - цикл обработки очереди. Работает, пока в очереди есть задачи.
// idle закрывается при выходе.
func (c *Controller) run(idle chan struct{}) {
	defer close(idle)

	logger := c.logger.With("run_id", uuid.NewString())
	logger.Info("запуск обработки очереди эмбеддингов", "batch_size", c.batchSize)

	for batchNum := 1; ; batchNum++ {
		batch, remaining, ok := c.nextBatch()
		if !ok {
			stats := c.Stats()
			logger.Info("очередь эмбеддингов обработана",
				"processed", stats.Processed, "failed", stats.Failed)
			return
		}

		logger.Info("обработка батча",
			"batch", batchNum, "image_ids", jobIDs(batch), "remaining", remaining)

		c.processBatch(logger, batch)

		if !c.pauseIfPending() {
			logger.Debug("пауза между батчами прервана остановкой")
		}
	}
}

// nextBatch забирает следующий батч. Если очередь пуста, переводит контроллер
// в состояние idle под тем же мьютексом, что и Enqueue, и возвращает ok == false.
func (c *Controller) nextBatch() ([]queue.Job, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch, remaining := c.queue.Drain(c.batchSize)
	c.pending = remaining

	if len(batch) == 0 {
		c.running = false
		c.currentBatch = nil
		c.pending = 0
		c.metrics.SetQueue(0, false)
		return nil, 0, false
	}

	c.currentBatch = jobIDs(batch)
	c.metrics.SetQueue(remaining, true)
	return batch, remaining, true
}

// processBatch параллельно обрабатывает все задачи батча и ждёт их завершения.
// Ошибка одной задачи не отменяет остальные.
func (c *Controller) processBatch(logger *slog.Logger, batch []queue.Job) {
	start := time.Now()

	// errgroup без WithContext: ошибки задач не отменяют соседние запросы
	var g errgroup.Group
	for _, job := range batch {
		g.Go(func() error {
			c.processJob(logger, job)
			return nil
		})
	}
	_ = g.Wait()

	// Батч завершён
	c.mu.Lock()
	c.currentBatch = nil
	c.mu.Unlock()

	c.metrics.ObserveBatch(time.Since(start))
}

// processJob выполняет одну задачу: запрос эмбеддинга и запись в хранилище.
func (c *Controller) processJob(logger *slog.Logger, job queue.Job) {
	start := time.Now()
	result := Result{Job: job}

	// Запрашиваем эмбеддинг и сохраняем его
	vec, err := c.embedder.EmbedImage(c.ctx, job.SourcePath)
	if err == nil {
		err = c.store.UpdateEmbedding(c.ctx, job.ImageID, vec)
	}
	result.Duration = time.Since(start)

	// Обновляем счётчики
	c.mu.Lock()
	if err != nil {
		c.failed++
	} else {
		c.processed++
	}
	c.mu.Unlock()

	if err != nil {
		result.Err = err
		c.metrics.JobFailed()
		logger.Error("не удалось получить эмбеддинг",
			"image_id", job.ImageID, "path", job.SourcePath, "error", err)
	} else {
		result.Embedding = vec
		c.metrics.JobProcessed()
		logger.Info("эмбеддинг сохранён",
			"image_id", job.ImageID, "dim", len(vec), "duration", result.Duration.Round(time.Millisecond))
	}

	if c.observer != nil {
		c.observer(result)
	}
}

// pauseIfPending делает паузу, если в очереди остались задачи.
// Возвращает false, если пауза прервана остановкой контроллера.
func (c *Controller) pauseIfPending() bool {
	if c.batchPause <= 0 || c.queue.Len() == 0 {
		return true
	}

	timer := time.NewTimer(c.batchPause)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-c.stop:
		return false
	}
}

func jobIDs(jobs []queue.Job) []int64 {
	ids := make([]int64, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ImageID
	}
	return ids
}
