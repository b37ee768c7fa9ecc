package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/artemshloyda/photovault/internal/embedding"
	"github.com/artemshloyda/photovault/internal/metrics"
	"github.com/artemshloyda/photovault/internal/progress"
	"github.com/artemshloyda/photovault/internal/storage"
	"github.com/artemshloyda/photovault/internal/worker"
)

// shutdownTimeout - сколько ждать текущий батч при остановке.
const shutdownTimeout = 30 * time.Second

func (a *app) openStore() (*storage.Storage, error) {
	store, err := storage.New(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("не удалось инициализировать БД: %w", err)
	}
	return store, nil
}

func (a *app) newClient(m *metrics.Metrics) *embedding.Client {
	opts := []embedding.Option{
		embedding.WithTimeouts(a.cfg.EmbedTimeout, a.cfg.SearchTimeout, a.cfg.HealthTimeout),
		embedding.WithLogger(a.logger),
	}
	if m != nil {
		opts = append(opts, embedding.WithRecorder(m))
	}
	return embedding.New(a.cfg.EmbeddingServiceURL, opts...)
}

func (a *app) newController(client *embedding.Client, store *storage.Storage, extra ...worker.Option) *worker.Controller {
	opts := []worker.Option{
		worker.WithBatchSize(a.cfg.BatchSize),
		worker.WithBatchPause(a.cfg.BatchPause),
		worker.WithLogger(a.logger),
	}
	return worker.New(client, store, append(opts, extra...)...)
}

// runSummary - итог пакетного расчёта эмбеддингов.
type runSummary struct {
	Processed int64
	Failed    int64
	Skipped   int64
	Duration  time.Duration
}

// runEmbeddings ставит refs в очередь и ждёт, пока очередь опустеет.
// Изображения без файла на диске пропускаются.
func (a *app) runEmbeddings(ctx context.Context, store *storage.Storage, client *embedding.Client, refs []storage.ImageRef) (runSummary, error) {
	bar := progress.New(progress.Options{
		Total:    int64(len(refs)),
		Disabled: a.cfg.NoProgress,
		Verbose:  a.cfg.Verbose,
	})
	ctrl := a.newController(client, store, worker.WithObserver(bar.Observe))

	for _, ref := range refs {
		if _, err := os.Stat(ref.FilePath); err != nil {
			bar.IncrementSkipped()
			a.logger.Warn("пропуск изображения: файл не найден", "image_id", ref.ID, "path", ref.FilePath)
			continue
		}
		if err := ctrl.Enqueue(ref.ID, ref.FilePath); err != nil {
			return runSummary{}, err
		}
	}

	waitErr := ctrl.Wait(ctx)
	if waitErr != nil {
		bar.WriteMessage("\n⚠️  Получен сигнал завершения, дожидаемся текущего батча...\n")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := ctrl.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("очередь остановлена принудительно", "error", err)
		}
	} else {
		bar.Finish()
	}

	processed, skipped, failed := bar.Stats()
	summary := runSummary{Processed: processed, Failed: failed, Skipped: skipped, Duration: bar.Duration()}

	if errors.Is(waitErr, context.Canceled) {
		return summary, fmt.Errorf("прервано: %w", waitErr)
	}
	return summary, waitErr
}

func printSummary(s runSummary) {
	fmt.Println()
	fmt.Printf("📊 Результаты:\n")
	fmt.Printf("   Сохранено эмбеддингов: %d\n", s.Processed)
	fmt.Printf("   Пропущено: %d\n", s.Skipped)
	fmt.Printf("   Ошибок: %d\n", s.Failed)
	fmt.Printf("   Время: %s\n", s.Duration.Round(time.Millisecond))
}

// requireService проверяет, что сервис эмбеддингов запущен и модель загружена.
func requireService(ctx context.Context, client *embedding.Client) error {
	h, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("сервис эмбеддингов %s недоступен: %w", client.BaseURL(), err)
	}
	if !h.ModelLoaded {
		return fmt.Errorf("сервис эмбеддингов %s запущен, но модель не загружена", client.BaseURL())
	}
	return nil
}
