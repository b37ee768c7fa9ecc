package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newBackfillCmd создаёт команду backfill.
func newBackfillCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Посчитать эмбеддинги для изображений, у которых их нет",
		Long: `Ставит в очередь все изображения без эмбеддинга и ждёт, пока очередь опустеет.

Очередь живёт в памяти, поэтому после перезапуска сервиса недосчитанные
изображения восстанавливаются этой командой.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBackfill(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&a.flags.NoProgress, "no-progress", a.flags.NoProgress, "Отключить прогресс-бар")

	return cmd
}

func (a *app) runBackfill(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	client := a.newClient(nil)
	if err := requireService(ctx, client); err != nil {
		return err
	}

	refs, err := store.ListImagesWithoutEmbedding(ctx)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		fmt.Println("✅ У всех изображений есть эмбеддинги")
		return nil
	}

	fmt.Printf("🚀 Расчёт эмбеддингов: %d изображений, батч %d\n\n", len(refs), a.cfg.BatchSize)

	summary, err := a.runEmbeddings(ctx, store, client, refs)
	printSummary(summary)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("завершено с %d ошибками", summary.Failed)
	}
	return nil
}
