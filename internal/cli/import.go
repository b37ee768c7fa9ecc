package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photovault/internal/scanner"
	"github.com/artemshloyda/photovault/internal/storage"
)

// collector копит задачи импорта, чтобы поставить их в очередь после сканирования.
type collector struct {
	refs []storage.ImageRef
}

func (c *collector) Enqueue(imageID int64, path string) error {
	c.refs = append(c.refs, storage.ImageRef{ID: imageID, FilePath: path})
	return nil
}

// newImportCmd создаёт команду import.
func newImportCmd(a *app) *cobra.Command {
	var registerOnly bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Зарегистрировать изображения из директории загрузок",
		Long: `Сканирует директорию загрузок, регистрирует новые файлы в базе
и считает эмбеддинги для всех найденных изображений, у которых их нет.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runImport(cmd.Context(), registerOnly)
		},
	}

	cmd.Flags().BoolVar(&registerOnly, "register-only", false, "Только зарегистрировать файлы, без расчёта эмбеддингов")
	cmd.Flags().BoolVar(&a.flags.NoProgress, "no-progress", a.flags.NoProgress, "Отключить прогресс-бар")

	return cmd
}

func (a *app) runImport(parent context.Context, registerOnly bool) error {
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

	scan := scanner.New(a.cfg, a.logger)
	if a.cfg.Verbose {
		count, _ := scan.CountFiles()
		fmt.Printf("📁 Найдено файлов: %d\n", count)
	}

	pending := &collector{}
	imp := scanner.NewImporter(store, pending, a.logger)

	var created, failed int
	files, errs := scan.Scan(ctx)
	for f := range files {
		res, err := imp.Import(ctx, f)
		if err != nil {
			failed++
			a.logger.Error("не удалось импортировать файл", "path", f.Path, "error", err)
			continue
		}
		if res.Created {
			created++
		}
	}
	if err := <-errs; err != nil {
		return err
	}

	fmt.Printf("📥 Импорт %s:\n", a.cfg.UploadDir)
	fmt.Printf("   Новых изображений: %d\n", created)
	fmt.Printf("   Без эмбеддинга: %d\n", len(pending.refs))
	if failed > 0 {
		fmt.Printf("   Ошибок: %d\n", failed)
	}

	if registerOnly || len(pending.refs) == 0 {
		return nil
	}

	client := a.newClient(nil)
	if err := requireService(ctx, client); err != nil {
		return fmt.Errorf("%w (запустите backfill позже)", err)
	}

	fmt.Println()
	summary, err := a.runEmbeddings(ctx, store, client, pending.refs)
	printSummary(summary)
	if err != nil {
		return err
	}
	if summary.Failed > 0 || failed > 0 {
		return fmt.Errorf("завершено с %d ошибками", summary.Failed+int64(failed))
	}
	return nil
}
