package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photovault/internal/config"
)

// newStatsCmd создаёт команду stats.
func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Показать покрытие изображений эмбеддингами",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			cov, err := store.CountCoverage(ctx)
			if err != nil {
				return fmt.Errorf("не удалось получить статистику: %w", err)
			}

			available := a.newClient(nil).Available(ctx)

			fmt.Printf("📊 Статистика базы данных:\n")
			fmt.Printf("   Всего изображений: %d\n", cov.Total)
			fmt.Printf("   С эмбеддингом: %d\n", cov.WithEmbedding)
			fmt.Printf("   Без эмбеддинга: %d\n", cov.Without())
			fmt.Printf("   Покрытие: %.1f%%\n", cov.Percent())
			if available {
				fmt.Printf("   Сервис эмбеддингов: ✅ %s\n", a.cfg.EmbeddingServiceURL)
			} else {
				fmt.Printf("   Сервис эмбеддингов: ❌ %s\n", a.cfg.EmbeddingServiceURL)
			}

			return nil
		},
	}
}

// newConfigCmd создаёт команду config.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Работа с файлом конфигурации",
	}

	var (
		output string
		force  bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Создать пример файла конфигурации",
		// init работает и без валидной конфигурации
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("файл %s уже существует (используйте --force)", output)
				}
			}
			if err := os.WriteFile(output, []byte(config.GenerateExampleConfig()), 0o644); err != nil {
				return fmt.Errorf("не удалось записать %s: %w", output, err)
			}
			fmt.Printf("✅ Создан файл конфигурации: %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "photovault.yaml", "Куда записать файл")
	initCmd.Flags().BoolVar(&force, "force", false, "Перезаписать существующий файл")

	cmd.AddCommand(initCmd)
	return cmd
}
