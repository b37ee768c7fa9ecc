// Package cli содержит CLI интерфейс приложения.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photovault/internal/config"
	"github.com/artemshloyda/photovault/internal/logging"
)

var (
	// Version будет установлена при сборке.
	Version = "dev"

	// BuildTime будет установлена при сборке.
	BuildTime = "unknown"
)

// app содержит состояние одного запуска CLI.
type app struct {
	// flags - значения, привязанные к флагам. Учитываются только явно заданные.
	flags *config.Config

	// cfg - итоговая конфигурация: defaults → файл → окружение → флаги.
	cfg *config.Config

	configPath string
	envFile    string
	logFormat  string

	logger *slog.Logger
}

// NewRootCmd создаёт корневую команду CLI.
func NewRootCmd() *cobra.Command {
	a := &app{flags: config.DefaultConfig()}

	rootCmd := &cobra.Command{
		Use:   "photovault",
		Short: "Фотобиблиотека с семантическим поиском",
		Long: `PhotoVault - сервис фотобиблиотеки с асинхронным расчётом эмбеддингов.

Новые изображения ставятся в очередь, эмбеддинги считаются внешним сервисом
пачками по несколько штук и сохраняются в SQLite. По сохранённым эмбеддингам
работает поиск на естественном языке.

Примеры:
  # Запустить HTTP API и следить за директорией загрузок
  photovault serve --upload-dir ./uploads --watch

  # Посчитать эмбеддинги для всех изображений, где их нет
  photovault backfill

  # Зарегистрировать файлы из директории и посчитать эмбеддинги
  photovault import --upload-dir ./uploads

  # Покрытие эмбеддингами
  photovault stats`,
		SilenceUsage:      true,
		PersistentPreRunE: a.loadConfig,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Путь к YAML файлу конфигурации")
	flags.StringVar(&a.envFile, "env-file", ".env", "Путь к .env файлу")
	flags.StringVar(&a.flags.DBPath, "db", a.flags.DBPath, "Путь к SQLite базе данных")
	flags.StringVar(&a.flags.UploadDir, "upload-dir", a.flags.UploadDir, "Директория загрузок")
	flags.StringSliceVar(&a.flags.Extensions, "ext", a.flags.Extensions, "Расширения изображений через запятую")
	flags.StringVar(&a.flags.EmbeddingServiceURL, "clip-url", a.flags.EmbeddingServiceURL, "URL сервиса эмбеддингов")
	flags.DurationVar(&a.flags.EmbedTimeout, "embed-timeout", a.flags.EmbedTimeout, "Таймаут расчёта эмбеддинга одного изображения")
	flags.IntVar(&a.flags.BatchSize, "batch-size", a.flags.BatchSize, "Размер батча очереди эмбеддингов")
	flags.DurationVar(&a.flags.BatchPause, "batch-pause", a.flags.BatchPause, "Пауза между батчами")
	flags.StringVar(&a.flags.LogLevel, "log-level", a.flags.LogLevel, "Уровень логов: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", string(a.flags.LogFormat), "Формат логов: text, json")
	flags.BoolVarP(&a.flags.Verbose, "verbose", "v", a.flags.Verbose, "Подробный вывод")

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newBackfillCmd(a))
	rootCmd.AddCommand(newImportCmd(a))
	rootCmd.AddCommand(newStatsCmd(a))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig собирает конфигурацию и создаёт логгер.
func (a *app) loadConfig(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}

	fc, path, err := config.FindAndLoadConfig(a.configPath)
	if err != nil {
		return err
	}

	a.flags.LogFormat = config.LogFormat(a.logFormat)
	cfg, err := resolve(fc, os.LookupEnv, a.flags, cmd.Flags().Changed)
	if err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	a.logger = logger
	slog.SetDefault(logger)

	if path != "" {
		logger.Debug("загружен файл конфигурации", "path", path)
	}
	return nil
}

// newVersionCmd создаёт команду version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		// version работает без конфигурации
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("photovault %s (built %s)\n", Version, BuildTime)
		},
	}
}

// Execute запускает CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		// Не выводим ошибку, cobra уже вывела
		os.Exit(1)
	}
}
