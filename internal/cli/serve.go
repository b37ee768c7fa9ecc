package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/artemshloyda/photovault/internal/metrics"
	"github.com/artemshloyda/photovault/internal/scanner"
	"github.com/artemshloyda/photovault/internal/search"
	"github.com/artemshloyda/photovault/internal/server"
	"github.com/artemshloyda/photovault/internal/watcher"
	"github.com/artemshloyda/photovault/internal/worker"
)

// newServeCmd создаёт команду serve.
func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API и очередь эмбеддингов",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&a.flags.HTTPAddr, "addr", a.flags.HTTPAddr, "Адрес HTTP сервера")
	flags.StringVar(&a.flags.AdminToken, "admin-token", a.flags.AdminToken, "Bearer токен для административных запросов")
	flags.IntVar(&a.flags.DefaultTopK, "top-k", a.flags.DefaultTopK, "Количество результатов поиска по умолчанию")
	flags.BoolVar(&a.flags.Watch, "watch", a.flags.Watch, "Следить за директорией загрузок")
	flags.DurationVar(&a.flags.WatchDebounce, "watch-debounce", a.flags.WatchDebounce, "Задержка перед импортом нового файла")

	return cmd
}

func (a *app) runServe(parent context.Context) error {
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	client := a.newClient(m)
	if err := requireService(ctx, client); err != nil {
		// сервис может подняться позже, задачи до этого будут завершаться ошибкой
		a.logger.Warn("сервис эмбеддингов недоступен при старте", "error", err)
	}

	ctrl := a.newController(client, store, worker.WithMetrics(m))
	searchSvc := search.New(store, client, a.logger)

	srv := server.New(store, ctrl, searchSvc, client,
		server.WithLogger(a.logger),
		server.WithAdminToken(a.cfg.AdminToken),
		server.WithDefaultTopK(a.cfg.DefaultTopK),
		server.WithMetricsHandler(metrics.Handler(registry)),
	)

	fmt.Printf("✅ Сервер запущен: http://localhost%s\n", a.cfg.HTTPAddr)
	fmt.Printf("📊 Сервис эмбеддингов: %s\n", a.cfg.EmbeddingServiceURL)
	fmt.Printf("🔄 Очередь эмбеддингов: батч %d, пауза %s\n", a.cfg.BatchSize, a.cfg.BatchPause)

	var w *watcher.Watcher
	if a.cfg.Watch {
		w, err = watcher.New(a.cfg, a.logger)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, a.cfg.HTTPAddr)
	})

	if w != nil {
		imp := scanner.NewImporter(store, ctrl, a.logger)
		fmt.Printf("👀 Слежение за директорией: %s\n", a.cfg.UploadDir)
		g.Go(func() error {
			return w.Run(gctx, imp)
		})
	}

	runErr := g.Wait()

	fmt.Println("\n⚠️  Остановка, дожидаемся текущего батча...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)
	}

	stats := ctrl.Stats()
	fmt.Printf("📊 За время работы: сохранено %d, ошибок %d\n", stats.Processed, stats.Failed)

	return runErr
}
