package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pairs_go/internal/app"
	"pairs_go/internal/infra"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", app.DefaultConfigPath, "path to the YAML configuration")
	analyze := flag.String("analyze", "", "analyze one configured pair offline and print CSV to stdout")
	pprofAddr := flag.String("pprof", "", "pprof listen address, e.g. localhost:6060")
	flag.Parse()

	// 1. Offline analysis
	if *analyze != "" {
		cfg, err := infra.LoadConfig(*configPath)
		if err != nil {
			slog.Error("Failed to load config", slog.Any("error", err))
			os.Exit(1)
		}
		if err := app.RunAnalysis(os.Stdout, cfg, *analyze); err != nil {
			slog.Error("Analysis failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	// 2. Pprof Server (for performance profiling)
	if *pprofAddr != "" {
		go func() {
			slog.Info("Pprof server started", slog.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 3. System Bootstrapping
	bootstrap := app.NewBootstrap(*configPath)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 4. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Run until the replay ends or a signal arrives
	err := bootstrap.Run(ctx)
	slog.InfoContext(ctx, "Shutting down gracefully...")
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Engine stopped with errors", slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}
}
