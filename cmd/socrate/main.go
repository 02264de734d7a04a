// Command socrate watches folders for incoming PDFs, OCRs the ones
// without a text layer, and places the searchable result according to
// each folder's rule.
//
// Usage:
//
//	socrate -config socrate.yaml
//	socrate -log-level debug
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/apoussier/socrate/api"
	"github.com/apoussier/socrate/config"
	"github.com/apoussier/socrate/counter"
	"github.com/apoussier/socrate/history"
	"github.com/apoussier/socrate/naming"
	"github.com/apoussier/socrate/observability"
	"github.com/apoussier/socrate/ocr"
	"github.com/apoussier/socrate/pdfcheck"
	"github.com/apoussier/socrate/pipeline"
	"github.com/apoussier/socrate/rules"
	"github.com/apoussier/socrate/watcher"
)

func main() {
	configPath := flag.String("config", "socrate.yaml", "path to YAML config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, level); err != nil {
		slog.Error("socrate: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, level slog.Level) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	stream := observability.NewStream()
	logger, logCloser, err := observability.NewLogger(cfg.LogFile(), level, stream)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger.Info("starting", slog.String("config", configPath), slog.String("data_dir", cfg.DataDir))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	hist, err := history.Open(cfg.HistoryDB())
	if err != nil {
		return err
	}
	defer hist.Close()

	ruleStore := rules.Load(cfg.RulesFile(), logger)
	counters := counter.New(cfg.StateFile())
	resolver := naming.New(counters, pdfcheck.PageCount)

	engine := ocr.NewTesseractEngine(ocr.EngineConfig{
		TessdataPrefix: cfg.OCR.TessdataPrefix,
		Variables:      cfg.OCR.Variables,
	})
	transformer := ocr.NewTransformer(engine, logger)
	dispatcher := pipeline.NewDispatcher(logger, resolver, transformer, hist)

	// The watcher is rebuilt whenever the rule set changes through the
	// admin API. One runner at a time; mutations queue behind restart.
	var mu sync.Mutex
	var active *watcher.Watcher

	startWatcher := func() error {
		mu.Lock()
		defer mu.Unlock()
		if active != nil {
			active.Stop(cfg.StopTimeout())
		}
		ruleList := ruleStore.List()
		for i := range ruleList {
			if ruleList[i].Lang == "" {
				ruleList[i].Lang = cfg.OCR.DefaultLang
			}
		}
		w := watcher.New(watcher.Config{
			Debounce:         cfg.Debounce(),
			StabilityMaxWait: cfg.StabilityMaxWait(),
			StabilityPoll:    cfg.StabilityPoll(),
			MaxConcurrent:    cfg.Watcher.MaxConcurrent,
		}, logger, dispatcher, ruleList)
		if err := w.Start(); err != nil {
			return err
		}
		active = w
		return nil
	}

	if err := startWatcher(); err != nil {
		return err
	}

	restart := make(chan struct{}, 1)
	apiSrv := api.NewServer(logger, ruleStore, hist, stream, func() {
		select {
		case restart <- struct{}{}:
		default:
		}
	})
	httpSrv := &http.Server{Addr: cfg.Listen, Handler: apiSrv.Router()}

	go func() {
		logger.Info("admin api listening", slog.String("addr", cfg.Listen))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin api failed", slog.String("error", err.Error()))
		}
	}()

	cleanupTicker := time.NewTicker(24 * time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			httpSrv.Shutdown(shutdownCtx)
			cancel()
			mu.Lock()
			if active != nil {
				active.Stop(cfg.StopTimeout())
			}
			mu.Unlock()
			return nil
		case <-restart:
			logger.Info("rules changed, restarting watcher")
			if err := startWatcher(); err != nil {
				logger.Error("watcher restart failed", slog.String("error", err.Error()))
			}
		case <-cleanupTicker.C:
			if n, err := hist.Cleanup(cfg.History.RetentionDays); err != nil {
				logger.Warn("history cleanup failed", slog.String("error", err.Error()))
			} else if n > 0 {
				logger.Info("history cleanup", slog.Int64("removed", n))
			}
		}
	}
}
