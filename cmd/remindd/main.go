package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/basket/remindd/internal/bus"
	"github.com/basket/remindd/internal/config"
	"github.com/basket/remindd/internal/engine"
	"github.com/basket/remindd/internal/maintenance"
	"github.com/basket/remindd/internal/notify"
	otelPkg "github.com/basket/remindd/internal/otel"
	"github.com/basket/remindd/internal/permission"
	"github.com/basket/remindd/internal/store"
	"github.com/basket/remindd/internal/telemetry"
	"github.com/basket/remindd/internal/view"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

  %s                  Start the interactive reminder TUI
  %s -daemon          Run headless (no TUI, logs to stdout)
  %s -version         Print version and exit

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  REMINDD_HOME         Data directory (default: ~/.remindd)
  REMINDD_NO_TUI       Set to 1 to disable the TUI
  REMINDD_DB_PATH      Override the sqlite database path
  TELEGRAM_TOKEN       Bot token for the Telegram channel
  TELEGRAM_CHAT_ID     Chat id for the Telegram channel

SIGNALS:
  SIGUSR1              Treated as a foreground transition: permission is
                       re-checked and the notification queue resynced
`)
}

func main() {
	daemon := flag.Bool("daemon", false, "run headless (no TUI, logs to stdout)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if *version {
		fmt.Println("remindd", Version)
		return
	}

	interactive := isatty.IsTerminal(os.Stdout.Fd()) &&
		os.Getenv("REMINDD_NO_TUI") == "" && !*daemon

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	// Quiet logs (file-only) in interactive mode so the TUI stays clean.
	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, cfg.Quiet || interactive)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "version", Version)

	otelProvider, err := otelPkg.Init(ctx, cfg.OTel)
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer func() { _ = otelProvider.Shutdown(context.Background()) }()

	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_METRICS_INIT", err)
	}

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	defer st.Close()
	logger.Info("startup phase", "phase", "schema_migrated", "db", cfg.DBPath)

	eventBus := bus.New()

	presentation := notify.Presentation{
		ShowAlert: cfg.Presentation.Alert,
		PlaySound: cfg.Presentation.Sound,
		ShowBadge: cfg.Presentation.Badge,
	}
	var presenter notify.Presenter
	if tg := cfg.Channels.Telegram; tg.Enabled {
		presenter, err = notify.NewTelegramPresenter(tg.Token, tg.ChatID, presentation, logger)
		if err != nil {
			fatalStartup(logger, "E_TELEGRAM_INIT", err)
		}
	} else {
		presenter = notify.NewLogPresenter(presentation, logger)
	}

	sched := notify.NewTimerScheduler(presenter, logger)
	defer sched.Close()

	monitor := permission.NewMonitor(permission.NewFileProber(cfg.HomeDir, logger), eventBus, logger)
	if err := monitor.Start(ctx); err != nil {
		fatalStartup(logger, "E_PERMISSION_PROBE", err)
	}

	eng := engine.New(st, sched, monitor, eventBus, metrics, logger)
	if err := eng.Resync(ctx); err != nil {
		fatalStartup(logger, "E_INITIAL_RESYNC", err)
	}
	logger.Info("startup phase", "phase", "queue_resynced")

	go eng.Run(ctx)

	if cfg.ResyncCron != "" {
		resyncer, err := maintenance.NewScheduler(maintenance.Config{
			Engine:   eng,
			CronExpr: cfg.ResyncCron,
			Logger:   logger,
		})
		if err != nil {
			fatalStartup(logger, "E_RESYNC_CRON", err)
		}
		resyncer.Start(ctx)
		defer resyncer.Stop()
	}

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			for range watcher.Events() {
				reloaded, err := config.Load()
				if err != nil {
					logger.Warn("config reload failed", "error", err)
					continue
				}
				telemetry.SetLevel(reloaded.LogLevel)
				logger.Info("config reloaded", "log_level", reloaded.LogLevel)
			}
		}()
	}

	// SIGUSR1 stands in for the background-to-foreground transition.
	foreground := make(chan os.Signal, 1)
	signal.Notify(foreground, syscall.SIGUSR1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-foreground:
				logger.Info("foreground transition")
				eventBus.Publish(bus.TopicLifecycleForeground, bus.ForegroundEvent{At: time.Now()})
			}
		}
	}()

	if interactive {
		if err := view.Run(ctx, eng, monitor.Granted, eventBus); err != nil && ctx.Err() == nil {
			logger.Error("view exited", "error", err)
			os.Exit(1)
		}
		return
	}

	logger.Info("remindd running", "pid", os.Getpid())
	<-ctx.Done()
	logger.Info("shutting down")
}

func fatalStartup(logger *slog.Logger, code string, err error) {
	if logger != nil {
		logger.Error("startup failed", "code", code, "error", err)
	}
	fmt.Fprintf(os.Stderr, "remindd: %s: %v\n", code, err)
	os.Exit(1)
}
