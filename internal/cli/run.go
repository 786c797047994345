package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-status/internal/agent"
	"github.com/cptspacemanspiff/battery-status/internal/collector"
	"github.com/cptspacemanspiff/battery-status/internal/config"
	dbussvc "github.com/cptspacemanspiff/battery-status/internal/dbus"
	"github.com/cptspacemanspiff/battery-status/internal/logging"
	"github.com/cptspacemanspiff/battery-status/internal/notify"
	"github.com/cptspacemanspiff/battery-status/internal/power"
	"github.com/cptspacemanspiff/battery-status/internal/scheduler"
	"github.com/cptspacemanspiff/battery-status/internal/storage"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent in the foreground",
	Long: `Run the agent until SIGINT or SIGTERM. Under systemd, install
packaging/battery-status.service as a user unit so the agent is restarted
when it gets killed.`,
	Args: cobra.NoArgs,
	RunE: runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	session, err := godbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer session.Close()

	src, closeBuses := openDisplaySource(cfg, session, logger.With("topic", logging.TopicDisplay))
	defer closeBuses()
	defer src.Close()

	tracker := power.NewTracker(src, logger.With("topic", logging.TopicDisplay))

	desktop, err := notify.NewDesktop(session, cfg.Notification.AppName, cfg.Notification.Icon, logger.With("topic", logging.TopicNotify))
	if err != nil {
		return fmt.Errorf("notification surface: %w", err)
	}
	defer desktop.Close()

	renderer := notify.NewRenderer(desktop, cfg.Notification.Summary)
	battery := collector.NewSysfsSource(cfg.Battery.Supply)
	sampler := collector.NewSampler(battery, logger.With("topic", logging.TopicBattery))

	host := agent.NewHost(agent.Options{
		Power:           tracker,
		Clicks:          desktop.Clicks(),
		Placeholder:     renderer.RenderPlaceholder,
		Journal:         store,
		Retention:       time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour,
		CleanupInterval: time.Duration(cfg.Journal.CleanupIntervalHours) * time.Hour,
		Logger:          logger,
		JournalLogger:   logger.With("topic", logging.TopicJournal),
	})
	sched := scheduler.New(scheduler.Config{
		Sampler:  sampler,
		Renderer: renderer,
		Power:    tracker,
		Post:     host.Post,
		Logger:   logger.With("topic", logging.TopicScheduler),
	})

	svc := dbussvc.NewService(dbussvc.Deps{
		Sampler:   sampler,
		Identity:  battery,
		Scheduler: sched,
		Power:     tracker,
		Content:   renderer,
		Host:      host,
		Journal:   store,
	})
	if err := svc.Export(session); err != nil {
		return fmt.Errorf("export dbus service: %w", err)
	}
	logger.Info("D-Bus service registered", "name", dbussvc.BusName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go tracker.Run(ctx)

	return host.Run(ctx, sched)
}

// openDisplaySource builds the configured display sources. Sources that
// cannot be set up are skipped with a warning. The returned func closes the
// system bus connection if one was opened.
func openDisplaySource(cfg *config.Config, session *godbus.Conn, logger *slog.Logger) (power.Source, func()) {
	var (
		sources []power.Source
		system  *godbus.Conn
	)
	for _, name := range cfg.Display.Sources {
		switch name {
		case config.SourceScreenSaver:
			s, err := power.NewScreenSaverSource(session, logger)
			if err != nil {
				logger.Warn("screensaver source unavailable", "err", err)
				continue
			}
			sources = append(sources, s)
		case config.SourceSleep:
			if system == nil {
				conn, err := godbus.ConnectSystemBus()
				if err != nil {
					logger.Warn("sleep source unavailable", "err", err)
					continue
				}
				system = conn
			}
			s, err := power.NewSleepSource(system, logger)
			if err != nil {
				logger.Warn("sleep source unavailable", "err", err)
				continue
			}
			sources = append(sources, s)
		case config.SourceBacklight:
			interval := time.Duration(cfg.Display.BacklightPollMs) * time.Millisecond
			sources = append(sources, power.NewBacklightSource(interval, logger))
		}
	}
	if len(sources) == 0 {
		logger.Warn("no display source available, display assumed on")
	}

	closeBuses := func() {
		if system != nil {
			system.Close()
		}
	}
	return power.NewMultiSource(sources...), closeBuses
}
