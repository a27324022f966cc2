package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tazhate/birthdaybot/config"
	"github.com/tazhate/birthdaybot/internal/backup"
	"github.com/tazhate/birthdaybot/internal/bot"
	"github.com/tazhate/birthdaybot/internal/clients/caldav"
	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/i18n"
	"github.com/tazhate/birthdaybot/internal/logger"
	"github.com/tazhate/birthdaybot/internal/reminder"
	"github.com/tazhate/birthdaybot/internal/scheduler"
	"github.com/tazhate/birthdaybot/internal/service"
	"github.com/tazhate/birthdaybot/internal/storage"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "birthdaybot",
		Short:        "Telegram bot that reminds chats about birthdays",
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the bot and the reminder scheduler (default)",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "backup",
			Short: "Write a snapshot of the database into BACKUP_DIR",
			RunE:  runBackup,
		},
		&cobra.Command{
			Use:   "restore <file>",
			Short: "Replace the database with a snapshot, keeping a restore point",
			Args:  cobra.ExactArgs(1),
			RunE:  runRestore,
		},
		&cobra.Command{
			Use:   "calendars",
			Short: "List the CalDAV calendars visible to the configured account",
			RunE:  runCalendars,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

// setup loads the configuration and builds the logger every command uses.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	tr, err := i18n.New(log)
	if err != nil {
		return fmt.Errorf("init translations: %w", err)
	}

	clock := domain.RealClock{Location: cfg.Timezone}
	format := service.NewFormatter(tr)
	birthdays := service.NewBirthdayService(store, clock, log)
	settings := service.NewSettingsService(store, log)
	tracker := backup.NewTracker(store, clock, log)
	builder := backup.NewBuilder(store, clock, log)
	engine := reminder.NewEngine(store, clock, log)

	if cal := caldav.NewClient(cfg.CalDAV.URL, cfg.CalDAV.Username, cfg.CalDAV.Password, cfg.CalDAV.Calendar, log); cal.IsConfigured() {
		birthdays.WithMirror(cal)
		builder.WithMirror(cal)
		log.Info("caldav mirror enabled", zap.String("calendar", cfg.CalDAV.Calendar))
	}

	tgBot, err := bot.New(cfg, bot.Deps{
		Birthdays: birthdays,
		Settings:  settings,
		Tracker:   tracker,
		Builder:   builder,
		Format:    format,
		Clock:     clock,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("init bot: %w", err)
	}

	sched := scheduler.New(cfg, engine, tracker, builder, settings, format, clock, log)
	sched.SetSender(tgBot)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		if err := sched.Start(ctx); err != nil {
			errCh <- fmt.Errorf("scheduler: %w", err)
		}
	}()
	go func() {
		if err := tgBot.Start(ctx); err != nil {
			errCh <- fmt.Errorf("bot: %w", err)
		}
	}()

	log.Info("birthdaybot started",
		zap.String("version", version),
		zap.String("db", cfg.DatabasePath),
		zap.Bool("webhook", cfg.UseWebhook()),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.Error("component failed", zap.Error(runErr))
		cancel()
	}

	log.Info("shutting down")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := tgBot.Stop(shutdownCtx); err != nil {
		log.Warn("stop bot", zap.Error(err))
	}

	log.Info("birthdaybot stopped")
	return runErr
}

func runBackup(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	path, err := backup.Snapshot(cmd.Context(), store, cfg.BackupDir, time.Now())
	if err != nil {
		return err
	}

	log.Info("snapshot written", zap.String("path", path))
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// runRestore must run while the bot is stopped: the database file is
// replaced underneath any open connection.
func runRestore(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	restorePoint, err := backup.Restore(cfg.DatabasePath, args[0], cfg.BackupDir, time.Now())
	if err != nil {
		return err
	}

	// opening runs the migrations, so an older snapshot is brought up to date
	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open restored database: %w", err)
	}
	defer store.Close()

	log.Info("database restored",
		zap.String("from", args[0]),
		zap.String("db", cfg.DatabasePath),
		zap.String("restore_point", restorePoint),
	)
	if restorePoint != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "previous database saved to %s\n", restorePoint)
	}
	return nil
}

func runCalendars(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.CalDAV.Username == "" || cfg.CalDAV.Password == "" {
		return errors.New("CALDAV_USERNAME and CALDAV_PASSWORD are required")
	}

	cal := caldav.NewClient(cfg.CalDAV.URL, cfg.CalDAV.Username, cfg.CalDAV.Password, cfg.CalDAV.Calendar, log)
	calendars, err := cal.DiscoverCalendars(cmd.Context())
	if err != nil {
		return err
	}

	for _, c := range calendars {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Path, c.DisplayName)
	}
	return nil
}
