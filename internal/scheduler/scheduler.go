package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tazhate/birthdaybot/config"
	"github.com/tazhate/birthdaybot/internal/backup"
	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/reminder"
	"github.com/tazhate/birthdaybot/internal/service"
)

type MessageSender interface {
	SendMessage(chatID int64, text string) error
	SendDocument(chatID int64, name string, data []byte, caption string) error
}

// SettingsProvider resolves a chat's language and reminder thresholds.
type SettingsProvider interface {
	Get(ctx context.Context, chatID int64) (*domain.ChatSettings, error)
}

type Scheduler struct {
	cron     *cron.Cron
	cfg      *config.Config
	engine   *reminder.Engine
	tracker  *backup.Tracker
	builder  *backup.Builder
	settings SettingsProvider
	format   *service.Formatter
	clock    domain.Clock
	logger   *zap.Logger
	sender   MessageSender
}

func New(
	cfg *config.Config,
	engine *reminder.Engine,
	tracker *backup.Tracker,
	builder *backup.Builder,
	settings SettingsProvider,
	format *service.Formatter,
	clock domain.Clock,
	logger *zap.Logger,
) *Scheduler {
	cl := cronLogger{l: logger.Sugar()}

	c := cron.New(
		cron.WithLocation(cfg.Timezone),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	return &Scheduler{
		cron:     c,
		cfg:      cfg,
		engine:   engine,
		tracker:  tracker,
		builder:  builder,
		settings: settings,
		format:   format,
		clock:    clock,
		logger:   logger,
	}
}

func (s *Scheduler) SetSender(sender MessageSender) {
	s.sender = sender
}

// Start registers the jobs, runs one flag reset and blocks until ctx is
// done.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"reminder scan", s.cfg.ReminderScanSpec, s.ScanReminders},
		{"flag reset", s.cfg.FlagResetSpec, s.ResetFlags},
		{"backup scan", s.cfg.BackupScanSpec, s.ScanBackups},
	}
	for _, job := range jobs {
		run := job.run
		if _, err := s.cron.AddFunc(job.spec, func() { run(ctx) }); err != nil {
			return fmt.Errorf("add %s %q: %w", job.name, job.spec, err)
		}
	}

	// flags may have gone stale while the process was down
	s.ResetFlags(ctx)

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("timezone", s.cfg.Timezone.String()),
		zap.String("reminder_scan", s.cfg.ReminderScanSpec),
		zap.String("flag_reset", s.cfg.FlagResetSpec),
		zap.String("backup_scan", s.cfg.BackupScanSpec),
	)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// ScanReminders delivers every pending reminder that is due today. A
// reminder is marked announced only after it was sent; failures are retried
// on the next scan. Outside daytime hours nothing is sent.
func (s *Scheduler) ScanReminders(ctx context.Context) {
	if s.sender == nil {
		return
	}

	now := s.localNow()
	if !s.cfg.IsDaytime(now) {
		s.logger.Debug("reminder scan skipped outside daytime", zap.Time("now", now))
		return
	}

	sent := 0
	for _, threshold := range domain.SupportedThresholds {
		due, err := s.engine.DueRecords(ctx, threshold, now)
		if err != nil {
			s.logger.Error("load due reminders", zap.Int("threshold", threshold), zap.Error(err))
			continue
		}

		for _, b := range due {
			if s.notify(ctx, b, threshold, now) {
				sent++
			}
		}
	}

	if sent > 0 {
		s.logger.Info("reminders sent", zap.Int("count", sent))
	}
}

func (s *Scheduler) notify(ctx context.Context, b *domain.Birthday, threshold int, now time.Time) bool {
	log := s.logger.With(
		zap.Int64("chat_id", b.ChatID),
		zap.Int64("birthday_id", b.ID),
		zap.Int("threshold", threshold),
	)

	cs, err := s.settings.Get(ctx, b.ChatID)
	if err != nil {
		log.Error("load chat settings", zap.Error(err))
		return false
	}
	if !cs.Thresholds.Contains(threshold) {
		return false
	}

	text := s.format.Reminder(cs.Language, b, threshold, now)
	if err := s.sender.SendMessage(b.ChatID, text); err != nil {
		log.Warn("send reminder", zap.Error(err))
		return false
	}

	if err := s.engine.MarkAnnounced(ctx, b.ID, threshold); err != nil {
		log.Error("mark reminder announced", zap.Error(err))
	}
	return true
}

// ResetFlags returns reminders of long past occurrences to pending.
func (s *Scheduler) ResetFlags(ctx context.Context) {
	if _, err := s.engine.ResetStaleFlags(ctx, s.localNow()); err != nil {
		s.logger.Error("reset reminder flags", zap.Error(err))
	}
}

// localNow reads the clock in the configured zone, which decides the
// calendar day reminders are due on.
func (s *Scheduler) localNow() time.Time {
	return s.clock.Now().In(s.cfg.Timezone)
}

// ScanBackups sends the backup bundle to every chat whose interval has
// elapsed. A chat is marked fired only after all files were sent.
func (s *Scheduler) ScanBackups(ctx context.Context) {
	if s.sender == nil {
		return
	}

	now := s.clock.Now()
	chats, err := s.tracker.DueChats(ctx, now)
	if err != nil {
		s.logger.Error("load due backups", zap.Error(err))
		return
	}

	for _, chatID := range chats {
		if err := s.SendBackup(ctx, chatID); err != nil {
			s.logger.Warn("send backup", zap.Int64("chat_id", chatID), zap.Error(err))
			continue
		}
		if err := s.tracker.MarkFired(ctx, chatID, now); err != nil {
			s.logger.Error("mark backup fired", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}

// SendBackup builds and sends chatID's bundle. The caption goes on the
// first file.
func (s *Scheduler) SendBackup(ctx context.Context, chatID int64) error {
	bundle, err := s.builder.Build(ctx, chatID)
	if err != nil {
		return err
	}

	lang := domain.DefaultLanguage
	if cs, err := s.settings.Get(ctx, chatID); err == nil {
		lang = cs.Language
	}
	caption := s.format.Translator().Plural(lang, "backup.caption", bundle.Count, nil)

	for i, f := range bundle.Files {
		c := ""
		if i == 0 {
			c = caption
		}
		if err := s.sender.SendDocument(chatID, f.Name, f.Data, c); err != nil {
			return fmt.Errorf("send %s: %w", f.Name, err)
		}
	}
	return nil
}

// cronLogger routes cron's own messages into zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
