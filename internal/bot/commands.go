package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/parser"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, lang string) {
	chatID := msg.Chat.ID
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	// any command abandons a pending add or delete
	if cmd != "cancel" {
		b.state.Take(chatID)
	}

	switch cmd {
	case "start":
		b.reply(chatID, b.t(lang, "welcome"))
	case "help":
		b.reply(chatID, b.t(lang, "help"))
	case "add":
		b.cmdAdd(ctx, chatID, lang, args)
	case "list":
		b.cmdList(ctx, chatID, lang)
	case "delete":
		b.cmdDelete(ctx, chatID, lang, args)
	case "stats":
		b.cmdStats(ctx, chatID, lang)
	case "reminders":
		b.cmdReminders(ctx, chatID, lang)
	case "backup":
		b.cmdBackup(ctx, chatID, lang, args)
	case "stopbackup":
		b.cmdStopBackup(ctx, chatID, lang)
	case "export":
		b.cmdExport(ctx, chatID, lang)
	case "language":
		if err := b.SendMessageWithKeyboard(chatID, b.t(lang, "language.choose"), languageKeyboard()); err != nil {
			b.logger.Warn("send language keyboard", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	case "cancel":
		b.cmdCancel(chatID, lang)
	case "all":
		b.cmdAll(ctx, chatID, lang)
	default:
		b.reply(chatID, b.t(lang, "unknown_command"))
	}
}

func (b *Bot) cmdAdd(ctx context.Context, chatID int64, lang, args string) {
	if args == "" {
		b.state.Set(chatID, StateAwaitingAdd)
		b.reply(chatID, b.t(lang, "add.prompt"))
		return
	}
	b.addBirthdays(ctx, chatID, lang, args)
}

func (b *Bot) cmdList(ctx context.Context, chatID int64, lang string) {
	birthdays, err := b.birthdays.List(ctx, chatID)
	if err != nil {
		b.fail(chatID, lang, "list birthdays", err)
		return
	}
	b.reply(chatID, b.format.List(lang, birthdays, b.clock.Now()))
}

func (b *Bot) cmdDelete(ctx context.Context, chatID int64, lang, args string) {
	if args == "" {
		b.state.Set(chatID, StateAwaitingDelete)
		b.reply(chatID, b.t(lang, "delete.prompt"))
		return
	}
	b.deleteBirthdays(ctx, chatID, lang, args)
}

func (b *Bot) cmdStats(ctx context.Context, chatID int64, lang string) {
	st, err := b.birthdays.Stats(ctx, chatID)
	if err != nil {
		b.fail(chatID, lang, "birthday stats", err)
		return
	}
	b.reply(chatID, b.format.Stats(lang, st))
}

func (b *Bot) cmdReminders(ctx context.Context, chatID int64, lang string) {
	cs, err := b.settings.Get(ctx, chatID)
	if err != nil {
		b.fail(chatID, lang, "load chat settings", err)
		return
	}
	kb := b.thresholdKeyboard(lang, cs.Thresholds)
	if err := b.SendMessageWithKeyboard(chatID, b.t(lang, "reminders.title"), kb); err != nil {
		b.logger.Warn("send threshold keyboard", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) cmdBackup(ctx context.Context, chatID int64, lang, args string) {
	if args == "" {
		b.reply(chatID, b.t(lang, "backup.usage"))
		return
	}

	minutes, err := parser.ParseDuration(args)
	if err != nil {
		reason := domain.ReasonOf(err)
		text := "❌ " + b.format.Translator().Reason(lang, reason) + "."
		if reason == domain.ReasonUnknownUnit {
			text += "\n<code>" + strings.Join(parser.DurationUnits(), ", ") + "</code>"
		}
		b.reply(chatID, text+"\n\n"+b.t(lang, "backup.usage"))
		return
	}

	if err := b.tracker.Register(ctx, chatID, minutes); err != nil {
		b.fail(chatID, lang, "register backup", err)
		return
	}
	b.reply(chatID, b.format.Translator().Tf(lang, "backup.registered", map[string]any{
		"Interval": b.format.Interval(lang, minutes),
	}))
}

func (b *Bot) cmdStopBackup(ctx context.Context, chatID int64, lang string) {
	p, err := b.tracker.Get(ctx, chatID)
	if err != nil {
		b.fail(chatID, lang, "load backup ping", err)
		return
	}
	if p == nil || !p.IsActive {
		b.reply(chatID, b.t(lang, "backup.not_registered"))
		return
	}

	if err := b.tracker.Unregister(ctx, chatID); err != nil {
		b.fail(chatID, lang, "unregister backup", err)
		return
	}
	b.reply(chatID, b.t(lang, "backup.stopped"))
}

// cmdExport sends the calendar and contact files on demand.
func (b *Bot) cmdExport(ctx context.Context, chatID int64, lang string) {
	bundle, err := b.builder.Build(ctx, chatID)
	if err != nil {
		b.fail(chatID, lang, "build export", err)
		return
	}
	if bundle.Count == 0 {
		b.reply(chatID, b.t(lang, "list.empty"))
		return
	}

	caption := b.t(lang, "export.caption")
	for i, f := range bundle.Files {
		c := ""
		if i == 0 {
			c = caption
		}
		if err := b.SendDocument(chatID, f.Name, f.Data, c); err != nil {
			b.logger.Warn("send export", zap.Int64("chat_id", chatID), zap.String("file", f.Name), zap.Error(err))
			return
		}
	}
}

func (b *Bot) cmdCancel(chatID int64, lang string) {
	if b.state.Take(chatID) == StateIdle {
		b.reply(chatID, b.t(lang, "nothing_to_cancel"))
		return
	}
	b.reply(chatID, b.t(lang, "cancelled"))
}

// cmdAll lists every chat's birthdays. Admin only.
func (b *Bot) cmdAll(ctx context.Context, chatID int64, lang string) {
	if !b.cfg.IsAdmin(chatID) {
		b.reply(chatID, b.t(lang, "forbidden"))
		return
	}

	groups, err := b.birthdays.ListAll(ctx)
	if err != nil {
		b.fail(chatID, lang, "list all birthdays", err)
		return
	}
	b.reply(chatID, b.format.AllChats(lang, groups, b.clock.Now()))
}
