package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/service"
)

const handlerTimeout = 30 * time.Second

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic in update handler", zap.Int("update_id", update.UpdateID), zap.Any("panic", r))
		}
	}()

	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	lang := b.settings.Language(ctx, chatID)

	if msg.IsCommand() {
		b.handleCommand(ctx, msg, lang)
		return
	}

	switch b.state.Take(chatID) {
	case StateAwaitingAdd:
		b.addBirthdays(ctx, chatID, lang, text)
	case StateAwaitingDelete:
		b.deleteBirthdays(ctx, chatID, lang, text)
	default:
		b.reply(chatID, b.t(lang, "unknown_command"))
	}
}

// addBirthdays stores a batch. On rejection the chat stays in the add flow
// so the corrected batch can be sent right away.
func (b *Bot) addBirthdays(ctx context.Context, chatID int64, lang, text string) {
	added, err := b.birthdays.Add(ctx, chatID, text)
	if err != nil {
		if errors.Is(err, domain.ErrPartialBatchRejected) {
			b.state.Set(chatID, StateAwaitingAdd)
			b.reply(chatID, b.format.Rejection(lang, err))
			return
		}
		b.fail(chatID, lang, "add birthdays", err)
		return
	}

	b.reply(chatID, b.format.Translator().Plural(lang, "add.success", len(added), nil))
}

func (b *Bot) deleteBirthdays(ctx context.Context, chatID int64, lang, text string) {
	deleted, notFound, err := b.birthdays.Delete(ctx, chatID, text)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedInput) {
			b.state.Set(chatID, StateAwaitingDelete)
			b.reply(chatID, b.t(lang, "delete.malformed"))
			return
		}
		b.fail(chatID, lang, "delete birthdays", err)
		return
	}

	var parts []string
	if len(deleted) > 0 {
		parts = append(parts, b.format.Translator().Tf(lang, "delete.done", map[string]any{"IDs": service.IDs(deleted)}))
	}
	if len(notFound) > 0 {
		parts = append(parts, b.format.Translator().Tf(lang, "delete.not_found", map[string]any{"IDs": service.IDs(notFound)}))
	}
	b.reply(chatID, strings.Join(parts, "\n"))
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil || callback.Message.Chat == nil {
		b.answer(callback.ID, "")
		return
	}
	chatID := callback.Message.Chat.ID
	msgID := callback.Message.MessageID

	kind, value := parseCallback(callback.Data)
	switch kind {
	case callbackThreshold:
		days, ok := parseThresholdValue(value)
		if !ok {
			b.answer(callback.ID, "")
			return
		}
		cs, err := b.settings.ToggleThreshold(ctx, chatID, days)
		if err != nil {
			b.logger.Error("toggle threshold", zap.Int64("chat_id", chatID), zap.Error(err))
			b.answer(callback.ID, b.t(domain.DefaultLanguage, "error_generic"))
			return
		}
		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, b.thresholdKeyboard(cs.Language, cs.Thresholds))
		if _, err := b.api.Request(edit); err != nil {
			b.logger.Warn("edit threshold keyboard", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		b.answer(callback.ID, b.t(cs.Language, "reminders.saved"))

	case callbackLanguage:
		if err := b.settings.SetLanguage(ctx, chatID, value); err != nil {
			b.logger.Warn("set language", zap.Int64("chat_id", chatID), zap.String("language", value), zap.Error(err))
			b.answer(callback.ID, "")
			return
		}
		text := b.t(value, "language.set")
		edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
		if _, err := b.api.Request(edit); err != nil {
			b.logger.Warn("edit language message", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		b.answer(callback.ID, text)

	default:
		b.answer(callback.ID, "")
	}
}

func (b *Bot) t(lang, id string) string {
	return b.format.Translator().T(lang, id)
}

// reply sends text and logs delivery failures.
func (b *Bot) reply(chatID int64, text string) {
	if err := b.SendMessage(chatID, text); err != nil {
		b.logger.Warn("send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// fail logs err and tells the chat something went wrong.
func (b *Bot) fail(chatID int64, lang, op string, err error) {
	b.logger.Error(op, zap.Int64("chat_id", chatID), zap.Error(err))
	b.reply(chatID, b.t(lang, "error_generic"))
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Warn("answer callback", zap.Error(err))
	}
}
