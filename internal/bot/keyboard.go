package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/birthdaybot/internal/domain"
)

const (
	callbackThreshold = "thr"
	callbackLanguage  = "lang"
)

var languageNames = map[string]string{
	"en": "🇬🇧 English",
	"ru": "🇷🇺 Русский",
}

// thresholdKeyboard has one toggle per supported threshold, checked when
// enabled for the chat.
func (b *Bot) thresholdKeyboard(lang string, enabled domain.Thresholds) tgbotapi.InlineKeyboardMarkup {
	tr := b.format.Translator()

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, days := range domain.SupportedThresholds {
		mark := "⬜"
		if enabled.Contains(days) {
			mark = "✅"
		}
		label := fmt.Sprintf("%s %s", mark, tr.T(lang, fmt.Sprintf("threshold.%d", days)))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s:%d", callbackThreshold, days)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func languageKeyboard() tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, lang := range domain.SupportedLanguages {
		name := languageNames[lang]
		if name == "" {
			name = lang
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(name, callbackLanguage+":"+lang))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// parseCallback splits "kind:value" callback data.
func parseCallback(data string) (kind, value string) {
	kind, value, _ = strings.Cut(data, ":")
	return kind, value
}

func parseThresholdValue(value string) (int, bool) {
	days, err := strconv.Atoi(value)
	if err != nil || !domain.IsSupportedThreshold(days) {
		return 0, false
	}
	return days, true
}
