// Package i18n loads the bot's message catalogs and renders localized text.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/tazhate/birthdaybot/internal/domain"
)

//go:embed locales/*.json
var localeFS embed.FS

// Translator renders message ids in one of the supported languages. Unknown
// languages fall back to English; unknown ids render as the id itself.
type Translator struct {
	bundle     *goi18n.Bundle
	localizers map[string]*goi18n.Localizer
	logger     *zap.Logger
}

func New(logger *zap.Logger) (*Translator, error) {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	localizers := make(map[string]*goi18n.Localizer, len(domain.SupportedLanguages))
	for _, lang := range domain.SupportedLanguages {
		path := "locales/active." + lang + ".json"
		if _, err := bundle.LoadMessageFileFS(localeFS, path); err != nil {
			return nil, fmt.Errorf("load locale %s: %w", lang, err)
		}
		localizers[lang] = goi18n.NewLocalizer(bundle, lang)
	}

	return &Translator{bundle: bundle, localizers: localizers, logger: logger}, nil
}

func (t *Translator) localizer(lang string) *goi18n.Localizer {
	if l, ok := t.localizers[lang]; ok {
		return l
	}
	return t.localizers[domain.DefaultLanguage]
}

// T renders id without template data.
func (t *Translator) T(lang, id string) string {
	return t.render(lang, &goi18n.LocalizeConfig{MessageID: id})
}

// Tf renders id with data substituted into the template.
func (t *Translator) Tf(lang, id string, data map[string]any) string {
	return t.render(lang, &goi18n.LocalizeConfig{MessageID: id, TemplateData: data})
}

// Plural renders id in the plural form for count. Count is also exposed to
// the template as .Count.
func (t *Translator) Plural(lang, id string, count int, data map[string]any) string {
	merged := map[string]any{"Count": count}
	for k, v := range data {
		merged[k] = v
	}
	return t.render(lang, &goi18n.LocalizeConfig{MessageID: id, TemplateData: merged, PluralCount: count})
}

// MonthName returns the localized name of m.
func (t *Translator) MonthName(lang string, m time.Month) string {
	return t.T(lang, fmt.Sprintf("month.%d", int(m)))
}

// Reason renders the user-facing explanation of a rejected input.
func (t *Translator) Reason(lang string, reason domain.Reason) string {
	if reason == "" {
		reason = domain.ReasonMalformed
	}
	return t.T(lang, "reason."+string(reason))
}

func (t *Translator) render(lang string, cfg *goi18n.LocalizeConfig) string {
	msg, err := t.localizer(lang).Localize(cfg)
	if err != nil {
		t.logger.Debug("translation missing",
			zap.String("lang", lang),
			zap.String("id", cfg.MessageID),
			zap.Error(err),
		)
		if msg == "" {
			return cfg.MessageID
		}
	}
	return strings.TrimRight(msg, "\n")
}
