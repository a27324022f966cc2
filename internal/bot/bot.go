package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/tazhate/birthdaybot/config"
	"github.com/tazhate/birthdaybot/internal/backup"
	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/service"
)

// maxMessageLength is Telegram's limit for one text message.
const maxMessageLength = 4096

// Deps are the services the bot dispatches to.
type Deps struct {
	Birthdays *service.BirthdayService
	Settings  *service.SettingsService
	Tracker   *backup.Tracker
	Builder   *backup.Builder
	Format    *service.Formatter
	Clock     domain.Clock
	Logger    *zap.Logger
}

type Bot struct {
	api       *tgbotapi.BotAPI
	cfg       *config.Config
	birthdays *service.BirthdayService
	settings  *service.SettingsService
	tracker   *backup.Tracker
	builder   *backup.Builder
	format    *service.Formatter
	clock     domain.Clock
	logger    *zap.Logger
	state     *ConversationStore
	server    *http.Server
}

func New(cfg *config.Config, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return NewWithAPI(api, cfg, deps), nil
}

// NewWithAPI builds a bot around an already authorized API client.
func NewWithAPI(api *tgbotapi.BotAPI, cfg *config.Config, deps Deps) *Bot {
	deps.Logger.Info("authorized", zap.String("username", api.Self.UserName))

	return &Bot{
		api:       api,
		cfg:       cfg,
		birthdays: deps.Birthdays,
		settings:  deps.Settings,
		tracker:   deps.Tracker,
		builder:   deps.Builder,
		format:    deps.Format,
		clock:     deps.Clock,
		logger:    deps.Logger,
		state:     NewConversationStore(),
	}
}

var menuCommands = []string{
	"start", "add", "list", "delete", "stats", "reminders",
	"backup", "stopbackup", "export", "language", "help", "cancel",
}

// setCommands publishes the command menu in every supported language. The
// default language also becomes the fallback for unlisted client languages.
func (b *Bot) setCommands() {
	tr := b.format.Translator()
	for _, lang := range domain.SupportedLanguages {
		commands := make([]tgbotapi.BotCommand, 0, len(menuCommands))
		for _, c := range menuCommands {
			commands = append(commands, tgbotapi.BotCommand{Command: c, Description: tr.T(lang, "cmd."+c)})
		}

		code := lang
		if lang == domain.DefaultLanguage {
			code = ""
		}
		cfg := tgbotapi.NewSetMyCommandsWithScopeAndLanguage(tgbotapi.NewBotCommandScopeDefault(), code, commands...)
		if _, err := b.api.Request(cfg); err != nil {
			b.logger.Warn("set commands", zap.String("language", lang), zap.Error(err))
		}
	}
}

func (b *Bot) SetupWebhook() error {
	webhookURL := strings.TrimSuffix(b.cfg.WebhookURL, "/") + "/bot"

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}
	if info.LastErrorDate != 0 {
		b.logger.Warn("webhook last error", zap.String("message", info.LastErrorMessage))
	}

	b.logger.Info("webhook set", zap.String("url", webhookURL))
	return nil
}

// Start serves the HTTP endpoints and dispatches updates until ctx is done.
// Updates arrive by webhook when one is configured, by long polling
// otherwise.
func (b *Bot) Start(ctx context.Context) error {
	b.setCommands()

	mux := b.Handler()

	var updates tgbotapi.UpdatesChannel
	if b.cfg.UseWebhook() {
		if err := b.SetupWebhook(); err != nil {
			return err
		}
		ch := make(chan tgbotapi.Update, b.api.Buffer)
		mux.HandleFunc("/bot", b.webhookHandler(ctx, ch))
		updates = ch
	} else {
		if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			b.logger.Warn("delete webhook", zap.Error(err))
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates = b.api.GetUpdatesChan(u)
	}

	b.server = &http.Server{
		Addr:              ":" + b.cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		b.logger.Info("http server listening", zap.String("addr", b.server.Addr))
		if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Error("http server", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if !b.cfg.UseWebhook() {
				b.api.StopReceivingUpdates()
			}
			return nil
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) Stop(ctx context.Context) error {
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

// webhookHandler hands updates to the dispatch loop, giving up once the bot
// is stopping or the request is gone.
func (b *Bot) webhookHandler(ctx context.Context, updates chan<- tgbotapi.Update) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		update, err := b.api.HandleUpdate(r)
		if err != nil {
			b.logger.Warn("bad webhook request", zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		select {
		case updates <- *update:
			w.WriteHeader(http.StatusOK)
		case <-ctx.Done():
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
		case <-r.Context().Done():
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
		}
	}
}

// SendMessage sends HTML text, split into several messages when it exceeds
// Telegram's length limit.
func (b *Bot) SendMessage(chatID int64, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = "HTML"
		if _, err := b.api.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendDocument(chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	doc.ParseMode = "HTML"
	_, err := b.api.Send(doc)
	return err
}

// splitMessage cuts text into chunks of at most limit bytes, breaking on
// line boundaries. A single line longer than limit is cut at a rune
// boundary.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if chunk := strings.TrimRight(cur.String(), "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		cur.Reset()
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if cur.Len()+len(line) <= limit {
			cur.WriteString(line)
			continue
		}
		flush()
		for len(line) > limit {
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}
