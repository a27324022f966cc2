package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tazhate/birthdaybot/config"
	"github.com/tazhate/birthdaybot/internal/backup"
	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/i18n"
	"github.com/tazhate/birthdaybot/internal/service"
	"github.com/tazhate/birthdaybot/internal/storage"
)

var fixedNow = time.Date(2024, time.June, 15, 10, 30, 0, 0, time.UTC)

const adminChat = 100

// telegramCall is one Bot API request seen by fakeTelegram.
type telegramCall struct {
	Method string
	ChatID string
	Text   string
	File   string
	Markup string
}

// fakeTelegram answers Bot API requests and records them.
type fakeTelegram struct {
	mu    sync.Mutex
	calls []telegramCall
	srv   *httptest.Server
}

func newFakeTelegram(t *testing.T) *fakeTelegram {
	t.Helper()
	f := &fakeTelegram{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeTelegram) serve(w http.ResponseWriter, r *http.Request) {
	method := path.Base(r.URL.Path)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		_ = r.ParseMultipartForm(1 << 20)
	} else {
		_ = r.ParseForm()
	}

	call := telegramCall{
		Method: method,
		ChatID: r.FormValue("chat_id"),
		Text:   r.FormValue("text"),
		Markup: r.FormValue("reply_markup"),
	}
	if c := r.FormValue("caption"); c != "" {
		call.Text = c
	}
	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["document"]; len(files) > 0 {
			call.File = files[0].Filename
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if method == "getMe" {
		w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Birthdays","username":"birthday_bot"}}`))
		return
	}
	w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`))
}

func (f *fakeTelegram) byMethod(method string) []telegramCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []telegramCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// lastMessage returns the text of the latest sendMessage call.
func (f *fakeTelegram) lastMessage(t *testing.T) string {
	t.Helper()
	sent := f.byMethod("sendMessage")
	require.NotEmpty(t, sent, "no message sent")
	return sent[len(sent)-1].Text
}

func (f *fakeTelegram) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

type fixture struct {
	bot      *Bot
	tg       *fakeTelegram
	store    *storage.Storage
	settings *service.SettingsService
	tracker  *backup.Tracker
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tr, err := i18n.New(zap.NewNop())
	require.NoError(t, err)

	tg := newFakeTelegram(t)
	api, err := tgbotapi.NewBotAPIWithClient("TOKEN", tg.srv.URL+"/bot%s/%s", tg.srv.Client())
	require.NoError(t, err)

	if cfg == nil {
		cfg = &config.Config{Timezone: time.UTC, AdminChatID: adminChat}
	}

	logger := zap.NewNop()
	clock := domain.FixedClock{Time: fixedNow}
	settings := service.NewSettingsService(store, logger)
	tracker := backup.NewTracker(store, clock, logger)

	b := NewWithAPI(api, cfg, Deps{
		Birthdays: service.NewBirthdayService(store, clock, logger),
		Settings:  settings,
		Tracker:   tracker,
		Builder:   backup.NewBuilder(store, clock, logger),
		Format:    service.NewFormatter(tr),
		Clock:     clock,
		Logger:    logger,
	})
	tg.reset()

	return &fixture{bot: b, tg: tg, store: store, settings: settings, tracker: tracker}
}

// send delivers a text message to the bot as if chatID wrote it.
func (f *fixture) send(chatID int64, text string) {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: chatID},
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		end := strings.IndexAny(text, " \n")
		if end < 0 {
			end = len(text)
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	}
	f.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func (f *fixture) press(chatID int64, data string) {
	f.bot.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: chatID},
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}})
}

func TestAddAndList(t *testing.T) {
	f := newFixture(t, nil)

	f.send(1, "/add Alice\n25.12.1990")
	assert.Equal(t, "✅ Added 1 birthday.", f.tg.lastMessage(t))

	f.send(1, "/add")
	assert.Contains(t, f.tg.lastMessage(t), "Send a name and a date")

	f.send(1, "Bob\n31.02")
	assert.Equal(t,
		"❌ Line 2 (<code>31.02</code>): there is no such day in the calendar.\nNothing was saved, please fix it and send again.",
		f.tg.lastMessage(t))

	// still in the add flow after a rejection
	f.send(1, "Bob\n16.06")
	assert.Equal(t, "✅ Added 1 birthday.", f.tg.lastMessage(t))

	f.send(1, "/list")
	assert.Equal(t, "🎂 <b>Birthdays</b>\n\n"+
		"#2 <b>Bob</b> — 16.06, tomorrow\n"+
		"#1 <b>Alice</b> — 25.12.1990, turns 34 in 193 days", f.tg.lastMessage(t))

	f.send(2, "/list")
	assert.Equal(t, "No birthdays yet. Use /add to add one.", f.tg.lastMessage(t))
}

func TestDelete(t *testing.T) {
	f := newFixture(t, nil)
	f.send(1, "/add Alice\n25.12.1990\nBob\n16.06")

	f.send(1, "/delete 2, 9")
	assert.Equal(t, "🗑 Deleted: #2\nNot found: #9", f.tg.lastMessage(t))

	f.send(1, "/delete")
	f.send(1, "first one")
	assert.Equal(t, "Send numeric ids, for example <code>3, 5</code>.", f.tg.lastMessage(t))

	f.send(1, "1")
	assert.Equal(t, "🗑 Deleted: #1", f.tg.lastMessage(t))

	birthdays, err := f.store.ListBirthdaysByChat(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, birthdays)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, nil)

	f.send(1, "/cancel")
	assert.Equal(t, "Nothing to cancel.", f.tg.lastMessage(t))

	f.send(1, "/add")
	f.send(1, "/cancel")
	assert.Equal(t, "Cancelled.", f.tg.lastMessage(t))

	f.send(1, "Alice")
	assert.Equal(t, "Unknown command. /help lists what I can do.", f.tg.lastMessage(t))
}

func TestBackupCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.send(1, "/stopbackup")
	assert.Equal(t, "Periodic backups are not enabled.", f.tg.lastMessage(t))

	f.send(1, "/backup 3 parsecs")
	text := f.tg.lastMessage(t)
	assert.True(t, strings.HasPrefix(text, "❌ unknown time unit.\n<code>"))
	assert.Contains(t, text, "hours")
	assert.Contains(t, text, "/backup 7 days")

	f.send(1, "/backup 0 days")
	assert.True(t, strings.HasPrefix(f.tg.lastMessage(t), "❌ the value is out of range.\n\n"))

	f.send(1, "/backup 7 days")
	assert.Equal(t, "💾 I will send you a backup every 7 days.", f.tg.lastMessage(t))

	p, err := f.tracker.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 7*1440, p.IntervalMinutes)
	assert.True(t, p.IsActive)

	f.send(1, "/stopbackup")
	assert.Equal(t, "Periodic backups stopped.", f.tg.lastMessage(t))

	p, err = f.tracker.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, p.IsActive)
}

func TestExport(t *testing.T) {
	f := newFixture(t, nil)

	f.send(1, "/export")
	assert.Equal(t, "No birthdays yet. Use /add to add one.", f.tg.lastMessage(t))

	f.send(1, "/add Alice\n25.12.1990")
	f.send(1, "/export")

	docs := f.tg.byMethod("sendDocument")
	require.Len(t, docs, 3)
	assert.Equal(t, backup.FileICS, docs[0].File)
	assert.Equal(t, "📤 Your birthdays", docs[0].Text)
	assert.Equal(t, backup.FileVCard, docs[1].File)
	assert.Equal(t, backup.FileText, docs[2].File)
	assert.Empty(t, docs[1].Text)
}

func TestAllIsAdminOnly(t *testing.T) {
	f := newFixture(t, nil)
	f.send(1, "/add Alice\n25.12.1990")

	f.send(1, "/all")
	assert.Equal(t, "⛔ This command is for the bot admin only.", f.tg.lastMessage(t))

	f.send(adminChat, "/all")
	text := f.tg.lastMessage(t)
	assert.True(t, strings.HasPrefix(text, "🌐 <b>All chats</b>"))
	assert.Contains(t, text, "<b>Chat 1</b>")
	assert.Contains(t, text, "Alice")
}

func TestThresholdCallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.send(1, "/reminders")
	sent := f.tg.byMethod("sendMessage")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Markup, "✅ On the day")

	f.press(1, "thr:0")

	cs, err := f.settings.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, cs.Thresholds.Contains(0))
	assert.True(t, cs.Thresholds.Contains(7))

	edits := f.tg.byMethod("editMessageReplyMarkup")
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0].Markup, "⬜ On the day")

	answers := f.tg.byMethod("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Equal(t, "Saved", answers[0].Text)

	f.press(1, "thr:5")
	cs, err = f.settings.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Thresholds{1, 3, 7}, cs.Thresholds)
}

func TestLanguageCallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.send(1, "/language")
	assert.Contains(t, f.tg.lastMessage(t), "Choose a language")

	f.press(1, "lang:ru")
	assert.Equal(t, "ru", f.settings.Language(ctx, 1))
	require.Len(t, f.tg.byMethod("editMessageText"), 1)

	f.send(1, "/list")
	assert.NotEqual(t, "No birthdays yet. Use /add to add one.", f.tg.lastMessage(t))

	f.press(1, "lang:xx")
	assert.Equal(t, "ru", f.settings.Language(ctx, 1))
}

func TestWebhookHandler(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"update_id":42,"message":{"message_id":1,"chat":{"id":1,"type":"private"},"text":"hi"}}`

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan tgbotapi.Update, 1)
	h := f.bot.webhookHandler(ctx, updates)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/bot", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 42, (<-updates).UpdateID)

	// a stopped bot no longer drains the channel
	cancel()
	blocked := f.bot.webhookHandler(ctx, make(chan tgbotapi.Update))
	rec = httptest.NewRecorder()
	blocked(rec, httptest.NewRequest(http.MethodPost, "/bot", strings.NewReader(body)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/bot", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	chunks := splitMessage("aaaa\nbbbb\ncccc", 10)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, chunks)

	chunks = splitMessage(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, chunks)

	// never cut inside a multi-byte rune
	for _, c := range splitMessage(strings.Repeat("я", 9), 5) {
		assert.LessOrEqual(t, len(c), 5)
		assert.True(t, strings.Count(c, "я")*2 == len(c))
	}

	// bytes with no rune start still make progress
	invalid := strings.Repeat("\x80", 12)
	chunks = splitMessage(invalid, 5)
	assert.Len(t, chunks, 3)
	assert.Equal(t, invalid, strings.Join(chunks, ""))
}

func TestConversationStore(t *testing.T) {
	s := NewConversationStore()
	assert.Equal(t, StateIdle, s.Take(1))

	s.Set(1, StateAwaitingAdd)
	assert.Equal(t, StateIdle, s.Take(2))
	assert.Equal(t, StateAwaitingAdd, s.Take(1))
	assert.Equal(t, StateIdle, s.Take(1))

	s.Set(1, StateAwaitingDelete)
	s.Set(1, StateIdle)
	assert.Equal(t, StateIdle, s.Take(1))
}

func TestAPI(t *testing.T) {
	f := newFixture(t, &config.Config{Timezone: time.UTC, APIUsername: "u", APIPassword: "p"})
	f.send(1, "/add Alice\n25.12.1990\nBob\n16.06")
	h := f.bot.Handler()

	get := func(target string, auth bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if auth {
			req.SetBasicAuth("u", "p")
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/health", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get("/api/birthdays?chat_id=1", false).Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/birthdays", true).Code)

	rec = get("/api/birthdays?chat_id=1", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Success bool               `json:"success"`
		Data    []BirthdayResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.True(t, list.Success)
	require.Len(t, list.Data, 2)
	assert.Equal(t, "Bob", list.Data[0].Name)
	assert.Equal(t, 1, list.Data[0].DaysUntil)
	assert.Nil(t, list.Data[0].Age)
	assert.Equal(t, "Alice", list.Data[1].Name)
	require.NotNil(t, list.Data[1].Age)
	assert.Equal(t, 33, *list.Data[1].Age)
	assert.Equal(t, "2024-12-25", list.Data[1].NextOccurrence)

	rec = get("/api/stats?chat_id=1", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var st struct {
		Data StatsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Data.Total)
	assert.Equal(t, 1, st.Data.WithYear)

	rec = get("/api/birthdays.ics?chat_id=1", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
}

func TestAPIDisabledWithoutCredentials(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.bot.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/birthdays?chat_id=1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
