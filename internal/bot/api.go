package bot

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/export"
	"github.com/tazhate/birthdaybot/internal/service"
)

// API Response types
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type BirthdayResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Date           string `json:"date"`
	HasYear        bool   `json:"has_year"`
	Age            *int   `json:"age,omitempty"`
	DaysUntil      int    `json:"days_until"`
	NextOccurrence string `json:"next_occurrence"`
}

type StatsResponse struct {
	Total       int      `json:"total"`
	WithYear    int      `json:"with_year"`
	MeanAge     *float64 `json:"mean_age,omitempty"`
	MedianAge   *float64 `json:"median_age,omitempty"`
	MinAge      *int     `json:"min_age,omitempty"`
	MaxAge      *int     `json:"max_age,omitempty"`
	CommonDate  string   `json:"common_date,omitempty"`
	CommonMonth string   `json:"common_month,omitempty"`
}

// Handler serves /health and, when API credentials are configured, the
// read-only REST API.
func (b *Bot) Handler() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if b.cfg.APIUsername == "" || b.cfg.APIPassword == "" {
		return mux // API disabled if no credentials
	}

	mux.HandleFunc("/api/birthdays", b.basicAuth(b.apiBirthdays))
	mux.HandleFunc("/api/birthdays.ics", b.basicAuth(b.apiBirthdaysICS))
	mux.HandleFunc("/api/stats", b.basicAuth(b.apiStats))
	return mux
}

func (b *Bot) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(username), []byte(b.cfg.APIUsername)) != 1 ||
			subtle.ConstantTimeCompare([]byte(password), []byte(b.cfg.APIPassword)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="BirthdayBot API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (b *Bot) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data}); err != nil {
		b.logger.Warn("encode api response", zap.Error(err))
	}
}

func (b *Bot) jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}

// chatParam reads the required chat_id query parameter.
func (b *Bot) chatParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if r.Method != http.MethodGet {
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return 0, false
	}
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if err != nil {
		b.jsonError(w, "chat_id is required", http.StatusBadRequest)
		return 0, false
	}
	return chatID, true
}

// GET /api/birthdays?chat_id= - birthdays of a chat, soonest first
func (b *Bot) apiBirthdays(w http.ResponseWriter, r *http.Request) {
	chatID, ok := b.chatParam(w, r)
	if !ok {
		return
	}

	birthdays, err := b.birthdays.List(r.Context(), chatID)
	if err != nil {
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	b.jsonResponse(w, b.birthdaysToResponse(birthdays))
}

// GET /api/birthdays.ics?chat_id= - iCalendar feed of a chat
func (b *Bot) apiBirthdaysICS(w http.ResponseWriter, r *http.Request) {
	chatID, ok := b.chatParam(w, r)
	if !ok {
		return
	}

	birthdays, err := b.birthdays.List(r.Context(), chatID)
	if err != nil {
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, err := export.ICS(birthdays, b.clock.Now())
	if err != nil {
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Write(data)
}

// GET /api/stats?chat_id= - statistics of a chat
func (b *Bot) apiStats(w http.ResponseWriter, r *http.Request) {
	chatID, ok := b.chatParam(w, r)
	if !ok {
		return
	}

	st, err := b.birthdays.Stats(r.Context(), chatID)
	if err != nil {
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	b.jsonResponse(w, statsToResponse(st))
}

func (b *Bot) birthdaysToResponse(birthdays []*domain.Birthday) []BirthdayResponse {
	now := b.clock.Now()
	result := make([]BirthdayResponse, len(birthdays))
	for i, bd := range birthdays {
		result[i] = BirthdayResponse{
			ID:             bd.ID,
			Name:           bd.Name,
			Date:           bd.FormatDate(),
			HasYear:        bd.HasYear,
			DaysUntil:      bd.DaysUntil(now),
			NextOccurrence: bd.NextOccurrence(now).Format("2006-01-02"),
		}
		if age, ok := bd.Age(now); ok {
			result[i].Age = &age
		}
	}
	return result
}

func statsToResponse(st *service.Stats) StatsResponse {
	resp := StatsResponse{Total: st.Total, WithYear: st.WithYear}
	if st.HasAges {
		ages := st.Ages
		resp.MeanAge = &ages.Mean
		resp.MedianAge = &ages.Median
		resp.MinAge = &ages.Min
		resp.MaxAge = &ages.Max
	}
	if st.CommonDateCount > 0 {
		resp.CommonDate = st.CommonDate.String()
		resp.CommonMonth = st.CommonMonth.String()
	}
	return resp
}
