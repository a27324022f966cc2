package service

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/i18n"
	"github.com/tazhate/birthdaybot/internal/parser"
)

// Formatter renders Telegram HTML messages in a chat's language.
type Formatter struct {
	tr *i18n.Translator
}

func NewFormatter(tr *i18n.Translator) *Formatter {
	return &Formatter{tr: tr}
}

func (f *Formatter) Translator() *i18n.Translator {
	return f.tr
}

// When describes a distance in days ("today", "tomorrow", "in 5 days").
func (f *Formatter) When(lang string, days int) string {
	switch days {
	case 0:
		return f.tr.T(lang, "when.today")
	case 1:
		return f.tr.T(lang, "when.tomorrow")
	default:
		return f.tr.Plural(lang, "when.in_days", days, nil)
	}
}

// TurningAge is the age b reaches at its next occurrence.
func TurningAge(b *domain.Birthday, now time.Time) (int, bool) {
	if !b.HasYear {
		return 0, false
	}
	return b.NextOccurrence(now).Year() - b.Date.Year(), true
}

func (f *Formatter) ListItem(lang string, b *domain.Birthday, now time.Time) string {
	data := map[string]any{
		"ID":   b.ID,
		"Name": html.EscapeString(b.Name),
		"Date": b.FormatDate(),
		"When": f.When(lang, b.DaysUntil(now)),
	}
	if age, ok := TurningAge(b, now); ok {
		data["Age"] = age
		return f.tr.Tf(lang, "list.item_age", data)
	}
	return f.tr.Tf(lang, "list.item", data)
}

// List renders birthdays in the given order under a header.
func (f *Formatter) List(lang string, birthdays []*domain.Birthday, now time.Time) string {
	if len(birthdays) == 0 {
		return f.tr.T(lang, "list.empty")
	}

	lines := make([]string, 0, len(birthdays)+2)
	lines = append(lines, f.tr.T(lang, "list.header"), "")
	for _, b := range birthdays {
		lines = append(lines, f.ListItem(lang, b, now))
	}
	return strings.Join(lines, "\n")
}

// AllChats renders every chat's birthdays for the admin.
func (f *Formatter) AllChats(lang string, groups []ChatBirthdays, now time.Time) string {
	if len(groups) == 0 {
		return f.tr.T(lang, "list.empty")
	}

	lines := []string{f.tr.T(lang, "all.header")}
	for _, g := range groups {
		lines = append(lines, "", f.tr.Tf(lang, "all.chat", map[string]any{"ChatID": g.ChatID}))
		for _, b := range g.Birthdays {
			lines = append(lines, f.ListItem(lang, b, now))
		}
	}
	return strings.Join(lines, "\n")
}

// Reminder renders the notification for b sent threshold days ahead.
func (f *Formatter) Reminder(lang string, b *domain.Birthday, threshold int, now time.Time) string {
	name := html.EscapeString(b.Name)
	age, hasAge := TurningAge(b, now)

	if threshold == 0 {
		if hasAge {
			return f.tr.Tf(lang, "reminder.today_age", map[string]any{"Name": name, "Age": age})
		}
		return f.tr.Tf(lang, "reminder.today", map[string]any{"Name": name})
	}

	data := map[string]any{
		"Name": name,
		"Date": b.NextOccurrence(now).Format("02.01"),
	}
	if hasAge {
		data["Age"] = age
		return f.tr.Plural(lang, "reminder.ahead_age", threshold, data)
	}
	return f.tr.Plural(lang, "reminder.ahead", threshold, data)
}

func (f *Formatter) Stats(lang string, st *Stats) string {
	if st.Total == 0 {
		return f.tr.T(lang, "stats.empty")
	}

	parts := []string{
		f.tr.Tf(lang, "stats.header", map[string]any{"Total": st.Total, "WithYear": st.WithYear}),
	}
	if st.HasAges {
		parts = append(parts, f.tr.Tf(lang, "stats.ages", map[string]any{
			"Mean":   strconv.FormatFloat(st.Ages.Mean, 'f', 1, 64),
			"Median": strconv.FormatFloat(st.Ages.Median, 'f', 1, 64),
			"Min":    st.Ages.Min,
			"Max":    st.Ages.Max,
		}))
	} else {
		parts = append(parts, f.tr.T(lang, "stats.no_ages"))
	}
	if st.CommonDateCount > 0 {
		parts = append(parts, f.tr.Tf(lang, "stats.common_date", map[string]any{
			"Date": st.CommonDate.String(), "Count": st.CommonDateCount,
		}))
		parts = append(parts, f.tr.Tf(lang, "stats.common_month", map[string]any{
			"Month": f.tr.MonthName(lang, st.CommonMonth), "Count": st.CommonMonthCount,
		}))
	}
	return strings.Join(parts, "\n\n")
}

// Interval renders a minute count in the largest whole unit.
func (f *Formatter) Interval(lang string, minutes int) string {
	switch {
	case minutes%1440 == 0:
		return f.tr.Plural(lang, "interval.days", minutes/1440, nil)
	case minutes%60 == 0:
		return f.tr.Plural(lang, "interval.hours", minutes/60, nil)
	default:
		return f.tr.Plural(lang, "interval.minutes", minutes, nil)
	}
}

// Rejection explains why an /add submission was refused.
func (f *Formatter) Rejection(lang string, err error) string {
	line, input := 1, ""
	var be *parser.BatchError
	if errors.As(err, &be) {
		line, input = be.Line, be.Input
	}
	return f.tr.Tf(lang, "add.rejected", map[string]any{
		"Line":   line,
		"Input":  html.EscapeString(input),
		"Reason": f.tr.Reason(lang, domain.ReasonOf(err)),
	})
}

// IDs joins ids for display ("#3, #5").
func IDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, ", ")
}
