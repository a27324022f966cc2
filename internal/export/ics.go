// Package export renders a chat's birthdays as iCalendar and vCard files.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"github.com/tazhate/birthdaybot/internal/domain"
)

const (
	ProductID    = "-//birthdaybot//Birthdays//EN"
	CalendarName = "Birthdays"
	uidDomain    = "birthdaybot"

	propCalName = "X-WR-CALNAME"
)

// EventUID is stable for the lifetime of a birthday so calendar clients and
// CalDAV mirrors update the same object.
func EventUID(id int64) string {
	return fmt.Sprintf("birthday-%d@%s", id, uidDomain)
}

// Summary is the event title for b.
func Summary(b *domain.Birthday) string {
	return "🎂 " + b.Name
}

// RecurrenceRule repeats the event yearly. Feb 29 birthdays fall on the last
// day of February.
func RecurrenceRule(b *domain.Birthday) string {
	if b.Date.Month() == time.February && b.Date.Day() == 29 {
		return "FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=-1"
	}
	return "FREQ=YEARLY"
}

// Event builds an all-day yearly VEVENT for b.
func Event(b *domain.Birthday, now time.Time) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, EventUID(b.ID))
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetText(ical.PropSummary, Summary(b))
	event.Props.SetDate(ical.PropDateTimeStart, b.Date)

	// Set the raw value so the rule separators are not text-escaped.
	rule := ical.NewProp(ical.PropRecurrenceRule)
	rule.Value = RecurrenceRule(b)
	event.Props.Set(rule)

	if b.HasYear {
		event.Props.SetText(ical.PropDescription, "Born "+b.FormatDate())
	}
	return event
}

// NewCalendar returns an empty VCALENDAR with the product headers set.
func NewCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")
	cal.Props.SetText(propCalName, CalendarName)
	return cal
}

// ICS encodes all birthdays into one calendar file.
func ICS(birthdays []*domain.Birthday, now time.Time) ([]byte, error) {
	if len(birthdays) == 0 {
		return []byte(emptyCalendar), nil
	}

	cal := NewCalendar()
	for _, b := range birthdays {
		cal.Children = append(cal.Children, Event(b, now).Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode ics: %w", err)
	}
	return buf.Bytes(), nil
}

// emptyCalendar keeps the file importable when a chat has no birthdays.
const emptyCalendar = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:" + ProductID + "\r\n" +
	"CALSCALE:GREGORIAN\r\n" +
	propCalName + ":" + CalendarName + "\r\n" +
	"END:VCALENDAR\r\n"
