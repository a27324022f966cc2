package domain

import (
	"fmt"
	"time"
)

const (
	// SentinelYear is stored for dates entered without a year. It is a leap
	// year so Feb 29 stays representable.
	SentinelYear = 2000

	// MaxAgeYears bounds how far in the past a birth year may be.
	MaxAgeYears = 200
)

// MonthDay is a yearless calendar day.
type MonthDay struct {
	Month time.Month
	Day   int
}

func (md MonthDay) String() string {
	return fmt.Sprintf("%02d.%02d", md.Day, int(md.Month))
}

// Before orders month-days through the calendar year.
func (md MonthDay) Before(other MonthDay) bool {
	if md.Month != other.Month {
		return md.Month < other.Month
	}
	return md.Day < other.Day
}

// ParsedDate is the canonical result of parsing a birthday string.
type ParsedDate struct {
	Date    time.Time // UTC midnight; Year() == SentinelYear when HasYear is false
	HasYear bool
}

func (p ParsedDate) MonthDay() MonthDay {
	return MonthDay{Month: p.Date.Month(), Day: p.Date.Day()}
}

func (p ParsedDate) String() string {
	return FormatDate(p.Date, p.HasYear)
}

// Birthday is one registered birthday owned by a chat.
type Birthday struct {
	ID        int64
	ChatID    int64
	Name      string
	Date      time.Time    // UTC midnight
	HasYear   bool         // false: Date carries SentinelYear
	Announced map[int]bool // days_before -> already announced for the current occurrence
	CreatedAt time.Time
}

func (b *Birthday) MonthDay() MonthDay {
	return MonthDay{Month: b.Date.Month(), Day: b.Date.Day()}
}

// Age returns the current age, or false when the year is unknown.
func (b *Birthday) Age(now time.Time) (int, bool) {
	return CurrentAge(b.Date, b.HasYear, now)
}

// DaysUntil returns days until the next occurrence (0 on the day itself).
func (b *Birthday) DaysUntil(now time.Time) int {
	return DaysUntil(b.Date, now)
}

// NextOccurrence returns the next occurrence on or after today.
func (b *Birthday) NextOccurrence(now time.Time) time.Time {
	return NextOccurrence(b.Date, now)
}

// IsAnnounced reports whether the reminder for threshold already fired.
func (b *Birthday) IsAnnounced(threshold int) bool {
	return b.Announced[threshold]
}

func (b *Birthday) FormatDate() string {
	return FormatDate(b.Date, b.HasYear)
}

// FormatDate renders a date in the D.M.Y input form, or D.M without a year.
func FormatDate(date time.Time, hasYear bool) string {
	if !hasYear {
		return fmt.Sprintf("%02d.%02d", date.Day(), int(date.Month()))
	}
	return fmt.Sprintf("%02d.%02d.%04d", date.Day(), int(date.Month()), date.Year())
}

func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysIn returns the number of days in month of year.
func DaysIn(month time.Month, year int) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsValidDate reports whether day.month.year is a real Gregorian day.
func IsValidDate(year int, month time.Month, day int) bool {
	if month < time.January || month > time.December {
		return false
	}
	return day >= 1 && day <= DaysIn(month, year)
}

// Today truncates now to its calendar day, expressed as UTC midnight so day
// differences are exact multiples of 24h.
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OccurrenceIn projects month/day onto year. Feb 29 falls on Feb 28 in
// non-leap years.
func OccurrenceIn(year int, month time.Month, day int) time.Time {
	if month == time.February && day == 29 && !IsLeapYear(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// NextOccurrence returns the first occurrence of date's month/day on or
// after the calendar day of now.
func NextOccurrence(date, now time.Time) time.Time {
	today := Today(now)
	occ := OccurrenceIn(today.Year(), date.Month(), date.Day())
	if occ.Before(today) {
		occ = OccurrenceIn(today.Year()+1, date.Month(), date.Day())
	}
	return occ
}

// PreviousOccurrence returns the last occurrence on or before today.
func PreviousOccurrence(date, now time.Time) time.Time {
	today := Today(now)
	occ := OccurrenceIn(today.Year(), date.Month(), date.Day())
	if occ.After(today) {
		occ = OccurrenceIn(today.Year()-1, date.Month(), date.Day())
	}
	return occ
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// DaysUntil counts calendar days from today to the next occurrence.
func DaysUntil(date, now time.Time) int {
	return daysBetween(Today(now), NextOccurrence(date, now))
}

// DaysSince counts calendar days from the previous occurrence to today.
func DaysSince(date, now time.Time) int {
	return daysBetween(PreviousOccurrence(date, now), Today(now))
}

// CurrentAge returns the age as of now. The birthday counts as happened on
// the day itself; Feb 29 birthdays happen on Feb 28 in non-leap years.
func CurrentAge(date time.Time, hasYear bool, now time.Time) (int, bool) {
	if !hasYear {
		return 0, false
	}
	today := Today(now)
	age := today.Year() - date.Year()
	if today.Before(OccurrenceIn(today.Year(), date.Month(), date.Day())) {
		age--
	}
	return age, true
}
