package parser

import (
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/tazhate/birthdaybot/internal/domain"
)

const (
	minutesPerMinute = 1
	minutesPerHour   = 60
	minutesPerDay    = 24 * minutesPerHour
	minutesPerMonth  = 30 * minutesPerDay
	minutesPerYear   = 365 * minutesPerDay
)

// unitMinutes maps every accepted unit spelling to its length in minutes.
var unitMinutes = map[string]int{
	"minute": minutesPerMinute, "minutes": minutesPerMinute, "min": minutesPerMinute, "m": minutesPerMinute,
	"минута": minutesPerMinute, "минуты": minutesPerMinute, "минут": minutesPerMinute,

	"hour": minutesPerHour, "hours": minutesPerHour, "h": minutesPerHour,
	"час": minutesPerHour, "часа": minutesPerHour, "часы": minutesPerHour, "часов": minutesPerHour,

	"day": minutesPerDay, "days": minutesPerDay, "d": minutesPerDay,
	"день": minutesPerDay, "дня": minutesPerDay, "дней": minutesPerDay,

	"month": minutesPerMonth, "months": minutesPerMonth,
	"месяц": minutesPerMonth, "месяца": minutesPerMonth, "месяцев": minutesPerMonth,

	"year": minutesPerYear, "years": minutesPerYear, "y": minutesPerYear,
	"год": minutesPerYear, "года": minutesPerYear, "годы": minutesPerYear, "годов": minutesPerYear, "лет": minutesPerYear,
}

var durationPattern = regexp.MustCompile(`^(\d+)(\D+)$`)

// ParseDuration converts text such as "3 hours" or "2 месяца" into minutes.
func ParseDuration(text string) (int, error) {
	compact := strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text))

	m := durationPattern.FindStringSubmatch(compact)
	if m == nil {
		return 0, domain.NewParseError(domain.ReasonMalformed, text)
	}

	perUnit, ok := unitMinutes[m[2]]
	if !ok {
		return 0, domain.NewParseError(domain.ReasonUnknownUnit, text)
	}

	amount, err := strconv.Atoi(m[1])
	if err != nil || amount > math.MaxInt32/perUnit {
		return 0, domain.NewParseError(domain.ReasonOutOfRange, text)
	}
	if amount == 0 {
		return 0, domain.NewParseError(domain.ReasonOutOfRange, text)
	}
	return amount * perUnit, nil
}

// IsValidDuration reports whether ParseDuration accepts text.
func IsValidDuration(text string) bool {
	_, err := ParseDuration(text)
	return err == nil
}

// DurationUnits lists the accepted unit spellings, sorted.
func DurationUnits() []string {
	units := make([]string, 0, len(unitMinutes))
	for u := range unitMinutes {
		units = append(units, u)
	}
	slices.Sort(units)
	return units
}
