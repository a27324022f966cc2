package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/birthdaybot/internal/domain"
)

var (
	dayMonthPattern     = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})$`)
	dayMonthYearPattern = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d+)$`)
	dayMonthAgePattern  = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\s+(-?\d+)$`)
)

// ParseDate parses a birthday in one of three forms:
//
//	D.M       day and month, year unknown
//	D.M.Y     full date, four digit year
//	D.M AGE   day and month plus the current age
//
// Shape is checked first, then calendar validity, then plausibility
// (no future dates, at most MaxAgeYears back, positive age).
func ParseDate(text string, now time.Time) (domain.ParsedDate, error) {
	s := strings.TrimSpace(text)

	if m := dayMonthPattern.FindStringSubmatch(s); m != nil {
		day, month := atoi(m[1]), time.Month(atoi(m[2]))
		if !domain.IsValidDate(domain.SentinelYear, month, day) {
			return domain.ParsedDate{}, domain.NewParseError(domain.ReasonCalendarInvalid, text)
		}
		return domain.ParsedDate{Date: utcDate(domain.SentinelYear, month, day), HasYear: false}, nil
	}

	if m := dayMonthYearPattern.FindStringSubmatch(s); m != nil {
		if len(m[3]) != 4 {
			return domain.ParsedDate{}, domain.NewParseError(domain.ReasonMalformed, text)
		}
		day, month, year := atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3])
		if !domain.IsValidDate(year, month, day) {
			return domain.ParsedDate{}, domain.NewParseError(domain.ReasonCalendarInvalid, text)
		}
		d := utcDate(year, month, day)
		if err := checkYearRange(d, now, text); err != nil {
			return domain.ParsedDate{}, err
		}
		return domain.ParsedDate{Date: d, HasYear: true}, nil
	}

	if m := dayMonthAgePattern.FindStringSubmatch(s); m != nil {
		day, month := atoi(m[1]), time.Month(atoi(m[2]))
		if !domain.IsValidDate(domain.SentinelYear, month, day) {
			return domain.ParsedDate{}, domain.NewParseError(domain.ReasonCalendarInvalid, text)
		}
		age, err := strconv.Atoi(m[3])
		if err != nil {
			return domain.ParsedDate{}, domain.NewParseError(domain.ReasonTooOld, text)
		}
		if age <= 0 {
			return domain.ParsedDate{}, domain.NewParseError(domain.ReasonNonPositiveAge, text)
		}
		if age > domain.MaxAgeYears {
			return domain.ParsedDate{}, domain.NewParseError(domain.ReasonTooOld, text)
		}

		today := domain.Today(now)
		year := today.Year() - age
		if today.Before(domain.OccurrenceIn(today.Year(), month, day)) {
			year--
		}
		if !domain.IsValidDate(year, month, day) {
			return domain.ParsedDate{}, domain.NewParseError(domain.ReasonCalendarInvalid, text)
		}
		d := utcDate(year, month, day)
		if err := checkYearRange(d, now, text); err != nil {
			return domain.ParsedDate{}, err
		}
		return domain.ParsedDate{Date: d, HasYear: true}, nil
	}

	return domain.ParsedDate{}, domain.NewParseError(domain.ReasonMalformed, text)
}

// IsValidDate reports whether ParseDate accepts text at now.
func IsValidDate(text string, now time.Time) bool {
	_, err := ParseDate(text, now)
	return err == nil
}

func checkYearRange(d, now time.Time, input string) error {
	today := domain.Today(now)
	if d.After(today) {
		return domain.NewParseError(domain.ReasonFutureDate, input)
	}
	if today.Year()-d.Year() > domain.MaxAgeYears {
		return domain.NewParseError(domain.ReasonTooOld, input)
	}
	return nil
}

func utcDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// atoi is only called on regexp groups of at most a few digits.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
