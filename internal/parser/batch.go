package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/tazhate/birthdaybot/internal/domain"
)

// Entry is one name/date pair of a batch submission.
type Entry struct {
	Name string
	Date domain.ParsedDate
}

// BatchError rejects a whole batch. Line is 1-based.
type BatchError struct {
	Line  int
	Input string
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch rejected at line %d (%q): %v", e.Line, e.Input, e.Err)
}

func (e *BatchError) Unwrap() []error {
	return []error{domain.ErrPartialBatchRejected, e.Err}
}

// ParseBatch parses alternating name and date lines. Any bad line rejects
// the whole submission and no entries are returned.
func ParseBatch(text string, now time.Time) ([]Entry, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &BatchError{Line: 1, Input: text, Err: domain.NewParseError(domain.ReasonMalformed, text)}
	}

	lines := strings.Split(trimmed, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
		if lines[i] == "" {
			return nil, &BatchError{Line: i + 1, Input: lines[i], Err: domain.NewParseError(domain.ReasonMalformed, lines[i])}
		}
	}
	if len(lines)%2 != 0 {
		last := lines[len(lines)-1]
		return nil, &BatchError{Line: len(lines), Input: last, Err: domain.NewParseError(domain.ReasonMalformed, last)}
	}

	entries := make([]Entry, 0, len(lines)/2)
	for i := 0; i < len(lines); i += 2 {
		d, err := ParseDate(lines[i+1], now)
		if err != nil {
			return nil, &BatchError{Line: i + 2, Input: lines[i+1], Err: err}
		}
		entries = append(entries, Entry{Name: lines[i], Date: d})
	}
	return entries, nil
}
