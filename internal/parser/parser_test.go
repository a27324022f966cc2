package parser

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/birthdaybot/internal/domain"
)

var fixedNow = time.Date(2024, time.June, 15, 10, 30, 0, 0, time.UTC)

func utc(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"3 hours", 180},
		{"2 months", 86400},
		{"5  днЕй", 7200},
		{"10 M", 10},
		{"15 h", 900},
		{"1 year", 525600},
		{"2 года", 2 * 525600},
		{"45минут", 45},
		{"  7 d  ", 7 * 1440},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, IsValidDuration(tt.input))
		})
	}
}

func TestParseDuration_Invalid(t *testing.T) {
	tests := []struct {
		input  string
		reason domain.Reason
	}{
		{"abc", domain.ReasonMalformed},
		{"", domain.ReasonMalformed},
		{"100 123", domain.ReasonMalformed},
		{"abc xyz", domain.ReasonMalformed},
		{"hours", domain.ReasonMalformed},
		{"3 hours 5", domain.ReasonMalformed},
		{"20 lightyears", domain.ReasonUnknownUnit},
		{"0 days", domain.ReasonOutOfRange},
		{"99999999999999999999 minutes", domain.ReasonOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseDuration(tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.reason, domain.ReasonOf(err))
			assert.False(t, IsValidDuration(tt.input))
		})
	}
}

func TestDurationUnits(t *testing.T) {
	units := DurationUnits()
	assert.Contains(t, units, "hours")
	assert.Contains(t, units, "месяца")
	assert.IsNonDecreasing(t, units)
}

func TestParseDate_Valid(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Time
		hasYear bool
	}{
		{"5.06.2001", utc(2001, 6, 5), true},
		{"29.02.2020", utc(2020, 2, 29), true},
		{"15.11.1995", utc(1995, 11, 15), true},
		{" 01.01.1900 ", utc(1900, 1, 1), true},
		{"15.06.2024", utc(2024, 6, 15), true},
		{"5.06", utc(domain.SentinelYear, 6, 5), false},
		{"29.02", utc(domain.SentinelYear, 2, 29), false},
		{"31.12", utc(domain.SentinelYear, 12, 31), false},
		{"15.08 30", utc(1993, 8, 15), true},
		{"10.03 30", utc(1994, 3, 10), true},
		{"15.06 30", utc(1994, 6, 15), true},
		{"16.06 30", utc(1993, 6, 16), true},
		{"29.02 24", utc(2000, 2, 29), true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input, fixedNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Date)
			assert.Equal(t, tt.hasYear, got.HasYear)
		})
	}
}

func TestParseDate_Invalid(t *testing.T) {
	tests := []struct {
		input    string
		sentinel error
		reason   domain.Reason
	}{
		{"32.12.2001", domain.ErrCalendarInvalid, domain.ReasonCalendarInvalid},
		{"29.02.2019", domain.ErrCalendarInvalid, domain.ReasonCalendarInvalid},
		{"15.13.2020", domain.ErrCalendarInvalid, domain.ReasonCalendarInvalid},
		{"0.06.2020", domain.ErrCalendarInvalid, domain.ReasonCalendarInvalid},
		{"5.00.2020", domain.ErrCalendarInvalid, domain.ReasonCalendarInvalid},
		{"31.04", domain.ErrCalendarInvalid, domain.ReasonCalendarInvalid},
		{"29.02 23", domain.ErrCalendarInvalid, domain.ReasonCalendarInvalid},
		{"01.01.94", domain.ErrMalformedInput, domain.ReasonMalformed},
		{"01.01.19945", domain.ErrMalformedInput, domain.ReasonMalformed},
		{"abc.def", domain.ErrMalformedInput, domain.ReasonMalformed},
		{"5-06-2020", domain.ErrMalformedInput, domain.ReasonMalformed},
		{"31/12", domain.ErrMalformedInput, domain.ReasonMalformed},
		{"5.06.19.20", domain.ErrMalformedInput, domain.ReasonMalformed},
		{"", domain.ErrMalformedInput, domain.ReasonMalformed},
		{"01.01.1800", domain.ErrOutOfRange, domain.ReasonTooOld},
		{fmt.Sprintf("01.01 %d", fixedNow.Year()-250), domain.ErrOutOfRange, domain.ReasonTooOld},
		{"01.01.2025", domain.ErrOutOfRange, domain.ReasonFutureDate},
		{"16.06.2024", domain.ErrOutOfRange, domain.ReasonFutureDate},
		{"15.08 0", domain.ErrOutOfRange, domain.ReasonNonPositiveAge},
		{"5.06 -42", domain.ErrOutOfRange, domain.ReasonNonPositiveAge},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input, fixedNow)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.reason, domain.ReasonOf(err))
			assert.Equal(t, domain.ParsedDate{}, got)
			assert.False(t, IsValidDate(tt.input, fixedNow))
		})
	}
}

func TestParseDate_DayMonthKeepsInput(t *testing.T) {
	for m := time.January; m <= time.December; m++ {
		for d := 1; d <= domain.DaysIn(m, domain.SentinelYear); d++ {
			got, err := ParseDate(fmt.Sprintf("%d.%d", d, int(m)), fixedNow)
			require.NoError(t, err)
			assert.False(t, got.HasYear)
			assert.Equal(t, domain.MonthDay{Month: m, Day: d}, got.MonthDay())
		}
	}
}

func TestParseDate_RoundTrip(t *testing.T) {
	dates := []time.Time{
		utc(1824, 6, 15),
		utc(1900, 2, 28),
		utc(1996, 2, 29),
		utc(2000, 12, 31),
		utc(2024, 1, 1),
		utc(2024, 6, 15),
	}

	for _, d := range dates {
		text := domain.FormatDate(d, true)
		got, err := ParseDate(text, fixedNow)
		require.NoError(t, err, text)
		assert.Equal(t, d, got.Date)
		assert.Equal(t, text, got.String())
	}
}

func TestParseDate_AgeMatchesCurrentAge(t *testing.T) {
	for _, input := range []string{"14.06 40", "15.06 40", "16.06 40", "01.01 1", "31.12 1"} {
		got, err := ParseDate(input, fixedNow)
		require.NoError(t, err, input)
		age, ok := domain.CurrentAge(got.Date, got.HasYear, fixedNow)
		require.True(t, ok)

		var want int
		_, err = fmt.Sscanf(input[6:], "%d", &want)
		require.NoError(t, err)
		assert.Equal(t, want, age, input)
	}
}

func TestParseBatch(t *testing.T) {
	entries, err := ParseBatch("Alice\n15.05.1990\n  Bob  \n29.02\r\nCarol\n10.03 30", fixedNow)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "Alice", entries[0].Name)
	assert.Equal(t, utc(1990, 5, 15), entries[0].Date.Date)
	assert.Equal(t, "Bob", entries[1].Name)
	assert.False(t, entries[1].Date.HasYear)
	assert.Equal(t, utc(1994, 3, 10), entries[2].Date.Date)
}

func TestParseBatch_AllOrNothing(t *testing.T) {
	entries, err := ParseBatch("A\n15.05.1990\nB\n32.13.2000", fixedNow)
	require.Error(t, err)
	assert.Nil(t, entries)
	assert.ErrorIs(t, err, domain.ErrPartialBatchRejected)
	assert.ErrorIs(t, err, domain.ErrCalendarInvalid)

	var be *BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 4, be.Line)
	assert.Equal(t, "32.13.2000", be.Input)
}

func TestParseBatch_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"odd line count", "A\n15.05.1990\nB", 3},
		{"leading blank line", "\n15.05.1990", 1},
		{"blank line inside", "A\n\n15.05.1990\nB", 2},
		{"empty", "   ", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := ParseBatch(tt.input, fixedNow)
			assert.Nil(t, entries)
			assert.ErrorIs(t, err, domain.ErrPartialBatchRejected)
			assert.ErrorIs(t, err, domain.ErrMalformedInput)

			var be *BatchError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tt.line, be.Line)
		})
	}
}
