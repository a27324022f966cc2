package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseThresholds(t *testing.T) {
	got, err := ParseThresholds("7, 0,3,3")
	require.NoError(t, err)
	assert.Equal(t, Thresholds{0, 3, 7}, got)
	assert.Equal(t, "0,3,7", got.String())

	empty, err := ParseThresholds("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseThresholds("0,x")
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = ParseThresholds("0,5")
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestThresholds_Toggle(t *testing.T) {
	base := DefaultThresholds()

	without := base.Toggle(3)
	assert.Equal(t, Thresholds{0, 1, 7}, without)
	assert.Equal(t, Thresholds{0, 1, 3, 7}, base, "toggle must not mutate the receiver")

	assert.Equal(t, Thresholds{0, 1, 3, 7}, without.Toggle(3))
}

func TestBackupPing_IsDue(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p := &BackupPing{ChatID: 1, LastFiredAt: start, IntervalMinutes: 60, IsActive: true}

	assert.False(t, p.IsDue(start))
	assert.False(t, p.IsDue(start.Add(59*time.Minute)))
	assert.True(t, p.IsDue(start.Add(60*time.Minute)))

	p.IsActive = false
	assert.False(t, p.IsDue(start.Add(24*time.Hour)))
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, ReasonFutureDate, ReasonOf(NewParseError(ReasonFutureDate, "x")))
	assert.ErrorIs(t, NewParseError(ReasonTooOld, "x"), ErrOutOfRange)
	assert.ErrorIs(t, NewParseError(ReasonCalendarInvalid, "x"), ErrCalendarInvalid)
	assert.Equal(t, ReasonNotFound, ReasonOf(ErrNotFound))
	assert.Equal(t, Reason(""), ReasonOf(errors.New("disk full")))
}

func TestIsSupportedLanguage(t *testing.T) {
	assert.True(t, IsSupportedLanguage("ru"))
	assert.False(t, IsSupportedLanguage("de"))
	assert.Equal(t, "en", DefaultChatSettings(5).Language)
}
