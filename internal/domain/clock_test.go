package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock_Location(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	assert.Equal(t, la, RealClock{Location: la}.Now().Location())
}

func TestToday_FollowsLocation(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	instant := time.Date(2026, time.May, 15, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, date(2026, time.May, 15), Today(instant))
	assert.Equal(t, date(2026, time.May, 14), Today(instant.In(la)))
}
