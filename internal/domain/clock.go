package domain

import "time"

// Clock abstracts time.Now so date math can be tested against a fixed day.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock in the configured location.
type RealClock struct {
	Location *time.Location
}

func (c RealClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns the same instant.
type FixedClock struct {
	Time time.Time
}

func (c FixedClock) Now() time.Time {
	return c.Time
}
