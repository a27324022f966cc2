package domain

import (
	"slices"
	"strconv"
	"strings"
)

// SupportedThresholds are the lead times, in days, a chat can subscribe to.
var SupportedThresholds = []int{0, 1, 3, 7}

func IsSupportedThreshold(days int) bool {
	return slices.Contains(SupportedThresholds, days)
}

// Thresholds is a sorted set of reminder lead times.
type Thresholds []int

// DefaultThresholds is used for chats that never changed their settings.
func DefaultThresholds() Thresholds {
	return slices.Clone(Thresholds(SupportedThresholds))
}

// ParseThresholds reads the comma separated storage form ("0,1,3,7").
func ParseThresholds(s string) (Thresholds, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Thresholds{}, nil
	}

	var out Thresholds
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, NewParseError(ReasonMalformed, s)
		}
		if !IsSupportedThreshold(n) {
			return nil, NewParseError(ReasonOutOfRange, s)
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (t Thresholds) String() string {
	parts := make([]string, len(t))
	for i, d := range t {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func (t Thresholds) Contains(days int) bool {
	return slices.Contains(t, days)
}

// Toggle returns a copy with days added or removed.
func (t Thresholds) Toggle(days int) Thresholds {
	if t.Contains(days) {
		return slices.DeleteFunc(slices.Clone(t), func(d int) bool { return d == days })
	}
	out := append(slices.Clone(t), days)
	slices.Sort(out)
	return out
}
