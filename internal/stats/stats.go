// Package stats aggregates ages and popular dates over a set of birthdays.
package stats

import (
	"slices"
	"time"

	"github.com/tazhate/birthdaybot/internal/domain"
)

// AgeSummary describes the ages of birthdays with a known year.
type AgeSummary struct {
	Count  int
	Mean   float64
	Min    int
	Max    int
	Median float64
}

// AgeStatistics computes the summary over records with a known year.
// The bool is false when there is no such record.
func AgeStatistics(records []*domain.Birthday, now time.Time) (AgeSummary, bool) {
	var ages []int
	for _, b := range records {
		if b == nil {
			continue
		}
		if age, ok := b.Age(now); ok {
			ages = append(ages, age)
		}
	}
	if len(ages) == 0 {
		return AgeSummary{}, false
	}

	slices.Sort(ages)
	sum := 0
	for _, a := range ages {
		sum += a
	}

	n := len(ages)
	median := float64(ages[n/2])
	if n%2 == 0 {
		median = float64(ages[n/2-1]+ages[n/2]) / 2
	}

	return AgeSummary{
		Count:  n,
		Mean:   float64(sum) / float64(n),
		Min:    ages[0],
		Max:    ages[n-1],
		Median: median,
	}, true
}

// MostCommonOccurrence returns the day and month shared by the most records
// and how many share it. Ties go to the earliest day of the year. A zero
// count means there was nothing to count.
func MostCommonOccurrence(records []*domain.Birthday) (domain.MonthDay, int) {
	counts := make(map[domain.MonthDay]int)
	for _, b := range records {
		if b == nil {
			continue
		}
		counts[b.MonthDay()]++
	}

	var best domain.MonthDay
	bestCount := 0
	for md, c := range counts {
		if c > bestCount || (c == bestCount && md.Before(best)) {
			best, bestCount = md, c
		}
	}
	return best, bestCount
}

// MostCommonMonth returns the month with the most birthdays. Ties go to the
// earlier month.
func MostCommonMonth(records []*domain.Birthday) (time.Month, int) {
	counts := CountByMonth(records)

	var best time.Month
	bestCount := 0
	for m := time.January; m <= time.December; m++ {
		if counts[m] > bestCount {
			best, bestCount = m, counts[m]
		}
	}
	return best, bestCount
}

// CountByMonth returns the number of birthdays in each month, indexed by
// time.Month (index 0 is unused).
func CountByMonth(records []*domain.Birthday) [13]int {
	var counts [13]int
	for _, b := range records {
		if b != nil {
			counts[b.Date.Month()]++
		}
	}
	return counts
}
