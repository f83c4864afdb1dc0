package catalog

import (
	"cmp"
	"strconv"
	"strings"
	"time"
)

// epoch is where unparseable revisions sort.
var epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// NormalizeRevision converts a revision date string into a time used for
// ordering only. A day past the end of its month is clamped to the month's
// last day (2021-02-29 becomes 2021-02-28); anything else that is not a
// YYYY-MM-DD calendar date becomes 1970-01-01. It never fails.
func NormalizeRevision(revision string) time.Time {
	parts := strings.Split(strings.TrimSpace(revision), "-")
	if len(parts) != 3 {
		return epoch
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) != 4 || year < 1 {
		return epoch
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return epoch
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil || day < 1 || day > 31 {
		return epoch
	}
	if last := daysIn(time.Month(month), year); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// NormalizedRevision is NormalizeRevision formatted back as YYYY-MM-DD.
func NormalizedRevision(revision string) string {
	return NormalizeRevision(revision).Format(time.DateOnly)
}

// CompareRevisions orders two revisions by normalized date, falling back to
// the raw strings so the order is total and deterministic.
func CompareRevisions(a, b string) int {
	if c := NormalizeRevision(a).Compare(NormalizeRevision(b)); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

func daysIn(m time.Month, year int) int {
	// Day 0 of the following month is the last day of m.
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
