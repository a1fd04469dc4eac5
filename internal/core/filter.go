package core

import (
	"fmt"
	"slices"
	"time"
)

// FilterCriteria selects records by day-inclusive date range and category.
type FilterCriteria struct {
	Start      Date
	End        Date
	Categories []string
}

// Validate reports ErrInvalidDate for a missing bound and ErrNoMatchingData
// when the criteria can never match (inverted range or no categories).
func (c FilterCriteria) Validate() error {
	if err := c.Start.Validate(); err != nil {
		return fmt.Errorf("start: %w", ErrInvalidDate)
	}
	if err := c.End.Validate(); err != nil {
		return fmt.Errorf("end: %w", ErrInvalidDate)
	}
	if c.Start.Day().After(c.End.Day().Time) {
		return fmt.Errorf("start %s after end %s: %w", c.Start, c.End, ErrNoMatchingData)
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("no categories selected: %w", ErrNoMatchingData)
	}
	return nil
}

type matcher struct {
	from, to time.Time
	dated    bool
	allowed  map[string]struct{}
}

func newMatcher(start, end Date, categories []string) matcher {
	m := matcher{allowed: make(map[string]struct{}, len(categories))}
	for _, c := range categories {
		m.allowed[c] = struct{}{}
	}
	if !start.IsZero() && !end.IsZero() {
		m.dated = true
		m.from = start.Day().Time
		m.to = end.Day().Time
	}
	return m
}

func (m matcher) match(r Record) bool {
	if _, ok := m.allowed[r.CategoryLabel()]; !ok {
		return false
	}
	if !m.dated {
		return true
	}
	ts := r.Timestamp()
	if ts.IsZero() {
		return false
	}
	day := Date{Time: ts}.Day().Time
	return !day.Before(m.from) && !day.After(m.to)
}

// Filter returns the records that fall in [Start, End] and whose category is
// selected, in their original order. The input slice is never modified.
// A criteria that cannot match yields a nil subset and ErrNoMatchingData.
func Filter[R Record](records []R, c FilterCriteria) ([]R, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return collect(records, newMatcher(c.Start, c.End, c.Categories)), nil
}

// FilterCategories keeps records whose category is selected, ignoring dates.
// Used for datasets without a timestamp column.
func FilterCategories[R Record](records []R, categories []string) ([]R, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories selected: %w", ErrNoMatchingData)
	}
	return collect(records, newMatcher(Date{}, Date{}, categories)), nil
}

func collect[R Record](records []R, m matcher) []R {
	out := make([]R, 0, len(records))
	for _, r := range records {
		if m.match(r) {
			out = append(out, r)
		}
	}
	return out
}

// FilterYear keeps records whose timestamp falls in year.
func FilterYear[R Record](records []R, year int) []R {
	out := make([]R, 0, len(records))
	for _, r := range records {
		if ts := r.Timestamp(); !ts.IsZero() && ts.Year() == year {
			out = append(out, r)
		}
	}
	return out
}

// AvailableYears returns the distinct years present, most recent first.
func AvailableYears[R Record](records []R) []int {
	seen := make(map[int]struct{})
	var years []int
	for _, r := range records {
		ts := r.Timestamp()
		if ts.IsZero() {
			continue
		}
		if _, ok := seen[ts.Year()]; ok {
			continue
		}
		seen[ts.Year()] = struct{}{}
		years = append(years, ts.Year())
	}
	slices.Sort(years)
	slices.Reverse(years)
	return years
}

// RowRange returns a copy of records[start:end].
func RowRange[R Record](records []R, start, end int) ([]R, error) {
	if start < 0 || start >= len(records) || end <= start || end > len(records) {
		return nil, fmt.Errorf("rows %d..%d of %d: %w", start, end, len(records), ErrInvalidRowRange)
	}
	return slices.Clone(records[start:end]), nil
}
