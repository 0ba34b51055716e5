// Package coverage tracks which calendar days of an archive are already
// cached, and computes the ranges a request still needs to fetch.
package coverage

import (
	"sort"
	"strings"
	"time"

	"barcache/internal/model"
)

// Set is an ordered set of disjoint, non-adjacent closed date intervals.
// After every mutation the intervals are sorted ascending and merged: no two
// intervals touch or overlap. The zero value is an empty set, ready to use.
type Set struct {
	ranges []model.DateRange
}

// FromRanges builds a Set from arbitrary (possibly overlapping) ranges.
func FromRanges(ranges ...model.DateRange) Set {
	var s Set
	for _, r := range ranges {
		s.Add(r)
	}
	return s
}

// FromDates builds a Set from individual days, coalescing consecutive runs.
func FromDates(dates []time.Time) Set {
	var s Set
	for _, d := range dates {
		day := model.DateOf(d)
		s.Add(model.DateRange{From: day, To: day})
	}
	return s
}

// Add inserts a range and restores the sorted-merged invariant. Intervals
// that overlap or touch (gap of zero days) are coalesced into one.
func (s *Set) Add(r model.DateRange) {
	if !r.Valid() {
		return
	}
	r = model.NewDateRange(r.From, r.To)
	merged := make([]model.DateRange, 0, len(s.ranges)+1)
	for _, existing := range s.ranges {
		switch {
		case existing.To.Before(model.PrevDay(r.From)):
			// strictly before r, not even touching
			merged = append(merged, existing)
		case existing.From.After(model.NextDay(r.To)):
			// strictly after r, not even touching
			merged = append(merged, existing)
		default:
			// overlaps or touches r: fold into r
			if existing.From.Before(r.From) {
				r.From = existing.From
			}
			if existing.To.After(r.To) {
				r.To = existing.To
			}
		}
	}
	merged = append(merged, r)
	sort.Slice(merged, func(i, j int) bool { return merged[i].From.Before(merged[j].From) })
	s.ranges = merged
}

// AddSet folds every interval of other into s.
func (s *Set) AddSet(other Set) {
	for _, r := range other.ranges {
		s.Add(r)
	}
}

// Ranges returns the intervals in ascending order. The slice is a copy.
func (s Set) Ranges() []model.DateRange {
	out := make([]model.DateRange, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// IsEmpty reports whether no day is covered.
func (s Set) IsEmpty() bool { return len(s.ranges) == 0 }

// Contains reports whether the calendar day of t is covered.
func (s Set) Contains(t time.Time) bool {
	for _, r := range s.ranges {
		if r.Contains(t) {
			return true
		}
	}
	return false
}

// ContainsRange reports whether every day of r is covered by a single interval.
func (s Set) ContainsRange(r model.DateRange) bool {
	for _, c := range s.ranges {
		if !c.From.After(r.From) && !c.To.Before(r.To) {
			return true
		}
	}
	return false
}

// Missing computes the set difference requested \ covered as the minimal
// ordered sequence of disjoint closed intervals inside requested. A fully
// covered request yields nil; an empty set yields the request unchanged.
// Pure calendar-date arithmetic: weekends and holidays are not special here.
func (s Set) Missing(requested model.DateRange) []model.DateRange {
	if !requested.Valid() {
		return nil
	}
	requested = model.NewDateRange(requested.From, requested.To)

	var gaps []model.DateRange
	cursor := requested.From
	for _, c := range s.ranges {
		if c.To.Before(cursor) {
			continue
		}
		if c.From.After(requested.To) {
			break
		}
		if c.From.After(cursor) {
			gaps = append(gaps, model.DateRange{From: cursor, To: model.PrevDay(c.From)})
		}
		cursor = model.NextDay(c.To)
		if cursor.After(requested.To) {
			return gaps
		}
	}
	gaps = append(gaps, model.DateRange{From: cursor, To: requested.To})
	return gaps
}

func (s Set) String() string {
	if len(s.ranges) == 0 {
		return "(empty)"
	}
	parts := make([]string, len(s.ranges))
	for i, r := range s.ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}
