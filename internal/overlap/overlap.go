// Package overlap decides whether a candidate time range collides with the
// occurrences already scheduled on the same calendar day.
//
// Ranges are half-open in minutes since midnight. A range whose end is not
// after its start crosses midnight and is extended by one day before
// comparing. Only occurrences on the candidate's own date are considered; a
// late-night range spilling into the next day is not checked against that day.
package overlap

import (
	"sort"

	"github.com/rdleal/intervalst/interval"

	"taskcal/internal/datekey"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

// Span is a normalized [Start, End) range in minutes since midnight.
type Span struct {
	Start int
	End   int
}

// SpanOf parses two HH:MM clocks into a normalized span.
func SpanOf(start, end string) (Span, error) {
	s, err := datekey.ParseClock(start)
	if err != nil {
		return Span{}, err
	}
	e, err := datekey.ParseClock(end)
	if err != nil {
		return Span{}, err
	}
	if e <= s {
		e += datekey.MinutesPerDay
	}
	return Span{Start: s, End: e}, nil
}

// Overlaps reports whether the half-open spans intersect. Touching spans
// (10:00-11:00 and 11:00-12:00) do not.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Index buckets occurrences per calendar day in interval search trees.
//
// The trees store doubled coordinates [2*Start, 2*End-1] so that a closed
// interval query reproduces half-open overlap exactly.
type Index struct {
	trees map[string]*interval.SearchTree[Span, int]
	spans map[string]map[Span][]model.Occurrence
}

// NewIndex builds an index over occs. Occurrences with unreadable times are
// logged and left out.
func NewIndex(occs []model.Occurrence) *Index {
	ix := &Index{
		trees: make(map[string]*interval.SearchTree[Span, int]),
		spans: make(map[string]map[Span][]model.Occurrence),
	}
	for _, o := range occs {
		ix.Add(o)
	}
	return ix
}

// Add indexes one occurrence.
func (ix *Index) Add(o model.Occurrence) {
	span, err := SpanOf(o.StartTime, o.EndTime)
	if err != nil {
		appLog.Warn("overlap: skipping occurrence with invalid time",
			"id", o.ID, "start", o.StartTime, "end", o.EndTime, "err", err)
		return
	}

	bySpan, ok := ix.spans[o.Date]
	if !ok {
		bySpan = make(map[Span][]model.Occurrence)
		ix.spans[o.Date] = bySpan
	}
	if _, seen := bySpan[span]; !seen {
		tree, ok := ix.trees[o.Date]
		if !ok {
			tree = interval.NewSearchTree[Span](func(x, y int) int { return x - y })
			ix.trees[o.Date] = tree
		}
		if err := tree.Insert(2*span.Start, 2*span.End-1, span); err != nil {
			appLog.Error("overlap: index insert failed", err, "id", o.ID, "date", o.Date)
			return
		}
	}
	bySpan[span] = append(bySpan[span], o)
}

// Conflicts returns the occurrences on date whose ranges overlap start-end,
// ordered by start time. Occurrences whose id is in exclude are ignored.
func (ix *Index) Conflicts(date, start, end string, exclude ...string) ([]model.Occurrence, error) {
	candidate, err := SpanOf(start, end)
	if err != nil {
		return nil, err
	}
	tree, ok := ix.trees[date]
	if !ok {
		return nil, nil
	}
	hits, ok := tree.AllIntersections(2*candidate.Start, 2*candidate.End-1)
	if !ok {
		return nil, nil
	}

	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	var out []model.Occurrence
	for _, span := range hits {
		for _, o := range ix.spans[date][span] {
			if skip[o.ID] {
				continue
			}
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := datekey.ParseClock(out[i].StartTime)
		b, _ := datekey.ParseClock(out[j].StartTime)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// HasConflict reports whether any non-excluded occurrence on date overlaps.
func (ix *Index) HasConflict(date, start, end string, exclude ...string) (bool, error) {
	hits, err := ix.Conflicts(date, start, end, exclude...)
	if err != nil {
		return false, err
	}
	return len(hits) > 0, nil
}

// HasConflict checks a single candidate against existing without keeping an
// index around. excludeID may be empty.
func HasConflict(existing []model.Occurrence, date, start, end, excludeID string) (bool, error) {
	sameDay := make([]model.Occurrence, 0, len(existing))
	for _, o := range existing {
		if o.Date == date {
			sameDay = append(sameDay, o)
		}
	}
	return NewIndex(sameDay).HasConflict(date, start, end, excludeID)
}
