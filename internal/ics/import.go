package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"taskcal/internal/datekey"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/recurrence"
)

// ErrInvalidCalendar is returned when the payload is not a readable
// iCalendar stream.
var ErrInvalidCalendar = errors.New("invalid calendar")

// ImportOptions configures how foreign VEVENTs become occurrences.
type ImportOptions struct {
	// NewID mints ids for events without a UID and for expanded RRULE
	// instances. Required.
	NewID     func() string
	CreatedBy string
	Now       func() time.Time
	// MaxOccurrences caps RRULE expansion per event.
	MaxOccurrences int
}

// Import parses an iCalendar payload into occurrences. VEVENTs that cannot be
// mapped are logged and skipped; only an unreadable payload is an error.
//
// Events exported by this program carry X-TASKCAL-* properties and come back
// as the same occurrence. A foreign RRULE bounded by UNTIL is expanded into a
// new series; any other RRULE imports only the first instance.
func Import(body []byte, opts ImportOptions) ([]model.Occurrence, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidCalendar)
	}
	if opts.NewID == nil {
		return nil, errors.New("ics: ImportOptions.NewID is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics: parse failed", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidCalendar, err)
	}

	var out []model.Occurrence
	for _, ve := range cal.Events() {
		occs, perr := convertVEvent(ve, opts)
		if perr != nil {
			appLog.Error("ics: vevent skipped", perr, "uid", ve.Id())
			continue
		}
		out = append(out, occs...)
	}

	appLog.Info("ics: import parsed", "event_count", len(cal.Events()), "occurrence_count", len(out))
	return out, nil
}

func convertVEvent(ve *ical.VEvent, opts ImportOptions) ([]model.Occurrence, error) {
	var o model.Occurrence

	o.ID = strings.TrimSpace(ve.Id())
	if o.ID == "" {
		o.ID = opts.NewID()
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		o.Title = strings.TrimSpace(p.Value)
	}
	if o.Title == "" {
		o.Title = "Untitled"
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		o.Description = p.Value
	}

	start, end, err := eventTimes(ve)
	if err != nil {
		return nil, err
	}
	o.Date = datekey.ToCalendarKey(start)
	o.StartTime = datekey.FormatClock(start.Hour()*60 + start.Minute())
	o.EndTime = datekey.FormatClock(end.Hour()*60 + end.Minute())
	if o.StartTime == o.EndTime {
		return nil, fmt.Errorf("zero-length event at %s %s", o.Date, o.StartTime)
	}

	o.Category = model.CategoryWork
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		// CATEGORIES may be a list; the first known value wins.
		for _, c := range strings.Split(p.Value, ",") {
			if cat, ok := model.ParseCategory(c); ok && strings.TrimSpace(c) != "" {
				o.Category = cat
				break
			}
		}
	}
	o.Priority = model.PriorityMedium
	if p := ve.GetProperty(ical.ComponentPropertyPriority); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			o.Priority = fromICalPriority(n)
		}
	}
	if p := ve.GetProperty(PropertyCompleted); p != nil {
		o.Completed, _ = strconv.ParseBool(strings.TrimSpace(p.Value))
	}

	o.Metadata.CreatedBy = opts.CreatedBy
	o.Metadata.CreatedAt = opts.Now().UTC()
	if t, err := timeProp(ve, ical.ComponentPropertyCreated); err == nil {
		o.Metadata.CreatedAt = t
	}
	o.Metadata.LastUpdated = o.Metadata.CreatedAt
	if t, err := ve.GetLastModifiedAt(); err == nil {
		o.Metadata.LastUpdated = t.UTC()
	}

	o.GroupID = o.ID
	if p := ve.GetProperty(PropertyRule); p != nil {
		// Already materialized by the exporter; keep it as a series member.
		rule, err := recurrence.ParseRuleString(p.Value)
		if err != nil {
			appLog.Warn("ics: ignoring unreadable X-TASKCAL-RRULE", "uid", o.ID, "err", err)
		} else {
			o.Recurring = true
			o.RecurrenceRule = &rule
			if g := ve.GetProperty(PropertyGroup); g != nil && strings.TrimSpace(g.Value) != "" {
				o.GroupID = strings.TrimSpace(g.Value)
			}
		}
		return []model.Occurrence{o}, nil
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		return expandForeign(o, p.Value, opts), nil
	}
	return []model.Occurrence{o}, nil
}

// expandForeign turns a foreign RRULE into one occurrence per date. The first
// occurrence keeps the VEVENT's UID and names the group.
func expandForeign(o model.Occurrence, raw string, opts ImportOptions) []model.Occurrence {
	rule, err := recurrence.ParseRuleString(withAnchorDay(raw, o.Date))
	if err != nil {
		appLog.Warn("ics: importing first instance only", "uid", o.ID, "rrule", raw, "err", err)
		return []model.Occurrence{o}
	}
	keys, truncated, err := recurrence.ExpandKeys(o.Date, o.StartTime, rule, recurrence.Config{MaxOccurrences: opts.MaxOccurrences})
	if err != nil {
		appLog.Warn("ics: rrule produced no dates", "uid", o.ID, "rrule", raw, "err", err)
		return []model.Occurrence{o}
	}
	if truncated {
		appLog.Warn("ics: rrule expansion truncated", "uid", o.ID, "count", len(keys))
	}

	out := make([]model.Occurrence, 0, len(keys))
	for i, key := range keys {
		occ := o.Clone()
		if i > 0 {
			occ.ID = opts.NewID()
		}
		occ.GroupID = o.ID
		occ.Date = key
		occ.Recurring = true
		occ.RecurrenceRule = rule.Clone()
		out = append(out, occ)
	}
	return out
}

var byDayNames = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// withAnchorDay adds BYDAY for a weekly rule that omits it; RFC 5545 then
// repeats on the weekday of DTSTART.
func withAnchorDay(raw, date string) string {
	upper := strings.ToUpper(raw)
	if !strings.Contains(upper, "FREQ=WEEKLY") || strings.Contains(upper, "BYDAY=") {
		return raw
	}
	wd, err := datekey.Weekday(date)
	if err != nil {
		return raw
	}
	return strings.TrimRight(raw, ";") + ";BYDAY=" + byDayNames[wd]
}

// eventTimes reads DTSTART/DTEND into the UTC frame. All-day events span the
// whole day; a missing DTEND gives a one-hour event.
func eventTimes(ve *ical.VEvent) (time.Time, time.Time, error) {
	dt := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dt == nil {
		return time.Time{}, time.Time{}, errors.New("missing DTSTART")
	}
	if isAllDay(dt) {
		day, err := ve.GetAllDayStartAt()
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("DTSTART: %w", err)
		}
		start := datekey.Civil(day)
		return start, start.Add(24*time.Hour - time.Minute), nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("DTSTART: %w", err)
	}
	start = datekey.Civil(start)

	end, err := ve.GetEndAt()
	if err != nil {
		return start, start.Add(time.Hour), nil
	}
	return start, datekey.Civil(end), nil
}

func isAllDay(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func timeProp(ve *ical.VEvent, prop ical.ComponentProperty) (time.Time, error) {
	p := ve.GetProperty(prop)
	if p == nil {
		return time.Time{}, errors.New("missing " + string(prop))
	}
	t, err := time.Parse("20060102T150405Z", p.Value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
