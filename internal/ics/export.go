package ics

import (
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	"taskcal/internal/datekey"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/recurrence"
)

// Custom properties carrying what plain VEVENT fields cannot express.
const (
	PropertyGroup     = ical.ComponentProperty("X-TASKCAL-GROUP")
	PropertyCompleted = ical.ComponentProperty("X-TASKCAL-COMPLETED")
	PropertyRule      = ical.ComponentProperty("X-TASKCAL-RRULE")
)

const defaultProductID = "-//taskcal//Calendar Export//EN"

// ExportOptions tunes the calendar envelope.
type ExportOptions struct {
	ProductID string
	Name      string
	// Now stamps DTSTAMP; defaults to time.Now.
	Now func() time.Time
}

// Export renders occs as a VCALENDAR with one VEVENT per occurrence.
// Series members are written individually; the rule that produced them
// travels in X-TASKCAL-RRULE rather than RRULE so other clients do not
// expand them a second time.
func Export(occs []model.Occurrence, opts ExportOptions) string {
	if opts.ProductID == "" {
		opts.ProductID = defaultProductID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	stamp := opts.Now().UTC()

	cal := ical.NewCalendar()
	cal.SetProductId(opts.ProductID)
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetName(opts.Name)
		cal.SetXWRCalName(opts.Name)
	}

	written := 0
	for _, o := range occs {
		start, end, err := bounds(o)
		if err != nil {
			appLog.Warn("ics: export skipping occurrence", "id", o.ID, "err", err)
			continue
		}

		ev := cal.AddEvent(o.ID)
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(start)
		ev.SetEndAt(end)
		ev.SetSummary(o.Title)
		if o.Description != "" {
			ev.SetDescription(o.Description)
		}
		ev.AddCategory(string(o.Category))
		ev.SetPriority(toICalPriority(o.Priority))
		if !o.Metadata.CreatedAt.IsZero() {
			ev.SetCreatedTime(o.Metadata.CreatedAt)
		}
		if !o.Metadata.LastUpdated.IsZero() {
			ev.SetModifiedAt(o.Metadata.LastUpdated)
		}

		ev.SetProperty(PropertyGroup, o.GroupID)
		ev.SetProperty(PropertyCompleted, strconv.FormatBool(o.Completed))
		if o.Recurring && o.RecurrenceRule != nil {
			if s, err := recurrence.RuleString(*o.RecurrenceRule); err == nil {
				ev.SetProperty(PropertyRule, s)
			} else {
				appLog.Warn("ics: export dropping rule", "id", o.ID, "err", err)
			}
		}
		written++
	}

	appLog.Debug("ics: export completed", "event_count", written, "skipped", len(occs)-written)
	return cal.Serialize()
}

// bounds resolves the occurrence's start and end instants. An end at or
// before the start belongs to the following day.
func bounds(o model.Occurrence) (time.Time, time.Time, error) {
	start, err := datekey.Combine(o.Date, o.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := datekey.Combine(o.Date, o.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

// RFC 5545 priority: 1 highest, 9 lowest, 0 undefined.
func toICalPriority(p model.Priority) int {
	switch p {
	case model.PriorityCritical:
		return 1
	case model.PriorityHigh:
		return 3
	case model.PriorityLow:
		return 9
	default:
		return 5
	}
}

func fromICalPriority(n int) model.Priority {
	switch {
	case n == 1:
		return model.PriorityCritical
	case n >= 2 && n <= 4:
		return model.PriorityHigh
	case n >= 7 && n <= 9:
		return model.PriorityLow
	default:
		return model.PriorityMedium
	}
}
