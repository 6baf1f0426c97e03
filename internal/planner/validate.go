package planner

import (
	"errors"
	"strings"

	"taskcal/internal/datekey"
	"taskcal/internal/model"
	"taskcal/internal/recurrence"
)

// Candidate carries the raw field values submitted by a form or the
// calendar grid.
type Candidate struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Date        string                `json:"date"`
	StartTime   string                `json:"startTime"`
	EndTime     string                `json:"endTime"`
	Category    string                `json:"category"`
	Priority    string                `json:"priority"`
	Recurring   bool                  `json:"recurring"`
	Rule        *model.RecurrenceRule `json:"recurrenceRule,omitempty"`
}

// draft is a Candidate after validation and normalization.
type draft struct {
	title       string
	description string
	date        string
	start       string
	end         string
	category    model.Category
	priority    model.Priority
	rule        *model.RecurrenceRule
}

func validate(c Candidate) (draft, error) {
	var d draft
	verr := &ValidationError{}

	d.title = strings.TrimSpace(c.Title)
	if d.title == "" {
		verr.add("title", "Title is required")
	}
	d.description = strings.TrimSpace(c.Description)

	if strings.TrimSpace(c.Date) == "" {
		verr.add("date", "Date is required")
	} else if key, err := datekey.NormalizeKey(c.Date); err != nil {
		verr.add("date", "Invalid date")
	} else {
		d.date = key
	}

	startOK, endOK := false, false
	d.start, startOK = checkClock(verr, "startTime", "Start time is required", c.StartTime)
	d.end, endOK = checkClock(verr, "endTime", "End time is required", c.EndTime)
	if startOK && endOK && d.start == d.end {
		verr.add("endTime", "End time must be after start time")
	}

	var ok bool
	if d.category, ok = model.ParseCategory(c.Category); !ok {
		verr.add("category", "Unknown category")
	}
	if d.priority, ok = model.ParsePriority(c.Priority); !ok {
		verr.add("priority", "Unknown priority")
	}

	if c.Recurring {
		if c.Rule == nil {
			verr.add("recurring", "Please complete recurring event settings")
		} else {
			rule := c.Rule.Clone()
			if rule.Interval < 1 {
				rule.Interval = 1
			}
			norm, err := recurrence.Normalize(*rule)
			if err != nil {
				verr.add("recurring", "Please complete recurring event settings")
			} else {
				d.rule = &norm
			}
		}
	}

	if !verr.empty() {
		return d, verr
	}
	return d, nil
}

func checkClock(verr *ValidationError, field, missing, value string) (string, bool) {
	if strings.TrimSpace(value) == "" {
		verr.add(field, missing)
		return "", false
	}
	norm, err := datekey.NormalizeClock(value)
	if err != nil {
		verr.add(field, "Invalid time format")
		return "", false
	}
	return norm, true
}

// expandDates returns the calendar keys a draft occupies.
func (p *Planner) expandDates(d draft) ([]string, error) {
	if d.rule == nil {
		return []string{d.date}, nil
	}
	keys, _, err := recurrence.ExpandKeys(d.date, d.start, *d.rule, recurrence.Config{MaxOccurrences: p.maxOccurrences})
	if err != nil {
		if errors.Is(err, recurrence.ErrNoOccurrences) {
			return nil, invalid("recurring", "No valid recurring dates were generated")
		}
		return nil, invalid("recurring", "Error generating recurring dates")
	}
	return keys, nil
}
