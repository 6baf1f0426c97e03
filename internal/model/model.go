package model

import (
	"strings"
	"time"
)

// Category is the fixed set of event categories.
type Category string

const (
	CategoryWork     Category = "Work"
	CategoryPersonal Category = "Personal"
	CategorySchool   Category = "School"
)

// Categories lists the valid categories in display order.
var Categories = []Category{CategoryWork, CategoryPersonal, CategorySchool}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// ParseCategory matches case-insensitively; empty input yields Work.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CategoryWork, true
	}
	for _, v := range Categories {
		if strings.EqualFold(s, string(v)) {
			return v, true
		}
	}
	return "", false
}

// Priority is ordered by severity: Low < Medium < High < Critical.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Rank returns 0..3 for valid priorities and -1 otherwise.
func (p Priority) Rank() int {
	for i, v := range Priorities {
		if p == v {
			return i
		}
	}
	return -1
}

func (p Priority) Valid() bool { return p.Rank() >= 0 }

// Color is the display color used by the day view and calendar grid.
func (p Priority) Color() string {
	switch p {
	case PriorityLow:
		return "#A8CCDC"
	case PriorityMedium:
		return "#DDA853"
	case PriorityHigh:
		return "#164046"
	case PriorityCritical:
		return "#FF0000"
	default:
		return "#FFFFFF"
	}
}

// ParsePriority matches case-insensitively; empty input yields Medium.
func ParsePriority(s string) (Priority, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PriorityMedium, true
	}
	for _, v := range Priorities {
		if strings.EqualFold(s, string(v)) {
			return v, true
		}
	}
	return "", false
}

// Frequency of a recurrence rule.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// RecurrenceRule describes how a series repeats.
type RecurrenceRule struct {
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval"`
	// WeekDays holds 0..6 with Sunday=0; only used for weekly rules.
	WeekDays []int `json:"weekDays,omitempty"`
	// EndDate is an inclusive calendar key.
	EndDate string `json:"endDate"`
}

// Clone returns a deep copy so callers never share the WeekDays slice.
func (r *RecurrenceRule) Clone() *RecurrenceRule {
	if r == nil {
		return nil
	}
	c := *r
	if r.WeekDays != nil {
		c.WeekDays = append([]int(nil), r.WeekDays...)
	}
	return &c
}

// Metadata records provenance of an occurrence.
type Metadata struct {
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Occurrence is one concrete, schedulable instance of an event.
type Occurrence struct {
	ID string `json:"id"`
	// GroupID names the recurrence series. It equals ID for standalone events
	// and for the first occurrence of a freshly generated series.
	GroupID     string `json:"groupId"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// Date is a calendar key (YYYY-MM-DD).
	Date string `json:"date"`
	// StartTime / EndTime are HH:MM. EndTime earlier than StartTime means the
	// range crosses midnight.
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`

	Category Category `json:"category"`
	Priority Priority `json:"priority"`

	Recurring      bool            `json:"recurring"`
	RecurrenceRule *RecurrenceRule `json:"recurrenceRule,omitempty"`

	Completed bool     `json:"completed"`
	Metadata  Metadata `json:"metadata"`
}

// Clone returns a deep copy of the occurrence.
func (o Occurrence) Clone() Occurrence {
	o.RecurrenceRule = o.RecurrenceRule.Clone()
	return o
}

// InGroup reports whether o is a member of the recurrence series groupID.
// Standalone events are never group members, even when their ID matches.
func (o Occurrence) InGroup(groupID string) bool {
	return o.Recurring && o.GroupID == groupID
}

// Patch carries optional field replacements for a single occurrence.
type Patch struct {
	Title       *string
	Description *string
	Date        *string
	StartTime   *string
	EndTime     *string
	Category    *Category
	Priority    *Priority
	Completed   *bool

	// Detach turns a series member into a standalone event.
	Detach bool
}

// Apply returns a copy of o with the patch applied.
func (p Patch) Apply(o Occurrence) Occurrence {
	o = o.Clone()
	if p.Title != nil {
		o.Title = *p.Title
	}
	if p.Description != nil {
		o.Description = *p.Description
	}
	if p.Date != nil {
		o.Date = *p.Date
	}
	if p.StartTime != nil {
		o.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		o.EndTime = *p.EndTime
	}
	if p.Category != nil {
		o.Category = *p.Category
	}
	if p.Priority != nil {
		o.Priority = *p.Priority
	}
	if p.Completed != nil {
		o.Completed = *p.Completed
	}
	if p.Detach {
		o.Recurring = false
		o.RecurrenceRule = nil
		o.GroupID = o.ID
	}
	return o
}

// IDs returns the ids of occs in order.
func IDs(occs []Occurrence) []string {
	out := make([]string, 0, len(occs))
	for _, o := range occs {
		out = append(out, o.ID)
	}
	return out
}
