package planner

import (
	"fmt"
	"sort"
	"strings"

	"taskcal/internal/model"
)

// ValidationError maps form field names (title, date, startTime, endTime,
// category, priority, recurring) to a message shown next to the field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) empty() bool { return len(e.Fields) == 0 }

func invalid(field, msg string) *ValidationError {
	e := &ValidationError{}
	e.add(field, msg)
	return e
}

// OverlapError is returned when a candidate collides with existing
// occurrences. Retrying with Options.AllowOverlap proceeds anyway.
type OverlapError struct {
	Conflicts []model.Occurrence
}

const overlapMessage = "This event overlaps with an existing event"

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlaps with %d existing event(s)", len(e.Conflicts))
}

// Message is the text shown in the conflict prompt under the "overlap" key.
func (e *OverlapError) Message() string { return overlapMessage }
