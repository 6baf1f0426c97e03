package planner

import (
	"context"

	"taskcal/internal/ics"
	"taskcal/internal/model"
)

// ExportCalendar renders the occurrences between from and to as iCalendar.
// Empty bounds export everything.
func (p *Planner) ExportCalendar(from, to string) (string, error) {
	var occs []model.Occurrence
	if from == "" && to == "" {
		occs = p.store.All()
	} else {
		if from == "" {
			from = "0001-01-01"
		}
		if to == "" {
			to = "9999-12-31"
		}
		var err error
		if occs, err = p.Range(from, to); err != nil {
			return "", err
		}
	}
	return ics.Export(occs, ics.ExportOptions{Name: "taskcal", Now: p.now}), nil
}

// ImportCalendar parses an iCalendar payload and stores the events it
// contains as one undoable create.
func (p *Planner) ImportCalendar(ctx context.Context, body []byte) ([]model.Occurrence, error) {
	occs, err := ics.Import(body, ics.ImportOptions{
		NewID:          p.newID,
		CreatedBy:      p.createdBy,
		Now:            p.now,
		MaxOccurrences: p.maxOccurrences,
	})
	if err != nil {
		return nil, err
	}
	return p.Import(ctx, occs)
}
