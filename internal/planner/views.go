package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskcal/internal/datekey"
	"taskcal/internal/history"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/recurrence"
)

// Day lists the occurrences on one calendar day ordered by start time.
func (p *Planner) Day(date string) ([]model.Occurrence, error) {
	key, err := datekey.NormalizeKey(date)
	if err != nil {
		return nil, err
	}
	return p.store.Day(key), nil
}

// Range lists the occurrences between from and to inclusive.
func (p *Planner) Range(from, to string) ([]model.Occurrence, error) {
	fromKey, err := datekey.NormalizeKey(from)
	if err != nil {
		return nil, err
	}
	toKey, err := datekey.NormalizeKey(to)
	if err != nil {
		return nil, err
	}
	return p.store.Range(fromKey, toKey), nil
}

// All returns every stored occurrence.
func (p *Planner) All() []model.Occurrence {
	return p.store.All()
}

// Get returns one occurrence.
func (p *Planner) Get(id string) (model.Occurrence, error) {
	return p.lookup(id)
}

// FeedItem is what the calendar grid renders for one occurrence.
type FeedItem struct {
	ID        string         `json:"id"`
	GroupID   string         `json:"groupId"`
	Title     string         `json:"title"`
	Start     time.Time      `json:"start"`
	End       time.Time      `json:"end"`
	Category  model.Category `json:"category"`
	Priority  model.Priority `json:"priority"`
	Color     string         `json:"color"`
	ClassName string         `json:"className"`
	Recurring bool           `json:"recurring"`
	Completed bool           `json:"completed"`
}

// Feed converts the occurrences between from and to into grid items. A range
// crossing midnight ends on the following day.
func (p *Planner) Feed(from, to string) ([]FeedItem, error) {
	occs, err := p.Range(from, to)
	if err != nil {
		return nil, err
	}
	items := make([]FeedItem, 0, len(occs))
	for _, o := range occs {
		start, err := datekey.Combine(o.Date, o.StartTime)
		if err != nil {
			appLog.Warn("planner: feed skipping occurrence", "id", o.ID, "err", err)
			continue
		}
		end, err := datekey.Combine(o.Date, o.EndTime)
		if err != nil {
			end = start
		} else if !end.After(start) {
			end = end.AddDate(0, 0, 1)
		}
		title := o.Title
		if title == "" {
			title = "Untitled"
		}
		items = append(items, FeedItem{
			ID:        o.ID,
			GroupID:   o.GroupID,
			Title:     title,
			Start:     start,
			End:       end,
			Category:  o.Category,
			Priority:  o.Priority,
			Color:     o.Priority.Color(),
			ClassName: "priority-" + strings.ToLower(string(o.Priority)),
			Recurring: o.Recurring,
			Completed: o.Completed,
		})
	}
	return items, nil
}

// Preview describes what a recurrence rule would generate from date/start
// without storing anything.
type Preview struct {
	Description string   `json:"description"`
	Count       int      `json:"count"`
	Dates       []string `json:"dates"`
	Truncated   bool     `json:"truncated"`
}

func (p *Planner) Preview(date, start string, rule model.RecurrenceRule) (Preview, error) {
	if rule.Interval < 1 {
		rule.Interval = 1
	}
	if rule.EndDate == "" {
		return Preview{Description: "Please select an end date to see the preview"}, nil
	}
	if start == "" {
		start = "00:00"
	}
	keys, truncated, err := recurrence.ExpandKeys(date, start, rule, recurrence.Config{MaxOccurrences: p.maxOccurrences})
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		Description: recurrence.Describe(rule),
		Count:       len(keys),
		Dates:       keys,
		Truncated:   truncated,
	}, nil
}

// Import adds occurrences that came from outside (calendar files). Ids that
// already exist are skipped. The batch is one undoable create.
func (p *Planner) Import(ctx context.Context, occs []model.Occurrence) ([]model.Occurrence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]bool)
	for _, o := range p.store.All() {
		seen[o.ID] = true
	}
	var fresh []model.Occurrence
	for _, o := range occs {
		if seen[o.ID] {
			appLog.Debug("planner: import skipping existing id", "id", o.ID)
			continue
		}
		seen[o.ID] = true
		if o.Metadata.CreatedBy == "" {
			o.Metadata.CreatedBy = p.createdBy
		}
		fresh = append(fresh, o)
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	if err := p.store.AddMany(ctx, fresh); err != nil {
		return nil, err
	}
	p.history.Record(history.Action{
		Kind:     history.KindCreate,
		Affected: fresh,
		Label:    fmt.Sprintf("%d events imported", len(fresh)),
	})
	appLog.Info("planner: imported occurrences", "count", len(fresh), "skipped", len(occs)-len(fresh))
	return fresh, nil
}
