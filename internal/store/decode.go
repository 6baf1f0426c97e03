package store

import (
	"encoding/json"
	"time"

	"taskcal/internal/datekey"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

// record accepts both the current layout and the one written by the
// browser build (taskId, recurringOptions, metadata.recurringGroupId).
type record struct {
	ID          string `json:"id"`
	TaskID      string `json:"taskId"`
	GroupID     string `json:"groupId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`

	Recurring        bool                  `json:"recurring"`
	RecurrenceRule   *model.RecurrenceRule `json:"recurrenceRule"`
	RecurringOptions *model.RecurrenceRule `json:"recurringOptions"`

	Completed bool `json:"completed"`
	Metadata  struct {
		CreatedBy        string    `json:"createdBy"`
		CreatedAt        time.Time `json:"createdAt"`
		LastUpdated      time.Time `json:"lastUpdated"`
		RecurringGroupID string    `json:"recurringGroupId"`
	} `json:"metadata"`
}

// decode parses the stored array. A document that is not a JSON array is an
// error; individual records that cannot be salvaged are logged and dropped.
func decode(data []byte) ([]model.Occurrence, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := make([]model.Occurrence, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, msg := range raw {
		var r record
		if err := json.Unmarshal(msg, &r); err != nil {
			appLog.Warn("store: dropping unreadable record", "index", i, "err", err)
			continue
		}
		o, ok := r.occurrence()
		if !ok {
			appLog.Warn("store: dropping invalid record", "index", i, "id", r.ID+r.TaskID)
			continue
		}
		if seen[o.ID] {
			appLog.Warn("store: dropping duplicate record", "index", i, "id", o.ID)
			continue
		}
		seen[o.ID] = true
		out = append(out, o)
	}
	return out, nil
}

func (r record) occurrence() (model.Occurrence, bool) {
	o := model.Occurrence{
		ID:          r.ID,
		GroupID:     r.GroupID,
		Title:       r.Title,
		Description: r.Description,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Recurring:   r.Recurring,
		Completed:   r.Completed,
		Metadata: model.Metadata{
			CreatedBy:   r.Metadata.CreatedBy,
			CreatedAt:   r.Metadata.CreatedAt,
			LastUpdated: r.Metadata.LastUpdated,
		},
	}
	if o.ID == "" {
		o.ID = r.TaskID
	}
	if o.ID == "" {
		return o, false
	}
	if o.GroupID == "" {
		o.GroupID = r.Metadata.RecurringGroupID
	}
	if o.GroupID == "" {
		o.GroupID = o.ID
	}

	date, err := datekey.NormalizeKey(r.Date)
	if err != nil {
		return o, false
	}
	o.Date = date

	var ok bool
	if o.Category, ok = model.ParseCategory(r.Category); !ok {
		o.Category = model.CategoryWork
	}
	if o.Priority, ok = model.ParsePriority(r.Priority); !ok {
		o.Priority = model.PriorityMedium
	}

	rule := r.RecurrenceRule
	if rule == nil {
		rule = r.RecurringOptions
	}
	if o.Recurring && rule != nil {
		o.RecurrenceRule = rule.Clone()
	} else {
		o.Recurring = false
	}
	return o, true
}
