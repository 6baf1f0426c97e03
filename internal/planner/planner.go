// Package planner is the entry point UI collaborators call into: it
// validates candidates, expands recurrences, checks overlaps, writes the
// store and keeps the undo record.
package planner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskcal/internal/history"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/overlap"
	"taskcal/internal/store"
)

const DefaultCreatedBy = "CurrentUser"

// ErrNotFound is returned when an edit, delete or toggle names an id that is
// no longer stored. State is left unchanged.
var ErrNotFound = store.ErrNotFound

// ErrStorageLimitExceeded matches a write the storage backend refused.
var ErrStorageLimitExceeded = store.ErrStorageLimitExceeded

// ErrDuplicateID matches a write that would store two occurrences with one id.
var ErrDuplicateID = store.ErrDuplicateID

// Scope selects between one occurrence and its whole recurrence series.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeAll    Scope = "all"
)

// ParseScope maps "", "single"/"this" and "all" to a Scope.
func ParseScope(s string) (Scope, bool) {
	switch s {
	case "", "single", "this":
		return ScopeSingle, true
	case "all":
		return ScopeAll, true
	default:
		return "", false
	}
}

// Options tweak a single mutation.
type Options struct {
	// AllowOverlap skips the overlap check ("proceed anyway").
	AllowOverlap bool
}

type Config struct {
	CreatedBy      string
	MaxOccurrences int
	UndoWindow     time.Duration
	Now            func() time.Time
	NewID          func() string
	// OnUndoExpire is called when the undo banner should disappear.
	OnUndoExpire func(history.Record)
}

type Planner struct {
	store   *store.Store
	history *history.History

	createdBy      string
	maxOccurrences int
	now            func() time.Time
	newID          func() string

	// mu makes each operation run to completion before the next one starts,
	// so the overlap check and the write see the same state.
	mu sync.Mutex
}

func New(s *store.Store, cfg Config) *Planner {
	if cfg.CreatedBy == "" {
		cfg.CreatedBy = DefaultCreatedBy
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	return &Planner{
		store: s,
		history: history.New(s, history.Options{
			Window:   cfg.UndoWindow,
			Now:      cfg.Now,
			OnExpire: cfg.OnUndoExpire,
		}),
		createdBy:      cfg.CreatedBy,
		maxOccurrences: cfg.MaxOccurrences,
		now:            cfg.Now,
		newID:          cfg.NewID,
	}
}

// Close cancels the pending undo timer.
func (p *Planner) Close() {
	p.history.Close()
}

// Create validates c, expands it when recurring, checks every generated
// occurrence for overlaps and stores the result as one undoable action.
func (p *Planner) Create(ctx context.Context, c Candidate, opts Options) ([]model.Occurrence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := validate(c)
	if err != nil {
		return nil, err
	}
	id := p.newID()
	occs, err := p.build(d, id, id, provenance{})
	if err != nil {
		return nil, err
	}
	if !opts.AllowOverlap {
		if err := p.checkOverlaps(occs); err != nil {
			return nil, err
		}
	}
	if err := p.store.AddMany(ctx, occs); err != nil {
		return nil, err
	}

	p.history.Record(history.Action{
		Kind:     history.KindCreate,
		Affected: occs,
		Label:    label(d.title, len(occs), "created"),
	})
	appLog.Info("planner: created", "group_id", occs[0].GroupID, "count", len(occs), "recurring", d.rule != nil)
	return occs, nil
}

// provenance is carried over when a series is regenerated.
type provenance struct {
	CreatedBy string
	CreatedAt time.Time
}

// build materializes the occurrences of a draft. The first one gets firstID;
// later ones get fresh ids.
func (p *Planner) build(d draft, firstID, groupID string, meta provenance) ([]model.Occurrence, error) {
	dates, err := p.expandDates(d)
	if err != nil {
		return nil, err
	}

	now := p.now()
	if meta.CreatedBy == "" {
		meta.CreatedBy = p.createdBy
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}

	occs := make([]model.Occurrence, 0, len(dates))
	for i, date := range dates {
		id := firstID
		if i > 0 {
			id = p.newID()
		}
		occs = append(occs, model.Occurrence{
			ID:             id,
			GroupID:        groupID,
			Title:          d.title,
			Description:    d.description,
			Date:           date,
			StartTime:      d.start,
			EndTime:        d.end,
			Category:       d.category,
			Priority:       d.priority,
			Recurring:      d.rule != nil,
			RecurrenceRule: d.rule.Clone(),
			Metadata: model.Metadata{
				CreatedBy:   meta.CreatedBy,
				CreatedAt:   meta.CreatedAt,
				LastUpdated: now,
			},
		})
	}
	return occs, nil
}

func (p *Planner) checkOverlaps(occs []model.Occurrence, exclude ...string) error {
	ix := overlap.NewIndex(p.store.All())
	seen := make(map[string]bool)
	var conflicts []model.Occurrence
	for _, o := range occs {
		hits, err := ix.Conflicts(o.Date, o.StartTime, o.EndTime, exclude...)
		if err != nil {
			return err
		}
		for _, h := range hits {
			if !seen[h.ID] {
				seen[h.ID] = true
				conflicts = append(conflicts, h)
			}
		}
	}
	if len(conflicts) > 0 {
		store.SortChronological(conflicts)
		appLog.Debug("planner: overlap detected", "conflicts", len(conflicts))
		return &OverlapError{Conflicts: conflicts}
	}
	return nil
}

func (p *Planner) lookup(id string) (model.Occurrence, error) {
	cur, ok := p.store.Get(id)
	if !ok {
		appLog.Warn("planner: occurrence not found", "id", id)
		return cur, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cur, nil
}

// Edit applies c to the occurrence id.
//
// With ScopeSingle a member of a recurrence series is detached and becomes a
// standalone event. With ScopeAll the whole series is regenerated from c,
// anchored at c.Date (or the series' first date when c.Date is empty), using
// c.Rule or the series' current rule. A standalone event edited with a rule
// turns into a new series.
func (p *Planner) Edit(ctx context.Context, id string, c Candidate, scope Scope, opts Options) ([]model.Occurrence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.lookup(id)
	if err != nil {
		return nil, err
	}

	switch {
	case scope == ScopeAll && cur.Recurring:
		return p.editGroup(ctx, cur, c, opts)
	case !cur.Recurring && c.Recurring:
		return p.promote(ctx, cur, c, opts)
	default:
		return p.editSingle(ctx, cur, c, opts)
	}
}

func (p *Planner) editSingle(ctx context.Context, cur model.Occurrence, c Candidate, opts Options) ([]model.Occurrence, error) {
	if c.Date == "" {
		c.Date = cur.Date
	}
	c.Recurring = false
	d, err := validate(c)
	if err != nil {
		return nil, err
	}

	patch := model.Patch{
		Title:       &d.title,
		Description: &d.description,
		Date:        &d.date,
		StartTime:   &d.start,
		EndTime:     &d.end,
		Category:    &d.category,
		Priority:    &d.priority,
		Detach:      cur.Recurring,
	}
	return p.applySingle(ctx, cur, patch, opts)
}

func (p *Planner) applySingle(ctx context.Context, cur model.Occurrence, patch model.Patch, opts Options) ([]model.Occurrence, error) {
	if !opts.AllowOverlap {
		next := patch.Apply(cur)
		if err := p.checkOverlaps([]model.Occurrence{next}, cur.ID); err != nil {
			return nil, err
		}
	}
	before, after, err := p.store.UpdateSingle(ctx, cur.ID, patch)
	if err != nil {
		return nil, err
	}
	p.history.Record(history.Action{
		Kind:     history.KindEdit,
		Affected: []model.Occurrence{after},
		Prior:    []model.Occurrence{before},
		Label:    label(after.Title, 1, "updated"),
	})
	if patch.Detach {
		appLog.Info("planner: occurrence detached from series", "id", cur.ID, "group_id", cur.GroupID)
	}
	return []model.Occurrence{after}, nil
}

func (p *Planner) editGroup(ctx context.Context, cur model.Occurrence, c Candidate, opts Options) ([]model.Occurrence, error) {
	members := p.store.Group(cur.GroupID)
	if c.Date == "" && len(members) > 0 {
		c.Date = members[0].Date
	}
	if c.Rule == nil {
		c.Rule = cur.RecurrenceRule.Clone()
	}
	c.Recurring = true

	d, err := validate(c)
	if err != nil {
		return nil, err
	}
	meta := provenance{CreatedBy: cur.Metadata.CreatedBy, CreatedAt: cur.Metadata.CreatedAt}
	if len(members) > 0 {
		meta = provenance{CreatedBy: members[0].Metadata.CreatedBy, CreatedAt: members[0].Metadata.CreatedAt}
	}
	// A detached former member may still hold the group id as its own.
	firstID := cur.GroupID
	if o, ok := p.store.Get(cur.GroupID); ok && !o.InGroup(cur.GroupID) {
		firstID = p.newID()
	}
	occs, err := p.build(d, firstID, cur.GroupID, meta)
	if err != nil {
		return nil, err
	}
	if !opts.AllowOverlap {
		if err := p.checkOverlaps(occs, model.IDs(members)...); err != nil {
			return nil, err
		}
	}

	removed, err := p.store.UpdateGroup(ctx, cur.GroupID, occs)
	if err != nil {
		return nil, err
	}
	p.history.Record(history.Action{
		Kind:     history.KindEdit,
		Affected: occs,
		Prior:    removed,
		Label:    label(d.title, len(occs), "updated"),
	})
	appLog.Info("planner: series regenerated", "group_id", cur.GroupID, "removed", len(removed), "added", len(occs))
	return occs, nil
}

// promote replaces a standalone event with a series whose first occurrence
// keeps its id.
func (p *Planner) promote(ctx context.Context, cur model.Occurrence, c Candidate, opts Options) ([]model.Occurrence, error) {
	if c.Date == "" {
		c.Date = cur.Date
	}
	d, err := validate(c)
	if err != nil {
		return nil, err
	}
	// cur.ID can still name the series this event was detached from.
	groupID := cur.ID
	if len(p.store.Group(cur.ID)) > 0 {
		groupID = p.newID()
	}
	occs, err := p.build(d, cur.ID, groupID, provenance{CreatedBy: cur.Metadata.CreatedBy, CreatedAt: cur.Metadata.CreatedAt})
	if err != nil {
		return nil, err
	}
	if !opts.AllowOverlap {
		if err := p.checkOverlaps(occs, cur.ID); err != nil {
			return nil, err
		}
	}
	if err := p.store.Swap(ctx, []string{cur.ID}, occs); err != nil {
		return nil, err
	}
	p.history.Record(history.Action{
		Kind:     history.KindEdit,
		Affected: occs,
		Prior:    []model.Occurrence{cur},
		Label:    label(d.title, len(occs), "updated"),
	})
	return occs, nil
}

// Delete removes the occurrence id, or its whole series with ScopeAll.
func (p *Planner) Delete(ctx context.Context, id string, scope Scope) ([]model.Occurrence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.lookup(id)
	if err != nil {
		return nil, err
	}

	var removed []model.Occurrence
	if scope == ScopeAll && cur.Recurring {
		removed, err = p.store.RemoveGroup(ctx, cur.GroupID)
	} else {
		var o model.Occurrence
		o, err = p.store.RemoveSingle(ctx, id)
		removed = []model.Occurrence{o}
	}
	if err != nil {
		return nil, err
	}

	p.history.Record(history.Action{
		Kind:     history.KindDelete,
		Affected: removed,
		Label:    label(cur.Title, len(removed), "deleted"),
	})
	appLog.Info("planner: deleted", "id", id, "scope", scope, "count", len(removed))
	return removed, nil
}

// ToggleCompleted flips the completed flag. It does not replace the pending
// undo record.
func (p *Planner) ToggleCompleted(ctx context.Context, id string) (model.Occurrence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.lookup(id)
	if err != nil {
		return cur, err
	}
	done := !cur.Completed
	_, after, err := p.store.UpdateSingle(ctx, id, model.Patch{Completed: &done})
	return after, err
}

// Move reschedules one occurrence, as when it is dragged on the calendar
// grid. A series member that is moved is detached from its series.
func (p *Planner) Move(ctx context.Context, id, date, start, end string, opts Options) (model.Occurrence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.lookup(id)
	if err != nil {
		return cur, err
	}
	if end == "" {
		end = cur.EndTime
	}
	d, err := validate(Candidate{
		Title:     cur.Title,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Category:  string(cur.Category),
		Priority:  string(cur.Priority),
	})
	if err != nil {
		return cur, err
	}
	patch := model.Patch{Date: &d.date, StartTime: &d.start, EndTime: &d.end, Detach: cur.Recurring}
	out, err := p.applySingle(ctx, cur, patch, opts)
	if err != nil {
		return cur, err
	}
	return out[0], nil
}

// Undo reverses the most recent create, edit or delete once. It reports
// false when nothing is pending or the window has closed.
func (p *Planner) Undo(ctx context.Context) (history.Action, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok, err := p.history.Undo(ctx)
	if err != nil {
		return a, false, fmt.Errorf("undo: %w", err)
	}
	return a, ok, nil
}

// PendingUndo returns the action the undo banner currently offers.
func (p *Planner) PendingUndo() (history.Record, bool) {
	return p.history.Pending()
}

func label(title string, n int, verb string) string {
	if n == 1 {
		return fmt.Sprintf("Event %q %s", title, verb)
	}
	return fmt.Sprintf("%d occurrences of %q %s", n, title, verb)
}
