// Package history keeps the single most recent mutating action so it can be
// reversed once within a short window.
package history

import (
	"context"
	"sync"
	"time"

	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

const DefaultWindow = 5 * time.Second

type Kind string

const (
	KindCreate Kind = "create"
	KindEdit   Kind = "edit"
	KindDelete Kind = "delete"
)

// Action describes one mutation.
//
//   - create: Affected holds the occurrences that were added.
//   - delete: Affected holds the occurrences that were removed.
//   - edit:   Affected holds the occurrences as they are after the edit and
//     Prior holds them as they were before.
type Action struct {
	Kind     Kind
	Affected []model.Occurrence
	Prior    []model.Occurrence
	// Label is the banner text, e.g. `Event "Standup" deleted`.
	Label string
}

// Record is a pending action and its deadline.
type Record struct {
	Action
	ExpiresAt time.Time
}

// Reverter applies a reversal. *store.Store satisfies it.
type Reverter interface {
	Swap(ctx context.Context, removeIDs []string, insert []model.Occurrence) error
}

type Options struct {
	// Window is how long an action stays undoable. Zero means DefaultWindow.
	Window time.Duration
	Now    func() time.Time
	// OnExpire is called from the timer goroutine when a record lapses
	// without being undone or replaced.
	OnExpire func(Record)
}

type History struct {
	target   Reverter
	window   time.Duration
	now      func() time.Time
	onExpire func(Record)

	mu      sync.Mutex
	pending *Record
	timer   *time.Timer
	seq     uint64
}

func New(target Reverter, opts Options) *History {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &History{
		target:   target,
		window:   opts.Window,
		now:      opts.Now,
		onExpire: opts.OnExpire,
	}
}

// Record replaces any pending action with a and starts its window.
func (h *History) Record(a Action) Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopLocked()
	h.seq++
	seq := h.seq
	rec := Record{Action: cloneAction(a), ExpiresAt: h.now().Add(h.window)}
	h.pending = &rec
	h.timer = time.AfterFunc(h.window, func() { h.expire(seq) })

	appLog.Debug("history: recorded action", "kind", a.Kind, "affected", len(a.Affected))
	return rec
}

func (h *History) expire(seq uint64) {
	h.mu.Lock()
	if h.seq != seq || h.pending == nil {
		h.mu.Unlock()
		return
	}
	rec := *h.pending
	h.pending = nil
	h.timer = nil
	cb := h.onExpire
	h.mu.Unlock()

	appLog.Debug("history: undo window expired", "kind", rec.Kind)
	if cb != nil {
		cb(rec)
	}
}

// Pending returns the undoable action, if any.
func (h *History) Pending() (Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.liveLocked() {
		return Record{}, false
	}
	return *h.pending, true
}

func (h *History) liveLocked() bool {
	if h.pending == nil {
		return false
	}
	if !h.now().Before(h.pending.ExpiresAt) {
		h.pending = nil
		h.stopLocked()
		return false
	}
	return true
}

// Undo reverses the pending action once. With nothing pending, or after the
// window closed, it does nothing and reports false. If the reversal fails the
// record stays pending and the error is returned.
func (h *History) Undo(ctx context.Context) (Action, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.liveLocked() {
		return Action{}, false, nil
	}
	a := h.pending.Action

	var removeIDs []string
	var insert []model.Occurrence
	switch a.Kind {
	case KindCreate:
		removeIDs = model.IDs(a.Affected)
	case KindDelete:
		insert = a.Affected
	case KindEdit:
		removeIDs = model.IDs(a.Affected)
		insert = a.Prior
	}
	if err := h.target.Swap(ctx, removeIDs, insert); err != nil {
		appLog.Error("history: undo failed", err, "kind", a.Kind)
		return Action{}, false, err
	}

	h.pending = nil
	h.stopLocked()
	appLog.Info("history: action undone", "kind", a.Kind, "affected", len(a.Affected))
	return a, true, nil
}

// Close cancels the pending timer and drops the record.
func (h *History) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = nil
	h.stopLocked()
}

func (h *History) stopLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func cloneAction(a Action) Action {
	out := Action{Kind: a.Kind, Label: a.Label}
	for _, o := range a.Affected {
		out.Affected = append(out.Affected, o.Clone())
	}
	for _, o := range a.Prior {
		out.Prior = append(out.Prior, o.Clone())
	}
	return out
}
