package history

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"taskcal/internal/model"
	"taskcal/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func occ(id string) model.Occurrence {
	return model.Occurrence{
		ID: id, GroupID: id, Title: "Event " + id, Date: "2025-01-06",
		StartTime: "09:00", EndTime: "10:00",
		Category: model.CategoryWork, Priority: model.PriorityMedium,
	}
}

func newStore(t *testing.T, occs ...model.Occurrence) *store.Store {
	t.Helper()
	s := store.New(store.NewMemoryStorage(), store.Options{})
	s.Load(context.Background())
	if len(occs) > 0 {
		if err := s.AddMany(context.Background(), occs); err != nil {
			t.Fatalf("AddMany: %v", err)
		}
	}
	return s
}

func TestUndoDeleteRestoresExactlyOnce(t *testing.T) {
	ctx := context.Background()
	x := occ("x")
	x.Description = "keep me"
	s := newStore(t, x, occ("y"))
	h := New(s, Options{Window: time.Minute})
	t.Cleanup(h.Close)

	removed, err := s.RemoveSingle(ctx, "x")
	if err != nil {
		t.Fatalf("RemoveSingle: %v", err)
	}
	h.Record(Action{Kind: KindDelete, Affected: []model.Occurrence{removed}, Label: `Event "Event x" deleted`})

	if rec, ok := h.Pending(); !ok || rec.Label != `Event "Event x" deleted` {
		t.Fatalf("Pending = %+v, %v", rec, ok)
	}

	a, ok, err := h.Undo(ctx)
	if err != nil || !ok || a.Kind != KindDelete {
		t.Fatalf("Undo = %+v, %v, %v", a, ok, err)
	}
	got, found := s.Get("x")
	if !found || !reflect.DeepEqual(got, x) {
		t.Fatalf("restored %+v, want %+v", got, x)
	}

	if _, ok, err := h.Undo(ctx); ok || err != nil {
		t.Fatalf("second Undo should be a no-op, got ok=%v err=%v", ok, err)
	}
	if s.Len() != 2 {
		t.Fatalf("store has %d occurrences, want 2", s.Len())
	}
}

func TestUndoCreateRemovesAddedOccurrences(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, occ("keep"))
	h := New(s, Options{Window: time.Minute})
	t.Cleanup(h.Close)

	added := []model.Occurrence{occ("a"), occ("b")}
	if err := s.AddMany(ctx, added); err != nil {
		t.Fatalf("AddMany: %v", err)
	}
	h.Record(Action{Kind: KindCreate, Affected: added})

	if _, ok, err := h.Undo(ctx); !ok || err != nil {
		t.Fatalf("Undo ok=%v err=%v", ok, err)
	}
	if ids := model.IDs(s.All()); !reflect.DeepEqual(ids, []string{"keep"}) {
		t.Fatalf("store ids = %v, want [keep]", ids)
	}
}

func TestUndoEditRestoresPriorSnapshot(t *testing.T) {
	ctx := context.Background()
	orig := occ("a")
	s := newStore(t, orig)
	h := New(s, Options{Window: time.Minute})
	t.Cleanup(h.Close)

	title := "Changed"
	before, after, err := s.UpdateSingle(ctx, "a", model.Patch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateSingle: %v", err)
	}
	h.Record(Action{Kind: KindEdit, Affected: []model.Occurrence{after}, Prior: []model.Occurrence{before}})

	if _, ok, err := h.Undo(ctx); !ok || err != nil {
		t.Fatalf("Undo ok=%v err=%v", ok, err)
	}
	got, _ := s.Get("a")
	if !reflect.DeepEqual(got, orig) {
		t.Fatalf("after undo = %+v, want %+v", got, orig)
	}
}

func TestNewRecordSupersedesPrevious(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, occ("a"), occ("b"))
	h := New(s, Options{Window: time.Minute})
	t.Cleanup(h.Close)

	first, _ := s.RemoveSingle(ctx, "a")
	h.Record(Action{Kind: KindDelete, Affected: []model.Occurrence{first}})
	second, _ := s.RemoveSingle(ctx, "b")
	h.Record(Action{Kind: KindDelete, Affected: []model.Occurrence{second}})

	if _, ok, _ := h.Undo(ctx); !ok {
		t.Fatalf("expected undo of second delete")
	}
	if ids := model.IDs(s.All()); !reflect.DeepEqual(ids, []string{"b"}) {
		t.Fatalf("store ids = %v, want [b]", ids)
	}
	if _, ok, _ := h.Undo(ctx); ok {
		t.Fatalf("first record should have been discarded")
	}
}

func TestUndoAfterWindowIsNoop(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)}
	s := newStore(t)
	h := New(s, Options{Window: time.Hour, Now: clock.Now})
	t.Cleanup(h.Close)

	added := []model.Occurrence{occ("a")}
	if err := s.AddMany(ctx, added); err != nil {
		t.Fatalf("AddMany: %v", err)
	}
	rec := h.Record(Action{Kind: KindCreate, Affected: added})
	if !rec.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("ExpiresAt = %v", rec.ExpiresAt)
	}

	clock.Advance(time.Hour)
	if _, ok := h.Pending(); ok {
		t.Fatalf("record should have expired")
	}
	if _, ok, err := h.Undo(ctx); ok || err != nil {
		t.Fatalf("Undo after expiry ok=%v err=%v", ok, err)
	}
	if s.Len() != 1 {
		t.Fatalf("expired undo must not touch the store")
	}
}

func TestTimerExpiryCallsOnExpire(t *testing.T) {
	expired := make(chan Record, 1)
	h := New(newStore(t), Options{
		Window:   10 * time.Millisecond,
		OnExpire: func(r Record) { expired <- r },
	})
	t.Cleanup(h.Close)

	h.Record(Action{Kind: KindDelete, Label: "gone"})

	select {
	case r := <-expired:
		if r.Label != "gone" {
			t.Fatalf("expired record = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("OnExpire was not called")
	}
	if _, ok := h.Pending(); ok {
		t.Fatalf("record still pending after expiry")
	}
}

type failingReverter struct{ err error }

func (f failingReverter) Swap(context.Context, []string, []model.Occurrence) error { return f.err }

func TestFailedUndoKeepsRecord(t *testing.T) {
	boom := errors.New("boom")
	h := New(failingReverter{err: boom}, Options{Window: time.Minute})
	t.Cleanup(h.Close)

	h.Record(Action{Kind: KindCreate, Affected: []model.Occurrence{occ("a")}})
	if _, ok, err := h.Undo(context.Background()); ok || !errors.Is(err, boom) {
		t.Fatalf("Undo ok=%v err=%v, want boom", ok, err)
	}
	if _, ok := h.Pending(); !ok {
		t.Fatalf("record should stay pending after a failed undo")
	}
}
