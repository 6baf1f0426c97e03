// Package store holds the in-memory occurrence set and mirrors it to a
// durable key-value slot after every mutation.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"taskcal/internal/datekey"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

const (
	DefaultKey      = "tasks"
	DefaultMaxBytes = 5 * 1024 * 1024
)

var (
	ErrNotFound             = errors.New("occurrence not found")
	ErrDuplicateID          = errors.New("duplicate occurrence id")
	ErrStorageLimitExceeded = errors.New("storage limit exceeded")
)

// StorageLimitError reports a write that was refused, either because the
// serialized set is larger than Limit or because the backend failed (Err).
type StorageLimitError struct {
	Size  int
	Limit int
	Err   error
}

func (e *StorageLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage write failed: %v", e.Err)
	}
	return fmt.Sprintf("storage limit exceeded: %d bytes > %d", e.Size, e.Limit)
}

func (e *StorageLimitError) Is(target error) bool { return target == ErrStorageLimitExceeded }

func (e *StorageLimitError) Unwrap() error { return e.Err }

// Options configures a Store. Zero values fall back to the defaults.
type Options struct {
	Key      string
	MaxBytes int
	Now      func() time.Time
}

// Store is the single source of truth for occurrences.
//
// Every mutation builds the next set, serializes it and writes it to storage
// before swapping it in, so a failed write leaves memory and storage as they
// were.
type Store struct {
	storage Storage
	key     string
	limit   int
	now     func() time.Time

	mu   sync.RWMutex
	occs []model.Occurrence
}

func New(storage Storage, opts Options) *Store {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		storage: storage,
		key:     opts.Key,
		limit:   opts.MaxBytes,
		now:     opts.Now,
	}
}

// Load replaces the in-memory set with the stored one. Missing, unreadable
// or corrupt data yields an empty set; the cause is logged.
func (s *Store) Load(ctx context.Context) {
	occs := s.read(ctx)

	s.mu.Lock()
	s.occs = occs
	s.mu.Unlock()

	appLog.Info("store: loaded occurrences", "key", s.key, "count", len(occs))
}

func (s *Store) read(ctx context.Context) []model.Occurrence {
	data, err := s.storage.Read(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			appLog.Info("store: no stored data, starting empty", "key", s.key)
		} else {
			appLog.Error("store: read failed, starting empty", err, "key", s.key)
		}
		return []model.Occurrence{}
	}
	occs, err := decode(data)
	if err != nil {
		appLog.Error("store: stored data is corrupt, starting empty", err, "key", s.key, "bytes", len(data))
		return []model.Occurrence{}
	}
	return occs
}

// Persist writes the current set to storage.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, s.occs)
}

func (s *Store) write(ctx context.Context, occs []model.Occurrence) error {
	if occs == nil {
		occs = []model.Occurrence{}
	}
	data, err := json.Marshal(occs)
	if err != nil {
		return fmt.Errorf("encode occurrences: %w", err)
	}
	if len(data) > s.limit {
		err := &StorageLimitError{Size: len(data), Limit: s.limit}
		appLog.Warn("store: refusing oversized write", "key", s.key, "bytes", len(data), "limit", s.limit)
		return err
	}
	if err := s.storage.Write(ctx, s.key, data); err != nil {
		appLog.Error("store: write failed", err, "key", s.key)
		return &StorageLimitError{Size: len(data), Limit: s.limit, Err: err}
	}
	return nil
}

// commit persists next and, on success, makes it the current set. Callers
// hold s.mu.
func (s *Store) commit(ctx context.Context, next []model.Occurrence) error {
	if err := s.write(ctx, next); err != nil {
		return err
	}
	s.occs = next
	return nil
}

func (s *Store) indexOf(id string) int {
	for i, o := range s.occs {
		if o.ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(occs []model.Occurrence) []model.Occurrence {
	out := make([]model.Occurrence, 0, len(occs))
	for _, o := range occs {
		out = append(out, o.Clone())
	}
	return out
}

// All returns a copy of every occurrence in insertion order.
func (s *Store) All() []model.Occurrence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.occs)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.occs)
}

func (s *Store) Get(id string) (model.Occurrence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.occs[i].Clone(), true
	}
	return model.Occurrence{}, false
}

// Group returns the members of a recurrence series ordered by date and time.
func (s *Store) Group(groupID string) []model.Occurrence {
	return s.filter(func(o model.Occurrence) bool { return o.InGroup(groupID) })
}

// Day returns the occurrences on a calendar key ordered by start time.
func (s *Store) Day(key string) []model.Occurrence {
	return s.filter(func(o model.Occurrence) bool { return o.Date == key })
}

// Range returns the occurrences with from <= date <= to. Keys compare
// lexically in date order.
func (s *Store) Range(from, to string) []model.Occurrence {
	return s.filter(func(o model.Occurrence) bool { return o.Date >= from && o.Date <= to })
}

func (s *Store) filter(keep func(model.Occurrence) bool) []model.Occurrence {
	s.mu.RLock()
	var out []model.Occurrence
	for _, o := range s.occs {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	s.mu.RUnlock()
	SortChronological(out)
	return out
}

// SortChronological orders occurrences by date, start time, then id.
func SortChronological(occs []model.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		a, b := occs[i], occs[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		am, _ := datekey.ParseClock(a.StartTime)
		bm, _ := datekey.ParseClock(b.StartTime)
		if am != bm {
			return am < bm
		}
		return a.ID < b.ID
	})
}

// checkIDs rejects empty ids and ids already used by existing or by an
// earlier element of add.
func checkIDs(existing, add []model.Occurrence) error {
	seen := make(map[string]bool, len(existing)+len(add))
	for _, o := range existing {
		seen[o.ID] = true
	}
	for _, o := range add {
		if o.ID == "" {
			return fmt.Errorf("%w: empty id", ErrDuplicateID)
		}
		if seen[o.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, o.ID)
		}
		seen[o.ID] = true
	}
	return nil
}

// AddMany appends occs. Nothing is added when any id collides.
func (s *Store) AddMany(ctx context.Context, occs []model.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkIDs(s.occs, occs); err != nil {
		return err
	}
	next := make([]model.Occurrence, 0, len(s.occs)+len(occs))
	next = append(next, s.occs...)
	next = append(next, cloneAll(occs)...)
	return s.commit(ctx, next)
}

// UpdateSingle applies patch to the occurrence id and refreshes its
// lastUpdated timestamp. It returns the occurrence before and after.
func (s *Store) UpdateSingle(ctx context.Context, id string, patch model.Patch) (before, after model.Occurrence, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		appLog.Warn("store: update of unknown occurrence", "id", id)
		return before, after, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	before = s.occs[i].Clone()
	after = patch.Apply(before)
	after.Metadata.LastUpdated = s.now()

	next := append([]model.Occurrence(nil), s.occs...)
	next[i] = after
	if err := s.commit(ctx, next); err != nil {
		return model.Occurrence{}, model.Occurrence{}, err
	}
	return before, after.Clone(), nil
}

// UpdateGroup removes every member of groupID and inserts replacement in one
// step. It returns the removed members.
func (s *Store) UpdateGroup(ctx context.Context, groupID string, replacement []model.Occurrence) ([]model.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept, removed []model.Occurrence
	for _, o := range s.occs {
		if o.InGroup(groupID) {
			removed = append(removed, o)
		} else {
			kept = append(kept, o)
		}
	}
	if len(removed) == 0 {
		appLog.Warn("store: update of unknown group", "group_id", groupID)
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	if err := checkIDs(kept, replacement); err != nil {
		return nil, err
	}
	next := append(kept, cloneAll(replacement)...)
	if err := s.commit(ctx, next); err != nil {
		return nil, err
	}
	return cloneAll(removed), nil
}

// RemoveSingle deletes one occurrence by id. Other members of its group are
// left untouched.
func (s *Store) RemoveSingle(ctx context.Context, id string) (model.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		appLog.Warn("store: remove of unknown occurrence", "id", id)
		return model.Occurrence{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	removed := s.occs[i].Clone()

	next := make([]model.Occurrence, 0, len(s.occs)-1)
	next = append(next, s.occs[:i]...)
	next = append(next, s.occs[i+1:]...)
	if err := s.commit(ctx, next); err != nil {
		return model.Occurrence{}, err
	}
	return removed, nil
}

// RemoveGroup deletes every member of a recurrence series.
func (s *Store) RemoveGroup(ctx context.Context, groupID string) ([]model.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept, removed []model.Occurrence
	for _, o := range s.occs {
		if o.InGroup(groupID) {
			removed = append(removed, o)
		} else {
			kept = append(kept, o)
		}
	}
	if len(removed) == 0 {
		appLog.Warn("store: remove of unknown group", "group_id", groupID)
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	if kept == nil {
		kept = []model.Occurrence{}
	}
	if err := s.commit(ctx, kept); err != nil {
		return nil, err
	}
	return cloneAll(removed), nil
}

// Swap removes the occurrences named by removeIDs and inserts insert in one
// step. Ids that are already gone are ignored.
func (s *Store) Swap(ctx context.Context, removeIDs []string, insert []model.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(removeIDs))
	for _, id := range removeIDs {
		drop[id] = true
	}
	kept := make([]model.Occurrence, 0, len(s.occs))
	for _, o := range s.occs {
		if !drop[o.ID] {
			kept = append(kept, o)
		}
	}
	if err := checkIDs(kept, insert); err != nil {
		return err
	}
	return s.commit(ctx, append(kept, cloneAll(insert)...))
}
