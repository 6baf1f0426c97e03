package overlap

import (
	"errors"
	"reflect"
	"testing"

	"taskcal/internal/datekey"
	"taskcal/internal/model"
)

func occ(id, date, start, end string) model.Occurrence {
	return model.Occurrence{ID: id, GroupID: id, Title: id, Date: date, StartTime: start, EndTime: end}
}

func TestHasConflict(t *testing.T) {
	existing := []model.Occurrence{
		occ("standup", "2025-01-06", "09:00", "10:00"),
		occ("late", "2025-01-06", "23:00", "01:00"),
		occ("tomorrow", "2025-01-07", "09:00", "10:00"),
	}

	tests := []struct {
		name      string
		date      string
		start     string
		end       string
		excludeID string
		want      bool
	}{
		{"partial overlap", "2025-01-06", "09:30", "10:30", "", true},
		{"touching end", "2025-01-06", "10:00", "11:00", "", false},
		{"touching start", "2025-01-06", "08:00", "09:00", "", false},
		{"identical range", "2025-01-06", "09:00", "10:00", "", true},
		{"contained", "2025-01-06", "09:15", "09:45", "", true},
		{"containing", "2025-01-06", "08:00", "12:00", "", true},
		{"excluded self", "2025-01-06", "09:00", "10:00", "standup", false},
		{"different date", "2025-01-08", "09:00", "10:00", "", false},
		{"against midnight wrap", "2025-01-06", "23:30", "23:45", "", true},
		{"candidate wraps midnight", "2025-01-06", "22:00", "00:30", "", true},
		{"before late event", "2025-01-06", "21:00", "23:00", "", false},
		{"early morning not checked across days", "2025-01-07", "00:00", "00:30", "", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := HasConflict(existing, test.date, test.start, test.end, test.excludeID)
			if err != nil {
				t.Fatalf("HasConflict returned error: %v", err)
			}
			if got != test.want {
				t.Fatalf("HasConflict(%s %s-%s) = %v, want %v", test.date, test.start, test.end, got, test.want)
			}
		})
	}
}

func TestHasConflictInvalidTime(t *testing.T) {
	_, err := HasConflict(nil, "2025-01-06", "9am", "10:00", "")
	if !errors.Is(err, datekey.ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime, got %v", err)
	}
}

func TestIndexConflictsSharedRangesAndExclusion(t *testing.T) {
	ix := NewIndex([]model.Occurrence{
		occ("b", "2025-02-01", "13:00", "14:00"),
		occ("a", "2025-02-01", "13:00", "14:00"),
		occ("c", "2025-02-01", "12:00", "13:30"),
		occ("d", "2025-02-01", "15:00", "16:00"),
		occ("bad", "2025-02-01", "", "16:00"),
	})

	got, err := ix.Conflicts("2025-02-01", "13:15", "15:30")
	if err != nil {
		t.Fatalf("Conflicts returned error: %v", err)
	}
	if ids := model.IDs(got); !reflect.DeepEqual(ids, []string{"c", "a", "b", "d"}) {
		t.Fatalf("Conflicts ids = %v, want [c a b d]", ids)
	}

	got, err = ix.Conflicts("2025-02-01", "13:15", "15:30", "a", "d")
	if err != nil {
		t.Fatalf("Conflicts returned error: %v", err)
	}
	if ids := model.IDs(got); !reflect.DeepEqual(ids, []string{"c", "b"}) {
		t.Fatalf("Conflicts with exclusion = %v, want [c b]", ids)
	}

	ok, err := ix.HasConflict("2025-02-01", "14:00", "15:00")
	if err != nil || ok {
		t.Fatalf("gap between events reported as conflict (%v)", err)
	}
}

func TestSpanOf(t *testing.T) {
	span, err := SpanOf("22:00", "02:00")
	if err != nil {
		t.Fatalf("SpanOf: %v", err)
	}
	if span != (Span{Start: 22 * 60, End: 26 * 60}) {
		t.Fatalf("SpanOf = %+v", span)
	}
	same, _ := SpanOf("10:00", "10:00")
	if same.End-same.Start != datekey.MinutesPerDay {
		t.Fatalf("equal clocks should span a full day, got %+v", same)
	}
}
