package datekey

import (
	"errors"
	"testing"
	"time"
)

func TestToCalendarKeyUsesUTCFrame(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	// 2025-03-01 01:30 in Seoul is still 2025-02-28 in UTC.
	ts := time.Date(2025, 3, 1, 1, 30, 0, 0, seoul)
	if got := ToCalendarKey(ts); got != "2025-02-28" {
		t.Fatalf("ToCalendarKey = %s, want 2025-02-28", got)
	}
	if got := ToCalendarKey(Civil(ts)); got != "2025-03-01" {
		t.Fatalf("ToCalendarKey(Civil) = %s, want 2025-03-01", got)
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2025-01-05", "2025-01-05", false},
		{"2025-1-5", "2025-01-05", false},
		{" 2024-02-29 ", "2024-02-29", false},
		{"2025-01-05T23:30:00+09:00", "2025-01-05", false},
		{"2025-01-05T23:30:00Z", "2025-01-05", false},
		{"2025-2-30", "", true},
		{"2025-13-01", "", true},
		{"05/01/2025", "", true},
		{"", "", true},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			got, err := NormalizeKey(test.in)
			if test.wantErr {
				if !errors.Is(err, ErrInvalidDate) {
					t.Fatalf("NormalizeKey(%q) err = %v, want ErrInvalidDate", test.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeKey(%q) unexpected error: %v", test.in, err)
			}
			if got != test.want {
				t.Fatalf("NormalizeKey(%q) = %s, want %s", test.in, got, test.want)
			}
			again, err := NormalizeKey(got)
			if err != nil || again != got {
				t.Fatalf("NormalizeKey not idempotent: %q -> %q (%v)", got, again, err)
			}
		})
	}
}

func TestFromCalendarKeyRoundTrip(t *testing.T) {
	day, err := FromCalendarKey("2025-06-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if day.Location() != time.UTC || day.Hour() != 0 {
		t.Fatalf("expected UTC midnight, got %v", day)
	}
	if ToCalendarKey(day) != "2025-06-15" {
		t.Fatalf("round trip mismatch: %s", ToCalendarKey(day))
	}
	if _, err := FromCalendarKey("2025-06-15T10:00"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestCombineAndAddDays(t *testing.T) {
	ts, err := Combine("2025-01-31", "9:05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 1, 31, 9, 5, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("Combine = %v, want %v", ts, want)
	}

	next, err := AddDays("2025-01-31", 1)
	if err != nil || next != "2025-02-01" {
		t.Fatalf("AddDays = %s (%v), want 2025-02-01", next, err)
	}

	wd, err := Weekday("2025-01-01")
	if err != nil || wd != time.Wednesday {
		t.Fatalf("Weekday = %v (%v), want Wednesday", wd, err)
	}
}

func TestClockHelpers(t *testing.T) {
	tests := []struct {
		in      string
		mins    int
		norm    string
		twelve  string
		wantErr bool
	}{
		{"00:00", 0, "00:00", "12:00 AM", false},
		{"9:05", 545, "09:05", "9:05 AM", false},
		{"12:30", 750, "12:30", "12:30 PM", false},
		{"23:59", 1439, "23:59", "11:59 PM", false},
		{"24:00", 0, "", "", true},
		{"12:60", 0, "", "", true},
		{"noon", 0, "", "", true},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			mins, err := ParseClock(test.in)
			if test.wantErr {
				if !errors.Is(err, ErrInvalidTime) {
					t.Fatalf("ParseClock(%q) err = %v, want ErrInvalidTime", test.in, err)
				}
				return
			}
			if err != nil || mins != test.mins {
				t.Fatalf("ParseClock(%q) = %d (%v), want %d", test.in, mins, err, test.mins)
			}
			if norm, _ := NormalizeClock(test.in); norm != test.norm {
				t.Fatalf("NormalizeClock(%q) = %s, want %s", test.in, norm, test.norm)
			}
			if twelve, _ := Format12Hour(test.in); twelve != test.twelve {
				t.Fatalf("Format12Hour(%q) = %s, want %s", test.in, twelve, test.twelve)
			}
		})
	}

	if got := FormatClock(1500); got != "01:00" {
		t.Fatalf("FormatClock(1500) = %s, want 01:00", got)
	}
}
