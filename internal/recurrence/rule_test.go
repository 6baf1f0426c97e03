package recurrence

import (
	"errors"
	"reflect"
	"testing"

	"taskcal/internal/model"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    model.RecurrenceRule
		wantErr bool
	}{
		{"daily", model.RecurrenceRule{Frequency: model.Daily, Interval: 1, EndDate: "2025-01-31"}, false},
		{"upper case frequency", model.RecurrenceRule{Frequency: "Monthly", Interval: 1, EndDate: "2025-01-31"}, false},
		{"missing frequency", model.RecurrenceRule{Interval: 1, EndDate: "2025-01-31"}, true},
		{"unknown frequency", model.RecurrenceRule{Frequency: "hourly", Interval: 1, EndDate: "2025-01-31"}, true},
		{"zero interval", model.RecurrenceRule{Frequency: model.Daily, EndDate: "2025-01-31"}, true},
		{"weekly without days", model.RecurrenceRule{Frequency: model.Weekly, Interval: 1, EndDate: "2025-01-31"}, true},
		{"weekday out of range", model.RecurrenceRule{Frequency: model.Weekly, Interval: 1, WeekDays: []int{7}, EndDate: "2025-01-31"}, true},
		{"missing end date", model.RecurrenceRule{Frequency: model.Daily, Interval: 1}, true},
		{"bad end date", model.RecurrenceRule{Frequency: model.Daily, Interval: 1, EndDate: "31/01/2025"}, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Validate(test.rule)
			if test.wantErr {
				if !errors.Is(err, ErrInvalidRule) {
					t.Fatalf("Validate err = %v, want ErrInvalidRule", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate unexpected error: %v", err)
			}
		})
	}
}

func TestNormalizeWeekDays(t *testing.T) {
	got, err := Normalize(model.RecurrenceRule{
		Frequency: model.Weekly,
		Interval:  1,
		WeekDays:  []int{5, 1, 5, 3},
		EndDate:   "2025-1-9",
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !reflect.DeepEqual(got.WeekDays, []int{1, 3, 5}) {
		t.Fatalf("WeekDays = %v, want [1 3 5]", got.WeekDays)
	}
	if got.EndDate != "2025-01-09" {
		t.Fatalf("EndDate = %s, want 2025-01-09", got.EndDate)
	}

	daily, err := Normalize(model.RecurrenceRule{Frequency: model.Daily, Interval: 1, WeekDays: []int{2}, EndDate: "2025-01-09"})
	if err != nil || daily.WeekDays != nil {
		t.Fatalf("daily rule should drop weekdays, got %v (%v)", daily.WeekDays, err)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		rule model.RecurrenceRule
		want string
	}{
		{
			model.RecurrenceRule{Frequency: model.Daily, Interval: 1, EndDate: "2025-01-05"},
			"This task will repeat every day until January 5, 2025",
		},
		{
			model.RecurrenceRule{Frequency: model.Weekly, Interval: 2, WeekDays: []int{5, 1}, EndDate: "2025-03-03"},
			"This task will repeat every 2 weeks on Monday, Friday until March 3, 2025",
		},
		{
			model.RecurrenceRule{Frequency: model.Yearly, Interval: 3, EndDate: "2030-12-31"},
			"This task will repeat every 3 years until December 31, 2030",
		},
		{
			model.RecurrenceRule{Frequency: model.Daily},
			"",
		},
	}
	for _, test := range tests {
		if got := Describe(test.rule); got != test.want {
			t.Errorf("Describe(%+v) = %q, want %q", test.rule, got, test.want)
		}
	}
}

func TestRuleStringRoundTrip(t *testing.T) {
	rules := []model.RecurrenceRule{
		{Frequency: model.Daily, Interval: 3, EndDate: "2025-02-01"},
		{Frequency: model.Weekly, Interval: 2, WeekDays: []int{0, 1, 5}, EndDate: "2025-03-03"},
		{Frequency: model.Monthly, Interval: 1, EndDate: "2026-01-31"},
		{Frequency: model.Yearly, Interval: 1, EndDate: "2030-02-28"},
	}
	for _, rule := range rules {
		s, err := RuleString(rule)
		if err != nil {
			t.Fatalf("RuleString(%+v): %v", rule, err)
		}
		back, err := ParseRuleString(s)
		if err != nil {
			t.Fatalf("ParseRuleString(%q): %v", s, err)
		}
		if !reflect.DeepEqual(back, rule) {
			t.Fatalf("round trip %q = %+v, want %+v", s, back, rule)
		}
	}
}

func TestRuleStringWeekly(t *testing.T) {
	s, err := RuleString(model.RecurrenceRule{Frequency: model.Weekly, Interval: 2, WeekDays: []int{5, 1}, EndDate: "2025-03-03"})
	if err != nil {
		t.Fatalf("RuleString: %v", err)
	}
	want := "FREQ=WEEKLY;INTERVAL=2;WKST=SU;UNTIL=20250303T235959Z;BYDAY=MO,FR"
	if s != want {
		t.Fatalf("RuleString = %q, want %q", s, want)
	}
}

func TestParseRuleStringRejectsUnsupported(t *testing.T) {
	for _, s := range []string{
		"FREQ=DAILY;COUNT=5",
		"FREQ=HOURLY;UNTIL=20250101T000000Z",
		"FREQ=MONTHLY;BYMONTHDAY=1,15;UNTIL=20250101T000000Z",
		"FREQ=DAILY",
		"garbage",
	} {
		if _, err := ParseRuleString(s); !errors.Is(err, ErrInvalidRule) {
			t.Errorf("ParseRuleString(%q) err = %v, want ErrInvalidRule", s, err)
		}
	}
}
