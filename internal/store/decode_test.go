package store

import (
	"testing"

	"taskcal/internal/model"
)

func TestDecodeLegacyRecords(t *testing.T) {
	data := []byte(`[
		{"taskId":"1700000000000","title":"Solo","date":"2025-1-6","startTime":"09:00","endTime":"10:00",
		 "category":"School","priority":"Low","recurring":false,"recurringOptions":null,
		 "metadata":{"createdBy":"CurrentUser","createdAt":"2025-01-01T10:00:00.000Z","lastUpdated":"2025-01-01T10:00:00.000Z"}},
		{"taskId":"1700000000001-0","title":"Gym","date":"2025-01-07","startTime":"18:00","endTime":"19:00",
		 "category":"Personal","priority":"Medium","recurring":true,
		 "recurringOptions":{"frequency":"weekly","interval":1,"weekDays":[2,4],"endDate":"2025-02-01"},
		 "metadata":{"createdBy":"CurrentUser","recurringGroupId":"1700000000001"}},
		{"title":"no id","date":"2025-01-07","startTime":"18:00","endTime":"19:00"},
		{"taskId":"bad-date","title":"x","date":"soon","startTime":"18:00","endTime":"19:00"},
		{"taskId":"1700000000000","title":"dup","date":"2025-01-06","startTime":"09:00","endTime":"10:00"},
		"not an object"
	]`)

	got, err := decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("decoded %d records, want 2: %+v", len(got), got)
	}

	solo := got[0]
	if solo.ID != "1700000000000" || solo.GroupID != solo.ID || solo.Date != "2025-01-06" {
		t.Fatalf("solo = %+v", solo)
	}
	if solo.Category != model.CategorySchool || solo.Priority != model.PriorityLow || solo.Recurring {
		t.Fatalf("solo fields = %+v", solo)
	}
	if solo.Metadata.CreatedAt.IsZero() {
		t.Fatalf("createdAt not decoded")
	}

	gym := got[1]
	if gym.GroupID != "1700000000001" || !gym.InGroup("1700000000001") {
		t.Fatalf("gym group = %q", gym.GroupID)
	}
	if gym.RecurrenceRule == nil || gym.RecurrenceRule.Frequency != model.Weekly || len(gym.RecurrenceRule.WeekDays) != 2 {
		t.Fatalf("gym rule = %+v", gym.RecurrenceRule)
	}
}

func TestDecodeRecurringWithoutRuleBecomesStandalone(t *testing.T) {
	got, err := decode([]byte(`[{"id":"a","groupId":"g","title":"t","date":"2025-01-06","startTime":"09:00","endTime":"10:00","recurring":true}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Recurring || got[0].Category != model.CategoryWork || got[0].Priority != model.PriorityMedium {
		t.Fatalf("decoded = %+v", got)
	}
}
