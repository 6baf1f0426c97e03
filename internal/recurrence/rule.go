package recurrence

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"taskcal/internal/datekey"
	"taskcal/internal/model"
)

// Normalize validates rule and returns a cleaned copy: lower-cased frequency,
// canonical end date, de-duplicated and sorted weekdays.
func Normalize(rule model.RecurrenceRule) (model.RecurrenceRule, error) {
	out := *rule.Clone()
	out.Frequency = model.Frequency(strings.ToLower(strings.TrimSpace(string(rule.Frequency))))

	switch out.Frequency {
	case model.Daily, model.Monthly, model.Yearly:
		out.WeekDays = nil
	case model.Weekly:
		days, err := normalizeWeekDays(out.WeekDays)
		if err != nil {
			return out, err
		}
		out.WeekDays = days
	case "":
		return out, fmt.Errorf("%w: frequency is required", ErrInvalidRule)
	default:
		return out, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, rule.Frequency)
	}

	if out.Interval < 1 {
		return out, fmt.Errorf("%w: interval must be at least 1", ErrInvalidRule)
	}

	if strings.TrimSpace(out.EndDate) == "" {
		return out, fmt.Errorf("%w: end date is required", ErrInvalidRule)
	}
	end, err := datekey.NormalizeKey(out.EndDate)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	out.EndDate = end
	return out, nil
}

// Validate reports whether rule is complete and well formed.
func Validate(rule model.RecurrenceRule) error {
	_, err := Normalize(rule)
	return err
}

func normalizeWeekDays(days []int) ([]int, error) {
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: weekly rule needs at least one weekday", ErrInvalidRule)
	}
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("%w: weekday %d out of range", ErrInvalidRule, d)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	return out, nil
}

var unitNames = map[model.Frequency]string{
	model.Daily:   "day",
	model.Weekly:  "week",
	model.Monthly: "month",
	model.Yearly:  "year",
}

// Describe renders the preview sentence shown next to the recurrence form,
// e.g. "This task will repeat every 2 weeks on Monday, Friday until March 3, 2025".
func Describe(rule model.RecurrenceRule) string {
	rule, err := Normalize(rule)
	if err != nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("This task will repeat every ")
	unit := unitNames[rule.Frequency]
	if rule.Interval > 1 {
		fmt.Fprintf(&b, "%d %ss", rule.Interval, unit)
	} else {
		b.WriteString(unit)
	}

	if rule.Frequency == model.Weekly {
		names := make([]string, 0, len(rule.WeekDays))
		for _, d := range rule.WeekDays {
			names = append(names, time.Weekday(d).String())
		}
		b.WriteString(" on ")
		b.WriteString(strings.Join(names, ", "))
	}

	if end, err := datekey.FromCalendarKey(rule.EndDate); err == nil {
		b.WriteString(" until ")
		b.WriteString(end.Format("January 2, 2006"))
	}
	return b.String()
}

// RuleString renders rule as an RFC 5545 RRULE value, e.g.
// "FREQ=WEEKLY;INTERVAL=2;WKST=SU;UNTIL=20250303T235959Z;BYDAY=MO,FR".
func RuleString(rule model.RecurrenceRule) (string, error) {
	rule, err := Normalize(rule)
	if err != nil {
		return "", err
	}
	// The anchor is irrelevant to the textual form; clamping options are
	// derived from it at expansion time and are not part of the rule.
	opt, err := toROption(time.Time{}, rule)
	if err != nil {
		return "", err
	}
	opt.Bymonth, opt.Bymonthday, opt.Bysetpos = nil, nil, nil
	return opt.RRuleString(), nil
}

// ParseRuleString is the inverse of RuleString. Rules using parts this
// calendar cannot represent (COUNT, BYMONTH, BYHOUR, ...) are rejected.
func ParseRuleString(s string) (model.RecurrenceRule, error) {
	var rule model.RecurrenceRule

	opt, err := rrule.StrToROption(strings.TrimSpace(s))
	if err != nil {
		return rule, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if opt.Count != 0 || len(opt.Bysetpos) > 0 || len(opt.Bymonth) > 0 ||
		len(opt.Bymonthday) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 ||
		len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 ||
		len(opt.Byeaster) > 0 {
		return rule, fmt.Errorf("%w: unsupported RRULE parts in %q", ErrInvalidRule, s)
	}
	if opt.Until.IsZero() {
		return rule, fmt.Errorf("%w: UNTIL is required", ErrInvalidRule)
	}

	switch opt.Freq {
	case rrule.DAILY:
		rule.Frequency = model.Daily
	case rrule.WEEKLY:
		rule.Frequency = model.Weekly
	case rrule.MONTHLY:
		rule.Frequency = model.Monthly
	case rrule.YEARLY:
		rule.Frequency = model.Yearly
	default:
		return rule, fmt.Errorf("%w: unsupported frequency %v", ErrInvalidRule, opt.Freq)
	}

	rule.Interval = opt.Interval
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	for _, w := range opt.Byweekday {
		rule.WeekDays = append(rule.WeekDays, fromRRuleWeekday(w))
	}
	rule.EndDate = datekey.ToCalendarKey(opt.Until)

	return Normalize(rule)
}
