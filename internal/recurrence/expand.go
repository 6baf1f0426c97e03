package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"taskcal/internal/datekey"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

const (
	defaultMaxOccurrences = 10000
)

var (
	ErrInvalidRule   = errors.New("invalid recurrence rule")
	ErrNoOccurrences = errors.New("no valid recurring dates were generated")
)

// Config controls how recurrence expansion is performed.
type Config struct {
	// MaxOccurrences is a safety cap on the number of generated dates. If
	// zero, defaultMaxOccurrences is used.
	MaxOccurrences int
}

// Result wraps the expanded dates and whether the cap cut the series short.
type Result struct {
	Dates     []time.Time
	Truncated bool
}

// Expand materializes every date produced by rule, starting at anchor.
//
//   - daily:   every Interval days from the anchor.
//   - weekly:  the listed weekdays, walking the rest of the anchor's
//     Sunday-started week and then every Interval-th week after it.
//   - monthly: every Interval months on the anchor's day of month, clamped to
//     the last day of shorter months.
//   - yearly:  every Interval years on the anchor's month/day, Feb 29 clamped
//     to Feb 28 in common years.
//
// Each date keeps the anchor's time of day. The anchor is read in the UTC
// frame (see package datekey). An empty result is ErrNoOccurrences.
func Expand(anchor time.Time, rule model.RecurrenceRule, cfg Config) (Result, error) {
	var result Result

	rule, err := Normalize(rule)
	if err != nil {
		return result, err
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = defaultMaxOccurrences
	}

	opt, err := toROption(anchor.UTC().Truncate(time.Minute), rule)
	if err != nil {
		return result, err
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	next := r.Iterator()
	for {
		t, ok := next()
		if !ok {
			break
		}
		if len(result.Dates) == cfg.MaxOccurrences {
			result.Truncated = true
			break
		}
		result.Dates = append(result.Dates, t)
	}

	if result.Truncated {
		appLog.Warn("recurrence: expansion truncated at cap",
			"frequency", rule.Frequency,
			"interval", rule.Interval,
			"end_date", rule.EndDate,
			"cap", cfg.MaxOccurrences,
		)
	}
	if len(result.Dates) == 0 {
		return result, ErrNoOccurrences
	}
	return result, nil
}

// ExpandKeys is Expand for a calendar key + HH:MM anchor, returning keys.
func ExpandKeys(date, clock string, rule model.RecurrenceRule, cfg Config) ([]string, bool, error) {
	anchor, err := datekey.Combine(date, clock)
	if err != nil {
		return nil, false, err
	}
	res, err := Expand(anchor, rule, cfg)
	if err != nil {
		return nil, res.Truncated, err
	}
	keys := make([]string, 0, len(res.Dates))
	for _, d := range res.Dates {
		keys = append(keys, datekey.ToCalendarKey(d))
	}
	return keys, res.Truncated, nil
}

func toROption(anchor time.Time, rule model.RecurrenceRule) (rrule.ROption, error) {
	end, err := datekey.FromCalendarKey(rule.EndDate)
	if err != nil {
		return rrule.ROption{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	opt := rrule.ROption{
		Dtstart:  anchor,
		Interval: rule.Interval,
		// Inclusive of every time on the end date.
		Until: end.Add(24*time.Hour - time.Second),
	}

	switch rule.Frequency {
	case model.Daily:
		opt.Freq = rrule.DAILY
	case model.Weekly:
		opt.Freq = rrule.WEEKLY
		opt.Wkst = rrule.SU
		for _, d := range rule.WeekDays {
			opt.Byweekday = append(opt.Byweekday, toRRuleWeekday(time.Weekday(d)))
		}
	case model.Monthly:
		opt.Freq = rrule.MONTHLY
		if day := anchor.Day(); day > 28 {
			// The anchor day, or the month's last day when it is shorter.
			opt.Bymonthday = []int{day, -1}
			opt.Bysetpos = []int{1}
		}
	case model.Yearly:
		opt.Freq = rrule.YEARLY
		if anchor.Month() == time.February && anchor.Day() == 29 {
			opt.Bymonth = []int{2}
			opt.Bymonthday = []int{29, -1}
			opt.Bysetpos = []int{1}
		}
	default:
		return rrule.ROption{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, rule.Frequency)
	}
	return opt, nil
}

func toRRuleWeekday(d time.Weekday) rrule.Weekday {
	switch d {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}

// fromRRuleWeekday maps rrule's Monday=0 numbering back to Sunday=0.
func fromRRuleWeekday(w rrule.Weekday) int {
	return (w.Day() + 1) % 7
}
