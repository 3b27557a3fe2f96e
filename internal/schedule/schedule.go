// Package schedule computes when the daemon looks for a new monthly hiring
// thread.
package schedule

import (
	"time"

	"github.com/pkg/errors"
	"github.com/teambition/rrule-go"
)

// DefaultRRule matches the first weekday of every month in the afternoon
// (UTC), which is when the new "Who is hiring?" thread appears.
const DefaultRRule = "FREQ=MONTHLY;BYDAY=MO,TU,WE,TH,FR;BYSETPOS=1;BYHOUR=15;BYMINUTE=30"

// Schedule wraps an RFC 5545 recurrence rule in a timezone.
type Schedule struct {
	RRule    string
	Timezone string
	Start    time.Time

	initialized bool
	rule        *rrule.RRule
}

// New creates a Schedule for the given recurrence rule. An empty rule falls
// back to DefaultRRule, an empty timezone to UTC.
func New(rruleStr, timezone string) *Schedule {
	return &Schedule{RRule: rruleStr, Timezone: timezone}
}

// Init parses the recurrence rule. Called implicitly by NextRun and LastRun.
func (s *Schedule) Init() error {
	if s.initialized {
		return nil
	}

	loc := time.UTC
	if s.Timezone != "" {
		l, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return errors.Wrapf(err, "schedule has an invalid timezone %q", s.Timezone)
		}

		loc = l
	}

	if s.RRule == "" {
		s.RRule = DefaultRRule
	}

	option, err := rrule.StrToROptionInLocation(s.RRule, loc)
	if err != nil {
		return errors.Wrapf(err, "cannot parse recurrence rule %q", s.RRule)
	}

	if option.Dtstart.IsZero() {
		start := s.Start
		if start.IsZero() {
			start = time.Now()
		}

		// RRULE operates on whole seconds.
		option.Dtstart = start.In(loc).Truncate(time.Second)
	}

	rule, err := rrule.NewRRule(*option)
	if err != nil {
		return err
	}

	s.rule = rule
	s.initialized = true

	return nil
}

// NextRun returns the first occurrence strictly after t, or the zero time
// when the rule has ended.
func (s *Schedule) NextRun(t time.Time) (time.Time, error) {
	if err := s.Init(); err != nil {
		return time.Time{}, err
	}

	return s.rule.After(t, false), nil
}

// LastRun returns the latest occurrence at or before t, or the zero time when
// the rule starts later.
func (s *Schedule) LastRun(t time.Time) (time.Time, error) {
	if err := s.Init(); err != nil {
		return time.Time{}, err
	}

	return s.rule.Before(t, true), nil
}
