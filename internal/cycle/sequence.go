/*
Copyright 2022 ICS-FORTH.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cycle

import (
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Sequence is a lazy, potentially infinite ordered iterator of cycle
// points, defined by (recurrence, optional start, optional end, optional
// exclusions). Sequences are immutable once built.
//
// Two recurrence forms are supported: a plain periodic ISO-8601 recurrence
// (Period != zero Duration), and a cron-style recurrence (Cron != nil).
type Sequence struct {
	Period     Duration
	Cron       cron.Schedule
	Start      *Point
	End        *Point
	Exclusions []Point
}

// NewPeriodicSequence builds a sequence advancing by a fixed Duration from
// start (or, if start is nil, applicable from the earliest representable
// point) until end (or unbounded if nil).
func NewPeriodicSequence(period Duration, start, end *Point, exclusions []Point) (*Sequence, error) {
	if period.IsZero() {
		return nil, errors.New("sequence period must be non-zero")
	}
	return &Sequence{Period: period, Start: start, End: end, Exclusions: exclusions}, nil
}

// NewCronSequence builds a sequence from a standard 5-field cron
// expression. Cron sequences have no closed-form PreviousBefore, so
// Sequence.PreviousBefore returns an error for them.
func NewCronSequence(expr string, start, end *Point, exclusions []Point) (*Sequence, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, newSyntaxError(expr, err)
	}
	return &Sequence{Cron: sched, Start: start, End: end, Exclusions: exclusions}, nil
}

func (s *Sequence) isExcluded(p Point) bool {
	for _, e := range s.Exclusions {
		if e.Equal(p) {
			return true
		}
	}
	return false
}

func (s *Sequence) withinBounds(p Point) bool {
	if s.Start != nil && p.Before(*s.Start) {
		return false
	}
	if s.End != nil && p.After(*s.End) {
		return false
	}
	return true
}

// FirstOnOrAfter returns the first point in the sequence that is >= from,
// honoring start/end/exclusions. ok is false if the sequence contributes
// no such point.
func (s *Sequence) FirstOnOrAfter(from Point) (p Point, ok bool) {
	candidate := from
	if s.Start != nil && s.Start.After(candidate) {
		candidate = *s.Start
	}

	for {
		if s.End != nil && candidate.After(*s.End) {
			return Point{}, false
		}

		next, found := s.alignOnOrAfter(candidate)
		if !found {
			return Point{}, false
		}

		if s.End != nil && next.After(*s.End) {
			return Point{}, false
		}

		if s.isExcluded(next) {
			candidate = s.step(next)
			continue
		}

		return next, true
	}
}

// alignOnOrAfter finds the first point of the underlying recurrence (start
// bound aside) that is on or after candidate, without checking exclusions.
func (s *Sequence) alignOnOrAfter(candidate Point) (Point, bool) {
	if s.Cron != nil {
		return s.alignCron(candidate)
	}

	if s.Start == nil {
		// Unbounded recurrences with no anchor cannot be aligned; treat
		// candidate itself as the anchor.
		return candidate, true
	}

	p := *s.Start
	for p.Before(candidate) {
		p = p.Add(s.Period)
	}
	return p, true
}

func (s *Sequence) alignCron(candidate Point) (Point, bool) {
	if candidate.Kind != KindDatetime {
		return Point{}, false
	}
	t, ok := pointToTime(candidate)
	if !ok {
		return Point{}, false
	}
	// cron.Next is exclusive of t itself; step back a nanosecond so an exact
	// match on candidate is still returned.
	next := s.Cron.Next(t.Add(-1))
	return timeToPoint(next, candidate.Calendar, candidate.TZOffsetMinutes), true
}

// NextAfter returns the first point strictly after p.
func (s *Sequence) NextAfter(p Point) (Point, bool) {
	return s.FirstOnOrAfter(s.step(p))
}

// step returns the smallest point strictly greater than p for this
// recurrence's granularity, used to seed searches that must exclude p
// itself.
func (s *Sequence) step(p Point) Point {
	if p.Kind == KindInteger {
		return NewIntegerPoint(p.Int + 1)
	}
	if s.Cron != nil {
		return p.Add(Duration{Kind: KindDatetime, Seconds: 1})
	}
	return p.Add(Duration{Kind: KindDatetime, Seconds: 1})
}

// PreviousBefore returns the last point strictly before p.
func (s *Sequence) PreviousBefore(p Point) (Point, bool, error) {
	if s.Cron != nil {
		return Point{}, false, errors.New("cron-backed sequences do not support PreviousBefore")
	}
	if s.Start == nil {
		return Point{}, false, errors.New("unanchored sequences do not support PreviousBefore")
	}
	if !p.After(*s.Start) {
		return Point{}, false, nil
	}

	candidate := *s.Start
	var prev Point
	found := false
	for candidate.Before(p) {
		if s.withinBounds(candidate) && !s.isExcluded(candidate) {
			prev = candidate
			found = true
		}
		candidate = candidate.Add(s.Period)
	}
	return prev, found, nil
}

// Contains reports whether p is a member of this sequence.
func (s *Sequence) Contains(p Point) bool {
	if !s.withinBounds(p) || s.isExcluded(p) {
		return false
	}
	first, ok := s.alignOnOrAfter(p)
	return ok && first.Equal(p)
}
