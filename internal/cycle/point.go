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

// Package cycle implements the cycling engine: cycle points, durations,
// calendars and sequences. Sequences may be driven by a periodic ISO-8601
// recurrence or a cron expression.
package cycle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind distinguishes the two cycle point flavors.
type Kind int

const (
	KindInteger Kind = iota
	KindDatetime
)

// Point is an opaque, totally-ordered cycle point: either an unbounded
// signed integer, or an ISO-8601 datetime under one calendar.
type Point struct {
	Kind     Kind
	Calendar Calendar

	// Integer cycling.
	Int int64

	// Datetime cycling. Stored as explicit fields (not time.Time) because
	// the 360day/365day/366day calendars have no faithful representation
	// in Go's proleptic-Gregorian time.Time.
	Year, Month, Day      int64
	Hour, Minute, Second  int64
	TZOffsetMinutes       int
}

// NewIntegerPoint builds an integer cycle point.
func NewIntegerPoint(n int64) Point {
	return Point{Kind: KindInteger, Int: n}
}

// NewDatetimePoint builds a datetime cycle point under the given calendar.
func NewDatetimePoint(cal Calendar, year, month, day, hour, minute, second int64, tzOffsetMinutes int) Point {
	return Point{
		Kind: KindDatetime, Calendar: cal,
		Year: year, Month: month, Day: day,
		Hour: hour, Minute: minute, Second: second,
		TZOffsetMinutes: tzOffsetMinutes,
	}
}

// ParsePoint parses either a bare (possibly signed) integer, or a basic
// ISO-8601 date[-time] string ("20200101T0000Z", "20200101T00", "2020-01-01").
func ParsePoint(cal Calendar, s string) (Point, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Point{}, newSyntaxError(s, errors.New("empty cycle point"))
	}

	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return NewIntegerPoint(n), nil
	}

	return parseISODatetime(cal, trimmed)
}

func parseISODatetime(cal Calendar, s string) (Point, error) {
	tzOffset := 0
	body := s

	switch {
	case strings.HasSuffix(body, "Z"):
		body = body[:len(body)-1]
	case len(body) >= 5 && (body[len(body)-5] == '+' || body[len(body)-5] == '-'):
		sign := int(1)
		if body[len(body)-5] == '-' {
			sign = -1
		}
		hh, err1 := strconv.Atoi(body[len(body)-4 : len(body)-2])
		mm, err2 := strconv.Atoi(body[len(body)-2:])
		if err1 == nil && err2 == nil {
			tzOffset = sign * (hh*60 + mm)
			body = body[:len(body)-5]
		}
	}

	body = strings.ReplaceAll(body, "-", "")

	var datePart, timePart string
	if idx := strings.IndexByte(body, 'T'); idx >= 0 {
		datePart, timePart = body[:idx], body[idx+1:]
	} else {
		datePart = body
	}
	timePart = strings.ReplaceAll(timePart, ":", "")

	if len(datePart) < 8 {
		return Point{}, newSyntaxError(s, errors.Errorf("date part %q too short", datePart))
	}

	year, err := strconv.ParseInt(datePart[0:len(datePart)-4], 10, 64)
	if err != nil {
		return Point{}, newSyntaxError(s, err)
	}
	month, err := strconv.ParseInt(datePart[len(datePart)-4:len(datePart)-2], 10, 64)
	if err != nil {
		return Point{}, newSyntaxError(s, err)
	}
	day, err := strconv.ParseInt(datePart[len(datePart)-2:], 10, 64)
	if err != nil {
		return Point{}, newSyntaxError(s, err)
	}

	var hour, minute, second int64
	switch len(timePart) {
	case 0:
	case 2:
		hour, _ = strconv.ParseInt(timePart, 10, 64)
	case 4:
		hour, _ = strconv.ParseInt(timePart[0:2], 10, 64)
		minute, _ = strconv.ParseInt(timePart[2:4], 10, 64)
	case 6:
		hour, _ = strconv.ParseInt(timePart[0:2], 10, 64)
		minute, _ = strconv.ParseInt(timePart[2:4], 10, 64)
		second, _ = strconv.ParseInt(timePart[4:6], 10, 64)
	default:
		return Point{}, newSyntaxError(s, errors.Errorf("malformed time part %q", timePart))
	}

	return NewDatetimePoint(cal, year, month, day, hour, minute, second, tzOffset), nil
}

// String renders the canonical CCYYMMDDThhmmZ form used for ids and logs;
// seconds appear only when non-zero.
func (p Point) String() string {
	if p.Kind == KindInteger {
		return strconv.FormatInt(p.Int, 10)
	}
	if p.Second != 0 {
		return fmt.Sprintf("%sT%02d%02d%02dZ", p.normalizedYMD(), p.Hour, p.Minute, p.Second)
	}
	return fmt.Sprintf("%sT%02d%02dZ", p.normalizedYMD(), p.Hour, p.Minute)
}

func (p Point) normalizedYMD() string {
	return fmt.Sprintf("%04d%02d%02d", p.Year, p.Month, p.Day)
}

// Compare returns -1, 0, or 1. Comparing points of different kind or
// calendar panics: a workflow carries one calendar for its lifetime, so
// mixing them is a caller bug, not a runtime condition.
func (p Point) Compare(o Point) int {
	if p.Kind != o.Kind {
		panic("cycle: cannot compare integer and datetime points")
	}
	if p.Kind == KindInteger {
		switch {
		case p.Int < o.Int:
			return -1
		case p.Int > o.Int:
			return 1
		default:
			return 0
		}
	}

	if p.Calendar != o.Calendar {
		panic("cycle: cannot compare points from different calendars")
	}

	pa := [6]int64{p.Year, p.Month, p.Day, p.Hour, p.Minute, p.Second}
	pb := [6]int64{o.Year, o.Month, o.Day, o.Hour, o.Minute, o.Second}
	for i := range pa {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (p Point) Before(o Point) bool { return p.Compare(o) < 0 }
func (p Point) After(o Point) bool  { return p.Compare(o) > 0 }
func (p Point) Equal(o Point) bool  { return p.Compare(o) == 0 }

// Add returns p shifted by d. Arithmetic routes through the calendar, so
// subtracting P1D from 20130301 yields 20130228 under gregorian but
// 20130230 under 360day.
func (p Point) Add(d Duration) Point {
	if p.Kind == KindInteger {
		if d.Kind != KindInteger {
			panic("cycle: integer point requires integer duration")
		}
		return NewIntegerPoint(p.Int + d.Steps)
	}
	if d.Kind != KindDatetime {
		panic("cycle: datetime point requires datetime duration")
	}

	sign := int64(1)
	if d.Negative {
		sign = -1
	}

	year := p.Year + sign*d.Years
	month := p.Month + sign*d.Months
	year, month = normalizeMonth(year, month)

	day := p.Day
	if maxDay := int64(daysInMonth(p.Calendar, year, int(month))); day > maxDay {
		day = maxDay
	}

	q := NewDatetimePoint(p.Calendar, year, month, day, p.Hour, p.Minute, p.Second, p.TZOffsetMinutes)

	totalDays := sign * (d.Weeks*7 + d.Days)
	totalSeconds := sign * (d.Hours*3600 + d.Minutes*60 + d.Seconds)

	return q.addDays(totalDays).addSeconds(totalSeconds)
}

// Sub returns the duration such that o.Add(result) == p (datetime only;
// integer points use plain subtraction via Int).
func (p Point) Sub(o Point) Duration {
	if p.Kind == KindInteger {
		return IntegerDuration(p.Int - o.Int)
	}

	// Count seconds between the two points by walking day boundaries; this
	// is adequate for the cutoff/window arithmetic the pool needs and
	// avoids re-deriving a full calendar-aware calendar<->epoch mapping.
	lo, hi, neg := o, p, false
	if lo.After(hi) {
		lo, hi, neg = hi, lo, true
	}

	var days int64
	cursor := lo
	for cursor.Year < hi.Year || (cursor.Year == hi.Year && cursor.Month < hi.Month) || (cursor.Year == hi.Year && cursor.Month == hi.Month && cursor.Day < hi.Day) {
		days++
		cursor = cursor.addDays(1)
	}

	secs := (hi.Hour-cursor.Hour)*3600 + (hi.Minute-cursor.Minute)*60 + (hi.Second - cursor.Second)

	d := Duration{Kind: KindDatetime, Days: days, Seconds: secs}
	if neg {
		d = d.Negate()
	}
	return d
}

func normalizeMonth(year, month int64) (int64, int64) {
	month--
	year += month / 12
	month %= 12
	if month < 0 {
		month += 12
		year--
	}
	month++
	return year, month
}

func (p Point) addDays(n int64) Point {
	if n == 0 {
		return p
	}
	step := int64(1)
	if n < 0 {
		step = -1
		n = -n
	}
	for ; n > 0; n-- {
		p.Day += step
		if step > 0 {
			if maxDay := int64(daysInMonth(p.Calendar, p.Year, int(p.Month))); p.Day > maxDay {
				p.Day = 1
				p.Year, p.Month = normalizeMonth(p.Year, p.Month+1)
			}
		} else if p.Day < 1 {
			p.Year, p.Month = normalizeMonth(p.Year, p.Month-1)
			p.Day = int64(daysInMonth(p.Calendar, p.Year, int(p.Month)))
		}
	}
	return p
}

func (p Point) addSeconds(n int64) Point {
	if n == 0 {
		return p
	}
	total := p.Hour*3600 + p.Minute*60 + p.Second + n
	dayShift := total / 86400
	rem := total % 86400
	if rem < 0 {
		rem += 86400
		dayShift--
	}
	p.Hour, p.Minute, p.Second = rem/3600, (rem%3600)/60, rem%60
	return p.addDays(dayShift)
}
