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

import "time"

// AsTime converts a datetime Point to time.Time so that wall-clock
// machinery (cron schedules, clock triggers) can operate on it. The
// conversion is only exact for the Gregorian calendar; cron recurrences
// combined with the 360/365/366-day calendars are rejected by the config
// loader, since cron expresses wall-clock months and days that only the
// Gregorian calendar shares with time.Time.
func (p Point) AsTime() (time.Time, bool) {
	if p.Kind != KindDatetime {
		return time.Time{}, false
	}
	loc := time.FixedZone("", p.TZOffsetMinutes*60)
	return time.Date(int(p.Year), time.Month(p.Month), int(p.Day), int(p.Hour), int(p.Minute), int(p.Second), 0, loc), true
}

func pointToTime(p Point) (time.Time, bool) { return p.AsTime() }

func timeToPoint(t time.Time, cal Calendar, tzOffsetMinutes int) Point {
	return NewDatetimePoint(cal, int64(t.Year()), int64(t.Month()), int64(t.Day()), int64(t.Hour()), int64(t.Minute()), int64(t.Second()), tzOffsetMinutes)
}
