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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntegerSequenceWalk(t *testing.T) {
	start := NewIntegerPoint(1)
	seq, err := NewPeriodicSequence(IntegerDuration(2), &start, nil, nil)
	require.NoError(t, err)

	p, ok := seq.FirstOnOrAfter(NewIntegerPoint(1))
	require.True(t, ok)
	require.Equal(t, int64(1), p.Int)

	p, ok = seq.NextAfter(p)
	require.True(t, ok)
	require.Equal(t, int64(3), p.Int)

	require.True(t, seq.Contains(NewIntegerPoint(5)))
	require.False(t, seq.Contains(NewIntegerPoint(4)))
}

func TestSequenceExclusionsSkipped(t *testing.T) {
	start := NewIntegerPoint(1)
	seq, err := NewPeriodicSequence(IntegerDuration(1), &start, nil, []Point{NewIntegerPoint(2)})
	require.NoError(t, err)

	p, ok := seq.NextAfter(NewIntegerPoint(1))
	require.True(t, ok)
	require.Equal(t, int64(3), p.Int)
	require.False(t, seq.Contains(NewIntegerPoint(2)))
}

func TestSequenceEndBound(t *testing.T) {
	start := NewIntegerPoint(1)
	end := NewIntegerPoint(3)
	seq, err := NewPeriodicSequence(IntegerDuration(1), &start, &end, nil)
	require.NoError(t, err)

	_, ok := seq.FirstOnOrAfter(NewIntegerPoint(4))
	require.False(t, ok)
}

func TestSequencePreviousBefore(t *testing.T) {
	start := NewIntegerPoint(1)
	seq, err := NewPeriodicSequence(IntegerDuration(2), &start, nil, nil)
	require.NoError(t, err)

	prev, ok, err := seq.PreviousBefore(NewIntegerPoint(6))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(5), prev.Int)

	_, ok, err = seq.PreviousBefore(NewIntegerPoint(1))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatetimeSequenceDaily(t *testing.T) {
	start := NewDatetimePoint(Gregorian, 2020, 1, 1, 0, 0, 0, 0)
	seq, err := NewPeriodicSequence(Duration{Kind: KindDatetime, Days: 1}, &start, nil, nil)
	require.NoError(t, err)

	from := NewDatetimePoint(Gregorian, 2020, 1, 30, 12, 0, 0, 0)
	p, ok := seq.FirstOnOrAfter(from)
	require.True(t, ok)
	require.Equal(t, "20200131T0000Z", p.String())

	next, ok := seq.NextAfter(p)
	require.True(t, ok)
	require.Equal(t, "20200201T0000Z", next.String())
}

func TestCronSequenceAligns(t *testing.T) {
	seq, err := NewCronSequence("0 6 * * *", nil, nil, nil)
	require.NoError(t, err)

	from := NewDatetimePoint(Gregorian, 2020, 3, 10, 7, 0, 0, 0)
	p, ok := seq.FirstOnOrAfter(from)
	require.True(t, ok)
	require.Equal(t, "20200311T0600Z", p.String())

	_, _, err = seq.PreviousBefore(p)
	require.Error(t, err)
}

func TestCalendar360DaySubtraction(t *testing.T) {
	p := NewDatetimePoint(Day360, 2013, 3, 1, 0, 0, 0, 0)
	back := p.Add(Duration{Kind: KindDatetime, Days: 1, Negative: true})
	require.Equal(t, "20130230T0000Z", back.String())

	g := NewDatetimePoint(Gregorian, 2013, 3, 1, 0, 0, 0, 0)
	back = g.Add(Duration{Kind: KindDatetime, Days: 1, Negative: true})
	require.Equal(t, "20130228T0000Z", back.String())
}
