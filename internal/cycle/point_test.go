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

import "testing"

func TestAddSubtractGregorianVs360Day(t *testing.T) {
	p, err := ParsePoint(Gregorian, "20130301T0000Z")
	if err != nil {
		t.Fatal(err)
	}
	d, err := ParseISODuration("P1D")
	if err != nil {
		t.Fatal(err)
	}
	got := p.Add(d.Negate())
	if got.String() != "20130228T0000Z" {
		t.Fatalf("gregorian: got %s, want 20130228T0000Z", got.String())
	}

	p360, err := ParsePoint(Day360, "20130301T0000Z")
	if err != nil {
		t.Fatal(err)
	}
	got360 := p360.Add(d.Negate())
	if got360.String() != "20130230T0000Z" {
		t.Fatalf("360day: got %s, want 20130230T0000Z", got360.String())
	}
}

func TestIntegerSequence(t *testing.T) {
	start := NewIntegerPoint(1)
	seq, err := NewPeriodicSequence(IntegerDuration(2), &start, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	first, ok := seq.FirstOnOrAfter(NewIntegerPoint(0))
	if !ok || first.Int != 1 {
		t.Fatalf("got %+v ok=%v", first, ok)
	}

	next, ok := seq.NextAfter(first)
	if !ok || next.Int != 3 {
		t.Fatalf("got %+v ok=%v", next, ok)
	}
}

func TestSequenceExclusion(t *testing.T) {
	start := NewIntegerPoint(0)
	excluded := NewIntegerPoint(4)
	seq, err := NewPeriodicSequence(IntegerDuration(2), &start, nil, []Point{excluded})
	if err != nil {
		t.Fatal(err)
	}

	p, ok := seq.FirstOnOrAfter(NewIntegerPoint(3))
	if !ok || p.Int != 6 {
		t.Fatalf("expected exclusion of 4 to skip to 6, got %+v ok=%v", p, ok)
	}
}

func TestCompareDifferentKindsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic comparing integer and datetime points")
		}
	}()
	NewIntegerPoint(1).Compare(NewDatetimePoint(Gregorian, 2020, 1, 1, 0, 0, 0, 0))
}
