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

package broadcast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ancestryFixture(name string) []string {
	switch name {
	case "foo":
		return []string{"root", "FAM", "foo"}
	default:
		return []string{"root", name}
	}
}

func TestPutAndLookupSpecificityOrder(t *testing.T) {
	s := New([]string{"root", "FAM", "foo"}, ancestryFixture)

	mod, bad := s.Put([]string{Wildcard}, []string{"root"}, Settings{"script": "echo general"})
	require.Empty(t, bad)
	require.Len(t, mod, 1)

	mod, bad = s.Put([]string{"20260101T0000Z"}, []string{"foo"}, Settings{"script": "echo specific"})
	require.Empty(t, bad)
	require.Len(t, mod, 1)

	got := s.Lookup("20260101T0000Z", "foo")
	require.Equal(t, "echo specific", got["script"])
}

func TestPutBadOptions(t *testing.T) {
	s := New([]string{"root"}, ancestryFixture)
	_, bad := s.Put([]string{"*"}, []string{"unknown-namespace"}, Settings{"x": "1"})
	require.Equal(t, []string{"unknown-namespace"}, bad)
}

func TestClearPrunesEmptyBranches(t *testing.T) {
	s := New([]string{"root"}, ancestryFixture)
	s.Put([]string{"20260101T0000Z"}, []string{"root"}, Settings{"x": "1"})

	cleared, bad := s.Clear([]string{"20260101T0000Z"}, []string{"root"}, nil)
	require.Empty(t, bad)
	require.Len(t, cleared, 1)

	require.Empty(t, s.SortedCyclePoints())
}

func TestExpireClearsOlderCycles(t *testing.T) {
	s := New([]string{"root"}, ancestryFixture)
	s.Put([]string{"20250101T0000Z"}, []string{"root"}, Settings{"x": "1"})
	s.Put([]string{"20270101T0000Z"}, []string{"root"}, Settings{"x": "2"})

	cleared := s.Expire("20260101T0000Z")
	require.Len(t, cleared, 1)
	require.Equal(t, "20250101T0000Z", cleared[0].CyclePoint)

	remaining := s.SortedCyclePoints()
	require.Equal(t, []string{"20270101T0000Z"}, remaining)
}
