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

package pool

import (
	"testing"
	"time"

	"github.com/cylc/cylc-go/internal/cycle"
	"github.com/cylc/cylc-go/internal/graph"
	"github.com/cylc/cylc-go/internal/task"
	"github.com/stretchr/testify/require"
)

func buildDefs(t *testing.T, graphText string, families graph.FamilyMap) map[string]*graph.Definition {
	t.Helper()
	start := cycle.NewIntegerPoint(1)
	seq, err := cycle.NewPeriodicSequence(cycle.IntegerDuration(1), &start, nil, nil)
	require.NoError(t, err)

	defs, err := graph.Build([]graph.Section{{Sequence: seq, Text: graphText}}, families, nil)
	require.NoError(t, err)
	return defs
}

func fixedClock() func() time.Time {
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestLinearTwoTaskNegotiation(t *testing.T) {
	defs := buildDefs(t, "a => b", nil)

	var released []string
	pl := New(Config{
		Definitions: defs,
		Clock:       fixedClock(),
		OnReady: func(p *task.Proxy, def *graph.Definition) {
			released = append(released, p.ID())
		},
	})

	require.NoError(t, pl.SpawnInitial(cycle.NewIntegerPoint(1)))

	a, ok := pl.Get("a.1")
	require.True(t, ok)
	b, ok := pl.Get("b.1")
	require.True(t, ok)
	require.Equal(t, task.Waiting, a.Status())
	require.Equal(t, task.Waiting, b.Status())

	pl.Negotiate()
	require.Equal(t, task.Ready, a.Status())
	require.Equal(t, task.Waiting, b.Status())
	require.Equal(t, []string{"a.1"}, released)

	pl.RecordOutput(task.Atom{UpstreamName: "a", UpstreamCycle: "1", Output: "succeeded"}.Key())
	pl.Negotiate()
	require.Equal(t, task.Ready, b.Status())
	require.Equal(t, []string{"a.1", "b.1"}, released)
}

func TestFamilyAnyRunnableAfterOneMember(t *testing.T) {
	defs := buildDefs(t, "FAM:succeed-any => post", graph.FamilyMap{"FAM": {"m1", "m2"}})

	pl := New(Config{Definitions: defs, Clock: fixedClock()})
	require.NoError(t, pl.SpawnInitial(cycle.NewIntegerPoint(1)))

	post, ok := pl.Get("post.1")
	require.True(t, ok)
	require.False(t, post.ReadyToRun(fixedClock()()))

	pl.RecordOutput(task.Atom{UpstreamName: "m1", UpstreamCycle: "1", Output: "succeeded"}.Key())
	require.True(t, post.ReadyToRun(fixedClock()()))
}

func TestRunaheadGatesFutureCycles(t *testing.T) {
	defs := buildDefs(t, "a => b", nil)

	pl := New(Config{Definitions: defs, Clock: fixedClock(), RunaheadWindowSteps: 2})
	require.NoError(t, pl.SpawnInitial(cycle.NewIntegerPoint(1)))

	require.NoError(t, pl.Spawn("a", cycle.NewIntegerPoint(1)))
	require.NoError(t, pl.Spawn("a", cycle.NewIntegerPoint(2)))
	require.NoError(t, pl.Spawn("a", cycle.NewIntegerPoint(3)))

	a4, ok := pl.Get("a.4")
	require.True(t, ok)
	require.Equal(t, task.Runahead, a4.Status())

	// Finishing the oldest cycle advances the window and frees a.4.
	a1, _ := pl.Get("a.1")
	require.NoError(t, a1.EnterReady())
	require.NoError(t, a1.BeginSubmit())
	require.NoError(t, a1.OnStarted())
	require.NoError(t, a1.OnSucceeded())
	b1, _ := pl.Get("b.1")
	require.NoError(t, b1.EnterReady())
	require.NoError(t, b1.BeginSubmit())
	require.NoError(t, b1.OnStarted())
	require.NoError(t, b1.OnSucceeded())

	require.NoError(t, pl.ReleaseRunahead())
	require.Equal(t, task.Waiting, a4.Status())
}

func TestQueueLimitsConcurrentReleases(t *testing.T) {
	start := cycle.NewIntegerPoint(1)
	seq, err := cycle.NewPeriodicSequence(cycle.IntegerDuration(1), &start, nil, nil)
	require.NoError(t, err)
	defs := map[string]*graph.Definition{
		"a1": {Name: "a1", Sequences: []*cycle.Sequence{seq}},
		"a2": {Name: "a2", Sequences: []*cycle.Sequence{seq}},
	}

	var released []string
	pl := New(Config{
		Definitions: defs,
		Clock:       fixedClock(),
		Queues:      map[string]int{"main": 1},
		TaskQueue:   map[string]string{"a1": "main", "a2": "main"},
		OnReady: func(p *task.Proxy, def *graph.Definition) {
			released = append(released, p.ID())
		},
	})
	require.NoError(t, pl.SpawnInitial(cycle.NewIntegerPoint(1)))

	pl.Negotiate()
	pl.ReleaseQueues()
	require.Len(t, released, 1)

	// The second stays queued until the first's slot frees.
	pl.Negotiate()
	pl.ReleaseQueues()
	require.Len(t, released, 1)

	pl.ReleaseQueueSlot(released[0][:2])
	pl.ReleaseQueues()
	require.Len(t, released, 2)
}

func TestReapRemovesSpentProxies(t *testing.T) {
	defs := buildDefs(t, "a => b", nil)

	pl := New(Config{Definitions: defs, Clock: fixedClock()})
	require.NoError(t, pl.SpawnInitial(cycle.NewIntegerPoint(1)))

	a, _ := pl.Get("a.1")
	require.NoError(t, a.EnterReady())
	require.NoError(t, a.BeginSubmit())
	require.NoError(t, a.OnStarted())
	require.NoError(t, a.OnSucceeded())

	// Still referenced: b.1 has not consumed a.1's output yet.
	require.NoError(t, pl.Spawn("a", cycle.NewIntegerPoint(1)))
	require.Empty(t, pl.Reap())

	pl.RecordOutput(task.Atom{UpstreamName: "a", UpstreamCycle: "1", Output: "succeeded"}.Key())
	removed := pl.Reap()
	require.Equal(t, []string{"a.1"}, removed)

	_, ok := pl.Get("a.1")
	require.False(t, ok)
}
