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

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/cylc/cylc-go/internal/batchsys"
	"github.com/cylc/cylc-go/internal/cycle"
	"github.com/cylc/cylc-go/internal/graph"
	"github.com/cylc/cylc-go/internal/task"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
)

type nullStreamer struct{}

func (nullStreamer) Stream(ctx context.Context, host, user string, bundle []byte) error {
	return nil
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	start := cycle.NewIntegerPoint(1)
	seq, err := cycle.NewPeriodicSequence(cycle.IntegerDuration(1), &start, nil, nil)
	require.NoError(t, err)

	defs, err := graph.Build([]graph.Section{{Sequence: seq, Text: "a => b"}}, nil, nil)
	require.NoError(t, err)
	for _, def := range defs {
		def.Submission.BatchSystem = "background"
		def.Submission.Script = "echo hi"
	}

	return New(Config{
		Definitions: defs,
		Batch:       batchsys.NewRegistry(batchsys.NewLocal()),
		Streamer:    nullStreamer{},
		Namespaces:  []string{"root", "a", "b"},
		Ancestry:    func(name string) []string { return []string{"root", name} },
		RunDir:      t.TempDir(),
		Logger:      logr.Discard(),
		Clock:       func() time.Time { return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.pool.SpawnInitial(cycle.NewIntegerPoint(1)))

	a, ok := s.pool.Get("a.1")
	require.True(t, ok)
	require.NoError(t, a.EnterReady())
	require.NoError(t, a.BeginSubmit())
	require.NoError(t, a.OnStarted())
	require.NoError(t, a.OnSucceeded())
	s.recordOutput(a, "succeeded")

	s.broadcast.Put([]string{"*"}, []string{"root"}, map[string]interface{}{"x": "1"})

	snap, err := s.Snapshot()
	require.NoError(t, err)

	data, err := MarshalSnapshot(snap)
	require.NoError(t, err)
	restored, err := UnmarshalSnapshot(data)
	require.NoError(t, err)

	s2 := newTestScheduler(t)
	require.NoError(t, s2.Restore(restored, cycle.Gregorian))

	a2, ok := s2.pool.Get("a.1")
	require.True(t, ok)
	require.Equal(t, task.Succeeded, a2.Status())
	require.Equal(t, a.SubmitNum, a2.SubmitNum)
	require.True(t, a2.OutputEmitted("succeeded"))

	b2, ok := s2.pool.Get("b.1")
	require.True(t, ok)
	require.True(t, b2.PrereqsSatisfied())

	require.Equal(t, "1", s2.broadcast.Lookup("20200101T0000Z", "a")["x"])
}
