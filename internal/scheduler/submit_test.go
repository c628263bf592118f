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
	"os"
	"testing"

	"github.com/cylc/cylc-go/internal/cycle"
	"github.com/cylc/cylc-go/internal/task"
	"github.com/stretchr/testify/require"
)

func TestOnReadyWritesJobScriptAndSubmits(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.pool.SpawnInitial(cycle.NewIntegerPoint(1)))

	a, ok := s.pool.Get("a.1")
	require.True(t, ok)
	require.NoError(t, a.EnterReady())

	s.onReady(a, s.defs["a"])

	require.Equal(t, task.Submitted, a.Status())
	require.True(t, a.HasSpawned)

	j, ok := s.jobs["a.1"]
	require.True(t, ok)
	content, err := os.ReadFile(j.ScriptPath)
	require.NoError(t, err)
	require.Contains(t, string(content), "#!/bin/bash")
	require.Contains(t, string(content), "echo hi")
	require.Contains(t, string(content), "cylc__job__main")

	// The successor spawned when the submission began.
	_, ok = s.pool.Get("a.2")
	require.True(t, ok)
}

func TestOnReadyUnknownBatchSystemLeavesProxyReady(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.pool.SpawnInitial(cycle.NewIntegerPoint(1)))

	a, ok := s.pool.Get("a.1")
	require.True(t, ok)
	require.NoError(t, a.EnterReady())

	def := *s.defs["a"]
	def.Submission.BatchSystem = "pbs"
	s.onReady(a, &def)

	require.Equal(t, task.Ready, a.Status())
	_, ok = s.jobs["a.1"]
	require.False(t, ok)
}
