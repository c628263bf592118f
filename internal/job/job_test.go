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

package job

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollingScheduleDelayAfterPrevious(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := PollingSchedule{
		Intervals:      []time.Duration{time.Minute, 2 * time.Minute, 5 * time.Minute},
		DelayAfterPrev: true,
	}
	s.Start(start)

	require.Equal(t, start.Add(time.Minute), s.Next())
	require.Equal(t, start.Add(time.Minute).Add(2*time.Minute), s.Next())
	require.Equal(t, start.Add(time.Minute).Add(2*time.Minute).Add(5*time.Minute), s.Next())
	// exhausted: repeats the last interval from the last poll
	fourth := s.Next()
	require.True(t, fourth.After(start.Add(8*time.Minute)))
}

func TestPollingScheduleStrict(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := PollingSchedule{Intervals: []time.Duration{time.Minute, 3 * time.Minute}}
	s.Start(start)

	require.Equal(t, start.Add(time.Minute), s.Next())
	require.Equal(t, start.Add(3*time.Minute), s.Next())
}

func TestRenderScriptSectionOrder(t *testing.T) {
	data := ScriptData{
		Shell:          "/bin/bash",
		HeaderComments: []string{"generated"},
		DirectiveLines: []string{"#SBATCH --job-name=foo.1"},
		CylcDir:        "/opt/cylc",
		CylcVersion:    "1.0",
		FailSignals:    []string{"EXIT", "ERR", "XCPU"},
		StaticEnv:      map[string]string{"CYLC_WORKFLOW_NAME": "demo"},
		SuiteRunDir:    "/run/demo",
		TaskJob:        "1/foo/01",
		UserEnv:        map[string]string{"HOME_LIKE": "~alice/data"},
		Script:         "echo hi",
		RuntimeLibPath: "/opt/cylc/lib/cylc/job.sh",
		JobDir:         "/run/demo/log/job/1/foo/01",
	}

	out, err := Render(data)
	require.NoError(t, err)

	order := []string{
		"#!/bin/bash",
		"#SBATCH --job-name=foo.1",
		"CYLC_FAIL_SIGNALS",
		"cylc__job__inst__cylc_env()",
		"cylc__job__inst__user_env()",
		"cylc__job__inst__script()",
		"#EOF /run/demo/log/job/1/foo/01",
	}
	last := -1
	for _, marker := range order {
		idx := strings.Index(out, marker)
		require.Greaterf(t, idx, last, "expected %q after previous marker", marker)
		last = idx
	}
	require.Contains(t, out, `~alice/"data"`)
}
