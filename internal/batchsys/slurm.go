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

package batchsys

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Slurm formats SLURM directive lines, including heterogeneous-job
// (`hetjob_<n>_` and legacy `packjob_<n>_`) grouping. It does not itself
// execute anything: submit is `sbatch`, poll is `squeue`, kill is
// `scancel`.
type Slurm struct{}

func NewSlurm() *Slurm { return &Slurm{} }

func (*Slurm) Name() string { return "slurm" }

var hetjobKeyRE = regexp.MustCompile(`^(?:hetjob|packjob)_(\d+)_(.+)$`)

// FormatDirectives emits job identity lines, then the execution time
// limit, then plain directives sorted by key, then heterogeneous groups in
// ascending index order with a separator line between groups.
func (*Slurm) FormatDirectives(conf JobConf) []string {
	lines := []string{
		directiveLine("--job-name", conf.TaskID),
		directiveLine("--output", conf.TaskID+".out"),
		directiveLine("--error", conf.TaskID+".err"),
	}
	if conf.ExecutionTimeLimitSec > 0 {
		lines = append(lines, directiveLine("--time", formatSlurmDuration(conf.ExecutionTimeLimitSec)))
	}

	plain := map[string]string{}
	groups := map[int]map[string]string{}

	for k, v := range conf.Directives {
		if m := hetjobKeyRE.FindStringSubmatch(k); m != nil {
			var n int
			fmt.Sscanf(m[1], "%d", &n)
			key := m[2]
			if groups[n] == nil {
				groups[n] = map[string]string{}
			}
			groups[n][key] = v
			continue
		}
		plain[k] = v
	}

	for _, k := range sortedKeys(plain) {
		lines = append(lines, directiveLine(k, plain[k]))
	}

	groupIdx := sortedIntKeys(groups)
	for i, n := range groupIdx {
		if i > 0 {
			lines = append(lines, "#SBATCH hetjob")
		}
		group := groups[n]
		for _, k := range sortedKeys(group) {
			lines = append(lines, directiveLine(k, group[k]))
		}
	}

	return lines
}

func directiveLine(key, value string) string {
	if value == "" {
		return "#SBATCH " + key
	}
	return "#SBATCH " + key + "=" + value
}

// formatSlurmDuration renders seconds as SLURM's "M:SS" form for sub-hour
// limits (200 -> "3:20") and "H:MM:SS" above that.
func formatSlurmDuration(seconds int64) string {
	if seconds < 3600 {
		m := seconds / 60
		s := seconds % 60
		return fmt.Sprintf("%d:%02d", m, s)
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// SubmitCommand submits the job script, which sbatch reads from stdin;
// the process pool pipes it there from conf.Script.
func (*Slurm) SubmitCommand(conf JobConf) []string {
	return []string{"sbatch", "--parsable"}
}

func (*Slurm) PollCommand(ids []string) []string {
	return append([]string{"squeue", "-h", "-o", "%i", "-j"}, strings.Join(ids, ","))
}

func (*Slurm) KillCommand(id string) []string {
	return []string{"scancel", id}
}

var slurmSubmitIDRE = regexp.MustCompile(`^\s*(\d+)`)

func (*Slurm) ParseSubmitIDFromStdout(stdout string) (string, error) {
	m := slurmSubmitIDRE.FindStringSubmatch(stdout)
	if m == nil {
		return "", fmt.Errorf("slurm: no job id found in submit output %q", stdout)
	}
	return m[1], nil
}

func (*Slurm) FilterPollOutput(stdout string) []string {
	var ids []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			ids = append(ids, line)
		}
	}
	return ids
}

func (*Slurm) FailSignals() []string { return []string{"TERM", "XCPU"} }

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedIntKeys(m map[int]map[string]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
