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

package graph

import (
	"github.com/cylc/cylc-go/internal/cycle"
)

// SubmissionConfig holds the batch-system-facing configuration for a
// task: the batch-system key, its directives, and the job script
// fragments.
type SubmissionConfig struct {
	BatchSystem string
	Directives  map[string]string

	// Host is the remote-execution target's identifier (literal, back-ticked
	// command, or $ENV_VAR); empty means the job runs on the scheduler host
	// and no remote initialization is required.
	Host       string
	RemoteUser string

	InitScript        string
	EnvScript         string
	ErrScript         string
	PreScript         string
	Script            string
	PostScript        string
	ExitScript        string
	GlobalInitScript  string
	UserEnvScript     []string // raw "export FOO=bar" lines, in declared order
}

// Definition is the immutable per-task-name record: where the task
// occurs, what triggers it, what it produces, and how it submits.
type Definition struct {
	Name string

	Sequences []*cycle.Sequence

	// Prereqs is the AND of every graph clause that names this task as a
	// downstream; each member Expr is independently satisfiable.
	Prereqs []Expr

	// Outputs this task is declared to produce, beyond the built-ins
	// (submitted/started/succeeded/failed), e.g. custom "data-ready".
	Outputs []string

	SubmitRetryDelays    []cycle.Duration
	ExecutionRetryDelays []cycle.Duration
	ExecutionTimeLimit   *cycle.Duration
	ClockTriggerOffset   *cycle.Duration

	// XTriggers lists the external trigger labels that must report
	// satisfied before an instance of this task may run.
	XTriggers []string

	Submission SubmissionConfig
	Env        map[string]string

	// Oneoff marks a task as non-spawning: it executes at most once per
	// workflow run regardless of its sequences.
	Oneoff bool

	// ParamBindings records the parameter values this concrete name was
	// expanded from, if any (e.g. {"i": "1", "j": "0"} for "baz_i1_j0").
	ParamBindings map[string]string
}

// CombinedPrereq returns the single normalized clause that is the logical
// AND of every independent prerequisite clause, used when the pool only
// needs a flat view (e.g. for the readiness predicate).
func (d *Definition) CombinedPrereq() Expr {
	if len(d.Prereqs) == 0 {
		return nil
	}
	if len(d.Prereqs) == 1 {
		return d.Prereqs[0]
	}
	return And{Members: d.Prereqs}.Normalize()
}
