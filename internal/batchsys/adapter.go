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

// Package batchsys defines the batch-system adapter contract: a small
// capability set each scheduler target (SLURM, a bare local shell, ...)
// implements, selected per task via `batch system = <key>`.
package batchsys

import "github.com/pkg/errors"

// JobConf is the subset of a task's submission configuration an adapter
// needs to format directives and build commands.
type JobConf struct {
	TaskID                string // "name.cycle", used in script/job names
	Directives            map[string]string
	Script                string // the rendered job script path on the remote host
	ExecutionTimeLimitSec int64  // 0 means no limit directive emitted
}

// Adapter is the capability set a batch-system plug-in implements.
type Adapter interface {
	// Name is the `batch system = <key>` identifier.
	Name() string

	// FormatDirectives produces the header lines of the job script.
	FormatDirectives(conf JobConf) []string

	// SubmitCommand returns the argv used to submit conf.Script.
	SubmitCommand(conf JobConf) []string

	// PollCommand returns the argv used to query the liveness of ids.
	PollCommand(ids []string) []string

	// KillCommand returns the argv used to kill id.
	KillCommand(id string) []string

	// ParseSubmitIDFromStdout extracts the batch system's job id from a
	// successful submit command's stdout.
	ParseSubmitIDFromStdout(stdout string) (string, error)

	// FilterPollOutput extracts the still-live ids from a poll command's
	// stdout; the caller infers exited ids by set difference.
	FilterPollOutput(stdout string) []string

	// FailSignals lists the signals that, if a job receives them, should be
	// treated as a task failure rather than a vacate-and-requeue.
	FailSignals() []string
}

// Registry resolves a `batch system = <key>` string to an Adapter.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a Registry seeded with the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: map[string]Adapter{}}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Lookup resolves key to an Adapter. An unknown key is a static
// misconfiguration, reported at load time rather than at dispatch.
func (r *Registry) Lookup(key string) (Adapter, error) {
	a, ok := r.adapters[key]
	if !ok {
		return nil, errors.Errorf("batchsys: unknown batch system %q", key)
	}
	return a, nil
}
