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
	"github.com/cylc/cylc-go/internal/cycle"
	"github.com/cylc/cylc-go/internal/graph"
	"github.com/cylc/cylc-go/internal/task"
	"github.com/pkg/errors"
)

// SpawnInitial seeds the pool with the first instance of every definition
// at or after the workflow's initial cycle point. Definitions whose
// sequences contribute no point at or after the initial point produce no
// proxies.
func (pl *Pool) SpawnInitial(initial cycle.Point) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	for name, def := range pl.definitions {
		if len(def.Sequences) == 0 {
			continue // purely-downstream definition, spawned by its trigger instead
		}
		point, _, ok := graph.FirstInstance(def, initial)
		if !ok {
			continue
		}
		if _, err := pl.createLocked(name, point); err != nil {
			return err
		}
	}
	return nil
}

// createLocked instantiates a proxy for (name, point), applying the
// runahead gate, and registers it in the emitted-output interest index.
// Caller must hold pl.mu. Creation is idempotent on (name, point).
func (pl *Pool) createLocked(name string, point cycle.Point) (*task.Proxy, error) {
	id := name + "." + point.String()
	if existing, ok := pl.proxies[id]; ok {
		return existing, nil
	}

	def, ok := pl.definitions[name]
	if !ok {
		return nil, errors.Wrapf(errUnknownDefinition, "task %q", name)
	}

	prereqs, err := task.ResolvePrereqs(def.Prereqs, point)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving prerequisites for %s", id)
	}

	initial := task.Waiting
	if pl.isRunaheadLocked(point) {
		initial = task.Runahead
	}

	p := task.NewAt(name, point, prereqs, def.Outputs, def.SubmitRetryDelays, def.ExecutionRetryDelays, initial)
	p.SetXTriggers(def.XTriggers)

	if def.ClockTriggerOffset != nil && point.Kind == cycle.KindDatetime {
		if wall, ok := point.AsTime(); ok {
			trigger := wall.Add(def.ClockTriggerOffset.Wall())
			p.ClockTriggerTime = &trigger
		}
	}

	pl.proxies[id] = p
	pl.registerInterestLocked(p)

	return p, nil
}

// isRunaheadLocked reports whether point is beyond the runahead window
// measured from the current oldest active point. With no active proxies
// yet, nothing is gated (the very first spawn always runs). The window is
// counted in cycle steps for integer cycling and in calendar days for
// datetime cycling, which bounds any sequence whose period is at least a
// day; sub-daily sequences are gated more loosely rather than stalled.
func (pl *Pool) isRunaheadLocked(point cycle.Point) bool {
	if pl.runaheadWindowSteps <= 0 {
		return false
	}
	oldest, ok := pl.oldestActive()
	if !ok {
		return false
	}
	if point.Kind == cycle.KindInteger {
		return point.Int-oldest.Int > int64(pl.runaheadWindowSteps)
	}
	d := point.Sub(oldest)
	return d.Days > int64(pl.runaheadWindowSteps)
}

// Spawn creates the next instance(s) of every sequence on which (name,
// point) runs, idempotently, and marks the source proxy has_spawned.
// Oneoff definitions never spawn successors.
func (pl *Pool) Spawn(name string, point cycle.Point) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	id := name + "." + point.String()
	src, ok := pl.proxies[id]
	if !ok {
		return errors.Errorf("spawn: no such proxy %s", id)
	}
	if src.HasSpawned {
		return nil
	}

	def, ok := pl.definitions[name]
	if !ok {
		return errors.Wrapf(errUnknownDefinition, "task %q", name)
	}

	if !def.Oneoff {
		for _, next := range graph.NextInstances(def, point) {
			if _, err := pl.createLocked(name, next); err != nil {
				return err
			}
		}
	}
	src.HasSpawned = true
	return nil
}

// Adopt inserts an already-constructed proxy (a restored one) into the
// pool and registers its interest, idempotently on identity.
func (pl *Pool) Adopt(p *task.Proxy) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if _, ok := pl.proxies[p.ID()]; ok {
		return
	}
	pl.proxies[p.ID()] = p
	pl.registerInterestLocked(p)
}

// ReleaseRunahead moves every parked proxy whose point is now within the
// (possibly advanced) window back to waiting.
func (pl *Pool) ReleaseRunahead() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	for _, p := range pl.proxies {
		if p.Status() != task.Runahead {
			continue
		}
		if !pl.isRunaheadLocked(p.CyclePoint) {
			if err := p.ReleaseRunahead(); err != nil {
				return err
			}
		}
	}
	return nil
}
