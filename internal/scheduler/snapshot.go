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
	"github.com/cylc/cylc-go/internal/broadcast"
	"github.com/cylc/cylc-go/internal/cycle"
	"github.com/cylc/cylc-go/internal/job"
	"github.com/cylc/cylc-go/internal/task"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ProxyRecord is the persisted form of one task proxy.
type ProxyRecord struct {
	Name       string          `yaml:"name"`
	CyclePoint string          `yaml:"cycle_point"`
	Status     string          `yaml:"status"`
	SubmitNum  int             `yaml:"submit_num"`
	TryNum     int             `yaml:"try_num"`
	HasSpawned bool            `yaml:"has_spawned"`
	JobVacated bool            `yaml:"job_vacated,omitempty"`
	Outputs    map[string]bool `yaml:"outputs"`
}

// Snapshot is the persisted scheduler state. It round-trips through YAML:
// every observable field restored equals the field snapshotted.
type Snapshot struct {
	RunUUID        string                                   `yaml:"run_uuid"`
	RunaheadWindow int                                      `yaml:"runahead_window"`
	Proxies        []ProxyRecord                            `yaml:"proxies"`
	Jobs           map[string]*job.Job                      `yaml:"jobs"`
	Broadcast      map[string]map[string]broadcast.Settings `yaml:"broadcast"`
}

// Snapshot captures the current state of every proxy, job record, and the
// broadcast tree.
func (s *Scheduler) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{
		RunUUID:        s.runUUID,
		RunaheadWindow: s.runaheadWindow,
		Jobs:           map[string]*job.Job{},
		Broadcast:      s.broadcast.Export(),
	}

	for _, p := range s.pool.All() {
		rec := ProxyRecord{
			Name:       p.Name,
			CyclePoint: p.CyclePoint.String(),
			Status:     p.Status().String(),
			SubmitNum:  p.SubmitNum,
			TryNum:     p.TryNum,
			HasSpawned: p.HasSpawned,
			JobVacated: p.JobVacated,
			Outputs:    map[string]bool{},
		}
		for msg := range p.Outputs {
			if p.OutputEmitted(msg) {
				rec.Outputs[msg] = true
			}
		}
		snap.Proxies = append(snap.Proxies, rec)
	}
	for id, j := range s.jobs {
		snap.Jobs[id] = j
	}
	return snap, nil
}

// Restore rebuilds pool and broadcast state from snap. Transient
// scheduling states (queued, ready) restart as waiting and re-negotiate;
// everything else restores as recorded. Emitted outputs are replayed
// through the pool so downstream prerequisites re-satisfy.
func (s *Scheduler) Restore(snap *Snapshot, calendar cycle.Calendar) error {
	s.runUUID = snap.RunUUID
	s.runaheadWindow = snap.RunaheadWindow
	s.broadcast.Import(snap.Broadcast)

	for _, rec := range snap.Proxies {
		def, ok := s.defs[rec.Name]
		if !ok {
			return errors.Errorf("scheduler: restore: no definition for %s", rec.Name)
		}
		point, err := cycle.ParsePoint(calendar, rec.CyclePoint)
		if err != nil {
			return errors.Wrapf(err, "scheduler: restore %s.%s", rec.Name, rec.CyclePoint)
		}
		status, err := task.ParseStatus(rec.Status)
		if err != nil {
			return errors.Wrapf(err, "scheduler: restore %s.%s", rec.Name, rec.CyclePoint)
		}
		switch status {
		case task.Queued, task.Ready:
			status = task.Waiting
		}

		prereqs, err := task.ResolvePrereqs(def.Prereqs, point)
		if err != nil {
			return errors.Wrapf(err, "scheduler: restore %s.%s", rec.Name, rec.CyclePoint)
		}

		p := task.NewAt(rec.Name, point, prereqs, def.Outputs, def.SubmitRetryDelays, def.ExecutionRetryDelays, status)
		p.SetXTriggers(def.XTriggers)
		p.SubmitNum = rec.SubmitNum
		p.TryNum = rec.TryNum
		p.HasSpawned = rec.HasSpawned
		p.JobVacated = rec.JobVacated
		for msg, emitted := range rec.Outputs {
			if emitted {
				p.EmitCustom(msg)
			}
		}
		s.pool.Adopt(p)
	}

	// Replay emitted outputs so open prerequisites re-satisfy.
	for _, rec := range snap.Proxies {
		for msg, emitted := range rec.Outputs {
			if emitted {
				s.pool.RecordOutput(task.Atom{
					UpstreamName:  rec.Name,
					UpstreamCycle: rec.CyclePoint,
					Output:        msg,
				}.Key())
			}
		}
	}

	for id, j := range snap.Jobs {
		s.jobs[id] = j
	}
	return nil
}

// MarshalSnapshot serializes snap.
func MarshalSnapshot(snap *Snapshot) ([]byte, error) {
	out, err := yaml.Marshal(snap)
	if err != nil {
		return nil, errors.Wrapf(err, "scheduler: marshal snapshot")
	}
	return out, nil
}

// UnmarshalSnapshot deserializes data.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrapf(err, "scheduler: unmarshal snapshot")
	}
	return &snap, nil
}
