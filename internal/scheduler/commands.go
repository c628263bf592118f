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
	"time"

	"github.com/cylc/cylc-go/internal/broadcast"
	"github.com/cylc/cylc-go/internal/cycle"
	"github.com/cylc/cylc-go/internal/events"
	"github.com/cylc/cylc-go/internal/graph"
	"github.com/cylc/cylc-go/internal/procpool"
	"github.com/cylc/cylc-go/internal/task"
	"github.com/pkg/errors"
)

// ErrStopping rejects a command because shutdown is already in progress;
// non-fatal to the caller, fatal to the command.
var ErrStopping = errors.New("scheduler: stopping, command rejected")

// post runs fn serialized on the event loop and waits for it to finish.
// Every public command below goes through it, so an outer CLI wrapping
// these methods observes the same ordering as internal events.
func (s *Scheduler) post(fn func() error) error {
	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return ErrStopping
	}

	errc := make(chan error, 1)
	s.loop.Post(events.Event{Kind: events.KindCommand, Payload: func() {
		errc <- fn()
	}})
	select {
	case err := <-errc:
		return err
	case <-time.After(10 * time.Second):
		return errors.New("scheduler: command timed out")
	}
}

// Hold holds one proxy.
func (s *Scheduler) Hold(proxyID string) error {
	return s.post(func() error {
		p, ok := s.pool.Get(proxyID)
		if !ok {
			return errors.Errorf("scheduler: no such proxy %s", proxyID)
		}
		return p.Hold()
	})
}

// Release releases one held proxy.
func (s *Scheduler) Release(proxyID string) error {
	return s.post(func() error {
		p, ok := s.pool.Get(proxyID)
		if !ok {
			return errors.Errorf("scheduler: no such proxy %s", proxyID)
		}
		return p.Release()
	})
}

// HoldAll holds the whole workflow: the tick loop skips negotiation and
// release while held.
func (s *Scheduler) HoldAll() error {
	return s.post(func() error {
		s.holdAll = true
		return nil
	})
}

// ReleaseAll undoes HoldAll.
func (s *Scheduler) ReleaseAll() error {
	return s.post(func() error {
		s.holdAll = false
		return nil
	})
}

// Trigger force-submits a proxy regardless of its prerequisites.
func (s *Scheduler) Trigger(proxyID string) error {
	return s.post(func() error {
		p, ok := s.pool.Get(proxyID)
		if !ok {
			return errors.Errorf("scheduler: no such proxy %s", proxyID)
		}
		def, ok := s.defs[p.Name]
		if !ok {
			return errors.Errorf("scheduler: no definition for %s", p.Name)
		}
		switch p.Status() {
		case task.Waiting:
			if err := p.EnterReady(); err != nil {
				return err
			}
		case task.Queued:
			if err := p.QueueRelease(); err != nil {
				return err
			}
		}
		s.onReady(p, def)
		return nil
	})
}

// Poll re-checks a submitted/running proxy's batch-system status.
func (s *Scheduler) Poll(proxyID string) error {
	return s.post(func() error {
		p, ok := s.pool.Get(proxyID)
		if !ok {
			return errors.Errorf("scheduler: no such proxy %s", proxyID)
		}
		j, ok := s.jobs[proxyID]
		if !ok {
			return errors.Errorf("scheduler: no job record for %s", proxyID)
		}
		adapter, err := s.batch.Lookup(j.BatchSystem)
		if err != nil {
			return err
		}
		argv := adapter.PollCommand([]string{j.BatchSystemID})
		s.procPool.PutCommand(context.Background(), argv, nil, false, func(res procpool.Result) {
			live := adapter.FilterPollOutput(res.Stdout)
			if len(live) == 0 && p.Status() == task.Submitted {
				s.loop.Post(events.Event{Kind: events.KindCommand, Payload: func() {
					_ = p.OnSubmissionTimeout()
				}})
			}
		})
		return nil
	})
}

// Kill kills a submitted/running proxy's job.
func (s *Scheduler) Kill(proxyID string) error {
	return s.post(func() error {
		j, ok := s.jobs[proxyID]
		if !ok {
			return errors.Errorf("scheduler: no job record for %s", proxyID)
		}
		adapter, err := s.batch.Lookup(j.BatchSystem)
		if err != nil {
			return err
		}
		argv := adapter.KillCommand(j.BatchSystemID)
		s.procPool.PutCommand(context.Background(), argv, nil, false, func(procpool.Result) {})
		return nil
	})
}

// Reload re-points the live definitions map without disturbing existing
// proxy state; the config layer hands in the parsed map already built.
func (s *Scheduler) Reload(defs map[string]*graph.Definition) error {
	return s.post(func() error {
		s.defs = defs
		return nil
	})
}

// Stop begins an orderly two-phase shutdown: close the process pool to new
// submits, let in-flight work drain, then terminate if asked to stop now.
// Remote tidy runs first with its own hard time budget, so it never blocks
// shutdown behind an unreachable host.
func (s *Scheduler) Stop(now bool) error {
	return s.post(func() error {
		if s.tidy != nil {
			s.remote.TidyAll(context.Background(), 10*time.Second, s.tidy)
		}
		s.stopping = true
		s.procPool.Close()
		if now {
			s.procPool.Terminate()
		}
		return nil
	})
}

// StopAt arranges a clean shutdown once every proxy at or before point has
// reached a terminal state: no successor beyond point is spawned, and the
// tick loop closes the process pool itself once nothing remains runnable.
func (s *Scheduler) StopAt(point cycle.Point) error {
	return s.post(func() error {
		s.stopAtPoint = &point
		return nil
	})
}

// BroadcastPut applies a broadcast write.
func (s *Scheduler) BroadcastPut(cyclePoints, namespaces []string, settings broadcast.Settings) ([]broadcast.Change, []string, error) {
	var modified []broadcast.Change
	var bad []string
	err := s.post(func() error {
		modified, bad = s.broadcast.Put(cyclePoints, namespaces, settings)
		return nil
	})
	return modified, bad, err
}

// BroadcastClear clears a broadcast entry.
func (s *Scheduler) BroadcastClear(cyclePoints, namespaces, cancel []string) ([]broadcast.Change, []string, error) {
	var cleared []broadcast.Change
	var bad []string
	err := s.post(func() error {
		cleared, bad = s.broadcast.Clear(cyclePoints, namespaces, cancel)
		return nil
	})
	return cleared, bad, err
}

// BroadcastExpire clears every broadcast entry older than cutoff.
func (s *Scheduler) BroadcastExpire(cutoff string) ([]broadcast.Change, error) {
	var cleared []broadcast.Change
	err := s.post(func() error {
		cleared = s.broadcast.Expire(cutoff)
		return nil
	})
	return cleared, err
}

// BroadcastShow returns the store's current cycle-point keys for
// `broadcast show` rendering.
func (s *Scheduler) BroadcastShow() ([]string, error) {
	var cps []string
	err := s.post(func() error {
		cps = s.broadcast.SortedCyclePoints()
		return nil
	})
	return cps, err
}

// PostMessage injects a task status/output message, as the job messaging
// layer would on receipt from a running job.
func (s *Scheduler) PostMessage(msg TaskMessage) {
	s.loop.Post(events.Event{Kind: events.KindTaskMessage, Payload: msg})
}

// Proxies returns a snapshot of every live proxy, for status rendering.
func (s *Scheduler) Proxies() []*task.Proxy {
	return s.pool.All()
}
