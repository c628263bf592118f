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

import "github.com/cylc/cylc-go/internal/task"

// registerInterestLocked indexes every unresolved atomic prerequisite of p
// so that a later RecordOutput can find interested proxies in O(1) instead
// of scanning the whole pool. Caller must hold pl.mu.
func (pl *Pool) registerInterestLocked(p *task.Proxy) {
	for _, clause := range p.Prereqs {
		for _, key := range clause.Keys() {
			bucket, ok := pl.interest[key]
			if !ok {
				bucket = map[string]*task.Proxy{}
				pl.interest[key] = bucket
			}
			bucket[p.ID()] = p
		}
	}
}

func (pl *Pool) unregisterInterestLocked(p *task.Proxy) {
	for _, clause := range p.Prereqs {
		for _, key := range clause.Keys() {
			if bucket, ok := pl.interest[key]; ok {
				delete(bucket, p.ID())
				if len(bucket) == 0 {
					delete(pl.interest, key)
				}
			}
		}
	}
}

// RecordOutput marks an atomic prerequisite key as emitted and flips it on
// every proxy still interested in it. Returns the proxies whose
// prerequisites were touched; callers re-evaluate readiness on the next
// negotiation pass.
func (pl *Pool) RecordOutput(key string) []*task.Proxy {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	pl.emitted.Set(key, struct{}{})

	bucket, ok := pl.interest[key]
	if !ok {
		return nil
	}

	var touched []*task.Proxy
	for _, p := range bucket {
		if p.MarkOutputKey(key) {
			touched = append(touched, p)
		}
	}

	if len(touched) > 0 {
		delete(pl.interest, key)
	}

	return touched
}

// OutputEmitted reports whether key has ever been recorded. Emitted outputs
// stay emitted until their proxy is reaped, so replaying a message is safe.
func (pl *Pool) OutputEmitted(key string) bool {
	return pl.emitted.Has(key)
}

// Negotiate promotes every waiting proxy whose prerequisites are now fully
// satisfied (and whose clock/retry/xtrigger gates allow it) into its named
// queue, or straight to ready if it runs unqueued.
func (pl *Pool) Negotiate() []*task.Proxy {
	pl.mu.Lock()
	candidates := make([]*task.Proxy, 0)
	for _, p := range pl.proxies {
		if p.Status() != task.Waiting {
			continue
		}
		if p.ReadyToRun(pl.clock()) {
			candidates = append(candidates, p)
		}
	}
	pl.mu.Unlock()

	var admitted []*task.Proxy
	for _, p := range candidates {
		q := pl.queueFor(p.Name)
		if q == nil {
			if err := p.EnterReady(); err == nil {
				admitted = append(admitted, p)
				pl.mu.Lock()
				def, ok := pl.definitions[p.Name]
				pl.mu.Unlock()
				if ok && pl.onReady != nil {
					pl.onReady(p, def)
				}
			}
			continue
		}
		if err := p.EnterQueued(); err == nil {
			pl.mu.Lock()
			q.Push(p.ID())
			pl.mu.Unlock()
		}
	}
	return admitted
}

// ReleaseQueues pops as many queue heads as capacity allows and transitions
// them to ready, handing each to the submission pipeline via onReady.
func (pl *Pool) ReleaseQueues() []*task.Proxy {
	pl.mu.Lock()
	var released []*task.Proxy
	for _, q := range pl.queues {
		for _, id := range q.PopReady() {
			p, ok := pl.proxies[id]
			if !ok {
				continue
			}
			if err := p.QueueRelease(); err != nil {
				q.Release()
				continue
			}
			released = append(released, p)
		}
	}
	pl.mu.Unlock()

	// onReady runs without pl.mu held, as in Negotiate, since it may call
	// back into the pool (e.g. Spawn).
	for _, p := range released {
		pl.mu.Lock()
		def, ok := pl.definitions[p.Name]
		pl.mu.Unlock()
		if ok && pl.onReady != nil {
			pl.onReady(p, def)
		}
	}
	return released
}

// ReleaseQueueSlot frees one slot in the queue a finished proxy occupied,
// making room for the next pending entry.
func (pl *Pool) ReleaseQueueSlot(taskName string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if q := pl.queueFor(taskName); q != nil {
		q.Release()
	}
}
