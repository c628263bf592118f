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
	"strings"

	"github.com/cylc/cylc-go/internal/task"
)

// Reap removes every proxy that is terminal, has already spawned its
// successors, and whose outputs no live proxy's prerequisites can still
// reference.
func (pl *Pool) Reap() []string {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	var removed []string
	for id, p := range pl.proxies {
		if !p.Status().Terminal() {
			continue
		}
		if !p.HasSpawned {
			continue
		}
		if pl.referencedByLiveLocked(p) {
			continue
		}
		pl.unregisterInterestLocked(p)
		delete(pl.proxies, id)
		removed = append(removed, id)
	}
	return removed
}

// referencedByLiveLocked reports whether any live proxy still has an
// unsatisfied prerequisite key pointing at p's outputs. Caller holds pl.mu.
func (pl *Pool) referencedByLiveLocked(p *task.Proxy) bool {
	prefix := p.Name + "|" + p.CyclePoint.String() + "|"
	for key, bucket := range pl.interest {
		if len(bucket) == 0 {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
