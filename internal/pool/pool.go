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

// Package pool owns the set of active task proxies in a running workflow:
// the dependency-negotiation loop, the runahead window, the named queues,
// and the per-tick spawn/reap cycle.
package pool

import (
	"sync"
	"time"

	"github.com/cylc/cylc-go/internal/cycle"
	"github.com/cylc/cylc-go/internal/graph"
	"github.com/cylc/cylc-go/internal/task"
	cmap "github.com/orcaman/concurrent-map"
	"github.com/pkg/errors"
)

// ReadyHandoff is how the pool hands a now-runnable proxy to the
// submission pipeline; the scheduler supplies this callback so package pool
// never imports the job-submission packages directly.
type ReadyHandoff func(p *task.Proxy, def *graph.Definition)

// Pool is the single owner of every TaskProxy in a running workflow.
type Pool struct {
	mu sync.Mutex

	definitions map[string]*graph.Definition
	proxies     map[string]*task.Proxy // id -> proxy

	emitted  cmap.ConcurrentMap                // atom key -> struct{}{}
	interest map[string]map[string]*task.Proxy // atom key -> proxy id -> proxy

	queues           map[string]*Queue
	taskQueue        map[string]string // task name -> queue name
	defaultQueueName string

	runaheadWindowSteps int

	clock func() time.Time

	onReady ReadyHandoff
}

// Config bundles the construction-time parameters for a Pool.
type Config struct {
	Definitions         map[string]*graph.Definition
	RunaheadWindowSteps int
	Clock               func() time.Time
	OnReady             ReadyHandoff
	Queues              map[string]int // queue name -> limit
	TaskQueue           map[string]string
	DefaultQueue        string
}

// New builds an empty Pool ready to be seeded via SpawnInitial.
func New(cfg Config) *Pool {
	queues := map[string]*Queue{}
	for name, limit := range cfg.Queues {
		queues[name] = NewQueue(name, limit)
	}
	if cfg.DefaultQueue != "" {
		if _, ok := queues[cfg.DefaultQueue]; !ok {
			queues[cfg.DefaultQueue] = NewQueue(cfg.DefaultQueue, 0)
		}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Pool{
		definitions:         cfg.Definitions,
		proxies:             map[string]*task.Proxy{},
		emitted:             cmap.New(),
		interest:            map[string]map[string]*task.Proxy{},
		queues:              queues,
		taskQueue:           cfg.TaskQueue,
		defaultQueueName:    cfg.DefaultQueue,
		runaheadWindowSteps: cfg.RunaheadWindowSteps,
		clock:               clock,
		onReady:             cfg.OnReady,
	}
}

// Get returns the proxy with the given id, if present.
func (pl *Pool) Get(id string) (*task.Proxy, bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	p, ok := pl.proxies[id]
	return p, ok
}

// All returns a snapshot of every tracked proxy.
func (pl *Pool) All() []*task.Proxy {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	out := make([]*task.Proxy, 0, len(pl.proxies))
	for _, p := range pl.proxies {
		out = append(out, p)
	}
	return out
}

func (pl *Pool) queueFor(taskName string) *Queue {
	name := pl.taskQueue[taskName]
	if name == "" {
		name = pl.defaultQueueName
	}
	return pl.queues[name]
}

// oldestActive returns the minimum cycle point among non-terminal proxies,
// which anchors the runahead window.
func (pl *Pool) oldestActive() (cycle.Point, bool) {
	var best cycle.Point
	found := false
	for _, p := range pl.proxies {
		if p.Status().Terminal() {
			continue
		}
		if !found || p.CyclePoint.Before(best) {
			best, found = p.CyclePoint, true
		}
	}
	return best, found
}

var errUnknownDefinition = errors.New("pool: unknown task definition")
