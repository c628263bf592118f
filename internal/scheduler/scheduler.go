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

// Package scheduler wires every owned component (task pool, process pool,
// broadcast store, remote initialization manager, batch-system registry,
// xtrigger registry, event loop) into a single top-level Scheduler value.
// Components are constructed explicitly and passed by reference; there is
// no package-level mutable state.
package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cylc/cylc-go/internal/batchsys"
	"github.com/cylc/cylc-go/internal/broadcast"
	"github.com/cylc/cylc-go/internal/cycle"
	"github.com/cylc/cylc-go/internal/events"
	"github.com/cylc/cylc-go/internal/graph"
	"github.com/cylc/cylc-go/internal/job"
	"github.com/cylc/cylc-go/internal/pool"
	"github.com/cylc/cylc-go/internal/procpool"
	"github.com/cylc/cylc-go/internal/remoteinit"
	"github.com/cylc/cylc-go/internal/task"
	"github.com/cylc/cylc-go/internal/xtrigger"
	"github.com/cylc/cylc-go/pkg/netutils"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Config bundles every construction-time dependency of a Scheduler.
type Config struct {
	Definitions         map[string]*graph.Definition
	InitialPoint        cycle.Point
	RunaheadWindowSteps int
	Queues              map[string]int
	TaskQueue           map[string]string
	DefaultQueue        string

	ProcPool      procpool.Config
	Batch         *batchsys.Registry
	XTriggers     *xtrigger.Registry
	Streamer      remoteinit.Streamer
	ServiceBundle []byte
	Namespaces    []string
	Ancestry      broadcast.NamespaceAncestry

	// Tidy, if set, is invoked once per initialized remote on shutdown.
	Tidy func(ctx context.Context, key remoteinit.Key) error

	RunDir string // CYLC_SUITE_RUN_DIR for rendered job scripts

	// DefaultPollIntervals seeds every job's PollingSchedule once it
	// submits successfully; nil disables automatic re-polling.
	DefaultPollIntervals []time.Duration

	// StallHandler is invoked (at most once per stall) when no task is
	// runnable and at least one remains waiting.
	StallHandler func()

	// StartHeld starts the workflow with everything held; ReleaseAll
	// lets it run.
	StartHeld bool

	Logger logr.Logger
	Clock  func() time.Time
}

// Scheduler is the single owner of a running workflow.
type Scheduler struct {
	mu sync.Mutex

	defs      map[string]*graph.Definition
	pool      *pool.Pool
	procPool  *procpool.Pool
	broadcast *broadcast.Store
	remote    *remoteinit.Manager
	batch     *batchsys.Registry
	xtriggers *xtrigger.Registry
	loop      *events.Loop

	log   logr.Logger
	clock func() time.Time

	runUUID        string
	runDir         string
	runaheadWindow int
	bundle       []byte
	pollSchedule []time.Duration
	onStall      func()
	tidy         func(ctx context.Context, key remoteinit.Key) error

	stopping    bool
	stalled     bool
	stopAtPoint *cycle.Point

	holdAll bool

	jobs map[string]*job.Job // proxy id -> last job record
}

// New constructs a Scheduler with every component wired but not yet
// running; call Play to start the event loop.
func New(cfg Config) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Scheduler{
		defs:         cfg.Definitions,
		procPool:     procpool.New(cfg.ProcPool),
		broadcast:    broadcast.New(cfg.Namespaces, cfg.Ancestry),
		remote:       remoteinit.New(cfg.Streamer),
		batch:        cfg.Batch,
		xtriggers:    cfg.XTriggers,
		log:          cfg.Logger,
		clock:        clock,
		runUUID:        uuid.NewString(),
		runDir:         cfg.RunDir,
		runaheadWindow: cfg.RunaheadWindowSteps,
		bundle:       cfg.ServiceBundle,
		pollSchedule: cfg.DefaultPollIntervals,
		onStall:      cfg.StallHandler,
		tidy:         cfg.Tidy,
		holdAll:      cfg.StartHeld,
		jobs:         map[string]*job.Job{},
	}

	s.pool = pool.New(pool.Config{
		Definitions:         cfg.Definitions,
		RunaheadWindowSteps: cfg.RunaheadWindowSteps,
		Clock:               clock,
		OnReady:             s.onReady,
		Queues:              cfg.Queues,
		TaskQueue:           cfg.TaskQueue,
		DefaultQueue:        cfg.DefaultQueue,
	})

	s.loop = events.New(256, s.handleEvent, s.tick)
	return s
}

// Play seeds the initial task instances and starts the event loop; it
// blocks until ctx is cancelled. Stop does not end the loop by itself; the
// caller cancels ctx.
func (s *Scheduler) Play(ctx context.Context, initial cycle.Point) error {
	if err := s.pool.SpawnInitial(initial); err != nil {
		return errors.Wrapf(err, "scheduler: spawn initial proxies")
	}
	s.loop.Run(ctx, 200*time.Millisecond)
	return nil
}

// tick is the event loop's periodic wake: evaluate xtriggers, negotiate,
// release queues, reconcile the process pool, fire due retry timers, spawn
// successors, reap completed proxies, and detect stalls. The event queue
// itself is drained by the loop before tick runs.
func (s *Scheduler) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holdAll {
		return
	}

	s.evalXTriggers()

	s.pool.Negotiate()
	// ReleaseQueues invokes s.onReady (registered as pool.Config.OnReady)
	// for every proxy it pops, handing it to the submission pipeline.
	s.pool.ReleaseQueues()

	s.procPool.Process()

	if err := s.pool.ReleaseRunahead(); err != nil {
		s.log.Error(err, "release runahead")
	}

	now := s.clock()
	active := false
	waiting := false
	for _, p := range s.pool.All() {
		status := p.Status()
		switch status {
		case task.Ready, task.Queued, task.Submitted, task.Running, task.SubmitRetrying, task.Retrying:
			active = true
		case task.Waiting:
			waiting = true
		}

		if p.RetryDue(now) {
			switch status {
			case task.SubmitRetrying:
				if err := p.SubmitRetryElapsed(); err != nil {
					s.log.Error(err, "submit retry elapsed", "proxy", p.ID())
				}
			case task.Retrying:
				if err := p.RetryElapsed(); err != nil {
					s.log.Error(err, "retry elapsed", "proxy", p.ID())
				}
			}
		}

		if status.Terminal() && !p.HasSpawned {
			s.pool.ReleaseQueueSlot(p.Name)
			s.spawnSuccessor(p)
		}
	}

	s.pool.Reap()

	if !active && waiting {
		if !s.stalled {
			s.stalled = true
			s.log.Info("workflow stalled: no task is runnable")
			if s.onStall != nil {
				s.onStall()
			}
		}
	} else {
		s.stalled = false
	}

	if !active && !waiting && s.stopAtPoint != nil && !s.stopping {
		s.stopping = true
		s.procPool.Close()
	}
}

// evalXTriggers evaluates every unsatisfied xtrigger of every waiting
// proxy; a trigger that reports true is satisfied for that proxy from then
// on.
func (s *Scheduler) evalXTriggers() {
	if s.xtriggers == nil {
		return
	}
	now := s.clock()
	for _, p := range s.pool.All() {
		if p.Status() != task.Waiting {
			continue
		}
		labels := p.UnsatisfiedXTriggers()
		if len(labels) == 0 {
			continue
		}
		wall, _ := p.CyclePoint.AsTime()
		params := xtrigger.StandardParams(p.CyclePoint.String(), wall, now)
		for _, label := range labels {
			ok, err := s.xtriggers.Eval(label, params)
			if err != nil {
				s.log.Error(err, "evaluate xtrigger", "proxy", p.ID(), "label", label)
				continue
			}
			if ok {
				p.SatisfyXTrigger(label)
			}
		}
	}
}

// spawnSuccessor creates the next instance of p's task, honoring a
// stop-at point.
func (s *Scheduler) spawnSuccessor(p *task.Proxy) {
	if p.HasSpawned {
		return
	}
	if s.stopAtPoint != nil && p.CyclePoint.Compare(*s.stopAtPoint) >= 0 {
		return
	}
	if err := s.pool.Spawn(p.Name, p.CyclePoint); err != nil {
		s.log.Error(err, "spawn successor", "proxy", p.ID())
	}
}

func (s *Scheduler) handleEvent(ev events.Event) {
	switch ev.Kind {
	case events.KindTaskMessage:
		msg := ev.Payload.(TaskMessage)
		s.applyMessage(msg)
	case events.KindCommand:
		cmd := ev.Payload.(func())
		cmd()
	}
}

// TaskMessage is a status/output report arriving from a submitted job, the
// only payload kind events.KindTaskMessage carries.
type TaskMessage struct {
	ProxyID string
	Event   task.Event
	Output  string // non-empty for custom output messages
}

func (s *Scheduler) applyMessage(msg TaskMessage) {
	p, ok := s.pool.Get(msg.ProxyID)
	if !ok {
		return
	}

	switch msg.Event {
	case task.EventStarted:
		if err := p.OnStarted(); err == nil {
			s.recordOutput(p, "started")
			s.armExecutionTimeout(p)
		}
	case task.EventSucceeded:
		if err := p.OnSucceeded(); err == nil {
			s.recordOutput(p, "succeeded")
		}
	case task.EventFailed:
		_ = p.OnFailed(s.clock)
		if p.Status() == task.Failed {
			s.recordOutput(p, "failed")
		}
	case task.EventVacated:
		_ = p.OnVacated()
	default:
		if msg.Output != "" && p.EmitCustom(msg.Output) {
			s.recordOutput(p, msg.Output)
		}
	}
}

func (s *Scheduler) recordOutput(p *task.Proxy, output string) {
	s.pool.RecordOutput(task.Atom{
		UpstreamName:  p.Name,
		UpstreamCycle: p.CyclePoint.String(),
		Output:        output,
	}.Key())
}

// armExecutionTimeout schedules a synthetic failure for a running job that
// outlives its execution time limit. A zero limit disables the timeout.
func (s *Scheduler) armExecutionTimeout(p *task.Proxy) {
	def, ok := s.defs[p.Name]
	if !ok || def.ExecutionTimeLimit == nil {
		return
	}
	limit := def.ExecutionTimeLimit.Wall()
	if limit <= 0 {
		return
	}
	submitNum := p.SubmitNum
	s.loop.AfterFunc(limit, func() {
		if p.Status() == task.Running && p.SubmitNum == submitNum {
			if err := p.OnExecutionTimeout(); err == nil {
				s.recordOutput(p, "failed")
			}
		}
	})
}

// onReady hands a newly-ready proxy to the submission pipeline: render its
// job script, pick its adapter, and put the submit command on the process
// pool.
func (s *Scheduler) onReady(p *task.Proxy, def *graph.Definition) {
	adapter, err := s.batch.Lookup(def.Submission.BatchSystem)
	if err != nil {
		s.log.Error(err, "unknown batch system", "proxy", p.ID())
		return
	}

	overlay := s.broadcast.Lookup(p.CyclePoint.String(), p.Name)
	env := map[string]string{}
	for k, v := range def.Env {
		env[k] = v
	}
	for k, v := range overlay {
		if str, ok := v.(string); ok {
			env[k] = str
		}
	}

	scriptPath := s.jobScriptPath(p)
	conf := batchsys.JobConf{
		TaskID:     p.ID(),
		Directives: def.Submission.Directives,
		Script:     scriptPath,
	}
	if def.ExecutionTimeLimit != nil {
		conf.ExecutionTimeLimitSec = int64(def.ExecutionTimeLimit.Wall() / time.Second)
	}

	rendered, err := job.Render(job.ScriptData{
		Shell:          "/bin/bash",
		DirectiveLines: adapter.FormatDirectives(conf),
		CylcDir:        s.runDir,
		CylcVersion:    "1.0",
		StaticEnv:      env,
		SuiteRunDir:    s.runDir,
		SuiteUUID:      s.runUUID,
		TaskJob:        p.ID(),
		TryNumber:      p.TryNum,
		FailSignals:    adapter.FailSignals(),
		GlobalInitScript: def.Submission.GlobalInitScript,
		InitScript:     def.Submission.InitScript,
		EnvScript:      def.Submission.EnvScript,
		ErrScript:      def.Submission.ErrScript,
		PreScript:      def.Submission.PreScript,
		Script:         def.Submission.Script,
		PostScript:     def.Submission.PostScript,
		ExitScript:     def.Submission.ExitScript,
		RuntimeLibPath: s.runDir + "/lib/cylc/job.sh",
		JobDir:         scriptPath,
	})
	if err != nil {
		s.log.Error(err, "render job script", "proxy", p.ID())
		return
	}

	if err := os.MkdirAll(filepath.Dir(scriptPath), 0o755); err != nil {
		s.log.Error(err, "create job directory", "proxy", p.ID())
		return
	}
	if err := os.WriteFile(scriptPath, []byte(rendered), 0o755); err != nil {
		s.log.Error(err, "write job script", "proxy", p.ID())
		return
	}

	s.jobs[p.ID()] = &job.Job{
		TaskProxyID: p.ID(),
		SubmitNum:   p.SubmitNum + 1,
		ScriptPath:  scriptPath,
		Host:        def.Submission.Host,
		User:        def.Submission.RemoteUser,
		BatchSystem: adapter.Name(),
		Submitted:   s.clock(),
	}

	argv := adapter.SubmitCommand(conf)
	// The submit command also receives the job script on stdin, for
	// runners (sbatch) that read the script there rather than from a
	// path operand.
	stdin := &procpool.Stdin{FilePaths: []string{scriptPath}}

	if err := p.BeginSubmit(); err != nil {
		s.log.Error(err, "begin submit", "proxy", p.ID())
		return
	}
	s.recordOutput(p, "submitted")
	s.spawnSuccessor(p)

	s.submitOrAwaitRemote(p, adapter, def.Submission.Host, def.Submission.RemoteUser, argv, stdin)
}

// submitOrAwaitRemote gates the actual submit command behind remote
// initialization: a host-bound task waits until its remote's install state
// reaches Done, and fails its submission if the install is Failed. Local
// tasks (empty host, or a host naming this machine) submit immediately.
func (s *Scheduler) submitOrAwaitRemote(p *task.Proxy, adapter batchsys.Adapter, host, user string, argv []string, stdin *procpool.Stdin) {
	if host != "" && !netutils.IsLocalHost(host) {
		key := remoteinit.Key{Host: host, User: user}
		switch s.remote.StateOf(key) {
		case remoteinit.Failed:
			s.log.Error(s.remote.ErrorOf(key), "remote init failed", "proxy", p.ID())
			_ = p.OnSubmitFailed(s.clock)
			return
		case remoteinit.None:
			s.remote.EnsureInitialized(context.Background(), key, s.bundle)
			s.loop.AfterFunc(500*time.Millisecond, func() {
				s.submitOrAwaitRemote(p, adapter, host, user, argv, stdin)
			})
			return
		case remoteinit.InFlight:
			s.loop.AfterFunc(500*time.Millisecond, func() {
				s.submitOrAwaitRemote(p, adapter, host, user, argv, stdin)
			})
			return
		case remoteinit.Done:
			// fall through to submit
		}
	}

	s.procPool.PutCommand(context.Background(), argv, stdin, true, func(res procpool.Result) {
		s.loop.Post(events.Event{Kind: events.KindCommand, Payload: func() {
			s.onSubmitResult(p, adapter, res)
		}})
	})
}

func (s *Scheduler) jobScriptPath(p *task.Proxy) string {
	return s.runDir + "/log/job/" + p.CyclePoint.String() + "/" + p.Name + "/job"
}

func (s *Scheduler) onSubmitResult(p *task.Proxy, adapter batchsys.Adapter, res procpool.Result) {
	if res.Err != nil {
		_ = p.OnSubmitFailed(s.clock)
		return
	}
	id, err := adapter.ParseSubmitIDFromStdout(res.Stdout)
	if err != nil {
		_ = p.OnSubmitFailed(s.clock)
		return
	}
	j, ok := s.jobs[p.ID()]
	if !ok {
		return
	}
	j.BatchSystemID = id
	j.ExitStatus = 0
	j.StdoutTail = res.Stdout
	j.StderrTail = res.Stderr

	if len(s.pollSchedule) > 0 {
		j.Poll = &job.PollingSchedule{Intervals: s.pollSchedule, DelayAfterPrev: true}
		j.Poll.Start(s.clock())
		s.armNextPoll(p.ID(), adapter, j)
	}
}

// armNextPoll schedules the next automatic re-check of a submitted job's
// batch-system status per its polling schedule.
func (s *Scheduler) armNextPoll(proxyID string, adapter batchsys.Adapter, j *job.Job) {
	next := j.Poll.Next()
	delay := next.Sub(s.clock())
	if delay < 0 {
		delay = 0
	}
	s.loop.AfterFunc(delay, func() {
		p, ok := s.pool.Get(proxyID)
		if !ok || p.Status().Terminal() {
			return
		}
		s.procPool.PutCommand(context.Background(), adapter.PollCommand([]string{j.BatchSystemID}), nil, false, func(res procpool.Result) {
			s.loop.Post(events.Event{Kind: events.KindCommand, Payload: func() {
				live := adapter.FilterPollOutput(res.Stdout)
				if len(live) == 0 && p.Status() == task.Submitted {
					_ = p.OnSubmissionTimeout()
					return
				}
				s.armNextPoll(proxyID, adapter, j)
			}})
		})
	})
}
