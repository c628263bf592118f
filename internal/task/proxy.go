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

package task

import (
	"sync"
	"time"

	"github.com/cylc/cylc-go/internal/cycle"
	"github.com/pkg/errors"
)

// JobSummary records what the proxy knows about its most recent job.
type JobSummary struct {
	Host               string
	BatchSystemID      string
	BatchSystemName    string
	Submitted          time.Time
	Started            time.Time
	Finished           time.Time
	ExecutionTimeLimit time.Duration
}

// Observer is notified, in order, after every committed state transition.
type Observer func(p *Proxy, from, to Status, ev Event)

// Proxy is a mutable per-(name, cycle-point) task instance.
type Proxy struct {
	mu sync.Mutex

	Name       string
	CyclePoint cycle.Point
	status     Status

	Prereqs []*Prerequisite
	Outputs map[string]bool // output message -> emitted

	SubmitNum int
	TryNum    int

	LateTime         *time.Time
	ClockTriggerTime *time.Time

	Job JobSummary

	HasSpawned     bool
	ManualTrigger  bool
	IsManualSubmit bool
	JobVacated     bool

	xtriggers map[string]bool // xtrigger label -> satisfied

	submitRetryDelays    []cycle.Duration
	executionRetryDelays []cycle.Duration
	retryDeadline        *time.Time

	observers []Observer
}

// ID is the canonical "name.cycle" identity string.
func (p *Proxy) ID() string { return p.Name + "." + p.CyclePoint.String() }

// New constructs a Proxy in the waiting state with the given resolved
// prerequisites and declared outputs.
func New(name string, point cycle.Point, prereqs []*Prerequisite, outputs []string, submitRetries, execRetries []cycle.Duration) *Proxy {
	out := map[string]bool{
		"submitted": false, "started": false, "succeeded": false, "failed": false,
	}
	for _, o := range outputs {
		out[o] = false
	}
	return &Proxy{
		Name: name, CyclePoint: point, status: Waiting,
		Prereqs: prereqs, Outputs: out,
		submitRetryDelays: submitRetries, executionRetryDelays: execRetries,
	}
}

// NewAt is New but with an explicit initial status. The pool uses it to
// park a proxy directly in Runahead: runahead is a holding pen a proxy
// starts in, not a state reached by transition from waiting.
func NewAt(name string, point cycle.Point, prereqs []*Prerequisite, outputs []string, submitRetries, execRetries []cycle.Duration, initial Status) *Proxy {
	p := New(name, point, prereqs, outputs, submitRetries, execRetries)
	p.status = initial
	return p
}

// SetXTriggers declares the xtrigger labels this proxy must see satisfied
// before it can run. Call before the proxy is first evaluated.
func (p *Proxy) SetXTriggers(labels []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(labels) == 0 {
		p.xtriggers = nil
		return
	}
	p.xtriggers = make(map[string]bool, len(labels))
	for _, l := range labels {
		p.xtriggers[l] = false
	}
}

// SatisfyXTrigger marks one xtrigger label as satisfied. Satisfaction is
// sticky for the proxy's lifetime.
func (p *Proxy) SatisfyXTrigger(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.xtriggers[label]; ok {
		p.xtriggers[label] = true
	}
}

// UnsatisfiedXTriggers returns the labels still gating this proxy.
func (p *Proxy) UnsatisfiedXTriggers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for l, ok := range p.xtriggers {
		if !ok {
			out = append(out, l)
		}
	}
	return out
}

func (p *Proxy) xtriggersSatisfiedLocked() bool {
	for _, ok := range p.xtriggers {
		if !ok {
			return false
		}
	}
	return true
}

// ReleaseRunahead moves a parked proxy out of the runahead holding pen
// once the window has advanced.
func (p *Proxy) ReleaseRunahead() error { return p.transition(EventRunaheadRelease, nil) }

func (p *Proxy) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Subscribe registers an observer notified after each transition.
func (p *Proxy) Subscribe(ob Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, ob)
}

// transition performs the (from, event) -> to arc atomically and notifies
// observers outside the lock; each observer sees each committed state
// exactly once, in order.
func (p *Proxy) transition(event Event, mutate func()) error {
	p.mu.Lock()
	from := p.status
	to, err := legalNext(from, event)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.status = to
	if mutate != nil {
		mutate() // may redirect the target, e.g. to a retrying state
	}
	to = p.status
	observers := append([]Observer(nil), p.observers...)
	p.mu.Unlock()

	for _, ob := range observers {
		ob(p, from, to, event)
	}
	return nil
}

// PrereqsSatisfied reports whether every prerequisite clause currently
// evaluates true.
func (p *Proxy) PrereqsSatisfied() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.Prereqs {
		if !c.Satisfied() {
			return false
		}
	}
	return true
}

// MarkOutputKey flips the matching atomic prerequisite across every clause
// referencing it; used by the pool's dependency-negotiation loop.
func (p *Proxy) MarkOutputKey(key string) (matched bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.Prereqs {
		if c.Mark(key) {
			matched = true
		}
	}
	return matched
}

// ReadyToRun reports whether the proxy may be handed to the submission
// pipeline: a manual trigger short-circuits everything else; otherwise the
// proxy must be waiting with all prerequisites and xtriggers satisfied, its
// clock trigger time reached, and no retry timer pending.
func (p *Proxy) ReadyToRun(now time.Time) bool {
	p.mu.Lock()
	manual := p.ManualTrigger
	status := p.status
	clockOK := p.ClockTriggerTime == nil || !now.Before(*p.ClockTriggerTime)
	retryWaiting := p.retryDeadline != nil && now.Before(*p.retryDeadline)
	xtrigOK := p.xtriggersSatisfiedLocked()
	p.mu.Unlock()

	if manual {
		return true
	}
	return status == Waiting && p.PrereqsSatisfied() && clockOK && xtrigOK && !retryWaiting
}

func (p *Proxy) Hold() error    { return p.transition(EventHold, nil) }
func (p *Proxy) Release() error { return p.transition(EventRelease, nil) }
func (p *Proxy) Expire() error  { return p.transition(EventExpire, nil) }

// EnterQueued parks a runnable proxy in its named queue's tail.
func (p *Proxy) EnterQueued() error { return p.transition(EventQueued, nil) }

// QueueRelease moves a queued proxy to ready (the queue popped it).
func (p *Proxy) QueueRelease() error { return p.transition(EventQueueRelease, nil) }

// EnterReady is used by the pool when a proxy becomes runnable with no
// named queue in play.
func (p *Proxy) EnterReady() error { return p.transition(EventReady, nil) }

// BeginSubmit moves ready -> submitted, incrementing submit_num.
func (p *Proxy) BeginSubmit() error {
	return p.transition(EventSubmit, func() {
		p.SubmitNum++
		p.mark("submitted")
	})
}

// OnSubmitFailed moves submitted -> submit-retrying if submit retries
// remain, else submitted -> submit-failed.
func (p *Proxy) OnSubmitFailed(clock func() time.Time) error {
	p.mu.Lock()
	hasRetry := p.TryNum < len(p.submitRetryDelays)
	p.mu.Unlock()

	if hasRetry {
		return p.transition(EventSubmitFailed, func() {
			p.status = SubmitRetrying // overrides the table's default target
			delay := p.submitRetryDelays[p.TryNum]
			p.TryNum++
			p.armRetryTimer(clock, delay)
		})
	}
	return p.transition(EventSubmitFailed, nil)
}

// SubmitRetryElapsed fires when the retry timer armed by OnSubmitFailed
// reaches its deadline.
func (p *Proxy) SubmitRetryElapsed() error {
	return p.transition(EventSubmitRetryDone, func() { p.retryDeadline = nil })
}

// RetryDue reports whether a retry timer is armed and its deadline has
// passed, letting the scheduler's tick drive SubmitRetryElapsed/RetryElapsed
// without exposing the deadline field itself.
func (p *Proxy) RetryDue(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retryDeadline != nil && !now.Before(*p.retryDeadline)
}

func (p *Proxy) OnStarted() error {
	return p.transition(EventStarted, func() { p.mark("started") })
}

func (p *Proxy) OnSubmissionTimeout() error { return p.transition(EventSubmitTimeout, nil) }

func (p *Proxy) OnSucceeded() error {
	return p.transition(EventSucceeded, func() { p.mark("succeeded") })
}

// OnFailed moves running -> retrying if execution retries remain, else
// running -> failed.
func (p *Proxy) OnFailed(clock func() time.Time) error {
	p.mu.Lock()
	hasRetry := p.TryNum < len(p.executionRetryDelays)
	p.mu.Unlock()

	if hasRetry {
		return p.transition(EventFailed, func() {
			p.status = Retrying
			delay := p.executionRetryDelays[p.TryNum]
			p.TryNum++
			p.armRetryTimer(clock, delay)
		})
	}
	return p.transition(EventFailed, func() { p.mark("failed") })
}

func (p *Proxy) OnExecutionTimeout() error {
	return p.transition(EventExecutionTimeout, func() { p.mark("failed") })
}

// OnVacated handles a preempted/requeued job signal: the proxy drops back
// to submitted with job_vacated set and submit_num unchanged.
func (p *Proxy) OnVacated() error {
	return p.transition(EventVacated, func() { p.JobVacated = true })
}

// RetryElapsed fires when the timer armed by OnFailed reaches its deadline.
func (p *Proxy) RetryElapsed() error {
	return p.transition(EventRetryDone, func() { p.retryDeadline = nil })
}

func (p *Proxy) armRetryTimer(clock func() time.Time, delay cycle.Duration) {
	var d time.Duration
	if delay.Kind == cycle.KindDatetime {
		d = delay.Wall()
	}
	deadline := clock().Add(d)
	p.retryDeadline = &deadline
}

func (p *Proxy) mark(output string) {
	if p.Outputs == nil {
		p.Outputs = map[string]bool{}
	}
	p.Outputs[output] = true
}

// EmitCustom records a custom message as emitted if it is a declared
// output; unknown custom messages are accepted for observability but do
// not satisfy prerequisites.
func (p *Proxy) EmitCustom(message string) (known bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.Outputs[message]; ok {
		p.Outputs[message] = true
		return true
	}
	return false
}

// OutputEmitted reports whether the named output has fired.
func (p *Proxy) OutputEmitted(output string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Outputs[output]
}

// AllRequiredOutputsEmitted checks the given required set (built-ins plus
// any task-declared non-optional outputs) against what actually fired and
// reports the first one missing. Nothing in the pool's reap path calls it.
func (p *Proxy) AllRequiredOutputsEmitted(required []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range required {
		if !p.Outputs[r] {
			return errors.Errorf("%s: required output %q not emitted", p.ID(), r)
		}
	}
	return nil
}
