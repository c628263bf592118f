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

// Package events implements the single-threaded cooperative event loop: a
// typed event queue plus a timer heap. The loop suspends only at the queue
// wait, the periodic poll tick, and timer deadlines; each drained callback
// runs to completion before the next suspension.
package events

import (
	"container/heap"
	"context"
	"time"
)

// Kind classifies an Event for dispatch.
type Kind int

const (
	KindTaskMessage Kind = iota
	KindCommand
	KindTimer
	KindProcessPoolTick
)

// Event is one item drained by the loop in a single tick.
type Event struct {
	Kind    Kind
	Payload interface{}
}

// Handler processes one Event to completion before the loop suspends
// again.
type Handler func(Event)

// timer is one armed deadline in the loop's timer heap.
type timer struct {
	deadline time.Time
	fire     func()
	index    int
}

type timerHeap []*timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// kindArmTimer is an internal event kind carrying a timer to insert into
// the heap; it never reaches the caller-supplied Handler.
const kindArmTimer Kind = -1

// Loop owns the event queue and the timer heap; nothing outside the loop
// goroutine ever touches either directly. AfterFunc posts an arm-request
// through the same queue other events use, rather than mutating the heap
// itself.
type Loop struct {
	queue   chan Event
	timers  timerHeap
	handler Handler
	onTick  func() // invoked when the poll interval elapses with no other wake, e.g. the process-pool Process() tick
}

// New builds a Loop with the given queue depth and per-event handler.
func New(queueDepth int, handler Handler, onTick func()) *Loop {
	return &Loop{
		queue:   make(chan Event, queueDepth),
		handler: handler,
		onTick:  onTick,
	}
}

// Post enqueues an event for the loop to process on its next tick. Safe to
// call from any goroutine; worker goroutines marshal their results back to
// the loop through this queue.
func (l *Loop) Post(ev Event) {
	l.queue <- ev
}

// AfterFunc arms a timer that fires fire once d has elapsed, measured from
// when this call is made; the loop inserts it into its heap when it drains
// the arm request. Safe to call from any goroutine.
func (l *Loop) AfterFunc(d time.Duration, fire func()) {
	l.queue <- Event{Kind: kindArmTimer, Payload: &timer{deadline: time.Now().Add(d), fire: fire}}
}

// Run drives the loop until ctx is cancelled. Each iteration suspends at
// whichever comes first: the next queued event, the next timer deadline,
// or a fixed poll interval for the process-pool tick.
func (l *Loop) Run(ctx context.Context, pollInterval time.Duration) {
	for {
		var timerC <-chan time.Time
		if len(l.timers) > 0 {
			timerC = time.After(time.Until(l.timers[0].deadline))
		}

		select {
		case <-ctx.Done():
			return
		case ev := <-l.queue:
			if ev.Kind == kindArmTimer {
				heap.Push(&l.timers, ev.Payload.(*timer))
				continue
			}
			l.handler(ev)
		case <-timerC:
			due := heap.Pop(&l.timers).(*timer)
			due.fire()
		case <-time.After(pollInterval):
			if l.onTick != nil {
				l.onTick()
			}
		}
	}
}

// Pending reports the number of queued, undrained events (diagnostic only).
func (l *Loop) Pending() int { return len(l.queue) }
