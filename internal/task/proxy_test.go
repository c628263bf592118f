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
	"testing"
	"time"

	"github.com/cylc/cylc-go/internal/cycle"
)

func TestLinearSubmitRetrySequence(t *testing.T) {
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	delays := []cycle.Duration{
		{Kind: cycle.KindDatetime, Seconds: 10},
		{Kind: cycle.KindDatetime, Seconds: 20},
	}
	p := New("foo", cycle.NewIntegerPoint(1), nil, nil, delays, nil)

	if err := p.EnterReady(); err != nil {
		t.Fatal(err)
	}
	if err := p.BeginSubmit(); err != nil {
		t.Fatal(err)
	}
	if p.Status() != Submitted {
		t.Fatalf("got %s", p.Status())
	}

	if err := p.OnSubmitFailed(clock); err != nil {
		t.Fatal(err)
	}
	if p.Status() != SubmitRetrying {
		t.Fatalf("got %s", p.Status())
	}

	now = now.Add(11 * time.Second)
	if err := p.SubmitRetryElapsed(); err != nil {
		t.Fatal(err)
	}
	if p.Status() != Waiting {
		t.Fatalf("got %s", p.Status())
	}

	if err := p.EnterReady(); err != nil {
		t.Fatal(err)
	}
	if err := p.BeginSubmit(); err != nil {
		t.Fatal(err)
	}
	if err := p.OnSubmitFailed(clock); err != nil {
		t.Fatal(err)
	}
	if p.Status() != SubmitRetrying {
		t.Fatalf("got %s", p.Status())
	}

	now = now.Add(21 * time.Second)
	if err := p.SubmitRetryElapsed(); err != nil {
		t.Fatal(err)
	}
	if err := p.EnterReady(); err != nil {
		t.Fatal(err)
	}
	if err := p.BeginSubmit(); err != nil {
		t.Fatal(err)
	}
	if err := p.OnSubmitFailed(clock); err != nil {
		t.Fatal(err)
	}
	if p.Status() != SubmitFailed {
		t.Fatalf("final status should be submit-failed, got %s", p.Status())
	}
}

func TestVacatedDropsBackToSubmitted(t *testing.T) {
	p := New("foo", cycle.NewIntegerPoint(1), nil, nil, nil, nil)
	if err := p.EnterReady(); err != nil {
		t.Fatal(err)
	}
	if err := p.BeginSubmit(); err != nil {
		t.Fatal(err)
	}
	submits := p.SubmitNum
	if err := p.OnStarted(); err != nil {
		t.Fatal(err)
	}
	if err := p.OnVacated(); err != nil {
		t.Fatal(err)
	}
	if p.Status() != Submitted {
		t.Fatalf("got %s", p.Status())
	}
	if !p.JobVacated {
		t.Fatal("job_vacated should be set")
	}
	if p.SubmitNum != submits {
		t.Fatalf("submit_num changed: %d -> %d", submits, p.SubmitNum)
	}
}

func TestQueuedPathToReady(t *testing.T) {
	p := New("foo", cycle.NewIntegerPoint(1), nil, nil, nil, nil)
	if err := p.EnterQueued(); err != nil {
		t.Fatal(err)
	}
	if p.Status() != Queued {
		t.Fatalf("got %s", p.Status())
	}
	if err := p.QueueRelease(); err != nil {
		t.Fatal(err)
	}
	if p.Status() != Ready {
		t.Fatalf("got %s", p.Status())
	}
}

func TestXTriggerGatesReadiness(t *testing.T) {
	p := New("foo", cycle.NewIntegerPoint(1), nil, nil, nil, nil)
	p.SetXTriggers([]string{"clock_1h"})

	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if p.ReadyToRun(now) {
		t.Fatal("unsatisfied xtrigger should gate readiness")
	}
	p.SatisfyXTrigger("clock_1h")
	if !p.ReadyToRun(now) {
		t.Fatal("satisfied xtrigger should release the gate")
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	p := New("foo", cycle.NewIntegerPoint(1), nil, nil, nil, nil)
	if err := p.BeginSubmit(); err == nil {
		t.Fatal("expected error submitting from waiting")
	}
}

func TestCustomMessageDoesNotSatisfyUnknownOutput(t *testing.T) {
	p := New("foo", cycle.NewIntegerPoint(1), nil, []string{"data-ready"}, nil, nil)
	if p.EmitCustom("unexpected-chatter") {
		t.Fatal("unknown custom message should not be 'known'")
	}
	if p.OutputEmitted("data-ready") {
		t.Fatal("data-ready should not yet be emitted")
	}
	if !p.EmitCustom("data-ready") {
		t.Fatal("declared custom output should be recognized")
	}
	if !p.OutputEmitted("data-ready") {
		t.Fatal("data-ready should now be emitted")
	}
}
