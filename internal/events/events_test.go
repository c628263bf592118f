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

package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopProcessesEventsInArrivalOrder(t *testing.T) {
	var got []int
	done := make(chan struct{})

	l := New(8, func(ev Event) {
		got = append(got, ev.Payload.(int))
		if len(got) == 3 {
			close(done)
		}
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx, time.Hour)

	l.Post(Event{Kind: KindTaskMessage, Payload: 1})
	l.Post(Event{Kind: KindTaskMessage, Payload: 2})
	l.Post(Event{Kind: KindTaskMessage, Payload: 3})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("events never drained")
	}
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestAfterFuncFiresInDeadlineOrder(t *testing.T) {
	var got []string
	done := make(chan struct{})

	l := New(1, func(Event) {}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx, time.Hour)

	l.AfterFunc(30*time.Millisecond, func() { got = append(got, "second") })
	l.AfterFunc(10*time.Millisecond, func() {
		got = append(got, "first")
	})

	go func() {
		time.Sleep(60 * time.Millisecond)
		close(done)
	}()
	<-done
	require.Equal(t, []string{"first", "second"}, got)
}
