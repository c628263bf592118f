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

package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cylc/cylc-go/internal/broadcast"
	"github.com/cylc/cylc-go/internal/cycle"
	"github.com/cylc/cylc-go/internal/scheduler"
	"github.com/cylc/cylc-go/pkg/ui"
)

// RunConsole reads control commands from stdin while a workflow plays and
// dispatches them to the scheduler's command API. It returns when stdin
// closes or ctx is cancelled.
func RunConsole(ctx context.Context, sched *scheduler.Scheduler, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		dispatch(sched, cancel, strings.Fields(line))
	}
}

func dispatch(sched *scheduler.Scheduler, cancel context.CancelFunc, fields []string) {
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "hold":
		if len(args) == 0 {
			ui.PrintOnError("hold", sched.HoldAll())
			return
		}
		ui.PrintOnError("hold "+args[0], sched.Hold(args[0]))
	case "release":
		if len(args) == 0 {
			ui.PrintOnError("release", sched.ReleaseAll())
			return
		}
		ui.PrintOnError("release "+args[0], sched.Release(args[0]))
	case "trigger":
		if len(args) != 1 {
			ui.Warn("usage: trigger <name.cycle>")
			return
		}
		ui.PrintOnError("trigger "+args[0], sched.Trigger(args[0]))
	case "poll":
		if len(args) != 1 {
			ui.Warn("usage: poll <name.cycle>")
			return
		}
		ui.PrintOnError("poll "+args[0], sched.Poll(args[0]))
	case "kill":
		if len(args) != 1 {
			ui.Warn("usage: kill <name.cycle>")
			return
		}
		ui.PrintOnError("kill "+args[0], sched.Kill(args[0]))
	case "stop":
		stop(sched, cancel, args)
	case "broadcast":
		broadcastCmd(sched, args)
	case "status":
		status(sched)
	default:
		ui.Warn("unknown command %q", cmd)
	}
}

func stop(sched *scheduler.Scheduler, cancel context.CancelFunc, args []string) {
	if len(args) == 2 && args[0] == "--at" {
		point, err := cycle.ParsePoint(cycle.Gregorian, args[1])
		if err != nil {
			ui.PrintOnError("stop --at", err)
			return
		}
		ui.PrintOnError("stop --at "+args[1], sched.StopAt(point))
		return
	}
	now := len(args) == 1 && args[0] == "--now"
	ui.PrintOnError("stop", sched.Stop(now))
	cancel()
}

func broadcastCmd(sched *scheduler.Scheduler, args []string) {
	if len(args) == 0 {
		ui.Warn("usage: broadcast put|clear|expire|show ...")
		return
	}
	switch args[0] {
	case "put":
		// broadcast put <cycle> <namespace> key=value ...
		if len(args) < 4 {
			ui.Warn("usage: broadcast put <cycle> <namespace> key=value ...")
			return
		}
		settings := broadcast.Settings{}
		for _, kv := range args[3:] {
			k, v, found := strings.Cut(kv, "=")
			if !found {
				ui.Warn("malformed setting %q", kv)
				return
			}
			settings[k] = v
		}
		modified, bad, err := sched.BroadcastPut([]string{args[1]}, []string{args[2]}, settings)
		ui.PrintOnError("broadcast put", err)
		reportBroadcast(modified, bad)
	case "clear":
		if len(args) < 3 {
			ui.Warn("usage: broadcast clear <cycle> <namespace> [keys...]")
			return
		}
		cleared, bad, err := sched.BroadcastClear([]string{args[1]}, []string{args[2]}, args[3:])
		ui.PrintOnError("broadcast clear", err)
		reportBroadcast(cleared, bad)
	case "expire":
		if len(args) != 2 {
			ui.Warn("usage: broadcast expire <cutoff>")
			return
		}
		cleared, err := sched.BroadcastExpire(args[1])
		ui.PrintOnError("broadcast expire", err)
		reportBroadcast(cleared, nil)
	case "show":
		cps, err := sched.BroadcastShow()
		ui.PrintOnError("broadcast show", err)
		rows := make([][]string, 0, len(cps))
		for _, cp := range cps {
			rows = append(rows, []string{cp})
		}
		ui.Table([]string{"CYCLE"}, rows)
	default:
		ui.Warn("unknown broadcast subcommand %q", args[0])
	}
}

func reportBroadcast(changes []broadcast.Change, bad []string) {
	for _, c := range changes {
		ui.Success("%s %s %v", c.CyclePoint, c.Namespace, c.Settings)
	}
	for _, b := range bad {
		ui.Warn("rejected option %q", b)
	}
}

func status(sched *scheduler.Scheduler) {
	rows := [][]string{}
	for _, p := range sched.Proxies() {
		rows = append(rows, []string{
			p.ID(),
			ui.StatusColor(p.Status().String()),
			fmt.Sprintf("%d", p.SubmitNum),
			fmt.Sprintf("%d", p.TryNum),
		})
	}
	ui.Table([]string{"TASK", "STATUS", "SUBMITS", "TRIES"}, rows)
}
