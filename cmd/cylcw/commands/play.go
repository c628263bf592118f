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
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cylc/cylc-go/internal/batchsys"
	"github.com/cylc/cylc-go/internal/cycle"
	"github.com/cylc/cylc-go/internal/graph"
	"github.com/cylc/cylc-go/internal/logging"
	"github.com/cylc/cylc-go/internal/procpool"
	"github.com/cylc/cylc-go/internal/scheduler"
	"github.com/cylc/cylc-go/internal/xtrigger"
	"github.com/cylc/cylc-go/pkg/ui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type PlayOptions struct {
	Graph        string
	InitialPoint string
	Period       string
	BatchSystem  string
	Script       string
	RunDir       string
	Runahead     int
	HoldAll      bool

	Params   []string // "i=0,1"
	Families []string // "FAM=m1,m2"
	Queues   []string // "main=4"

	SubmitRetries []string
	ExecRetries   []string

	PoolSize    int
	PoolTimeout time.Duration
}

func PopulatePlayFlags(cmd *cobra.Command, options *PlayOptions) {
	cmd.Flags().StringVarP(&options.Graph, "graph", "g", "", "dependency graph text, newline-separated")
	cmd.Flags().StringVar(&options.InitialPoint, "initial-point", "1", "initial cycle point (integer or ISO-8601 datetime)")
	cmd.Flags().StringVar(&options.Period, "period", "P1D", "recurrence period for datetime cycling")
	cmd.Flags().StringVar(&options.BatchSystem, "batch-system", "background", "batch system key for every task")
	cmd.Flags().StringVar(&options.Script, "script", "true", "job script body for every task")
	cmd.Flags().StringVar(&options.RunDir, "run-dir", "/tmp/cylcw-run", "suite run directory")
	cmd.Flags().IntVar(&options.Runahead, "runahead", 3, "max active cycle points")
	cmd.Flags().BoolVar(&options.HoldAll, "hold", false, "start with the whole workflow held")

	cmd.Flags().StringSliceVar(&options.Params, "param", nil, "parameter domain, e.g. i=0,1")
	cmd.Flags().StringSliceVar(&options.Families, "family", nil, "family members, e.g. FAM=m1,m2")
	cmd.Flags().StringSliceVar(&options.Queues, "queue", nil, "queue limit, e.g. main=4")

	cmd.Flags().StringSliceVar(&options.SubmitRetries, "submit-retry", nil, "submission retry delays (ISO-8601 durations)")
	cmd.Flags().StringSliceVar(&options.ExecRetries, "retry", nil, "execution retry delays (ISO-8601 durations)")

	cmd.Flags().IntVar(&options.PoolSize, "pool-size", 4, "process pool size")
	cmd.Flags().DurationVar(&options.PoolTimeout, "pool-timeout", 10*time.Minute, "per-command timeout")
}

func NewPlayCmd() *cobra.Command {
	var options PlayOptions

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Run a workflow until it completes or stalls",
		Long:  "Runs the workflow defined by --graph, reading control commands (hold, release, trigger, poll, kill, stop, broadcast) from stdin while it runs.",
		Args: func(cmd *cobra.Command, args []string) error {
			if options.Graph == "" {
				ui.Failf("Please pass a dependency graph via --graph")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			ui.Logo()

			defs, initial, err := BuildDefinitions(&options)
			ui.ExitOnError("Building workflow definitions", err)

			if _, statErr := os.Stat(options.RunDir); statErr != nil {
				logging.Diag.Warnf("run directory %s does not exist yet; job scripts will be staged there", options.RunDir)
			}

			log, sync := logging.New(verbose)
			defer func() { _ = sync() }()

			sched := scheduler.New(scheduler.Config{
				Definitions:         defs,
				InitialPoint:        initial,
				RunaheadWindowSteps: options.Runahead,
				Queues:              parseQueues(options.Queues),
				DefaultQueue:        defaultQueueName(options.Queues),
				ProcPool: procpool.Config{
					Size:    options.PoolSize,
					Timeout: options.PoolTimeout,
				},
				Batch:      batchsys.NewRegistry(batchsys.NewLocal(), batchsys.NewSlurm()),
				XTriggers:  xtrigger.NewRegistry(),
				Streamer:   noopStreamer{},
				Namespaces: namespacesOf(defs, options.Families),
				Ancestry:   ancestryOf(options.Families),
				RunDir:     options.RunDir,
				StallHandler: func() {
					ui.Warn("workflow stalled: no task is runnable")
				},
				StartHeld: options.HoldAll,
				Logger:    log,
			})

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			go RunConsole(ctx, sched, cancel)

			ui.Info("starting workflow at %s", initial.String())
			err = sched.Play(ctx, initial)
			ui.ExitOnError("Running workflow", err)
		},
	}

	PopulatePlayFlags(cmd, &options)

	return cmd
}

// BuildDefinitions turns the play flags into per-task definitions: one
// shared sequence anchored at the initial point, the parsed graph's
// prerequisites, and uniform submission configuration.
func BuildDefinitions(options *PlayOptions) (map[string]*graph.Definition, cycle.Point, error) {
	initial, err := cycle.ParsePoint(cycle.Gregorian, options.InitialPoint)
	if err != nil {
		return nil, cycle.Point{}, err
	}

	var period cycle.Duration
	if initial.Kind == cycle.KindInteger {
		period = cycle.IntegerDuration(1)
	} else {
		period, err = cycle.ParseISODuration(options.Period)
		if err != nil {
			return nil, cycle.Point{}, err
		}
	}
	seq, err := cycle.NewPeriodicSequence(period, &initial, nil, nil)
	if err != nil {
		return nil, cycle.Point{}, err
	}

	families, err := parsePairs(options.Families)
	if err != nil {
		return nil, cycle.Point{}, err
	}
	familyMap := graph.FamilyMap{}
	for name, members := range families {
		familyMap[name] = members
	}

	params, err := parsePairs(options.Params)
	if err != nil {
		return nil, cycle.Point{}, err
	}
	domain := graph.ParamDomain{}
	for name, values := range params {
		domain[name] = values
	}

	defs, err := graph.Build([]graph.Section{{Sequence: seq, Text: options.Graph}}, familyMap, domain)
	if err != nil {
		return nil, cycle.Point{}, err
	}

	submitRetries, err := parseDelays(options.SubmitRetries)
	if err != nil {
		return nil, cycle.Point{}, err
	}
	execRetries, err := parseDelays(options.ExecRetries)
	if err != nil {
		return nil, cycle.Point{}, err
	}

	for _, def := range defs {
		def.Submission.BatchSystem = options.BatchSystem
		def.Submission.Script = options.Script
		def.SubmitRetryDelays = submitRetries
		def.ExecutionRetryDelays = execRetries
	}

	return defs, initial, nil
}

func parsePairs(pairs []string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, pair := range pairs {
		name, values, found := strings.Cut(pair, "=")
		if !found || name == "" || values == "" {
			return nil, errors.Errorf("malformed %q, want name=v1,v2", pair)
		}
		out[name] = strings.Split(values, ",")
	}
	return out, nil
}

func parseQueues(pairs []string) map[string]int {
	out := map[string]int{}
	for _, pair := range pairs {
		name, limit, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		n, err := strconv.Atoi(limit)
		if err != nil {
			n = 0
		}
		out[name] = n
	}
	return out
}

func defaultQueueName(pairs []string) string {
	if len(pairs) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(pairs[0], "=")
	return name
}

func parseDelays(specs []string) ([]cycle.Duration, error) {
	var out []cycle.Duration
	for _, s := range specs {
		d, err := cycle.ParseISODuration(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func namespacesOf(defs map[string]*graph.Definition, familyPairs []string) []string {
	names := []string{"root"}
	families, _ := parsePairs(familyPairs)
	for f := range families {
		names = append(names, f)
	}
	for name := range defs {
		names = append(names, name)
	}
	return names
}

// ancestryOf resolves a task name to its namespace chain: root, then the
// family it belongs to (if any), then itself.
func ancestryOf(familyPairs []string) func(taskName string) []string {
	families, _ := parsePairs(familyPairs)
	memberOf := map[string]string{}
	for f, members := range families {
		for _, m := range members {
			memberOf[m] = f
		}
	}
	return func(taskName string) []string {
		chain := []string{"root"}
		if f, ok := memberOf[taskName]; ok {
			chain = append(chain, f)
		}
		return append(chain, taskName)
	}
}

// noopStreamer satisfies the remote-init transport for local-only runs.
type noopStreamer struct{}

func (noopStreamer) Stream(ctx context.Context, host, user string, bundle []byte) error {
	return nil
}
