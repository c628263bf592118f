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
	"sort"

	"github.com/cylc/cylc-go/pkg/ui"
	"github.com/spf13/cobra"
)

func NewValidateCmd() *cobra.Command {
	var options PlayOptions

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a workflow definition without running it",
		Long:  `Validate parses the graph, expands parameters and families, and reports the resulting task definitions in a dry-run mode.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if options.Graph == "" {
				ui.Failf("Please pass a dependency graph via --graph")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			defs, initial, err := BuildDefinitions(&options)
			ui.ExitOnError("Validating workflow", err)

			names := make([]string, 0, len(defs))
			for name := range defs {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				def := defs[name]
				prereqs := ""
				if combined := def.CombinedPrereq(); combined != nil {
					prereqs = combined.String()
				}
				rows = append(rows, []string{name, prereqs})
			}
			ui.Table([]string{"TASK", "PREREQUISITES"}, rows)

			ui.Success("workflow validated, %d tasks from %s", len(defs), initial.String())
		},
	}

	PopulatePlayFlags(cmd, &options)

	return cmd
}
