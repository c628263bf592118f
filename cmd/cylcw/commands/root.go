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
	"github.com/cylc/cylc-go/cmd/cylcw/commands/completion"
	"github.com/cylc/cylc-go/pkg/ui"
	"github.com/spf13/cobra"
)

var verbose bool

// NewRootCmd builds the cylcw command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cylcw",
		Short: "Run and control cycling workflows",
		Long:  `cylcw runs a cycling workflow: it expands the dependency graph per cycle point, submits jobs through batch-system adapters, and drives every task instance through its lifecycle.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.SetVerbose(verbose)
		},
		Run: func(cmd *cobra.Command, args []string) {
			ui.Logo()

			err := cmd.Help()
			ui.PrintOnError("Displaying help", err)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print verbose diagnostics")

	cmd.AddCommand(NewPlayCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(completion.NewCompletionCmd())

	return cmd
}
