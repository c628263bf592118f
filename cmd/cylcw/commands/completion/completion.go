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

package completion

import (
	"os"

	"github.com/spf13/cobra"
)

const completionDesc = `
Generate autocompletion scripts for cylcw for the specified shell.
`

const bashCompDesc = `
Generate the autocompletion script for cylcw for the bash shell.
To load completions in your current shell session:
    source <(cylcw completion bash)
To load completions for every new session, execute once:
- Linux:
      cylcw completion bash > /etc/bash_completion.d/cylcw.bash
- MacOS:
      cylcw completion bash > /usr/local/etc/bash_completion.d/cylcw.bash
`

const zshCompDesc = `
Generate the autocompletion script for cylcw for the zsh shell.
To load completions in your current shell session:
    source <(cylcw completion zsh)
`

const fishCompDesc = `
Generate the autocompletion script for cylcw for the fish shell.
To load completions in your current shell session:
    cylcw completion fish | source
`

func NewCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion",
		Short: "Generate autocompletion scripts for the specified shell",
		Long:  completionDesc,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "bash",
			Short: "Generate autocompletion script for bash",
			Long:  bashCompDesc,
			RunE: func(cmd *cobra.Command, args []string) error {
				return cmd.Root().GenBashCompletion(os.Stdout)
			},
		},
		&cobra.Command{
			Use:   "zsh",
			Short: "Generate autocompletion script for zsh",
			Long:  zshCompDesc,
			RunE: func(cmd *cobra.Command, args []string) error {
				return cmd.Root().GenZshCompletion(os.Stdout)
			},
		},
		&cobra.Command{
			Use:   "fish",
			Short: "Generate autocompletion script for fish",
			Long:  fishCompDesc,
			RunE: func(cmd *cobra.Command, args []string) error {
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			},
		},
	)

	return cmd
}
