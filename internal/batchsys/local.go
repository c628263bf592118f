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

package batchsys

import (
	"fmt"
	"strings"
)

// Local runs the job script directly as a background shell process,
// reporting its own PID as the submit id; used for tests and single-host
// workflows with no real scheduler underneath.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (*Local) Name() string { return "background" }

func (*Local) FormatDirectives(JobConf) []string { return nil }

func (*Local) SubmitCommand(conf JobConf) []string {
	return []string{"/bin/sh", "-c", fmt.Sprintf("%s & echo $!", conf.Script)}
}

func (*Local) PollCommand(ids []string) []string {
	return []string{"/bin/sh", "-c", "ps -o pid= -p " + strings.Join(ids, ",")}
}

func (*Local) KillCommand(id string) []string {
	return []string{"kill", "-TERM", id}
}

func (*Local) ParseSubmitIDFromStdout(stdout string) (string, error) {
	id := strings.TrimSpace(stdout)
	if id == "" {
		return "", fmt.Errorf("local: empty submit output")
	}
	return id, nil
}

func (*Local) FilterPollOutput(stdout string) []string {
	var ids []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			ids = append(ids, line)
		}
	}
	return ids
}

func (*Local) FailSignals() []string { return []string{"TERM", "KILL"} }
