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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlurmHeterogeneousDirectiveGrouping(t *testing.T) {
	s := NewSlurm()
	conf := JobConf{
		TaskID: "foo.1",
		Directives: map[string]string{
			"-p":               "middle",
			"hetjob_0_--mem":   "1G",
			"hetjob_0_--nodes": "3",
			"hetjob_1_--mem":   "2G",
			"hetjob_1_--nodes": "6",
		},
		ExecutionTimeLimitSec: 200,
	}

	lines := s.FormatDirectives(conf)

	require.Equal(t, []string{
		"#SBATCH --job-name=foo.1",
		"#SBATCH --output=foo.1.out",
		"#SBATCH --error=foo.1.err",
		"#SBATCH --time=3:20",
		"#SBATCH -p=middle",
		"#SBATCH --mem=1G",
		"#SBATCH --nodes=3",
		"#SBATCH hetjob",
		"#SBATCH --mem=2G",
		"#SBATCH --nodes=6",
	}, lines)
}

func TestSlurmParseSubmitID(t *testing.T) {
	s := NewSlurm()
	id, err := s.ParseSubmitIDFromStdout("1234567\n")
	require.NoError(t, err)
	require.Equal(t, "1234567", id)

	_, err = s.ParseSubmitIDFromStdout("sbatch: error: invalid partition\n")
	require.Error(t, err)
}

func TestSlurmFilterPollOutput(t *testing.T) {
	s := NewSlurm()
	live := s.FilterPollOutput("1234567\n1234568\n")
	require.Equal(t, []string{"1234567", "1234568"}, live)
}

func TestRegistryUnknownKey(t *testing.T) {
	r := NewRegistry(NewSlurm(), NewLocal())
	_, err := r.Lookup("pbs")
	require.Error(t, err)

	a, err := r.Lookup("slurm")
	require.NoError(t, err)
	require.Equal(t, "slurm", a.Name())
}
