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

package job

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
)

// ScriptData is everything the job-script template needs. Sections render
// in a fixed order: shebang, header comments, directives, prelude exports,
// the cylc_env function, optional user env and script-fragment functions,
// then the epilogue that sources the runtime library.
type ScriptData struct {
	Shell string // shebang interpreter, e.g. "/bin/bash"

	HeaderComments []string
	DirectiveLines []string // adapter-supplied, via batchsys.Adapter.FormatDirectives

	CylcDir        string
	CylcVersion    string
	Debug          bool
	CopyableEnv    map[string]string
	FailSignals    []string
	VacationSignals []string

	StaticEnv         map[string]string
	UseUTC            bool
	SuiteRunDir       string
	SuiteWorkDirRoot  string
	SuiteDefPath      string
	SuiteUUID         string
	TaskJob           string
	NamespaceHierarchy string
	TaskDependencies  string
	TryNumber         int
	ParamEnv          map[string]string

	UserEnv map[string]string // value may be tilde-prefixed; preserved verbatim

	GlobalInitScript string

	InitScript string
	EnvScript  string
	ErrScript  string
	PreScript  string
	Script     string
	PostScript string
	ExitScript string

	RuntimeLibPath string
	JobDir         string
}

var sprigFuncs = sprig.TxtFuncMap()

const scriptTemplate = `#!{{.Shell}}
{{- range .HeaderComments}}
# {{.}}
{{- end}}
{{range .DirectiveLines}}{{.}}
{{end -}}
export CYLC_DIR={{.CylcDir | quote}}
export CYLC_VERSION={{.CylcVersion | quote}}
{{- if .Debug}}
export CYLC_DEBUG=true
{{- end}}
{{- range $k, $v := .CopyableEnv}}
export {{$k}}={{$v | quote}}
{{- end}}
export CYLC_FAIL_SIGNALS="{{join " " .FailSignals}}"
{{- if .VacationSignals}}
export CYLC_VACATION_SIGNALS="{{join " " .VacationSignals}}"
{{- end}}

cylc__job__inst__cylc_env() {
{{- range $k, $v := .StaticEnv}}
    export {{$k}}={{$v | quote}}
{{- end}}
{{- if .UseUTC}}
    export TZ=UTC
{{- end}}
    export CYLC_SUITE_RUN_DIR={{.SuiteRunDir | quote}}
    export CYLC_SUITE_WORK_DIR_ROOT={{.SuiteWorkDirRoot | quote}}
    export CYLC_SUITE_DEF_PATH={{.SuiteDefPath | quote}}
    export CYLC_SUITE_UUID={{.SuiteUUID | quote}}
    export CYLC_TASK_JOB={{.TaskJob | quote}}
    export CYLC_TASK_NAMESPACE_HIERARCHY={{.NamespaceHierarchy | quote}}
    export CYLC_TASK_DEPENDENCIES={{.TaskDependencies | quote}}
    export CYLC_TASK_TRY_NUMBER={{.TryNumber}}
{{- range $k, $v := .ParamEnv}}
    export {{$k}}={{$v | quote}}
{{- end}}
}
{{if .UserEnv}}
cylc__job__inst__user_env() {
{{- range $k, $v := .UserEnv}}
    export {{$k}}={{tildeQuote $v}}
{{- end}}
}
{{end -}}
{{if .GlobalInitScript}}
cylc__job__inst__global_init_script() {
{{.GlobalInitScript}}
}
{{end -}}
{{if .InitScript}}
cylc__job__inst__init_script() {
{{.InitScript}}
}
{{end -}}
{{if .EnvScript}}
cylc__job__inst__env_script() {
{{.EnvScript}}
}
{{end -}}
{{if .ErrScript}}
cylc__job__inst__err_script() {
{{.ErrScript}}
}
{{end -}}
{{if .PreScript}}
cylc__job__inst__pre_script() {
{{.PreScript}}
}
{{end -}}
{{if .Script}}
cylc__job__inst__script() {
{{.Script}}
}
{{end -}}
{{if .PostScript}}
cylc__job__inst__post_script() {
{{.PostScript}}
}
{{end -}}
{{if .ExitScript}}
cylc__job__inst__exit_script() {
{{.ExitScript}}
}
{{end -}}

. {{.RuntimeLibPath}}
cylc__job__main
#EOF {{.JobDir}}
`

var scriptTmpl = template.Must(
	template.New("jobscript").
		Funcs(sprigFuncs).
		Funcs(template.FuncMap{
			"join":       func(sep string, elems []string) string { return strings.Join(elems, sep) },
			"tildeQuote": tildeQuote,
		}).
		Parse(scriptTemplate))

// tildeQuote quotes a user env value so that a leading `~foo/...` still
// undergoes tilde expansion while any internal whitespace is protected.
func tildeQuote(v string) string {
	if strings.HasPrefix(v, "~") {
		i := strings.IndexByte(v, '/')
		if i < 0 {
			return v
		}
		return v[:i+1] + "\"" + v[i+1:] + "\""
	}
	return "\"" + v + "\""
}

// Render produces the job script as a single POSIX shell file.
func Render(data ScriptData) (string, error) {
	var out strings.Builder
	if err := scriptTmpl.Execute(&out, data); err != nil {
		return "", errors.Wrapf(err, "job: render script for %s", data.TaskJob)
	}
	return out.String(), nil
}
