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

package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParamDomain declares, for each parameter name, its ordered list of
// string values. A name of form foo<m,n> expands to the Cartesian product
// of the declared lists.
type ParamDomain map[string][]string

var paramRefPattern = regexp.MustCompile(`<([^<>]*)>`)

// ExpandParameters rewrites every "name<p1,p2,...>" reference in src into
// one line per valid combination of the referenced parameters' declared
// domain, resolving offsets like "<i-1,j>" against the domain's order.
// Combinations where an offset falls outside the declared domain are
// dropped silently: the instances they would have fed become graph
// sources, not parse errors.
func ExpandParameters(src string, domain ParamDomain) (string, error) {
	var outLines []string

	for lineNo, rawLine := range strings.Split(src, "\n") {
		if strings.TrimSpace(stripComment(rawLine)) == "" {
			outLines = append(outLines, rawLine)
			continue
		}

		paramNames := referencedParams(rawLine)
		if len(paramNames) == 0 {
			outLines = append(outLines, rawLine)
			continue
		}

		combos, err := cartesian(paramNames, domain, lineNo+1)
		if err != nil {
			return "", err
		}

		for _, combo := range combos {
			expanded, ok, err := substitute(rawLine, combo, domain, lineNo+1)
			if err != nil {
				return "", err
			}
			if ok {
				outLines = append(outLines, expanded)
			}
		}
	}

	return strings.Join(outLines, "\n"), nil
}

func referencedParams(line string) []string {
	seen := map[string]bool{}
	var order []string
	for _, m := range paramRefPattern.FindAllStringSubmatch(line, -1) {
		for _, item := range strings.Split(m[1], ",") {
			name, _ := splitOffset(strings.TrimSpace(item))
			if name != "" && !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
		}
	}
	sort.Strings(order)
	return order
}

func splitOffset(item string) (name string, offset int) {
	for i := 0; i < len(item); i++ {
		if item[i] == '+' || item[i] == '-' {
			n, err := strconv.Atoi(item[i:])
			if err == nil {
				return item[:i], n
			}
		}
	}
	return item, 0
}

func cartesian(paramNames []string, domain ParamDomain, line int) ([]map[string]string, error) {
	combos := []map[string]string{{}}
	for _, name := range paramNames {
		values, ok := domain[name]
		if !ok {
			return nil, newParseError(line, name, fmt.Sprintf("undeclared parameter %q", name))
		}
		var next []map[string]string
		for _, c := range combos {
			for _, v := range values {
				nc := make(map[string]string, len(c)+1)
				for k, vv := range c {
					nc[k] = vv
				}
				nc[name] = v
				next = append(next, nc)
			}
		}
		combos = next
	}
	return combos, nil
}

// substitute replaces every <...> group in line using combo as the base
// binding for each referenced parameter, applying any offset against
// domain[name]'s order. ok is false if any offset resolves outside the
// declared domain.
func substitute(line string, combo map[string]string, domain ParamDomain, lineNo int) (string, bool, error) {
	var failed bool
	result := paramRefPattern.ReplaceAllStringFunc(line, func(group string) string {
		inner := group[1 : len(group)-1]
		var parts []string
		for _, item := range strings.Split(inner, ",") {
			item = strings.TrimSpace(item)
			name, offset := splitOffset(item)
			baseVal, ok := combo[name]
			if !ok {
				failed = true
				return group
			}
			val := baseVal
			if offset != 0 {
				values := domain[name]
				idx := indexOf(values, baseVal)
				newIdx := idx + offset
				if idx < 0 || newIdx < 0 || newIdx >= len(values) {
					failed = true
					return group
				}
				val = values[newIdx]
			}
			parts = append(parts, name+val)
		}
		return "_" + strings.Join(parts, "_")
	})

	if failed {
		return "", false, nil
	}
	return result, true, nil
}

func indexOf(values []string, v string) int {
	for i, x := range values {
		if x == v {
			return i
		}
	}
	return -1
}

// IntRangeDomain is a convenience constructor for a parameter whose values
// are the integers [0, n).
func IntRangeDomain(n int) []string {
	if n < 0 {
		panic(errors.New("negative parameter range").Error())
	}
	values := make([]string, n)
	for i := 0; i < n; i++ {
		values[i] = strconv.Itoa(i)
	}
	return values
}
