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
	"sort"

	"github.com/cylc/cylc-go/internal/cycle"
	"github.com/pkg/errors"
)

// Section is one "graph text under a recurrence" block, matching cylc's
// "[[[<sequence>]]]\n    graph = ..." config shape (the config loader
// itself is out of scope; the scheduler hands Sections to Build already
// parsed out of its typed nested map).
type Section struct {
	Sequence *cycle.Sequence
	Text     string
}

// Build expands parameters, resolves family references, parses every
// section's graph text, and folds the result into one Definition per task
// name. Per-name metadata not carried by the graph itself (retries,
// submission config, env, oneoff) is filled in afterward by the caller,
// which already has it from the (out-of-scope) config loader; Build only
// owns the graph-derived fields (Sequences, Prereqs, Outputs).
func Build(sections []Section, families FamilyMap, domain ParamDomain) (map[string]*Definition, error) {
	defs := map[string]*Definition{}

	ensure := func(name string) *Definition {
		d, ok := defs[name]
		if !ok {
			d = &Definition{Name: name}
			defs[name] = d
		}
		return d
	}

	for _, sec := range sections {
		text := sec.Text
		if len(domain) > 0 {
			expanded, err := ExpandParameters(text, domain)
			if err != nil {
				return nil, err
			}
			text = expanded
		}

		edges, err := Parse(text)
		if err != nil {
			return nil, err
		}

		edges = ExpandFamilies(edges, families)

		for _, e := range edges {
			d := ensure(e.Downstream)
			d.Sequences = appendSequence(d.Sequences, sec.Sequence)
			d.Prereqs = append(d.Prereqs, ResolveFinish(e.Upstream))

			for _, leaf := range Leaves(e.Upstream) {
				if leaf.UpstreamName == e.Downstream {
					return nil, errors.Errorf("task %q cannot depend on itself", e.Downstream)
				}
				ensure(leaf.UpstreamName).Sequences = appendSequence(defs[leaf.UpstreamName].Sequences, sec.Sequence)
			}
		}
	}

	return defs, nil
}

func appendSequence(existing []*cycle.Sequence, s *cycle.Sequence) []*cycle.Sequence {
	for _, e := range existing {
		if e == s {
			return existing
		}
	}
	return append(existing, s)
}

// FirstInstance returns the earliest point >= from across all of def's
// sequences, together with the sequence that produced it. Ties prefer the
// sequence appearing earliest in def.Sequences for determinism.
func FirstInstance(def *Definition, from cycle.Point) (cycle.Point, *cycle.Sequence, bool) {
	var best cycle.Point
	var bestSeq *cycle.Sequence
	found := false

	for _, seq := range def.Sequences {
		p, ok := seq.FirstOnOrAfter(from)
		if !ok {
			continue
		}
		if !found || p.Before(best) {
			best, bestSeq, found = p, seq, true
		}
	}
	return best, bestSeq, found
}

// NextInstances returns, for every sequence on which p is a valid point of
// def, the next point after p (spawning may need to consider more than one
// sequence if def runs on several).
func NextInstances(def *Definition, p cycle.Point) []cycle.Point {
	var out []cycle.Point
	for _, seq := range def.Sequences {
		if !seq.Contains(p) {
			continue
		}
		if next, ok := seq.NextAfter(p); ok {
			out = append(out, next)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
