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
	"sort"
	"strings"
)

// AtomicPrereq is a single (upstream_name, cycle_offset, output_message)
// reference. The cycle offset is an ISO-8601 duration string ("" for the
// same cycle point, "-P1D" for one day earlier); it is resolved against a
// concrete cycle point when a proxy is instantiated, not here.
type AtomicPrereq struct {
	UpstreamName string
	CycleOffset  string
	Output       string // "succeeded", "failed", "started", "submitted", or a custom message
}

func (a AtomicPrereq) key() string {
	return a.UpstreamName + "|" + a.CycleOffset + "|" + a.Output
}

func (a AtomicPrereq) String() string {
	if a.CycleOffset == "" {
		return fmt.Sprintf("%s:%s", a.UpstreamName, a.Output)
	}
	return fmt.Sprintf("%s[%s]:%s", a.UpstreamName, a.CycleOffset, a.Output)
}

// Expr is a boolean expression over AtomicPrereq leaves.
type Expr interface {
	// Normalize returns a canonical, simplified form: duplicate leaves
	// (a|a, a&a) and nested and/or of the same kind are flattened and
	// deduplicated.
	Normalize() Expr
	String() string
	leaves(out map[string]AtomicPrereq)
}

// Atom wraps a single AtomicPrereq as a leaf expression.
type Atom struct{ Prereq AtomicPrereq }

func (a Atom) Normalize() Expr { return a }
func (a Atom) String() string  { return a.Prereq.String() }
func (a Atom) leaves(out map[string]AtomicPrereq) {
	out[a.Prereq.key()] = a.Prereq
}

// And is the conjunction of its members.
type And struct{ Members []Expr }

// Or is the disjunction of its members.
type Or struct{ Members []Expr }

func (a And) leaves(out map[string]AtomicPrereq) {
	for _, m := range a.Members {
		m.leaves(out)
	}
}

func (o Or) leaves(out map[string]AtomicPrereq) {
	for _, m := range o.Members {
		m.leaves(out)
	}
}

func (a And) String() string { return joinMembers(a.Members, " & ") }
func (o Or) String() string  { return joinMembers(o.Members, " | ") }

func joinMembers(members []Expr, sep string) string {
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = m.String()
	}
	return strings.Join(parts, sep)
}

func (a And) Normalize() Expr { return normalizeAssoc(a.Members, true) }
func (o Or) Normalize() Expr  { return normalizeAssoc(o.Members, false) }

// normalizeAssoc flattens nested same-kind nodes, dedups leaves by their
// canonical key, and collapses a single-member result to that member.
func normalizeAssoc(members []Expr, isAnd bool) Expr {
	var flat []Expr
	for _, m := range members {
		n := m.Normalize()
		switch v := n.(type) {
		case And:
			if isAnd {
				flat = append(flat, v.Members...)
				continue
			}
		case Or:
			if !isAnd {
				flat = append(flat, v.Members...)
				continue
			}
		}
		flat = append(flat, n)
	}

	seen := map[string]bool{}
	var deduped []Expr
	for _, m := range flat {
		k := m.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		deduped = append(deduped, m)
	}

	sort.Slice(deduped, func(i, j int) bool { return deduped[i].String() < deduped[j].String() })

	if len(deduped) == 1 {
		return deduped[0]
	}
	if isAnd {
		return And{Members: deduped}
	}
	return Or{Members: deduped}
}

// Leaves returns the set of distinct atomic prerequisites referenced by e.
func Leaves(e Expr) []AtomicPrereq {
	out := map[string]AtomicPrereq{}
	e.leaves(out)
	result := make([]AtomicPrereq, 0, len(out))
	for _, v := range out {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].key() < result[j].key() })
	return result
}
