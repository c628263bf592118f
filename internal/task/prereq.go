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

package task

import (
	"strconv"
	"strings"

	"github.com/cylc/cylc-go/internal/cycle"
	"github.com/cylc/cylc-go/internal/graph"
	"github.com/pkg/errors"
)

// Atom is a resolved (upstream_name, upstream_cycle, output) reference: the
// absolute form of graph.AtomicPrereq once the offset has been applied to a
// concrete proxy's cycle point.
type Atom struct {
	UpstreamName  string
	UpstreamCycle string
	Output        string
}

// Key is the string used to index into the pool's emitted-output table.
func (a Atom) Key() string {
	return a.UpstreamName + "|" + a.UpstreamCycle + "|" + a.Output
}

// node is the resolved, evaluable form of a graph.Expr clause.
type node interface {
	eval(satisfied map[string]bool) bool
	keys(out map[string]bool)
}

type atomNode struct{ key string }

func (n atomNode) eval(satisfied map[string]bool) bool { return satisfied[n.key] }
func (n atomNode) keys(out map[string]bool)            { out[n.key] = true }

type andNode struct{ members []node }

func (n andNode) eval(satisfied map[string]bool) bool {
	for _, m := range n.members {
		if !m.eval(satisfied) {
			return false
		}
	}
	return true
}
func (n andNode) keys(out map[string]bool) {
	for _, m := range n.members {
		m.keys(out)
	}
}

type orNode struct{ members []node }

func (n orNode) eval(satisfied map[string]bool) bool {
	for _, m := range n.members {
		if m.eval(satisfied) {
			return true
		}
	}
	return false
}
func (n orNode) keys(out map[string]bool) {
	for _, m := range n.members {
		m.keys(out)
	}
}

// Prerequisite is one satisfiable clause of a proxy's prerequisite set. It
// tracks, per atomic prerequisite, whether the pool's emitted-output index
// has matched it yet.
type Prerequisite struct {
	root      node
	satisfied map[string]bool
	source    string // original clause text, for logs/diagnostics
}

// Satisfied reports whether the whole clause currently evaluates true.
func (p *Prerequisite) Satisfied() bool { return p.root.eval(p.satisfied) }

// Keys returns every atom key this clause references.
func (p *Prerequisite) Keys() []string {
	out := map[string]bool{}
	p.root.keys(out)
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	return keys
}

// Mark flips the given atom key to satisfied, if this clause references it.
// Returns true if the clause referenced (and thus updated on) that key.
func (p *Prerequisite) Mark(key string) bool {
	if _, ok := p.satisfied[key]; !ok {
		return false
	}
	p.satisfied[key] = true
	return true
}

func (p *Prerequisite) String() string { return p.source }

// ResolvePrereqs turns a Definition's graph-relative clauses into
// Prerequisites bound to a concrete proxy cycle point, resolving every
// atom's offset via the calendar/integer arithmetic in package cycle.
func ResolvePrereqs(clauses []graph.Expr, ownPoint cycle.Point) ([]*Prerequisite, error) {
	out := make([]*Prerequisite, 0, len(clauses))
	for _, c := range clauses {
		n, err := resolveNode(c, ownPoint)
		if err != nil {
			return nil, err
		}
		sat := map[string]bool{}
		keysOut := map[string]bool{}
		n.keys(keysOut)
		for k := range keysOut {
			sat[k] = false
		}
		out = append(out, &Prerequisite{root: n, satisfied: sat, source: c.String()})
	}
	return out, nil
}

func resolveNode(e graph.Expr, ownPoint cycle.Point) (node, error) {
	switch v := e.(type) {
	case graph.Atom:
		cyclePoint, err := resolveOffset(ownPoint, v.Prereq.CycleOffset)
		if err != nil {
			return nil, err
		}
		return atomNode{key: Atom{
			UpstreamName:  v.Prereq.UpstreamName,
			UpstreamCycle: cyclePoint.String(),
			Output:        v.Prereq.Output,
		}.Key()}, nil
	case graph.And:
		members := make([]node, len(v.Members))
		for i, m := range v.Members {
			n, err := resolveNode(m, ownPoint)
			if err != nil {
				return nil, err
			}
			members[i] = n
		}
		return andNode{members: members}, nil
	case graph.Or:
		members := make([]node, len(v.Members))
		for i, m := range v.Members {
			n, err := resolveNode(m, ownPoint)
			if err != nil {
				return nil, err
			}
			members[i] = n
		}
		return orNode{members: members}, nil
	default:
		return nil, errors.Errorf("unknown expr node %T", e)
	}
}

func resolveOffset(ownPoint cycle.Point, offset string) (cycle.Point, error) {
	offset = strings.TrimSpace(offset)
	if offset == "" {
		return ownPoint, nil
	}

	if ownPoint.Kind == cycle.KindInteger {
		n, err := strconv.ParseInt(offset, 10, 64)
		if err != nil {
			return cycle.Point{}, errors.Wrapf(err, "bad integer offset %q", offset)
		}
		return ownPoint.Add(cycle.IntegerDuration(n)), nil
	}

	d, err := cycle.ParseISODuration(offset)
	if err != nil {
		return cycle.Point{}, err
	}
	return ownPoint.Add(d), nil
}
