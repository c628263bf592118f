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

import "strings"

// FamilyMap maps a family name to its member task names.
type FamilyMap map[string][]string

// ExpandFamilies rewrites every AtomicPrereq whose UpstreamName is a known
// family into the conjunction ("-all") or disjunction ("-any") of its
// members' outputs.
//
// Family output suffixes are of the form "<state>-all" / "<state>-any"
// where state is one of succeed/fail/finish/start/submit; a family trigger
// with neither suffix (including a custom-message trigger) defaults to
// conjunctive-all.
func ExpandFamilies(edges []Edge, families FamilyMap) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		e.Upstream = expandExpr(e.Upstream, families)
		out[i] = e
	}
	return out
}

func expandExpr(e Expr, families FamilyMap) Expr {
	switch v := e.(type) {
	case Atom:
		return expandAtom(v.Prereq, families)
	case And:
		members := make([]Expr, len(v.Members))
		for i, m := range v.Members {
			members[i] = expandExpr(m, families)
		}
		return And{Members: members}.Normalize()
	case Or:
		members := make([]Expr, len(v.Members))
		for i, m := range v.Members {
			members[i] = expandExpr(m, families)
		}
		return Or{Members: members}.Normalize()
	default:
		return e
	}
}

func expandAtom(a AtomicPrereq, families FamilyMap) Expr {
	members, isFamily := families[a.UpstreamName]
	if !isFamily {
		return Atom{Prereq: a}
	}

	state, mode := splitFamilyOutput(a.Output)

	var leaves []Expr
	for _, m := range members {
		leaves = append(leaves, Atom{Prereq: AtomicPrereq{
			UpstreamName: m,
			CycleOffset:  a.CycleOffset,
			Output:       state,
		}})
	}

	if len(leaves) == 0 {
		// Empty family: contributes nothing; callers should already reject
		// this at config-load time, but we fail safe to a vacuously-false
		// (never-satisfied) expression rather than panic.
		return And{Members: []Expr{Atom{Prereq: AtomicPrereq{UpstreamName: a.UpstreamName, Output: "__empty_family__"}}}}
	}

	if mode == "any" {
		return Or{Members: leaves}.Normalize()
	}
	return And{Members: leaves}.Normalize()
}

// ResolveFinish rewrites every "finish" leaf into the disjunction of the
// upstream's succeeded and failed outputs: a task has finished when it
// reached either.
func ResolveFinish(e Expr) Expr {
	switch v := e.(type) {
	case Atom:
		if v.Prereq.Output != "finish" {
			return v
		}
		succeeded := v.Prereq
		succeeded.Output = "succeeded"
		failed := v.Prereq
		failed.Output = "failed"
		return Or{Members: []Expr{Atom{Prereq: succeeded}, Atom{Prereq: failed}}}.Normalize()
	case And:
		members := make([]Expr, len(v.Members))
		for i, m := range v.Members {
			members[i] = ResolveFinish(m)
		}
		return And{Members: members}.Normalize()
	case Or:
		members := make([]Expr, len(v.Members))
		for i, m := range v.Members {
			members[i] = ResolveFinish(m)
		}
		return Or{Members: members}.Normalize()
	default:
		return e
	}
}

// splitFamilyOutput splits "succeed-all" into ("succeeded", "all"); an
// output with no "-all"/"-any" suffix defaults to "-all" semantics.
func splitFamilyOutput(output string) (state, mode string) {
	switch {
	case strings.HasSuffix(output, "-all"):
		state = output[:len(output)-len("-all")]
		mode = "all"
	case strings.HasSuffix(output, "-any"):
		state = output[:len(output)-len("-any")]
		mode = "any"
	default:
		state = output
		mode = "all"
	}

	switch state {
	case "succeed":
		state = "succeeded"
	case "fail":
		state = "failed"
	case "start":
		state = "started"
	case "submit":
		state = "submitted"
	}

	return state, mode
}
