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

import "testing"

func TestParseLinearChain(t *testing.T) {
	edges, err := Parse("a => b")
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 || edges[0].Downstream != "b" {
		t.Fatalf("got %+v", edges)
	}
	leaves := Leaves(edges[0].Upstream)
	if len(leaves) != 1 || leaves[0].UpstreamName != "a" || leaves[0].Output != "succeeded" {
		t.Fatalf("got %+v", leaves)
	}
}

func TestParseMultiHopChain(t *testing.T) {
	edges, err := Parse("a => b => c")
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 2 {
		t.Fatalf("want 2 edges, got %d: %+v", len(edges), edges)
	}
}

func TestParseBooleanCombination(t *testing.T) {
	edges, err := Parse("(a & b) | c => d")
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("got %+v", edges)
	}
	if _, ok := edges[0].Upstream.(Or); !ok {
		t.Fatalf("expected top-level Or, got %T: %s", edges[0].Upstream, edges[0].Upstream.String())
	}
}

func TestParseFailSuffix(t *testing.T) {
	edges, err := Parse("a:fail => b")
	if err != nil {
		t.Fatal(err)
	}
	leaves := Leaves(edges[0].Upstream)
	if leaves[0].Output != "failed" {
		t.Fatalf("got %+v", leaves)
	}
}

func TestParseUnbalancedParens(t *testing.T) {
	if _, err := Parse("(a & b => c"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParseSpaceInTaskName(t *testing.T) {
	if _, err := Parse("a b => c"); err == nil {
		t.Fatal("expected parse error for space in task name")
	}
}

func TestFamilyExpansionSucceedAny(t *testing.T) {
	edges, err := Parse("FAM:succeed-any => post")
	if err != nil {
		t.Fatal(err)
	}
	edges = ExpandFamilies(edges, FamilyMap{"FAM": {"m1", "m2"}})

	or, ok := edges[0].Upstream.(Or)
	if !ok {
		t.Fatalf("expected Or, got %T", edges[0].Upstream)
	}
	leaves := Leaves(or)
	names := map[string]bool{}
	for _, l := range leaves {
		if l.Output != "succeeded" {
			t.Fatalf("expected succeeded leaves, got %+v", l)
		}
		names[l.UpstreamName] = true
	}
	if !names["m1"] || !names["m2"] {
		t.Fatalf("expected m1 and m2, got %+v", names)
	}
}

func TestParameterExpansionWithOffset(t *testing.T) {
	domain := ParamDomain{"i": IntRangeDomain(2), "j": IntRangeDomain(3)}
	expanded, err := ExpandParameters("bar<i-1,j> => baz<i,j>", domain)
	if err != nil {
		t.Fatal(err)
	}

	edges, err := Parse(expanded)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 3 {
		t.Fatalf("want 3 edges (i=0 sources dropped), got %d: %+v", len(edges), edges)
	}
	for _, e := range edges {
		if e.Downstream[:6] != "baz_i1" {
			t.Fatalf("expected baz_i1_*, got %s", e.Downstream)
		}
	}
}
