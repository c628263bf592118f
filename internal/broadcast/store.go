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

// Package broadcast implements the runtime-override store: a three-level
// nested map (cycle point or "*" -> namespace -> setting path -> value)
// with specificity-ordered lookup, and put/clear/expire writes that report
// exactly what changed.
package broadcast

import (
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/r3labs/diff/v3"
)

// Wildcard is the special cycle-point key matching every cycle.
const Wildcard = "*"

// Settings is one leaf's setting_path -> value map.
type Settings map[string]interface{}

// Change is one (cycle, namespace, settings) leaf in a put/clear report.
type Change struct {
	CyclePoint string
	Namespace  string
	Settings   Settings
}

// NamespaceAncestry resolves a task name to its family chain from root to
// itself (most general first); the store overlays more specific namespaces
// over less specific ones.
type NamespaceAncestry func(taskName string) []string

// Store is the single owner of the broadcast override tree.
type Store struct {
	mu       chan struct{} // binary semaphore guarding tree
	tree     map[string]map[string]Settings
	ancestry NamespaceAncestry
	known    map[string]bool // valid namespace names, for bad_options detection
}

// New builds an empty Store. known lists every namespace (task/family) name
// that put/clear may reference; ancestry resolves a concrete task name to
// its family chain for lookup.
func New(known []string, ancestry NamespaceAncestry) *Store {
	k := make(map[string]bool, len(known))
	for _, n := range known {
		k[n] = true
	}
	s := &Store{
		mu:       make(chan struct{}, 1),
		tree:     map[string]map[string]Settings{},
		ancestry: ancestry,
		known:    k,
	}
	s.mu <- struct{}{}
	return s
}

func (s *Store) lock()   { <-s.mu }
func (s *Store) unlock() { s.mu <- struct{}{} }

// Put applies settings to every (cycle, namespace) pair, returning the
// leaves actually modified and any cycle/namespace inputs rejected as bad
// options.
func (s *Store) Put(cyclePoints, namespaces []string, settings Settings) (modified []Change, badOptions []string) {
	s.lock()
	defer s.unlock()

	for _, cp := range cyclePoints {
		if !validCyclePoint(cp) {
			badOptions = append(badOptions, cp)
			continue
		}
		for _, ns := range namespaces {
			if !s.known[ns] {
				badOptions = append(badOptions, ns)
				continue
			}
			before := s.copyLeaf(cp, ns)
			s.mergeLeaf(cp, ns, settings)
			after := s.copyLeaf(cp, ns)

			changed := leafDiff(before, after)
			if len(changed) > 0 {
				modified = append(modified, Change{CyclePoint: cp, Namespace: ns, Settings: changed})
			}
		}
	}
	return modified, badOptions
}

// Clear removes cancel_settings (or the whole leaf if cancel_settings is
// empty) from every (cycle, namespace) pair, pruning empty branches so the
// store holds no dead keys.
func (s *Store) Clear(cyclePoints, namespaces []string, cancelSettings []string) (cleared []Change, badOptions []string) {
	s.lock()
	defer s.unlock()

	for _, cp := range cyclePoints {
		if _, ok := s.tree[cp]; !ok {
			badOptions = append(badOptions, cp)
			continue
		}
		for _, ns := range namespaces {
			leaf, ok := s.tree[cp][ns]
			if !ok {
				badOptions = append(badOptions, ns)
				continue
			}
			before := cloneSettings(leaf)
			if len(cancelSettings) == 0 {
				delete(s.tree[cp], ns)
			} else {
				for _, k := range cancelSettings {
					delete(leaf, k)
				}
			}
			// Diffing from the new leaf back to the old one lists exactly the
			// settings this clear removed.
			removed := leafDiff(s.copyLeaf(cp, ns), before)
			if len(removed) > 0 {
				cleared = append(cleared, Change{CyclePoint: cp, Namespace: ns, Settings: removed})
			}
			s.prune(cp, ns)
		}
	}
	return cleared, badOptions
}

// Expire clears every leaf whose specific cycle point sorts before cutoff
// (the "*" branch is never expired).
func (s *Store) Expire(cutoff string) []Change {
	s.lock()
	defer s.unlock()

	var cps []string
	for cp := range s.tree {
		if cp != Wildcard && cp < cutoff {
			cps = append(cps, cp)
		}
	}

	var cleared []Change
	for _, cp := range cps {
		for ns, leaf := range s.tree[cp] {
			cleared = append(cleared, Change{CyclePoint: cp, Namespace: ns, Settings: cloneSettings(leaf)})
		}
		delete(s.tree, cp)
	}
	return cleared
}

// Lookup merges the matching slices most-general-first: the "*" cycle then
// the exact cycle, and within each, namespace ancestors from root down to
// the task's own name, so the most specific setting wins.
func (s *Store) Lookup(cyclePoint, taskName string) Settings {
	s.lock()
	defer s.unlock()

	merged := Settings{}
	chain := s.ancestry(taskName)

	apply := func(cp string) {
		for _, ns := range chain {
			if leaf, ok := s.tree[cp][ns]; ok {
				for k, v := range leaf {
					merged[k] = v
				}
			}
		}
	}
	apply(Wildcard)
	apply(cyclePoint)
	return merged
}

// Decode decodes settings into dst using mapstructure.
func Decode(settings Settings, dst interface{}) error {
	if err := mapstructure.Decode(map[string]interface{}(settings), dst); err != nil {
		return errors.Wrapf(err, "broadcast: decode settings")
	}
	return nil
}

func (s *Store) mergeLeaf(cp, ns string, settings Settings) {
	if s.tree[cp] == nil {
		s.tree[cp] = map[string]Settings{}
	}
	if s.tree[cp][ns] == nil {
		s.tree[cp][ns] = Settings{}
	}
	for k, v := range settings {
		s.tree[cp][ns][k] = v
	}
}

func (s *Store) copyLeaf(cp, ns string) Settings {
	leaf, ok := s.tree[cp][ns]
	if !ok {
		return Settings{}
	}
	return cloneSettings(leaf)
}

func (s *Store) prune(cp, ns string) {
	if leaf, ok := s.tree[cp][ns]; ok && len(leaf) == 0 {
		delete(s.tree[cp], ns)
	}
	if len(s.tree[cp]) == 0 {
		delete(s.tree, cp)
	}
}

func cloneSettings(s Settings) Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// leafDiff reports the keys present or changed going from before to after,
// using r3labs/diff for the structural delta and keeping only the
// added/updated leaf values: the report lists exactly what the store now
// holds that it did not before.
func leafDiff(before, after Settings) Settings {
	changelog, err := diff.Diff(map[string]interface{}(before), map[string]interface{}(after))
	if err != nil {
		return nil
	}
	out := Settings{}
	for _, c := range changelog {
		if c.Type == diff.DELETE {
			continue
		}
		key := strings.Join(pathStrings(c.Path), ".")
		out[key] = c.To
	}
	return out
}

func pathStrings(path []string) []string {
	out := make([]string, len(path))
	copy(out, path)
	return out
}

func validCyclePoint(cp string) bool {
	if cp == Wildcard {
		return true
	}
	return cp != ""
}

// Export returns a deep copy of the whole tree, for persistence.
func (s *Store) Export() map[string]map[string]Settings {
	s.lock()
	defer s.unlock()
	out := make(map[string]map[string]Settings, len(s.tree))
	for cp, namespaces := range s.tree {
		out[cp] = make(map[string]Settings, len(namespaces))
		for ns, leaf := range namespaces {
			out[cp][ns] = cloneSettings(leaf)
		}
	}
	return out
}

// Import replaces the tree with a deep copy of in, for restart.
func (s *Store) Import(in map[string]map[string]Settings) {
	s.lock()
	defer s.unlock()
	s.tree = map[string]map[string]Settings{}
	for cp, namespaces := range in {
		s.tree[cp] = make(map[string]Settings, len(namespaces))
		for ns, leaf := range namespaces {
			s.tree[cp][ns] = cloneSettings(leaf)
		}
	}
}

// SortedCyclePoints returns the store's current cycle-point keys sorted for
// stable `broadcast show` rendering.
func (s *Store) SortedCyclePoints() []string {
	s.lock()
	defer s.unlock()
	out := make([]string, 0, len(s.tree))
	for cp := range s.tree {
		out = append(out, cp)
	}
	sort.Strings(out)
	return out
}
