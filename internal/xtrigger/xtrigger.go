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

// Package xtrigger implements external trigger functions: named boolean
// expressions evaluated outside the dependency graph that gate task
// readiness. A trigger's expression is evaluated against a context map
// (cycle point, wall clock, caller-registered functions); once it reports
// true for a given proxy the satisfaction is sticky.
package xtrigger

import (
	"sync"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/pkg/errors"
)

// Func is a caller-registered function exposed to trigger expressions.
type Func func(args ...interface{}) (interface{}, error)

// Trigger is one named external trigger.
type Trigger struct {
	Label string
	expr  *govaluate.EvaluableExpression
}

// New compiles expr into a Trigger. Unknown function names fail here, at
// load time, rather than at evaluation time.
func New(label, expr string, funcs map[string]Func) (*Trigger, error) {
	gf := make(map[string]govaluate.ExpressionFunction, len(funcs))
	for name, fn := range funcs {
		gf[name] = govaluate.ExpressionFunction(fn)
	}
	compiled, err := govaluate.NewEvaluableExpressionWithFunctions(expr, gf)
	if err != nil {
		return nil, errors.Wrapf(err, "xtrigger %q: compile %q", label, expr)
	}
	return &Trigger{Label: label, expr: compiled}, nil
}

// Eval evaluates the trigger against params. A non-boolean result is an
// error: triggers gate readiness, so anything else is a misconfiguration.
func (t *Trigger) Eval(params map[string]interface{}) (bool, error) {
	result, err := t.expr.Evaluate(params)
	if err != nil {
		return false, errors.Wrapf(err, "xtrigger %q: evaluate", t.Label)
	}
	b, ok := result.(bool)
	if !ok {
		return false, errors.Errorf("xtrigger %q: expression returned %T, want bool", t.Label, result)
	}
	return b, nil
}

// Registry resolves trigger labels for the scheduler's readiness checks.
type Registry struct {
	mu       sync.Mutex
	triggers map[string]*Trigger
	funcs    map[string]Func
}

// NewRegistry builds an empty Registry. The standard parameters
// (point, point_unix, now_unix) are always in scope, so a pure wall-clock
// gate needs no registered function: "now_unix >= point_unix + 3600" holds
// one hour after the cycle point's nominal time.
func NewRegistry() *Registry {
	return &Registry{
		triggers: map[string]*Trigger{},
		funcs:    map[string]Func{},
	}
}

// RegisterFunc adds a function usable by later Register calls.
func (r *Registry) RegisterFunc(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Register compiles and stores a trigger under its label.
func (r *Registry) Register(label, expr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := New(label, expr, r.funcs)
	if err != nil {
		return err
	}
	r.triggers[label] = t
	return nil
}

// Eval evaluates the trigger registered under label against params. An
// unregistered label is a misconfiguration.
func (r *Registry) Eval(label string, params map[string]interface{}) (bool, error) {
	r.mu.Lock()
	t, ok := r.triggers[label]
	r.mu.Unlock()
	if !ok {
		return false, errors.Errorf("xtrigger: unknown trigger %q", label)
	}
	return t.Eval(params)
}

// StandardParams builds the parameter map handed to every trigger
// evaluation.
func StandardParams(point string, pointWall, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"point":      point,
		"point_unix": float64(pointWall.Unix()),
		"now_unix":   float64(now.Unix()),
	}
}
