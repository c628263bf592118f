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

// Package config draws the boundary between the scheduler and whatever
// parses its configuration surface: NestedMap is the generic
// decoded-config shape, and Loader is the only thing an outer CLI must
// implement to hand the scheduler a workflow definition. Decoding a
// NestedMap into typed structs goes through mapstructure.
package config

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// NestedMap is an abstract decoded configuration tree: string keys to
// either scalars, further NestedMaps, or slices of either.
type NestedMap map[string]interface{}

// Loader produces the NestedMap for a workflow definition; how it gets
// there (file, directory of includes, remote fetch) is the implementer's
// business.
type Loader interface {
	Load() (NestedMap, error)
}

// Decode decodes src into dst via mapstructure, with weak type conversion
// enabled ("1" -> int, "true" -> bool) for user-supplied values.
func Decode(src NestedMap, dst interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return errors.Wrapf(err, "config: build decoder")
	}
	if err := decoder.Decode(map[string]interface{}(src)); err != nil {
		return errors.Wrapf(err, "config: decode")
	}
	return nil
}

// Sub returns the nested map at key, or an empty NestedMap if absent or
// not a map.
func (n NestedMap) Sub(key string) NestedMap {
	v, ok := n[key]
	if !ok {
		return NestedMap{}
	}
	switch m := v.(type) {
	case NestedMap:
		return m
	case map[string]interface{}:
		return NestedMap(m)
	default:
		return NestedMap{}
	}
}

// String returns the string at key, or "" if absent.
func (n NestedMap) String(key string) string {
	v, _ := n[key].(string)
	return v
}

// StaticLoader is a Loader over an already-built NestedMap, useful for
// tests and for the scheduler embedding a config produced some other way.
type StaticLoader struct {
	Data NestedMap
}

func (s StaticLoader) Load() (NestedMap, error) { return s.Data, nil }
