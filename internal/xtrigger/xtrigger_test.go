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

package xtrigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWallClockStyleTrigger(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("clock_1h", "now_unix >= point_unix + 3600"))

	point := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	ok, err := r.Eval("clock_1h", StandardParams("20200101T000000Z", point, point.Add(30*time.Minute)))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.Eval("clock_1h", StandardParams("20200101T000000Z", point, point.Add(2*time.Hour)))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRegisteredFunctionTrigger(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("data_ready", func(args ...interface{}) (interface{}, error) {
		return true, nil
	})
	require.NoError(t, r.Register("upstream_data", "data_ready()"))

	ok, err := r.Eval("upstream_data", StandardParams("1", time.Time{}, time.Now()))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUnknownTriggerRejected(t *testing.T) {
	r := NewRegistry()
	_, err := r.Eval("missing", nil)
	require.Error(t, err)
}

func TestNonBooleanExpressionRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("bad", "point_unix + 1"))

	_, err := r.Eval("bad", StandardParams("1", time.Unix(0, 0), time.Unix(1, 0)))
	require.Error(t, err)
}

func TestCompileErrorSurfacesAtRegister(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register("broken", "now_unix >= ("))
}
