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

package remoteinit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStreamer struct {
	fail bool
}

func (f *fakeStreamer) Stream(ctx context.Context, host, user string, bundle []byte) error {
	if f.fail {
		return errOops
	}
	return nil
}

var errOops = errAssert("stream failed")

type errAssert string

func (e errAssert) Error() string { return string(e) }

func waitForState(t *testing.T, m *Manager, key Key, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.StateOf(key) == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state never reached %v, got %v", want, m.StateOf(key))
}

func TestEnsureInitializedReachesDone(t *testing.T) {
	m := New(&fakeStreamer{})
	key := Key{Host: "h1", User: "u1"}
	m.EnsureInitialized(context.Background(), key, nil)
	waitForState(t, m, key, Done)
}

func TestFailedStateIsSticky(t *testing.T) {
	m := New(&fakeStreamer{fail: true})
	key := Key{Host: "h1", User: "u1"}
	m.EnsureInitialized(context.Background(), key, nil)
	waitForState(t, m, key, Failed)

	m.EnsureInitialized(context.Background(), key, nil)
	require.Equal(t, Failed, m.StateOf(key))

	m.Reset(key)
	require.Equal(t, None, m.StateOf(key))
}

func TestResolveHostEnvVar(t *testing.T) {
	os.Setenv("CYLC_TEST_HOST", "remote.example.org")
	defer os.Unsetenv("CYLC_TEST_HOST")

	m := New(&fakeStreamer{})
	host, err := m.ResolveHost(context.Background(), "$CYLC_TEST_HOST")
	require.NoError(t, err)
	require.Equal(t, "remote.example.org", host)
}

func TestResolveHostLiteral(t *testing.T) {
	m := New(&fakeStreamer{})
	host, err := m.ResolveHost(context.Background(), "literal-host")
	require.NoError(t, err)
	require.Equal(t, "literal-host", host)
}
