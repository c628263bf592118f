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

package procpool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutCommandRejectedWhileStopping(t *testing.T) {
	pl := New(Config{Size: 1})
	pl.Close()

	var got Result
	done := make(chan struct{})
	pl.PutCommand(context.Background(), []string{"true"}, nil, true, func(r Result) {
		got = r
		close(done)
	})
	<-done
	require.ErrorIs(t, got.Err, ErrStopping)
}

func runToCompletion(t *testing.T, pl *Pool, argv []string, stdin *Stdin) Result {
	t.Helper()
	var got Result
	done := make(chan struct{})
	pl.PutCommand(context.Background(), argv, stdin, false, func(r Result) {
		got = r
		close(done)
	})

	deadline := time.After(2 * time.Second)
	for {
		pl.Process()
		select {
		case <-done:
			return got
		case <-deadline:
			t.Fatal("command never reaped")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStdinContentPipedToChild(t *testing.T) {
	pl := New(Config{Size: 1, Timeout: 5 * time.Second})

	got := runToCompletion(t, pl, []string{"cat"}, &Stdin{Content: []byte("from memory\n")})
	require.NoError(t, got.Err)
	require.Equal(t, "from memory\n", got.Stdout)
}

func TestStdinFilePathsConcatenated(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")
	require.NoError(t, os.WriteFile(first, []byte("one\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("two\n"), 0o644))

	pl := New(Config{Size: 1, Timeout: 5 * time.Second})

	got := runToCompletion(t, pl, []string{"cat"}, &Stdin{FilePaths: []string{first, second}})
	require.NoError(t, got.Err)
	require.Equal(t, "one\ntwo\n", got.Stdout)
}

func TestStdinMissingFileFailsCommand(t *testing.T) {
	pl := New(Config{Size: 1, Timeout: 5 * time.Second})

	var got Result
	done := make(chan struct{})
	pl.PutCommand(context.Background(), []string{"cat"}, &Stdin{FilePaths: []string{"/no/such/file"}}, false, func(r Result) {
		got = r
		close(done)
	})

	deadline := time.After(2 * time.Second)
	for {
		pl.Process()
		select {
		case <-done:
			require.Error(t, got.Err)
			return
		case <-deadline:
			t.Fatal("command never failed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestProcessRunsAndReapsEcho(t *testing.T) {
	pl := New(Config{Size: 2, Timeout: 5 * time.Second})

	var got Result
	done := make(chan struct{})
	pl.PutCommand(context.Background(), []string{"echo", "hello"}, nil, false, func(r Result) {
		got = r
		close(done)
	})

	deadline := time.After(2 * time.Second)
	for {
		pl.Process()
		select {
		case <-done:
			require.NoError(t, got.Err)
			require.Contains(t, got.Stdout, "hello")
			return
		case <-deadline:
			t.Fatal("command never reaped")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
