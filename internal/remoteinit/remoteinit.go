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

// Package remoteinit implements the remote initialization manager: a
// per-(host, user) state machine gating the first job submission to a new
// remote until a service bundle has been streamed there, plus
// asynchronous, cached host-identifier resolution.
package remoteinit

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// State is a remote's install state.
type State int

const (
	None State = iota
	InFlight
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case None:
		return "none"
	case InFlight:
		return "in-flight"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Key identifies one remote target.
type Key struct {
	Host string
	User string
}

// Streamer streams a tar archive of the service bundle to (host, user)
// over whatever remote-exec transport the scheduler is configured with.
// The scheduler depends only on this interface; the transport lives
// outside it.
type Streamer interface {
	Stream(ctx context.Context, host, user string, bundle []byte) error
}

// Manager is the single owner of every remote's install state.
type Manager struct {
	mu       sync.Mutex
	streamer Streamer
	states   map[Key]State
	errs     map[Key]error

	hostCacheMu sync.Mutex
	hostCache   map[string]string
}

// New builds a Manager backed by streamer.
func New(streamer Streamer) *Manager {
	return &Manager{
		streamer:  streamer,
		states:    map[Key]State{},
		errs:      map[Key]error{},
		hostCache: map[string]string{},
	}
}

// StateOf reports a remote's current install state.
func (m *Manager) StateOf(key Key) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[key]
}

// ErrorOf returns the error recorded for a failed remote, if any.
func (m *Manager) ErrorOf(key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs[key]
}

// EnsureInitialized starts (or reuses) the install for key. It returns
// immediately; the caller should poll StateOf. A sticky Failed state is
// never retried automatically; Reset must be called first.
func (m *Manager) EnsureInitialized(ctx context.Context, key Key, bundle []byte) {
	m.mu.Lock()
	state := m.states[key]
	if state == InFlight || state == Done || state == Failed {
		m.mu.Unlock()
		return
	}
	m.states[key] = InFlight
	m.mu.Unlock()

	go func() {
		err := m.streamer.Stream(ctx, key.Host, key.User, bundle)

		m.mu.Lock()
		if err != nil {
			m.states[key] = Failed
			m.errs[key] = errors.Wrapf(err, "remoteinit: stream to %s@%s", key.User, key.Host)
		} else {
			m.states[key] = Done
			delete(m.errs, key)
		}
		m.mu.Unlock()
	}()
}

// Reset clears a sticky Failed state so the next EnsureInitialized
// retries.
func (m *Manager) Reset(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
	delete(m.errs, key)
}

// ResolveHost evaluates a host identifier, which may be a literal, a
// back-ticked shell command run locally, or an environment variable name.
// Results are cached until ResetHostCache.
func (m *Manager) ResolveHost(ctx context.Context, identifier string) (string, error) {
	m.hostCacheMu.Lock()
	if v, ok := m.hostCache[identifier]; ok {
		m.hostCacheMu.Unlock()
		return v, nil
	}
	m.hostCacheMu.Unlock()

	host, err := evalHostIdentifier(ctx, identifier)
	if err != nil {
		return "", err
	}

	m.hostCacheMu.Lock()
	m.hostCache[identifier] = host
	m.hostCacheMu.Unlock()
	return host, nil
}

// ResetHostCache drops every cached host-identifier resolution.
func (m *Manager) ResetHostCache() {
	m.hostCacheMu.Lock()
	defer m.hostCacheMu.Unlock()
	m.hostCache = map[string]string{}
}

func evalHostIdentifier(ctx context.Context, identifier string) (string, error) {
	switch {
	case strings.HasPrefix(identifier, "`") && strings.HasSuffix(identifier, "`"):
		cmdline := strings.TrimSuffix(strings.TrimPrefix(identifier, "`"), "`")
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err != nil {
			return "", errors.Wrapf(err, "remoteinit: evaluate host command %q", cmdline)
		}
		return strings.TrimSpace(out.String()), nil
	case strings.HasPrefix(identifier, "$"):
		name := strings.TrimPrefix(identifier, "$")
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", errors.Errorf("remoteinit: environment variable %q is not set", name)
		}
		return v, nil
	default:
		return identifier, nil
	}
}

// TidyAll attempts a parallel tidy pass per initialized remote with a hard
// overall budget; remotes not tidied within it are abandoned.
func (m *Manager) TidyAll(ctx context.Context, budget time.Duration, tidy func(ctx context.Context, key Key) error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	m.mu.Lock()
	keys := make([]Key, 0, len(m.states))
	for k, st := range m.states {
		if st == Done {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(k Key) {
			defer wg.Done()
			_ = tidy(ctx, k)
		}(k)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
