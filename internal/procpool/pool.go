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

// Package procpool implements the job submission pipeline's process pool:
// bounded-concurrency external command execution with per-command timeout,
// group-kill, and captured stdout/stderr tails.
package procpool

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	circbuf "github.com/armon/circbuf"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrStopping is returned by PutCommand once the pool has entered the
// stopping phase and no longer accepts new submits.
var ErrStopping = errors.New("procpool: pool is stopping")

const tailCaptureBytes = 64 * 1024

// Callback receives a command's outcome once it is reaped or killed.
type Callback func(res Result)

// Stdin describes what a child process reads: nil for no stdin, Content
// for an in-memory buffer, or FilePaths for a temp file built by
// concatenating the named files in order. FilePaths wins when both are
// set.
type Stdin struct {
	Content   []byte
	FilePaths []string
}

// Result is what a Callback observes.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Killed   bool
	Err      error
}

// command is one queued or running child process.
type command struct {
	ctx      context.Context
	argv     []string
	stdin    *Stdin
	callback Callback
	isSubmit bool

	cmd       *exec.Cmd
	started   time.Time
	timeout   time.Duration
	stdoutBuf *circbuf.Buffer
	stderrBuf *circbuf.Buffer
	stdinFile *os.File // open temp file backing Stdin.FilePaths

	done    chan struct{}
	waitErr error
	killed  bool
}

// Pool is the single owner of every in-flight external command.
type Pool struct {
	mu sync.Mutex

	size      int
	timeout   time.Duration
	batchSize int
	batchWait time.Duration

	pending   []*command
	running   []*command
	lastBatch time.Time
	stopping  bool
}

// Config bundles Pool construction parameters.
type Config struct {
	Size      int           // global concurrent-process cap
	Timeout   time.Duration // default per-command timeout
	BatchSize int           // max queued commands (of any kind) started per batch
	BatchWait time.Duration // delay between submit batches
}

// New builds an idle Pool.
func New(cfg Config) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.Size
	}
	return &Pool{
		size:      cfg.Size,
		timeout:   cfg.Timeout,
		batchSize: cfg.BatchSize,
		batchWait: cfg.BatchWait,
	}
}

// PutCommand enqueues argv for execution. If the pool is stopping and this
// is a job-submit, it fails synchronously with ErrStopping.
func (pl *Pool) PutCommand(ctx context.Context, argv []string, stdin *Stdin, isSubmit bool, cb Callback) {
	pl.mu.Lock()
	if pl.stopping && isSubmit {
		pl.mu.Unlock()
		cb(Result{Err: ErrStopping})
		return
	}
	pl.pending = append(pl.pending, &command{
		ctx: ctx, argv: argv, stdin: stdin, callback: cb, isSubmit: isSubmit, timeout: pl.timeout,
	})
	pl.mu.Unlock()
}

// Process runs one tick: reap finished children, kill timed-out ones, start
// new ones up to capacity, gathering submits into batches.
func (pl *Pool) Process() {
	pl.reap()
	pl.killTimedOut()
	pl.startNew()
}

func (pl *Pool) reap() {
	pl.mu.Lock()
	still := make([]*command, 0, len(pl.running))
	var done []*command
	for _, c := range pl.running {
		select {
		case <-c.done:
			done = append(done, c)
		default:
			still = append(still, c)
		}
	}
	pl.running = still
	pl.mu.Unlock()

	for _, c := range done {
		pl.finish(c)
	}
}

func (pl *Pool) killTimedOut() {
	now := time.Now()
	pl.mu.Lock()
	var timedOut []*command
	for _, c := range pl.running {
		if c.timeout > 0 && now.Sub(c.started) > c.timeout {
			timedOut = append(timedOut, c)
		}
	}
	pl.mu.Unlock()

	for _, c := range timedOut {
		c.killed = true
		groupKill(c.cmd)
	}
}

// groupKill sends SIGKILL to the whole process group so descendants
// spawned by the job script die too; launch sets Setpgid for this.
func groupKill(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
}

func (pl *Pool) startNew() {
	pl.mu.Lock()
	capacity := pl.size - len(pl.running)
	if capacity <= 0 || len(pl.pending) == 0 {
		pl.mu.Unlock()
		return
	}
	if pl.batchWait > 0 && time.Since(pl.lastBatch) < pl.batchWait {
		pl.mu.Unlock()
		return
	}
	pl.lastBatch = time.Now()

	batch := pl.batchSize
	if batch > capacity {
		batch = capacity
	}
	if batch > len(pl.pending) {
		batch = len(pl.pending)
	}
	starting := pl.pending[:batch]
	pl.pending = pl.pending[batch:]
	pl.mu.Unlock()

	for _, c := range starting {
		pl.launch(c)
	}
}

func (pl *Pool) launch(c *command) {
	cmd := exec.CommandContext(c.ctx, c.argv[0], c.argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutBuf, _ := circbuf.NewBuffer(tailCaptureBytes)
	stderrBuf, _ := circbuf.NewBuffer(tailCaptureBytes)
	cmd.Stdout = stdoutBuf
	cmd.Stderr = stderrBuf
	if c.stdin != nil {
		switch {
		case len(c.stdin.FilePaths) > 0:
			f, err := concatToTempFile(c.stdin.FilePaths)
			if err != nil {
				c.callback(Result{Err: errors.Wrapf(err, "procpool: stdin for %v", c.argv)})
				return
			}
			c.stdinFile = f
			cmd.Stdin = f
		case len(c.stdin.Content) > 0:
			cmd.Stdin = bytes.NewReader(c.stdin.Content)
		}
	}

	c.cmd = cmd
	c.stdoutBuf = stdoutBuf
	c.stderrBuf = stderrBuf
	c.started = time.Now()
	c.done = make(chan struct{})

	if err := cmd.Start(); err != nil {
		c.closeStdin()
		c.callback(Result{Err: errors.Wrapf(err, "procpool: start %v", c.argv)})
		return
	}

	pl.mu.Lock()
	pl.running = append(pl.running, c)
	pl.mu.Unlock()

	go func() {
		c.waitErr = cmd.Wait()
		close(c.done)
	}()
}

// concatToTempFile concatenates the named files, in order, into an
// unlinked temp file positioned at its start, ready to serve as stdin.
func concatToTempFile(paths []string) (*os.File, error) {
	tmp, err := os.CreateTemp("", "cylc-stdin-")
	if err != nil {
		return nil, err
	}
	// Unlink immediately; the open descriptor keeps it alive.
	_ = os.Remove(tmp.Name())

	for _, path := range paths {
		in, err := os.Open(path)
		if err != nil {
			_ = tmp.Close()
			return nil, err
		}
		_, err = io.Copy(tmp, in)
		_ = in.Close()
		if err != nil {
			_ = tmp.Close()
			return nil, err
		}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	return tmp, nil
}

func (c *command) closeStdin() {
	if c.stdinFile != nil {
		_ = c.stdinFile.Close()
		c.stdinFile = nil
	}
}

func (pl *Pool) finish(c *command) {
	c.closeStdin()
	res := Result{Killed: c.killed}
	if c.stdoutBuf != nil {
		res.Stdout = string(c.stdoutBuf.Bytes())
	}
	if c.stderrBuf != nil {
		res.Stderr = string(c.stderrBuf.Bytes())
	}
	if c.cmd.ProcessState != nil {
		res.ExitCode = c.cmd.ProcessState.ExitCode()
	}
	switch {
	case c.killed:
		res.Err = errors.Errorf("procpool: command exceeded timeout %v", c.timeout)
	case c.waitErr != nil:
		res.Err = errors.Wrapf(c.waitErr, "procpool: %v", c.argv)
	}
	c.callback(res)
}

// Terminate drains the queue (failing pending submits), kills every live
// child, then reaps.
func (pl *Pool) Terminate() {
	pl.mu.Lock()
	pl.stopping = true
	pending := pl.pending
	pl.pending = nil
	running := append([]*command(nil), pl.running...)
	pl.mu.Unlock()

	for _, c := range pending {
		if c.isSubmit {
			c.callback(Result{Err: ErrStopping})
			continue
		}
		c.callback(Result{Err: errors.New("procpool: terminated before running")})
	}

	for _, c := range running {
		c.killed = true
		groupKill(c.cmd)
	}

	deadline := time.After(5 * time.Second)
	for {
		pl.mu.Lock()
		remaining := len(pl.running)
		pl.mu.Unlock()
		if remaining == 0 {
			return
		}
		select {
		case <-deadline:
			return
		case <-time.After(50 * time.Millisecond):
			pl.reap()
		}
	}
}

// Close is the first phase of shutdown: stop accepting new submits
// without killing anything already running.
func (pl *Pool) Close() {
	pl.mu.Lock()
	pl.stopping = true
	pl.mu.Unlock()
}
