// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cluster models the external batch scheduler that runs
// aligner and table-loader jobs: a Runner accepts argv-style commands
// and reports when all submitted jobs have finished. Local runs jobs
// with os/exec on the calling host; Sequential runs them in-process
// for tests, one at a time, never touching the OS process table.
package cluster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Job is one unit of cluster work: an argv-style command plus the
// stdin it should read, if any.
type Job struct {
	Name   string
	Argv   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result reports how one submitted Job concluded.
type Result struct {
	Name string
	Err  error
}

// Runner is the sole concurrency primitive the pipeline stages use.
// Submit enqueues a job and returns immediately; Finish blocks until
// every job submitted so far has completed, returning one Result per
// job in submission order. A Runner is not expected to be reused
// across a Finish call; callers construct a fresh Runner per stage.
type Runner interface {
	Submit(j Job)
	Finish(ctx context.Context) []Result
}

// ClusterFailure reports that a submitted job exited non-zero or could
// not be started, per the error taxonomy: stage execution is expected
// to surface this and abort the stage.
type ClusterFailure struct {
	Job    string
	Reason string
}

func (e *ClusterFailure) Error() string {
	return fmt.Sprintf("cluster: job %s failed: %s", e.Job, e.Reason)
}

// Local runs jobs as host subprocesses via os/exec, bounded to
// Concurrency simultaneous processes. It mirrors the submit/wait shape
// of the teacher's runBlastTabular/runBlastXML (build *exec.Cmd,
// Start, StdoutPipe/Stdin, Wait).
type Local struct {
	// Concurrency bounds the number of simultaneous subprocesses; zero
	// means unbounded.
	Concurrency int

	mu   sync.Mutex
	jobs []Job
}

// Submit enqueues j to run when Finish is called.
func (r *Local) Submit(j Job) {
	r.mu.Lock()
	r.jobs = append(r.jobs, j)
	r.mu.Unlock()
}

// Finish runs every job submitted so far, waits for completion, and
// returns one Result per job in submission order.
func (r *Local) Finish(ctx context.Context) []Result {
	r.mu.Lock()
	jobs := r.jobs
	r.jobs = nil
	r.mu.Unlock()

	results := make([]Result, len(jobs))
	sem := make(chan struct{}, r.semCap(len(jobs)))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, j Job) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = Result{Name: j.Name, Err: runLocal(ctx, j)}
		}(i, j)
	}
	wg.Wait()
	return results
}

func (r *Local) semCap(n int) int {
	if r.Concurrency <= 0 || r.Concurrency > n {
		if n == 0 {
			return 1
		}
		return n
	}
	return r.Concurrency
}

func runLocal(ctx context.Context, j Job) error {
	if len(j.Argv) == 0 {
		return &ClusterFailure{Job: j.Name, Reason: "empty argv"}
	}
	cmd := exec.CommandContext(ctx, j.Argv[0], j.Argv[1:]...)
	cmd.Stdin = j.Stdin
	cmd.Stdout = j.Stdout
	cmd.Stderr = j.Stderr
	if err := cmd.Run(); err != nil {
		return &ClusterFailure{Job: j.Name, Reason: err.Error()}
	}
	return nil
}

// Sequential runs jobs in-process, one at a time, for tests that must
// not shell out. Run is called synchronously in submission order
// during Finish; it is the test's responsibility to make Run behave
// like the subprocess it stands in for.
type Sequential struct {
	// Run is invoked once per submitted Job, in order. A nil Run
	// always succeeds.
	Run func(j Job) error

	jobs []Job
}

// Submit enqueues j.
func (r *Sequential) Submit(j Job) {
	r.jobs = append(r.jobs, j)
}

// Finish runs every queued job synchronously and returns their results
// in submission order.
func (r *Sequential) Finish(ctx context.Context) []Result {
	jobs := r.jobs
	r.jobs = nil
	results := make([]Result, len(jobs))
	for i, j := range jobs {
		if ctx.Err() != nil {
			results[i] = Result{Name: j.Name, Err: ctx.Err()}
			continue
		}
		var err error
		if r.Run != nil {
			err = r.Run(j)
		}
		if err != nil {
			err = &ClusterFailure{Job: j.Name, Reason: err.Error()}
		}
		results[i] = Result{Name: j.Name, Err: err}
	}
	return results
}

// CaptureOutput is a convenience constructor for tests that want a Job
// whose stdout is buffered for later inspection.
func CaptureOutput(name string, argv []string) (Job, *bytes.Buffer) {
	var buf bytes.Buffer
	return Job{Name: name, Argv: argv, Stdout: &buf}, &buf
}
