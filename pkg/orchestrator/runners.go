package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"watch-harvest/pkg/job"
	"watch-harvest/pkg/models"
)

// JobRunner harvests one queue entry. Failures come back in the result.
type JobRunner interface {
	Run(ctx context.Context, entry models.CrawlQueueEntry, onStage func(job.Stage)) job.Result
}

// InProcess runs jobs on goroutines of this process, sharing one browser.
type InProcess struct {
	Runner *job.Runner
}

func (r InProcess) Run(ctx context.Context, entry models.CrawlQueueEntry, onStage func(job.Stage)) job.Result {
	return r.Runner.Run(ctx, entry.URL, onStage)
}

// Subprocess runs every job in its own process so a browser crash only
// takes down that job.
type Subprocess struct {
	Executable string
	// Prefix goes before the job flags, normally just the subcommand.
	Prefix  []string
	Base    job.Config
	Env     []string
	Stderr  io.Writer
	Timeout time.Duration
}

func NewSubprocess(executable string, base job.Config) *Subprocess {
	return &Subprocess{
		Executable: executable,
		Prefix:     []string{"job"},
		Base:       base,
		Stderr:     os.Stderr,
		Timeout:    5 * time.Minute,
	}
}

func (s *Subprocess) Run(ctx context.Context, entry models.CrawlQueueEntry, onStage func(job.Stage)) job.Result {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cfg := s.Base
	cfg.URL = entry.URL
	args := append(append([]string{}, s.Prefix...), cfg.Args()...)
	cmd := exec.CommandContext(ctx, s.Executable, args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Stderr = s.Stderr

	last := job.StageQueued
	stage := func(st job.Stage) {
		last = st
		if onStage != nil {
			onStage(st)
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return job.Failed(entry.URL, last, fmt.Errorf("job pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		return job.Failed(entry.URL, last, fmt.Errorf("start job: %w", err))
	}

	res, decodeErr := job.Decode(stdout, stage)
	io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if decodeErr != nil {
		return job.Failed(entry.URL, last, fmt.Errorf("job process: %w", errors.Join(decodeErr, waitErr)))
	}
	if waitErr != nil && res.OK() {
		// the result made it out before the process died; keep it
		res.Warnings = append(res.Warnings, fmt.Sprintf("job exited with %v", waitErr))
	}
	return res
}
