package scheduler

import (
	"context"
	"time"
)

// Result summarizes one invocation of a stage.
type Result struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (r *Result) Add(other Result) {
	r.Processed += other.Processed
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Skipped += other.Skipped
}

// Job is one background stage. Run must be idempotent: it is invoked on a fixed interval
// and may be re-run after a crash.
type Job interface {
	Name() string
	Run(ctx context.Context, now time.Time) (Result, error)
}

type jobFunc struct {
	name string
	fn   func(ctx context.Context, now time.Time) (Result, error)
}

// JobFunc adapts a function to Job.
func JobFunc(name string, fn func(ctx context.Context, now time.Time) (Result, error)) Job {
	return &jobFunc{name: name, fn: fn}
}

func (j *jobFunc) Name() string { return j.name }

func (j *jobFunc) Run(ctx context.Context, now time.Time) (Result, error) {
	return j.fn(ctx, now)
}
