// Package job defines the unit of work run by the planning pipeline and the
// descriptor that distributed jobs register their inputs on.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/arkilian/shardplan/internal/errors"
	"go.uber.org/zap"
)

// Job is one stage of a planning run.
type Job interface {
	// Name identifies the stage in logs and errors.
	Name() string

	// Run executes the stage. A nil error means success.
	Run(ctx context.Context) error
}

// Func adapts a function to the Job interface.
type Func struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFunc creates a Job named name that calls fn.
func NewFunc(name string, fn func(ctx context.Context) error) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Run(ctx context.Context) error { return f.fn(ctx) }

// RunJobs runs jobs in order and stops at the first failure. The returned
// error is a JOB error whose details carry the failing stage name and index.
// Jobs after a failed one are not started.
func RunJobs(ctx context.Context, log *zap.Logger, jobs ...Job) error {
	if log == nil {
		log = zap.NewNop()
	}

	for i, j := range jobs {
		name := j.Name()
		if err := ctx.Err(); err != nil {
			return stageError(name, i, err)
		}

		start := time.Now()
		log.Info("Starting stage", zap.String("stage", name), zap.Int("index", i))

		if err := j.Run(ctx); err != nil {
			log.Error("Stage failed",
				zap.String("stage", name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
			return stageError(name, i, err)
		}

		log.Info("Finished stage",
			zap.String("stage", name),
			zap.Duration("elapsed", time.Since(start)))
	}
	return nil
}

func stageError(name string, index int, cause error) error {
	return errors.NewJobError(fmt.Sprintf("stage %q failed", name), cause).
		WithDetails(map[string]interface{}{"stage": name, "index": index})
}
