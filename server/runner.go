package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/abooishaaq/sahl/vm"
)

var log = commonlog.GetLogger("sahl.server")

// ErrRunnerStopped is returned for jobs submitted after Stop.
var ErrRunnerStopped = errors.New("runner stopped")

// DefaultRunTimeout bounds a job that sets no timeout of its own.
const DefaultRunTimeout = 10 * time.Second

// Job is one program execution.
type Job struct {
	Program *vm.Program
	// Timeout overrides the runner default when positive.
	Timeout time.Duration
	// Trace logs every instruction at debug level.
	Trace bool
}

// Outcome is what a job produced. Err holds the run's failure (usually a
// *vm.RuntimeError); Output holds whatever was printed before it.
type Outcome struct {
	Output   string
	Result   vm.Value
	Err      error
	Duration time.Duration
}

// runRequest represents a job queued for the worker goroutine.
type runRequest struct {
	ctx  context.Context
	job  Job
	done chan Outcome
}

// Runner serializes program executions through a single goroutine, so at
// most one VM runs at a time regardless of how many requests arrive.
type Runner struct {
	requests chan runRequest
	quit     chan struct{}
	stopOnce sync.Once

	maxStack  int
	maxFrames int
	timeout   time.Duration
	verify    bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunLimits bounds the operand stack and call depth of every run.
func WithRunLimits(maxStack, maxFrames int) RunnerOption {
	return func(r *Runner) {
		r.maxStack = maxStack
		r.maxFrames = maxFrames
	}
}

// WithRunTimeout sets the default per-run deadline.
func WithRunTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithVerify toggles static verification before each run.
func WithVerify(verify bool) RunnerOption {
	return func(r *Runner) { r.verify = verify }
}

// NewRunner creates a Runner and starts the processing goroutine.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		requests: make(chan runRequest, 64),
		quit:     make(chan struct{}),
		timeout:  DefaultRunTimeout,
		verify:   true,
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.loop()
	return r
}

// loop processes jobs sequentially on a dedicated goroutine.
func (r *Runner) loop() {
	for {
		select {
		case req := <-r.requests:
			req.done <- r.execute(req.ctx, req.job)
		case <-r.quit:
			return
		}
	}
}

// execute runs one job, recovering from panics.
func (r *Runner) execute(ctx context.Context, job Job) (out Outcome) {
	var buf bytes.Buffer
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			out.Err = fmt.Errorf("runner panic: %v", rec)
			log.Errorf("runner panic: %v", rec)
		}
		out.Output = buf.String()
		out.Duration = time.Since(start)
	}()

	if job.Program == nil {
		out.Err = errors.New("no program")
		return out
	}

	timeout := r.timeout
	if job.Timeout > 0 {
		timeout = job.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := []vm.Option{
		vm.WithOutput(&buf),
		vm.WithLimits(r.maxStack, r.maxFrames),
	}
	if !r.verify {
		opts = append(opts, vm.WithoutVerify())
	}
	if job.Trace {
		opts = append(opts, vm.WithTrace(func(offset int, in vm.Instruction, stack []vm.Value) {
			log.Debug("step", "offset", offset, "instruction", in.String(), "depth", len(stack))
		}))
	}

	out.Result, out.Err = vm.Run(ctx, job.Program, opts...)
	return out
}

// Run submits job and blocks until it completes. The returned error is
// non-nil only when the job could not be scheduled; failures of the program
// itself are reported in Outcome.Err.
func (r *Runner) Run(ctx context.Context, job Job) (Outcome, error) {
	select {
	case <-r.quit:
		return Outcome{}, ErrRunnerStopped
	default:
	}

	req := runRequest{
		ctx:  ctx,
		job:  job,
		done: make(chan Outcome, 1),
	}
	select {
	case r.requests <- req:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-r.quit:
		return Outcome{}, ErrRunnerStopped
	}
	select {
	case out := <-req.done:
		return out, nil
	case <-r.quit:
		return Outcome{}, ErrRunnerStopped
	}
}

// Stop shuts down the worker goroutine. Safe to call more than once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}
