/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package finalize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/chainguard-dev/clog"
)

const (
	// CodeSuccess means every step succeeded.
	CodeSuccess = 0
	// CodeAbort means at least one step requested a silent early termination.
	CodeAbort = 1
	// CodeFailure means at least one step failed unexpectedly.
	CodeFailure = 2
)

// Outcome is the non-error result of a step: either continue normally or
// stop further normal work with an exit code.
type Outcome struct {
	stop bool
	code int
}

// Continue returns the outcome for a step that finished normally.
func Continue() Outcome {
	return Outcome{}
}

// Stop returns the outcome for an intentional early termination with the
// default code.
func Stop() Outcome {
	return StopWithCode(CodeAbort)
}

// StopWithCode returns the outcome for an intentional early termination
// that should exit with code.
func StopWithCode(code int) Outcome {
	return Outcome{stop: true, code: code}
}

// Stopped reports whether the step asked to stop further normal work.
func (o Outcome) Stopped() bool {
	return o.stop
}

// Code returns the exit code requested by a stopping outcome, 0 otherwise.
func (o Outcome) Code() int {
	return o.code
}

func (o Outcome) String() string {
	if !o.stop {
		return "continue"
	}
	return fmt.Sprintf("stop(%d)", o.code)
}

// StepFunc is a single fallible finalization step.
type StepFunc func(context.Context) (Outcome, error)

// Step names a StepFunc for logging and failure records.
type Step struct {
	Name string
	Fn   StepFunc
}

// Plain adapts a function that only returns an error into a StepFunc.
func Plain(fn func(context.Context) error) StepFunc {
	return func(ctx context.Context) (Outcome, error) {
		return Continue(), fn(ctx)
	}
}

// Failure records one unexpected step failure.
type Failure struct {
	Step string
	Err  error
	// Detail is the full diagnostic text, including a stack trace when the
	// step panicked.
	Detail string
}

// Result is the aggregated outcome of all steps run so far.
type Result struct {
	ExitCode int
	Failures []Failure
}

// ExitError is returned by Finish when the aggregated exit code is non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("finalization finished with exit code %d", e.Code)
}

// Option configures a Runner.
type Option func(*Runner)

// WithErrorWriter sets where collected diagnostics are dumped when the
// exit code is CodeFailure. Defaults to os.Stderr.
func WithErrorWriter(w io.Writer) Option {
	return func(r *Runner) {
		r.errOut = w
	}
}

// WithObserver registers a callback invoked after every step with the
// severity it contributed.
func WithObserver(fn func(step string, severity int)) Option {
	return func(r *Runner) {
		r.observe = fn
	}
}

// Runner runs steps one after another and merges their outcomes. It is
// not safe for concurrent use; steps are expected to run sequentially.
type Runner struct {
	errOut  io.Writer
	observe func(step string, severity int)

	code     int
	failures []Failure
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{errOut: os.Stderr}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes step and records its outcome. It never returns early because
// of an earlier failure and never propagates the step's error or panic.
// The returned Outcome is the step's own outcome (Stop for a failed step),
// which callers may use to decide whether to start further normal work.
func (r *Runner) Run(ctx context.Context, step Step) Outcome {
	log := clog.FromContext(ctx).With("step", step.Name)

	out, err := invoke(ctx, step)
	severity := CodeSuccess
	switch {
	case err != nil:
		severity = CodeFailure
		detail := err.Error()
		var p *panicError
		if errors.As(err, &p) {
			detail = fmt.Sprintf("%v\n%s", p.value, p.stack)
		}
		r.failures = append(r.failures, Failure{Step: step.Name, Err: err, Detail: detail})
		log.Errorf("Step failed: %v", err)
		out = StopWithCode(CodeFailure)
	case out.Stopped():
		severity = max(CodeAbort, out.Code())
		log.Infof("Step requested stop with code %d", out.Code())
	}

	r.code = max(r.code, severity)
	if r.observe != nil {
		r.observe(step.Name, severity)
	}
	return out
}

// Finish returns the aggregated result. When the exit code is non-zero it
// also returns an *ExitError carrying the code; for CodeFailure every
// collected diagnostic is written to the error writer first.
func (r *Runner) Finish() (*Result, error) {
	res := &Result{
		ExitCode: r.code,
		Failures: append([]Failure(nil), r.failures...),
	}
	if r.code == CodeSuccess {
		return res, nil
	}
	if r.code >= CodeFailure && r.errOut != nil {
		for _, f := range r.failures {
			fmt.Fprintf(r.errOut, "%s: %s\n", f.Step, f.Detail)
		}
	}
	return res, &ExitError{Code: r.code}
}

// RunAll runs every step in order through a fresh Runner and finishes it.
func RunAll(ctx context.Context, steps []Step, opts ...Option) (*Result, error) {
	r := New(opts...)
	for _, step := range steps {
		r.Run(ctx, step)
	}
	return r.Finish()
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func invoke(ctx context.Context, step Step) (out Outcome, err error) {
	defer func() {
		if v := recover(); v != nil {
			out, err = Outcome{}, &panicError{value: v, stack: debug.Stack()}
		}
	}()
	if step.Fn == nil {
		return Continue(), nil
	}
	return step.Fn(ctx)
}
