/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package lifecycle drives a repository driver through one build run:
// preparation, the build itself, an optional revert and the driver's
// teardown. Every step after preparation runs through a finalize.Runner, so
// cleanup is attempted whatever failed before it.
package lifecycle

import (
	"context"
	"errors"

	"chainguard.dev/buildvcs/block"
	"chainguard.dev/buildvcs/finalize"
	"chainguard.dev/buildvcs/report"
	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
)

// BuildFunc runs the build against a prepared workspace.
type BuildFunc func(ctx context.Context, p *vcs.Prepared) error

// Option configures Run and Do.
type Option func(*config)

type config struct {
	review    vcs.Review
	revert    bool
	artifacts *report.Artifacts
	finalize  []finalize.Option
}

// WithReview reports whether the change built is the latest version of
// this review.
func WithReview(r vcs.Review) Option {
	return func(c *config) { c.review = r }
}

// WithRevert reverts the workspace after the build and records what
// changed.
func WithRevert(revert bool) Option {
	return func(c *config) { c.revert = revert }
}

// WithArtifacts writes the repository state and file diffs to a.
func WithArtifacts(a *report.Artifacts) Option {
	return func(c *config) { c.artifacts = a }
}

// WithFinalizeOptions passes options to the finalize.Runner.
func WithFinalizeOptions(opts ...finalize.Option) Option {
	return func(c *config) { c.finalize = append(c.finalize, opts...) }
}

// Result is the outcome of one run.
type Result struct {
	// ExitCode is the process exit status: the larger of a stop requested
	// by preparation and the finalization code.
	ExitCode int
	Prepared *vcs.Prepared
	// Diff lists the files changed during the run, when reverted.
	Diff []vcs.DiffEntry
	// LatestReview is nil unless a review was consulted.
	LatestReview *bool
	Failures     []finalize.Failure
}

func newConfig(opts []Option) *config {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run prepares d, runs build unless preparation failed or asked to stop,
// then reverts when requested and tears d down. The returned error is a
// *finalize.ExitError when the exit code is non-zero.
func Run(ctx context.Context, d vcs.WorkspacePreparer, build BuildFunc, opts ...Option) (*Result, error) {
	cfg := newConfig(opts)
	log := clog.FromContext(ctx)
	r := finalize.New(cfg.finalize...)
	res := &Result{}

	var stop *finalize.Outcome
	r.Run(ctx, finalize.Step{Name: "prepare", Fn: func(ctx context.Context) (finalize.Outcome, error) {
		return finalize.Continue(), block.Do(ctx, "Preparing repository", func(ctx context.Context) error {
			out, p, err := d.Prepare(ctx)
			res.Prepared = p
			if out.Stopped() {
				stop = &out
				log.Infof("Preparation stopped the run with code %d", out.Code())
			}
			return err
		})
	}})

	ready := res.Prepared != nil && stop == nil
	if ready {
		if cfg.artifacts != nil {
			r.Run(ctx, finalize.Step{Name: "report state", Fn: finalize.Plain(func(context.Context) error {
				_, err := cfg.artifacts.WriteState(res.Prepared)
				return err
			})})
		}
		if cfg.review != nil {
			r.Run(ctx, finalize.Step{Name: "check review version", Fn: finalize.Plain(func(ctx context.Context) error {
				latest, err := cfg.review.IsLatestVersion(ctx)
				if err != nil {
					return err
				}
				res.LatestReview = &latest
				if !latest {
					log.Warnf("Review %s has a newer version than the one being built", cfg.review.ID())
				}
				return nil
			})})
		}
		if build != nil {
			r.Run(ctx, finalize.Step{Name: "build", Fn: finalize.Plain(func(ctx context.Context) error {
				return build(ctx, res.Prepared)
			})})
		}
		if cfg.revert {
			r.Run(ctx, finalize.Step{Name: "revert", Fn: finalize.Plain(func(ctx context.Context) error {
				return revert(ctx, d, cfg.artifacts, res)
			})})
		}
	}

	for _, step := range d.Teardown() {
		r.Run(ctx, step)
	}
	return finish(r, res, stop)
}

func revert(ctx context.Context, d vcs.WorkspacePreparer, a *report.Artifacts, res *Result) error {
	entries, err := d.Revert(ctx)
	if err != nil {
		return err
	}
	res.Diff = entries
	if a == nil {
		return nil
	}
	_, err = a.WriteFileDiffs(res.Prepared.Root, entries)
	return err
}

// Do runs fn, then the teardown of f, through one finalize.Runner. It
// serves the poll and submit modes, which have no build.
func Do(ctx context.Context, name string, fn func(context.Context) error, f vcs.Finalizer, opts ...Option) (*Result, error) {
	cfg := newConfig(opts)
	r := finalize.New(cfg.finalize...)
	r.Run(ctx, finalize.Step{Name: name, Fn: finalize.Plain(fn)})
	for _, step := range f.Teardown() {
		r.Run(ctx, step)
	}
	return finish(r, &Result{}, nil)
}

func finish(r *finalize.Runner, res *Result, stop *finalize.Outcome) (*Result, error) {
	fin, err := r.Finish()
	res.Failures = fin.Failures
	res.ExitCode = fin.ExitCode
	if stop != nil && stop.Code() > res.ExitCode {
		res.ExitCode = stop.Code()
	}
	if res.ExitCode == finalize.CodeSuccess {
		return res, nil
	}
	var exitErr *finalize.ExitError
	if errors.As(err, &exitErr) {
		exitErr.Code = res.ExitCode
		return res, exitErr
	}
	return res, &finalize.ExitError{Code: res.ExitCode}
}
