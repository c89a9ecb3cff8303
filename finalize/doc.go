/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package finalize runs teardown steps so that every one of them executes,
// regardless of what failed before it, and folds their results into a single
// process exit status.
//
// Each step returns an Outcome and an error:
//   - Continue() with a nil error is success.
//   - StopWithCode(n) is an intentional, silent early termination. Other steps
//     still run; the step contributes severity max(1, n).
//   - A non-nil error (or a panic) is an unexpected failure. It is recorded
//     with its diagnostic text and contributes severity 2.
//
// The final exit code is the maximum severity observed across all steps:
// 0 when everything succeeded, 1 when a step asked to stop, 2 when anything
// failed unexpectedly. For code 2 every collected diagnostic is written to
// the configured error writer, not just the first.
//
//	r := finalize.New()
//	r.Run(ctx, finalize.Step{Name: "revert", Fn: driver.Revert})
//	r.Run(ctx, finalize.Step{Name: "disconnect", Fn: conn.Disconnect})
//	res, err := r.Finish()
package finalize
