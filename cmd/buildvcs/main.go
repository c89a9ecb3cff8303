/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command buildvcs prepares repository workspaces for CI builds.
//
// Usage:
//
//	buildvcs run [flags] [-- command [args...]]
//	buildvcs prepare [flags]
//	buildvcs poll [flags]
//	buildvcs submit [flags]
//
// Every flag has an environment variable equivalent; flags win.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"os/signal"
	"slices"
	"syscall"

	"chainguard.dev/buildvcs/block"
	"chainguard.dev/buildvcs/finalize"
	"chainguard.dev/buildvcs/lifecycle"
	"chainguard.dev/buildvcs/metrics"
	"chainguard.dev/buildvcs/report"
	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
)

const usage = `buildvcs prepares repository workspaces for CI builds.

Commands:
  run      prepare the workspace, run the build command, revert and clean up
  prepare  prepare the workspace and print its description as JSON
  poll     report changes submitted since the last poll
  submit   submit local modifications as one change

Run "buildvcs <command> --help" for the flags of a command.
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], envconfig.OsLookuper(), os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, env envconfig.Lookuper, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return finalize.CodeFailure
	}
	command, args := args[0], args[1:]
	switch command {
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return finalize.CodeSuccess
	case "run", "prepare", "poll", "submit":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return finalize.CodeFailure
	}

	fs := newFlagSet(command)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return finalize.CodeSuccess
		}
		return finalize.CodeFailure
	}

	cfg, err := loadConfig(ctx, fs, env)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return finalize.CodeFailure
	}
	ctx = clog.WithLogger(ctx, newLogger(stderr, cfg.LogLevel, cfg.LogFormat))
	rec := metrics.New(string(cfg.Type)).WithEnricher(commandAttributes(command))
	fopts := []finalize.Option{
		finalize.WithObserver(rec.Observer(ctx)),
		finalize.WithErrorWriter(stderr),
	}

	switch command {
	case "run":
		err = runBuild(ctx, cfg, rec, fs.Args(), fopts, stdout, stderr)
	case "prepare":
		err = prepare(ctx, cfg, rec, fopts, stdout)
	case "poll":
		err = poll(ctx, cfg, rec, fopts, stdout)
	case "submit":
		err = submit(ctx, cfg, rec, fopts, stdout)
	}

	if cfg.MetricsFile != "" {
		if werr := metrics.WriteTextfile(cfg.MetricsFile); werr != nil {
			clog.FromContext(ctx).Errorf("Failed to export metrics: %v", werr)
		}
	}
	return exitCode(ctx, err)
}

// commandAttributes labels recorded data points with the command being run.
func commandAttributes(command string) metrics.AttributeEnricher {
	return func(_ context.Context, base []attribute.KeyValue) []attribute.KeyValue {
		return append(base, attribute.String("command", command))
	}
}

func exitCode(ctx context.Context, err error) int {
	if err == nil {
		return finalize.CodeSuccess
	}
	var exit *finalize.ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	clog.FromContext(ctx).Errorf("%v", err)
	return finalize.CodeFailure
}

// newLogger returns the text logger, or with format "gcp" the structured
// handler installed as the slog default at startup.
func newLogger(w io.Writer, level, format string) *clog.Logger {
	if format == "gcp" {
		return clog.New(slog.Default().Handler())
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return clog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func runBuild(ctx context.Context, cfg *config, rec *metrics.Recorder, command []string, fopts []finalize.Option, stdout, stderr io.Writer) error {
	artifacts := report.New(cfg.ArtifactDir)
	d, err := newMainDriver(cfg, rec, artifacts)
	if err != nil {
		return err
	}
	review, err := newReview(ctx, cfg)
	if err != nil {
		return err
	}

	opts := []lifecycle.Option{
		lifecycle.WithArtifacts(artifacts),
		lifecycle.WithRevert(cfg.Revert),
		lifecycle.WithFinalizeOptions(fopts...),
	}
	if review != nil {
		opts = append(opts, lifecycle.WithReview(review))
	}
	var build lifecycle.BuildFunc
	if len(command) > 0 {
		build = execBuild(command, stdout, stderr)
	}
	_, err = lifecycle.Run(ctx, d, build, opts...)
	return err
}

// execBuild runs command in the workspace root with the resolved
// revisions added to its environment.
func execBuild(command []string, stdout, stderr io.Writer) lifecycle.BuildFunc {
	return func(ctx context.Context, p *vcs.Prepared) error {
		return block.Do(ctx, "Running build", func(ctx context.Context) error {
			cmd := exec.CommandContext(ctx, command[0], command[1:]...)
			cmd.Dir = p.Root
			cmd.Env = append(os.Environ(), p.Env()...)
			cmd.Stdout = stdout
			cmd.Stderr = stderr
			if err := cmd.Run(); err != nil {
				return fmt.Errorf("running %s: %w", command[0], err)
			}
			return nil
		})
	}
}

func prepare(ctx context.Context, cfg *config, rec *metrics.Recorder, fopts []finalize.Option, stdout io.Writer) error {
	artifacts := report.New(cfg.ArtifactDir)
	d, err := newMainDriver(cfg, rec, artifacts)
	if err != nil {
		return err
	}
	res, err := lifecycle.Run(ctx, d, nil,
		lifecycle.WithArtifacts(artifacts),
		lifecycle.WithFinalizeOptions(fopts...))
	if res != nil && res.Prepared != nil {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if eerr := enc.Encode(res.Prepared); eerr != nil && err == nil {
			err = eerr
		}
	}
	return err
}

func poll(ctx context.Context, cfg *config, rec *metrics.Recorder, fopts []finalize.Option, stdout io.Writer) error {
	state, err := loadPollState(cfg.Poll.StateFile)
	if err != nil {
		return err
	}
	d, err := newPollDriver(cfg, rec)
	if err != nil {
		return err
	}

	var fresh map[string][]string
	_, err = lifecycle.Do(ctx, "poll", func(ctx context.Context) error {
		polled, err := d.Poll(ctx, state.Locations, cfg.Poll.Max)
		if err != nil {
			return err
		}
		fresh = state.update(polled)
		return state.save(cfg.Poll.StateFile)
	}, d, lifecycle.WithFinalizeOptions(fopts...))

	for _, loc := range slices.Sorted(maps.Keys(fresh)) {
		for _, change := range fresh[loc] {
			fmt.Fprintf(stdout, "%s %s\n", loc, change)
		}
	}
	return err
}

func submit(ctx context.Context, cfg *config, rec *metrics.Recorder, fopts []finalize.Option, stdout io.Writer) error {
	d, err := newSubmitDriver(cfg, rec)
	if err != nil {
		return err
	}

	var change string
	_, err = lifecycle.Do(ctx, "submit", func(ctx context.Context) error {
		var err error
		change, err = d.Submit(ctx, vcs.SubmitRequest{
			Description:  cfg.Submit.Message,
			Paths:        vcs.UnifyArgumentList(cfg.Submit.Files),
			EditOnly:     cfg.Submit.EditOnly,
			CreateReview: cfg.Submit.CreateReview,
		})
		return err
	}, d, lifecycle.WithFinalizeOptions(fopts...))

	if change != "" {
		fmt.Fprintln(stdout, change)
	}
	return err
}
