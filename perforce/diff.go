/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package perforce

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
)

// Shell runs an external command and returns what it wrote.
type Shell interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecShell is a Shell that runs commands with os/exec.
type ExecShell struct{}

// Run implements Shell.
func (ExecShell) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// benignDiff reports stderr lines of "p4 diff" caused by transient archive
// problems on the server, which do not affect the diff itself.
func benignDiff(line string) bool {
	return strings.HasPrefix(line, "Librarian checkout") ||
		strings.HasPrefix(line, "Error opening librarian file") ||
		strings.HasPrefix(line, "Transfer of librarian file") ||
		strings.HasSuffix(line, ".gz: No such file or directory") ||
		strings.Contains(line, "file(s) up-to-date")
}

// Differ computes the textual difference between the workspace and the
// depot by running "p4 diff".
type Differ struct {
	Shell  Shell
	Binary string
	Creds  Credentials
	Client string
}

// Diff returns the non-empty diff of every location.
func (d *Differ) Diff(ctx context.Context, depots []vcs.ResolvedDepot) ([]string, error) {
	shell := d.Shell
	if shell == nil {
		shell = ExecShell{}
	}
	bin := d.Binary
	if bin == "" {
		bin = "p4"
	}

	var out []string
	for _, dep := range depots {
		line := dep.Path + "@" + dep.Revision
		stdout, stderr, err := shell.Run(ctx, bin,
			"-c", d.Client, "-u", d.Creds.User, "-P", d.Creds.Password, "-p", d.Creds.Port,
			"diff", line)
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) && stderr == "" {
				return nil, &vcs.BackendError{Op: "diff", Message: err.Error()}
			}
			for _, l := range strings.Split(strings.TrimSpace(stderr), "\n") {
				if l != "" && !benignDiff(l) {
					return nil, &vcs.BackendError{Op: "diff", Message: strings.TrimSpace(stderr)}
				}
			}
			clog.FromContext(ctx).Debugf("Tolerated diff warnings for %s: %s", line, stderr)
		}
		if text := strings.TrimSpace(stdout); text != "" {
			out = append(out, text+"\n")
		}
	}
	return out, nil
}
