/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package p4cli implements perforce.Client by running the p4 command line
// client with tagged output.
package p4cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"slices"
	"strings"

	"chainguard.dev/buildvcs/perforce"
	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
)

// Option configures a Client.
type Option func(*Client)

// WithBinary sets the p4 executable. Defaults to "p4" on PATH.
func WithBinary(path string) Option {
	return func(c *Client) { c.binary = path }
}

// Client is a perforce.Client backed by the p4 executable. It is not safe
// for concurrent use.
type Client struct {
	binary    string
	creds     perforce.Credentials
	workspace string
	connected bool
}

var _ perforce.Client = (*Client)(nil)

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{binary: "p4"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect stores creds and verifies them with "p4 login -s".
func (c *Client) Connect(ctx context.Context, creds perforce.Credentials) error {
	c.creds = creds
	if _, err := c.Run(ctx, "login", "-s"); err != nil {
		return fmt.Errorf("connecting to %s: %w", creds.Port, err)
	}
	c.connected = true
	return nil
}

// Disconnect closes the session.
func (c *Client) Disconnect(context.Context) ([]string, error) {
	if !c.connected {
		return []string{"Not connected"}, nil
	}
	c.connected = false
	return nil, nil
}

// Connected implements perforce.Client.
func (c *Client) Connected() bool {
	return c.connected
}

// SetClient implements perforce.Client.
func (c *Client) SetClient(name string) {
	c.workspace = name
}

// Run implements perforce.Client.
func (c *Client) Run(ctx context.Context, op string, args ...string) ([]perforce.Record, error) {
	return c.run(ctx, nil, op, args)
}

// RunInput implements perforce.Client.
func (c *Client) RunInput(ctx context.Context, op string, input perforce.Record, args ...string) ([]perforce.Record, error) {
	return c.run(ctx, strings.NewReader(RenderForm(input)), op, args)
}

func (c *Client) globalArgs() []string {
	args := []string{"-ztag", "-p", c.creds.Port, "-u", c.creds.User, "-P", c.creds.Password}
	if c.workspace != "" {
		args = append(args, "-c", c.workspace)
	}
	return args
}

func (c *Client) run(ctx context.Context, stdin io.Reader, op string, args []string) ([]perforce.Record, error) {
	argv := append(append(c.globalArgs(), op), args...)
	clog.FromContext(ctx).Debugf("p4 %s %s", op, strings.Join(args, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, argv...)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	records := Parse(stdout.String())
	diag := nonEmptyLines(stderr.String())

	var exitErr *exec.ExitError
	switch {
	case runErr != nil && !errors.As(runErr, &exitErr):
		return nil, &vcs.BackendError{Op: op, Message: runErr.Error()}
	case runErr != nil:
		msg := strings.Join(diag, "\n")
		if msg == "" {
			msg = runErr.Error()
		}
		return records, &vcs.BackendError{Op: op, Message: msg}
	case len(diag) > 0:
		return records, &vcs.BackendError{Op: op, Warnings: diag}
	}
	return records, nil
}

// Parse splits tagged output ("... key value" lines) into records. A line
// without the tag prefix continues the previous value, blank lines before
// it included, so free-form text such as change descriptions survives
// intact. A new record starts when a key repeats within the current one.
func Parse(out string) []perforce.Record {
	var (
		records []perforce.Record
		cur     perforce.Record
		lastKey string
		blanks  int
	)
	flush := func() {
		if len(cur) > 0 {
			records = append(records, cur)
		}
		cur, lastKey = nil, ""
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			blanks++
			continue
		}
		if !strings.HasPrefix(line, "... ") {
			if cur != nil && lastKey != "" {
				cur[lastKey] += strings.Repeat("\n", blanks+1) + line
			}
			blanks = 0
			continue
		}
		blanks = 0
		for strings.HasPrefix(line, "... ") {
			line = line[len("... "):]
		}
		key, value, _ := strings.Cut(line, " ")
		if _, seen := cur[key]; seen {
			flush()
		}
		if cur == nil {
			cur = perforce.Record{}
		}
		cur[key] = value
		lastKey = key
	}
	flush()
	return records
}

var listField = regexp.MustCompile(`^(View|Files|Jobs|AltRoots|ChangeView)(\d+)$`)

// RenderForm renders r as spec form input. Indexed list fields are grouped
// into one multi-line field; fields are sorted by name.
func RenderForm(r perforce.Record) string {
	lists := map[string]bool{}
	var scalars []string
	for k := range r {
		if m := listField.FindStringSubmatch(k); m != nil {
			lists[m[1]] = true
			continue
		}
		scalars = append(scalars, k)
	}
	slices.Sort(scalars)

	var b strings.Builder
	for _, k := range scalars {
		v := r[k]
		if strings.Contains(v, "\n") {
			fmt.Fprintf(&b, "%s:\n", k)
			for _, l := range strings.Split(strings.TrimRight(v, "\n"), "\n") {
				fmt.Fprintf(&b, "\t%s\n", l)
			}
		} else {
			fmt.Fprintf(&b, "%s:\t%s\n", k, v)
		}
		b.WriteString("\n")
	}

	names := make([]string, 0, len(lists))
	for n := range lists {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		fmt.Fprintf(&b, "%s:\n", n)
		for _, v := range r.List(n) {
			fmt.Fprintf(&b, "\t%s\n", v)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
