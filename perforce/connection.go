/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package perforce

import (
	"context"
	"strconv"
	"strings"

	"chainguard.dev/buildvcs/block"
	"chainguard.dev/buildvcs/finalize"
	"chainguard.dev/buildvcs/metrics"
	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
)

// Record is one row of tagged output from a server operation. List fields
// such as a client's View are stored with an index suffix (View0, View1...).
type Record map[string]string

// List returns the values of the indexed field prefix in index order.
func (r Record) List(prefix string) []string {
	var out []string
	for i := 0; ; i++ {
		v, ok := r[prefix+strconv.Itoa(i)]
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// SetList replaces the indexed field prefix with values.
func (r Record) SetList(prefix string, values []string) {
	for i := 0; ; i++ {
		k := prefix + strconv.Itoa(i)
		if _, ok := r[k]; !ok {
			break
		}
		delete(r, k)
	}
	for i, v := range values {
		r[prefix+strconv.Itoa(i)] = v
	}
}

// Client runs operations against one Perforce server.
type Client interface {
	// Connect binds the credentials and opens a session.
	Connect(ctx context.Context, creds Credentials) error
	// Disconnect closes the session and returns any warnings it produced.
	// Disconnecting a closed session yields a "Not connected" warning.
	Disconnect(ctx context.Context) ([]string, error)
	// Connected reports whether a session is open.
	Connected() bool
	// SetClient selects the workspace subsequent operations run in.
	SetClient(name string)
	// Run executes op with args. A failure, or output carrying warnings,
	// is reported as a *vcs.BackendError.
	Run(ctx context.Context, op string, args ...string) ([]Record, error)
	// RunInput is Run with form input, as for "client -i".
	RunInput(ctx context.Context, op string, input Record, args ...string) ([]Record, error)
}

// Credentials identify the server and the user.
type Credentials struct {
	Port     string
	User     string
	Password string
}

// Validate reports the first missing credential as a configuration error.
func (c Credentials) Validate() error {
	for _, f := range []struct{ value, name, env string }{
		{c.Port, "port", "P4PORT"},
		{c.User, "user", "P4USER"},
		{c.Password, "password", "P4PASSWD"},
	} {
		if f.value == "" {
			return vcs.Configurationf("Perforce %s is not specified, set %s", f.name, f.env)
		}
	}
	return nil
}

const notConnected = "Not connected"

// Connection owns the session lifecycle of a Client.
type Connection struct {
	client  Client
	creds   Credentials
	status  *vcs.Status
	metrics *metrics.Recorder
}

// NewConnection validates creds and returns a Connection. Status lines are
// appended to status, which may be nil.
func NewConnection(client Client, creds Credentials, status *vcs.Status, rec *metrics.Recorder) (*Connection, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if status == nil {
		status = &vcs.Status{}
	}
	return &Connection{client: client, creds: creds, status: status, metrics: rec}, nil
}

// Connect opens the session unless one is already open.
func (c *Connection) Connect(ctx context.Context) error {
	return block.Do(ctx, "Connecting", func(ctx context.Context) error {
		if c.client.Connected() {
			return nil
		}
		if err := c.client.Connect(ctx, c.creds); err != nil {
			return err
		}
		c.status.Printf("Perforce server: %s\n\n", c.creds.Port)
		return nil
	})
}

// Disconnect closes the session. Finding the session already closed means
// it was lost earlier in the run and is reported as a stop; any other
// warning is a failure carrying the full text.
func (c *Connection) Disconnect(ctx context.Context) (finalize.Outcome, error) {
	return block.Run(ctx, "Disconnecting", func(ctx context.Context) (finalize.Outcome, error) {
		warnings, err := c.client.Disconnect(ctx)
		if err != nil {
			return finalize.Continue(), err
		}
		if len(warnings) == 0 {
			return finalize.Continue(), nil
		}
		if strings.Contains(warnings[0], notConnected) {
			clog.FromContext(ctx).Error("Perforce client is not connected on disconnect. Something must have gone wrong")
			c.metrics.DisconnectAnomaly(ctx)
			return finalize.Stop(), nil
		}
		return finalize.Continue(), &vcs.BackendError{
			Op:       "disconnect",
			Message:  "Unexpected warning(s)",
			Warnings: warnings,
		}
	})
}
