/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package perforce

import (
	"context"

	"chainguard.dev/buildvcs/block"
	"chainguard.dev/buildvcs/finalize"
	"chainguard.dev/buildvcs/metrics"
	"chainguard.dev/buildvcs/report"
	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
)

// Config holds the settings of every Perforce driver. Which fields are
// required depends on the mode.
type Config struct {
	Credentials

	// Workspace is the client name. The main driver creates it, the submit
	// driver requires it to exist.
	Workspace string
	// Root is the workspace root directory.
	Root string

	ProjectDepotPath string
	Mappings         []string
	SyncChangelists  []string
	Shelves          []string

	// ForceClean destroys a leftover workspace before creating it and
	// destroys the workspace again at teardown.
	ForceClean bool

	// ReviewID is the change under review, set when the build reports to a
	// code review. Its related changes are validated and applied.
	ReviewID string

	// Env supplies the legacy SHELVE_CHANGELIST_<n> variables. Defaults to
	// the process environment.
	Env envconfig.Lookuper
}

// Option configures a driver.
type Option func(*options)

type options struct {
	shell     Shell
	binary    string
	artifacts *report.Artifacts
	metrics   *metrics.Recorder
}

// WithShell sets the Shell used to compute the textual diff.
func WithShell(s Shell) Option {
	return func(o *options) { o.shell = s }
}

// WithBinary sets the p4 executable used to compute the textual diff.
func WithBinary(path string) Option {
	return func(o *options) { o.binary = path }
}

// WithArtifacts sets where the repository difference is written.
func WithArtifacts(a *report.Artifacts) Option {
	return func(o *options) { o.artifacts = a }
}

// WithMetrics sets the recorder for sync and shelve counters.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Main prepares a workspace for a build.
type Main struct {
	*Connection

	cfg      Config
	opts     options
	client   Client
	status   *vcs.Status
	mappings []DepotMapping
	depots   []DepotMapping

	workspace *Workspace
	index     LocalToDepotIndex
	shelves   []string
}

var (
	_ vcs.Connectable       = (*Main)(nil)
	_ vcs.WorkspacePreparer = (*Main)(nil)
)

// NewMain validates cfg and returns a main build driver.
func NewMain(client Client, cfg Config, opts ...Option) (*Main, error) {
	o := buildOptions(opts)
	status := &vcs.Status{}
	conn, err := NewConnection(client, cfg.Credentials, status, o.metrics)
	if err != nil {
		return nil, err
	}
	mappings, err := ParseMappings(cfg.ProjectDepotPath, cfg.Mappings)
	if err != nil {
		return nil, err
	}
	depots, err := ResolveDepots(mappings, cfg.SyncChangelists)
	if err != nil {
		return nil, err
	}
	if cfg.Env == nil {
		cfg.Env = envconfig.OsLookuper()
	}
	return &Main{
		Connection: conn,
		cfg:        cfg,
		opts:       o,
		client:     client,
		status:     status,
		mappings:   mappings,
		depots:     depots,
		workspace: &Workspace{
			Client: client,
			Name:   cfg.Workspace,
			Root:   cfg.Root,
			View:   BuildView(cfg.Workspace, mappings),
			Status: status,
		},
	}, nil
}

// Prepare connects, creates the workspace, syncs it, applies shelved
// changes and records the textual difference.
func (m *Main) Prepare(ctx context.Context) (finalize.Outcome, *vcs.Prepared, error) {
	if err := m.Connect(ctx); err != nil {
		return finalize.Continue(), nil, err
	}

	out, err := block.Run(ctx, "Creating workspace", m.createWorkspace)
	if err != nil || out.Stopped() {
		return out, nil, err
	}

	syncer := &Syncer{Client: m.client, Status: m.status, Metrics: m.opts.metrics}
	resolved, err := block.Run(ctx, "Downloading", func(ctx context.Context) ([]vcs.ResolvedDepot, error) {
		return syncer.Sync(ctx, m.depots)
	})
	if err != nil {
		return finalize.Continue(), nil, err
	}

	applier := &ShelveApplier{
		Client:     m.client,
		Status:     m.status,
		Metrics:    m.opts.metrics,
		Index:      &m.index,
		ReviewMode: m.cfg.ReviewID != "",
	}
	out, err = block.Run(ctx, "Unshelving", func(ctx context.Context) (finalize.Outcome, error) {
		return applier.Apply(ctx, m.shelves)
	})
	if err != nil || out.Stopped() {
		return out, nil, err
	}

	if len(m.shelves) > 0 {
		if err := block.Do(ctx, "Checking diff", func(ctx context.Context) error {
			return m.diff(ctx, resolved)
		}); err != nil {
			return finalize.Continue(), nil, err
		}
	}

	return finalize.Continue(), &vcs.Prepared{
		Root:    m.cfg.Root,
		Depots:  resolved,
		Shelves: m.shelves,
		Status:  m.status.String(),
	}, nil
}

func (m *Main) createWorkspace(ctx context.Context) (finalize.Outcome, error) {
	if m.cfg.Workspace == "" {
		return finalize.Continue(), vcs.Configurationf("P4CLIENT is not specified. Cannot create workspace")
	}

	var related []string
	if m.cfg.ReviewID != "" {
		var out finalize.Outcome
		err := block.Do(ctx, "Checking that current and master CLs related change IDs are the same", func(ctx context.Context) error {
			var err error
			out, related, err = ValidateRelated(ctx, m.client, m.cfg.ReviewID)
			return err
		})
		if err != nil || out.Stopped() {
			return out, err
		}
	}

	shelves, err := ResolveShelveSet(m.cfg.Shelves, m.cfg.Env, related)
	if err != nil {
		return finalize.Continue(), err
	}
	m.shelves = shelves

	return finalize.Continue(), m.workspace.Create(ctx, m.cfg.ForceClean)
}

func (m *Main) diff(ctx context.Context, resolved []vcs.ResolvedDepot) error {
	d := &Differ{Shell: m.opts.shell, Binary: m.opts.binary, Creds: m.cfg.Credentials, Client: m.cfg.Workspace}
	parts, err := d.Diff(ctx, resolved)
	if err != nil || len(parts) == 0 || m.opts.artifacts == nil {
		return err
	}
	if _, err := m.opts.artifacts.WriteDifference(parts); err != nil {
		return err
	}
	m.status.Printf("See '%s' for details on unshelved changes\n", report.DifferenceFile)
	return nil
}

// Revert snapshots the files changed by the build and applied shelves and
// reverts the workspace to depot state.
func (m *Main) Revert(ctx context.Context) ([]vcs.DiffEntry, error) {
	s := &Snapshotter{Client: m.client, Root: m.cfg.Root, Index: &m.index}
	return block.Run(ctx, "Revert workspace to depot state", func(ctx context.Context) ([]vcs.DiffEntry, error) {
		return s.SnapshotAndRevert(ctx, m.shelves)
	})
}

// Teardown destroys the workspace when ForceClean is set, then
// disconnects.
func (m *Main) Teardown() []finalize.Step {
	var steps []finalize.Step
	if m.cfg.ForceClean {
		steps = append(steps,
			finalize.Step{Name: "connect", Fn: finalize.Plain(m.Connect)},
			finalize.Step{Name: "clean workspace", Fn: finalize.Plain(func(ctx context.Context) error {
				return block.Do(ctx, "Cleaning workspace", m.workspace.Destroy)
			})},
		)
	}
	return append(steps, finalize.Step{Name: "disconnect", Fn: m.Disconnect})
}

// Poll lists submitted changes without creating a workspace.
type Poll struct {
	*Connection
	poller *ChangePoller
}

var (
	_ vcs.Connectable = (*Poll)(nil)
	_ vcs.Poller      = (*Poll)(nil)
	_ vcs.Finalizer   = (*Poll)(nil)
)

// NewPoll validates cfg and returns a poll driver.
func NewPoll(client Client, cfg Config, opts ...Option) (*Poll, error) {
	o := buildOptions(opts)
	conn, err := NewConnection(client, cfg.Credentials, nil, o.metrics)
	if err != nil {
		return nil, err
	}
	mappings, err := ParseMappings(cfg.ProjectDepotPath, cfg.Mappings)
	if err != nil {
		return nil, err
	}
	return &Poll{Connection: conn, poller: &ChangePoller{Client: client, Mappings: mappings}}, nil
}

// Poll implements vcs.Poller.
func (p *Poll) Poll(ctx context.Context, reference map[string]string, limit int) (map[string][]string, error) {
	if err := p.Connect(ctx); err != nil {
		return nil, err
	}
	clog.FromContext(ctx).Infof("Polling %d location(s)", len(p.poller.Mappings))
	return p.poller.Poll(ctx, reference, limit)
}

// Teardown disconnects.
func (p *Poll) Teardown() []finalize.Step {
	return []finalize.Step{{Name: "disconnect", Fn: p.Disconnect}}
}

// Submit submits workspace changes.
type Submit struct {
	*Connection
	submitter *ChangeSubmitter
}

var (
	_ vcs.Connectable = (*Submit)(nil)
	_ vcs.Submitter   = (*Submit)(nil)
	_ vcs.Finalizer   = (*Submit)(nil)
)

// NewSubmit validates cfg and returns a submit driver.
func NewSubmit(client Client, cfg Config, opts ...Option) (*Submit, error) {
	o := buildOptions(opts)
	conn, err := NewConnection(client, cfg.Credentials, nil, o.metrics)
	if err != nil {
		return nil, err
	}
	if cfg.Workspace == "" {
		return nil, vcs.Configurationf("P4CLIENT is not specified, an existing workspace is required to submit")
	}
	return &Submit{Connection: conn, submitter: &ChangeSubmitter{Client: client, Workspace: cfg.Workspace}}, nil
}

// Submit implements vcs.Submitter.
func (s *Submit) Submit(ctx context.Context, req vcs.SubmitRequest) (string, error) {
	if err := s.Connect(ctx); err != nil {
		return "", err
	}
	return block.Run(ctx, "Submitting", func(ctx context.Context) (string, error) {
		return s.submitter.Submit(ctx, req)
	})
}

// Teardown disconnects.
func (s *Submit) Teardown() []finalize.Step {
	return []finalize.Step{{Name: "disconnect", Fn: s.Disconnect}}
}
