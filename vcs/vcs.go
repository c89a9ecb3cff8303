/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package vcs

import (
	"context"
	"fmt"

	"chainguard.dev/buildvcs/finalize"
)

// Type selects the backing repository kind.
type Type string

const (
	TypeNone     Type = "none"
	TypePerforce Type = "p4"
	TypeGit      Type = "git"
)

// Mode selects which capabilities a driver is built for.
type Mode string

const (
	ModeMain   Mode = "main"
	ModePoll   Mode = "poll"
	ModeSubmit Mode = "submit"
)

// Connectable owns the session lifecycle with one backing repository.
type Connectable interface {
	// Connect establishes the session. It is a no-op when already connected.
	Connect(ctx context.Context) error
	// Disconnect closes the session. An anomaly detected while
	// disconnecting is reported through the Outcome or the error so it
	// surfaces at finalization.
	Disconnect(ctx context.Context) (finalize.Outcome, error)
}

// Finalizer supplies the cleanup steps a driver needs once its work is done.
type Finalizer interface {
	// Teardown returns the cleanup steps to run through a finalize.Runner.
	Teardown() []finalize.Step
}

// WorkspacePreparer produces a working copy for a build and can restore it.
type WorkspacePreparer interface {
	Finalizer

	// Prepare creates and populates the working copy. A stopping Outcome
	// means the build must not run but finalization still must.
	Prepare(ctx context.Context) (finalize.Outcome, *Prepared, error)
	// Revert returns the working copy to pristine repository state after
	// snapshotting every locally changed file.
	Revert(ctx context.Context) ([]DiffEntry, error)
}

// Poller lists newly submitted changes without creating a workspace.
type Poller interface {
	// Poll returns, per location, the ids of at most limit changes submitted
	// after the reference id for that location, oldest first. A location
	// missing from reference starts at its latest change.
	Poll(ctx context.Context, reference map[string]string, limit int) (map[string][]string, error)
}

// Submitter turns local modifications into one submitted change.
type Submitter interface {
	// Submit returns the id of the new change, or "" when nothing was
	// submitted.
	Submit(ctx context.Context, req SubmitRequest) (string, error)
}

// Review is the code-review system a build may be reporting to.
type Review interface {
	// ID returns the identifier of the change under review.
	ID() string
	// IsLatestVersion reports whether the change being built is the most
	// recent version of the review.
	IsLatestVersion(ctx context.Context) (bool, error)
}

// SubmitRequest describes a submission.
type SubmitRequest struct {
	Description string
	Paths       []string
	// EditOnly restricts reconciliation to files already open for edit.
	EditOnly bool
	// CreateReview asks for a review instead of a direct submission.
	CreateReview bool
}

// ResolvedDepot is one synchronized location pinned to the revision that
// was actually downloaded.
type ResolvedDepot struct {
	Path     string `json:"path"`
	Revision string `json:"revision"`
}

// Prepared is handed to the consumer that requested preparation. It is
// scoped to a single build run.
type Prepared struct {
	Root string `json:"root"`
	// Depots is ordered like the configured mappings.
	Depots []ResolvedDepot `json:"depots"`
	// Shelves lists the pending changes applied on top, in apply order.
	Shelves []string `json:"shelves,omitempty"`
	// Status is the human-readable repository state.
	Status string `json:"-"`
}

// Env returns SYNC_CL_<n>=<revision> assignments, one per depot index, for
// build steps that read resolved revisions from their environment.
func (p *Prepared) Env() []string {
	env := make([]string, 0, len(p.Depots))
	for i, d := range p.Depots {
		env = append(env, fmt.Sprintf("SYNC_CL_%d=%s", i, d.Revision))
	}
	return env
}
