/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package perforce

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
)

// ErrWorkspaceExists is returned when a workspace of the requested name is
// already present on the server.
var ErrWorkspaceExists = errors.New("workspace already exists")

const doesNotExist = "doesn't exist"

// Workspace is a named client bound to a root directory and a view.
type Workspace struct {
	Client Client
	Name   string
	Root   string
	View   []string
	Status *vcs.Status
}

// Create creates the workspace. With forceClean a leftover workspace of the
// same name is destroyed first; without it, finding one is an error.
func (w *Workspace) Create(ctx context.Context, forceClean bool) error {
	if w.Name == "" {
		return vcs.Configurationf("P4CLIENT is not specified. Cannot create workspace")
	}
	if w.Root == "" || len(w.View) == 0 {
		return vcs.Configurationf("Workspace is not created. Some of these parameters are missing: " +
			"client name, root directory or mappings.")
	}

	if forceClean {
		if err := w.Destroy(ctx); err != nil {
			return err
		}
	}

	existing, err := w.Client.Run(ctx, "clients", "-e", w.Name)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("workspace '%s': %w", w.Name, ErrWorkspaceExists)
	}

	spec, err := w.Client.Run(ctx, "client", "-o", w.Name)
	if err != nil {
		return err
	}
	form := Record{"Client": w.Name}
	if len(spec) > 0 {
		form = spec[0]
	}
	form["Root"] = w.Root
	form.SetList("View", w.View)
	if _, err := w.Client.RunInput(ctx, "client", form, "-i"); err != nil {
		return err
	}
	w.Client.SetClient(w.Name)
	clog.FromContext(ctx).Infof("Workspace '%s' created/updated.", w.Name)

	if w.Status != nil {
		w.Status.Printf("Workspace: %s\n", w.Name)
		w.Status.Printf("Workspace root: %s\n", w.Root)
		w.Status.Line("Mappings:")
		for _, v := range w.View {
			w.Status.Printf("    %s\n", v)
		}
	}
	return nil
}

// Destroy reverts every pending change in the workspace, best effort, and
// deletes it. Destroying a workspace that does not exist succeeds.
func (w *Workspace) Destroy(ctx context.Context) error {
	log := clog.FromContext(ctx)
	w.Client.SetClient(w.Name)

	reverted, err := w.Client.Run(ctx, "revert", "//...")
	if err != nil {
		log.Debugf("Revert before deleting workspace: %v", err)
	}
	logFiles(ctx, reverted)

	if _, err := w.Client.Run(ctx, "client", "-d", w.Name); err != nil {
		if vcs.HasText(err, doesNotExist) {
			log.Infof("Workspace '%s' doesn't exist, nothing to delete", w.Name)
			return nil
		}
		return err
	}
	log.Infof("Workspace '%s' deleted.", w.Name)
	return nil
}

// logFiles logs the file actions reported by an operation.
func logFiles(ctx context.Context, records []Record) {
	log := clog.FromContext(ctx)
	for _, r := range records {
		if df, ok := r["depotFile"]; ok {
			log.Infof("%s (%s)", df, r["action"])
		}
	}
}
