/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package perforce

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
)

// ChangeSubmitter reconciles files of an existing workspace and submits
// them as one change.
type ChangeSubmitter struct {
	Client    Client
	Workspace string
}

// Submit reconciles req.Paths and submits the result, returning the new
// changelist. It returns "" without submitting when the default change
// already holds files or when nothing was reconciled.
func (s *ChangeSubmitter) Submit(ctx context.Context, req vcs.SubmitRequest) (string, error) {
	log := clog.FromContext(ctx)
	if req.CreateReview {
		return "", vcs.Configurationf("'--create-review' option is not supported for Perforce at the moment")
	}

	clients, err := s.Client.Run(ctx, "clients", "-e", s.Workspace)
	if err != nil {
		return "", err
	}
	if len(clients) == 0 {
		return "", vcs.Configurationf("Workspace '%s' doesn't exist!", s.Workspace)
	}
	s.Client.SetClient(s.Workspace)

	spec, err := s.Client.Run(ctx, "client", "-o", s.Workspace)
	if err != nil {
		return "", err
	}
	var root string
	if len(spec) > 0 {
		root = spec[0]["Root"]
	}

	if change, err := s.defaultChange(ctx); err == nil {
		if files := change.List("Files"); len(files) > 0 {
			var b strings.Builder
			b.WriteString("Default CL already contains the following files before reconciling:\n")
			for _, f := range files {
				fmt.Fprintf(&b, " * %s\n", f)
			}
			b.WriteString("Submitting skipped")
			log.Info(b.String())
			return "", nil
		}
	}

	for _, p := range req.Paths {
		target := p
		if !strings.HasPrefix(target, "/") {
			target = root + "/" + target
		}
		if strings.HasSuffix(target, "/") {
			target += "..."
		}

		reconciled, err := s.reconcile(ctx, target, req.EditOnly)
		if err != nil {
			return "", err
		}
		if req.EditOnly && len(reconciled) == 0 {
			rel, _ := filepath.Rel(root, target)
			log.Infof("The file was not edited. Skipping '%s'...", rel)
		}
		for _, r := range reconciled {
			if r["action"] != "add" {
				continue
			}
			if _, err := s.Client.Run(ctx, "reopen", "-t", "+w", r["depotFile"]); err != nil {
				return "", err
			}
		}
	}

	change, err := s.defaultChange(ctx)
	if err != nil {
		return "", err
	}
	if len(change.List("Files")) == 0 {
		log.Info("Nothing to submit")
		return "", nil
	}
	change["Description"] = req.Description

	result, err := s.Client.RunInput(ctx, "submit", change, "-i", "-f", "revertunchanged")
	if err != nil {
		return "", err
	}
	for i := len(result) - 1; i >= 0; i-- {
		if cl := result[i]["submittedChange"]; cl != "" {
			return cl, nil
		}
	}
	return "", &vcs.BackendError{Op: "submit", Message: "no submitted change reported"}
}

func (s *ChangeSubmitter) defaultChange(ctx context.Context) (Record, error) {
	rows, err := s.Client.Run(ctx, "change", "-o")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return Record{}, nil
	}
	return rows[0], nil
}

func (s *ChangeSubmitter) reconcile(ctx context.Context, path string, editOnly bool) ([]Record, error) {
	args := []string{path}
	if editOnly {
		args = []string{"-e", path}
	}
	rows, err := s.Client.Run(ctx, "reconcile", args...)
	if err != nil {
		if vcs.HasText(err, "no file(s) to reconcile") {
			return nil, nil
		}
		return nil, err
	}
	return rows, nil
}
