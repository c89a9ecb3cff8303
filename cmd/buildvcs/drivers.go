/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"

	"chainguard.dev/buildvcs/gitvcs"
	"chainguard.dev/buildvcs/localvcs"
	"chainguard.dev/buildvcs/metrics"
	"chainguard.dev/buildvcs/perforce"
	"chainguard.dev/buildvcs/perforce/p4cli"
	"chainguard.dev/buildvcs/report"
	"chainguard.dev/buildvcs/retry"
	"chainguard.dev/buildvcs/review/githubreview"
	"chainguard.dev/buildvcs/review/swarm"
	"chainguard.dev/buildvcs/vcs"
	"golang.org/x/oauth2"
)

// pollDriver and submitDriver are the capabilities the poll and submit
// commands need.
type (
	pollDriver interface {
		vcs.Poller
		vcs.Finalizer
	}
	submitDriver interface {
		vcs.Submitter
		vcs.Finalizer
	}
)

// newPerforceClient is replaced in tests.
var newPerforceClient = defaultPerforceClient

func defaultPerforceClient(cfg *config) perforce.Client {
	return p4cli.New(p4cli.WithBinary(cfg.P4.Binary))
}

func (c *config) perforce() perforce.Config {
	return perforce.Config{
		Credentials: perforce.Credentials{
			Port:     c.P4.Port,
			User:     c.P4.User,
			Password: c.P4.Password,
		},
		Workspace:        c.P4.Client,
		Root:             c.ProjectRoot,
		ProjectDepotPath: c.P4.Path,
		Mappings:         vcs.UnifyArgumentList(c.P4.Mappings),
		SyncChangelists:  vcs.UnifyArgumentList(c.P4.SyncCLs),
		Shelves:          vcs.UnifyArgumentList(c.P4.Shelves),
		ForceClean:       c.ForceClean,
		ReviewID:         c.perforceReviewID(),
		Env:              c.env,
	}
}

// perforceReviewID is the change whose related changes are applied. Only
// Swarm reviews are backed by Perforce changes.
func (c *config) perforceReviewID() string {
	if c.Review.System != "swarm" {
		return ""
	}
	return c.Review.Change
}

func (c *config) git() gitvcs.Config {
	cfg := gitvcs.Config{
		Repo:        c.Git.Repo,
		Refspec:     c.Git.Refspec,
		CheckoutID:  c.Git.CheckoutID,
		CherryPicks: vcs.UnifyArgumentList(c.Git.CherryPicks),
		Root:        c.ProjectRoot,
		ForceClean:  c.ForceClean,
		User:        c.Git.User,
		Email:       c.Git.Email,
	}
	if c.Git.Token != "" {
		cfg.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.Git.Token})
	}
	return cfg
}

func newMainDriver(cfg *config, rec *metrics.Recorder, artifacts *report.Artifacts) (vcs.WorkspacePreparer, error) {
	switch cfg.Type {
	case vcs.TypePerforce:
		return perforce.NewMain(newPerforceClient(cfg), cfg.perforce(),
			perforce.WithBinary(cfg.P4.Binary),
			perforce.WithArtifacts(artifacts),
			perforce.WithMetrics(rec))
	case vcs.TypeGit:
		return gitvcs.NewMain(cfg.git(), gitvcs.WithMetrics(rec))
	case vcs.TypeNone:
		return localvcs.NewMain(localvcs.Config{
			Source:     cfg.Local.Source,
			Root:       cfg.ProjectRoot,
			ForceClean: cfg.ForceClean,
		}, localvcs.WithMetrics(rec))
	}
	return nil, unknownType(cfg.Type, vcs.ModeMain)
}

func newPollDriver(cfg *config, rec *metrics.Recorder) (pollDriver, error) {
	switch cfg.Type {
	case vcs.TypePerforce:
		return perforce.NewPoll(newPerforceClient(cfg), cfg.perforce(), perforce.WithMetrics(rec))
	case vcs.TypeGit:
		return gitvcs.NewPoll(cfg.git())
	}
	return nil, unknownType(cfg.Type, vcs.ModePoll)
}

func newSubmitDriver(cfg *config, rec *metrics.Recorder) (submitDriver, error) {
	switch cfg.Type {
	case vcs.TypePerforce:
		return perforce.NewSubmit(newPerforceClient(cfg), cfg.perforce(), perforce.WithMetrics(rec))
	case vcs.TypeGit:
		return gitvcs.NewSubmit(cfg.git())
	}
	return nil, unknownType(cfg.Type, vcs.ModeSubmit)
}

func unknownType(t vcs.Type, m vcs.Mode) error {
	return vcs.Configurationf("VCS_TYPE '%s' does not support the %s mode", t, m)
}

// newReview returns the configured code review, or nil when the build
// reports to none.
func newReview(ctx context.Context, cfg *config) (vcs.Review, error) {
	switch cfg.Review.System {
	case "":
		return nil, nil
	case "swarm":
		return swarm.New(swarm.Config{
			Server:   cfg.P4.SwarmHost,
			User:     cfg.P4.User,
			Password: cfg.P4.Password,
			ReviewID: cfg.Review.ID,
			Change:   cfg.Review.Change,
			Retry:    retry.DefaultConfig(),
		})
	case "github":
		number, err := cfg.Review.githubNumber()
		if err != nil {
			return nil, err
		}
		key, err := cfg.Review.privateKey()
		if err != nil {
			return nil, err
		}
		owner, repo := cfg.Review.ownerRepo()
		return githubreview.New(ctx, githubreview.Config{
			Owner:          owner,
			Repo:           repo,
			Number:         number,
			SHA:            cfg.Git.CheckoutID,
			Token:          cfg.Git.Token,
			AppID:          cfg.Review.AppID,
			InstallationID: cfg.Review.InstallationID,
			PrivateKey:     key,
			BaseURL:        cfg.Review.APIURL,
			Retry:          retry.DefaultConfig(),
		})
	}
	return nil, vcs.Configurationf("REVIEW_SYSTEM '%s' is not one of swarm, github", cfg.Review.System)
}
