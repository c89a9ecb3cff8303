/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package perforce

import (
	"context"
	"strconv"

	"chainguard.dev/buildvcs/metrics"
	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
)

// Syncer downloads depot locations into the current workspace.
type Syncer struct {
	Client  Client
	Status  *vcs.Status
	Metrics *metrics.Recorder
}

// Sync pins every unpinned location to its latest submitted changelist and
// force-syncs each one. The result is ordered like depots.
func (s *Syncer) Sync(ctx context.Context, depots []DepotMapping) ([]vcs.ResolvedDepot, error) {
	log := clog.FromContext(ctx)
	if s.Status != nil {
		s.Status.Line("Sync CLs:")
	}

	resolved := make([]vcs.ResolvedDepot, 0, len(depots))
	for _, d := range depots {
		cl := d.Changelist
		if cl == "" {
			log.Infof("Getting latest CL number for '%s'", d.DepotPath)
			latest, err := LatestChange(ctx, s.Client, d.DepotPath)
			if err != nil {
				return nil, err
			}
			cl = latest
			log.Infof("Latest CL: %s", cl)
		}

		line := d.DepotPath + "@" + cl
		log.Infof("Downloading %s", line)
		result, err := s.Client.Run(ctx, "sync", "-f", line)
		if err != nil {
			return nil, vcs.Reclassify(err, vcs.Reclassifications)
		}

		if s.Status != nil {
			s.Status.Printf("    %s\n", line)
		}
		if len(result) > 0 {
			total := result[0]["totalFileCount"]
			log.Infof("Downloaded %s files.", total)
			if n, err := strconv.Atoi(total); err == nil {
				s.Metrics.FilesSynced(ctx, n)
			}
		}
		resolved = append(resolved, vcs.ResolvedDepot{Path: d.DepotPath, Revision: cl})
	}
	return resolved, nil
}

// LatestChange returns the newest submitted changelist under path.
func LatestChange(ctx context.Context, c Client, path string) (string, error) {
	changes, err := c.Run(ctx, "changes", "-m", "1", "-s", "submitted", path)
	if err != nil {
		return "", err
	}
	if len(changes) == 0 || changes[0]["change"] == "" {
		return "", vcs.Configurationf("Error getting latest CL number for '%s'"+
			"\nPlease check depot path formatting (e.g. '/...' in the end for directories)", path)
	}
	return changes[0]["change"], nil
}
