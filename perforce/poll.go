/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package perforce

import (
	"context"
	"slices"
	"strconv"
)

// ChangePoller lists changes submitted under each mapping.
type ChangePoller struct {
	Client   Client
	Mappings []DepotMapping
}

// Poll returns, per depot path, at most limit submitted changes from the
// reference change to head, oldest first. A path with no reference starts
// at its latest change.
func (p *ChangePoller) Poll(ctx context.Context, reference map[string]string, limit int) (map[string][]string, error) {
	if limit < 1 {
		limit = 1
	}

	result := make(map[string][]string, len(p.Mappings))
	for _, m := range p.Mappings {
		path := m.DepotPath
		if _, ok := result[path]; ok {
			continue
		}
		changes, err := p.pollPath(ctx, path, reference[path], limit)
		if err != nil {
			return nil, err
		}
		result[path] = changes
	}
	return result, nil
}

func (p *ChangePoller) pollPath(ctx context.Context, path, ref string, limit int) ([]string, error) {
	if ref == "" {
		latest, err := LatestChange(ctx, p.Client, path)
		if err != nil {
			return nil, err
		}
		ref = latest
	}

	changes, err := p.Client.Run(ctx, "changes", "-s", "submitted", "-m"+strconv.Itoa(limit), path+"@"+ref+",#head")
	if err != nil {
		return nil, err
	}
	slices.Reverse(changes)
	ids := make([]string, 0, len(changes))
	for _, c := range changes {
		ids = append(ids, c["change"])
	}
	return ids, nil
}
