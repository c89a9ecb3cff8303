/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package perforce

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"chainguard.dev/buildvcs/finalize"
	"chainguard.dev/buildvcs/metrics"
	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
)

// shelveEnvCount is how many SHELVE_CHANGELIST_<n> variables are read.
const shelveEnvCount = 5

const relatedPrefix = "[Related change IDs]"

var (
	// ErrNotRelated is returned when a change declares related changes
	// that do not include itself.
	ErrNotRelated = errors.New("current CL is not in related list")
	// ErrRelatedMismatch is returned when a change and its master declare
	// different related changes.
	ErrRelatedMismatch = errors.New("related CLs list doesn't match master CL related list")
)

// ResolveShelveSet merges the configured shelved changes, the legacy
// SHELVE_CHANGELIST_1..5 variables read from env and the related changes of
// a review. The result is deduplicated and sorted numerically.
func ResolveShelveSet(configured []string, env envconfig.Lookuper, related []string) ([]string, error) {
	all := slices.Clone(related)
	if env != nil {
		for i := 1; i <= shelveEnvCount; i++ {
			if v, ok := env.Lookup(fmt.Sprintf("SHELVE_CHANGELIST_%d", i)); ok {
				all = append(all, v)
			}
		}
	}
	all = vcs.UnifyArgumentList(append(slices.Clone(configured), all...)...)

	ids := make([]uint64, 0, len(all))
	for _, s := range all {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, vcs.Configurationf("shelved changelist %q is not a number", s)
		}
		ids = append(ids, n)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	out := make([]string, 0, len(ids))
	for _, n := range ids {
		out = append(out, strconv.FormatUint(n, 10))
	}
	return out, nil
}

// RelatedChanges returns the related changes declared in the description of
// cl, or just cl when it declares none. A declared list must contain cl.
func RelatedChanges(ctx context.Context, c Client, cl string) ([]string, error) {
	desc, err := c.Run(ctx, "describe", "-s", cl)
	if err != nil {
		return nil, err
	}
	if len(desc) == 0 {
		return []string{cl}, nil
	}
	for line := range strings.Lines(desc[0]["desc"]) {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), relatedPrefix)
		if !ok {
			continue
		}
		var ids []string
		for _, id := range strings.Split(rest, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if !slices.Contains(ids, cl) {
			return nil, fmt.Errorf("change %s: %w", cl, ErrNotRelated)
		}
		return ids, nil
	}
	return []string{cl}, nil
}

// ValidateRelated checks the related changes of cl against those of its
// master, the last entry of the list. When cl is not the master and the
// lists agree, there is nothing to build for cl and the returned outcome
// stops the run successfully.
func ValidateRelated(ctx context.Context, c Client, cl string) (finalize.Outcome, []string, error) {
	list, err := RelatedChanges(ctx, c, cl)
	if err != nil {
		return finalize.Continue(), nil, err
	}
	master := list[len(list)-1]
	if master == cl {
		return finalize.Continue(), list, nil
	}

	masterList, err := RelatedChanges(ctx, c, master)
	if err != nil {
		return finalize.Continue(), nil, err
	}
	if !slices.Equal(list, masterList) {
		return finalize.Continue(), list, fmt.Errorf("change %s (master %s): %w", cl, master, ErrRelatedMismatch)
	}

	clog.FromContext(ctx).Info("Not a master CL, no check needed")
	return finalize.StopWithCode(finalize.CodeSuccess), list, nil
}

// LocalToDepotIndex pairs local file paths with the depot files they came
// from, as reported while applying shelved changes. Snapshots use it to find
// where a moved file used to live.
type LocalToDepotIndex struct {
	byDepot map[string]string
}

// Record adds one local path and its depot file.
func (ix *LocalToDepotIndex) Record(local, depot string) {
	if ix.byDepot == nil {
		ix.byDepot = make(map[string]string)
	}
	ix.byDepot[depot] = local
}

// LocalFor returns the local path recorded for a depot file.
func (ix *LocalToDepotIndex) LocalFor(depot string) (string, bool) {
	l, ok := ix.byDepot[depot]
	return l, ok
}

// ShelveApplier applies shelved changes to the current workspace.
type ShelveApplier struct {
	Client  Client
	Status  *vcs.Status
	Metrics *metrics.Recorder
	Index   *LocalToDepotIndex
	// ReviewMode is set when the build reports to a code review.
	ReviewMode bool
}

// Apply unshelves every change in order. A single reviewed change that was
// committed meanwhile stops the run successfully.
func (a *ShelveApplier) Apply(ctx context.Context, shelves []string) (finalize.Outcome, error) {
	if len(shelves) == 0 {
		return finalize.Continue(), nil
	}
	log := clog.FromContext(ctx)
	if a.Status != nil {
		a.Status.Printf("Shelve CLs:")
	}

	for _, cl := range shelves {
		log.Infof("Unshelve CL %s", cl)
		files, err := a.Client.Run(ctx, "unshelve", "-s", cl, "-f")
		if err != nil {
			if vcs.HasText(err, "already committed") && a.ReviewMode && len(shelves) == 1 {
				log.Info("CL already committed")
				return finalize.StopWithCode(finalize.CodeSuccess), nil
			}
			return finalize.Continue(), err
		}
		if err := a.index(ctx, files); err != nil {
			return finalize.Continue(), err
		}
		logFiles(ctx, files)
		a.Metrics.ShelveApplied(ctx)
		if a.Status != nil {
			a.Status.Printf(" %s", cl)
		}
	}
	if a.Status != nil {
		a.Status.Line("")
	}
	return finalize.Continue(), nil
}

func (a *ShelveApplier) index(ctx context.Context, files []Record) error {
	if a.Index == nil {
		return nil
	}
	for _, f := range files {
		df, ok := f["depotFile"]
		if !ok {
			continue
		}
		where, err := a.Client.Run(ctx, "where", df)
		if err != nil {
			return err
		}
		if len(where) > 0 && where[0]["path"] != "" {
			a.Index.Record(where[0]["path"], df)
		}
	}
	return nil
}
