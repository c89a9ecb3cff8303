/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// pollState remembers, per location, the last change already reported.
type pollState struct {
	Locations map[string]string `yaml:"locations"`
}

func loadPollState(path string) (*pollState, error) {
	state := &pollState{Locations: map[string]string{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading poll state: %w", err)
	}
	if err := yaml.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing poll state %s: %w", path, err)
	}
	if state.Locations == nil {
		state.Locations = map[string]string{}
	}
	return state, nil
}

func (s *pollState) save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding poll state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing poll state: %w", err)
	}
	return nil
}

// update records polled changes and returns those not reported before,
// keyed by location. A location seen for the first time reports nothing
// new; its latest change becomes the reference.
func (s *pollState) update(polled map[string][]string) map[string][]string {
	fresh := map[string][]string{}
	for _, loc := range slices.Sorted(maps.Keys(polled)) {
		changes := polled[loc]
		if len(changes) == 0 {
			continue
		}
		if ref, ok := s.Locations[loc]; ok {
			for _, c := range changes {
				if c != ref {
					fresh[loc] = append(fresh[loc], c)
				}
			}
		}
		s.Locations[loc] = changes[len(changes)-1]
	}
	return fresh
}
