/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package vcs

import (
	"fmt"
	"strings"
)

// Status accumulates the human-readable repository state written to the
// status artifact.
type Status struct {
	b strings.Builder
}

// Printf appends formatted text verbatim.
func (s *Status) Printf(format string, args ...any) {
	fmt.Fprintf(&s.b, format, args...)
}

// Line appends one line.
func (s *Status) Line(text string) {
	s.b.WriteString(text)
	s.b.WriteByte('\n')
}

func (s *Status) String() string {
	return s.b.String()
}
