/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package vcs

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports settings that can never work: missing
// credentials, mutually exclusive options, malformed mappings. It is fatal
// and never retried.
type ConfigurationError struct {
	Msg string
	Err error
}

// Configurationf builds a ConfigurationError from a format string.
func Configurationf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// BackendError wraps any failure reported by the backing repository.
type BackendError struct {
	Op       string
	Message  string
	Warnings []string
}

func (e *BackendError) Error() string {
	var parts []string
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	parts = append(parts, e.Warnings...)
	text := strings.Join(parts, "\n")
	if e.Op == "" {
		return text
	}
	return e.Op + ": " + text
}

// Contains reports whether substr appears in the message or any warning.
func (e *BackendError) Contains(substr string) bool {
	if strings.Contains(e.Message, substr) {
		return true
	}
	for _, w := range e.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

// HasText reports whether err, or a BackendError it wraps, mentions substr.
func HasText(err error, substr string) bool {
	if err == nil {
		return false
	}
	var be *BackendError
	if errors.As(err, &be) && be.Contains(substr) {
		return true
	}
	return strings.Contains(err.Error(), substr)
}

// IsConfiguration reports whether err is, or wraps, a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Reclassification turns a backend diagnostic matching Pattern into a
// ConfigurationError carrying Hint.
type Reclassification struct {
	Pattern string
	Hint    string
}

// Reclassifications is the single table of backend diagnostics known to be
// configuration mistakes.
var Reclassifications = []Reclassification{{
	Pattern: "not in client view",
	Hint: "Possible reasons of this error:" +
		"\n * Wrong formatting (e.g. no '/...' in the end of directory path)" +
		"\n * Location in 'SYNC_CHANGELIST' is not actually located inside any of 'P4_MAPPINGS'",
}}

// Reclassify returns a ConfigurationError wrapping err when its text matches
// an entry of table, and err unchanged otherwise.
func Reclassify(err error, table []Reclassification) error {
	if err == nil || IsConfiguration(err) {
		return err
	}
	for _, r := range table {
		if HasText(err, r.Pattern) {
			return &ConfigurationError{Msg: r.Hint, Err: err}
		}
	}
	return err
}
