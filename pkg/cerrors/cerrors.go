// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package cerrors

import (
	"fmt"
	"strings"
)

// ErrValidation is returned when a job description cannot be used. It
// carries every problem found in a single pass so the operator can fix them
// all at once.
type ErrValidation struct {
	// Missing holds the required keys that are absent or falsy.
	Missing []string
	// InvalidFiles holds the declared input references that could not be
	// found in object storage.
	InvalidFiles []string
	// Problems holds any other malformed value, in a human readable form.
	Problems []string
}

// Empty reports whether no problem was recorded.
func (e *ErrValidation) Empty() bool {
	return len(e.Missing) == 0 && len(e.InvalidFiles) == 0 && len(e.Problems) == 0
}

// Error returns the error string associated with the error
func (e *ErrValidation) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.InvalidFiles) > 0 {
		parts = append(parts, fmt.Sprintf("invalid or non-existent input files: %s", strings.Join(e.InvalidFiles, ", ")))
	}
	if len(e.Problems) > 0 {
		parts = append(parts, strings.Join(e.Problems, "; "))
	}
	return "invalid job description: " + strings.Join(parts, "; ")
}

// ErrMixedManifest indicates that a sample manifest mixes the list shape and
// the named-field shape.
type ErrMixedManifest struct {
	Sample string
	Want   string
	Got    string
}

// Error returns the error string associated with the error
func (e *ErrMixedManifest) Error() string {
	return fmt.Sprintf("sample %s is a %s but the manifest is a %s", e.Sample, e.Got, e.Want)
}

// ErrProvision indicates that a provisioning step failed. Steps after it
// were not attempted.
type ErrProvision struct {
	Step string
	Err  error
}

// Error returns the error string associated with the error
func (e *ErrProvision) Error() string {
	return fmt.Sprintf("provisioning step '%s' failed: %v", e.Step, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ErrProvision) Unwrap() error {
	return e.Err
}

// ErrConnect indicates that the remote session could not be established
// within the retry budget, or failed with a non-retryable error.
type ErrConnect struct {
	Addr     string
	Attempts int
	Err      error
}

// Error returns the error string associated with the error
func (e *ErrConnect) Error() string {
	return fmt.Sprintf("cannot connect to %s after %d attempt(s): %v", e.Addr, e.Attempts, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ErrConnect) Unwrap() error {
	return e.Err
}

// ErrDecode indicates that command output was not valid UTF-8.
type ErrDecode struct {
	Stream string
	Offset int
}

// Error returns the error string associated with the error
func (e *ErrDecode) Error() string {
	return fmt.Sprintf("%s is not valid UTF-8 (first invalid byte at offset %d)", e.Stream, e.Offset)
}

// ErrStageHalted is returned when a stage reported failures and the failure
// policy decided not to continue.
type ErrStageHalted struct {
	Stage  string
	Failed []string
}

// Error returns the error string associated with the error
func (e *ErrStageHalted) Error() string {
	return fmt.Sprintf("stage %s halted with %d failure(s): %s", e.Stage, len(e.Failed), strings.Join(e.Failed, ", "))
}
