// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package stage collects per-item outcomes of best-effort stages and decides,
// according to a policy, whether the run goes on after failures.
package stage

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/facebookincubator/chipsauto/pkg/cerrors"
)

// Outcome is the result of one item of a stage, e.g. one file copy.
type Outcome struct {
	Item string
	Err  error
}

// OK reports whether the item succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Report holds the outcomes of one stage in the order they were recorded.
// A Report is not safe for concurrent use.
type Report struct {
	Stage    string
	Outcomes []Outcome
}

// NewReport returns an empty report for the named stage.
func NewReport(stage string) *Report {
	return &Report{Stage: stage}
}

// Add records the outcome of item; a nil err is a success.
func (r *Report) Add(item string, err error) {
	r.Outcomes = append(r.Outcomes, Outcome{Item: item, Err: err})
}

// Failed returns the failed outcomes.
func (r *Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// FailedItems returns the names of the failed items.
func (r *Report) FailedItems() []string {
	var items []string
	for _, o := range r.Failed() {
		items = append(items, o.Item)
	}
	return items
}

// Succeeded returns the number of successful outcomes.
func (r *Report) Succeeded() int {
	return len(r.Outcomes) - len(r.Failed())
}

func (r *Report) String() string {
	return fmt.Sprintf("%s: %d succeeded, %d failed", r.Stage, r.Succeeded(), len(r.Failed()))
}

// Policy tells what to do when a stage reports failures.
type Policy int

// Failure policies.
const (
	// Continue logs the failures and proceeds.
	Continue Policy = iota
	// Halt stops the run.
	Halt
	// Confirm asks the operator.
	Confirm
)

var policyNames = map[Policy]string{
	Continue: "continue",
	Halt:     "halt",
	Confirm:  "confirm",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	for p, name := range policyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return Continue, fmt.Errorf("unknown failure policy '%s', must be one of continue, halt, confirm", s)
}

// Decider applies a Policy to reports. In and Out are used by Confirm to talk
// to the operator.
type Decider struct {
	Policy Policy
	In     io.Reader
	Out    io.Writer

	// in buffers In across prompts.
	in *bufio.Reader
}

// Decide returns nil when the run may proceed past r, or a
// *cerrors.ErrStageHalted otherwise.
func (d *Decider) Decide(r *Report) error {
	failed := r.FailedItems()
	if len(failed) == 0 {
		return nil
	}
	halted := &cerrors.ErrStageHalted{Stage: r.Stage, Failed: failed}
	switch d.Policy {
	case Continue:
		return nil
	case Confirm:
		if d.In == nil || d.Out == nil {
			return halted
		}
		fmt.Fprintf(d.Out, "%s\n", r)
		for _, o := range r.Failed() {
			fmt.Fprintf(d.Out, "  %s: %v\n", o.Item, o.Err)
		}
		fmt.Fprintf(d.Out, "Continue anyway? [y/N] ")
		if d.in == nil {
			d.in = bufio.NewReader(d.In)
		}
		answer, err := d.in.ReadString('\n')
		if err != nil && answer == "" {
			return halted
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return nil
		}
		return halted
	default:
		return halted
	}
}
