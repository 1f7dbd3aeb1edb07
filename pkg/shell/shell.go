// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package shell defines the result of running a command, locally or on a
// remote host, and a thin executor for local binaries such as gsutil,
// gcloud and scp.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/facebookincubator/chipsauto/pkg/cerrors"
	"github.com/facebookincubator/chipsauto/pkg/logging"
	shellquote "github.com/kballard/go-shellquote"
)

var log = logging.GetLogger("shell")

// TransportFailure is the status reported when the command could not be
// run at all.
const TransportFailure = -1

// Result is the outcome of one command.
type Result struct {
	Status int
	Stdout string
	Stderr string
	// Err is set when the command could not be run or its output could not
	// be decoded. A command that ran and exited non-zero has a nil Err, see
	// RunErr.
	Err error
}

// OK reports whether the command ran and exited zero. Output that could not
// be decoded does not make a command fail.
func (r Result) OK() bool {
	return r.Status == 0 && r.RunErr() == nil
}

// RunErr returns Err unless Err only reports undecodable output.
func (r Result) RunErr() error {
	var de *cerrors.ErrDecode
	if errors.As(r.Err, &de) {
		return nil
	}
	return r.Err
}

// Cause returns an error describing why the command did not succeed, or nil.
// Decode errors are logged.
func (r Result) Cause() error {
	if err := r.RunErr(); err != nil {
		return err
	}
	if r.Err != nil {
		log.Warningf("%v", r.Err)
	}
	if r.Status != 0 {
		msg := strings.TrimSpace(r.Stderr)
		if msg == "" {
			return fmt.Errorf("exit status %d", r.Status)
		}
		return fmt.Errorf("exit status %d: %s", r.Status, msg)
	}
	return nil
}

// Failed returns the Result of a command that never ran.
func Failed(err error) Result {
	return Result{Status: TransportFailure, Err: err}
}

// Decode turns raw command output into text. Invalid UTF-8 is replaced and
// reported through Err as a *cerrors.ErrDecode.
func Decode(stdout, stderr []byte) Result {
	var res Result
	res.Stdout, res.Err = decode("stdout", stdout)
	var err error
	res.Stderr, err = decode("stderr", stderr)
	if res.Err == nil {
		res.Err = err
	}
	return res
}

func decode(stream string, b []byte) (string, error) {
	if utf8.Valid(b) {
		return string(b), nil
	}
	offset := 0
	for offset < len(b) {
		r, size := utf8.DecodeRune(b[offset:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		offset += size
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError)), &cerrors.ErrDecode{Stream: stream, Offset: offset}
}

// Join renders a command line the way it would be typed in a shell.
func Join(bin string, args ...string) string {
	return shellquote.Join(append([]string{bin}, args...)...)
}

// Executor runs local binaries.
type Executor interface {
	Exec(ctx context.Context, bin string, args ...string) Result
}

// Local is an Executor backed by os/exec.
type Local struct{}

// Exec runs bin with args and waits for it to exit.
func (Local) Exec(ctx context.Context, bin string, args ...string) Result {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	log.Debugf("running local command: %s", Join(bin, args...))
	err := cmd.Run()
	if err != nil {
		var e *exec.ExitError
		if !errors.As(err, &e) {
			return Failed(fmt.Errorf("failed to run %s: %w", bin, err))
		}
	}
	res := Decode(stdout.Bytes(), stderr.Bytes())
	if cmd.ProcessState != nil {
		res.Status = cmd.ProcessState.ExitCode()
	}
	return res
}
