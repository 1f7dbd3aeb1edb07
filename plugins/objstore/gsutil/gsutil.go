// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package gsutil implements objstore.Store on top of the gsutil CLI.
package gsutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/facebookincubator/chipsauto/pkg/logging"
	"github.com/facebookincubator/chipsauto/pkg/shell"
)

var log = logging.GetLogger("gsutil")

// Name is the name of this object store backend.
const Name = "gsutil"

// Binary is the gsutil executable. It is looked up in PATH.
var Binary = "gsutil"

const noMatch = "matched no objects"

// Store runs gsutil through an Executor.
type Store struct {
	exec shell.Executor
}

// New returns a Store. A nil executor runs gsutil locally.
func New(exec shell.Executor) *Store {
	if exec == nil {
		exec = shell.Local{}
	}
	return &Store{exec: exec}
}

// Exists lists uri. A listing that matches nothing means the object is
// absent; any other failure is returned.
func (s *Store) Exists(ctx context.Context, uri string) (bool, error) {
	res := s.exec.Exec(ctx, Binary, "ls", uri)
	if err := res.RunErr(); err != nil {
		return false, fmt.Errorf("cannot list %s: %w", uri, err)
	}
	if res.Status == 0 {
		return true, nil
	}
	if strings.Contains(res.Stderr, noMatch) {
		log.Debugf("%s does not exist", uri)
		return false, nil
	}
	return false, fmt.Errorf("cannot list %s: %w", uri, res.Cause())
}

// Copy copies src to dst with parallel transfers enabled.
func (s *Store) Copy(ctx context.Context, src, dst string) error {
	res := s.exec.Exec(ctx, Binary, "-m", "cp", src, dst)
	if !res.OK() {
		return fmt.Errorf("cannot copy %s to %s: %w", src, dst, res.Cause())
	}
	return nil
}
