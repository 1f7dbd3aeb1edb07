// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package remotetest

import (
	"context"
	"sync"

	"github.com/facebookincubator/chipsauto/pkg/shell"
)

// Session is an in-memory remote.Session. Run answers through Handler, or
// succeeds with no output when Handler is nil.
type Session struct {
	Handler func(cmd string) shell.Result

	mu       sync.Mutex
	commands []string
	closed   int
}

// Run records cmd and returns the handler's result.
func (s *Session) Run(ctx context.Context, cmd string) shell.Result {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return shell.Failed(err)
	}
	if s.Handler == nil {
		return shell.Result{}
	}
	return s.Handler(cmd)
}

// Close counts calls.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Commands returns the commands run so far.
func (s *Session) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Closed returns how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
