// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package remote

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/facebookincubator/chipsauto/pkg/config"
)

// Backoff is an exponential retry schedule bounded by a total budget.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	// Budget bounds the time spent in Retry, attempts included. No new wait
	// is started if it would end past the budget.
	Budget time.Duration
}

// DefaultBackoff returns the schedule used to wait for a fresh instance.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial: config.ConnectInitialBackoff,
		Max:     config.ConnectMaxBackoff,
		Factor:  2,
		Budget:  config.ConnectBudget,
	}
}

// Next returns the wait that follows prev.
func (b Backoff) Next(prev time.Duration) time.Duration {
	if prev <= 0 {
		return b.Initial
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	next := time.Duration(float64(prev) * factor)
	if b.Max > 0 && next > b.Max {
		next = b.Max
	}
	return next
}

// Retry calls op until it succeeds, returns an error that retryable rejects,
// the budget runs out or ctx is done. It returns the number of attempts and
// the last error.
func (b Backoff) Retry(ctx context.Context, clk clock.Clock, retryable func(error) bool, op func(context.Context) error) (int, error) {
	if clk == nil {
		clk = clock.New()
	}
	start := clk.Now()
	var wait time.Duration
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, err
		}
		if !retryable(err) {
			return attempt, err
		}
		wait = b.Next(wait)
		if clk.Since(start)+wait > b.Budget {
			return attempt, err
		}
		log.Debugf("attempt %d failed (%v), retrying in %s", attempt, err, wait)
		select {
		case <-ctx.Done():
			return attempt, err
		case <-clk.After(wait):
		}
	}
}

// IsRetryable tells whether a dial error is expected while an instance is
// still booting.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EHOSTUNREACH, syscall.ENETUNREACH} {
		if errors.Is(err, errno) {
			return true
		}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "handshake failed: EOF")
}
