// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package remote provides the command channel to a provisioned instance.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/crypto/ssh"

	"github.com/facebookincubator/chipsauto/pkg/cerrors"
	"github.com/facebookincubator/chipsauto/pkg/config"
	"github.com/facebookincubator/chipsauto/pkg/logging"
	"github.com/facebookincubator/chipsauto/pkg/shell"
)

var log = logging.GetLogger("remote")

// Session runs commands on one remote host.
type Session interface {
	Run(ctx context.Context, cmd string) shell.Result
	Close() error
}

// DialConfig describes how to reach an instance.
type DialConfig struct {
	Host         string
	Port         int
	User         string
	IdentityFile string
	// HandshakeTimeout bounds a single connection attempt.
	HandshakeTimeout time.Duration
	Backoff          Backoff
	Clock            clock.Clock
}

func (c DialConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// dialSSH opens one SSH connection. It is a variable so tests can count or
// fail attempts.
var dialSSH = func(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// Dial connects to the instance, retrying while it is not reachable yet.
// The host key is trusted on first contact.
func Dial(ctx context.Context, cfg DialConfig) (*SSHSession, error) {
	addr := cfg.addr()
	key, err := os.ReadFile(cfg.IdentityFile)
	if err != nil {
		return nil, &cerrors.ErrConnect{Addr: addr, Err: fmt.Errorf("cannot read key file: %w", err)}
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, &cerrors.ErrConnect{Addr: addr, Err: fmt.Errorf("cannot parse key file %s: %w", cfg.IdentityFile, err)}
	}
	timeout := cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = config.SSHHandshakeTimeout
	}
	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	backoff := cfg.Backoff
	if backoff == (Backoff{}) {
		backoff = DefaultBackoff()
	}

	log.Infof("connecting to %s@%s", cfg.User, addr)
	var client *ssh.Client
	attempts, err := backoff.Retry(ctx, cfg.Clock, IsRetryable, func(ctx context.Context) error {
		c, err := dialSSH(ctx, addr, clientCfg)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, &cerrors.ErrConnect{Addr: addr, Attempts: attempts, Err: err}
	}
	log.Infof("connected to %s after %d attempt(s)", addr, attempts)
	return NewSSHSession(client, addr), nil
}

// SSHSession is a Session over an SSH connection. Every command runs in its
// own SSH session, so Run may be called concurrently.
type SSHSession struct {
	addr   string
	client *ssh.Client

	closeOnce sync.Once
	closeErr  error
}

// NewSSHSession wraps an established connection.
func NewSSHSession(client *ssh.Client, addr string) *SSHSession {
	return &SSHSession{addr: addr, client: client}
}

// Addr returns the address the session is connected to.
func (s *SSHSession) Addr() string {
	return s.addr
}

// Client returns the underlying connection, e.g. to open an SFTP channel.
func (s *SSHSession) Client() *ssh.Client {
	return s.client
}

// Run executes cmd and waits for it to finish or for ctx to be done, in
// which case the remote command is killed.
func (s *SSHSession) Run(ctx context.Context, cmd string) shell.Result {
	sess, err := s.client.NewSession()
	if err != nil {
		return shell.Failed(fmt.Errorf("cannot open session on %s: %w", s.addr, err))
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	log.Debugf("%s: %s", s.addr, cmd)
	if err := sess.Start(cmd); err != nil {
		return shell.Failed(fmt.Errorf("cannot start command on %s: %w", s.addr, err))
	}

	done := make(chan error, 1)
	go func() {
		done <- sess.Wait()
	}()
	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		return shell.Failed(fmt.Errorf("command interrupted: %w", ctx.Err()))
	case err = <-done:
	}

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res := shell.Decode(stdout.Bytes(), stderr.Bytes())
		res.Status = exitErr.ExitStatus()
		return res
	default:
		return shell.Failed(fmt.Errorf("command failed on %s: %w", s.addr, err))
	}
	return shell.Decode(stdout.Bytes(), stderr.Bytes())
}

// Close releases the connection. Calling Close more than once is safe.
func (s *SSHSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}
