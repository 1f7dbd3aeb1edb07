// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/facebookincubator/chipsauto/pkg/cerrors"
	"github.com/facebookincubator/chipsauto/pkg/remote/remotetest"
	"github.com/facebookincubator/chipsauto/pkg/shell"
)

func dialTest(t *testing.T, srv *remotetest.Server) *SSHSession {
	t.Helper()
	sess, err := Dial(context.Background(), DialConfig{
		Host:         srv.Host,
		Port:         srv.Port,
		User:         "taing",
		IdentityFile: srv.KeyFile,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func TestRun(t *testing.T) {
	srv := remotetest.NewServer(t, func(cmd string) remotetest.Reply {
		switch cmd {
		case "true":
			return remotetest.Reply{Stdout: []byte("ok\n")}
		case "bad-encoding":
			return remotetest.Reply{Stdout: []byte{'a', 0xff, 'b'}}
		}
		return remotetest.Reply{Stderr: []byte("no such file\n"), Status: 2}
	})
	sess := dialTest(t, srv)

	res := sess.Run(context.Background(), "true")
	require.True(t, res.OK())
	assert.Equal(t, "ok\n", res.Stdout)

	res = sess.Run(context.Background(), "ls /nope")
	assert.Equal(t, 2, res.Status)
	assert.NoError(t, res.Err)
	assert.Equal(t, "no such file\n", res.Stderr)
	assert.EqualError(t, res.Cause(), "exit status 2: no such file")

	res = sess.Run(context.Background(), "bad-encoding")
	assert.Equal(t, 0, res.Status)
	assert.Equal(t, "a�b", res.Stdout)
	var de *cerrors.ErrDecode
	require.True(t, errors.As(res.Err, &de))
	assert.Equal(t, "stdout", de.Stream)
	assert.Equal(t, 1, de.Offset)

	assert.Equal(t, []string{"true", "ls /nope", "bad-encoding"}, srv.Commands())
}

func TestRunCanceled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	srv := remotetest.NewServer(t, func(cmd string) remotetest.Reply {
		<-release
		return remotetest.Reply{}
	})
	sess := dialTest(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	res := sess.Run(ctx, "sleep 3600")
	assert.Equal(t, shell.TransportFailure, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Empty(t, res.Stdout)
}

func TestRunAfterClose(t *testing.T) {
	srv := remotetest.NewServer(t, nil)
	sess := dialTest(t, srv)
	require.NoError(t, sess.Close())
	// closing twice is fine
	_ = sess.Close()

	res := sess.Run(context.Background(), "true")
	assert.Equal(t, shell.TransportFailure, res.Status)
	assert.Error(t, res.Err)
}

func TestDialRetriesUntilReachable(t *testing.T) {
	srv := remotetest.NewServer(t, nil)
	orig := dialSSH
	defer func() { dialSSH = orig }()
	attempts := 0
	dialSSH = func(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
		attempts++
		if attempts < 3 {
			return nil, errRefused
		}
		return orig(ctx, addr, cfg)
	}

	sess, err := Dial(context.Background(), DialConfig{
		Host:         srv.Host,
		Port:         srv.Port,
		User:         "taing",
		IdentityFile: srv.KeyFile,
		Backoff:      Backoff{Initial: time.Millisecond, Max: time.Millisecond, Factor: 2, Budget: time.Minute},
	})
	require.NoError(t, err)
	defer sess.Close()
	assert.Equal(t, 3, attempts)
	assert.Equal(t, srv.Addr(), sess.Addr())
	assert.NotNil(t, sess.Client())
}

func TestDialRejectedKeyIsFatal(t *testing.T) {
	srv := remotetest.NewServer(t, nil)
	other := remotetest.NewServer(t, nil)

	_, err := Dial(context.Background(), DialConfig{
		Host:         srv.Host,
		Port:         srv.Port,
		User:         "taing",
		IdentityFile: other.KeyFile,
		Backoff:      Backoff{Initial: time.Millisecond, Max: time.Millisecond, Factor: 2, Budget: time.Minute},
	})
	var ce *cerrors.ErrConnect
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Attempts)
	assert.True(t, strings.Contains(err.Error(), "unable to authenticate"), err.Error())
}

func TestDialBadKeyFile(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(keyFile, []byte("not a key"), 0600))
	_, err := Dial(context.Background(), DialConfig{Host: "127.0.0.1", User: "taing", IdentityFile: keyFile})
	var ce *cerrors.ErrConnect
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 0, ce.Attempts)
}
