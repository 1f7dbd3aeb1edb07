// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package shell

import (
	"context"
	"errors"
	"testing"

	"github.com/facebookincubator/chipsauto/pkg/cerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValid(t *testing.T) {
	res := Decode([]byte("héllo\n"), nil)
	require.NoError(t, res.Err)
	assert.Equal(t, "héllo\n", res.Stdout)
	assert.Equal(t, "", res.Stderr)
}

func TestDecodeInvalid(t *testing.T) {
	res := Decode([]byte("ok"), []byte{'a', 'b', 0xff, 'c'})

	var de *cerrors.ErrDecode
	require.True(t, errors.As(res.Err, &de))
	assert.Equal(t, "stderr", de.Stream)
	assert.Equal(t, 2, de.Offset)
	assert.Equal(t, "ab�c", res.Stderr)
	assert.Equal(t, "ok", res.Stdout)
}

func TestResultCause(t *testing.T) {
	assert.NoError(t, Result{}.Cause())
	assert.True(t, Result{}.OK())

	res := Result{Status: 1, Stderr: "CommandException: No URLs matched\n"}
	assert.False(t, res.OK())
	assert.EqualError(t, res.Cause(), "exit status 1: CommandException: No URLs matched")

	res = Failed(errors.New("dial tcp: refused"))
	assert.Equal(t, TransportFailure, res.Status)
	assert.EqualError(t, res.Cause(), "dial tcp: refused")
}

func TestResultCauseIgnoresDecodeErrors(t *testing.T) {
	res := Decode(nil, []byte{'a', 0xff})
	res.Status = 0
	assert.True(t, res.OK())
	assert.NoError(t, res.RunErr())
	assert.NoError(t, res.Cause())

	res.Status = 2
	assert.False(t, res.OK())
	assert.EqualError(t, res.Cause(), "exit status 2: a\ufffd")
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "gsutil -m cp 'gs://b/a b.fq' /mnt/ssd/chips/data/S1", Join("gsutil", "-m", "cp", "gs://b/a b.fq", "/mnt/ssd/chips/data/S1"))
}

func TestLocalExec(t *testing.T) {
	res := Local{}.Exec(context.Background(), "sh", "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Status)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestLocalExecMissingBinary(t *testing.T) {
	res := Local{}.Exec(context.Background(), "/nonexistent/definitely-not-here")
	assert.Equal(t, TransportFailure, res.Status)
	assert.Error(t, res.Err)
}
