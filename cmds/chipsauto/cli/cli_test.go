// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package cli

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facebookincubator/chipsauto/pkg/cerrors"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	err := CLIMain(context.Background(), "chipsauto", args, strings.NewReader(""), &out)
	return out.String(), err
}

func writeJob(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

func TestHelp(t *testing.T) {
	out, err := runCLI(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "-c <job.yaml> -u <user> -k <key file>")
	assert.Contains(t, out, "--cleanup-on-failure")
}

func TestMissingConfig(t *testing.T) {
	out, err := runCLI(t, "-u", "taing", "-k", "key")
	assert.True(t, errors.Is(err, ErrUsage))
	assert.Contains(t, out, "missing yaml job description")
	assert.Contains(t, out, "Usage:")

	_, err = runCLI(t, "-c", filepath.Join(t.TempDir(), "nope.yaml"), "-u", "taing", "-k", "key")
	assert.True(t, errors.Is(err, ErrUsage))
}

func TestMissingUserOrKey(t *testing.T) {
	job := writeJob(t, "instance_name: x\n")
	out, err := runCLI(t, "-c", job, "-k", "key")
	assert.True(t, errors.Is(err, ErrUsage))
	assert.Contains(t, out, "missing user or key file")

	_, err = runCLI(t, "--config", job, "--user", "taing")
	assert.True(t, errors.Is(err, ErrUsage))
}

func TestInvalidFlags(t *testing.T) {
	job := writeJob(t, "instance_name: x\n")
	for _, args := range [][]string{
		{"--policy", "retry"},
		{"--mode", "nfs"},
		{"--upload", "rsync"},
		{"--workers", "0"},
		{"--log-level", "chatty"},
		{"--no-such-flag"},
	} {
		_, err := runCLI(t, append([]string{"-c", job, "-u", "taing", "-k", "key"}, args...)...)
		assert.True(t, errors.Is(err, ErrUsage), "%v: %v", args, err)
	}
}

func TestInvalidJobStopsBeforeProvisioning(t *testing.T) {
	job := writeJob(t, "instance_name: x\ncores: 8\n")
	_, err := runCLI(t, "-c", job, "-u", "taing", "-k", "key")
	var ve *cerrors.ErrValidation
	require.True(t, errors.As(err, &ve))
	assert.ElementsMatch(t, []string{"disk_size", "google_bucket_path", "samples", "metasheet"}, ve.Missing)
}
