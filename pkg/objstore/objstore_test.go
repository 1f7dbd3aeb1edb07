// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package objstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferPath(t *testing.T) {
	assert.Equal(t, "gs://mybucket/path/", TransferPath("mybucket/path"))
	assert.Equal(t, "gs://mybucket/path/", TransferPath("gs://mybucket/path/"))
	assert.Equal(t, "gs://mybucket/path/", TransferPath("gs://mybucket/path"))
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "mybucket/path", StripScheme("gs://mybucket/path"))
	assert.Equal(t, "mybucket/path", StripScheme("mybucket/path"))
}

func TestParseURI(t *testing.T) {
	u, err := ParseURI("gs://b/dir/a_R1.fq.gz")
	require.NoError(t, err)
	assert.Equal(t, URI{Bucket: "b", Object: "dir/a_R1.fq.gz"}, u)
	assert.Equal(t, "gs://b/dir/a_R1.fq.gz", u.String())

	u, err = ParseURI("gs://b/")
	require.NoError(t, err)
	assert.Equal(t, URI{Bucket: "b"}, u)

	_, err = ParseURI("s3://b/a")
	assert.Error(t, err)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "a_R1.fq.gz", BaseName("gs://b/dir/a_R1.fq.gz"))
}
