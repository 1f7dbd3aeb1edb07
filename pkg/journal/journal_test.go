// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 10, 5, 12, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "runs.db")
	j, err := Open(path, mock)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Run{ID: "r1", JobPath: "job.yaml", Instance: "chips-auto-x", Status: StatusStarted, JobSnapshot: "instance_name: x\n"}))
	mock.Add(time.Minute)
	require.NoError(t, j.Record(ctx, Run{ID: "r2", JobPath: "other.yaml", Status: StatusStarted}))
	mock.Add(time.Minute)
	require.NoError(t, j.Record(ctx, Run{ID: "r1", Address: "34.1.2.3", Status: StatusProvisioned}))
	require.NoError(t, j.SetStatus(ctx, "r2", StatusFailed, "provisioning step 'create instance' failed"))

	r1, err := j.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "job.yaml", r1.JobPath)
	assert.Equal(t, "chips-auto-x", r1.Instance)
	assert.Equal(t, "34.1.2.3", r1.Address)
	assert.Equal(t, StatusProvisioned, r1.Status)
	assert.Equal(t, "instance_name: x\n", r1.JobSnapshot)
	assert.Equal(t, time.Date(2026, 10, 5, 12, 0, 0, 0, time.UTC), r1.CreatedAt)
	assert.Equal(t, time.Date(2026, 10, 5, 12, 2, 0, 0, time.UTC), r1.UpdatedAt)

	_, err = j.Get(ctx, "r3")
	assert.Equal(t, ErrNotFound, err)
	require.NoError(t, j.Close())

	// entries survive reopening
	j, err = Open(path, mock)
	require.NoError(t, err)
	defer j.Close()
	runs, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r1", runs[0].ID)
	assert.Equal(t, StatusFailed, runs[1].Status)
	assert.Equal(t, "provisioning step 'create instance' failed", runs[1].Error)
}
