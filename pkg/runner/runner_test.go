// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/facebookincubator/chipsauto/pkg/config"
	"github.com/facebookincubator/chipsauto/pkg/remote/remotetest"
	"github.com/facebookincubator/chipsauto/pkg/shell"
)

func testJob() *config.JobSpec {
	return &config.JobSpec{
		SetupScript: config.DefaultSetupScript,
		RunScript:   config.DefaultRunScript,
		Project:     "cidc-biofx",
		BucketPath:  "gs://cidc-biofx/my project/",
		Cores:       "32",
	}
}

func TestCommands(t *testing.T) {
	c := CommandsFor(testJob(), "taing")
	assert.Equal(t, "/home/taing/utils/chips_automator.sh taing", c.Setup())
	assert.Equal(t, "/home/taing/utils/chips_automator_run_local.sh cidc-biofx 'cidc-biofx/my project/' 32", c.Run())

	job := testJob()
	job.Commit = "a1b2c3d"
	assert.Equal(t, "/home/taing/utils/chips_automator.sh taing a1b2c3d", CommandsFor(job, "taing").Setup())
}

func TestSetupAndLaunch(t *testing.T) {
	sess := &remotetest.Session{Handler: func(cmd string) shell.Result {
		if cmd == "/home/taing/utils/chips_automator.sh taing" {
			return shell.Result{Status: 1, Stderr: "mount: /mnt/ssd already mounted"}
		}
		return shell.Result{Stderr: "nohup: ignoring input"}
	}}
	r := New(sess)
	c := CommandsFor(testJob(), "taing")

	setup := r.Setup(context.Background(), c)
	assert.Equal(t, SetupStage, setup.Stage)
	assert.Len(t, setup.Failed(), 1)
	assert.EqualError(t, setup.Failed()[0].Err, "exit status 1: mount: /mnt/ssd already mounted")

	launch := r.Launch(context.Background(), c)
	assert.Empty(t, launch.Failed())
	assert.Equal(t, []string{c.Setup(), c.Run()}, sess.Commands())
}
