// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package runner issues the pipeline setup and run commands on the instance.
package runner

import (
	"context"
	"strings"

	"github.com/facebookincubator/chipsauto/pkg/config"
	"github.com/facebookincubator/chipsauto/pkg/logging"
	"github.com/facebookincubator/chipsauto/pkg/objstore"
	"github.com/facebookincubator/chipsauto/pkg/remote"
	"github.com/facebookincubator/chipsauto/pkg/shell"
	"github.com/facebookincubator/chipsauto/pkg/stage"
)

var log = logging.GetLogger("runner")

// Report stage names.
const (
	SetupStage  = "setup"
	LaunchStage = "launch"
)

// Commands holds the arguments of the remote scripts.
type Commands struct {
	SetupScript string
	RunScript   string
	User        string
	Commit      string
	Project     string
	BucketPath  string
	Cores       string
}

// CommandsFor returns the commands of job, run as user.
func CommandsFor(job *config.JobSpec, user string) Commands {
	return Commands{
		SetupScript: job.SetupScript,
		RunScript:   job.RunScript,
		User:        user,
		Commit:      job.Commit,
		Project:     job.Project,
		BucketPath:  job.BucketPath,
		Cores:       job.Cores,
	}
}

// Setup returns the command preparing the attached disk and the pipeline
// checkout. The commit is omitted when not set.
func (c Commands) Setup() string {
	args := []string{c.User}
	if c.Commit != "" {
		args = append(args, c.Commit)
	}
	return shell.Join(c.SetupScript, args...)
}

// Run returns the command starting the pipeline.
func (c Commands) Run() string {
	return shell.Join(c.RunScript, c.Project, objstore.StripScheme(c.BucketPath), c.Cores)
}

// Runner runs Commands over a session. Failures are reported, never fatal.
type Runner struct {
	Session remote.Session
}

// New returns a Runner.
func New(sess remote.Session) *Runner {
	return &Runner{Session: sess}
}

// Setup runs the setup command.
func (r *Runner) Setup(ctx context.Context, c Commands) *stage.Report {
	return r.run(ctx, SetupStage, c.Setup())
}

// Launch runs the run command. The job counts as launched once it was
// issued.
func (r *Runner) Launch(ctx context.Context, c Commands) *stage.Report {
	return r.run(ctx, LaunchStage, c.Run())
}

func (r *Runner) run(ctx context.Context, name, cmd string) *stage.Report {
	log.Infof("%s: %s", name, cmd)
	res := r.Session.Run(ctx, cmd)
	if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
		log.Warningf("%s stderr:\n%s", name, stderr)
	}
	err := res.Cause()
	if err != nil {
		log.Errorf("%s failed: %v", name, err)
	}
	report := stage.NewReport(name)
	report.Add(cmd, err)
	return report
}
