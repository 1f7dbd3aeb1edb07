// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package orchestrator runs a job from provisioning to launch: it creates
// the resources, connects to the instance, stages the data, uploads the run
// configuration and starts the pipeline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/facebookincubator/chipsauto/pkg/compute"
	"github.com/facebookincubator/chipsauto/pkg/config"
	"github.com/facebookincubator/chipsauto/pkg/journal"
	"github.com/facebookincubator/chipsauto/pkg/logging"
	"github.com/facebookincubator/chipsauto/pkg/manifest"
	"github.com/facebookincubator/chipsauto/pkg/materialize"
	"github.com/facebookincubator/chipsauto/pkg/metrics"
	"github.com/facebookincubator/chipsauto/pkg/objstore"
	"github.com/facebookincubator/chipsauto/pkg/provision"
	"github.com/facebookincubator/chipsauto/pkg/remote"
	"github.com/facebookincubator/chipsauto/pkg/runner"
	"github.com/facebookincubator/chipsauto/pkg/shell"
	"github.com/facebookincubator/chipsauto/pkg/stage"
	"github.com/facebookincubator/chipsauto/pkg/stager"
	"github.com/facebookincubator/chipsauto/pkg/upload"
)

var log = logging.GetLogger("orchestrator")

// Options are the operator's choices for one run.
type Options struct {
	User    string
	KeyFile string

	Mode stager.Mode
	// DestBucket is the destination of bucket staging. The job's bucket
	// path is used when empty.
	DestBucket string
	Workers    int
	Verify     bool

	// Upload is upload.MethodSFTP or upload.MethodSCP.
	Upload string

	Policy    stage.Policy
	PolicyIn  io.Reader
	PolicyOut io.Writer

	CleanupOnFailure bool

	// Backoff overrides the connection retry schedule when not zero.
	Backoff remote.Backoff

	TemplatePath string
	OutputDir    string
}

// DialFunc opens the remote session.
type DialFunc func(ctx context.Context, cfg remote.DialConfig) (remote.Session, error)

// Recorder journals the progress of runs.
type Recorder interface {
	Record(ctx context.Context, r journal.Run) error
	SetStatus(ctx context.Context, id, status, msg string) error
}

// Deps are the collaborators of the orchestrator. Journal and Metrics are
// optional.
type Deps struct {
	Provider compute.Provider
	Store    objstore.Store
	Exec     shell.Executor
	Dial     DialFunc
	Journal  Recorder
	Metrics  *metrics.Metrics
	Clock    clock.Clock
}

// DialSSH is the DialFunc opening an SSH session.
func DialSSH(ctx context.Context, cfg remote.DialConfig) (remote.Session, error) {
	sess, err := remote.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Summary describes what a run did, including when it failed.
type Summary struct {
	RunID     string
	Resource  *compute.ProvisionedResource
	Staged    *manifest.Manifest
	Artifacts *materialize.Artifacts
	Reports   []*stage.Report
	// Cleanup is set when resources were deleted after a failure.
	Cleanup  *stage.Report
	Launched bool
}

// Orchestrator runs jobs.
type Orchestrator struct {
	Options
	Deps
}

// New returns an Orchestrator.
func New(opts Options, deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Exec == nil {
		deps.Exec = shell.Local{}
	}
	if deps.Dial == nil {
		deps.Dial = DialSSH
	}
	if opts.Upload == "" {
		opts.Upload = upload.MethodSFTP
	}
	return &Orchestrator{Options: opts, Deps: deps}
}

type run struct {
	*Orchestrator
	job     *config.JobSpec
	summary *Summary
	decider *stage.Decider
}

// Run executes job. Stages run in order and each one needs the previous one
// to succeed. Best-effort stages report per-item failures which are then
// handed to the failure policy. On error the returned Summary describes the
// partial run.
func (o *Orchestrator) Run(ctx context.Context, job *config.JobSpec) (*Summary, error) {
	r := &run{
		Orchestrator: o,
		job:          job,
		summary:      &Summary{RunID: uuid.New().String()},
		decider:      &stage.Decider{Policy: o.Policy, In: o.PolicyIn, Out: o.PolicyOut},
	}
	log.Infof("starting run %s for instance %s", r.summary.RunID, job.FullInstanceName())
	r.record(ctx, journal.Run{
		ID:          r.summary.RunID,
		JobPath:     job.Path,
		Instance:    job.FullInstanceName(),
		Status:      journal.StatusStarted,
		JobSnapshot: string(job.Raw),
	})
	err := r.execute(ctx)
	if o.Metrics != nil {
		o.Metrics.SetLaunched(r.summary.Launched)
	}
	if err != nil {
		r.fail(ctx, err)
		return r.summary, err
	}
	r.setStatus(ctx, journal.StatusLaunched, "")
	log.Infof("instance %s is running at %s, log into it to check on the run", job.FullInstanceName(), r.summary.Resource.Address)
	return r.summary, nil
}

func (r *run) execute(ctx context.Context) error {
	job := r.job
	mat := &materialize.Materializer{TemplatePath: r.TemplatePath, OutputDir: r.OutputDir}
	if err := mat.Load(); err != nil {
		return err
	}

	prov := provision.New(r.Provider)
	var autoDelete *stage.Report
	err := r.timed("provision", func() error {
		var err error
		r.summary.Resource, autoDelete, err = prov.Provision(ctx, provision.PlanFor(job))
		return err
	})
	if err != nil {
		return err
	}
	// auto-delete flags are reported but never subject to the policy
	r.add(autoDelete)
	res := r.summary.Resource
	r.record(ctx, journal.Run{ID: r.summary.RunID, Address: res.Address, Status: journal.StatusProvisioned})

	backoff := r.Backoff
	if backoff == (remote.Backoff{}) {
		backoff = remote.DefaultBackoff()
	}
	var sess remote.Session
	err = r.timed("connect", func() error {
		var err error
		sess, err = r.Dial(ctx, remote.DialConfig{
			Host:         res.Address,
			User:         r.User,
			IdentityFile: r.KeyFile,
			Backoff:      backoff,
			Clock:        r.Clock,
		})
		return err
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warningf("cannot close session: %v", err)
		}
	}()
	r.setStatus(ctx, journal.StatusConnected, "")

	rn := runner.New(sess)
	cmds := runner.CommandsFor(job, r.User)
	if err := r.best(ctx, runner.SetupStage, func() (*stage.Report, error) {
		return rn.Setup(ctx, cmds), nil
	}); err != nil {
		return err
	}

	dest := r.DestBucket
	if dest == "" {
		dest = job.BucketPath
	}
	st := stager.New(sess, r.Store, stager.Options{
		Mode:       r.Mode,
		Root:       job.WorkingDir,
		DestBucket: dest,
		Workers:    r.Workers,
	})
	if err := r.best(ctx, stager.StageName, func() (*stage.Report, error) {
		staged, report, err := st.Stage(ctx, job.Samples)
		r.summary.Staged = staged
		return report, err
	}); err != nil {
		return err
	}
	if r.Verify {
		if err := r.best(ctx, stager.VerifyName, func() (*stage.Report, error) {
			return st.Verify(ctx, job.Samples)
		}); err != nil {
			return err
		}
	}
	r.setStatus(ctx, journal.StatusStaged, "")

	err = r.timed("materialize", func() error {
		var err error
		r.summary.Artifacts, err = mat.Materialize(job, r.summary.Staged)
		return err
	})
	if err != nil {
		return err
	}

	up, err := r.uploader(sess, res)
	if err != nil {
		return err
	}
	files := upload.JobFiles(r.summary.Artifacts.ConfigPath, r.summary.Artifacts.SheetPath, job.Path)
	if err := r.best(ctx, upload.StageName, func() (*stage.Report, error) {
		return up.Upload(ctx, files), nil
	}); err != nil {
		return err
	}

	if err := r.best(ctx, runner.LaunchStage, func() (*stage.Report, error) {
		return rn.Launch(ctx, cmds), nil
	}); err != nil {
		return err
	}
	r.summary.Launched = true
	return nil
}

// sshClient is implemented by sessions backed by an SSH connection.
type sshClient interface {
	Client() *ssh.Client
}

func (r *run) uploader(sess remote.Session, res *compute.ProvisionedResource) (upload.Uploader, error) {
	switch r.Upload {
	case upload.MethodSCP:
		return &upload.SCP{Exec: r.Exec, User: r.User, Host: res.Address, KeyFile: r.KeyFile, Dir: r.job.WorkingDir}, nil
	case upload.MethodSFTP:
		c, ok := sess.(sshClient)
		if !ok {
			return nil, errors.New("sftp upload needs an SSH session")
		}
		return &upload.SFTP{Client: c.Client(), Dir: r.job.WorkingDir}, nil
	}
	return nil, fmt.Errorf("unknown upload method '%s'", r.Upload)
}

// best runs a best-effort stage and applies the failure policy to its
// report.
func (r *run) best(ctx context.Context, name string, fn func() (*stage.Report, error)) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted before %s: %w", name, err)
	}
	var report *stage.Report
	err := r.timed(name, func() error {
		var err error
		report, err = fn()
		return err
	})
	if err != nil {
		return err
	}
	r.add(report)
	if failed := report.Failed(); len(failed) > 0 {
		log.Warningf("%s", report)
	}
	return r.decider.Decide(report)
}

func (r *run) timed(name string, fn func() error) error {
	start := r.Clock.Now()
	err := fn()
	if r.Metrics != nil {
		r.Metrics.ObserveStage(name, r.Clock.Since(start))
	}
	log.Debugf("%s took %s", name, r.Clock.Since(start).Round(time.Millisecond))
	return err
}

func (r *run) add(report *stage.Report) {
	if report == nil {
		return
	}
	r.summary.Reports = append(r.summary.Reports, report)
	if r.Metrics != nil {
		r.Metrics.ObserveReport(report)
	}
}

// fail journals err and, when enabled, deletes the created resources with a
// context of its own so that an interrupted run is still cleaned up.
func (r *run) fail(ctx context.Context, err error) {
	log.Errorf("run %s failed: %v", r.summary.RunID, err)
	r.setStatus(ctx, journal.StatusFailed, err.Error())
	res := r.summary.Resource
	if res == nil || len(res.Created) == 0 {
		return
	}
	if !r.CleanupOnFailure {
		log.Warningf("leaving %d resource(s) of %s in place", len(res.Created), res.InstanceName)
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.Background(), config.CleanupTimeout)
	defer cancel()
	r.summary.Cleanup = provision.New(r.Provider).Cleanup(cleanupCtx, res)
	r.add(r.summary.Cleanup)
	if len(r.summary.Cleanup.Failed()) == 0 {
		r.setStatus(cleanupCtx, journal.StatusCleanedUp, "")
	}
}

func (r *run) record(ctx context.Context, entry journal.Run) {
	if r.Journal == nil {
		return
	}
	if err := r.Journal.Record(ctx, entry); err != nil {
		log.Warningf("%v", err)
	}
}

func (r *run) setStatus(ctx context.Context, status, msg string) {
	if r.Journal == nil {
		return
	}
	// the journal outlives cancellation of the run
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := r.Journal.SetStatus(ctx, r.summary.RunID, status, msg); err != nil {
		log.Warningf("%v", err)
	}
}
