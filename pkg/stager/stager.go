// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package stager copies the sample files of a job to where the pipeline
// expects them, and rewrites the manifest to point at the copies.
package stager

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/facebookincubator/chipsauto/pkg/config"
	"github.com/facebookincubator/chipsauto/pkg/logging"
	"github.com/facebookincubator/chipsauto/pkg/manifest"
	"github.com/facebookincubator/chipsauto/pkg/objstore"
	"github.com/facebookincubator/chipsauto/pkg/remote"
	"github.com/facebookincubator/chipsauto/pkg/shell"
	"github.com/facebookincubator/chipsauto/pkg/stage"
)

var log = logging.GetLogger("stager")

// Report stage names.
const (
	StageName  = "stage-data"
	VerifyName = "verify-data"
)

// Mode selects where files are staged.
type Mode int

// Staging modes.
const (
	// Instance copies files onto the instance's working directory, running
	// gsutil over the remote session.
	Instance Mode = iota
	// Bucket copies files to a destination bucket through the object store.
	Bucket
)

func (m Mode) String() string {
	switch m {
	case Instance:
		return "local"
	case Bucket:
		return "bucket"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses "local" or "bucket".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "local", "instance":
		return Instance, nil
	case "bucket":
		return Bucket, nil
	}
	return Instance, fmt.Errorf("unknown staging mode '%s', must be local or bucket", s)
}

// Transfer is one planned file copy.
type Transfer struct {
	Sample string
	Source string
	// Dir is the destination directory or bucket prefix the file is copied
	// into.
	Dir string
	// Target is the full destination path of the copy.
	Target string
	// Rel is the reference written into the rewritten manifest.
	Rel string
}

// Options configures a Stager.
type Options struct {
	Mode Mode
	// Root is the working directory on the instance.
	Root string
	// SubDir is the directory, under Root or DestBucket, receiving the files.
	SubDir string
	// DestBucket is the destination of Bucket mode.
	DestBucket string
	// Workers bounds concurrent copies. 1 copies files one at a time.
	Workers int
}

// Stager copies manifest files.
type Stager struct {
	Session remote.Session
	Store   objstore.Store
	Options
}

// New returns a Stager. session is used in Instance mode, store in Bucket
// mode.
func New(session remote.Session, store objstore.Store, opts Options) *Stager {
	if opts.SubDir == "" {
		opts.SubDir = config.DataSubDir
	}
	if opts.Workers <= 0 {
		opts.Workers = config.StageWorkers
	}
	return &Stager{Session: session, Store: store, Options: opts}
}

func (s *Stager) check() error {
	switch s.Mode {
	case Instance:
		if s.Session == nil {
			return errors.New("instance staging requires a remote session")
		}
		if s.Root == "" {
			return errors.New("instance staging requires a working directory")
		}
	case Bucket:
		if s.Store == nil {
			return errors.New("bucket staging requires an object store")
		}
		if s.DestBucket == "" {
			return errors.New("bucket staging requires a destination bucket")
		}
	default:
		return fmt.Errorf("unsupported staging mode %v", s.Mode)
	}
	return nil
}

// Plan computes the transfers of m and the manifest pointing at their
// destinations. It does not copy anything.
func (s *Stager) Plan(m *manifest.Manifest) ([]Transfer, *manifest.Manifest) {
	var transfers []Transfer
	rewritten := m.Rewrite(func(r manifest.Ref) string {
		t := s.transfer(r)
		transfers = append(transfers, t)
		return t.Rel
	})
	return transfers, rewritten
}

func (s *Stager) transfer(r manifest.Ref) Transfer {
	base := objstore.BaseName(r.Source)
	sub := s.SubDir
	if sub == "" {
		sub = config.DataSubDir
	}
	t := Transfer{Sample: r.Sample, Source: r.Source}
	switch s.Mode {
	case Bucket:
		t.Dir = objstore.TransferPath(s.DestBucket) + sub + "/"
		t.Target = t.Dir + base
		t.Rel = sub + "/" + base
	default:
		t.Dir = path.Join(s.Root, sub, r.Sample)
		t.Target = path.Join(t.Dir, base)
		t.Rel = path.Join(sub, r.Sample, base)
	}
	return t
}

// Stage copies every file of m and returns the rewritten manifest. A failed
// copy is recorded in the report and does not stop the others. The
// returned error is only set when the Stager cannot run at all.
func (s *Stager) Stage(ctx context.Context, m *manifest.Manifest) (*manifest.Manifest, *stage.Report, error) {
	if err := s.check(); err != nil {
		return nil, nil, err
	}
	transfers, rewritten := s.Plan(m)
	report := stage.NewReport(StageName)

	// sample directories are all created before any copy starts
	dirErrs := map[string]error{}
	if s.Mode == Instance {
		var dirs []string
		for _, t := range transfers {
			if _, ok := dirErrs[t.Dir]; !ok {
				dirErrs[t.Dir] = nil
				dirs = append(dirs, t.Dir)
			}
		}
		errs := s.each(ctx, len(dirs), func(ctx context.Context, i int) error {
			res := s.Session.Run(ctx, shell.Join("mkdir", "-p", dirs[i]))
			return res.Cause()
		})
		for i, dir := range dirs {
			if errs[i] != nil {
				log.Errorf("cannot create %s: %v", dir, errs[i])
				dirErrs[dir] = errs[i]
			}
		}
	}

	var copied, failed atomic.Int32
	errs := s.each(ctx, len(transfers), func(ctx context.Context, i int) error {
		t := transfers[i]
		if err := dirErrs[t.Dir]; err != nil {
			failed.Inc()
			return fmt.Errorf("not attempted, cannot create %s: %w", t.Dir, err)
		}
		err := s.copy(ctx, t)
		if err != nil {
			failed.Inc()
			log.Errorf("cannot copy %s to %s: %v", t.Source, t.Dir, err)
			return err
		}
		n := copied.Inc()
		log.Infof("copied %s to %s (%d/%d)", t.Source, t.Dir, n, len(transfers))
		return nil
	})
	for i, t := range transfers {
		report.Add(t.Source, errs[i])
	}
	log.Infof("staged %d file(s), %d failed", copied.Load(), failed.Load())
	return rewritten, report, nil
}

func (s *Stager) copy(ctx context.Context, t Transfer) error {
	if s.Mode == Bucket {
		return s.Store.Copy(ctx, t.Source, t.Dir)
	}
	return s.Session.Run(ctx, shell.Join("gsutil", "-m", "cp", t.Source, t.Dir)).Cause()
}

// Verify checks that every staged file of m exists and is not empty at its
// destination. Missing files are failures in the returned report.
func (s *Stager) Verify(ctx context.Context, m *manifest.Manifest) (*stage.Report, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	transfers, _ := s.Plan(m)
	errs := s.each(ctx, len(transfers), func(ctx context.Context, i int) error {
		t := transfers[i]
		if s.Mode == Bucket {
			ok, err := s.Store.Exists(ctx, t.Target)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s is missing", t.Target)
			}
			return nil
		}
		res := s.Session.Run(ctx, shell.Join("test", "-s", t.Target))
		if err := res.RunErr(); err != nil {
			return err
		}
		if res.Status != 0 {
			return fmt.Errorf("%s is missing or empty", t.Target)
		}
		return nil
	})
	report := stage.NewReport(VerifyName)
	for i, t := range transfers {
		report.Add(t.Target, errs[i])
	}
	if failed := report.Failed(); len(failed) > 0 {
		log.Warningf("%d staged file(s) failed verification", len(failed))
	}
	return report, nil
}

// each runs fn for 0..n-1 on at most Workers goroutines and returns the
// errors by index.
func (s *Stager) each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	var g errgroup.Group
	workers := s.Workers
	if workers <= 0 {
		workers = config.StageWorkers
	}
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
