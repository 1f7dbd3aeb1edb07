// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/facebookincubator/chipsauto/pkg/cerrors"
	"github.com/facebookincubator/chipsauto/pkg/logging"
	"github.com/facebookincubator/chipsauto/pkg/manifest"
	"github.com/facebookincubator/chipsauto/pkg/objstore"
)

var log = logging.GetLogger("config")

// Comparison roles accepted in a metasheet entry.
const (
	RoleTreat1 = "treat1"
	RoleCont1  = "cont1"
	RoleTreat2 = "treat2"
	RoleCont2  = "cont2"
)

// Validate checks a parsed job description and, when it is usable, returns
// the corresponding JobSpec. Every declared input reference is looked up in
// store. All problems are collected into a single *cerrors.ErrValidation
// instead of stopping at the first one.
func Validate(ctx context.Context, doc *Document, store objstore.Store) (*JobSpec, error) {
	verr := &cerrors.ErrValidation{}
	for _, key := range RequiredFields {
		if doc.Falsy(key) {
			verr.Missing = append(verr.Missing, key)
		}
	}

	var samples *manifest.Manifest
	if !doc.Falsy(KeySamples) {
		var err error
		samples, err = manifest.FromNode(doc.Node(KeySamples))
		if err != nil {
			verr.Problems = append(verr.Problems, err.Error())
		}
	}
	if samples != nil && store != nil {
		invalid, err := checkFiles(ctx, store, samples)
		if err != nil {
			return nil, err
		}
		verr.InvalidFiles = invalid
	}

	bucket := doc.String(KeyBucketPath, "")
	if bucket != "" && strings.Contains(bucket, "://") && !strings.HasPrefix(bucket, objstore.Scheme) {
		verr.Problems = append(verr.Problems, fmt.Sprintf("%s must be a %s path, got '%s'", KeyBucketPath, objstore.Scheme, bucket))
	}

	var diskSize int64
	if !doc.Falsy(KeyDiskSize) {
		var err error
		if diskSize, err = parseSize(doc.Node(KeyDiskSize)); err != nil || diskSize <= 0 {
			verr.Problems = append(verr.Problems, fmt.Sprintf("%s must be a positive number of GB, got '%s'", KeyDiskSize, doc.String(KeyDiskSize, "")))
		}
	}

	var comparisons []Comparison
	if !doc.Falsy(KeyMetasheet) {
		var problems []string
		comparisons, problems = parseComparisons(doc.Node(KeyMetasheet), samples)
		verr.Problems = append(verr.Problems, problems...)
	}

	if !verr.Empty() {
		return nil, verr
	}

	job := &JobSpec{
		Path:           doc.Path,
		Raw:            doc.Raw,
		InstanceName:   doc.String(KeyInstanceName, ""),
		Cores:          doc.String(KeyCores, ""),
		DiskSizeGB:     diskSize,
		BucketPath:     bucket,
		Samples:        samples,
		Comparisons:    comparisons,
		RefSnapshot:    DefaultRefSnapshot,
		Commit:         doc.String(KeyCommit, ""),
		Image:          doc.String(KeyImage, DefaultImage),
		ImageFamily:    doc.String(KeyImageFamily, DefaultImageFamily),
		Project:        doc.String(KeyProject, DefaultProject),
		Zone:           doc.String(KeyZone, DefaultZone),
		ServiceAccount: doc.String(KeyServiceAccount, DefaultServiceAccount),
		Sentieon:       doc.String(KeySentieon, DefaultSentieon),
		WorkingDir:     strings.TrimSuffix(doc.String(KeyWorkingDir, DefaultWorkingDir), "/"),
		SetupScript:    doc.String(KeySetupScript, DefaultSetupScript),
		RunScript:      doc.String(KeyRunScript, DefaultRunScript),
		Tunables:       make(map[string]*yaml.Node),
	}
	if doc.Has(KeyRefSnapshot) {
		job.RefSnapshot = doc.String(KeyRefSnapshot, "")
	}
	for _, key := range TunableKeys {
		if n := doc.Node(key); n != nil && n.Tag != "!!null" {
			job.Tunables[key] = n
		}
	}
	return job, nil
}

// parseSize accepts a number of GB written either as an integer or as a
// quoted string.
func parseSize(n *yaml.Node) (int64, error) {
	var size int64
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		return strconv.ParseInt(strings.TrimSpace(n.Value), 10, 64)
	}
	err := n.Decode(&size)
	return size, err
}

// checkFiles returns the references that do not exist, in manifest order.
func checkFiles(ctx context.Context, store objstore.Store, m *manifest.Manifest) ([]string, error) {
	refs := m.Refs()
	missing := make([]bool, len(refs))
	var checked atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ExistenceCheckWorkers)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			ok, err := store.Exists(gctx, ref.Source)
			checked.Inc()
			if err != nil {
				log.Warningf("cannot check %s: %v", ref.Source, err)
			}
			missing[i] = !ok
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Infof("checked %d sample file(s)", checked.Load())

	var invalid []string
	for i, ref := range refs {
		if missing[i] {
			invalid = append(invalid, ref.Source)
		}
	}
	return invalid, nil
}

func parseComparisons(n *yaml.Node, samples *manifest.Manifest) ([]Comparison, []string) {
	if n.Kind != yaml.MappingNode {
		return nil, []string{fmt.Sprintf("%s must be a mapping of run name to sample roles", KeyMetasheet)}
	}
	var (
		comparisons []Comparison
		problems    []string
	)
	for i := 0; i+1 < len(n.Content); i += 2 {
		run := n.Content[i].Value
		value := n.Content[i+1]
		if value.Kind != yaml.MappingNode {
			problems = append(problems, fmt.Sprintf("%s run %s must map roles to sample names", KeyMetasheet, run))
			continue
		}
		c := Comparison{Run: run}
		hasCont1 := false
		for j := 0; j+1 < len(value.Content); j += 2 {
			role, sample := value.Content[j].Value, value.Content[j+1]
			name := ""
			if sample.Kind == yaml.ScalarNode && sample.Tag != "!!null" {
				name = sample.Value
			}
			switch role {
			case RoleTreat1:
				c.Treat1 = name
			case RoleCont1:
				c.Cont1 = name
				hasCont1 = true
			case RoleTreat2:
				c.Treat2 = name
			case RoleCont2:
				c.Cont2 = name
			default:
				problems = append(problems, fmt.Sprintf("%s run %s has unknown role '%s'", KeyMetasheet, run, role))
				continue
			}
			if name != "" && samples != nil && !samples.Has(name) {
				problems = append(problems, fmt.Sprintf("%s run %s refers to undeclared sample '%s'", KeyMetasheet, run, name))
			}
		}
		if c.Treat1 == "" {
			problems = append(problems, fmt.Sprintf("%s run %s must define %s", KeyMetasheet, run, RoleTreat1))
		}
		// an empty cont1 declares a run without input control
		if !hasCont1 {
			problems = append(problems, fmt.Sprintf("%s run %s must declare %s", KeyMetasheet, run, RoleCont1))
		}
		comparisons = append(comparisons, c)
	}
	return comparisons, problems
}
