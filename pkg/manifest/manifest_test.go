// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package manifest

import (
	"errors"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/facebookincubator/chipsauto/pkg/cerrors"
)

func parse(t *testing.T, data string) (*Manifest, error) {
	var n yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(data), &n))
	return FromNode(&n)
}

func TestFromNodeFileList(t *testing.T) {
	m, err := parse(t, `
S2:
  - gs://b/x_R1.fq.gz
S1:
  - gs://b/a_R1.fq.gz
  - gs://b/a_R2.fq.gz
`)
	require.NoError(t, err)
	assert.Equal(t, FileList, m.Shape)
	require.Len(t, m.Samples, 2)
	assert.Equal(t, "S2", m.Samples[0].Name)
	assert.Equal(t, []string{"gs://b/a_R1.fq.gz", "gs://b/a_R2.fq.gz"}, m.Samples[1].Files)
	assert.Len(t, m.Refs(), 3)
	assert.True(t, m.Has("S1"))
	assert.False(t, m.Has("S3"))
}

func TestFromNodeNamedFiles(t *testing.T) {
	m, err := parse(t, `
T1:
  bam_file: gs://b/t1.bam
  expression_file: gs://b/t1.tsv
`)
	require.NoError(t, err)
	assert.Equal(t, NamedFiles, m.Shape)
	assert.Equal(t, []Field{{"bam_file", "gs://b/t1.bam"}, {"expression_file", "gs://b/t1.tsv"}}, m.Samples[0].Fields)
	assert.Equal(t, Ref{Sample: "T1", Field: "expression_file", Source: "gs://b/t1.tsv"}, m.Refs()[1])
}

func TestFromNodeRejectsMixedShapes(t *testing.T) {
	_, err := parse(t, `
S1:
  - gs://b/a.fq.gz
T1:
  bam_file: gs://b/t1.bam
`)
	var me *cerrors.ErrMixedManifest
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "T1", me.Sample)
}

func TestFromNodeRejectsScalars(t *testing.T) {
	_, err := parse(t, `S1: gs://b/a.fq.gz`)
	assert.Error(t, err)
	_, err = parse(t, `- gs://b/a.fq.gz`)
	assert.Error(t, err)
	_, err = parse(t, `S1: [""]`)
	assert.Error(t, err)
}

func TestRewriteKeepsShape(t *testing.T) {
	for _, data := range []string{
		"S1: [gs://b/a_R1.fq.gz, gs://b/a_R2.fq.gz]\nS2: [gs://b/c.fq.gz]",
		"T1: {bam_file: gs://b/t1.bam, expression_file: gs://c/t1.tsv}",
	} {
		m, err := parse(t, data)
		require.NoError(t, err)
		out := m.Rewrite(func(r Ref) string { return path.Join("data", r.Sample, path.Base(r.Source)) })

		assert.Equal(t, m.Shape, out.Shape)
		require.Len(t, out.Samples, len(m.Samples))
		for i, s := range m.Samples {
			assert.Equal(t, s.Name, out.Samples[i].Name)
			assert.Len(t, out.Samples[i].Files, len(s.Files))
			for j, f := range s.Fields {
				assert.Equal(t, f.Name, out.Samples[i].Fields[j].Name)
				assert.Equal(t, path.Join("data", s.Name, path.Base(f.Ref)), out.Samples[i].Fields[j].Ref)
			}
		}
	}
}

func TestNodeRoundTrip(t *testing.T) {
	m, err := parse(t, "S1: [gs://b/a_R1.fq.gz]\nT1: [gs://b/t.fq.gz]")
	require.NoError(t, err)

	data, err := yaml.Marshal(m.Node())
	require.NoError(t, err)
	assert.Equal(t, "S1:\n    - gs://b/a_R1.fq.gz\nT1:\n    - gs://b/t.fq.gz\n", string(data))

	back, err := parse(t, string(data))
	require.NoError(t, err)
	assert.Equal(t, m, back)
}
