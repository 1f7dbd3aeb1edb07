// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package materialize

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/facebookincubator/chipsauto/pkg/config"
	"github.com/facebookincubator/chipsauto/pkg/manifest"
)

const template = `# CHIPs run configuration
ref: ref_files/hg38.yaml # reference build
samples:
  placeholder: []
upstream: 1
cnv_analysis: true
`

func writeTemplate(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "chips.config.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(template), 0644))
	return path
}

func testJob(t *testing.T, tunables string) *config.JobSpec {
	job := &config.JobSpec{
		BucketPath: "cidc-biofx/project1",
		Sentieon:   config.DefaultSentieon,
		Tunables:   map[string]*yaml.Node{},
		Comparisons: []config.Comparison{
			{Run: "run1", Treat1: "S1", Cont1: "S2"},
			{Run: "run0", Treat1: "S3", Treat2: "S4", Cont2: "S5"},
		},
	}
	if tunables != "" {
		var doc yaml.Node
		require.NoError(t, yaml.Unmarshal([]byte(tunables), &doc))
		root := doc.Content[0]
		for i := 0; i+1 < len(root.Content); i += 2 {
			job.Tunables[root.Content[i].Value] = root.Content[i+1]
		}
	}
	return job
}

var staged = &manifest.Manifest{
	Shape: manifest.FileList,
	Samples: []manifest.Sample{
		{Name: "S1", Files: []string{"data/S1/a_R1.fq.gz", "data/S1/a_R2.fq.gz"}},
		{Name: "S2", Files: []string{"data/S2/b.fq.gz"}},
	},
}

func decode(t *testing.T, data []byte) (yaml.Node, map[string]interface{}) {
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal(data, &doc))
	values := map[string]interface{}{}
	require.NoError(t, doc.Decode(&values))
	return doc, values
}

func keys(doc yaml.Node) []string {
	var out []string
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		out = append(out, root.Content[i].Value)
	}
	return out
}

func TestRenderConfig(t *testing.T) {
	tmpl, err := LoadTemplate(writeTemplate(t))
	require.NoError(t, err)
	job := testJob(t, "upstream: 100000\ngenes_to_plot: MYC GAPDH\n")

	out, err := RenderConfig(tmpl, job, staged)
	require.NoError(t, err)
	doc, values := decode(t, out)

	assert.Equal(t, []string{"ref", "samples", "upstream", "cnv_analysis", "genes_to_plot", "downstream", "sentieon", "transfer_path"}, keys(doc))
	assert.Equal(t, 100000, values["upstream"])
	assert.Equal(t, "MYC GAPDH", values["genes_to_plot"])
	assert.Equal(t, "50000", values["downstream"])
	assert.Equal(t, config.DefaultSentieon, values["sentieon"])
	assert.Equal(t, "gs://cidc-biofx/project1/", values["transfer_path"])
	assert.Equal(t, map[string]interface{}{
		"S1": []interface{}{"data/S1/a_R1.fq.gz", "data/S1/a_R2.fq.gz"},
		"S2": []interface{}{"data/S2/b.fq.gz"},
	}, values["samples"])
	assert.Contains(t, string(out), "# CHIPs run configuration")
	assert.Contains(t, string(out), "# reference build")

	// the template itself is left untouched
	again, err := RenderConfig(tmpl, testJob(t, ""), staged)
	require.NoError(t, err)
	_, values = decode(t, again)
	assert.Equal(t, "50000", values["upstream"])
	assert.Equal(t, config.DefaultGenesToPlot, values["genes_to_plot"])
}

func TestRenderConfigNamedFiles(t *testing.T) {
	tmpl, err := LoadTemplate(writeTemplate(t))
	require.NoError(t, err)
	m := &manifest.Manifest{Shape: manifest.NamedFiles, Samples: []manifest.Sample{
		{Name: "T1", Fields: []manifest.Field{{Name: "bam_file", Ref: "data/T1/t1.bam"}}},
	}}
	out, err := RenderConfig(tmpl, testJob(t, ""), m)
	require.NoError(t, err)
	_, values := decode(t, out)
	assert.Equal(t, map[string]interface{}{"T1": map[string]interface{}{"bam_file": "data/T1/t1.bam"}}, values["samples"])
}

func TestRenderSheet(t *testing.T) {
	sheet, err := RenderSheet(testJob(t, "").Comparisons)
	require.NoError(t, err)
	assert.Equal(t, "RunName,Treat1,Cont1,Treat2,Cont2\nrun1,S1,S2,,\nrun0,S3,,S4,S5\n", string(sheet))

	sheet, err = RenderSheet(nil)
	require.NoError(t, err)
	assert.Equal(t, "RunName,Treat1,Cont1,Treat2,Cont2\n", string(sheet))
}

func TestMaterializeIsReproducible(t *testing.T) {
	tmplPath := writeTemplate(t)
	job := testJob(t, "downstream: '20000'\n")
	out := t.TempDir()

	first := &Materializer{TemplatePath: tmplPath, OutputDir: out, Salt: "abcdef"}
	a, err := first.Materialize(job, staged)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, ".config.abcdef.yaml"), a.ConfigPath)
	assert.Equal(t, filepath.Join(out, ".metasheet.abcdef.csv"), a.SheetPath)

	second := &Materializer{TemplatePath: tmplPath, OutputDir: out}
	b, err := second.Materialize(job, staged)
	require.NoError(t, err)
	assert.NotEqual(t, a.ConfigPath, b.ConfigPath)

	for _, pair := range [][2]string{{a.ConfigPath, b.ConfigPath}, {a.SheetPath, b.SheetPath}} {
		x, err := ioutil.ReadFile(pair[0])
		require.NoError(t, err)
		y, err := ioutil.ReadFile(pair[1])
		require.NoError(t, err)
		assert.Equal(t, x, y)
	}
}

func TestLoadTemplateErrors(t *testing.T) {
	_, err := LoadTemplate(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "list.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("- a\n- b\n"), 0644))
	_, err = LoadTemplate(path)
	assert.Error(t, err)

	m := &Materializer{TemplatePath: path}
	assert.Error(t, m.Load())
}

func TestNewSalt(t *testing.T) {
	s := NewSalt()
	assert.Len(t, s, 6)
	assert.NotEqual(t, s, NewSalt())
}
