// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package materialize renders the pipeline run configuration and the
// comparison sheet of a job.
package materialize

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/facebookincubator/chipsauto/pkg/config"
	"github.com/facebookincubator/chipsauto/pkg/logging"
	"github.com/facebookincubator/chipsauto/pkg/manifest"
	"github.com/facebookincubator/chipsauto/pkg/objstore"
)

var log = logging.GetLogger("materialize")

// Run configuration keys set from the job.
const (
	KeySamples      = "samples"
	KeySentieon     = "sentieon"
	KeyTransferPath = "transfer_path"
)

// SheetHeader is the header row of the comparison sheet.
var SheetHeader = []string{"RunName", "Treat1", "Cont1", "Treat2", "Cont2"}

// DefaultTemplate is the run configuration template looked up in the
// current directory.
var DefaultTemplate = "chips.config.yaml"

var tunableDefaults = map[string]string{
	config.KeyGenesToPlot: config.DefaultGenesToPlot,
	config.KeyUpstream:    config.DefaultUpstream,
	config.KeyDownstream:  config.DefaultDownstream,
}

// LoadTemplate reads and parses a run configuration template.
func LoadTemplate(path string) (*yaml.Node, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read template: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("cannot parse template %s: %w", path, err)
	}
	if root := mapping(&doc); root == nil {
		return nil, fmt.Errorf("template %s is not a mapping", path)
	}
	return &doc, nil
}

// mapping returns the top level mapping of doc, creating it when doc is an
// empty document.
func mapping(doc *yaml.Node) *yaml.Node {
	switch doc.Kind {
	case yaml.MappingNode:
		return doc
	case 0, yaml.DocumentNode:
		if len(doc.Content) == 0 {
			doc.Kind = yaml.DocumentNode
			doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
		}
		if doc.Content[0].Kind == yaml.MappingNode {
			return doc.Content[0]
		}
	}
	return nil
}

// RenderConfig overlays the staged manifest, the tunables, the toolchain
// path and the transfer path onto a copy of template. Keys already in the
// template keep their position; other keys are appended.
func RenderConfig(template *yaml.Node, job *config.JobSpec, samples *manifest.Manifest) ([]byte, error) {
	doc := clone(template)
	root := mapping(doc)
	if root == nil {
		return nil, fmt.Errorf("run configuration template is not a mapping")
	}

	set(root, KeySamples, samples.Node())
	for _, key := range config.TunableKeys {
		if n, ok := job.Tunables[key]; ok {
			set(root, key, clone(n))
		} else {
			set(root, key, str(tunableDefaults[key]))
		}
	}
	set(root, KeySentieon, str(job.Sentieon))
	set(root, KeyTransferPath, str(objstore.TransferPath(job.BucketPath)))

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("cannot encode run configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func set(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			old := m.Content[i+1]
			if value.LineComment == "" {
				value.LineComment = old.LineComment
			}
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, str(key), value)
}

func str(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func clone(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	c := *n
	if len(n.Content) > 0 {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = clone(child)
		}
	}
	return &c
}

// RenderSheet renders the comparison sheet, one row per comparison in
// declaration order. Missing roles are empty fields.
func RenderSheet(comparisons []config.Comparison) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(SheetHeader); err != nil {
		return nil, err
	}
	for _, c := range comparisons {
		if err := w.Write([]string{c.Run, c.Treat1, c.Cont1, c.Treat2, c.Cont2}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("cannot render comparison sheet: %w", err)
	}
	return buf.Bytes(), nil
}

// Artifacts are the rendered files of one job.
type Artifacts struct {
	ConfigPath string
	SheetPath  string
	Config     []byte
	Sheet      []byte
}

// Materializer writes the artifacts of a job to OutputDir.
type Materializer struct {
	TemplatePath string
	OutputDir    string
	// Salt makes the file names unique. A random salt is used when empty.
	Salt string

	template *yaml.Node
}

// NewSalt returns a random six character salt.
func NewSalt() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
}

// Load parses the template. It is called by Materialize when needed, and
// can be called earlier to fail before any resource is created.
func (m *Materializer) Load() error {
	if m.template != nil {
		return nil
	}
	path := m.TemplatePath
	if path == "" {
		path = DefaultTemplate
	}
	t, err := LoadTemplate(path)
	if err != nil {
		return err
	}
	m.template = t
	return nil
}

// Materialize renders and writes the run configuration and comparison
// sheet for job with the staged manifest.
func (m *Materializer) Materialize(job *config.JobSpec, staged *manifest.Manifest) (*Artifacts, error) {
	if err := m.Load(); err != nil {
		return nil, err
	}
	cfg, err := RenderConfig(m.template, job, staged)
	if err != nil {
		return nil, err
	}
	sheet, err := RenderSheet(job.Comparisons)
	if err != nil {
		return nil, err
	}

	salt := m.Salt
	if salt == "" {
		salt = NewSalt()
	}
	dir := m.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create output directory: %w", err)
	}
	a := &Artifacts{
		ConfigPath: filepath.Join(dir, fmt.Sprintf(".config.%s.yaml", salt)),
		SheetPath:  filepath.Join(dir, fmt.Sprintf(".metasheet.%s.csv", salt)),
		Config:     cfg,
		Sheet:      sheet,
	}
	if err := ioutil.WriteFile(a.ConfigPath, cfg, 0644); err != nil {
		return nil, fmt.Errorf("cannot write run configuration: %w", err)
	}
	if err := ioutil.WriteFile(a.SheetPath, sheet, 0644); err != nil {
		return nil, fmt.Errorf("cannot write comparison sheet: %w", err)
	}
	log.Infof("wrote %s and %s", a.ConfigPath, a.SheetPath)
	return a, nil
}
