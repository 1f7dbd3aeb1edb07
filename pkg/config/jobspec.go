// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package config

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v3"

	"github.com/facebookincubator/chipsauto/pkg/manifest"
)

// Job description keys.
const (
	KeyInstanceName   = "instance_name"
	KeyCores          = "cores"
	KeyDiskSize       = "disk_size"
	KeyBucketPath     = "google_bucket_path"
	KeySamples        = "samples"
	KeyMetasheet      = "metasheet"
	KeySentieon       = "sentieon"
	KeyCommit         = "chips_commit"
	KeyImage          = "image"
	KeyImageFamily    = "image_family"
	KeyGenesToPlot    = "genes_to_plot"
	KeyUpstream       = "upstream"
	KeyDownstream     = "downstream"
	KeyProject        = "project"
	KeyZone           = "zone"
	KeyServiceAccount = "service_account"
	KeyRefSnapshot    = "chips_ref_snapshot"
	KeyWorkingDir     = "working_dir"
	KeySetupScript    = "setup_script"
	KeyRunScript      = "run_script"
)

// RequiredFields lists the keys every job description must define.
var RequiredFields = []string{
	KeyInstanceName, KeyCores, KeyDiskSize, KeyBucketPath, KeySamples, KeyMetasheet,
}

// TunableKeys are copied into the run configuration as given in the job
// description, keeping their YAML type and style.
var TunableKeys = []string{KeyGenesToPlot, KeyUpstream, KeyDownstream}

// Comparison is one metasheet row: a named pairing of treatment and control
// samples. Treat2 and Cont2 may be empty.
type Comparison struct {
	Run    string
	Treat1 string
	Cont1  string
	Treat2 string
	Cont2  string
}

// Document is a parsed, not yet validated, job description.
type Document struct {
	Path string
	Raw  []byte
	root *yaml.Node
	keys map[string]*yaml.Node
}

// Load reads and parses the job description at path.
func Load(path string) (*Document, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read job description: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// Parse parses a YAML job description.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML job description: %w", err)
	}
	doc := &Document{Raw: data, root: &root, keys: make(map[string]*yaml.Node)}
	if len(root.Content) == 0 {
		return doc, nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("job description must be a YAML mapping")
	}
	for i := 0; i+1 < len(top.Content); i += 2 {
		doc.keys[top.Content[i].Value] = top.Content[i+1]
	}
	return doc, nil
}

// Node returns the value node of key, or nil when the key is absent.
func (d *Document) Node(key string) *yaml.Node {
	n := d.keys[key]
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

// Has reports whether key is present, even with an empty value.
func (d *Document) Has(key string) bool {
	_, ok := d.keys[key]
	return ok
}

// String returns the scalar value of key, or def when the key is absent or
// null.
func (d *Document) String(key, def string) string {
	n := d.Node(key)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return def
	}
	return n.Value
}

// Falsy reports whether key is absent or holds a value that does not count
// as set: null, false, zero, an empty string, list or mapping.
func (d *Document) Falsy(key string) bool {
	return falsy(d.Node(key))
}

func falsy(n *yaml.Node) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case yaml.SequenceNode, yaml.MappingNode:
		return len(n.Content) == 0
	case yaml.ScalarNode:
		var v interface{}
		if err := n.Decode(&v); err != nil {
			return false
		}
		switch x := v.(type) {
		case nil:
			return true
		case string:
			return x == ""
		case bool:
			return !x
		case int:
			return x == 0
		case int64:
			return x == 0
		case uint64:
			return x == 0
		case float64:
			return x == 0
		}
	}
	return false
}

// JobSpec is a validated job description.
type JobSpec struct {
	Path string
	// Raw is the job description as read from disk.
	Raw []byte

	InstanceName string
	Cores        string
	DiskSizeGB   int64
	BucketPath   string
	Samples      *manifest.Manifest
	Comparisons  []Comparison

	// RefSnapshot is empty when no reference disk must be created.
	RefSnapshot    string
	Commit         string
	Image          string
	ImageFamily    string
	Project        string
	Zone           string
	ServiceAccount string
	Sentieon       string
	WorkingDir     string
	SetupScript    string
	RunScript      string

	// Tunables holds the TunableKeys found in the job description.
	Tunables map[string]*yaml.Node
}

// FullInstanceName returns the name of the instance to create.
func (j *JobSpec) FullInstanceName() string {
	return InstancePrefix + "-" + j.InstanceName
}

// DataDiskName returns the name of the attached data disk.
func (j *JobSpec) DataDiskName() string {
	return j.FullInstanceName() + "-disk"
}

// RefDiskName returns the name of the disk cloned from the reference
// snapshot.
func (j *JobSpec) RefDiskName() string {
	return j.FullInstanceName() + "-ref-disk"
}
