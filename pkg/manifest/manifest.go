// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package manifest models the mapping of sample names to input file
// references. A manifest has one of two shapes, decided once when it is
// parsed: every sample carries a list of references (FileList), or every
// sample carries a mapping of field name to reference (NamedFiles).
package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/facebookincubator/chipsauto/pkg/cerrors"
)

// Shape is the layout of a manifest.
type Shape int

// The supported manifest shapes.
const (
	ShapeUnknown Shape = iota
	FileList
	NamedFiles
)

func (s Shape) String() string {
	switch s {
	case FileList:
		return "file list"
	case NamedFiles:
		return "named-file mapping"
	default:
		return "unknown shape"
	}
}

// Field is one named reference of a NamedFiles sample, e.g. bam_file.
type Field struct {
	Name string
	Ref  string
}

// Sample is one manifest entry. Only the member matching the manifest shape
// is populated.
type Sample struct {
	Name   string
	Files  []string
	Fields []Field
}

// Manifest is an ordered list of samples sharing one shape.
type Manifest struct {
	Shape   Shape
	Samples []Sample
}

// Ref locates one file reference inside a manifest.
type Ref struct {
	Sample string
	// Field is the field name for NamedFiles manifests, empty otherwise.
	Field  string
	Source string
}

// FromNode parses a YAML mapping node into a Manifest. Samples keep the
// order in which they are declared.
func FromNode(n *yaml.Node) (*Manifest, error) {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("samples must be a mapping of sample name to files")
	}
	m := &Manifest{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		value := resolve(n.Content[i+1])

		var shape Shape
		sample := Sample{Name: name}
		switch value.Kind {
		case yaml.SequenceNode:
			shape = FileList
			for _, item := range value.Content {
				item = resolve(item)
				if item.Kind != yaml.ScalarNode || item.Value == "" {
					return nil, fmt.Errorf("sample %s: file references must be non-empty strings", name)
				}
				sample.Files = append(sample.Files, item.Value)
			}
		case yaml.MappingNode:
			shape = NamedFiles
			for j := 0; j+1 < len(value.Content); j += 2 {
				ref := resolve(value.Content[j+1])
				if ref.Kind != yaml.ScalarNode || ref.Value == "" {
					return nil, fmt.Errorf("sample %s: field %s must be a non-empty string", name, value.Content[j].Value)
				}
				sample.Fields = append(sample.Fields, Field{Name: value.Content[j].Value, Ref: ref.Value})
			}
		default:
			return nil, fmt.Errorf("sample %s: expected a list or a mapping of files", name)
		}

		if m.Shape == ShapeUnknown {
			m.Shape = shape
		} else if m.Shape != shape {
			return nil, &cerrors.ErrMixedManifest{Sample: name, Want: m.Shape.String(), Got: shape.String()}
		}
		m.Samples = append(m.Samples, sample)
	}
	return m, nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && (n.Kind == yaml.DocumentNode || n.Kind == yaml.AliasNode) {
		if n.Kind == yaml.AliasNode {
			n = n.Alias
			continue
		}
		if len(n.Content) == 0 {
			return nil
		}
		n = n.Content[0]
	}
	return n
}

// Refs returns every file reference in declaration order.
func (m *Manifest) Refs() []Ref {
	var refs []Ref
	for _, s := range m.Samples {
		for _, f := range s.Files {
			refs = append(refs, Ref{Sample: s.Name, Source: f})
		}
		for _, f := range s.Fields {
			refs = append(refs, Ref{Sample: s.Name, Field: f.Name, Source: f.Ref})
		}
	}
	return refs
}

// Has reports whether a sample with the given name is declared.
func (m *Manifest) Has(sample string) bool {
	for _, s := range m.Samples {
		if s.Name == sample {
			return true
		}
	}
	return false
}

// Rewrite returns a manifest of the same shape whose references are replaced
// by the result of f.
func (m *Manifest) Rewrite(f func(r Ref) string) *Manifest {
	out := &Manifest{Shape: m.Shape, Samples: make([]Sample, 0, len(m.Samples))}
	for _, s := range m.Samples {
		ns := Sample{Name: s.Name}
		for _, file := range s.Files {
			ns.Files = append(ns.Files, f(Ref{Sample: s.Name, Source: file}))
		}
		for _, field := range s.Fields {
			ns.Fields = append(ns.Fields, Field{Name: field.Name, Ref: f(Ref{Sample: s.Name, Field: field.Name, Source: field.Ref})})
		}
		out.Samples = append(out.Samples, ns)
	}
	return out
}

// Node renders the manifest as a YAML mapping node.
func (m *Manifest) Node() *yaml.Node {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, s := range m.Samples {
		var value *yaml.Node
		switch m.Shape {
		case NamedFiles:
			value = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			for _, f := range s.Fields {
				value.Content = append(value.Content, str(f.Name), str(f.Ref))
			}
		default:
			value = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for _, f := range s.Files {
				value.Content = append(value.Content, str(f))
			}
		}
		root.Content = append(root.Content, str(s.Name), value)
	}
	return root
}

func str(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}
