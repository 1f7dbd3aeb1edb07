// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package objstore defines the object-storage operations the automator
// needs: existence checks for declared inputs and bucket-to-bucket copies.
package objstore

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Scheme is the URI scheme of Google Cloud Storage objects.
const Scheme = "gs://"

// Store is an object-storage backend.
type Store interface {
	// Exists reports whether uri names an existing object. A nil error with
	// false means the backend answered and the object is absent.
	Exists(ctx context.Context, uri string) (bool, error)
	// Copy copies the object src to dst. A dst ending with "/" is a prefix
	// and the object keeps its base name.
	Copy(ctx context.Context, src, dst string) error
}

// URI is a parsed gs:// object reference.
type URI struct {
	Bucket string
	Object string
}

// ParseURI splits a gs://bucket/object reference.
func ParseURI(s string) (URI, error) {
	if !strings.HasPrefix(s, Scheme) {
		return URI{}, fmt.Errorf("'%s' is not a %s URI", s, Scheme)
	}
	rest := strings.TrimPrefix(s, Scheme)
	idx := strings.Index(rest, "/")
	if idx <= 0 {
		return URI{Bucket: strings.TrimSuffix(rest, "/")}, nil
	}
	return URI{Bucket: rest[:idx], Object: rest[idx+1:]}, nil
}

func (u URI) String() string {
	return Scheme + u.Bucket + "/" + u.Object
}

// TransferPath normalizes a bucket path so that it carries the gs:// scheme
// and a trailing separator.
func TransferPath(bucketPath string) string {
	p := bucketPath
	if !strings.HasPrefix(p, Scheme) {
		p = Scheme + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// StripScheme returns the bucket path without its gs:// prefix.
func StripScheme(bucketPath string) string {
	return strings.TrimPrefix(bucketPath, Scheme)
}

// BaseName returns the last path element of a reference.
func BaseName(ref string) string {
	return path.Base(ref)
}
