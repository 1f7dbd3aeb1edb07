// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package s3interop implements objstore.Store through the S3-compatible
// interoperability API of Cloud Storage, so no local CLI is needed.
package s3interop

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/facebookincubator/chipsauto/pkg/logging"
	"github.com/facebookincubator/chipsauto/pkg/objstore"
)

var log = logging.GetLogger("s3interop")

// Name is the name of this object store backend.
const Name = "s3"

// Store is an objstore.Store backed by minio-go.
type Store struct {
	client *minio.Client
}

// New validates cfg and builds a Store.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create S3 client for %s: %w", cfg.Endpoint, err)
	}
	return &Store{client: client}, nil
}

// Exists stats the object named by uri.
func (s *Store) Exists(ctx context.Context, uri string) (bool, error) {
	u, err := objstore.ParseURI(uri)
	if err != nil {
		return false, err
	}
	if u.Object == "" {
		return s.client.BucketExists(ctx, u.Bucket)
	}
	_, err = s.client.StatObject(ctx, u.Bucket, u.Object, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		log.Debugf("%s does not exist", uri)
		return false, nil
	}
	return false, fmt.Errorf("cannot stat %s: %w", uri, err)
}

// Copy performs a server-side copy. A dst ending with "/" keeps the base
// name of src.
func (s *Store) Copy(ctx context.Context, src, dst string) error {
	from, err := objstore.ParseURI(src)
	if err != nil {
		return err
	}
	to, err := objstore.ParseURI(dst)
	if err != nil {
		return err
	}
	if to.Object == "" || strings.HasSuffix(to.Object, "/") {
		to.Object += objstore.BaseName(from.Object)
	}
	_, err = s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: to.Bucket, Object: to.Object},
		minio.CopySrcOptions{Bucket: from.Bucket, Object: from.Object},
	)
	if err != nil {
		return fmt.Errorf("cannot copy %s to %s: %w", src, to, err)
	}
	return nil
}
