// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package plugins maps backend names, as given on the command line, to
// their implementations.
package plugins

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/facebookincubator/chipsauto/pkg/compute"
	"github.com/facebookincubator/chipsauto/pkg/objstore"
	"github.com/facebookincubator/chipsauto/pkg/shell"
	"github.com/facebookincubator/chipsauto/plugins/compute/gce"
	"github.com/facebookincubator/chipsauto/plugins/objstore/gsutil"
	"github.com/facebookincubator/chipsauto/plugins/objstore/s3interop"
)

// ObjectStoreFactory builds an object store.
type ObjectStoreFactory func(exec shell.Executor) (objstore.Store, error)

// ComputeFactory builds a compute provider bound to a project and zone.
type ComputeFactory func(ctx context.Context, project, zone string, exec shell.Executor) (compute.Provider, error)

var objectStores = map[string]ObjectStoreFactory{
	gsutil.Name: func(exec shell.Executor) (objstore.Store, error) {
		return gsutil.New(exec), nil
	},
	s3interop.Name: func(shell.Executor) (objstore.Store, error) {
		cfg, err := s3interop.ConfigFromEnv(os.Getenv)
		if err != nil {
			return nil, err
		}
		return s3interop.New(cfg)
	},
}

var computeProviders = map[string]ComputeFactory{
	gce.Name: func(ctx context.Context, project, zone string, exec shell.Executor) (compute.Provider, error) {
		return gce.New(ctx, project, zone, exec)
	},
}

// ObjectStore returns the object store registered under name.
func ObjectStore(name string, exec shell.Executor) (objstore.Store, error) {
	f, ok := objectStores[name]
	if !ok {
		return nil, fmt.Errorf("unknown object store '%s', available: %v", name, ObjectStores())
	}
	return f(exec)
}

// ObjectStores returns the registered object store names.
func ObjectStores() []string {
	return names(objectStores)
}

// Compute returns the compute provider registered under name.
func Compute(ctx context.Context, name, project, zone string, exec shell.Executor) (compute.Provider, error) {
	f, ok := computeProviders[name]
	if !ok {
		return nil, fmt.Errorf("unknown compute provider '%s', available: %v", name, ComputeProviders())
	}
	return f(ctx, project, zone, exec)
}

// ComputeProviders returns the registered compute provider names.
func ComputeProviders() []string {
	return names(computeProviders)
}

func names[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
