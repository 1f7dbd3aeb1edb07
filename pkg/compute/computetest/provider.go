// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package computetest provides a testify mock of compute.Provider.
package computetest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/facebookincubator/chipsauto/pkg/compute"
)

// Provider is a mock compute.Provider.
type Provider struct {
	mock.Mock
}

var _ compute.Provider = (*Provider)(nil)

func (p *Provider) CreateInstance(ctx context.Context, spec compute.InstanceSpec) (*compute.Instance, error) {
	args := p.Called(ctx, spec)
	inst, _ := args.Get(0).(*compute.Instance)
	return inst, args.Error(1)
}

func (p *Provider) CreateDisk(ctx context.Context, spec compute.DiskSpec) error {
	return p.Called(ctx, spec).Error(0)
}

func (p *Provider) AttachDisk(ctx context.Context, instance, disk, device string) error {
	return p.Called(ctx, instance, disk, device).Error(0)
}

func (p *Provider) SetDiskAutoDelete(ctx context.Context, instance, device string) error {
	return p.Called(ctx, instance, device).Error(0)
}

func (p *Provider) DeleteInstance(ctx context.Context, name string) error {
	return p.Called(ctx, name).Error(0)
}

func (p *Provider) DeleteDisk(ctx context.Context, name string) error {
	return p.Called(ctx, name).Error(0)
}

// ExpectHappyPath sets up a provider that creates instance with both disks
// and accepts every other call.
func (p *Provider) ExpectHappyPath(inst *compute.Instance) {
	p.On("CreateInstance", mock.Anything, mock.Anything).Return(inst, nil)
	p.On("CreateDisk", mock.Anything, mock.Anything).Return(nil)
	p.On("AttachDisk", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	p.On("SetDiskAutoDelete", mock.Anything, mock.Anything, mock.Anything).Return(nil)
}
