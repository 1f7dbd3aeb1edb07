// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package compute describes the cloud resources created for a job and the
// provider operations used to create and delete them.
package compute

import (
	"context"
)

// Device names of the attached disks. They follow attachment order.
const (
	DataDevice = "persistent-disk-1"
	RefDevice  = "persistent-disk-2"
)

// DefaultMachineType is used when the core count is not in MachineTypes.
const DefaultMachineType = "n2-standard-8"

// MachineTypes maps a core count to its machine class.
var MachineTypes = map[string]string{
	"2":  "n2-standard-2",
	"4":  "n2-standard-4",
	"8":  "n2-standard-8",
	"16": "n2-standard-16",
	"32": "n2-standard-32",
	"64": "n2-standard-64",
	"96": "n2-standard-96",
}

// MachineType resolves a core count to a machine class.
func MachineType(cores string) string {
	if mt, ok := MachineTypes[cores]; ok {
		return mt
	}
	return DefaultMachineType
}

// InstanceSpec holds the parameters of the instance to create.
type InstanceSpec struct {
	Name           string
	MachineType    string
	Image          string
	ImageFamily    string
	ServiceAccount string
}

// DiskSpec holds the parameters of a disk to create. SourceSnapshot is
// empty for a blank disk.
type DiskSpec struct {
	Name           string
	SizeGB         int64
	SourceSnapshot string
}

// Instance is a created instance as reported by the provider.
type Instance struct {
	ID         string
	Name       string
	ExternalIP string
	InternalIP string
}

// Address returns the address used to reach the instance.
func (i *Instance) Address() string {
	if i.ExternalIP != "" {
		return i.ExternalIP
	}
	return i.InternalIP
}

// Kind is the type of a cloud resource.
type Kind string

// Resource kinds.
const (
	KindInstance Kind = "instance"
	KindDisk     Kind = "disk"
)

// Resource names one created cloud resource.
type Resource struct {
	Kind Kind
	Name string
}

// ProvisionedResource is the outcome of provisioning. Created lists, in
// creation order, every resource that exists on the provider side, also
// when provisioning stopped half-way.
type ProvisionedResource struct {
	InstanceID      string
	InstanceName    string
	Address         string
	InternalAddress string
	DataDisk        string
	RefDisk         string
	Created         []Resource
}

// Provider creates and deletes instances and disks. Every method blocks until
// the provider reports the operation as complete.
type Provider interface {
	CreateInstance(ctx context.Context, spec InstanceSpec) (*Instance, error)
	CreateDisk(ctx context.Context, spec DiskSpec) error
	AttachDisk(ctx context.Context, instance, disk, device string) error
	SetDiskAutoDelete(ctx context.Context, instance, device string) error
	DeleteInstance(ctx context.Context, name string) error
	DeleteDisk(ctx context.Context, name string) error
}
