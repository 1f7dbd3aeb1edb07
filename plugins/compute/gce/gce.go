// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package gce implements compute.Provider on Google Compute Engine.
package gce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	compute "google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	chipscompute "github.com/facebookincubator/chipsauto/pkg/compute"
	"github.com/facebookincubator/chipsauto/pkg/logging"
	"github.com/facebookincubator/chipsauto/pkg/shell"
)

// Name is the name used to look this plugin up.
const Name = "gce"

var log = logging.GetLogger("plugins/compute/" + Name)

// ServiceAccountScopes are granted to the instance's service account.
var ServiceAccountScopes = []string{"https://www.googleapis.com/auth/cloud-platform"}

// GCE is a compute.Provider bound to one project and zone.
type GCE struct {
	svc     *compute.Service
	project string
	zone    string
	exec    shell.Executor
}

// New creates a GCE provider using application default credentials unless
// opts say otherwise. exec runs the gcloud CLI for the calls that are not
// reliable through the API.
func New(ctx context.Context, project, zone string, exec shell.Executor, opts ...option.ClientOption) (*GCE, error) {
	svc, err := compute.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create compute client: %w", err)
	}
	return &GCE{svc: svc, project: project, zone: zone, exec: exec}, nil
}

func (g *GCE) zonal(kind, name string) string {
	return fmt.Sprintf("projects/%s/zones/%s/%s/%s", g.project, g.zone, kind, name)
}

// CreateInstance creates the instance with a boot disk from the configured
// image and an ephemeral external address.
func (g *GCE) CreateInstance(ctx context.Context, spec chipscompute.InstanceSpec) (*chipscompute.Instance, error) {
	image := fmt.Sprintf("projects/%s/global/images/family/%s", g.project, spec.ImageFamily)
	if spec.Image != "" {
		image = fmt.Sprintf("projects/%s/global/images/%s", g.project, spec.Image)
	}
	inst := &compute.Instance{
		Name:        spec.Name,
		MachineType: fmt.Sprintf("zones/%s/machineTypes/%s", g.zone, spec.MachineType),
		Disks: []*compute.AttachedDisk{{
			Boot:       true,
			AutoDelete: true,
			InitializeParams: &compute.AttachedDiskInitializeParams{
				SourceImage: image,
			},
		}},
		NetworkInterfaces: []*compute.NetworkInterface{{
			Network: "global/networks/default",
			AccessConfigs: []*compute.AccessConfig{{
				Type: "ONE_TO_ONE_NAT",
				Name: "External NAT",
			}},
		}},
	}
	if spec.ServiceAccount != "" {
		inst.ServiceAccounts = []*compute.ServiceAccount{{
			Email:  spec.ServiceAccount,
			Scopes: ServiceAccountScopes,
		}}
	}

	op, err := g.svc.Instances.Insert(g.project, g.zone, inst).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("cannot insert instance %s: %w", spec.Name, err)
	}
	if op, err = g.wait(ctx, op); err != nil {
		return nil, err
	}

	created, err := g.svc.Instances.Get(g.project, g.zone, spec.Name).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("cannot get instance %s: %w", spec.Name, err)
	}
	res := &chipscompute.Instance{
		ID:   strconv.FormatUint(op.TargetId, 10),
		Name: created.Name,
	}
	if created.Id != 0 {
		res.ID = strconv.FormatUint(created.Id, 10)
	}
	for _, nic := range created.NetworkInterfaces {
		if res.InternalIP == "" {
			res.InternalIP = nic.NetworkIP
		}
		for _, ac := range nic.AccessConfigs {
			if res.ExternalIP == "" && ac.NatIP != "" {
				res.ExternalIP = ac.NatIP
			}
		}
	}
	log.Infof("instance %s (id %s) created at %s", res.Name, res.ID, res.Address())
	return res, nil
}

// CreateDisk creates a blank disk or a disk cloned from a snapshot.
func (g *GCE) CreateDisk(ctx context.Context, spec chipscompute.DiskSpec) error {
	disk := &compute.Disk{Name: spec.Name, SizeGb: spec.SizeGB}
	if spec.SourceSnapshot != "" {
		disk.SourceSnapshot = fmt.Sprintf("projects/%s/global/snapshots/%s", g.project, spec.SourceSnapshot)
	}
	op, err := g.svc.Disks.Insert(g.project, g.zone, disk).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("cannot insert disk %s: %w", spec.Name, err)
	}
	_, err = g.wait(ctx, op)
	return err
}

// AttachDisk attaches disk to instance under the given device name.
func (g *GCE) AttachDisk(ctx context.Context, instance, disk, device string) error {
	ad := &compute.AttachedDisk{
		Source:     g.zonal("disks", disk),
		DeviceName: device,
	}
	op, err := g.svc.Instances.AttachDisk(g.project, g.zone, instance, ad).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("cannot attach disk %s to %s: %w", disk, instance, err)
	}
	_, err = g.wait(ctx, op)
	return err
}

// SetDiskAutoDelete marks an attached disk for deletion with its instance.
// This goes through gcloud: setting the flag through the API has been seen
// to silently leave it unset.
func (g *GCE) SetDiskAutoDelete(ctx context.Context, instance, device string) error {
	res := g.exec.Exec(ctx, "gcloud", "compute", "instances", "set-disk-auto-delete", instance,
		"--device-name", device, "--zone", g.zone, "--project", g.project)
	return res.Cause()
}

// DeleteInstance deletes an instance and the disks marked auto-delete.
func (g *GCE) DeleteInstance(ctx context.Context, name string) error {
	op, err := g.svc.Instances.Delete(g.project, g.zone, name).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("cannot delete instance %s: %w", name, err)
	}
	_, err = g.wait(ctx, op)
	return err
}

// DeleteDisk deletes a detached disk. A disk that is already gone, e.g.
// because it was deleted together with its instance, is not an error.
func (g *GCE) DeleteDisk(ctx context.Context, name string) error {
	op, err := g.svc.Disks.Delete(g.project, g.zone, name).Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		log.Debugf("disk %s already deleted", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot delete disk %s: %w", name, err)
	}
	_, err = g.wait(ctx, op)
	return err
}

// wait blocks until a zonal operation is DONE and converts operation level
// errors into a Go error.
func (g *GCE) wait(ctx context.Context, op *compute.Operation) (*compute.Operation, error) {
	var err error
	for op.Status != "DONE" {
		log.Debugf("waiting for operation %s (%s) on %s", op.Name, op.OperationType, op.TargetLink)
		op, err = g.svc.ZoneOperations.Wait(g.project, g.zone, op.Name).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("cannot wait for operation: %w", err)
		}
	}
	if op.Error != nil && len(op.Error.Errors) > 0 {
		msgs := make([]string, 0, len(op.Error.Errors))
		for _, e := range op.Error.Errors {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.Code, e.Message))
		}
		return op, fmt.Errorf("operation %s failed: %s", op.Name, strings.Join(msgs, "; "))
	}
	return op, nil
}
