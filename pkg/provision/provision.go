// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package provision creates the instance and disks of a job, in order, and
// deletes them again when asked to.
package provision

import (
	"context"
	"fmt"

	"github.com/facebookincubator/chipsauto/pkg/cerrors"
	"github.com/facebookincubator/chipsauto/pkg/compute"
	"github.com/facebookincubator/chipsauto/pkg/config"
	"github.com/facebookincubator/chipsauto/pkg/logging"
	"github.com/facebookincubator/chipsauto/pkg/stage"
)

var log = logging.GetLogger("provision")

// Provisioning steps, as reported in cerrors.ErrProvision.
const (
	StepCreateInstance = "create instance"
	StepCreateDataDisk = "create data disk"
	StepAttachDataDisk = "attach data disk"
	StepCreateRefDisk  = "create reference disk"
	StepAttachRefDisk  = "attach reference disk"
)

// Stage names of the reports returned by this package.
const (
	AutoDeleteStage = "disk-auto-delete"
	CleanupStage    = "cleanup"
)

// Plan holds the normalized resources of one job.
type Plan struct {
	Instance compute.InstanceSpec
	Data     compute.DiskSpec
	// Ref is nil when no reference disk is wanted.
	Ref *compute.DiskSpec
}

// PlanFor derives the resources to create from a validated job.
func PlanFor(job *config.JobSpec) Plan {
	plan := Plan{
		Instance: compute.InstanceSpec{
			Name:           job.FullInstanceName(),
			MachineType:    compute.MachineType(job.Cores),
			Image:          job.Image,
			ImageFamily:    job.ImageFamily,
			ServiceAccount: job.ServiceAccount,
		},
		Data: compute.DiskSpec{
			Name:   job.DataDiskName(),
			SizeGB: job.DiskSizeGB,
		},
	}
	if job.RefSnapshot != "" {
		plan.Ref = &compute.DiskSpec{
			Name:           job.RefDiskName(),
			SourceSnapshot: job.RefSnapshot,
		}
	}
	return plan
}

// Provisioner drives a compute.Provider.
type Provisioner struct {
	Provider compute.Provider
}

// New returns a Provisioner.
func New(p compute.Provider) *Provisioner {
	return &Provisioner{Provider: p}
}

// Provision creates the instance, then the data disk, then the optional
// reference disk, attaching each disk once created, and finally flags the
// disks for deletion with the instance. A failing step stops the sequence:
// the partial resource is returned along with a *cerrors.ErrProvision. The
// auto-delete step never fails the call; its outcomes are in the report.
func (p *Provisioner) Provision(ctx context.Context, plan Plan) (*compute.ProvisionedResource, *stage.Report, error) {
	res := &compute.ProvisionedResource{InstanceName: plan.Instance.Name}
	fail := func(step string, err error) (*compute.ProvisionedResource, *stage.Report, error) {
		log.Errorf("provisioning failed at '%s': %v", step, err)
		return res, nil, &cerrors.ErrProvision{Step: step, Err: err}
	}

	log.Infof("creating instance %s (%s)", plan.Instance.Name, plan.Instance.MachineType)
	inst, err := p.Provider.CreateInstance(ctx, plan.Instance)
	if err != nil {
		return fail(StepCreateInstance, err)
	}
	res.InstanceID = inst.ID
	res.Address = inst.Address()
	res.InternalAddress = inst.InternalIP
	res.Created = append(res.Created, compute.Resource{Kind: compute.KindInstance, Name: plan.Instance.Name})
	log.Infof("instance %s is up: id=%s address=%s", plan.Instance.Name, inst.ID, res.Address)

	devices := []string{compute.DataDevice}
	step, err := p.createAndAttach(ctx, res, plan.Data, compute.DataDevice, StepCreateDataDisk, StepAttachDataDisk)
	if created(res, plan.Data.Name) {
		res.DataDisk = plan.Data.Name
	}
	if err != nil {
		return fail(step, err)
	}

	if plan.Ref != nil {
		step, err := p.createAndAttach(ctx, res, *plan.Ref, compute.RefDevice, StepCreateRefDisk, StepAttachRefDisk)
		if created(res, plan.Ref.Name) {
			res.RefDisk = plan.Ref.Name
		}
		if err != nil {
			return fail(step, err)
		}
		devices = append(devices, compute.RefDevice)
	} else {
		log.Infof("no reference snapshot, skipping reference disk")
	}

	report := stage.NewReport(AutoDeleteStage)
	for _, dev := range devices {
		err := p.Provider.SetDiskAutoDelete(ctx, plan.Instance.Name, dev)
		if err != nil {
			log.Warningf("cannot set auto-delete on %s of %s: %v", dev, plan.Instance.Name, err)
		}
		report.Add(dev, err)
	}
	return res, report, nil
}

// createAndAttach returns the failed step along with the error.
func (p *Provisioner) createAndAttach(ctx context.Context, res *compute.ProvisionedResource, disk compute.DiskSpec, device, createStep, attachStep string) (string, error) {
	if disk.SourceSnapshot != "" {
		log.Infof("creating disk %s from snapshot %s", disk.Name, disk.SourceSnapshot)
	} else {
		log.Infof("creating disk %s (%d GB)", disk.Name, disk.SizeGB)
	}
	if err := p.Provider.CreateDisk(ctx, disk); err != nil {
		return createStep, err
	}
	res.Created = append(res.Created, compute.Resource{Kind: compute.KindDisk, Name: disk.Name})

	log.Infof("attaching disk %s to %s as %s", disk.Name, res.InstanceName, device)
	if err := p.Provider.AttachDisk(ctx, res.InstanceName, disk.Name, device); err != nil {
		return attachStep, fmt.Errorf("cannot attach %s as %s: %w", disk.Name, device, err)
	}
	return "", nil
}

func created(res *compute.ProvisionedResource, name string) bool {
	for _, r := range res.Created {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Cleanup deletes what res records as created: the instance first, then the
// disks. Every deletion is attempted; the outcomes are in the report.
func (p *Provisioner) Cleanup(ctx context.Context, res *compute.ProvisionedResource) *stage.Report {
	report := stage.NewReport(CleanupStage)
	if res == nil {
		return report
	}
	for _, kind := range []compute.Kind{compute.KindInstance, compute.KindDisk} {
		for _, r := range res.Created {
			if r.Kind != kind {
				continue
			}
			var err error
			switch kind {
			case compute.KindInstance:
				err = p.Provider.DeleteInstance(ctx, r.Name)
			case compute.KindDisk:
				err = p.Provider.DeleteDisk(ctx, r.Name)
			}
			item := fmt.Sprintf("%s %s", r.Kind, r.Name)
			if err != nil {
				log.Errorf("cannot delete %s: %v", item, err)
			} else {
				log.Infof("deleted %s", item)
			}
			report.Add(item, err)
		}
	}
	return report
}
