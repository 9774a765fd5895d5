// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package compute

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/secgroup"
	"github.com/subfish/subfish/internal/state"
)

// DefaultSecurityGroup is the group instances join unless told otherwise.
const DefaultSecurityGroup = "bastion"

// liveStates are the instance states RefreshInstances keeps.
var liveStates = []string{
	string(ec2types.InstanceStateNamePending),
	string(ec2types.InstanceStateNameRunning),
	string(ec2types.InstanceStateNameShuttingDown),
	string(ec2types.InstanceStateNameStopping),
	string(ec2types.InstanceStateNameStopped),
}

// RunInstance launches one instance from template into the first subnet of
// group, in the security group sgName. Nothing is launched when an instance
// from template is already pending or running in the group's subnets.
func (c *Compute) RunInstance(ctx context.Context, template string, group int, sgName string) error {
	if sgName == "" {
		sgName = DefaultSecurityGroup
	}
	templateID, err := c.TemplateID(template)
	if err != nil {
		return err
	}
	subnets, err := c.subnets(group)
	if err != nil {
		return err
	}
	groupID, ok := secgroup.New(c.Base).GroupID(sgName)
	if !ok {
		return fmt.Errorf("security group %s: %w", sgName, state.ErrNotFound)
	}

	running, err := c.describeInstances(ctx,
		resource.Filter("tag:"+TagLaunchTemplateID, templateID),
		resource.Filter("subnet-id", subnets...),
		resource.Filter("instance-state-name", string(ec2types.InstanceStateNamePending), string(ec2types.InstanceStateNameRunning)),
	)
	if err != nil {
		return err
	}
	if len(running) > 0 {
		log.Infof("instance from %s already in group %d: id=%s", template, group, aws.ToString(running[0].InstanceId))
		return c.RefreshInstances(ctx)
	}

	log.Infof("running instance: template=%s group=%d subnet=%s sg=%s", template, group, subnets[0], sgName)
	out, err := c.Clients.EC2.RunInstances(ctx, &ec2.RunInstancesInput{
		LaunchTemplate: &ec2types.LaunchTemplateSpecification{
			LaunchTemplateId: aws.String(templateID),
			Version:          aws.String(DefaultVersion),
		},
		MinCount:         aws.Int32(1),
		MaxCount:         aws.Int32(1),
		SubnetId:         aws.String(subnets[0]),
		SecurityGroupIds: []string{groupID},
		ClientToken:      aws.String(uuid.NewString()),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags: []ec2types.Tag{
				{Key: aws.String("Name"), Value: aws.String(template)},
				resource.AffinityTag(group),
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to run instance from %s: %w", template, err)
	}
	awsx.LogResponse("RunInstances", out.ResultMetadata, out.Instances)
	if len(out.Instances) == 0 {
		return errors.New("run instances returned no instance")
	}
	instanceID := aws.ToString(out.Instances[0].InstanceId)

	if err := c.Store.Append(state.KeyInstances, out.Instances[0]); err != nil {
		return err
	}
	if err := c.Save(ctx); err != nil {
		return err
	}

	describe := &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}}
	if err := ec2.NewInstanceExistsWaiter(c.Clients.EC2).Wait(ctx, describe, c.Timing.WaitTimeout); err != nil {
		return fmt.Errorf("instance %s never appeared: %w", instanceID, err)
	}
	if err := ec2.NewInstanceRunningWaiter(c.Clients.EC2).Wait(ctx, describe, c.Timing.WaitTimeout); err != nil {
		return fmt.Errorf("instance %s never started: %w", instanceID, err)
	}
	log.Infof("instance running: id=%s", instanceID)

	return c.RefreshInstances(ctx)
}

func (c *Compute) describeInstances(ctx context.Context, filters ...ec2types.Filter) ([]ec2types.Instance, error) {
	var instances []ec2types.Instance
	p := ec2.NewDescribeInstancesPaginator(c.Clients.EC2, &ec2.DescribeInstancesInput{Filters: filters})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}
		awsx.LogResponse("DescribeInstances", page.ResultMetadata, page.Reservations)
		for _, r := range page.Reservations {
			instances = append(instances, r.Instances...)
		}
	}
	return instances, nil
}

// RefreshInstances re-reads every instance of the VPC that is not
// terminated, flattened across reservations.
func (c *Compute) RefreshInstances(ctx context.Context) error {
	vpcID, err := c.VpcID()
	if err != nil {
		return err
	}
	instances, err := c.describeInstances(ctx,
		resource.Filter("vpc-id", vpcID),
		resource.Filter("instance-state-name", liveStates...),
	)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		return c.DeleteAndSave(ctx, state.KeyInstances)
	}
	return c.SetAndSave(ctx, state.KeyInstances, instances)
}

// TerminateInstances terminates every cached instance and waits until all
// are gone.
func (c *Compute) TerminateInstances(ctx context.Context) error {
	if !c.Store.Has(state.KeyInstances) {
		return nil
	}
	var instances []ec2types.Instance
	if err := c.Store.Get(state.KeyInstances, &instances); err != nil {
		return err
	}
	var ids []string
	for _, i := range instances {
		ids = append(ids, aws.ToString(i.InstanceId))
	}
	if len(ids) == 0 {
		return c.DeleteAndSave(ctx, state.KeyInstances)
	}

	log.Infof("terminating instances: %v", ids)
	out, err := c.Clients.EC2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids})
	if awsx.IsCode(err, awsx.CodeInstanceNotFound) {
		// Some are already gone; find out which are left.
		if _, verr := c.VpcID(); verr != nil {
			return c.DeleteAndSave(ctx, state.KeyInstances)
		}
		if err := c.RefreshInstances(ctx); err != nil {
			return err
		}
		return c.TerminateInstances(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to terminate instances: %w", err)
	}
	awsx.LogResponse("TerminateInstances", out.ResultMetadata, out.TerminatingInstances)

	describe := &ec2.DescribeInstancesInput{InstanceIds: ids}
	if err := ec2.NewInstanceTerminatedWaiter(c.Clients.EC2).Wait(ctx, describe, c.Timing.WaitTimeout); err != nil {
		return fmt.Errorf("instances never terminated: %w", err)
	}
	return c.DeleteAndSave(ctx, state.KeyInstances)
}
