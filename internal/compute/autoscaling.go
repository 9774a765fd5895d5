// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package compute

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/state"
)

// GroupSpec describes one autoscaling group of a blueprint.
type GroupSpec struct {
	Name           string `yaml:"name"`
	LaunchTemplate string `yaml:"launch_template"`
	Group          int    `yaml:"group"`
	Min            int32  `yaml:"min"`
	Max            int32  `yaml:"max"`
	Desired        *int32 `yaml:"desired,omitempty"`
}

func (c *Compute) cachedGroups() ([]astypes.AutoScalingGroup, error) {
	var groups []astypes.AutoScalingGroup
	if err := c.Store.Get(state.KeyAutoScalingGroups, &groups); err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}
	return groups, nil
}

func groupNames(groups []astypes.AutoScalingGroup) []string {
	var names []string
	for _, g := range groups {
		names = append(names, aws.ToString(g.AutoScalingGroupName))
	}
	return names
}

// CreateAutoScalingGroup creates the group spec describes over the subnets of
// its affinity group. A group AWS already has is adopted.
func (c *Compute) CreateAutoScalingGroup(ctx context.Context, spec GroupSpec) error {
	if spec.Name == "" {
		return errors.New("autoscaling group needs a name")
	}
	templateID, err := c.TemplateID(spec.LaunchTemplate)
	if err != nil {
		return err
	}
	subnets, err := c.subnets(spec.Group)
	if err != nil {
		return err
	}

	log.Infof("creating autoscaling group: name=%s template=%s group=%d min=%d max=%d",
		spec.Name, spec.LaunchTemplate, spec.Group, spec.Min, spec.Max)
	out, err := c.Clients.AutoScaling.CreateAutoScalingGroup(ctx, &autoscaling.CreateAutoScalingGroupInput{
		AutoScalingGroupName: aws.String(spec.Name),
		LaunchTemplate: &astypes.LaunchTemplateSpecification{
			LaunchTemplateId: aws.String(templateID),
			Version:          aws.String(DefaultVersion),
		},
		MinSize:           aws.Int32(spec.Min),
		MaxSize:           aws.Int32(spec.Max),
		DesiredCapacity:   spec.Desired,
		VPCZoneIdentifier: aws.String(strings.Join(subnets, ",")),
		Tags: []astypes.Tag{
			{Key: aws.String("Name"), Value: aws.String(spec.Name), PropagateAtLaunch: aws.Bool(true)},
			{Key: aws.String(resource.AffinityKey), Value: aws.String(strconv.Itoa(spec.Group)), PropagateAtLaunch: aws.Bool(true)},
		},
	})
	switch {
	case awsx.IsCode(err, awsx.CodeASGAlreadyExists):
		log.Debugf("autoscaling group %s exists", spec.Name)
	case err != nil:
		return fmt.Errorf("failed to create autoscaling group %s: %w", spec.Name, err)
	default:
		awsx.LogResponse("CreateAutoScalingGroup", out.ResultMetadata, nil)
	}

	cached, err := c.cachedGroups()
	if err != nil {
		return err
	}
	names := groupNames(cached)
	if !slices.Contains(names, spec.Name) {
		names = append(names, spec.Name)
	}
	return c.refreshGroups(ctx, names)
}

// RefreshAutoScalingGroups re-reads the cached groups. Groups AWS no longer
// has are dropped.
func (c *Compute) RefreshAutoScalingGroups(ctx context.Context) error {
	cached, err := c.cachedGroups()
	if err != nil {
		return err
	}
	if len(cached) == 0 {
		return nil
	}
	return c.refreshGroups(ctx, groupNames(cached))
}

func (c *Compute) refreshGroups(ctx context.Context, names []string) error {
	var groups []astypes.AutoScalingGroup
	p := autoscaling.NewDescribeAutoScalingGroupsPaginator(c.Clients.AutoScaling, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: names,
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to describe autoscaling groups: %w", err)
		}
		awsx.LogResponse("DescribeAutoScalingGroups", page.ResultMetadata, page.AutoScalingGroups)
		groups = append(groups, page.AutoScalingGroups...)
	}

	if len(groups) == 0 {
		return c.DeleteAndSave(ctx, state.KeyAutoScalingGroups)
	}
	return c.SetAndSave(ctx, state.KeyAutoScalingGroups, groups)
}

// DeleteAutoScalingGroups force deletes every cached group, terminating its
// instances, and waits until the groups are gone.
func (c *Compute) DeleteAutoScalingGroups(ctx context.Context) error {
	if !c.Store.Has(state.KeyAutoScalingGroups) {
		return nil
	}
	cached, err := c.cachedGroups()
	if err != nil {
		return err
	}
	names := groupNames(cached)
	if len(names) == 0 {
		return c.DeleteAndSave(ctx, state.KeyAutoScalingGroups)
	}

	for _, name := range names {
		log.Infof("deleting autoscaling group: name=%s", name)
		out, err := c.Clients.AutoScaling.DeleteAutoScalingGroup(ctx, &autoscaling.DeleteAutoScalingGroupInput{
			AutoScalingGroupName: aws.String(name),
			ForceDelete:          aws.Bool(true),
		})
		// A group that is already gone is reported as a validation error.
		if awsx.IsCode(err, awsx.CodeValidationError) {
			log.Debugf("autoscaling group %s: %s", name, awsx.ErrorMessage(err))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to delete autoscaling group %s: %w", name, err)
		}
		awsx.LogResponse("DeleteAutoScalingGroup", out.ResultMetadata, nil)
	}

	waiter := autoscaling.NewGroupNotExistsWaiter(c.Clients.AutoScaling)
	describe := &autoscaling.DescribeAutoScalingGroupsInput{AutoScalingGroupNames: names}
	if err := waiter.Wait(ctx, describe, c.Timing.WaitTimeout); err != nil {
		return fmt.Errorf("autoscaling groups never deleted: %w", err)
	}
	return c.DeleteAndSave(ctx, state.KeyAutoScalingGroups)
}
