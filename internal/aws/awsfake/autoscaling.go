// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package awsfake

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"

	awsx "github.com/subfish/subfish/internal/aws"
)

var _ awsx.AutoScalingAPI = (*AutoScaling)(nil)

// AutoScaling is an in-memory Auto Scaling. Groups never launch instances.
type AutoScaling struct {
	recorder

	mu     sync.Mutex
	groups []*astypes.AutoScalingGroup
}

// NewAutoScaling returns an AutoScaling without groups.
func NewAutoScaling() *AutoScaling {
	return &AutoScaling{}
}

func (f *AutoScaling) find(name string) int {
	return slices.IndexFunc(f.groups, func(g *astypes.AutoScalingGroup) bool { return aws.ToString(g.AutoScalingGroupName) == name })
}

func (f *AutoScaling) CreateAutoScalingGroup(_ context.Context, in *autoscaling.CreateAutoScalingGroupInput, _ ...func(*autoscaling.Options)) (*autoscaling.CreateAutoScalingGroupOutput, error) {
	if err := f.record("CreateAutoScalingGroup"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.AutoScalingGroupName)
	if f.find(name) >= 0 {
		return nil, &astypes.AlreadyExistsFault{Message: aws.String("AutoScalingGroup by this name already exists - A group with the name " + name + " already exists")}
	}
	if aws.ToInt32(in.MinSize) > aws.ToInt32(in.MaxSize) {
		return nil, APIError(awsx.CodeValidationError, "max bound, %d, must be greater than or equal to min bound, %d", aws.ToInt32(in.MaxSize), aws.ToInt32(in.MinSize))
	}
	desired := in.DesiredCapacity
	if desired == nil {
		desired = in.MinSize
	}

	var tags []astypes.TagDescription
	for _, t := range in.Tags {
		tags = append(tags, astypes.TagDescription{
			Key:               t.Key,
			Value:             t.Value,
			PropagateAtLaunch: t.PropagateAtLaunch,
			ResourceId:        aws.String(name),
			ResourceType:      aws.String("auto-scaling-group"),
		})
	}
	f.groups = append(f.groups, &astypes.AutoScalingGroup{
		AutoScalingGroupName: aws.String(name),
		AutoScalingGroupARN:  aws.String("arn:aws:autoscaling:us-east-1:" + Account + ":autoScalingGroup:" + name),
		LaunchTemplate:       in.LaunchTemplate,
		MinSize:              in.MinSize,
		MaxSize:              in.MaxSize,
		DesiredCapacity:      desired,
		VPCZoneIdentifier:    in.VPCZoneIdentifier,
		HealthCheckType:      aws.String("EC2"),
		DefaultCooldown:      aws.Int32(300),
		CreatedTime:          aws.Time(time.Now()),
		Tags:                 tags,
	})
	return &autoscaling.CreateAutoScalingGroupOutput{}, nil
}

func (f *AutoScaling) DescribeAutoScalingGroups(_ context.Context, in *autoscaling.DescribeAutoScalingGroupsInput, _ ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	if err := f.record("DescribeAutoScalingGroups"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out := &autoscaling.DescribeAutoScalingGroupsOutput{}
	for _, g := range f.groups {
		if len(in.AutoScalingGroupNames) > 0 && !slices.Contains(in.AutoScalingGroupNames, aws.ToString(g.AutoScalingGroupName)) {
			continue
		}
		out.AutoScalingGroups = append(out.AutoScalingGroups, *g)
	}
	return out, nil
}

func (f *AutoScaling) DeleteAutoScalingGroup(_ context.Context, in *autoscaling.DeleteAutoScalingGroupInput, _ ...func(*autoscaling.Options)) (*autoscaling.DeleteAutoScalingGroupOutput, error) {
	if err := f.record("DeleteAutoScalingGroup"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.AutoScalingGroupName)
	i := f.find(name)
	if i < 0 {
		return nil, APIError(awsx.CodeValidationError, "AutoScalingGroup name not found - AutoScalingGroup '%s' not found", name)
	}
	f.groups = slices.Delete(f.groups, i, i+1)
	return &autoscaling.DeleteAutoScalingGroupOutput{}, nil
}
