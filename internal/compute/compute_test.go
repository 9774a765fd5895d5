// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package compute

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/network"
	"github.com/subfish/subfish/internal/render"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/resource/resourcetest"
	"github.com/subfish/subfish/internal/secgroup"
	"github.com/subfish/subfish/internal/state"
)

const bastionTemplate = `{
  "ImageId": "{{ .ami }}",
  "InstanceType": "t3.micro",
  "UserData": "{{ userData "boot.sh" }}"
}`

var amiVars = map[string]any{"ami": "ami-0123456789abcdef0"}

// setup builds a VPC with two subnets in groups 0 and 1, the bastion
// security group and the bastion launch template file.
func setup(t *testing.T) (*Compute, *resourcetest.Env) {
	t.Helper()
	ctx := context.Background()
	env := resourcetest.New(t)

	n := network.New(env.Base)
	require.NoError(t, n.CreateVPC(ctx, ""))
	for _, g := range []int{0, 0, 1, 1} {
		require.NoError(t, n.CreateSubnet(ctx, g))
	}
	require.NoError(t, secgroup.New(env.Base).CreateSecurityGroup(ctx, DefaultSecurityGroup))

	env.WriteConfig(t, "launch_templates/bastion.json.tmpl", bastionTemplate)
	env.WriteConfig(t, "user_data/boot.sh", "#!/bin/sh\necho hi\n")
	return New(env.Base), env
}

func cachedInstances(t *testing.T, c *Compute) []ec2types.Instance {
	t.Helper()
	var instances []ec2types.Instance
	if c.Store.Has(state.KeyInstances) {
		require.NoError(t, c.Store.Get(state.KeyInstances, &instances))
	}
	return instances
}

func TestCreateLaunchTemplate(t *testing.T) {
	ctx := context.Background()
	c, env := setup(t)

	require.NoError(t, c.CreateLaunchTemplate(ctx, "bastion", amiVars))

	id, err := c.TemplateID("bastion")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, env.Reload(t).Lookup("LaunchTemplates.0.LaunchTemplateId").String())

	versions := env.Cloud.EC2.TemplateVersions("bastion")
	require.Len(t, versions, 1)
	assert.Equal(t, "ami-0123456789abcdef0", aws.ToString(versions[0].ImageId))
	assert.Equal(t, ec2types.InstanceTypeT3Micro, versions[0].InstanceType)
	userData, err := base64.StdEncoding.DecodeString(aws.ToString(versions[0].UserData))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(userData))

	require.Len(t, env.Cloud.EC2.ClientTokens, 1)
	_, err = uuid.Parse(env.Cloud.EC2.ClientTokens[0])
	assert.NoError(t, err, "idempotency token is a uuid")

	// An existing template is only warned about.
	require.NoError(t, c.CreateLaunchTemplate(ctx, "bastion", amiVars))
	assert.Equal(t, 2, env.Cloud.EC2.Calls("CreateLaunchTemplate"))
	assert.Len(t, env.Cloud.EC2.TemplateVersions("bastion"), 1)
}

func TestCreateLaunchTemplate_Errors(t *testing.T) {
	ctx := context.Background()
	c, env := setup(t)

	err := c.CreateLaunchTemplate(ctx, "worker", nil)
	assert.True(t, errors.Is(err, render.ErrNoTemplate))

	err = c.CreateLaunchTemplate(ctx, "bastion", nil)
	assert.ErrorContains(t, err, "failed to render", "ami is required")
	assert.Zero(t, env.Cloud.EC2.Calls("CreateLaunchTemplate"))
}

func TestModifyLaunchTemplate(t *testing.T) {
	ctx := context.Background()
	c, env := setup(t)
	require.NoError(t, c.CreateLaunchTemplate(ctx, "bastion", amiVars))

	require.NoError(t, c.ModifyLaunchTemplate(ctx, "bastion", map[string]any{"ami": "ami-new"}))

	versions := env.Cloud.EC2.TemplateVersions("bastion")
	require.Len(t, versions, 2)
	assert.Equal(t, "ami-new", aws.ToString(versions[1].ImageId))
	assert.Equal(t, int64(2), c.Store.Lookup("LaunchTemplates.0.DefaultVersionNumber").Int())
	assert.Equal(t, int64(2), c.Store.Lookup("LaunchTemplates.0.LatestVersionNumber").Int())
}

func TestRefreshLaunchTemplates(t *testing.T) {
	ctx := context.Background()
	c, env := setup(t)

	// Templates without a file are not ours.
	_, err := env.Cloud.EC2.CreateLaunchTemplate(ctx, &ec2.CreateLaunchTemplateInput{
		LaunchTemplateName: aws.String("someone-elses"),
		LaunchTemplateData: &ec2types.RequestLaunchTemplateData{ImageId: aws.String("ami-1")},
	})
	require.NoError(t, err)

	require.NoError(t, c.RefreshLaunchTemplates(ctx))
	assert.False(t, c.Store.Has(state.KeyLaunchTemplates), "bastion is not created yet")

	require.NoError(t, c.CreateLaunchTemplate(ctx, "bastion", amiVars))
	var templates []ec2types.LaunchTemplate
	require.NoError(t, c.Store.Get(state.KeyLaunchTemplates, &templates))
	require.Len(t, templates, 1)
	assert.Equal(t, "bastion", aws.ToString(templates[0].LaunchTemplateName))
}

func TestDeleteLaunchTemplates(t *testing.T) {
	ctx := context.Background()
	c, env := setup(t)
	require.NoError(t, c.CreateLaunchTemplate(ctx, "bastion", amiVars))

	require.NoError(t, c.DeleteLaunchTemplates(ctx))
	assert.Nil(t, env.Cloud.EC2.TemplateVersions("bastion"))
	assert.False(t, env.Reload(t).Has(state.KeyLaunchTemplates))

	require.NoError(t, c.DeleteLaunchTemplates(ctx), "nothing cached")
	assert.Equal(t, 1, env.Cloud.EC2.Calls("DeleteLaunchTemplate"))
}

func TestRunInstance(t *testing.T) {
	ctx := context.Background()
	c, env := setup(t)
	require.NoError(t, c.CreateLaunchTemplate(ctx, "bastion", amiVars))
	templateID, _ := c.TemplateID("bastion")
	group0 := network.New(c.Base).AffinitySubnets(0)

	require.NoError(t, c.RunInstance(ctx, "bastion", 0, ""))

	instances := cachedInstances(t, c)
	require.Len(t, instances, 1)
	inst := instances[0]
	assert.Equal(t, ec2types.InstanceStateNameRunning, inst.State.Name)
	assert.Equal(t, group0[0], aws.ToString(inst.SubnetId))
	assert.Equal(t, "ami-0123456789abcdef0", aws.ToString(inst.ImageId))
	require.Len(t, inst.SecurityGroups, 1)
	assert.Equal(t, DefaultSecurityGroup, aws.ToString(inst.SecurityGroups[0].GroupName))
	assert.True(t, resource.InGroup(inst.Tags, 0))
	got, _ := resource.TagValue(inst.Tags, TagLaunchTemplateID)
	assert.Equal(t, templateID, got)

	// Already running in group 0.
	require.NoError(t, c.RunInstance(ctx, "bastion", 0, DefaultSecurityGroup))
	assert.Equal(t, 1, env.Cloud.EC2.Calls("RunInstances"))

	// Group 1 gets its own.
	require.NoError(t, c.RunInstance(ctx, "bastion", 1, ""))
	assert.Equal(t, 2, env.Cloud.EC2.Calls("RunInstances"))
	assert.Len(t, cachedInstances(t, c), 2)
	assert.Len(t, env.Reload(t).Lookup("Instances").Array(), 2)
}

func TestRunInstance_SkipsInstanceFromTemplate(t *testing.T) {
	ctx := context.Background()
	c, env := setup(t)
	require.NoError(t, c.CreateLaunchTemplate(ctx, "bastion", amiVars))
	templateID, _ := c.TemplateID("bastion")
	group0 := network.New(c.Base).AffinitySubnets(0)

	seeded := env.Cloud.EC2.SeedInstance(group0[1], ec2types.Tag{Key: aws.String(TagLaunchTemplateID), Value: aws.String(templateID)})

	require.NoError(t, c.RunInstance(ctx, "bastion", 0, ""))
	assert.Zero(t, env.Cloud.EC2.Calls("RunInstances"))
	instances := cachedInstances(t, c)
	require.Len(t, instances, 1)
	assert.Equal(t, seeded, aws.ToString(instances[0].InstanceId))
}

func TestRunInstance_MissingPrerequisites(t *testing.T) {
	ctx := context.Background()
	c, env := setup(t)
	require.NoError(t, c.CreateLaunchTemplate(ctx, "bastion", amiVars))

	tests := []struct {
		name     string
		template string
		group    int
		sg       string
	}{
		{"template", "worker", 0, ""},
		{"subnets", "bastion", 7, ""},
		{"security group", "bastion", 0, "web"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.RunInstance(ctx, tt.template, tt.group, tt.sg)
			assert.True(t, errors.Is(err, state.ErrNotFound), "got %v", err)
		})
	}
	assert.Zero(t, env.Cloud.EC2.Calls("RunInstances"))
}

func TestTerminateInstances(t *testing.T) {
	ctx := context.Background()
	c, env := setup(t)
	require.NoError(t, c.CreateLaunchTemplate(ctx, "bastion", amiVars))
	require.NoError(t, c.RunInstance(ctx, "bastion", 0, ""))
	require.NoError(t, c.RunInstance(ctx, "bastion", 1, ""))

	require.NoError(t, c.TerminateInstances(ctx))
	assert.False(t, env.Reload(t).Has(state.KeyInstances))

	// Terminated instances are not picked up again.
	require.NoError(t, c.RefreshInstances(ctx))
	assert.False(t, c.Store.Has(state.KeyInstances))

	require.NoError(t, c.TerminateInstances(ctx), "nothing cached")
	assert.Equal(t, 1, env.Cloud.EC2.Calls("TerminateInstances"))
}

func TestAutoScalingGroups(t *testing.T) {
	ctx := context.Background()
	c, env := setup(t)
	require.NoError(t, c.CreateLaunchTemplate(ctx, "bastion", amiVars))
	templateID, _ := c.TemplateID("bastion")

	spec := GroupSpec{Name: "workers", LaunchTemplate: "bastion", Group: 1, Min: 1, Max: 3}
	require.NoError(t, c.CreateAutoScalingGroup(ctx, spec))
	require.NoError(t, c.CreateAutoScalingGroup(ctx, GroupSpec{Name: "spares", LaunchTemplate: "bastion", Group: 0, Max: 1}))

	var groups []astypes.AutoScalingGroup
	require.NoError(t, env.Reload(t).Get(state.KeyAutoScalingGroups, &groups))
	require.Len(t, groups, 2)
	workers := groups[0]
	assert.Equal(t, "workers", aws.ToString(workers.AutoScalingGroupName))
	assert.Equal(t, templateID, aws.ToString(workers.LaunchTemplate.LaunchTemplateId))
	assert.Equal(t, DefaultVersion, aws.ToString(workers.LaunchTemplate.Version))
	assert.Equal(t, int32(1), aws.ToInt32(workers.DesiredCapacity), "desired defaults to min")
	assert.ElementsMatch(t, network.New(c.Base).AffinitySubnets(1), strings.Split(aws.ToString(workers.VPCZoneIdentifier), ","))

	// An existing group is adopted.
	require.NoError(t, c.CreateAutoScalingGroup(ctx, spec))
	require.NoError(t, c.Store.Get(state.KeyAutoScalingGroups, &groups))
	assert.Len(t, groups, 2)

	// One group disappeared behind our back.
	_, err := env.Cloud.AutoScaling.DeleteAutoScalingGroup(ctx, &autoscaling.DeleteAutoScalingGroupInput{AutoScalingGroupName: aws.String("spares")})
	require.NoError(t, err)

	require.NoError(t, c.DeleteAutoScalingGroups(ctx))
	assert.False(t, env.Reload(t).Has(state.KeyAutoScalingGroups))
	out, err := env.Cloud.AutoScaling.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{})
	require.NoError(t, err)
	assert.Empty(t, out.AutoScalingGroups)
}

func TestCreateAutoScalingGroup_Errors(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t)
	require.NoError(t, c.CreateLaunchTemplate(ctx, "bastion", amiVars))

	assert.Error(t, c.CreateAutoScalingGroup(ctx, GroupSpec{LaunchTemplate: "bastion"}), "name is required")
	assert.True(t, errors.Is(c.CreateAutoScalingGroup(ctx, GroupSpec{Name: "x", LaunchTemplate: "nope"}), state.ErrNotFound))

	err := c.CreateAutoScalingGroup(ctx, GroupSpec{Name: "x", LaunchTemplate: "bastion", Min: 3, Max: 1})
	assert.True(t, awsx.IsCode(err, awsx.CodeValidationError))
	assert.False(t, c.Store.Has(state.KeyAutoScalingGroups))
}
