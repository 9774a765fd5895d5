// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package secgroup

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/aws/awsfake"
	"github.com/subfish/subfish/internal/network"
	"github.com/subfish/subfish/internal/resource/resourcetest"
	"github.com/subfish/subfish/internal/state"
)

const (
	sshIngress = `[
  {
    "IpProtocol": "tcp",
    "FromPort": {{ .ssh_port }},
    "ToPort": {{ .ssh_port }},
    "IpRanges": [{"CidrIp": "{{ .admin_cidr }}"}]
  }
]`
	webIngress = `[
  {
    "IpProtocol": "tcp",
    "FromPort": 80,
    "ToPort": 80,
    "UserIdGroupPairs": [{"GroupId": "{{ index .security_groups "bastion" }}"}]
  },
  {
    "IpProtocol": "tcp",
    "FromPort": 443,
    "ToPort": 443,
    "IpRanges": [{"CidrIp": "{{ .vpc_cidr }}"}]
  }
]`
	webEgress = `[{"IpProtocol": "tcp", "FromPort": 5432, "ToPort": 5432, "IpRanges": [{"CidrIp": "10.0.0.0/8"}]}]`
)

var sshVars = map[string]any{"ssh_port": 22, "admin_cidr": "203.0.113.0/24"}

func setup(t *testing.T) (*SecurityGroups, *resourcetest.Env) {
	t.Helper()
	env := resourcetest.New(t)
	require.NoError(t, network.New(env.Base).CreateVPC(context.Background(), ""))
	return New(env.Base), env
}

// liveGroups returns the names of the groups the fake holds.
func liveGroups(t *testing.T, env *resourcetest.Env) []string {
	t.Helper()
	out, err := env.Cloud.EC2.DescribeSecurityGroups(context.Background(), &ec2.DescribeSecurityGroupsInput{})
	require.NoError(t, err)
	var names []string
	for _, g := range out.SecurityGroups {
		names = append(names, aws.ToString(g.GroupName))
	}
	return names
}

func TestCreateSecurityGroup(t *testing.T) {
	ctx := context.Background()
	s, env := setup(t)

	require.NoError(t, s.CreateSecurityGroup(ctx, "bastion"))
	require.NoError(t, s.CreateSecurityGroup(ctx, "web"))

	id, ok := s.GroupID("bastion")
	require.True(t, ok)
	assert.NotEmpty(t, id)
	_, ok = s.GroupID(DefaultGroupName)
	assert.False(t, ok, "the default group is never cached")

	// An existing group is adopted.
	require.NoError(t, s.CreateSecurityGroup(ctx, "bastion"))
	var groups []ec2types.SecurityGroup
	require.NoError(t, env.Reload(t).Get(state.KeySecurityGroups, &groups))
	assert.Len(t, groups, 2)
	ids, err := s.GroupIDs()
	require.NoError(t, err)
	assert.Equal(t, id, ids["bastion"])
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "web")
}

func TestCreateSecurityGroup_NoVpc(t *testing.T) {
	env := resourcetest.New(t)
	s := New(env.Base)

	err := s.CreateSecurityGroup(context.Background(), "bastion")
	assert.True(t, errors.Is(err, state.ErrNotFound))
	assert.Zero(t, env.Cloud.EC2.Calls("CreateSecurityGroup"))
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	s, env := setup(t)
	env.WriteConfig(t, "sg_authorizations/bastion_ingress.json.tmpl", sshIngress)
	env.WriteConfig(t, "sg_authorizations/web_ingress.json.tmpl", webIngress)
	env.WriteConfig(t, "sg_authorizations/web_egress.json", webEgress)

	require.NoError(t, s.CreateSecurityGroup(ctx, "bastion"))
	require.NoError(t, s.CreateSecurityGroup(ctx, "web"))
	bastionID, _ := s.GroupID("bastion")

	require.NoError(t, s.Authorize(ctx, "bastion", sshVars))
	require.NoError(t, s.Authorize(ctx, "web", nil))
	assert.Equal(t, 2, env.Cloud.EC2.Calls("AuthorizeSecurityGroupIngress"))
	assert.Equal(t, 1, env.Cloud.EC2.Calls("AuthorizeSecurityGroupEgress"), "bastion has no egress template")

	assert.Equal(t, "22", s.Store.Lookup(`SecurityGroups.#(GroupName=="bastion").IpPermissions.0.FromPort`).String())
	assert.Equal(t, "203.0.113.0/24", s.Store.Lookup(`SecurityGroups.#(GroupName=="bastion").IpPermissions.0.IpRanges.0.CidrIp`).String())
	assert.Equal(t, bastionID, s.Store.Lookup(`SecurityGroups.#(GroupName=="web").IpPermissions.0.UserIdGroupPairs.0.GroupId`).String())
	assert.Equal(t, "10.0.0.0/16", s.Store.Lookup(`SecurityGroups.#(GroupName=="web").IpPermissions.1.IpRanges.0.CidrIp`).String())
	assert.Equal(t, int64(2), s.Store.Lookup(`SecurityGroups.#(GroupName=="web").IpPermissionsEgress.#`).Int(), "default egress rule plus one")

	// Rules AWS already has are fine.
	require.NoError(t, s.Authorize(ctx, "bastion", sshVars))
}

func TestAuthorize_Errors(t *testing.T) {
	ctx := context.Background()
	s, env := setup(t)

	err := s.Authorize(ctx, "ghost", nil)
	assert.True(t, errors.Is(err, state.ErrNotFound))

	require.NoError(t, s.CreateSecurityGroup(ctx, "bastion"))
	require.NoError(t, s.Authorize(ctx, "bastion", nil), "no templates, no rules")
	assert.Zero(t, env.Cloud.EC2.Calls("AuthorizeSecurityGroupIngress"))

	env.WriteConfig(t, "sg_authorizations/bastion_ingress.json.tmpl", sshIngress)
	err = s.Authorize(ctx, "bastion", nil)
	assert.ErrorContains(t, err, "failed to render", "ssh_port is required")

	env.Cloud.EC2.FailNext("AuthorizeSecurityGroupIngress", awsfake.APIError(awsx.CodeInvalidParameterValue, "bad port"))
	err = s.Authorize(ctx, "bastion", sshVars)
	assert.True(t, awsx.IsCode(err, awsx.CodeInvalidParameterValue))
}

func TestDeleteSecurityGroups(t *testing.T) {
	ctx := context.Background()
	s, env := setup(t)
	env.WriteConfig(t, "sg_authorizations/bastion_ingress.json.tmpl", sshIngress)
	env.WriteConfig(t, "sg_authorizations/web_ingress.json.tmpl", webIngress)

	require.NoError(t, s.CreateSecurityGroup(ctx, "bastion"))
	require.NoError(t, s.CreateSecurityGroup(ctx, "web"))
	require.NoError(t, s.Authorize(ctx, "bastion", sshVars))
	require.NoError(t, s.Authorize(ctx, "web", nil))

	env.Cloud.EC2.FailNext("DeleteSecurityGroup", awsfake.APIError(awsx.CodeDependencyViolation, "resource has a dependent object"))
	require.NoError(t, s.DeleteSecurityGroups(ctx))

	assert.Equal(t, 2, env.Cloud.EC2.Calls("RevokeSecurityGroupIngress"))
	assert.Equal(t, 2, env.Cloud.EC2.Calls("RevokeSecurityGroupEgress"))
	assert.Equal(t, 3, env.Cloud.EC2.Calls("DeleteSecurityGroup"), "one retry")
	assert.Equal(t, []string{DefaultGroupName}, liveGroups(t, env))
	assert.False(t, env.Reload(t).Has(state.KeySecurityGroups))

	require.NoError(t, s.DeleteSecurityGroups(ctx), "nothing cached")
}

func TestDeleteSecurityGroups_AlreadyGone(t *testing.T) {
	ctx := context.Background()
	s, env := setup(t)
	require.NoError(t, s.Store.Set(state.KeySecurityGroups, []ec2types.SecurityGroup{{
		GroupId:   aws.String("sg-gone"),
		GroupName: aws.String("old"),
	}}))

	// A refresh drops what AWS no longer has; a stale id is ignored anyway.
	require.NoError(t, s.DeleteSecurityGroups(ctx))
	assert.False(t, s.Store.Has(state.KeySecurityGroups))
	assert.Zero(t, env.Cloud.EC2.Calls("DeleteSecurityGroup"))
}
