// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package secgroup

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/render"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/retry"
	"github.com/subfish/subfish/internal/state"
)

// DefaultGroupName is the group AWS creates with every VPC. It is never
// cached or deleted.
const DefaultGroupName = "default"

// Rule directions, also the template name suffixes.
const (
	Ingress = "ingress"
	Egress  = "egress"
)

// SecurityGroups manages the cached security groups.
type SecurityGroups struct {
	resource.Base
}

// New returns SecurityGroups over base.
func New(base resource.Base) *SecurityGroups {
	return &SecurityGroups{Base: base}
}

func (s *SecurityGroups) cached() ([]ec2types.SecurityGroup, error) {
	var groups []ec2types.SecurityGroup
	if err := s.Store.Get(state.KeySecurityGroups, &groups); err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}
	return groups, nil
}

// GroupID returns the id of the cached group called name.
func (s *SecurityGroups) GroupID(name string) (string, bool) {
	groups, err := s.cached()
	if err != nil {
		return "", false
	}
	for _, g := range groups {
		if aws.ToString(g.GroupName) == name {
			return aws.ToString(g.GroupId), true
		}
	}
	return "", false
}

// GroupIDs maps every cached group name to its id.
func (s *SecurityGroups) GroupIDs() (map[string]string, error) {
	groups, err := s.cached()
	if err != nil {
		return nil, err
	}
	ids := map[string]string{}
	for _, g := range groups {
		ids[aws.ToString(g.GroupName)] = aws.ToString(g.GroupId)
	}
	return ids, nil
}

// CreateSecurityGroup creates the group called name in the VPC. A group that
// already exists is adopted.
func (s *SecurityGroups) CreateSecurityGroup(ctx context.Context, name string) error {
	vpcID, err := s.VpcID()
	if err != nil {
		return err
	}

	log.Infof("creating security group: name=%s", name)
	out, err := s.Clients.EC2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String(name),
		VpcId:       aws.String(vpcID),
	})
	switch {
	case awsx.IsCode(err, awsx.CodeGroupDuplicate):
		log.Debugf("security group %s exists", name)
	case err != nil:
		return fmt.Errorf("failed to create security group %s: %w", name, err)
	default:
		awsx.LogResponse("CreateSecurityGroup", out.ResultMetadata, out)
	}

	if err := s.Pause(ctx); err != nil {
		return err
	}
	return s.RefreshSecurityGroups(ctx)
}

// RefreshSecurityGroups re-reads every group of the VPC but the default one.
func (s *SecurityGroups) RefreshSecurityGroups(ctx context.Context) error {
	vpcID, err := s.VpcID()
	if err != nil {
		return err
	}

	var groups []ec2types.SecurityGroup
	p := ec2.NewDescribeSecurityGroupsPaginator(s.Clients.EC2, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{resource.Filter("vpc-id", vpcID)},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to describe security groups: %w", err)
		}
		awsx.LogResponse("DescribeSecurityGroups", page.ResultMetadata, page.SecurityGroups)
		for _, g := range page.SecurityGroups {
			if aws.ToString(g.GroupName) != DefaultGroupName {
				groups = append(groups, g)
			}
		}
	}

	if len(groups) == 0 {
		return s.DeleteAndSave(ctx, state.KeySecurityGroups)
	}
	return s.SetAndSave(ctx, state.KeySecurityGroups, groups)
}

// Permissions renders the <name>_ingress or <name>_egress template. A missing
// template yields no rules.
func (s *SecurityGroups) Permissions(name, direction string, vars map[string]any) ([]ec2types.IpPermission, error) {
	tmpl := name + "_" + direction
	if !s.Render.Exists(render.SGAuthorizations, tmpl) {
		log.Debugf("no %s rules for %s", direction, name)
		return nil, nil
	}

	var perms []ec2types.IpPermission
	if err := s.Render.JSON(render.SGAuthorizations, tmpl, s.TemplateVars(vars), &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

// Authorize applies the ingress and egress rules rendered for name. Rules
// AWS already has are not an error.
func (s *SecurityGroups) Authorize(ctx context.Context, name string, vars map[string]any) error {
	groupID, ok := s.GroupID(name)
	if !ok {
		return fmt.Errorf("security group %s: %w", name, state.ErrNotFound)
	}

	ingress, err := s.Permissions(name, Ingress, vars)
	if err != nil {
		return err
	}
	if len(ingress) > 0 {
		log.Infof("authorizing ingress: group=%s rules=%d", name, len(ingress))
		out, err := s.Clients.EC2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: ingress,
		})
		if err := awsx.IgnoreCode(err, awsx.CodePermissionDuplicate); err != nil {
			return fmt.Errorf("failed to authorize ingress on %s: %w", name, err)
		}
		if out != nil {
			awsx.LogResponse("AuthorizeSecurityGroupIngress", out.ResultMetadata, out)
		}
	}

	egress, err := s.Permissions(name, Egress, vars)
	if err != nil {
		return err
	}
	if len(egress) > 0 {
		log.Infof("authorizing egress: group=%s rules=%d", name, len(egress))
		out, err := s.Clients.EC2.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: egress,
		})
		if err := awsx.IgnoreCode(err, awsx.CodePermissionDuplicate); err != nil {
			return fmt.Errorf("failed to authorize egress on %s: %w", name, err)
		}
		if out != nil {
			awsx.LogResponse("AuthorizeSecurityGroupEgress", out.ResultMetadata, out)
		}
	}

	return s.RefreshSecurityGroups(ctx)
}

// DeleteSecurityGroups strips every cached group of its rules, then deletes
// the groups. Rules go first so groups referencing each other can be removed.
func (s *SecurityGroups) DeleteSecurityGroups(ctx context.Context) error {
	if !s.Store.Has(state.KeySecurityGroups) {
		return nil
	}
	if _, err := s.VpcID(); err == nil {
		if err := s.RefreshSecurityGroups(ctx); err != nil {
			return err
		}
	}
	groups, err := s.cached()
	if err != nil {
		return err
	}

	for _, g := range groups {
		if err := s.revoke(ctx, g); err != nil {
			return err
		}
	}

	for _, g := range groups {
		id := aws.ToString(g.GroupId)
		log.Infof("deleting security group: name=%s id=%s", aws.ToString(g.GroupName), id)
		// ENIs of terminated instances linger for a while.
		err := s.Timing.Backoff.Do(ctx, "delete security group "+id, func(ctx context.Context) error {
			out, err := s.Clients.EC2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(id)})
			if err == nil {
				awsx.LogResponse("DeleteSecurityGroup", out.ResultMetadata, nil)
			}
			return awsx.IgnoreCode(err, awsx.CodeGroupNotFound)
		}, retry.OnCodes(awsx.CodeDependencyViolation))
		if err != nil {
			return fmt.Errorf("failed to delete security group %s: %w", id, err)
		}
	}
	return s.DeleteAndSave(ctx, state.KeySecurityGroups)
}

func (s *SecurityGroups) revoke(ctx context.Context, g ec2types.SecurityGroup) error {
	id := aws.ToString(g.GroupId)
	if len(g.IpPermissions) > 0 {
		out, err := s.Clients.EC2.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
			GroupId:       aws.String(id),
			IpPermissions: g.IpPermissions,
		})
		if err := awsx.IgnoreCode(err, awsx.CodeGroupNotFound); err != nil {
			return fmt.Errorf("failed to revoke ingress on %s: %w", id, err)
		}
		if out != nil {
			awsx.LogResponse("RevokeSecurityGroupIngress", out.ResultMetadata, nil)
		}
	}
	if len(g.IpPermissionsEgress) > 0 {
		out, err := s.Clients.EC2.RevokeSecurityGroupEgress(ctx, &ec2.RevokeSecurityGroupEgressInput{
			GroupId:       aws.String(id),
			IpPermissions: g.IpPermissionsEgress,
		})
		if err := awsx.IgnoreCode(err, awsx.CodeGroupNotFound); err != nil {
			return fmt.Errorf("failed to revoke egress on %s: %w", id, err)
		}
		if out != nil {
			awsx.LogResponse("RevokeSecurityGroupEgress", out.ResultMetadata, nil)
		}
	}
	return nil
}
