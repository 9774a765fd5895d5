// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/network"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/roles"
	"github.com/subfish/subfish/internal/secgroup"
	"github.com/subfish/subfish/internal/state"
)

// Spec describes the cluster of a blueprint. No Groups means every cached
// subnet.
type Spec struct {
	Name           string   `yaml:"name"`
	Version        string   `yaml:"version,omitempty"`
	Role           string   `yaml:"role"`
	Groups         []int    `yaml:"groups,omitempty"`
	SecurityGroups []string `yaml:"security_groups,omitempty"`
}

// Cluster manages the cached EKS cluster.
type Cluster struct {
	resource.Base
}

// New returns a Cluster over base.
func New(base resource.Base) *Cluster {
	return &Cluster{Base: base}
}

// Name returns the name of the cached cluster.
func (c *Cluster) Name() (string, bool) {
	name := c.Store.Lookup(state.KeyCluster + ".Name").String()
	return name, name != ""
}

func (c *Cluster) subnets(groups []int) ([]string, error) {
	n := network.New(c.Base)
	var ids []string
	if len(groups) == 0 {
		ids = n.SubnetIDs()
	}
	for _, g := range groups {
		for _, id := range n.AffinitySubnets(g) {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("subnets for groups %v: %w", groups, state.ErrNotFound)
	}
	return ids, nil
}

func (c *Cluster) securityGroups(names []string) ([]string, error) {
	sg := secgroup.New(c.Base)
	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, ok := sg.GroupID(name)
		if !ok {
			return nil, fmt.Errorf("security group %s: %w", name, state.ErrNotFound)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CreateCluster creates the cluster spec describes and waits for it to be
// active. A cached cluster is only refreshed.
func (c *Cluster) CreateCluster(ctx context.Context, spec Spec) error {
	if spec.Name == "" {
		return errors.New("cluster needs a name")
	}
	if name, ok := c.Name(); ok {
		log.Debugf("cluster cached: name=%s", name)
		return c.RefreshCluster(ctx)
	}

	roleARN, ok := roles.New(c.Base).RoleARN(spec.Role)
	if !ok {
		return fmt.Errorf("role %q: %w", spec.Role, state.ErrNotFound)
	}
	subnets, err := c.subnets(spec.Groups)
	if err != nil {
		return err
	}
	sgIDs, err := c.securityGroups(spec.SecurityGroups)
	if err != nil {
		return err
	}

	in := &eks.CreateClusterInput{
		Name:    aws.String(spec.Name),
		RoleArn: aws.String(roleARN),
		ResourcesVpcConfig: &ekstypes.VpcConfigRequest{
			SubnetIds:        subnets,
			SecurityGroupIds: sgIDs,
		},
	}
	if spec.Version != "" {
		in.Version = aws.String(spec.Version)
	}

	log.Infof("creating cluster: name=%s subnets=%d", spec.Name, len(subnets))
	out, err := c.Clients.EKS.CreateCluster(ctx, in)
	switch {
	case awsx.IsCode(err, awsx.CodeResourceInUse):
		log.Warnf("cluster %s already exists", spec.Name)
		if err := c.SetAndSave(ctx, state.KeyCluster, ekstypes.Cluster{Name: aws.String(spec.Name)}); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("failed to create cluster %s: %w", spec.Name, err)
	default:
		awsx.LogResponse("CreateCluster", out.ResultMetadata, out.Cluster)
		if err := c.SetAndSave(ctx, state.KeyCluster, out.Cluster); err != nil {
			return err
		}
	}

	waiter := eks.NewClusterActiveWaiter(c.Clients.EKS)
	if err := waiter.Wait(ctx, &eks.DescribeClusterInput{Name: aws.String(spec.Name)}, c.Timing.WaitTimeout); err != nil {
		return fmt.Errorf("cluster %s never became active: %w", spec.Name, err)
	}
	return c.RefreshCluster(ctx)
}

// RefreshCluster re-reads the cached cluster. A cluster EKS no longer has
// drops the key.
func (c *Cluster) RefreshCluster(ctx context.Context) error {
	name, ok := c.Name()
	if !ok {
		return nil
	}
	out, err := c.Clients.EKS.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
	if awsx.IsCode(err, awsx.CodeResourceNotFound) {
		log.Warnf("cluster %s no longer exists", name)
		return c.DeleteAndSave(ctx, state.KeyCluster)
	}
	if err != nil {
		return fmt.Errorf("failed to describe cluster %s: %w", name, err)
	}
	awsx.LogResponse("DescribeCluster", out.ResultMetadata, out.Cluster)
	return c.SetAndSave(ctx, state.KeyCluster, out.Cluster)
}

// DeleteCluster deletes the cached cluster and waits for it to be gone.
func (c *Cluster) DeleteCluster(ctx context.Context) error {
	name, ok := c.Name()
	if !ok {
		return nil
	}

	log.Infof("deleting cluster: name=%s", name)
	out, err := c.Clients.EKS.DeleteCluster(ctx, &eks.DeleteClusterInput{Name: aws.String(name)})
	switch {
	case awsx.IsCode(err, awsx.CodeResourceNotFound):
		log.Debugf("cluster %s already gone", name)
	case err != nil:
		return fmt.Errorf("failed to delete cluster %s: %w", name, err)
	default:
		awsx.LogResponse("DeleteCluster", out.ResultMetadata, out.Cluster)
		waiter := eks.NewClusterDeletedWaiter(c.Clients.EKS)
		if err := waiter.Wait(ctx, &eks.DescribeClusterInput{Name: aws.String(name)}, c.Timing.WaitTimeout); err != nil {
			return fmt.Errorf("cluster %s never deleted: %w", name, err)
		}
	}
	return c.DeleteAndSave(ctx, state.KeyCluster)
}
