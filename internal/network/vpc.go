// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package network

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/state"
)

// DefaultCIDR is used when CreateVPC is given no block.
const DefaultCIDR = "10.0.0.0/16"

// CreateVPC creates the VPC with DNS support and hostnames enabled. A cached
// VPC is refreshed instead.
func (n *Network) CreateVPC(ctx context.Context, cidr string) error {
	if n.Store.Has(state.KeyVpc) {
		log.Debugf("vpc cached, refreshing")
		return n.RefreshVPC(ctx)
	}
	if cidr == "" {
		cidr = DefaultCIDR
	}

	log.Infof("creating vpc: cidr=%s", cidr)
	out, err := n.Clients.EC2.CreateVpc(ctx, &ec2.CreateVpcInput{CidrBlock: aws.String(cidr)})
	if err != nil {
		return fmt.Errorf("failed to create vpc: %w", err)
	}
	awsx.LogResponse("CreateVpc", out.ResultMetadata, out.Vpc)
	vpcID := aws.ToString(out.Vpc.VpcId)

	if err := n.SetAndSave(ctx, state.KeyVpc, out.Vpc); err != nil {
		return err
	}

	describe := &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}}
	if err := ec2.NewVpcExistsWaiter(n.Clients.EC2).Wait(ctx, describe, n.Timing.WaitTimeout); err != nil {
		return fmt.Errorf("vpc %s never appeared: %w", vpcID, err)
	}
	if err := ec2.NewVpcAvailableWaiter(n.Clients.EC2).Wait(ctx, describe, n.Timing.WaitTimeout); err != nil {
		return fmt.Errorf("vpc %s never became available: %w", vpcID, err)
	}

	// One attribute per call.
	attrs := []*ec2.ModifyVpcAttributeInput{
		{VpcId: aws.String(vpcID), EnableDnsHostnames: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)}},
		{VpcId: aws.String(vpcID), EnableDnsSupport: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)}},
	}
	for _, in := range attrs {
		res, err := n.Clients.EC2.ModifyVpcAttribute(ctx, in)
		if err != nil {
			return fmt.Errorf("failed to modify vpc %s: %w", vpcID, err)
		}
		awsx.LogResponse("ModifyVpcAttribute", res.ResultMetadata, nil)
	}

	return n.RefreshVPC(ctx)
}

// RefreshVPC re-reads the cached VPC. A VPC AWS no longer knows is forgotten.
func (n *Network) RefreshVPC(ctx context.Context) error {
	vpcID, err := n.VpcID()
	if err != nil {
		return err
	}

	out, err := n.Clients.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}})
	if awsx.IsCode(err, awsx.CodeVpcNotFound) {
		log.Warnf("vpc %s no longer exists", vpcID)
		return n.DeleteAndSave(ctx, state.KeyVpc)
	}
	if err != nil {
		return fmt.Errorf("failed to describe vpc %s: %w", vpcID, err)
	}
	awsx.LogResponse("DescribeVpcs", out.ResultMetadata, out.Vpcs)
	if len(out.Vpcs) == 0 {
		return n.DeleteAndSave(ctx, state.KeyVpc)
	}
	return n.SetAndSave(ctx, state.KeyVpc, out.Vpcs[0])
}

// DeleteVPC deletes the cached VPC.
func (n *Network) DeleteVPC(ctx context.Context) error {
	if !n.Store.Has(state.KeyVpc) {
		return nil
	}
	vpcID, err := n.VpcID()
	if err != nil {
		return err
	}

	log.Infof("deleting vpc: id=%s", vpcID)
	out, err := n.Clients.EC2.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(vpcID)})
	if err := awsx.IgnoreCode(err, awsx.CodeVpcNotFound); err != nil {
		return fmt.Errorf("failed to delete vpc %s: %w", vpcID, err)
	}
	if out != nil {
		awsx.LogResponse("DeleteVpc", out.ResultMetadata, nil)
	}
	return n.DeleteAndSave(ctx, state.KeyVpc)
}
