// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package network

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/retry"
	"github.com/subfish/subfish/internal/state"
)

// SubnetPrefix is the size of every subnet carved out of the VPC.
const SubnetPrefix = 24

// ErrNoCIDR is returned when the VPC has no free /24 left.
var ErrNoCIDR = errors.New("no free subnet block in vpc")

// AvailableCIDRBlock returns the lowest /24 of the VPC block that no cached
// subnet overlaps.
func (n *Network) AvailableCIDRBlock() (string, error) {
	var vpc ec2types.Vpc
	if err := n.Store.Get(state.KeyVpc, &vpc); err != nil {
		return "", err
	}
	_, vpcNet, err := net.ParseCIDR(aws.ToString(vpc.CidrBlock))
	if err != nil {
		return "", fmt.Errorf("vpc block %q: %w", aws.ToString(vpc.CidrBlock), err)
	}
	ones, bits := vpcNet.Mask.Size()
	if bits != 32 || ones > SubnetPrefix {
		return "", fmt.Errorf("vpc block %s cannot hold a /%d: %w", vpcNet, SubnetPrefix, ErrNoCIDR)
	}

	subnets, err := n.cachedSubnets()
	if err != nil {
		return "", err
	}
	var used []*net.IPNet
	for _, s := range subnets {
		if _, u, err := net.ParseCIDR(aws.ToString(s.CidrBlock)); err == nil {
			used = append(used, u)
		}
	}

	newBits := SubnetPrefix - ones
	for i := range 1 << newBits {
		block, err := cidr.Subnet(vpcNet, newBits, i)
		if err != nil {
			return "", err
		}
		if !overlaps(block, used) {
			log.Debugf("available cidr block: %s", block)
			return block.String(), nil
		}
	}
	return "", ErrNoCIDR
}

func overlaps(block *net.IPNet, used []*net.IPNet) bool {
	for _, u := range used {
		if u.Contains(block.IP) || block.Contains(u.IP) {
			return true
		}
	}
	return false
}

// NextAZ returns the zone holding the fewest subnets of the VPC. Ties go to
// the zone AWS lists first.
func (n *Network) NextAZ(ctx context.Context) (string, error) {
	vpcID, err := n.VpcID()
	if err != nil {
		return "", err
	}

	zones, err := n.Clients.EC2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{})
	if err != nil {
		return "", fmt.Errorf("failed to describe availability zones: %w", err)
	}
	awsx.LogResponse("DescribeAvailabilityZones", zones.ResultMetadata, zones.AvailabilityZones)
	if len(zones.AvailabilityZones) == 0 {
		return "", errors.New("no availability zones in region")
	}

	subnets, err := n.describeSubnets(ctx, vpcID)
	if err != nil {
		return "", err
	}
	counts := map[string]int{}
	for _, s := range subnets {
		counts[aws.ToString(s.AvailabilityZone)]++
	}

	best := ""
	for _, z := range zones.AvailabilityZones {
		name := aws.ToString(z.ZoneName)
		if best == "" || counts[name] < counts[best] {
			best = name
		}
	}
	log.Debugf("next availability zone: %s (subnets=%d)", best, counts[best])
	return best, nil
}

// CreateSubnet creates one subnet in group, in the least used zone, on the
// lowest free /24.
func (n *Network) CreateSubnet(ctx context.Context, group int) error {
	vpcID, err := n.VpcID()
	if err != nil {
		return err
	}
	az, err := n.NextAZ(ctx)
	if err != nil {
		return err
	}
	block, err := n.AvailableCIDRBlock()
	if err != nil {
		return err
	}

	log.Infof("creating subnet: group=%d az=%s cidr=%s", group, az, block)
	out, err := n.Clients.EC2.CreateSubnet(ctx, &ec2.CreateSubnetInput{
		VpcId:            aws.String(vpcID),
		CidrBlock:        aws.String(block),
		AvailabilityZone: aws.String(az),
	})
	if err != nil {
		return fmt.Errorf("failed to create subnet %s: %w", block, err)
	}
	awsx.LogResponse("CreateSubnet", out.ResultMetadata, out.Subnet)
	subnetID := aws.ToString(out.Subnet.SubnetId)

	if err := n.Store.Append(state.KeySubnets, out.Subnet); err != nil {
		return err
	}
	if err := n.Save(ctx); err != nil {
		return err
	}

	waiter := ec2.NewSubnetAvailableWaiter(n.Clients.EC2)
	describe := &ec2.DescribeSubnetsInput{SubnetIds: []string{subnetID}}
	err = n.Timing.Backoff.Do(ctx, "wait subnet "+subnetID, func(ctx context.Context) error {
		return waiter.Wait(ctx, describe, n.Timing.WaitTimeout)
	}, retry.Always)
	if err != nil {
		return fmt.Errorf("subnet %s never became available: %w", subnetID, err)
	}

	tags, err := n.Clients.EC2.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{subnetID},
		Tags:      []ec2types.Tag{resource.AffinityTag(group)},
	})
	if err != nil {
		return fmt.Errorf("failed to tag subnet %s: %w", subnetID, err)
	}
	awsx.LogResponse("CreateTags", tags.ResultMetadata, nil)

	return n.RefreshSubnets(ctx)
}

func (n *Network) describeSubnets(ctx context.Context, vpcID string) ([]ec2types.Subnet, error) {
	var subnets []ec2types.Subnet
	p := ec2.NewDescribeSubnetsPaginator(n.Clients.EC2, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{resource.Filter("vpc-id", vpcID)},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe subnets: %w", err)
		}
		awsx.LogResponse("DescribeSubnets", page.ResultMetadata, page.Subnets)
		subnets = append(subnets, page.Subnets...)
	}
	return subnets, nil
}

// RefreshSubnets re-reads every subnet of the VPC.
func (n *Network) RefreshSubnets(ctx context.Context) error {
	vpcID, err := n.VpcID()
	if err != nil {
		return err
	}
	subnets, err := n.describeSubnets(ctx, vpcID)
	if err != nil {
		return err
	}
	if len(subnets) == 0 {
		return n.DeleteAndSave(ctx, state.KeySubnets)
	}
	return n.SetAndSave(ctx, state.KeySubnets, subnets)
}

// DeleteSubnets deletes every cached subnet.
func (n *Network) DeleteSubnets(ctx context.Context) error {
	subnets, err := n.cachedSubnets()
	if err != nil || !n.Store.Has(state.KeySubnets) {
		return err
	}

	for _, s := range subnets {
		id := aws.ToString(s.SubnetId)
		log.Infof("deleting subnet: id=%s", id)
		out, err := n.Clients.EC2.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(id)})
		if err := awsx.IgnoreCode(err, awsx.CodeSubnetNotFound); err != nil {
			return fmt.Errorf("failed to delete subnet %s: %w", id, err)
		}
		if out != nil {
			awsx.LogResponse("DeleteSubnet", out.ResultMetadata, nil)
		}
	}
	return n.DeleteAndSave(ctx, state.KeySubnets)
}
