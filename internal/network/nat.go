// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package network

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
	"github.com/subfish/subfish/internal/retry"
	"github.com/subfish/subfish/internal/state"
)

// ErrNoInternetGateway is returned when a NAT gateway is requested before the
// VPC has an internet gateway.
var ErrNoInternetGateway = errors.New("vpc has no internet gateway")

// CreateNatGateway creates the NAT gateway of group in the group's first
// subnet, backed by a new elastic IP. An untagged NAT gateway an interrupted
// run left in that subnet is finished instead of replaced.
func (n *Network) CreateNatGateway(ctx context.Context, group int) error {
	if err := n.RefreshInternetGateway(ctx); err != nil {
		return err
	}
	if !n.InternetGatewayAttached() {
		return ErrNoInternetGateway
	}
	if id, ok := n.AffinityNatGateway(group); ok {
		log.Debugf("nat gateway cached: group=%d id=%s", group, id)
		return nil
	}
	subnets := n.AffinitySubnets(group)
	if len(subnets) == 0 {
		return groupMissing("subnet", group)
	}

	natID, ok, err := n.untaggedNatGateway(ctx, subnets[0])
	if err != nil {
		return err
	}
	if ok {
		log.Infof("finishing nat gateway: group=%d id=%s", group, natID)
	} else {
		if natID, err = n.newNatGateway(ctx, group, subnets[0]); err != nil {
			return err
		}
	}

	waiter := ec2.NewNatGatewayAvailableWaiter(n.Clients.EC2)
	describe := &ec2.DescribeNatGatewaysInput{NatGatewayIds: []string{natID}}
	if err := waiter.Wait(ctx, describe, n.Timing.WaitTimeout); err != nil {
		return fmt.Errorf("nat gateway %s never became available: %w", natID, err)
	}

	tags, err := n.Clients.EC2.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{natID},
		Tags:      []ec2types.Tag{resource.AffinityTag(group)},
	})
	if err != nil {
		return fmt.Errorf("failed to tag %s: %w", natID, err)
	}
	awsx.LogResponse("CreateTags", tags.ResultMetadata, nil)

	return n.RefreshNatGateways(ctx)
}

// newNatGateway allocates an elastic IP and creates a NAT gateway with it in
// subnetID. The gateway is cached before it is available.
func (n *Network) newNatGateway(ctx context.Context, group int, subnetID string) (string, error) {
	eip, err := n.Clients.EC2.AllocateAddress(ctx, &ec2.AllocateAddressInput{Domain: ec2types.DomainTypeVpc})
	if err != nil {
		return "", fmt.Errorf("failed to allocate address: %w", err)
	}
	awsx.LogResponse("AllocateAddress", eip.ResultMetadata, eip)
	allocID := aws.ToString(eip.AllocationId)

	log.Infof("creating nat gateway: group=%d subnet=%s eip=%s", group, subnetID, allocID)
	out, err := n.Clients.EC2.CreateNatGateway(ctx, &ec2.CreateNatGatewayInput{
		SubnetId:     aws.String(subnetID),
		AllocationId: aws.String(allocID),
		ClientToken:  aws.String(uuid.NewString()),
	})
	if err != nil {
		if rerr := n.releaseAddresses(ctx, []string{allocID}); rerr != nil {
			log.Debugf("failed to release %s: %v", allocID, rerr)
		}
		return "", fmt.Errorf("failed to create nat gateway: %w", err)
	}
	awsx.LogResponse("CreateNatGateway", out.ResultMetadata, out.NatGateway)

	if err := n.Store.Append(state.KeyNatGateways, out.NatGateway); err != nil {
		return "", err
	}
	if err := n.Save(ctx); err != nil {
		return "", err
	}
	if err := n.Pause(ctx); err != nil {
		return "", err
	}
	return aws.ToString(out.NatGateway.NatGatewayId), nil
}

// untaggedNatGateway returns a cached NAT gateway in subnetID that has no
// affinity tag yet and is still pending or available.
func (n *Network) untaggedNatGateway(ctx context.Context, subnetID string) (string, bool, error) {
	nats, err := n.cachedNatGateways()
	if err != nil {
		return "", false, err
	}
	for _, ngw := range nats {
		if _, tagged := resource.Affinity(ngw.Tags); tagged || aws.ToString(ngw.SubnetId) != subnetID {
			continue
		}
		natID := aws.ToString(ngw.NatGatewayId)
		out, err := n.Clients.EC2.DescribeNatGateways(ctx, &ec2.DescribeNatGatewaysInput{NatGatewayIds: []string{natID}})
		if awsx.IsCode(err, awsx.CodeNatGatewayNotFound) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("failed to describe %s: %w", natID, err)
		}
		awsx.LogResponse("DescribeNatGateways", out.ResultMetadata, out.NatGateways)
		if len(out.NatGateways) == 0 {
			continue
		}
		switch out.NatGateways[0].State {
		case ec2types.NatGatewayStatePending, ec2types.NatGatewayStateAvailable:
			return natID, true, nil
		}
		log.Debugf("nat gateway %s is %s", natID, out.NatGateways[0].State)
	}
	return "", false, nil
}

// CreateNatDefaultRoute sends the default route of rtGroup's table through
// natGroup's NAT gateway, replacing any default route already there.
func (n *Network) CreateNatDefaultRoute(ctx context.Context, rtGroup, natGroup int) error {
	rtID, ok := n.AffinityRouteTable(rtGroup)
	if !ok {
		return groupMissing("route table", rtGroup)
	}
	natID, ok := n.AffinityNatGateway(natGroup)
	if !ok {
		return groupMissing("nat gateway", natGroup)
	}

	in := &ec2.CreateRouteInput{
		RouteTableId:         aws.String(rtID),
		DestinationCidrBlock: aws.String(DefaultRoute),
		NatGatewayId:         aws.String(natID),
	}
	log.Infof("creating nat default route: rt=%s nat=%s", rtID, natID)
	out, err := n.Clients.EC2.CreateRoute(ctx, in)
	if awsx.IsCode(err, awsx.CodeRouteAlreadyExists) {
		log.Debugf("replacing default route of %s", rtID)
		del, derr := n.Clients.EC2.DeleteRoute(ctx, &ec2.DeleteRouteInput{
			RouteTableId:         aws.String(rtID),
			DestinationCidrBlock: aws.String(DefaultRoute),
		})
		if derr != nil {
			return fmt.Errorf("failed to delete default route of %s: %w", rtID, derr)
		}
		awsx.LogResponse("DeleteRoute", del.ResultMetadata, nil)
		out, err = n.Clients.EC2.CreateRoute(ctx, in)
	}
	if err != nil {
		return fmt.Errorf("failed to route %s through %s: %w", rtID, natID, err)
	}
	awsx.LogResponse("CreateRoute", out.ResultMetadata, nil)

	if err := n.RefreshRouteTables(ctx); err != nil {
		return err
	}
	return n.Pause(ctx)
}

// RefreshNatGateways re-reads the pending and available NAT gateways of the
// VPC.
func (n *Network) RefreshNatGateways(ctx context.Context) error {
	vpcID, err := n.VpcID()
	if err != nil {
		return err
	}

	var nats []ec2types.NatGateway
	p := ec2.NewDescribeNatGatewaysPaginator(n.Clients.EC2, &ec2.DescribeNatGatewaysInput{
		Filter: []ec2types.Filter{
			resource.Filter("vpc-id", vpcID),
			resource.Filter("state", string(ec2types.NatGatewayStatePending), string(ec2types.NatGatewayStateAvailable)),
		},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to describe nat gateways: %w", err)
		}
		awsx.LogResponse("DescribeNatGateways", page.ResultMetadata, page.NatGateways)
		nats = append(nats, page.NatGateways...)
	}

	if len(nats) == 0 {
		return n.DeleteAndSave(ctx, state.KeyNatGateways)
	}
	return n.SetAndSave(ctx, state.KeyNatGateways, nats)
}

// DeleteNatGateways deletes every cached NAT gateway, waits for each to be
// gone, removes the cached default routes through it and releases its
// elastic IPs.
func (n *Network) DeleteNatGateways(ctx context.Context) error {
	if !n.Store.Has(state.KeyNatGateways) {
		return nil
	}
	nats, err := n.cachedNatGateways()
	if err != nil {
		return err
	}
	tables, err := n.cachedRouteTables()
	if err != nil {
		return err
	}

	var allocations []string
	for _, ngw := range nats {
		natID := aws.ToString(ngw.NatGatewayId)
		for _, a := range ngw.NatGatewayAddresses {
			if id := aws.ToString(a.AllocationId); id != "" {
				allocations = append(allocations, id)
			}
		}

		log.Infof("deleting nat gateway: id=%s", natID)
		out, err := n.Clients.EC2.DeleteNatGateway(ctx, &ec2.DeleteNatGatewayInput{NatGatewayId: aws.String(natID)})
		if err := awsx.IgnoreCode(err, awsx.CodeNatGatewayNotFound); err != nil {
			return fmt.Errorf("failed to delete %s: %w", natID, err)
		}
		if out != nil {
			awsx.LogResponse("DeleteNatGateway", out.ResultMetadata, nil)
		}
		if err := n.waitNatDeleted(ctx, natID); err != nil {
			return err
		}

		for _, rt := range tables {
			for _, r := range rt.Routes {
				if aws.ToString(r.NatGatewayId) != natID {
					continue
				}
				res, err := n.Clients.EC2.DeleteRoute(ctx, &ec2.DeleteRouteInput{
					RouteTableId:         rt.RouteTableId,
					DestinationCidrBlock: r.DestinationCidrBlock,
				})
				if err := awsx.IgnoreCode(err, awsx.CodeRouteNotFound, awsx.CodeRouteTableNotFound); err != nil {
					return fmt.Errorf("failed to delete route of %s: %w", aws.ToString(rt.RouteTableId), err)
				}
				if res != nil {
					awsx.LogResponse("DeleteRoute", res.ResultMetadata, nil)
				}
			}
		}
	}

	if err := n.releaseAddresses(ctx, allocations); err != nil {
		return err
	}
	if err := n.DeleteAndSave(ctx, state.KeyNatGateways); err != nil {
		return err
	}
	if n.Store.Has(state.KeyRouteTables) && n.Store.Has(state.KeyVpc) {
		return n.RefreshRouteTables(ctx)
	}
	return nil
}

// waitNatDeleted polls every Timing.Poll until natID is deleted or gone.
func (n *Network) waitNatDeleted(ctx context.Context, natID string) error {
	ctx, cancel := context.WithTimeout(ctx, n.Timing.WaitTimeout)
	defer cancel()

	for {
		out, err := n.Clients.EC2.DescribeNatGateways(ctx, &ec2.DescribeNatGatewaysInput{NatGatewayIds: []string{natID}})
		if awsx.IsCode(err, awsx.CodeNatGatewayNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to describe %s: %w", natID, err)
		}
		if len(out.NatGateways) == 0 || out.NatGateways[0].State == ec2types.NatGatewayStateDeleted {
			return nil
		}
		log.Debugf("nat gateway %s is %s", natID, out.NatGateways[0].State)
		if err := retry.Pause(ctx, n.Timing.Poll); err != nil {
			return fmt.Errorf("nat gateway %s never deleted: %w", natID, err)
		}
	}
}

func (n *Network) releaseAddresses(ctx context.Context, allocations []string) error {
	for _, id := range allocations {
		log.Infof("releasing address: id=%s", id)
		out, err := n.Clients.EC2.ReleaseAddress(ctx, &ec2.ReleaseAddressInput{AllocationId: aws.String(id)})
		if err := awsx.IgnoreCode(err, awsx.CodeAllocationNotFound); err != nil {
			return fmt.Errorf("failed to release %s: %w", id, err)
		}
		if out != nil {
			awsx.LogResponse("ReleaseAddress", out.ResultMetadata, nil)
		}
	}
	return nil
}
