// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package network

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/state"
)

// CreateInternetGateway creates and attaches the VPC's internet gateway,
// routes group's table through it and makes group's subnets public. A cached
// gateway an interrupted run left unattached or untagged is finished instead
// of replaced.
func (n *Network) CreateInternetGateway(ctx context.Context, group int) error {
	igw, done, err := n.cachedInternetGateway(ctx)
	if err != nil {
		return err
	}
	if done {
		log.Debugf("internet gateway cached: id=%s", aws.ToString(igw.InternetGatewayId))
		return nil
	}
	vpcID, err := n.VpcID()
	if err != nil {
		return err
	}
	rtID, ok := n.AffinityRouteTable(group)
	if !ok {
		return groupMissing("route table", group)
	}

	resume := igw != nil
	if resume {
		log.Infof("finishing internet gateway: id=%s group=%d", aws.ToString(igw.InternetGatewayId), group)
	} else {
		log.Infof("creating internet gateway: group=%d", group)
		out, err := n.Clients.EC2.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{})
		if err != nil {
			return fmt.Errorf("failed to create internet gateway: %w", err)
		}
		awsx.LogResponse("CreateInternetGateway", out.ResultMetadata, out.InternetGateway)
		igw = out.InternetGateway
		if err := n.SetAndSave(ctx, state.KeyInternetGateway, igw); err != nil {
			return err
		}
	}

	igwID := aws.ToString(igw.InternetGatewayId)
	if err := n.wireInternetGateway(ctx, igw, vpcID, rtID, group, resume); err != nil {
		if awsx.IsCode(err, awsx.CodeInvalidParameterValue) {
			log.Errorf("internet gateway %s: %s", igwID, awsx.ErrorMessage(err))
		}
		return err
	}

	if err := n.RefreshRouteTables(ctx); err != nil {
		return err
	}
	if err := n.RefreshSubnets(ctx); err != nil {
		return err
	}
	return n.RefreshInternetGateway(ctx)
}

// cachedInternetGateway returns the cached gateway and whether it is attached
// to the VPC and tagged. A cached gateway that is not both is re-read, and
// one EC2 no longer has is forgotten.
func (n *Network) cachedInternetGateway(ctx context.Context) (*ec2types.InternetGateway, bool, error) {
	var igw ec2types.InternetGateway
	if err := n.Store.Get(state.KeyInternetGateway, &igw); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	igwID := aws.ToString(igw.InternetGatewayId)
	if igwID == "" {
		return nil, false, nil
	}
	vpcID, err := n.VpcID()
	if err != nil {
		return nil, false, err
	}
	if wired(igw, vpcID) {
		return &igw, true, nil
	}

	out, err := n.Clients.EC2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		InternetGatewayIds: []string{igwID},
	})
	if awsx.IsCode(err, awsx.CodeIGWNotFound) || (err == nil && len(out.InternetGateways) == 0) {
		log.Warnf("internet gateway %s no longer exists", igwID)
		return nil, false, n.DeleteAndSave(ctx, state.KeyInternetGateway)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to describe %s: %w", igwID, err)
	}
	awsx.LogResponse("DescribeInternetGateways", out.ResultMetadata, out.InternetGateways)

	igw = out.InternetGateways[0]
	if !wired(igw, vpcID) {
		return &igw, false, nil
	}
	return &igw, true, n.SetAndSave(ctx, state.KeyInternetGateway, igw)
}

// wired reports whether igw is attached to vpcID and carries its affinity
// tag, the last step of wiring.
func wired(igw ec2types.InternetGateway, vpcID string) bool {
	_, tagged := resource.Affinity(igw.Tags)
	return tagged && attachedTo(igw, vpcID)
}

func attachedTo(igw ec2types.InternetGateway, vpcID string) bool {
	return slices.ContainsFunc(igw.Attachments, func(a ec2types.InternetGatewayAttachment) bool {
		return aws.ToString(a.VpcId) == vpcID
	})
}

// wireInternetGateway attaches igw, routes rtID through it, makes group's
// subnets public and tags it. When resuming, an existing attachment and
// default route are kept.
func (n *Network) wireInternetGateway(ctx context.Context, igw *ec2types.InternetGateway, vpcID, rtID string, group int, resume bool) error {
	igwID := aws.ToString(igw.InternetGatewayId)

	if attachedTo(*igw, vpcID) {
		log.Debugf("%s already attached to %s", igwID, vpcID)
	} else {
		attach, err := n.Clients.EC2.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
			InternetGatewayId: aws.String(igwID),
			VpcId:             aws.String(vpcID),
		})
		if err != nil {
			return fmt.Errorf("failed to attach %s to %s: %w", igwID, vpcID, err)
		}
		awsx.LogResponse("AttachInternetGateway", attach.ResultMetadata, nil)
	}

	route, err := n.Clients.EC2.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         aws.String(rtID),
		DestinationCidrBlock: aws.String(DefaultRoute),
		GatewayId:            aws.String(igwID),
	})
	switch {
	case resume && awsx.IsCode(err, awsx.CodeRouteAlreadyExists):
		log.Debugf("default route of %s already exists", rtID)
	case err != nil:
		return fmt.Errorf("failed to route %s through %s: %w", rtID, igwID, err)
	default:
		awsx.LogResponse("CreateRoute", route.ResultMetadata, nil)
	}

	for _, subnetID := range n.AffinitySubnets(group) {
		res, err := n.Clients.EC2.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            aws.String(subnetID),
			MapPublicIpOnLaunch: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to make subnet %s public: %w", subnetID, err)
		}
		awsx.LogResponse("ModifySubnetAttribute", res.ResultMetadata, nil)
	}

	tags, err := n.Clients.EC2.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{igwID},
		Tags:      []ec2types.Tag{resource.AffinityTag(group)},
	})
	if err != nil {
		return fmt.Errorf("failed to tag %s: %w", igwID, err)
	}
	awsx.LogResponse("CreateTags", tags.ResultMetadata, nil)
	return nil
}

// RefreshInternetGateway re-reads the gateway attached to the VPC. With none
// attached, a cached gateway that still exists is kept so the next create
// finishes it. Otherwise the key is dropped.
func (n *Network) RefreshInternetGateway(ctx context.Context) error {
	vpcID, err := n.VpcID()
	if err != nil {
		return err
	}

	out, err := n.Clients.EC2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		Filters: []ec2types.Filter{resource.Filter("attachment.vpc-id", vpcID)},
	})
	if err != nil {
		return fmt.Errorf("failed to describe internet gateways: %w", err)
	}
	awsx.LogResponse("DescribeInternetGateways", out.ResultMetadata, out.InternetGateways)

	if len(out.InternetGateways) > 0 {
		return n.SetAndSave(ctx, state.KeyInternetGateway, out.InternetGateways[0])
	}

	igwID, ok := n.InternetGatewayID()
	if !ok {
		return n.DeleteAndSave(ctx, state.KeyInternetGateway)
	}
	byID, err := n.Clients.EC2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		InternetGatewayIds: []string{igwID},
	})
	if awsx.IsCode(err, awsx.CodeIGWNotFound) || (err == nil && len(byID.InternetGateways) == 0) {
		return n.DeleteAndSave(ctx, state.KeyInternetGateway)
	}
	if err != nil {
		return fmt.Errorf("failed to describe %s: %w", igwID, err)
	}
	awsx.LogResponse("DescribeInternetGateways", byID.ResultMetadata, byID.InternetGateways)
	log.Warnf("internet gateway %s is not attached to %s", igwID, vpcID)
	return n.SetAndSave(ctx, state.KeyInternetGateway, byID.InternetGateways[0])
}

// InternetGatewayAttached reports whether the cached gateway is attached to
// the VPC.
func (n *Network) InternetGatewayAttached() bool {
	var igw ec2types.InternetGateway
	if err := n.Store.Get(state.KeyInternetGateway, &igw); err != nil {
		return false
	}
	vpcID, err := n.VpcID()
	if err != nil {
		return false
	}
	return attachedTo(igw, vpcID)
}

// DeleteInternetGateway detaches and deletes the cached gateway.
func (n *Network) DeleteInternetGateway(ctx context.Context) error {
	igwID, ok := n.InternetGatewayID()
	if !ok {
		return nil
	}

	if vpcID, err := n.VpcID(); err == nil {
		log.Infof("detaching internet gateway: id=%s vpc=%s", igwID, vpcID)
		out, err := n.Clients.EC2.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
			InternetGatewayId: aws.String(igwID),
			VpcId:             aws.String(vpcID),
		})
		if err := awsx.IgnoreCode(err, awsx.CodeGatewayNotAttached, awsx.CodeIGWNotFound); err != nil {
			return fmt.Errorf("failed to detach %s: %w", igwID, err)
		}
		if out != nil {
			awsx.LogResponse("DetachInternetGateway", out.ResultMetadata, nil)
		}
		if err := n.Pause(ctx); err != nil {
			return err
		}
	}

	log.Infof("deleting internet gateway: id=%s", igwID)
	out, err := n.Clients.EC2.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{
		InternetGatewayId: aws.String(igwID),
	})
	if err := awsx.IgnoreCode(err, awsx.CodeIGWNotFound); err != nil {
		return fmt.Errorf("failed to delete %s: %w", igwID, err)
	}
	if out != nil {
		awsx.LogResponse("DeleteInternetGateway", out.ResultMetadata, nil)
	}
	return n.DeleteAndSave(ctx, state.KeyInternetGateway)
}
