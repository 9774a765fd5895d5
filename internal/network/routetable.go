// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package network

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/retry"
	"github.com/subfish/subfish/internal/state"
)

// CreateRouteTable creates the route table of group unless one is cached.
func (n *Network) CreateRouteTable(ctx context.Context, group int) error {
	if id, ok := n.AffinityRouteTable(group); ok {
		log.Debugf("route table cached: group=%d id=%s", group, id)
		return nil
	}
	vpcID, err := n.VpcID()
	if err != nil {
		return err
	}

	log.Infof("creating route table: group=%d", group)
	out, err := n.Clients.EC2.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{VpcId: aws.String(vpcID)})
	if err != nil {
		return fmt.Errorf("failed to create route table: %w", err)
	}
	awsx.LogResponse("CreateRouteTable", out.ResultMetadata, out.RouteTable)
	rtID := aws.ToString(out.RouteTable.RouteTableId)

	// A fresh table may not be visible to CreateTags yet.
	err = n.Timing.Backoff.Do(ctx, "tag route table "+rtID, func(ctx context.Context) error {
		res, err := n.Clients.EC2.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: []string{rtID},
			Tags:      []ec2types.Tag{resource.AffinityTag(group)},
		})
		if err == nil {
			awsx.LogResponse("CreateTags", res.ResultMetadata, nil)
		}
		return err
	}, retry.OnCodes(awsx.CodeRouteTableNotFound))
	if err != nil {
		return fmt.Errorf("failed to tag route table %s: %w", rtID, err)
	}

	return n.RefreshRouteTables(ctx)
}

// RefreshRouteTables re-reads the tagged route tables of the VPC. The main
// table carries no affinity tag and is never cached.
func (n *Network) RefreshRouteTables(ctx context.Context) error {
	vpcID, err := n.VpcID()
	if err != nil {
		return err
	}

	var tables []ec2types.RouteTable
	p := ec2.NewDescribeRouteTablesPaginator(n.Clients.EC2, &ec2.DescribeRouteTablesInput{
		Filters: []ec2types.Filter{
			resource.Filter("vpc-id", vpcID),
			resource.Filter("tag-key", resource.AffinityKey),
		},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to describe route tables: %w", err)
		}
		awsx.LogResponse("DescribeRouteTables", page.ResultMetadata, page.RouteTables)
		tables = append(tables, page.RouteTables...)
	}

	if len(tables) == 0 {
		return n.DeleteAndSave(ctx, state.KeyRouteTables)
	}
	return n.SetAndSave(ctx, state.KeyRouteTables, tables)
}

// AssociateRouteTable associates every subnet of group with the group's
// route table. Subnets already associated are skipped.
func (n *Network) AssociateRouteTable(ctx context.Context, group int) error {
	rtID, ok := n.AffinityRouteTable(group)
	if !ok {
		return groupMissing("route table", group)
	}
	tables, err := n.cachedRouteTables()
	if err != nil {
		return err
	}
	var associated []string
	for _, rt := range tables {
		if aws.ToString(rt.RouteTableId) != rtID {
			continue
		}
		for _, a := range rt.Associations {
			associated = append(associated, aws.ToString(a.SubnetId))
		}
	}

	for _, subnetID := range n.AffinitySubnets(group) {
		if slices.Contains(associated, subnetID) {
			continue
		}
		log.Infof("associating route table: rt=%s subnet=%s", rtID, subnetID)
		out, err := n.Clients.EC2.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
			RouteTableId: aws.String(rtID),
			SubnetId:     aws.String(subnetID),
		})
		if err != nil {
			return fmt.Errorf("failed to associate %s with %s: %w", subnetID, rtID, err)
		}
		awsx.LogResponse("AssociateRouteTable", out.ResultMetadata, out)
	}

	if err := n.Pause(ctx); err != nil {
		return err
	}
	return n.RefreshRouteTables(ctx)
}

// DeleteRouteTables disassociates and deletes every cached route table.
func (n *Network) DeleteRouteTables(ctx context.Context) error {
	if !n.Store.Has(state.KeyRouteTables) {
		return nil
	}
	if err := n.RefreshRouteTables(ctx); err != nil {
		return err
	}
	tables, err := n.cachedRouteTables()
	if err != nil {
		return err
	}

	for _, rt := range tables {
		rtID := aws.ToString(rt.RouteTableId)
		for _, a := range rt.Associations {
			if aws.ToBool(a.Main) {
				continue
			}
			out, err := n.Clients.EC2.DisassociateRouteTable(ctx, &ec2.DisassociateRouteTableInput{
				AssociationId: a.RouteTableAssociationId,
			})
			if err := awsx.IgnoreCode(err, awsx.CodeAssociationNotFound); err != nil {
				return fmt.Errorf("failed to disassociate %s: %w", aws.ToString(a.RouteTableAssociationId), err)
			}
			if out != nil {
				awsx.LogResponse("DisassociateRouteTable", out.ResultMetadata, nil)
			}
		}

		log.Infof("deleting route table: id=%s", rtID)
		out, err := n.Clients.EC2.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: aws.String(rtID)})
		if err := awsx.IgnoreCode(err, awsx.CodeRouteTableNotFound); err != nil {
			return fmt.Errorf("failed to delete route table %s: %w", rtID, err)
		}
		if out != nil {
			awsx.LogResponse("DeleteRouteTable", out.ResultMetadata, nil)
		}
	}
	return n.DeleteAndSave(ctx, state.KeyRouteTables)
}
