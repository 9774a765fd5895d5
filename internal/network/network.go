// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package network

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/state"
)

// DefaultRoute is the destination of internet and NAT routes.
const DefaultRoute = "0.0.0.0/0"

// Network manages the VPC and everything routed inside it.
type Network struct {
	resource.Base
}

// New returns a Network over base.
func New(base resource.Base) *Network {
	return &Network{Base: base}
}

// cachedSubnets returns the cached subnets; none cached is not an error.
func (n *Network) cachedSubnets() ([]ec2types.Subnet, error) {
	var subnets []ec2types.Subnet
	if err := n.Store.Get(state.KeySubnets, &subnets); err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}
	return subnets, nil
}

func (n *Network) cachedRouteTables() ([]ec2types.RouteTable, error) {
	var tables []ec2types.RouteTable
	if err := n.Store.Get(state.KeyRouteTables, &tables); err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}
	return tables, nil
}

func (n *Network) cachedNatGateways() ([]ec2types.NatGateway, error) {
	var nats []ec2types.NatGateway
	if err := n.Store.Get(state.KeyNatGateways, &nats); err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}
	return nats, nil
}

// AffinitySubnets returns the ids of cached subnets in group, in cache order.
func (n *Network) AffinitySubnets(group int) []string {
	subnets, err := n.cachedSubnets()
	if err != nil {
		return nil
	}
	var ids []string
	for _, s := range subnets {
		if resource.InGroup(s.Tags, group) {
			ids = append(ids, aws.ToString(s.SubnetId))
		}
	}
	return ids
}

// SubnetIDs returns the ids of every cached subnet.
func (n *Network) SubnetIDs() []string {
	subnets, err := n.cachedSubnets()
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(subnets))
	for _, s := range subnets {
		ids = append(ids, aws.ToString(s.SubnetId))
	}
	return ids
}

// AffinityRouteTable returns the id of the cached route table of group.
func (n *Network) AffinityRouteTable(group int) (string, bool) {
	tables, err := n.cachedRouteTables()
	if err != nil {
		return "", false
	}
	for _, rt := range tables {
		if resource.InGroup(rt.Tags, group) {
			return aws.ToString(rt.RouteTableId), true
		}
	}
	return "", false
}

// AffinityNatGateway returns the id of the cached NAT gateway of group.
func (n *Network) AffinityNatGateway(group int) (string, bool) {
	nats, err := n.cachedNatGateways()
	if err != nil {
		return "", false
	}
	for _, ngw := range nats {
		if resource.InGroup(ngw.Tags, group) {
			return aws.ToString(ngw.NatGatewayId), true
		}
	}
	return "", false
}

// InternetGatewayID returns the id of the cached internet gateway.
func (n *Network) InternetGatewayID() (string, bool) {
	var igw ec2types.InternetGateway
	if err := n.Store.Get(state.KeyInternetGateway, &igw); err != nil {
		return "", false
	}
	id := aws.ToString(igw.InternetGatewayId)
	return id, id != ""
}

func groupMissing(what string, group int) error {
	return fmt.Errorf("%s for affinity group %d: %w", what, group, state.ErrNotFound)
}
