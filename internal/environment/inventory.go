// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/state"
)

// Item is one cached resource, flattened for listing.
type Item struct {
	Kind    string    `json:"kind" yaml:"kind"`
	ID      string    `json:"id" yaml:"id"`
	Name    string    `json:"name,omitempty" yaml:"name,omitempty"`
	State   string    `json:"state,omitempty" yaml:"state,omitempty"`
	Group   string    `json:"group,omitempty" yaml:"group,omitempty"`
	Detail  string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	Created time.Time `json:"created,omitzero" yaml:"created,omitempty"`
}

// kind maps one state key to the gjson paths of its Item fields. An empty
// name path means the Name tag.
type kind struct {
	key, kind, id, name, state, detail, created string
}

var (
	nameTag     = `Tags.#(Key=="Name").Value`
	affinityTag = `Tags.#(Key=="` + resource.AffinityKey + `").Value`
)

// kinds is in Up order.
var kinds = []kind{
	{state.KeyVpc, "vpc", "VpcId", "", "State", "CidrBlock", ""},
	{state.KeySubnets, "subnet", "SubnetId", "", "State", "CidrBlock", ""},
	{state.KeyRouteTables, "route-table", "RouteTableId", "", "", "Associations.#", ""},
	{state.KeyInternetGateway, "internet-gateway", "InternetGatewayId", "", "Attachments.0.State", "", ""},
	{state.KeyNatGateways, "nat-gateway", "NatGatewayId", "", "State", "NatGatewayAddresses.0.PublicIp", "CreateTime"},
	{state.KeySecurityGroups, "security-group", "GroupId", "GroupName", "", "Description", ""},
	{state.KeyRoles, "role", "RoleId", "RoleName", "", "Arn", "CreateDate"},
	{state.KeyLaunchTemplates, "launch-template", "LaunchTemplateId", "LaunchTemplateName", "", "DefaultVersionNumber", "CreateTime"},
	{state.KeyInstances, "instance", "InstanceId", "", "State.Name", "PrivateIpAddress", "LaunchTime"},
	{state.KeyAutoScalingGroups, "autoscaling-group", "AutoScalingGroupName", "AutoScalingGroupName", "Status", "DesiredCapacity", "CreatedTime"},
	{state.KeyCluster, "cluster", "Arn", "Name", "Status", "Version", "CreatedAt"},
}

// Inventory flattens every cached resource of s, in Up order.
func Inventory(s *state.Store) []Item {
	raw, err := s.JSON()
	if err != nil {
		return nil
	}

	var items []Item
	for _, k := range kinds {
		v := gjson.GetBytes(raw, k.key)
		if !v.Exists() {
			continue
		}
		each := []gjson.Result{v}
		if v.IsArray() {
			each = v.Array()
		}
		for _, r := range each {
			items = append(items, k.item(r))
		}
	}
	return items
}

func (k kind) item(r gjson.Result) Item {
	it := Item{
		Kind:  k.kind,
		ID:    r.Get(k.id).String(),
		Group: r.Get(affinityTag).String(),
	}
	if k.name != "" {
		it.Name = r.Get(k.name).String()
	} else {
		it.Name = r.Get(nameTag).String()
	}
	if k.state != "" {
		it.State = r.Get(k.state).String()
	}
	if k.detail != "" {
		it.Detail = r.Get(k.detail).String()
	}
	if k.created != "" {
		if t, err := time.Parse(time.RFC3339Nano, r.Get(k.created).String()); err == nil {
			it.Created = t
		}
	}
	return it
}
