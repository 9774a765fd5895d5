// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package awsfake

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	awsx "github.com/subfish/subfish/internal/aws"
)

var _ awsx.EC2API = (*EC2)(nil)

// Error codes only the fake needs to name.
const (
	codeSubnetConflict    = "InvalidSubnet.Conflict"
	codeSubnetRange       = "InvalidSubnet.Range"
	codeAlreadyAssociated = "Resource.AlreadyAssociated"
	codeAddressInUse      = "InvalidIPAddress.InUse"
	codeCannotDelete      = "CannotDelete"
	codeTagTargetNotFound = "InvalidID"
)

// EC2 is an in-memory EC2.
type EC2 struct {
	recorder

	// Zones answers DescribeAvailabilityZones, in order.
	Zones []string
	// NatDeletePolls is how many DescribeNatGateways calls report a deleted
	// NAT gateway as "deleting" before it turns "deleted".
	NatDeletePolls int
	// ClientTokens collects idempotency tokens seen on create calls.
	ClientTokens []string

	mu           sync.Mutex
	seq          int
	vpcs         []*ec2types.Vpc
	dnsAttrs     map[string]map[string]bool
	subnets      []*ec2types.Subnet
	routeTables  []*ec2types.RouteTable
	igws         []*ec2types.InternetGateway
	addresses    []*ec2types.Address
	nats         []*ec2types.NatGateway
	natCountdown map[string]int
	groups       []*ec2types.SecurityGroup
	templates    []*ec2types.LaunchTemplate
	versions     map[string][]ec2types.RequestLaunchTemplateData
	instances    []*ec2types.Instance
	reservation  map[string]string
}

// NewEC2 returns an empty EC2 with three zones in region.
func NewEC2(region string) *EC2 {
	return &EC2{
		Zones:        []string{region + "a", region + "b", region + "c"},
		dnsAttrs:     map[string]map[string]bool{},
		natCountdown: map[string]int{},
		versions:     map[string][]ec2types.RequestLaunchTemplateData{},
		reservation:  map[string]string{},
	}
}

func (f *EC2) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%017x", prefix, f.seq)
}

// DNSAttribute reports a VPC attribute set through ModifyVpcAttribute.
func (f *EC2) DNSAttribute(vpcID, attr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dnsAttrs[vpcID][attr]
}

// Seed* helpers place resources directly, bypassing the API.

// SeedInstance adds a running instance in subnetID.
func (f *EC2) SeedInstance(subnetID string, tags ...ec2types.Tag) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := f.subnet(subnetID)
	id := f.nextID("i")
	inst := &ec2types.Instance{
		InstanceId: aws.String(id),
		SubnetId:   aws.String(subnetID),
		State:      &ec2types.InstanceState{Code: aws.Int32(16), Name: ec2types.InstanceStateNameRunning},
		Tags:       tags,
		LaunchTime: aws.Time(time.Now()),
	}
	if sub != nil {
		inst.VpcId = sub.VpcId
	}
	f.instances = append(f.instances, inst)
	f.reservation[id] = f.nextID("r")
	return id
}

//
// VPC
//

func (f *EC2) vpc(id string) *ec2types.Vpc {
	i := slices.IndexFunc(f.vpcs, func(v *ec2types.Vpc) bool { return aws.ToString(v.VpcId) == id })
	if i < 0 {
		return nil
	}
	return f.vpcs[i]
}

func (f *EC2) CreateVpc(_ context.Context, in *ec2.CreateVpcInput, _ ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error) {
	if err := f.record("CreateVpc"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, _, err := net.ParseCIDR(aws.ToString(in.CidrBlock)); err != nil {
		return nil, APIError(awsx.CodeInvalidParameterValue, "invalid CIDR %q", aws.ToString(in.CidrBlock))
	}

	id := f.nextID("vpc")
	v := &ec2types.Vpc{
		VpcId:           aws.String(id),
		CidrBlock:       in.CidrBlock,
		State:           ec2types.VpcStateAvailable,
		IsDefault:       aws.Bool(false),
		InstanceTenancy: ec2types.TenancyDefault,
		OwnerId:         aws.String(Account),
		Tags:            specTags(in.TagSpecifications, ec2types.ResourceTypeVpc),
	}
	f.vpcs = append(f.vpcs, v)
	f.dnsAttrs[id] = map[string]bool{"enableDnsSupport": true}

	// Every VPC comes with a main route table and a default security group.
	f.routeTables = append(f.routeTables, &ec2types.RouteTable{
		RouteTableId: aws.String(f.nextID("rtb")),
		VpcId:        aws.String(id),
		OwnerId:      aws.String(Account),
		Routes:       []ec2types.Route{localRoute(in.CidrBlock)},
		Associations: []ec2types.RouteTableAssociation{{
			RouteTableAssociationId: aws.String(f.nextID("rtbassoc")),
			Main:                    aws.Bool(true),
			AssociationState:        &ec2types.RouteTableAssociationState{State: ec2types.RouteTableAssociationStateCodeAssociated},
		}},
	})
	f.groups = append(f.groups, &ec2types.SecurityGroup{
		GroupId:     aws.String(f.nextID("sg")),
		GroupName:   aws.String("default"),
		Description: aws.String("default VPC security group"),
		VpcId:       aws.String(id),
		OwnerId:     aws.String(Account),
	})

	out := *v
	return &ec2.CreateVpcOutput{Vpc: &out}, nil
}

func localRoute(cidr *string) ec2types.Route {
	return ec2types.Route{
		DestinationCidrBlock: cidr,
		GatewayId:            aws.String("local"),
		State:                ec2types.RouteStateActive,
		Origin:               ec2types.RouteOriginCreateRouteTable,
	}
}

func (f *EC2) DescribeVpcs(_ context.Context, in *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	if err := f.record("DescribeVpcs"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	vpcs, err := onlyIDs(f.vpcs, in.VpcIds, func(v *ec2types.Vpc) string { return aws.ToString(v.VpcId) }, awsx.CodeVpcNotFound)
	if err != nil {
		return nil, err
	}
	out := &ec2.DescribeVpcsOutput{}
	for _, v := range vpcs {
		attr := func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{aws.ToString(v.VpcId)}
			case "cidr", "cidr-block":
				return []string{aws.ToString(v.CidrBlock)}
			case "state":
				return []string{string(v.State)}
			}
			return tagAttr(v.Tags, name)
		}
		if matches(in.Filters, attr) {
			out.Vpcs = append(out.Vpcs, *v)
		}
	}
	return out, nil
}

func (f *EC2) ModifyVpcAttribute(_ context.Context, in *ec2.ModifyVpcAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifyVpcAttributeOutput, error) {
	if err := f.record("ModifyVpcAttribute"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(in.VpcId)
	if f.vpc(id) == nil {
		return nil, APIError(awsx.CodeVpcNotFound, "The vpc ID '%s' does not exist", id)
	}
	set := 0
	if in.EnableDnsHostnames != nil {
		f.dnsAttrs[id]["enableDnsHostnames"] = aws.ToBool(in.EnableDnsHostnames.Value)
		set++
	}
	if in.EnableDnsSupport != nil {
		f.dnsAttrs[id]["enableDnsSupport"] = aws.ToBool(in.EnableDnsSupport.Value)
		set++
	}
	if set != 1 {
		return nil, APIError(awsx.CodeInvalidParameterValue, "exactly one attribute may be modified per call")
	}
	return &ec2.ModifyVpcAttributeOutput{}, nil
}

func (f *EC2) DeleteVpc(_ context.Context, in *ec2.DeleteVpcInput, _ ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	if err := f.record("DeleteVpc"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(in.VpcId)
	if f.vpc(id) == nil {
		return nil, APIError(awsx.CodeVpcNotFound, "The vpc ID '%s' does not exist", id)
	}
	inVpc := func(vpc *string) bool { return aws.ToString(vpc) == id }
	blocked := slices.ContainsFunc(f.subnets, func(s *ec2types.Subnet) bool { return inVpc(s.VpcId) }) ||
		slices.ContainsFunc(f.igws, func(g *ec2types.InternetGateway) bool {
			return slices.ContainsFunc(g.Attachments, func(a ec2types.InternetGatewayAttachment) bool { return inVpc(a.VpcId) })
		}) ||
		slices.ContainsFunc(f.routeTables, func(rt *ec2types.RouteTable) bool { return inVpc(rt.VpcId) && !isMain(rt) }) ||
		slices.ContainsFunc(f.groups, func(g *ec2types.SecurityGroup) bool {
			return inVpc(g.VpcId) && aws.ToString(g.GroupName) != "default"
		})
	if blocked {
		return nil, APIError(awsx.CodeDependencyViolation, "The vpc '%s' has dependencies and cannot be deleted.", id)
	}

	f.vpcs = slices.DeleteFunc(f.vpcs, func(v *ec2types.Vpc) bool { return inVpc(v.VpcId) })
	f.routeTables = slices.DeleteFunc(f.routeTables, func(rt *ec2types.RouteTable) bool { return inVpc(rt.VpcId) })
	f.groups = slices.DeleteFunc(f.groups, func(g *ec2types.SecurityGroup) bool { return inVpc(g.VpcId) })
	delete(f.dnsAttrs, id)
	return &ec2.DeleteVpcOutput{}, nil
}

func (f *EC2) DescribeAvailabilityZones(_ context.Context, _ *ec2.DescribeAvailabilityZonesInput, _ ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error) {
	if err := f.record("DescribeAvailabilityZones"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeAvailabilityZonesOutput{}
	for i, z := range f.Zones {
		out.AvailabilityZones = append(out.AvailabilityZones, ec2types.AvailabilityZone{
			ZoneName: aws.String(z),
			ZoneId:   aws.String("use1-az" + strconv.Itoa(i+1)),
			State:    ec2types.AvailabilityZoneStateAvailable,
		})
	}
	return out, nil
}

//
// Subnets
//

func (f *EC2) subnet(id string) *ec2types.Subnet {
	i := slices.IndexFunc(f.subnets, func(s *ec2types.Subnet) bool { return aws.ToString(s.SubnetId) == id })
	if i < 0 {
		return nil
	}
	return f.subnets[i]
}

func (f *EC2) CreateSubnet(_ context.Context, in *ec2.CreateSubnetInput, _ ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error) {
	if err := f.record("CreateSubnet"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	vpc := f.vpc(aws.ToString(in.VpcId))
	if vpc == nil {
		return nil, APIError(awsx.CodeVpcNotFound, "The vpc ID '%s' does not exist", aws.ToString(in.VpcId))
	}
	_, want, err := net.ParseCIDR(aws.ToString(in.CidrBlock))
	if err != nil {
		return nil, APIError(awsx.CodeInvalidParameterValue, "invalid CIDR %q", aws.ToString(in.CidrBlock))
	}
	_, vpcNet, _ := net.ParseCIDR(aws.ToString(vpc.CidrBlock))
	if !vpcNet.Contains(want.IP) {
		return nil, APIError(codeSubnetRange, "The CIDR '%s' is invalid.", want)
	}
	for _, s := range f.subnets {
		_, have, _ := net.ParseCIDR(aws.ToString(s.CidrBlock))
		if have.Contains(want.IP) || want.Contains(have.IP) {
			return nil, APIError(codeSubnetConflict, "The CIDR '%s' conflicts with another subnet", want)
		}
	}

	az := aws.ToString(in.AvailabilityZone)
	if az == "" {
		az = f.Zones[0]
	}
	ones, bits := want.Mask.Size()
	s := &ec2types.Subnet{
		SubnetId:                aws.String(f.nextID("subnet")),
		VpcId:                   in.VpcId,
		CidrBlock:               aws.String(want.String()),
		AvailabilityZone:        aws.String(az),
		State:                   ec2types.SubnetStateAvailable,
		MapPublicIpOnLaunch:     aws.Bool(false),
		DefaultForAz:            aws.Bool(false),
		AvailableIpAddressCount: aws.Int32(int32(1<<(bits-ones)) - 5),
		OwnerId:                 aws.String(Account),
		Tags:                    specTags(in.TagSpecifications, ec2types.ResourceTypeSubnet),
	}
	f.subnets = append(f.subnets, s)
	out := *s
	return &ec2.CreateSubnetOutput{Subnet: &out}, nil
}

func (f *EC2) DescribeSubnets(_ context.Context, in *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	if err := f.record("DescribeSubnets"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	subnets, err := onlyIDs(f.subnets, in.SubnetIds, func(s *ec2types.Subnet) string { return aws.ToString(s.SubnetId) }, awsx.CodeSubnetNotFound)
	if err != nil {
		return nil, err
	}
	out := &ec2.DescribeSubnetsOutput{}
	for _, s := range subnets {
		attr := func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{aws.ToString(s.VpcId)}
			case "subnet-id":
				return []string{aws.ToString(s.SubnetId)}
			case "availability-zone":
				return []string{aws.ToString(s.AvailabilityZone)}
			case "state":
				return []string{string(s.State)}
			}
			return tagAttr(s.Tags, name)
		}
		if matches(in.Filters, attr) {
			out.Subnets = append(out.Subnets, *s)
		}
	}
	return out, nil
}

func (f *EC2) ModifySubnetAttribute(_ context.Context, in *ec2.ModifySubnetAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifySubnetAttributeOutput, error) {
	if err := f.record("ModifySubnetAttribute"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.subnet(aws.ToString(in.SubnetId))
	if s == nil {
		return nil, APIError(awsx.CodeSubnetNotFound, "The subnet ID '%s' does not exist", aws.ToString(in.SubnetId))
	}
	if in.MapPublicIpOnLaunch != nil {
		s.MapPublicIpOnLaunch = aws.Bool(aws.ToBool(in.MapPublicIpOnLaunch.Value))
	}
	return &ec2.ModifySubnetAttributeOutput{}, nil
}

func (f *EC2) DeleteSubnet(_ context.Context, in *ec2.DeleteSubnetInput, _ ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error) {
	if err := f.record("DeleteSubnet"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(in.SubnetId)
	if f.subnet(id) == nil {
		return nil, APIError(awsx.CodeSubnetNotFound, "The subnet ID '%s' does not exist", id)
	}
	busy := slices.ContainsFunc(f.instances, func(i *ec2types.Instance) bool {
		return aws.ToString(i.SubnetId) == id && i.State.Name != ec2types.InstanceStateNameTerminated
	}) || slices.ContainsFunc(f.nats, func(n *ec2types.NatGateway) bool {
		return aws.ToString(n.SubnetId) == id && n.State != ec2types.NatGatewayStateDeleted
	})
	if busy {
		return nil, APIError(awsx.CodeDependencyViolation, "The subnet '%s' has dependencies and cannot be deleted.", id)
	}

	f.subnets = slices.DeleteFunc(f.subnets, func(s *ec2types.Subnet) bool { return aws.ToString(s.SubnetId) == id })
	for _, rt := range f.routeTables {
		rt.Associations = slices.DeleteFunc(slices.Clone(rt.Associations), func(a ec2types.RouteTableAssociation) bool {
			return aws.ToString(a.SubnetId) == id
		})
	}
	return &ec2.DeleteSubnetOutput{}, nil
}

//
// Tags
//

func (f *EC2) CreateTags(_ context.Context, in *ec2.CreateTagsInput, _ ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	if err := f.record("CreateTags"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range in.Resources {
		tags := f.tagsOf(id)
		if tags == nil {
			return nil, APIError(codeTagTargetNotFound, "The ID '%s' is not valid", id)
		}
		*tags = upsertTags(*tags, in.Tags)
	}
	return &ec2.CreateTagsOutput{}, nil
}

func (f *EC2) tagsOf(id string) *[]ec2types.Tag {
	for _, v := range f.vpcs {
		if aws.ToString(v.VpcId) == id {
			return &v.Tags
		}
	}
	for _, s := range f.subnets {
		if aws.ToString(s.SubnetId) == id {
			return &s.Tags
		}
	}
	for _, rt := range f.routeTables {
		if aws.ToString(rt.RouteTableId) == id {
			return &rt.Tags
		}
	}
	for _, g := range f.igws {
		if aws.ToString(g.InternetGatewayId) == id {
			return &g.Tags
		}
	}
	for _, n := range f.nats {
		if aws.ToString(n.NatGatewayId) == id {
			return &n.Tags
		}
	}
	for _, g := range f.groups {
		if aws.ToString(g.GroupId) == id {
			return &g.Tags
		}
	}
	for _, i := range f.instances {
		if aws.ToString(i.InstanceId) == id {
			return &i.Tags
		}
	}
	for _, a := range f.addresses {
		if aws.ToString(a.AllocationId) == id {
			return &a.Tags
		}
	}
	return nil
}

//
// Route tables
//

func isMain(rt *ec2types.RouteTable) bool {
	return slices.ContainsFunc(rt.Associations, func(a ec2types.RouteTableAssociation) bool { return aws.ToBool(a.Main) })
}

func (f *EC2) routeTable(id string) *ec2types.RouteTable {
	i := slices.IndexFunc(f.routeTables, func(rt *ec2types.RouteTable) bool { return aws.ToString(rt.RouteTableId) == id })
	if i < 0 {
		return nil
	}
	return f.routeTables[i]
}

func (f *EC2) CreateRouteTable(_ context.Context, in *ec2.CreateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error) {
	if err := f.record("CreateRouteTable"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	vpc := f.vpc(aws.ToString(in.VpcId))
	if vpc == nil {
		return nil, APIError(awsx.CodeVpcNotFound, "The vpc ID '%s' does not exist", aws.ToString(in.VpcId))
	}
	rt := &ec2types.RouteTable{
		RouteTableId: aws.String(f.nextID("rtb")),
		VpcId:        in.VpcId,
		OwnerId:      aws.String(Account),
		Routes:       []ec2types.Route{localRoute(vpc.CidrBlock)},
		Tags:         specTags(in.TagSpecifications, ec2types.ResourceTypeRouteTable),
	}
	f.routeTables = append(f.routeTables, rt)
	out := *rt
	return &ec2.CreateRouteTableOutput{RouteTable: &out}, nil
}

func (f *EC2) DescribeRouteTables(_ context.Context, in *ec2.DescribeRouteTablesInput, _ ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	if err := f.record("DescribeRouteTables"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tables, err := onlyIDs(f.routeTables, in.RouteTableIds, func(rt *ec2types.RouteTable) string { return aws.ToString(rt.RouteTableId) }, awsx.CodeRouteTableNotFound)
	if err != nil {
		return nil, err
	}
	out := &ec2.DescribeRouteTablesOutput{}
	for _, rt := range tables {
		attr := func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{aws.ToString(rt.VpcId)}
			case "route-table-id":
				return []string{aws.ToString(rt.RouteTableId)}
			case "association.main":
				return []string{strconv.FormatBool(isMain(rt))}
			case "association.subnet-id":
				var ids []string
				for _, a := range rt.Associations {
					ids = append(ids, aws.ToString(a.SubnetId))
				}
				return ids
			}
			return tagAttr(rt.Tags, name)
		}
		if matches(in.Filters, attr) {
			c := *rt
			c.Routes = slices.Clone(rt.Routes)
			c.Associations = slices.Clone(rt.Associations)
			out.RouteTables = append(out.RouteTables, c)
		}
	}
	return out, nil
}

func (f *EC2) AssociateRouteTable(_ context.Context, in *ec2.AssociateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error) {
	if err := f.record("AssociateRouteTable"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	rt := f.routeTable(aws.ToString(in.RouteTableId))
	if rt == nil {
		return nil, APIError(awsx.CodeRouteTableNotFound, "The routeTable ID '%s' does not exist", aws.ToString(in.RouteTableId))
	}
	subnetID := aws.ToString(in.SubnetId)
	if f.subnet(subnetID) == nil {
		return nil, APIError(awsx.CodeSubnetNotFound, "The subnet ID '%s' does not exist", subnetID)
	}
	for _, other := range f.routeTables {
		for _, a := range other.Associations {
			if aws.ToString(a.SubnetId) == subnetID {
				return nil, APIError(codeAlreadyAssociated, "the specified association for route table %s conflicts with an existing association", aws.ToString(other.RouteTableId))
			}
		}
	}

	state := &ec2types.RouteTableAssociationState{State: ec2types.RouteTableAssociationStateCodeAssociated}
	assoc := ec2types.RouteTableAssociation{
		RouteTableAssociationId: aws.String(f.nextID("rtbassoc")),
		RouteTableId:            rt.RouteTableId,
		SubnetId:                aws.String(subnetID),
		Main:                    aws.Bool(false),
		AssociationState:        state,
	}
	rt.Associations = append(slices.Clone(rt.Associations), assoc)
	return &ec2.AssociateRouteTableOutput{AssociationId: assoc.RouteTableAssociationId, AssociationState: state}, nil
}

func (f *EC2) DisassociateRouteTable(_ context.Context, in *ec2.DisassociateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.DisassociateRouteTableOutput, error) {
	if err := f.record("DisassociateRouteTable"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(in.AssociationId)
	for _, rt := range f.routeTables {
		i := slices.IndexFunc(rt.Associations, func(a ec2types.RouteTableAssociation) bool {
			return aws.ToString(a.RouteTableAssociationId) == id
		})
		if i < 0 {
			continue
		}
		if aws.ToBool(rt.Associations[i].Main) {
			return nil, APIError(awsx.CodeInvalidParameterValue, "cannot disassociate the main route table association %s", id)
		}
		rt.Associations = slices.Delete(slices.Clone(rt.Associations), i, i+1)
		return &ec2.DisassociateRouteTableOutput{}, nil
	}
	return nil, APIError(awsx.CodeAssociationNotFound, "The association ID '%s' does not exist", id)
}

func (f *EC2) DeleteRouteTable(_ context.Context, in *ec2.DeleteRouteTableInput, _ ...func(*ec2.Options)) (*ec2.DeleteRouteTableOutput, error) {
	if err := f.record("DeleteRouteTable"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(in.RouteTableId)
	rt := f.routeTable(id)
	if rt == nil {
		return nil, APIError(awsx.CodeRouteTableNotFound, "The routeTable ID '%s' does not exist", id)
	}
	if len(rt.Associations) > 0 {
		return nil, APIError(awsx.CodeDependencyViolation, "The routeTable '%s' has dependencies and cannot be deleted.", id)
	}
	f.routeTables = slices.DeleteFunc(f.routeTables, func(rt *ec2types.RouteTable) bool { return aws.ToString(rt.RouteTableId) == id })
	return &ec2.DeleteRouteTableOutput{}, nil
}

func (f *EC2) CreateRoute(_ context.Context, in *ec2.CreateRouteInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error) {
	if err := f.record("CreateRoute"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	rt := f.routeTable(aws.ToString(in.RouteTableId))
	if rt == nil {
		return nil, APIError(awsx.CodeRouteTableNotFound, "The routeTable ID '%s' does not exist", aws.ToString(in.RouteTableId))
	}
	dest := aws.ToString(in.DestinationCidrBlock)
	if slices.ContainsFunc(rt.Routes, func(r ec2types.Route) bool { return aws.ToString(r.DestinationCidrBlock) == dest }) {
		return nil, APIError(awsx.CodeRouteAlreadyExists, "The route identified by %s already exists.", dest)
	}
	if gw := aws.ToString(in.GatewayId); gw != "" && f.igw(gw) == nil {
		return nil, APIError(awsx.CodeIGWNotFound, "The gateway ID '%s' does not exist", gw)
	}
	if nat := aws.ToString(in.NatGatewayId); nat != "" && f.nat(nat) == nil {
		return nil, APIError(awsx.CodeNatGatewayNotFound, "The nat gateway ID '%s' does not exist", nat)
	}

	rt.Routes = append(slices.Clone(rt.Routes), ec2types.Route{
		DestinationCidrBlock: aws.String(dest),
		GatewayId:            in.GatewayId,
		NatGatewayId:         in.NatGatewayId,
		State:                ec2types.RouteStateActive,
		Origin:               ec2types.RouteOriginCreateRoute,
	})
	return &ec2.CreateRouteOutput{Return: aws.Bool(true)}, nil
}

func (f *EC2) DeleteRoute(_ context.Context, in *ec2.DeleteRouteInput, _ ...func(*ec2.Options)) (*ec2.DeleteRouteOutput, error) {
	if err := f.record("DeleteRoute"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	rt := f.routeTable(aws.ToString(in.RouteTableId))
	if rt == nil {
		return nil, APIError(awsx.CodeRouteTableNotFound, "The routeTable ID '%s' does not exist", aws.ToString(in.RouteTableId))
	}
	dest := aws.ToString(in.DestinationCidrBlock)
	i := slices.IndexFunc(rt.Routes, func(r ec2types.Route) bool { return aws.ToString(r.DestinationCidrBlock) == dest })
	if i < 0 {
		return nil, APIError(awsx.CodeRouteNotFound, "no route with destination-cidr-block %s in route table %s", dest, aws.ToString(rt.RouteTableId))
	}
	rt.Routes = slices.Delete(slices.Clone(rt.Routes), i, i+1)
	return &ec2.DeleteRouteOutput{}, nil
}

//
// Internet gateways
//

func (f *EC2) igw(id string) *ec2types.InternetGateway {
	i := slices.IndexFunc(f.igws, func(g *ec2types.InternetGateway) bool { return aws.ToString(g.InternetGatewayId) == id })
	if i < 0 {
		return nil
	}
	return f.igws[i]
}

func (f *EC2) CreateInternetGateway(_ context.Context, in *ec2.CreateInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.CreateInternetGatewayOutput, error) {
	if err := f.record("CreateInternetGateway"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	g := &ec2types.InternetGateway{
		InternetGatewayId: aws.String(f.nextID("igw")),
		OwnerId:           aws.String(Account),
		Tags:              specTags(in.TagSpecifications, ec2types.ResourceTypeInternetGateway),
	}
	f.igws = append(f.igws, g)
	out := *g
	return &ec2.CreateInternetGatewayOutput{InternetGateway: &out}, nil
}

func (f *EC2) AttachInternetGateway(_ context.Context, in *ec2.AttachInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.AttachInternetGatewayOutput, error) {
	if err := f.record("AttachInternetGateway"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	g := f.igw(aws.ToString(in.InternetGatewayId))
	if g == nil {
		return nil, APIError(awsx.CodeIGWNotFound, "The internetGateway ID '%s' does not exist", aws.ToString(in.InternetGatewayId))
	}
	vpcID := aws.ToString(in.VpcId)
	if f.vpc(vpcID) == nil {
		return nil, APIError(awsx.CodeVpcNotFound, "The vpc ID '%s' does not exist", vpcID)
	}
	if len(g.Attachments) > 0 {
		return nil, APIError(codeAlreadyAssociated, "resource %s is already attached", aws.ToString(g.InternetGatewayId))
	}
	for _, other := range f.igws {
		for _, a := range other.Attachments {
			if aws.ToString(a.VpcId) == vpcID {
				return nil, APIError(codeAlreadyAssociated, "network %s already has an internet gateway attached", vpcID)
			}
		}
	}
	g.Attachments = []ec2types.InternetGatewayAttachment{{VpcId: aws.String(vpcID), State: ec2types.AttachmentStatus("available")}}
	return &ec2.AttachInternetGatewayOutput{}, nil
}

func (f *EC2) DescribeInternetGateways(_ context.Context, in *ec2.DescribeInternetGatewaysInput, _ ...func(*ec2.Options)) (*ec2.DescribeInternetGatewaysOutput, error) {
	if err := f.record("DescribeInternetGateways"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	gws, err := onlyIDs(f.igws, in.InternetGatewayIds, func(g *ec2types.InternetGateway) string { return aws.ToString(g.InternetGatewayId) }, awsx.CodeIGWNotFound)
	if err != nil {
		return nil, err
	}
	out := &ec2.DescribeInternetGatewaysOutput{}
	for _, g := range gws {
		attr := func(name string) []string {
			switch name {
			case "internet-gateway-id":
				return []string{aws.ToString(g.InternetGatewayId)}
			case "attachment.vpc-id":
				var ids []string
				for _, a := range g.Attachments {
					ids = append(ids, aws.ToString(a.VpcId))
				}
				return ids
			}
			return tagAttr(g.Tags, name)
		}
		if matches(in.Filters, attr) {
			out.InternetGateways = append(out.InternetGateways, *g)
		}
	}
	return out, nil
}

func (f *EC2) DetachInternetGateway(_ context.Context, in *ec2.DetachInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error) {
	if err := f.record("DetachInternetGateway"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	g := f.igw(aws.ToString(in.InternetGatewayId))
	if g == nil {
		return nil, APIError(awsx.CodeIGWNotFound, "The internetGateway ID '%s' does not exist", aws.ToString(in.InternetGatewayId))
	}
	if !slices.ContainsFunc(g.Attachments, func(a ec2types.InternetGatewayAttachment) bool {
		return aws.ToString(a.VpcId) == aws.ToString(in.VpcId)
	}) {
		return nil, APIError(awsx.CodeGatewayNotAttached, "resource %s is not attached to network %s", aws.ToString(g.InternetGatewayId), aws.ToString(in.VpcId))
	}
	g.Attachments = nil
	return &ec2.DetachInternetGatewayOutput{}, nil
}

func (f *EC2) DeleteInternetGateway(_ context.Context, in *ec2.DeleteInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error) {
	if err := f.record("DeleteInternetGateway"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(in.InternetGatewayId)
	g := f.igw(id)
	if g == nil {
		return nil, APIError(awsx.CodeIGWNotFound, "The internetGateway ID '%s' does not exist", id)
	}
	if len(g.Attachments) > 0 {
		return nil, APIError(awsx.CodeDependencyViolation, "The internetGateway '%s' has dependencies and cannot be deleted.", id)
	}
	f.igws = slices.DeleteFunc(f.igws, func(g *ec2types.InternetGateway) bool { return aws.ToString(g.InternetGatewayId) == id })
	return &ec2.DeleteInternetGatewayOutput{}, nil
}

//
// Elastic IPs and NAT gateways
//

// Addresses returns the allocation ids still held.
func (f *EC2) Addresses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, a := range f.addresses {
		ids = append(ids, aws.ToString(a.AllocationId))
	}
	return ids
}

func (f *EC2) AllocateAddress(_ context.Context, in *ec2.AllocateAddressInput, _ ...func(*ec2.Options)) (*ec2.AllocateAddressOutput, error) {
	if err := f.record("AllocateAddress"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	a := &ec2types.Address{
		AllocationId: aws.String(fmt.Sprintf("eipalloc-%017x", f.seq)),
		PublicIp:     aws.String(fmt.Sprintf("203.0.113.%d", f.seq%250+1)),
		Domain:       ec2types.DomainTypeVpc,
		Tags:         specTags(in.TagSpecifications, ec2types.ResourceTypeElasticIp),
	}
	f.addresses = append(f.addresses, a)
	return &ec2.AllocateAddressOutput{AllocationId: a.AllocationId, PublicIp: a.PublicIp, Domain: a.Domain}, nil
}

func (f *EC2) ReleaseAddress(_ context.Context, in *ec2.ReleaseAddressInput, _ ...func(*ec2.Options)) (*ec2.ReleaseAddressOutput, error) {
	if err := f.record("ReleaseAddress"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(in.AllocationId)
	if !slices.ContainsFunc(f.addresses, func(a *ec2types.Address) bool { return aws.ToString(a.AllocationId) == id }) {
		return nil, APIError(awsx.CodeAllocationNotFound, "The allocation ID '%s' does not exist", id)
	}
	for _, n := range f.nats {
		if n.State == ec2types.NatGatewayStateDeleted {
			continue
		}
		for _, a := range n.NatGatewayAddresses {
			if aws.ToString(a.AllocationId) == id {
				return nil, APIError(codeAddressInUse, "Address %s is in use.", id)
			}
		}
	}
	f.addresses = slices.DeleteFunc(f.addresses, func(a *ec2types.Address) bool { return aws.ToString(a.AllocationId) == id })
	return &ec2.ReleaseAddressOutput{}, nil
}

func (f *EC2) nat(id string) *ec2types.NatGateway {
	i := slices.IndexFunc(f.nats, func(n *ec2types.NatGateway) bool { return aws.ToString(n.NatGatewayId) == id })
	if i < 0 {
		return nil
	}
	return f.nats[i]
}

func (f *EC2) CreateNatGateway(_ context.Context, in *ec2.CreateNatGatewayInput, _ ...func(*ec2.Options)) (*ec2.CreateNatGatewayOutput, error) {
	if err := f.record("CreateNatGateway"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.subnet(aws.ToString(in.SubnetId))
	if s == nil {
		return nil, APIError(awsx.CodeSubnetNotFound, "The subnet ID '%s' does not exist", aws.ToString(in.SubnetId))
	}
	alloc := aws.ToString(in.AllocationId)
	i := slices.IndexFunc(f.addresses, func(a *ec2types.Address) bool { return aws.ToString(a.AllocationId) == alloc })
	if i < 0 {
		return nil, APIError(awsx.CodeAllocationNotFound, "The allocation ID '%s' does not exist", alloc)
	}
	if in.ClientToken != nil {
		f.ClientTokens = append(f.ClientTokens, aws.ToString(in.ClientToken))
	}

	n := &ec2types.NatGateway{
		NatGatewayId: aws.String(f.nextID("nat")),
		SubnetId:     s.SubnetId,
		VpcId:        s.VpcId,
		State:        ec2types.NatGatewayStateAvailable,
		CreateTime:   aws.Time(time.Now()),
		NatGatewayAddresses: []ec2types.NatGatewayAddress{{
			AllocationId: aws.String(alloc),
			PublicIp:     f.addresses[i].PublicIp,
		}},
		Tags: specTags(in.TagSpecifications, ec2types.ResourceTypeNatgateway),
	}
	f.nats = append(f.nats, n)
	out := *n
	out.State = ec2types.NatGatewayStatePending
	return &ec2.CreateNatGatewayOutput{NatGateway: &out, ClientToken: in.ClientToken}, nil
}

func (f *EC2) DescribeNatGateways(_ context.Context, in *ec2.DescribeNatGatewaysInput, _ ...func(*ec2.Options)) (*ec2.DescribeNatGatewaysOutput, error) {
	if err := f.record("DescribeNatGateways"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, n := range f.nats {
		if n.State != ec2types.NatGatewayStateDeleting {
			continue
		}
		id := aws.ToString(n.NatGatewayId)
		if f.natCountdown[id] <= 0 {
			n.State = ec2types.NatGatewayStateDeleted
			n.DeleteTime = aws.Time(time.Now())
			continue
		}
		f.natCountdown[id]--
	}

	nats, err := onlyIDs(f.nats, in.NatGatewayIds, func(n *ec2types.NatGateway) string { return aws.ToString(n.NatGatewayId) }, awsx.CodeNatGatewayNotFound)
	if err != nil {
		return nil, err
	}
	out := &ec2.DescribeNatGatewaysOutput{}
	for _, n := range nats {
		attr := func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{aws.ToString(n.VpcId)}
			case "subnet-id":
				return []string{aws.ToString(n.SubnetId)}
			case "nat-gateway-id":
				return []string{aws.ToString(n.NatGatewayId)}
			case "state":
				return []string{string(n.State)}
			}
			return tagAttr(n.Tags, name)
		}
		if matches(in.Filter, attr) {
			out.NatGateways = append(out.NatGateways, *n)
		}
	}
	return out, nil
}

func (f *EC2) DeleteNatGateway(_ context.Context, in *ec2.DeleteNatGatewayInput, _ ...func(*ec2.Options)) (*ec2.DeleteNatGatewayOutput, error) {
	if err := f.record("DeleteNatGateway"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(in.NatGatewayId)
	n := f.nat(id)
	if n == nil || n.State == ec2types.NatGatewayStateDeleted {
		return nil, APIError(awsx.CodeNatGatewayNotFound, "The nat gateway ID '%s' does not exist", id)
	}
	n.State = ec2types.NatGatewayStateDeleting
	f.natCountdown[id] = f.NatDeletePolls
	return &ec2.DeleteNatGatewayOutput{NatGatewayId: aws.String(id)}, nil
}

//
// Security groups
//

func (f *EC2) group(id string) *ec2types.SecurityGroup {
	i := slices.IndexFunc(f.groups, func(g *ec2types.SecurityGroup) bool { return aws.ToString(g.GroupId) == id })
	if i < 0 {
		return nil
	}
	return f.groups[i]
}

func (f *EC2) CreateSecurityGroup(_ context.Context, in *ec2.CreateSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	if err := f.record("CreateSecurityGroup"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	vpcID := aws.ToString(in.VpcId)
	if f.vpc(vpcID) == nil {
		return nil, APIError(awsx.CodeVpcNotFound, "The vpc ID '%s' does not exist", vpcID)
	}
	name := aws.ToString(in.GroupName)
	if slices.ContainsFunc(f.groups, func(g *ec2types.SecurityGroup) bool {
		return aws.ToString(g.VpcId) == vpcID && aws.ToString(g.GroupName) == name
	}) {
		return nil, APIError(awsx.CodeGroupDuplicate, "The security group '%s' already exists for VPC '%s'", name, vpcID)
	}

	g := &ec2types.SecurityGroup{
		GroupId:     aws.String(f.nextID("sg")),
		GroupName:   aws.String(name),
		Description: in.Description,
		VpcId:       aws.String(vpcID),
		OwnerId:     aws.String(Account),
		IpPermissionsEgress: []ec2types.IpPermission{{
			IpProtocol: aws.String("-1"),
			IpRanges:   []ec2types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
		}},
		Tags: specTags(in.TagSpecifications, ec2types.ResourceTypeSecurityGroup),
	}
	f.groups = append(f.groups, g)
	return &ec2.CreateSecurityGroupOutput{GroupId: g.GroupId}, nil
}

func (f *EC2) DescribeSecurityGroups(_ context.Context, in *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	if err := f.record("DescribeSecurityGroups"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	groups, err := onlyIDs(f.groups, in.GroupIds, func(g *ec2types.SecurityGroup) string { return aws.ToString(g.GroupId) }, awsx.CodeGroupNotFound)
	if err != nil {
		return nil, err
	}
	out := &ec2.DescribeSecurityGroupsOutput{}
	for _, g := range groups {
		if len(in.GroupNames) > 0 && !slices.Contains(in.GroupNames, aws.ToString(g.GroupName)) {
			continue
		}
		attr := func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{aws.ToString(g.VpcId)}
			case "group-id":
				return []string{aws.ToString(g.GroupId)}
			case "group-name":
				return []string{aws.ToString(g.GroupName)}
			}
			return tagAttr(g.Tags, name)
		}
		if matches(in.Filters, attr) {
			c := *g
			c.IpPermissions = slices.Clone(g.IpPermissions)
			c.IpPermissionsEgress = slices.Clone(g.IpPermissionsEgress)
			out.SecurityGroups = append(out.SecurityGroups, c)
		}
	}
	return out, nil
}

// permKey identifies a rule for duplicate detection.
func permKey(p ec2types.IpPermission) string {
	key := fmt.Sprintf("%s/%d/%d", aws.ToString(p.IpProtocol), aws.ToInt32(p.FromPort), aws.ToInt32(p.ToPort))
	var srcs []string
	for _, r := range p.IpRanges {
		srcs = append(srcs, aws.ToString(r.CidrIp))
	}
	for _, pair := range p.UserIdGroupPairs {
		srcs = append(srcs, aws.ToString(pair.GroupId))
	}
	slices.Sort(srcs)
	return fmt.Sprintf("%s%v", key, srcs)
}

func authorize(rules []ec2types.IpPermission, add []ec2types.IpPermission) ([]ec2types.IpPermission, error) {
	out := slices.Clone(rules)
	for _, p := range add {
		k := permKey(p)
		if slices.ContainsFunc(out, func(have ec2types.IpPermission) bool { return permKey(have) == k }) {
			return nil, APIError(awsx.CodePermissionDuplicate, "the specified rule %q already exists", k)
		}
		out = append(out, p)
	}
	return out, nil
}

func revoke(rules []ec2types.IpPermission, drop []ec2types.IpPermission) []ec2types.IpPermission {
	out := slices.Clone(rules)
	for _, p := range drop {
		k := permKey(p)
		out = slices.DeleteFunc(out, func(have ec2types.IpPermission) bool { return permKey(have) == k })
	}
	return out
}

func (f *EC2) AuthorizeSecurityGroupIngress(_ context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	if err := f.record("AuthorizeSecurityGroupIngress"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	g := f.group(aws.ToString(in.GroupId))
	if g == nil {
		return nil, APIError(awsx.CodeGroupNotFound, "The security group '%s' does not exist", aws.ToString(in.GroupId))
	}
	rules, err := authorize(g.IpPermissions, in.IpPermissions)
	if err != nil {
		return nil, err
	}
	g.IpPermissions = rules
	return &ec2.AuthorizeSecurityGroupIngressOutput{Return: aws.Bool(true)}, nil
}

func (f *EC2) AuthorizeSecurityGroupEgress(_ context.Context, in *ec2.AuthorizeSecurityGroupEgressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupEgressOutput, error) {
	if err := f.record("AuthorizeSecurityGroupEgress"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	g := f.group(aws.ToString(in.GroupId))
	if g == nil {
		return nil, APIError(awsx.CodeGroupNotFound, "The security group '%s' does not exist", aws.ToString(in.GroupId))
	}
	rules, err := authorize(g.IpPermissionsEgress, in.IpPermissions)
	if err != nil {
		return nil, err
	}
	g.IpPermissionsEgress = rules
	return &ec2.AuthorizeSecurityGroupEgressOutput{Return: aws.Bool(true)}, nil
}

func (f *EC2) RevokeSecurityGroupIngress(_ context.Context, in *ec2.RevokeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupIngressOutput, error) {
	if err := f.record("RevokeSecurityGroupIngress"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	g := f.group(aws.ToString(in.GroupId))
	if g == nil {
		return nil, APIError(awsx.CodeGroupNotFound, "The security group '%s' does not exist", aws.ToString(in.GroupId))
	}
	g.IpPermissions = revoke(g.IpPermissions, in.IpPermissions)
	return &ec2.RevokeSecurityGroupIngressOutput{Return: aws.Bool(true)}, nil
}

func (f *EC2) RevokeSecurityGroupEgress(_ context.Context, in *ec2.RevokeSecurityGroupEgressInput, _ ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupEgressOutput, error) {
	if err := f.record("RevokeSecurityGroupEgress"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	g := f.group(aws.ToString(in.GroupId))
	if g == nil {
		return nil, APIError(awsx.CodeGroupNotFound, "The security group '%s' does not exist", aws.ToString(in.GroupId))
	}
	g.IpPermissionsEgress = revoke(g.IpPermissionsEgress, in.IpPermissions)
	return &ec2.RevokeSecurityGroupEgressOutput{Return: aws.Bool(true)}, nil
}

func (f *EC2) DeleteSecurityGroup(_ context.Context, in *ec2.DeleteSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error) {
	if err := f.record("DeleteSecurityGroup"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(in.GroupId)
	g := f.group(id)
	if g == nil {
		return nil, APIError(awsx.CodeGroupNotFound, "The security group '%s' does not exist", id)
	}
	if aws.ToString(g.GroupName) == "default" {
		return nil, APIError(codeCannotDelete, "the default security group cannot be deleted")
	}
	inUse := slices.ContainsFunc(f.instances, func(i *ec2types.Instance) bool {
		return i.State.Name != ec2types.InstanceStateNameTerminated &&
			slices.ContainsFunc(i.SecurityGroups, func(gi ec2types.GroupIdentifier) bool { return aws.ToString(gi.GroupId) == id })
	})
	if inUse {
		return nil, APIError(awsx.CodeDependencyViolation, "resource %s has a dependent object", id)
	}
	f.groups = slices.DeleteFunc(f.groups, func(g *ec2types.SecurityGroup) bool { return aws.ToString(g.GroupId) == id })
	return &ec2.DeleteSecurityGroupOutput{}, nil
}

//
// Launch templates
//

func (f *EC2) template(id, name string) *ec2types.LaunchTemplate {
	i := slices.IndexFunc(f.templates, func(t *ec2types.LaunchTemplate) bool {
		return (id != "" && aws.ToString(t.LaunchTemplateId) == id) || (name != "" && aws.ToString(t.LaunchTemplateName) == name)
	})
	if i < 0 {
		return nil
	}
	return f.templates[i]
}

// TemplateVersions returns every version's data for the named template.
func (f *EC2) TemplateVersions(name string) []ec2types.RequestLaunchTemplateData {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.template("", name)
	if t == nil {
		return nil
	}
	return slices.Clone(f.versions[aws.ToString(t.LaunchTemplateId)])
}

func (f *EC2) CreateLaunchTemplate(_ context.Context, in *ec2.CreateLaunchTemplateInput, _ ...func(*ec2.Options)) (*ec2.CreateLaunchTemplateOutput, error) {
	if err := f.record("CreateLaunchTemplate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.LaunchTemplateName)
	if f.template("", name) != nil {
		return nil, APIError(awsx.CodeLaunchTemplateExists, "Launch template name already in use.")
	}
	if in.LaunchTemplateData == nil {
		return nil, APIError("MissingParameter", "The request must contain the parameter LaunchTemplateData")
	}
	f.ClientTokens = append(f.ClientTokens, aws.ToString(in.ClientToken))

	t := &ec2types.LaunchTemplate{
		LaunchTemplateId:     aws.String(f.nextID("lt")),
		LaunchTemplateName:   aws.String(name),
		DefaultVersionNumber: aws.Int64(1),
		LatestVersionNumber:  aws.Int64(1),
		CreateTime:           aws.Time(time.Now()),
		CreatedBy:            aws.String("arn:aws:iam::" + Account + ":user/tester"),
		Tags:                 specTags(in.TagSpecifications, ec2types.ResourceTypeLaunchTemplate),
	}
	f.templates = append(f.templates, t)
	f.versions[aws.ToString(t.LaunchTemplateId)] = []ec2types.RequestLaunchTemplateData{*in.LaunchTemplateData}
	out := *t
	return &ec2.CreateLaunchTemplateOutput{LaunchTemplate: &out}, nil
}

func (f *EC2) CreateLaunchTemplateVersion(_ context.Context, in *ec2.CreateLaunchTemplateVersionInput, _ ...func(*ec2.Options)) (*ec2.CreateLaunchTemplateVersionOutput, error) {
	if err := f.record("CreateLaunchTemplateVersion"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.template(aws.ToString(in.LaunchTemplateId), aws.ToString(in.LaunchTemplateName))
	if t == nil {
		return nil, APIError(awsx.CodeLaunchTemplateNoName, "The specified launch template does not exist.")
	}
	if in.LaunchTemplateData == nil {
		return nil, APIError("MissingParameter", "The request must contain the parameter LaunchTemplateData")
	}
	f.ClientTokens = append(f.ClientTokens, aws.ToString(in.ClientToken))

	id := aws.ToString(t.LaunchTemplateId)
	f.versions[id] = append(f.versions[id], *in.LaunchTemplateData)
	n := int64(len(f.versions[id]))
	t.LatestVersionNumber = aws.Int64(n)
	return &ec2.CreateLaunchTemplateVersionOutput{LaunchTemplateVersion: &ec2types.LaunchTemplateVersion{
		LaunchTemplateId:   t.LaunchTemplateId,
		LaunchTemplateName: t.LaunchTemplateName,
		VersionNumber:      aws.Int64(n),
		VersionDescription: in.VersionDescription,
		DefaultVersion:     aws.Bool(false),
		CreateTime:         aws.Time(time.Now()),
	}}, nil
}

func (f *EC2) ModifyLaunchTemplate(_ context.Context, in *ec2.ModifyLaunchTemplateInput, _ ...func(*ec2.Options)) (*ec2.ModifyLaunchTemplateOutput, error) {
	if err := f.record("ModifyLaunchTemplate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.template(aws.ToString(in.LaunchTemplateId), aws.ToString(in.LaunchTemplateName))
	if t == nil {
		return nil, APIError(awsx.CodeLaunchTemplateNoName, "The specified launch template does not exist.")
	}
	if in.DefaultVersion != nil {
		v, err := strconv.ParseInt(aws.ToString(in.DefaultVersion), 10, 64)
		if err != nil || v < 1 || v > aws.ToInt64(t.LatestVersionNumber) {
			return nil, APIError("InvalidLaunchTemplateVersion.NotFound", "version %q does not exist", aws.ToString(in.DefaultVersion))
		}
		t.DefaultVersionNumber = aws.Int64(v)
	}
	out := *t
	return &ec2.ModifyLaunchTemplateOutput{LaunchTemplate: &out}, nil
}

func (f *EC2) DescribeLaunchTemplates(_ context.Context, in *ec2.DescribeLaunchTemplatesInput, _ ...func(*ec2.Options)) (*ec2.DescribeLaunchTemplatesOutput, error) {
	if err := f.record("DescribeLaunchTemplates"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	templates, err := onlyIDs(f.templates, in.LaunchTemplateIds, func(t *ec2types.LaunchTemplate) string { return aws.ToString(t.LaunchTemplateId) }, awsx.CodeLaunchTemplateNotFound)
	if err != nil {
		return nil, err
	}
	out := &ec2.DescribeLaunchTemplatesOutput{}
	for _, t := range templates {
		if len(in.LaunchTemplateNames) > 0 && !slices.Contains(in.LaunchTemplateNames, aws.ToString(t.LaunchTemplateName)) {
			continue
		}
		attr := func(name string) []string {
			switch name {
			case "launch-template-name":
				return []string{aws.ToString(t.LaunchTemplateName)}
			}
			return tagAttr(t.Tags, name)
		}
		if matches(in.Filters, attr) {
			out.LaunchTemplates = append(out.LaunchTemplates, *t)
		}
	}
	return out, nil
}

func (f *EC2) DeleteLaunchTemplate(_ context.Context, in *ec2.DeleteLaunchTemplateInput, _ ...func(*ec2.Options)) (*ec2.DeleteLaunchTemplateOutput, error) {
	if err := f.record("DeleteLaunchTemplate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.template(aws.ToString(in.LaunchTemplateId), aws.ToString(in.LaunchTemplateName))
	if t == nil {
		return nil, APIError(awsx.CodeLaunchTemplateNotFound, "The specified launch template does not exist.")
	}
	id := aws.ToString(t.LaunchTemplateId)
	f.templates = slices.DeleteFunc(f.templates, func(t *ec2types.LaunchTemplate) bool { return aws.ToString(t.LaunchTemplateId) == id })
	delete(f.versions, id)
	out := *t
	return &ec2.DeleteLaunchTemplateOutput{LaunchTemplate: &out}, nil
}

//
// Instances
//

func (f *EC2) RunInstances(_ context.Context, in *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	if err := f.record("RunInstances"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var data ec2types.RequestLaunchTemplateData
	var tags []ec2types.Tag
	if spec := in.LaunchTemplate; spec != nil {
		t := f.template(aws.ToString(spec.LaunchTemplateId), aws.ToString(spec.LaunchTemplateName))
		if t == nil {
			return nil, APIError(awsx.CodeLaunchTemplateNoName, "The specified launch template does not exist.")
		}
		versions := f.versions[aws.ToString(t.LaunchTemplateId)]
		version := aws.ToInt64(t.DefaultVersionNumber)
		data = versions[version-1]
		tags = []ec2types.Tag{
			{Key: aws.String("aws:ec2launchtemplate:id"), Value: t.LaunchTemplateId},
			{Key: aws.String("aws:ec2launchtemplate:version"), Value: aws.String(strconv.FormatInt(version, 10))},
		}
	}
	tags = append(tags, specTags(in.TagSpecifications, ec2types.ResourceTypeInstance)...)

	sub := f.subnet(aws.ToString(in.SubnetId))
	if sub == nil {
		return nil, APIError(awsx.CodeSubnetNotFound, "The subnet ID '%s' does not exist", aws.ToString(in.SubnetId))
	}
	groupIDs := in.SecurityGroupIds
	if len(groupIDs) == 0 {
		groupIDs = data.SecurityGroupIds
	}
	var groups []ec2types.GroupIdentifier
	for _, id := range groupIDs {
		g := f.group(id)
		if g == nil {
			return nil, APIError(awsx.CodeGroupNotFound, "The security group '%s' does not exist", id)
		}
		groups = append(groups, ec2types.GroupIdentifier{GroupId: g.GroupId, GroupName: g.GroupName})
	}
	if in.ClientToken != nil {
		f.ClientTokens = append(f.ClientTokens, aws.ToString(in.ClientToken))
	}

	reservation := f.nextID("r")
	out := &ec2.RunInstancesOutput{ReservationId: aws.String(reservation), OwnerId: aws.String(Account)}
	count := max(int(aws.ToInt32(in.MaxCount)), 1)
	imageID := aws.ToString(in.ImageId)
	if imageID == "" {
		imageID = aws.ToString(data.ImageId)
	}
	for range count {
		id := f.nextID("i")
		inst := &ec2types.Instance{
			InstanceId:       aws.String(id),
			ImageId:          aws.String(imageID),
			InstanceType:     data.InstanceType,
			KeyName:          data.KeyName,
			SubnetId:         sub.SubnetId,
			VpcId:            sub.VpcId,
			PrivateIpAddress: aws.String(fmt.Sprintf("10.0.0.%d", f.seq%250+4)),
			Placement:        &ec2types.Placement{AvailabilityZone: sub.AvailabilityZone},
			LaunchTime:       aws.Time(time.Now()),
			State:            &ec2types.InstanceState{Code: aws.Int32(16), Name: ec2types.InstanceStateNameRunning},
			SecurityGroups:   groups,
			Tags:             slices.Clone(tags),
		}
		f.instances = append(f.instances, inst)
		f.reservation[id] = reservation

		pending := *inst
		pending.State = &ec2types.InstanceState{Code: aws.Int32(0), Name: ec2types.InstanceStateNamePending}
		out.Instances = append(out.Instances, pending)
	}
	return out, nil
}

func (f *EC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if err := f.record("DescribeInstances"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	instances, err := onlyIDs(f.instances, in.InstanceIds, func(i *ec2types.Instance) string { return aws.ToString(i.InstanceId) }, awsx.CodeInstanceNotFound)
	if err != nil {
		return nil, err
	}

	out := &ec2.DescribeInstancesOutput{}
	index := map[string]int{}
	for _, inst := range instances {
		attr := func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{aws.ToString(inst.VpcId)}
			case "subnet-id":
				return []string{aws.ToString(inst.SubnetId)}
			case "instance-id":
				return []string{aws.ToString(inst.InstanceId)}
			case "instance-state-name":
				return []string{string(inst.State.Name)}
			}
			return tagAttr(inst.Tags, name)
		}
		if !matches(in.Filters, attr) {
			continue
		}
		r := f.reservation[aws.ToString(inst.InstanceId)]
		i, ok := index[r]
		if !ok {
			out.Reservations = append(out.Reservations, ec2types.Reservation{ReservationId: aws.String(r), OwnerId: aws.String(Account)})
			i = len(out.Reservations) - 1
			index[r] = i
		}
		c := *inst
		c.State = &ec2types.InstanceState{Code: inst.State.Code, Name: inst.State.Name}
		out.Reservations[i].Instances = append(out.Reservations[i].Instances, c)
	}
	return out, nil
}

func (f *EC2) TerminateInstances(_ context.Context, in *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	if err := f.record("TerminateInstances"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	instances, err := onlyIDs(f.instances, in.InstanceIds, func(i *ec2types.Instance) string { return aws.ToString(i.InstanceId) }, awsx.CodeInstanceNotFound)
	if err != nil {
		return nil, err
	}
	out := &ec2.TerminateInstancesOutput{}
	for _, inst := range instances {
		prev := *inst.State
		inst.State = &ec2types.InstanceState{Code: aws.Int32(48), Name: ec2types.InstanceStateNameTerminated}
		out.TerminatingInstances = append(out.TerminatingInstances, ec2types.InstanceStateChange{
			InstanceId:    inst.InstanceId,
			PreviousState: &prev,
			CurrentState:  &ec2types.InstanceState{Code: aws.Int32(32), Name: ec2types.InstanceStateNameShuttingDown},
		})
	}
	return out, nil
}
