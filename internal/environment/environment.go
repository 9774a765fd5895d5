// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"context"
	"fmt"
	"maps"

	"github.com/subfish/subfish/internal/cluster"
	"github.com/subfish/subfish/internal/compute"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/network"
	"github.com/subfish/subfish/internal/render"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/roles"
	"github.com/subfish/subfish/internal/secgroup"
	"github.com/subfish/subfish/internal/state"
)

// Environment drives every facade over one Base.
type Environment struct {
	Network        *network.Network
	SecurityGroups *secgroup.SecurityGroups
	Roles          *roles.Roles
	Compute        *compute.Compute
	Cluster        *cluster.Cluster

	base resource.Base
}

// New returns an Environment over base.
func New(base resource.Base) *Environment {
	return &Environment{
		Network:        network.New(base),
		SecurityGroups: secgroup.New(base),
		Roles:          roles.New(base),
		Compute:        compute.New(base),
		Cluster:        cluster.New(base),
		base:           base,
	}
}

// step is one named stage of Up, Down or Refresh.
type step struct {
	name string
	fn   func(context.Context) error
}

func run(ctx context.Context, verb string, steps []step) error {
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Infof("%s %d/%d: %s", verb, i+1, len(steps), s.name)
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s %s: %w", verb, s.name, err)
		}
	}
	return nil
}

// Up creates everything bp describes that the cache does not already hold.
func (e *Environment) Up(ctx context.Context, bp *Blueprint) error {
	if err := bp.Validate(); err != nil {
		return err
	}
	maps.Copy(e.base.Render.Vars, bp.Vars)
	return run(ctx, "up", e.upSteps(bp))
}

func (e *Environment) upSteps(bp *Blueprint) []step {
	steps := []step{
		{"vpc", func(ctx context.Context) error { return e.Network.CreateVPC(ctx, bp.CIDR) }},
		{"subnets", func(ctx context.Context) error { return e.subnets(ctx, bp) }},
		{"route tables", func(ctx context.Context) error { return e.routeTables(ctx, bp) }},
		{"internet gateway", func(ctx context.Context) error { return e.Network.CreateInternetGateway(ctx, 0) }},
	}
	if bp.NAT {
		steps = append(steps, step{"nat gateway", func(ctx context.Context) error { return e.nat(ctx, bp) }})
	}
	if len(bp.SecurityGroups) > 0 {
		steps = append(steps, step{"security groups", func(ctx context.Context) error { return e.securityGroups(ctx, bp) }})
	}
	if len(bp.Roles) > 0 {
		steps = append(steps, step{"roles", func(ctx context.Context) error { return e.roles(ctx, bp) }})
	}
	steps = append(steps, step{"launch templates", func(ctx context.Context) error { return e.launchTemplates(ctx, bp) }})
	if len(bp.Instances) > 0 {
		steps = append(steps, step{"instances", func(ctx context.Context) error { return e.instances(ctx, bp) }})
	}
	if len(bp.AutoScalingGroups) > 0 {
		steps = append(steps, step{"autoscaling groups", func(ctx context.Context) error { return e.autoScalingGroups(ctx, bp) }})
	}
	if bp.Cluster != nil {
		steps = append(steps, step{"cluster", func(ctx context.Context) error { return e.Cluster.CreateCluster(ctx, *bp.Cluster) }})
	}
	return steps
}

// subnets tops every group up to SubnetsPerGroup subnets.
func (e *Environment) subnets(ctx context.Context, bp *Blueprint) error {
	for g := range bp.Groups {
		for have := len(e.Network.AffinitySubnets(g)); have < bp.SubnetsPerGroup; have++ {
			if err := e.Network.CreateSubnet(ctx, g); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Environment) routeTables(ctx context.Context, bp *Blueprint) error {
	for g := range bp.Groups {
		if err := e.Network.CreateRouteTable(ctx, g); err != nil {
			return err
		}
		if err := e.Network.AssociateRouteTable(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// nat puts the NAT gateway in group 0 and routes every other group through
// it.
func (e *Environment) nat(ctx context.Context, bp *Blueprint) error {
	if err := e.Network.CreateNatGateway(ctx, 0); err != nil {
		return err
	}
	for g := 1; g < bp.Groups; g++ {
		if err := e.Network.CreateNatDefaultRoute(ctx, g, 0); err != nil {
			return err
		}
	}
	return nil
}

// securityGroups creates every group before authorizing any, so rules can
// reference groups declared later.
func (e *Environment) securityGroups(ctx context.Context, bp *Blueprint) error {
	for _, sg := range bp.SecurityGroups {
		if err := e.SecurityGroups.CreateSecurityGroup(ctx, sg.Name); err != nil {
			return err
		}
	}
	for _, sg := range bp.SecurityGroups {
		if err := e.SecurityGroups.Authorize(ctx, sg.Name, sg.Vars); err != nil {
			return err
		}
	}
	return nil
}

func (e *Environment) roles(ctx context.Context, bp *Blueprint) error {
	for _, r := range bp.Roles {
		if err := e.Roles.CreateRole(ctx, r.Name, r.Policies); err != nil {
			return err
		}
	}
	return nil
}

// launchTemplates creates the listed templates, or every template in the
// config dir when none are listed.
func (e *Environment) launchTemplates(ctx context.Context, bp *Blueprint) error {
	names := bp.LaunchTemplates
	if len(names) == 0 {
		var err error
		if names, err = e.base.Render.Names(render.LaunchTemplates); err != nil {
			return err
		}
	}
	for _, name := range names {
		if _, err := e.Compute.TemplateID(name); err == nil {
			log.Debugf("launch template cached: name=%s", name)
			continue
		}
		if err := e.Compute.CreateLaunchTemplate(ctx, name, nil); err != nil {
			return err
		}
	}
	return nil
}

func (e *Environment) instances(ctx context.Context, bp *Blueprint) error {
	for _, in := range bp.Instances {
		if err := e.Compute.RunInstance(ctx, in.Template, in.Group, in.SecurityGroup); err != nil {
			return err
		}
	}
	return nil
}

func (e *Environment) autoScalingGroups(ctx context.Context, bp *Blueprint) error {
	for _, spec := range bp.AutoScalingGroups {
		if err := e.Compute.CreateAutoScalingGroup(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

// Down deletes everything cached, in exactly the reverse order of Up. Kinds
// that are not cached are skipped.
func (e *Environment) Down(ctx context.Context) error {
	return run(ctx, "down", []step{
		{"cluster", e.Cluster.DeleteCluster},
		{"autoscaling groups", e.Compute.DeleteAutoScalingGroups},
		{"instances", e.Compute.TerminateInstances},
		{"launch templates", e.Compute.DeleteLaunchTemplates},
		{"roles", e.Roles.DeleteRoles},
		{"security groups", e.SecurityGroups.DeleteSecurityGroups},
		{"nat gateway", e.Network.DeleteNatGateways},
		{"internet gateway", e.Network.DeleteInternetGateway},
		{"route tables", e.Network.DeleteRouteTables},
		{"subnets", e.Network.DeleteSubnets},
		{"vpc", e.Network.DeleteVPC},
	})
}

// Refresh re-reads every cached kind. VPC scoped kinds are skipped once the
// VPC is gone.
func (e *Environment) Refresh(ctx context.Context) error {
	store := e.base.Store
	steps := []step{}
	if store.Has(state.KeyVpc) {
		steps = append(steps, step{"vpc", e.Network.RefreshVPC})
	}
	steps = append(steps, step{"network", func(ctx context.Context) error {
		if !store.Has(state.KeyVpc) {
			return nil
		}
		return run(ctx, "refresh", []step{
			{"subnets", e.Network.RefreshSubnets},
			{"route tables", e.Network.RefreshRouteTables},
			{"internet gateway", e.Network.RefreshInternetGateway},
			{"nat gateways", e.Network.RefreshNatGateways},
			{"security groups", e.SecurityGroups.RefreshSecurityGroups},
			{"instances", e.Compute.RefreshInstances},
		})
	}})
	steps = append(steps,
		step{"launch templates", e.Compute.RefreshLaunchTemplates},
		step{"autoscaling groups", e.Compute.RefreshAutoScalingGroups},
		step{"roles", e.Roles.RefreshRoles},
		step{"cluster", e.Cluster.RefreshCluster},
	)
	return run(ctx, "refresh", steps)
}
