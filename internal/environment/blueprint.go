// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/subfish/subfish/internal/cluster"
	"github.com/subfish/subfish/internal/compute"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/render"
)

// Blueprint defaults.
const (
	DefaultGroups          = 1
	DefaultSubnetsPerGroup = 3
)

// SecurityGroupSpec names a security group and the vars its authorization
// templates are rendered with.
type SecurityGroupSpec struct {
	Name string         `yaml:"name"`
	Vars map[string]any `yaml:"vars,omitempty"`
}

// RoleSpec names a role and the managed policies, by name or ARN, attached to
// it.
type RoleSpec struct {
	Name     string   `yaml:"name"`
	Policies []string `yaml:"policies,omitempty"`
}

// InstanceSpec launches one instance from a template into an affinity group.
type InstanceSpec struct {
	Template      string `yaml:"template"`
	Group         int    `yaml:"group"`
	SecurityGroup string `yaml:"security_group,omitempty"`
}

// Blueprint describes a topology.
type Blueprint struct {
	CIDR              string              `yaml:"cidr,omitempty"`
	Groups            int                 `yaml:"groups,omitempty"`
	SubnetsPerGroup   int                 `yaml:"subnets_per_group,omitempty"`
	NAT               bool                `yaml:"nat,omitempty"`
	SecurityGroups    []SecurityGroupSpec `yaml:"security_groups,omitempty"`
	Roles             []RoleSpec          `yaml:"roles,omitempty"`
	LaunchTemplates   []string            `yaml:"launch_templates,omitempty"`
	Instances         []InstanceSpec      `yaml:"instances,omitempty"`
	AutoScalingGroups []compute.GroupSpec `yaml:"autoscaling_groups,omitempty"`
	Cluster           *cluster.Spec       `yaml:"cluster,omitempty"`
	Vars              map[string]any      `yaml:"vars,omitempty"`
}

// BlueprintPath returns the blueprint file of dir. An empty name selects
// blueprint.yaml.
func BlueprintPath(dir, name string) string {
	if name == "" {
		return filepath.Join(dir, render.BlueprintFileName)
	}
	return filepath.Join(dir, name+".yaml")
}

// LoadBlueprint reads and validates the blueprint at path. A missing file
// yields the default blueprint.
func LoadBlueprint(path string) (*Blueprint, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debugf("no blueprint at %s, using defaults", path)
		raw = nil
	} else if err != nil {
		return nil, err
	}
	bp, err := ParseBlueprint(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bp, nil
}

// ParseBlueprint decodes raw strictly, applies defaults and validates.
func ParseBlueprint(raw []byte) (*Blueprint, error) {
	bp := &Blueprint{}
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(bp); err != nil {
			return nil, fmt.Errorf("invalid blueprint: %w", err)
		}
	}
	if bp.Groups == 0 {
		bp.Groups = DefaultGroups
	}
	if bp.SubnetsPerGroup == 0 {
		bp.SubnetsPerGroup = DefaultSubnetsPerGroup
	}
	if bp.Vars == nil {
		bp.Vars = map[string]any{}
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	return bp, nil
}

// Validate checks that every reference in bp resolves.
func (bp *Blueprint) Validate() error {
	var errs []error
	if bp.Groups < 1 {
		errs = append(errs, fmt.Errorf("groups must be at least 1, got %d", bp.Groups))
	}
	if bp.SubnetsPerGroup < 1 {
		errs = append(errs, fmt.Errorf("subnets_per_group must be at least 1, got %d", bp.SubnetsPerGroup))
	}

	inGroups := func(what string, g int) {
		if g < 0 || g >= bp.Groups {
			errs = append(errs, fmt.Errorf("%s: group %d outside 0..%d", what, g, bp.Groups-1))
		}
	}
	sgNames := make([]string, 0, len(bp.SecurityGroups))
	for _, sg := range bp.SecurityGroups {
		if sg.Name == "" {
			errs = append(errs, errors.New("security group without a name"))
		}
		sgNames = append(sgNames, sg.Name)
	}
	knownSG := func(what, name string) {
		if name != "" && !slices.Contains(sgNames, name) {
			errs = append(errs, fmt.Errorf("%s: unknown security group %q", what, name))
		}
	}
	knownTemplate := func(what, name string) {
		if len(bp.LaunchTemplates) > 0 && !slices.Contains(bp.LaunchTemplates, name) {
			errs = append(errs, fmt.Errorf("%s: unknown launch template %q", what, name))
		}
	}

	for i, in := range bp.Instances {
		what := fmt.Sprintf("instance %d", i)
		if in.Template == "" {
			errs = append(errs, fmt.Errorf("%s: no template", what))
		}
		knownTemplate(what, in.Template)
		inGroups(what, in.Group)
		sg := in.SecurityGroup
		if sg == "" {
			sg = compute.DefaultSecurityGroup
		}
		knownSG(what, sg)
	}
	for _, asg := range bp.AutoScalingGroups {
		what := "autoscaling group " + asg.Name
		if asg.Name == "" {
			errs = append(errs, errors.New("autoscaling group without a name"))
		}
		if asg.Min > asg.Max {
			errs = append(errs, fmt.Errorf("%s: min %d exceeds max %d", what, asg.Min, asg.Max))
		}
		knownTemplate(what, asg.LaunchTemplate)
		inGroups(what, asg.Group)
	}
	if c := bp.Cluster; c != nil {
		what := "cluster " + c.Name
		if c.Name == "" {
			errs = append(errs, errors.New("cluster without a name"))
		}
		if !slices.ContainsFunc(bp.Roles, func(r RoleSpec) bool { return r.Name == c.Role }) {
			errs = append(errs, fmt.Errorf("%s: unknown role %q", what, c.Role))
		}
		for _, g := range c.Groups {
			inGroups(what, g)
		}
		for _, sg := range c.SecurityGroups {
			knownSG(what, sg)
		}
	}
	return errors.Join(errs...)
}
