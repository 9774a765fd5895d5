// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package compute

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/subfish/subfish/internal/network"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/state"
)

// Tags AWS puts on instances launched from a template.
const (
	TagLaunchTemplateID      = "aws:ec2launchtemplate:id"
	TagLaunchTemplateVersion = "aws:ec2launchtemplate:version"
)

// DefaultVersion selects whatever version of a template is the default.
const DefaultVersion = "$Default"

// Compute manages launch templates, instances and autoscaling groups.
type Compute struct {
	resource.Base
}

// New returns a Compute over base.
func New(base resource.Base) *Compute {
	return &Compute{Base: base}
}

func (c *Compute) cachedTemplates() ([]ec2types.LaunchTemplate, error) {
	var templates []ec2types.LaunchTemplate
	if err := c.Store.Get(state.KeyLaunchTemplates, &templates); err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}
	return templates, nil
}

// TemplateID returns the id of the cached launch template called name.
func (c *Compute) TemplateID(name string) (string, error) {
	templates, err := c.cachedTemplates()
	if err != nil {
		return "", err
	}
	for _, t := range templates {
		if aws.ToString(t.LaunchTemplateName) == name {
			return aws.ToString(t.LaunchTemplateId), nil
		}
	}
	return "", fmt.Errorf("launch template %s: %w", name, state.ErrNotFound)
}

// subnets returns the cached subnets of group, or ErrNotFound when it has
// none.
func (c *Compute) subnets(group int) ([]string, error) {
	ids := network.New(c.Base).AffinitySubnets(group)
	if len(ids) == 0 {
		return nil, fmt.Errorf("subnets for affinity group %d: %w", group, state.ErrNotFound)
	}
	return ids, nil
}
