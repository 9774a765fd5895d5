// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package compute

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/render"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/state"
)

// LaunchTemplateData renders launch_templates/<name>.
func (c *Compute) LaunchTemplateData(name string, vars map[string]any) (*ec2types.RequestLaunchTemplateData, error) {
	var data ec2types.RequestLaunchTemplateData
	if err := c.Render.JSON(render.LaunchTemplates, name, c.TemplateVars(vars), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// CreateLaunchTemplate creates the launch template called name from its
// template file. A template AWS already has is left alone.
func (c *Compute) CreateLaunchTemplate(ctx context.Context, name string, vars map[string]any) error {
	data, err := c.LaunchTemplateData(name, vars)
	if err != nil {
		return err
	}

	log.Infof("creating launch template: name=%s", name)
	out, err := c.Clients.EC2.CreateLaunchTemplate(ctx, &ec2.CreateLaunchTemplateInput{
		LaunchTemplateName: aws.String(name),
		LaunchTemplateData: data,
		ClientToken:        aws.String(uuid.NewString()),
	})
	switch {
	case awsx.IsCode(err, awsx.CodeLaunchTemplateExists):
		log.Warnf("launch template %s: %s", name, awsx.ErrorMessage(err))
	case err != nil:
		return fmt.Errorf("failed to create launch template %s: %w", name, err)
	default:
		awsx.LogResponse("CreateLaunchTemplate", out.ResultMetadata, out.LaunchTemplate)
	}

	return c.RefreshLaunchTemplates(ctx)
}

// ModifyLaunchTemplate adds a version rendered from the template file and
// makes it the default.
func (c *Compute) ModifyLaunchTemplate(ctx context.Context, name string, vars map[string]any) error {
	data, err := c.LaunchTemplateData(name, vars)
	if err != nil {
		return err
	}

	out, err := c.Clients.EC2.CreateLaunchTemplateVersion(ctx, &ec2.CreateLaunchTemplateVersionInput{
		LaunchTemplateName: aws.String(name),
		LaunchTemplateData: data,
		ClientToken:        aws.String(uuid.NewString()),
	})
	if err != nil {
		return fmt.Errorf("failed to version launch template %s: %w", name, err)
	}
	awsx.LogResponse("CreateLaunchTemplateVersion", out.ResultMetadata, out.LaunchTemplateVersion)
	version := strconv.FormatInt(aws.ToInt64(out.LaunchTemplateVersion.VersionNumber), 10)

	log.Infof("setting default version: name=%s version=%s", name, version)
	mod, err := c.Clients.EC2.ModifyLaunchTemplate(ctx, &ec2.ModifyLaunchTemplateInput{
		LaunchTemplateName: aws.String(name),
		DefaultVersion:     aws.String(version),
	})
	if err != nil {
		return fmt.Errorf("failed to set default version of %s: %w", name, err)
	}
	awsx.LogResponse("ModifyLaunchTemplate", mod.ResultMetadata, mod.LaunchTemplate)

	return c.RefreshLaunchTemplates(ctx)
}

// RefreshLaunchTemplates re-reads the templates named by the files in
// launch_templates.
func (c *Compute) RefreshLaunchTemplates(ctx context.Context) error {
	names, err := c.Render.Names(render.LaunchTemplates)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return c.DeleteAndSave(ctx, state.KeyLaunchTemplates)
	}

	var templates []ec2types.LaunchTemplate
	p := ec2.NewDescribeLaunchTemplatesPaginator(c.Clients.EC2, &ec2.DescribeLaunchTemplatesInput{
		Filters: []ec2types.Filter{resource.Filter("launch-template-name", names...)},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to describe launch templates: %w", err)
		}
		awsx.LogResponse("DescribeLaunchTemplates", page.ResultMetadata, page.LaunchTemplates)
		templates = append(templates, page.LaunchTemplates...)
	}

	if len(templates) == 0 {
		return c.DeleteAndSave(ctx, state.KeyLaunchTemplates)
	}
	return c.SetAndSave(ctx, state.KeyLaunchTemplates, templates)
}

// DeleteLaunchTemplates deletes every cached launch template.
func (c *Compute) DeleteLaunchTemplates(ctx context.Context) error {
	if !c.Store.Has(state.KeyLaunchTemplates) {
		return nil
	}
	templates, err := c.cachedTemplates()
	if err != nil {
		return err
	}

	for _, t := range templates {
		id := aws.ToString(t.LaunchTemplateId)
		log.Infof("deleting launch template: name=%s id=%s", aws.ToString(t.LaunchTemplateName), id)
		out, err := c.Clients.EC2.DeleteLaunchTemplate(ctx, &ec2.DeleteLaunchTemplateInput{LaunchTemplateId: aws.String(id)})
		if err := awsx.IgnoreCode(err, awsx.CodeLaunchTemplateNotFound, awsx.CodeLaunchTemplateNoName); err != nil {
			return fmt.Errorf("failed to delete launch template %s: %w", id, err)
		}
		if out != nil {
			awsx.LogResponse("DeleteLaunchTemplate", out.ResultMetadata, nil)
		}
	}
	return c.DeleteAndSave(ctx, state.KeyLaunchTemplates)
}
