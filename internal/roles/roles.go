// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/render"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/state"
)

// ErrNoPolicy is returned when no managed policy has the requested name.
var ErrNoPolicy = errors.New("no such managed policy")

// Roles manages the cached IAM roles.
type Roles struct {
	resource.Base
}

// New returns Roles over base.
func New(base resource.Base) *Roles {
	return &Roles{Base: base}
}

func (r *Roles) cached() ([]iamtypes.Role, error) {
	var roles []iamtypes.Role
	if err := r.Store.Get(state.KeyRoles, &roles); err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}
	return roles, nil
}

// RoleARN returns the ARN of the cached role called name.
func (r *Roles) RoleARN(name string) (string, bool) {
	roles, err := r.cached()
	if err != nil {
		return "", false
	}
	for _, role := range roles {
		if aws.ToString(role.RoleName) == name {
			return aws.ToString(role.Arn), true
		}
	}
	return "", false
}

// PolicyARN looks up the ARN of the managed policy called name.
func (r *Roles) PolicyARN(ctx context.Context, name string) (string, error) {
	p := iam.NewListPoliciesPaginator(r.Clients.IAM, &iam.ListPoliciesInput{Scope: iamtypes.PolicyScopeTypeAll})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list policies: %w", err)
		}
		awsx.LogResponse("ListPolicies", page.ResultMetadata, nil)
		for _, policy := range page.Policies {
			if aws.ToString(policy.PolicyName) == name {
				log.Debugf("policy %s: %s", name, aws.ToString(policy.Arn))
				return aws.ToString(policy.Arn), nil
			}
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrNoPolicy)
}

// resolve turns policy names into ARNs. ARNs pass through.
func (r *Roles) resolve(ctx context.Context, policies []string) ([]string, error) {
	arns := make([]string, 0, len(policies))
	for _, p := range policies {
		if strings.HasPrefix(p, "arn:") {
			arns = append(arns, p)
			continue
		}
		arn, err := r.PolicyARN(ctx, p)
		if err != nil {
			return nil, err
		}
		arns = append(arns, arn)
	}
	return arns, nil
}

// CreateRole creates the role called name, or adopts it when IAM already has
// it, then attaches policies (names or ARNs) and puts the inline policy from
// role_policies/<name> when there is one. A cached role IAM no longer knows
// is forgotten and created again. A cached role that still exists gets any
// policy an interrupted run missed.
func (r *Roles) CreateRole(ctx context.Context, name string, policies []string) error {
	if _, ok := r.RoleARN(name); ok {
		out, err := r.Clients.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
		switch {
		case awsx.IsCode(err, awsx.CodeNoSuchEntity):
			log.Warnf("role %s no longer exists", name)
			if err := r.forget(ctx, name); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("failed to get role %s: %w", name, err)
		default:
			awsx.LogResponse("GetRole", out.ResultMetadata, out.Role)
			log.Debugf("role cached: name=%s", name)
			if err := r.remember(ctx, *out.Role); err != nil {
				return err
			}
			arns, err := r.resolve(ctx, policies)
			if err != nil {
				return err
			}
			return r.grant(ctx, name, arns)
		}
	}

	arns, err := r.resolve(ctx, policies)
	if err != nil {
		return err
	}
	trust, err := r.Render.Text(render.AssumePolicies, name, r.TemplateVars(nil))
	if err != nil {
		return err
	}

	log.Infof("creating role: name=%s", name)
	var role iamtypes.Role
	out, err := r.Clients.IAM.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(string(trust)),
	})
	switch {
	case awsx.IsCode(err, awsx.CodeEntityAlreadyExists):
		log.Infof("adopting existing role %s", name)
		got, err := r.Clients.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
		if err != nil {
			return fmt.Errorf("failed to get role %s: %w", name, err)
		}
		awsx.LogResponse("GetRole", got.ResultMetadata, got.Role)
		role = *got.Role
	case err != nil:
		return fmt.Errorf("failed to create role %s: %w", name, err)
	default:
		awsx.LogResponse("CreateRole", out.ResultMetadata, out.Role)
		role = *out.Role
	}
	if err := r.remember(ctx, role); err != nil {
		return err
	}
	return r.grant(ctx, name, arns)
}

// grant attaches the managed policies in arns the role called name lacks and
// puts its inline policy when role_policies/<name> exists.
func (r *Roles) grant(ctx context.Context, name string, arns []string) error {
	attached := map[string]bool{}
	p := iam.NewListAttachedRolePoliciesPaginator(r.Clients.IAM, &iam.ListAttachedRolePoliciesInput{RoleName: aws.String(name)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list policies of %s: %w", name, err)
		}
		for _, a := range page.AttachedPolicies {
			attached[aws.ToString(a.PolicyArn)] = true
		}
	}

	for _, arn := range arns {
		if attached[arn] {
			log.Debugf("policy attached: role=%s policy=%s", name, arn)
			continue
		}
		log.Infof("attaching policy: role=%s policy=%s", name, arn)
		res, err := r.Clients.IAM.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(name),
			PolicyArn: aws.String(arn),
		})
		if err != nil {
			return fmt.Errorf("failed to attach %s to %s: %w", arn, name, err)
		}
		awsx.LogResponse("AttachRolePolicy", res.ResultMetadata, nil)
	}

	if !r.Render.Exists(render.RolePolicies, name) {
		return nil
	}
	doc, err := r.Render.Text(render.RolePolicies, name, r.TemplateVars(nil))
	if err != nil {
		return err
	}
	log.Infof("putting inline policy: role=%s", name)
	res, err := r.Clients.IAM.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(name),
		PolicyName:     aws.String(name),
		PolicyDocument: aws.String(string(doc)),
	})
	if err != nil {
		return fmt.Errorf("failed to put inline policy on %s: %w", name, err)
	}
	awsx.LogResponse("PutRolePolicy", res.ResultMetadata, nil)
	return nil
}

// remember caches role, replacing an entry with the same name, and saves.
func (r *Roles) remember(ctx context.Context, role iamtypes.Role) error {
	roles, err := r.cached()
	if err != nil {
		return err
	}
	replaced := false
	for i := range roles {
		if aws.ToString(roles[i].RoleName) == aws.ToString(role.RoleName) {
			roles[i] = role
			replaced = true
		}
	}
	if !replaced {
		roles = append(roles, role)
	}
	return r.SetAndSave(ctx, state.KeyRoles, roles)
}

// forget drops the role called name from the cache and saves.
func (r *Roles) forget(ctx context.Context, name string) error {
	roles, err := r.cached()
	if err != nil {
		return err
	}
	var keep []iamtypes.Role
	for _, role := range roles {
		if aws.ToString(role.RoleName) != name {
			keep = append(keep, role)
		}
	}
	if len(keep) == 0 {
		return r.DeleteAndSave(ctx, state.KeyRoles)
	}
	return r.SetAndSave(ctx, state.KeyRoles, keep)
}

// RefreshRoles re-reads every cached role. Roles IAM no longer has are
// dropped.
func (r *Roles) RefreshRoles(ctx context.Context) error {
	roles, err := r.cached()
	if err != nil {
		return err
	}
	for _, role := range roles {
		name := aws.ToString(role.RoleName)
		out, err := r.Clients.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
		if awsx.IsCode(err, awsx.CodeNoSuchEntity) {
			if err := r.forget(ctx, name); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to get role %s: %w", name, err)
		}
		awsx.LogResponse("GetRole", out.ResultMetadata, out.Role)
		if err := r.remember(ctx, *out.Role); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRoles detaches the managed policies, deletes the inline policies
// and then deletes every cached role.
func (r *Roles) DeleteRoles(ctx context.Context) error {
	if !r.Store.Has(state.KeyRoles) {
		return nil
	}
	roles, err := r.cached()
	if err != nil {
		return err
	}

	for _, role := range roles {
		name := aws.ToString(role.RoleName)
		if err := r.strip(ctx, name); err != nil {
			return err
		}
		log.Infof("deleting role: name=%s", name)
		out, err := r.Clients.IAM.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(name)})
		if err := awsx.IgnoreCode(err, awsx.CodeNoSuchEntity); err != nil {
			return fmt.Errorf("failed to delete role %s: %w", name, err)
		}
		if out != nil {
			awsx.LogResponse("DeleteRole", out.ResultMetadata, nil)
		}
	}
	return r.DeleteAndSave(ctx, state.KeyRoles)
}

// strip removes every policy from the role called name.
func (r *Roles) strip(ctx context.Context, name string) error {
	attached := iam.NewListAttachedRolePoliciesPaginator(r.Clients.IAM, &iam.ListAttachedRolePoliciesInput{RoleName: aws.String(name)})
	for attached.HasMorePages() {
		page, err := attached.NextPage(ctx)
		if awsx.IsCode(err, awsx.CodeNoSuchEntity) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list policies of %s: %w", name, err)
		}
		for _, p := range page.AttachedPolicies {
			log.Debugf("detaching policy: role=%s policy=%s", name, aws.ToString(p.PolicyArn))
			out, err := r.Clients.IAM.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
				RoleName:  aws.String(name),
				PolicyArn: p.PolicyArn,
			})
			if err := awsx.IgnoreCode(err, awsx.CodeNoSuchEntity); err != nil {
				return fmt.Errorf("failed to detach %s from %s: %w", aws.ToString(p.PolicyArn), name, err)
			}
			if out != nil {
				awsx.LogResponse("DetachRolePolicy", out.ResultMetadata, nil)
			}
		}
	}

	inline := iam.NewListRolePoliciesPaginator(r.Clients.IAM, &iam.ListRolePoliciesInput{RoleName: aws.String(name)})
	for inline.HasMorePages() {
		page, err := inline.NextPage(ctx)
		if awsx.IsCode(err, awsx.CodeNoSuchEntity) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list inline policies of %s: %w", name, err)
		}
		for _, policy := range page.PolicyNames {
			log.Debugf("deleting inline policy: role=%s policy=%s", name, policy)
			out, err := r.Clients.IAM.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
				RoleName:   aws.String(name),
				PolicyName: aws.String(policy),
			})
			if err := awsx.IgnoreCode(err, awsx.CodeNoSuchEntity); err != nil {
				return fmt.Errorf("failed to delete inline policy %s of %s: %w", policy, name, err)
			}
			if out != nil {
				awsx.LogResponse("DeleteRolePolicy", out.ResultMetadata, nil)
			}
		}
	}
	return nil
}
