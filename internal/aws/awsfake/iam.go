// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package awsfake

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	awsx "github.com/subfish/subfish/internal/aws"
)

var _ awsx.IAMAPI = (*IAM)(nil)

// ManagedPolicies are the AWS managed policies the fake knows about.
var ManagedPolicies = []string{
	"AmazonEC2ContainerRegistryReadOnly",
	"AmazonEKSClusterPolicy",
	"AmazonEKSServicePolicy",
	"AmazonEKSWorkerNodePolicy",
	"AmazonEKS_CNI_Policy",
	"AmazonSSMManagedInstanceCore",
}

// IAM is an in-memory IAM.
type IAM struct {
	recorder

	// PageSize caps ListPolicies pages; 0 returns everything at once.
	PageSize int

	mu       sync.Mutex
	seq      int
	policies []iamtypes.Policy
	roles    map[string]*iamtypes.Role
	attached map[string][]iamtypes.AttachedPolicy
	inline   map[string]map[string]string
}

// NewIAM returns an IAM holding ManagedPolicies and no roles.
func NewIAM() *IAM {
	f := &IAM{
		roles:    map[string]*iamtypes.Role{},
		attached: map[string][]iamtypes.AttachedPolicy{},
		inline:   map[string]map[string]string{},
	}
	for _, name := range ManagedPolicies {
		f.policies = append(f.policies, iamtypes.Policy{
			PolicyName: aws.String(name),
			Arn:        aws.String("arn:aws:iam::aws:policy/" + name),
			PolicyId:   aws.String(fmt.Sprintf("ANPA%016d", len(f.policies)+1)),
		})
	}
	return f
}

// SeedRole adds a role directly, bypassing the API.
func (f *IAM) SeedRole(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[name] = f.newRole(name, "{}")
}

// InlinePolicy returns the inline policy document stored under role/name.
func (f *IAM) InlinePolicy(role, name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.inline[role][name]
	return doc, ok
}

// AttachedARNs returns the managed policy ARNs attached to role.
func (f *IAM) AttachedARNs(role string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var arns []string
	for _, p := range f.attached[role] {
		arns = append(arns, aws.ToString(p.PolicyArn))
	}
	return arns
}

func (f *IAM) newRole(name, doc string) *iamtypes.Role {
	f.seq++
	return &iamtypes.Role{
		RoleName:                 aws.String(name),
		RoleId:                   aws.String(fmt.Sprintf("AROA%016d", f.seq)),
		Arn:                      aws.String("arn:aws:iam::" + Account + ":role/" + name),
		Path:                     aws.String("/"),
		AssumeRolePolicyDocument: aws.String(doc),
		CreateDate:               aws.Time(time.Now().UTC()),
		MaxSessionDuration:       aws.Int32(3600),
	}
}

func noSuchRole(name string) error {
	return &iamtypes.NoSuchEntityException{Message: aws.String("The role with name " + name + " cannot be found.")}
}

func (f *IAM) GetRole(_ context.Context, in *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	if err := f.record("GetRole"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.roles[aws.ToString(in.RoleName)]
	if !ok {
		return nil, noSuchRole(aws.ToString(in.RoleName))
	}
	out := *r
	return &iam.GetRoleOutput{Role: &out}, nil
}

func (f *IAM) CreateRole(_ context.Context, in *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	if err := f.record("CreateRole"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.RoleName)
	if _, ok := f.roles[name]; ok {
		return nil, &iamtypes.EntityAlreadyExistsException{Message: aws.String("Role with name " + name + " already exists.")}
	}
	doc := aws.ToString(in.AssumeRolePolicyDocument)
	if !json.Valid([]byte(doc)) {
		return nil, &iamtypes.MalformedPolicyDocumentException{Message: aws.String("This policy contains invalid Json")}
	}
	r := f.newRole(name, doc)
	r.Description = in.Description
	f.roles[name] = r
	out := *r
	return &iam.CreateRoleOutput{Role: &out}, nil
}

func (f *IAM) DeleteRole(_ context.Context, in *iam.DeleteRoleInput, _ ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	if err := f.record("DeleteRole"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.RoleName)
	if _, ok := f.roles[name]; !ok {
		return nil, noSuchRole(name)
	}
	if len(f.attached[name]) > 0 || len(f.inline[name]) > 0 {
		return nil, &iamtypes.DeleteConflictException{Message: aws.String("Cannot delete entity, must detach all policies first.")}
	}
	delete(f.roles, name)
	return &iam.DeleteRoleOutput{}, nil
}

func (f *IAM) policy(arn string) (iamtypes.Policy, bool) {
	i := slices.IndexFunc(f.policies, func(p iamtypes.Policy) bool { return aws.ToString(p.Arn) == arn })
	if i < 0 {
		return iamtypes.Policy{}, false
	}
	return f.policies[i], true
}

func (f *IAM) AttachRolePolicy(_ context.Context, in *iam.AttachRolePolicyInput, _ ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	if err := f.record("AttachRolePolicy"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.RoleName)
	if _, ok := f.roles[name]; !ok {
		return nil, noSuchRole(name)
	}
	p, ok := f.policy(aws.ToString(in.PolicyArn))
	if !ok {
		return nil, &iamtypes.NoSuchEntityException{Message: aws.String("Policy " + aws.ToString(in.PolicyArn) + " does not exist or is not attachable.")}
	}
	if !slices.ContainsFunc(f.attached[name], func(a iamtypes.AttachedPolicy) bool { return aws.ToString(a.PolicyArn) == aws.ToString(p.Arn) }) {
		f.attached[name] = append(f.attached[name], iamtypes.AttachedPolicy{PolicyArn: p.Arn, PolicyName: p.PolicyName})
	}
	return &iam.AttachRolePolicyOutput{}, nil
}

func (f *IAM) DetachRolePolicy(_ context.Context, in *iam.DetachRolePolicyInput, _ ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	if err := f.record("DetachRolePolicy"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.RoleName)
	arn := aws.ToString(in.PolicyArn)
	i := slices.IndexFunc(f.attached[name], func(a iamtypes.AttachedPolicy) bool { return aws.ToString(a.PolicyArn) == arn })
	if i < 0 {
		return nil, &iamtypes.NoSuchEntityException{Message: aws.String("Policy " + arn + " was not found.")}
	}
	f.attached[name] = slices.Delete(f.attached[name], i, i+1)
	return &iam.DetachRolePolicyOutput{}, nil
}

func (f *IAM) ListAttachedRolePolicies(_ context.Context, in *iam.ListAttachedRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error) {
	if err := f.record("ListAttachedRolePolicies"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.RoleName)
	if _, ok := f.roles[name]; !ok {
		return nil, noSuchRole(name)
	}
	return &iam.ListAttachedRolePoliciesOutput{AttachedPolicies: slices.Clone(f.attached[name])}, nil
}

func (f *IAM) PutRolePolicy(_ context.Context, in *iam.PutRolePolicyInput, _ ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	if err := f.record("PutRolePolicy"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.RoleName)
	if _, ok := f.roles[name]; !ok {
		return nil, noSuchRole(name)
	}
	doc := aws.ToString(in.PolicyDocument)
	if !json.Valid([]byte(doc)) {
		return nil, &iamtypes.MalformedPolicyDocumentException{Message: aws.String("This policy contains invalid Json")}
	}
	if f.inline[name] == nil {
		f.inline[name] = map[string]string{}
	}
	f.inline[name][aws.ToString(in.PolicyName)] = doc
	return &iam.PutRolePolicyOutput{}, nil
}

func (f *IAM) ListRolePolicies(_ context.Context, in *iam.ListRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error) {
	if err := f.record("ListRolePolicies"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.RoleName)
	if _, ok := f.roles[name]; !ok {
		return nil, noSuchRole(name)
	}
	var names []string
	for n := range f.inline[name] {
		names = append(names, n)
	}
	sort.Strings(names)
	return &iam.ListRolePoliciesOutput{PolicyNames: names}, nil
}

func (f *IAM) DeleteRolePolicy(_ context.Context, in *iam.DeleteRolePolicyInput, _ ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error) {
	if err := f.record("DeleteRolePolicy"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.RoleName)
	policy := aws.ToString(in.PolicyName)
	if _, ok := f.inline[name][policy]; !ok {
		return nil, &iamtypes.NoSuchEntityException{Message: aws.String("The role policy with name " + policy + " cannot be found.")}
	}
	delete(f.inline[name], policy)
	return &iam.DeleteRolePolicyOutput{}, nil
}

func (f *IAM) ListPolicies(_ context.Context, in *iam.ListPoliciesInput, _ ...func(*iam.Options)) (*iam.ListPoliciesOutput, error) {
	if err := f.record("ListPolicies"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	start := 0
	if m := aws.ToString(in.Marker); m != "" {
		n, err := strconv.Atoi(m)
		if err != nil {
			return nil, &iamtypes.InvalidInputException{Message: aws.String("invalid marker")}
		}
		start = n
	}
	end := len(f.policies)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}
	out := &iam.ListPoliciesOutput{Policies: slices.Clone(f.policies[start:end])}
	if end < len(f.policies) {
		out.IsTruncated = true
		out.Marker = aws.String(strconv.Itoa(end))
	}
	return out, nil
}
