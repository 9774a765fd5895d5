// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package awsfake

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	awsx "github.com/subfish/subfish/internal/aws"
)

// Account is the account id every fake reports.
const Account = "123456789012"

// APIError returns a generic API error carrying code, the way EC2 reports
// failures.
func APIError(code, format string, args ...any) error {
	return &smithy.GenericAPIError{Code: code, Message: fmt.Sprintf(format, args...), Fault: smithy.FaultClient}
}

// recorder logs calls and hands out queued failures.
type recorder struct {
	mu       sync.Mutex
	calls    []string
	failures map[string][]error
}

// record notes a call to op and returns the next queued failure, if any.
func (r *recorder) record(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, op)
	queue := r.failures[op]
	if len(queue) == 0 {
		return nil
	}
	r.failures[op] = queue[1:]
	return queue[0]
}

// FailNext makes the next len(errs) calls to op return errs in order.
func (r *recorder) FailNext(op string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = map[string][]error{}
	}
	r.failures[op] = append(r.failures[op], errs...)
}

// Calls returns how many times op was called.
func (r *recorder) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == op {
			n++
		}
	}
	return n
}

// Ops returns every recorded call in order.
func (r *recorder) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Cloud bundles one fake per service.
type Cloud struct {
	EC2         *EC2
	IAM         *IAM
	EKS         *EKS
	AutoScaling *AutoScaling
	STS         *STS
}

// New returns an empty cloud in us-east-1.
func New() *Cloud {
	return &Cloud{
		EC2:         NewEC2("us-east-1"),
		IAM:         NewIAM(),
		EKS:         NewEKS("us-east-1"),
		AutoScaling: NewAutoScaling(),
		STS:         &STS{},
	}
}

// Clients exposes the fakes through the interfaces the facades consume.
func (c *Cloud) Clients() *awsx.Clients {
	return &awsx.Clients{
		EC2:         c.EC2,
		IAM:         c.IAM,
		EKS:         c.EKS,
		AutoScaling: c.AutoScaling,
		STS:         c.STS,
	}
}

// attrFunc returns the values a resource has for a describe filter name.
type attrFunc func(name string) []string

// matches reports whether every filter has at least one value the resource
// carries. Unknown filter names match nothing.
func matches(filters []ec2types.Filter, attr attrFunc) bool {
	for _, f := range filters {
		have := attr(aws.ToString(f.Name))
		if !slices.ContainsFunc(f.Values, func(v string) bool { return slices.Contains(have, v) }) {
			return false
		}
	}
	return true
}

// tagAttr resolves tag-key and tag:<key> filters.
func tagAttr(tags []ec2types.Tag, name string) []string {
	var out []string
	switch {
	case name == "tag-key":
		for _, t := range tags {
			out = append(out, aws.ToString(t.Key))
		}
	case strings.HasPrefix(name, "tag:"):
		key := strings.TrimPrefix(name, "tag:")
		for _, t := range tags {
			if aws.ToString(t.Key) == key {
				out = append(out, aws.ToString(t.Value))
			}
		}
	}
	return out
}

// upsertTags merges add into tags, replacing values of existing keys.
func upsertTags(tags []ec2types.Tag, add []ec2types.Tag) []ec2types.Tag {
	out := slices.Clone(tags)
	for _, a := range add {
		i := slices.IndexFunc(out, func(t ec2types.Tag) bool { return aws.ToString(t.Key) == aws.ToString(a.Key) })
		if i >= 0 {
			out[i] = a
			continue
		}
		out = append(out, a)
	}
	return out
}

// specTags returns the tags requested for resourceType.
func specTags(specs []ec2types.TagSpecification, resourceType ec2types.ResourceType) []ec2types.Tag {
	var out []ec2types.Tag
	for _, s := range specs {
		if s.ResourceType == resourceType {
			out = append(out, s.Tags...)
		}
	}
	return out
}

// onlyIDs keeps items whose id is in ids; an empty ids keeps everything.
// Missing ids yield an error with notFoundCode.
func onlyIDs[T any](items []*T, ids []string, id func(*T) string, notFoundCode string) ([]*T, error) {
	if len(ids) == 0 {
		return items, nil
	}
	var out []*T
	for _, want := range ids {
		i := slices.IndexFunc(items, func(it *T) bool { return id(it) == want })
		if i < 0 {
			return nil, APIError(notFoundCode, "The ID '%s' does not exist", want)
		}
		out = append(out, items[i])
	}
	return out, nil
}
