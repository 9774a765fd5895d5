// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// AffinityKey is the tag that places a resource in an affinity group.
const AffinityKey = "affinity_group"

// AffinityTag returns the tag for group n.
func AffinityTag(n int) ec2types.Tag {
	return ec2types.Tag{Key: aws.String(AffinityKey), Value: aws.String(strconv.Itoa(n))}
}

// Affinity returns the group encoded in tags, if any.
func Affinity(tags []ec2types.Tag) (int, bool) {
	for _, t := range tags {
		if aws.ToString(t.Key) != AffinityKey {
			continue
		}
		n, err := strconv.Atoi(aws.ToString(t.Value))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// InGroup reports whether tags place a resource in group n.
func InGroup(tags []ec2types.Tag, n int) bool {
	g, ok := Affinity(tags)
	return ok && g == n
}

// Filter builds an EC2 describe filter.
func Filter(name string, values ...string) ec2types.Filter {
	return ec2types.Filter{Name: aws.String(name), Values: values}
}

// TagValue returns the value of the tag named key.
func TagValue(tags []ec2types.Tag, key string) (string, bool) {
	for _, t := range tags {
		if aws.ToString(t.Key) == key {
			return aws.ToString(t.Value), true
		}
	}
	return "", false
}
