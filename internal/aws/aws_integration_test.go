// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

//go:build integration
// +build integration

package aws

import (
	"context"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIntegration_Identity verifies the STS client using the configured
// credential chain.
func TestIntegration_Identity(t *testing.T) {
	ctx := context.Background()

	cfg, err := LoadAWSConfig(ctx, WithRegion("us-east-1"))
	require.NoError(t, err)

	account, arn, err := NewClients(cfg).Identity(ctx)
	require.NoError(t, err)
	assert.Len(t, account, 12)
	assert.Contains(t, arn, account)
}

// TestIntegration_DescribeAvailabilityZones verifies a read-only EC2 call.
func TestIntegration_DescribeAvailabilityZones(t *testing.T) {
	ctx := context.Background()

	cfg, err := LoadAWSConfig(ctx, WithRegion("us-east-1"))
	require.NoError(t, err)

	out, err := NewClients(cfg).EC2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{})
	require.NoError(t, err)
	assert.NotEmpty(t, out.AvailabilityZones)
	for _, az := range out.AvailabilityZones {
		assert.Equal(t, "us-east-1", awsv2.ToString(az.RegionName))
	}
}

// TestIntegration_NotFoundCode verifies error code extraction against a real
// API error.
func TestIntegration_NotFoundCode(t *testing.T) {
	ctx := context.Background()

	cfg, err := LoadAWSConfig(ctx, WithRegion("us-east-1"))
	require.NoError(t, err)

	_, err = NewClients(cfg).EC2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		RouteTableIds: []string{"rtb-00000000000000000"},
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeRouteTableNotFound))
}
