// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package aws

import (
	"context"
	"errors"
	"fmt"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subfish/subfish/internal/version"
)

func TestOptions(t *testing.T) {
	var opts options
	WithProfile("lab")(&opts)
	WithRegion("ap-southeast-1")(&opts)
	WithRetryer(func() awsv2.Retryer { return retry.NewStandard() })(&opts)

	assert.Equal(t, "lab", opts.profile)
	assert.Equal(t, "ap-southeast-1", opts.region)
	require.NotNil(t, opts.retryer)
	assert.NotNil(t, opts.retryer())
}

func TestLoadAWSConfig_WithRegion(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", "/dev/null")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/dev/null")

	cfg, err := LoadAWSConfig(context.Background(),
		WithRegion("us-east-1"),
		WithRegion("eu-west-1"),
	)

	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region, "later options win")
	assert.Equal(t, version.AppID(), cfg.AppID)
}

func TestNewClients(t *testing.T) {
	cfg := awsv2.Config{Region: "us-east-2"}

	c := NewClients(cfg)

	assert.IsType(t, &ec2.Client{}, c.EC2)
	assert.NotNil(t, c.IAM)
	assert.NotNil(t, c.EKS)
	assert.NotNil(t, c.AutoScaling)
	assert.NotNil(t, c.STS)
	assert.IsType(t, &s3v2.Client{}, NewS3(cfg))
}

func TestErrorCodes(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: CodeRouteTableNotFound, Message: "rtb-1 does not exist"}
	wrapped := fmt.Errorf("tagging: %w", apiErr)
	plain := errors.New("boom")

	tests := []struct {
		name    string
		err     error
		code    string
		message string
	}{
		{"api error", apiErr, CodeRouteTableNotFound, "rtb-1 does not exist"},
		{"wrapped api error", wrapped, CodeRouteTableNotFound, "rtb-1 does not exist"},
		{"plain error", plain, "", "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ErrorCode(tt.err))
			assert.Equal(t, tt.message, ErrorMessage(tt.err))
		})
	}

	assert.True(t, IsCode(wrapped, CodeGroupDuplicate, CodeRouteTableNotFound))
	assert.False(t, IsCode(wrapped, CodeGroupDuplicate))
	assert.False(t, IsCode(nil, CodeGroupDuplicate))
	assert.NoError(t, IgnoreCode(wrapped, CodeRouteTableNotFound))
	assert.ErrorIs(t, IgnoreCode(plain, CodeRouteTableNotFound), plain)
}
