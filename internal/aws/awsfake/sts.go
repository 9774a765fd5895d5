// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package awsfake

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	awsx "github.com/subfish/subfish/internal/aws"
)

var _ awsx.STSAPI = (*STS)(nil)

// STS answers GetCallerIdentity for Account.
type STS struct {
	recorder
}

func (f *STS) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if err := f.record("GetCallerIdentity"); err != nil {
		return nil, err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(Account),
		Arn:     aws.String("arn:aws:iam::" + Account + ":user/tester"),
		UserId:  aws.String("AIDAEXAMPLEUSERID"),
	}, nil
}
