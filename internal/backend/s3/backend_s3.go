// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apex/log"
	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	awsx "github.com/subfish/subfish/internal/aws"
)

// DefaultKey is the object key used when none is given.
const DefaultKey = "subfish/aws_dict.yml"

// API is the subset of *s3v2.Client used by BackendS3.
type API interface {
	GetObject(ctx context.Context, params *s3v2.GetObjectInput, optFns ...func(*s3v2.Options)) (*s3v2.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3v2.PutObjectInput, optFns ...func(*s3v2.Options)) (*s3v2.PutObjectOutput, error)
}

// BackendS3 stores the state document as one S3 object.
type BackendS3 struct {
	Bucket string
	Key    string
	Region string
	Client API
}

type BackendS3Option = func(ctx context.Context, be *BackendS3) error

// NewBackendS3 returns a BackendS3. Without WithClient a client is built from
// the shell's AWS config.
func NewBackendS3(ctx context.Context, options ...BackendS3Option) (*BackendS3, error) {
	be := &BackendS3{Key: DefaultKey}
	for _, opt := range options {
		if err := opt(ctx, be); err != nil {
			return nil, err
		}
	}

	if be.Bucket == "" {
		return nil, errors.New("s3 backend requires a bucket")
	}

	if be.Client == nil {
		var cfgOpts []awsx.Option
		if be.Region != "" {
			cfgOpts = append(cfgOpts, awsx.WithRegion(be.Region))
		}
		cfg, err := awsx.LoadAWSConfig(ctx, cfgOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		be.Client = awsx.NewS3(cfg)
	}

	return be, nil
}

func WithBucket(bucket string) BackendS3Option {
	return func(ctx context.Context, be *BackendS3) error {
		be.Bucket = bucket
		return nil
	}
}

func WithKey(key string) BackendS3Option {
	return func(ctx context.Context, be *BackendS3) error {
		if key != "" {
			be.Key = key
		}
		return nil
	}
}

func WithRegion(region string) BackendS3Option {
	return func(ctx context.Context, be *BackendS3) error {
		be.Region = region
		return nil
	}
}

func WithClient(client API) BackendS3Option {
	return func(ctx context.Context, be *BackendS3) error {
		be.Client = client
		return nil
	}
}

func (be *BackendS3) Read(ctx context.Context) ([]byte, error) {
	result, err := be.Client.GetObject(ctx, &s3v2.GetObjectInput{
		Bucket: awsv2.String(be.Bucket),
		Key:    awsv2.String(be.Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) || awsx.IsCode(err, "NoSuchKey") {
			log.Debugf("no state object at %s", be)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get S3 object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	return data, nil
}

func (be *BackendS3) Write(ctx context.Context, data []byte) error {
	out, err := be.Client.PutObject(ctx, &s3v2.PutObjectInput{
		Bucket:      awsv2.String(be.Bucket),
		Key:         awsv2.String(be.Key),
		Body:        bytes.NewReader(data),
		ContentType: awsv2.String("application/yaml"),
	})
	if err != nil {
		return fmt.Errorf("failed to put S3 object: %w", err)
	}
	awsx.LogResponse("PutObject", out.ResultMetadata, out)
	return nil
}

func (be *BackendS3) String() string {
	return fmt.Sprintf("s3://%s/%s", be.Bucket, be.Key)
}
