// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"fmt"

	"github.com/apex/log"

	"github.com/subfish/subfish/internal/backend/local"
	"github.com/subfish/subfish/internal/backend/s3"
)

// Backend reads and writes the raw state document. Read returns nil, nil
// when no document has been written yet.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	String() string
}

// Spec selects and configures a backend.
type Spec struct {
	Path     string
	Bucket   string
	Key      string
	Region   string
	S3Client s3.API
	// Passphrase, when set, encrypts the S3 copy.
	Passphrase string
	// Iterations overrides DefaultIterations for new envelopes.
	Iterations int
}

// NewBackend returns the local backend for spec.Path, mirrored to S3 when a
// bucket is named. The mirror is encrypted when a passphrase is given.
func NewBackend(ctx context.Context, spec Spec) (Backend, error) {
	be, err := local.NewBackendLocal(ctx, local.FromPath(spec.Path))
	if err != nil {
		return nil, err
	}

	if spec.Bucket == "" {
		return be, nil
	}

	opts := []s3.BackendS3Option{s3.WithBucket(spec.Bucket), s3.WithKey(spec.Key)}
	if spec.Region != "" {
		opts = append(opts, s3.WithRegion(spec.Region))
	}
	if spec.S3Client != nil {
		opts = append(opts, s3.WithClient(spec.S3Client))
	}
	remote, err := s3.NewBackendS3(ctx, opts...)
	if err != nil {
		return nil, err
	}

	if spec.Passphrase != "" {
		return &Mirror{Primary: be, Secondary: &Encrypted{Inner: remote, Passphrase: spec.Passphrase, Iterations: spec.Iterations}}, nil
	}
	return &Mirror{Primary: be, Secondary: remote}, nil
}

// Mirror writes through to both backends and reads from Primary, falling back
// to Secondary when Primary has nothing yet.
type Mirror struct {
	Primary   Backend
	Secondary Backend
}

func (m *Mirror) Read(ctx context.Context) ([]byte, error) {
	data, err := m.Primary.Read(ctx)
	if err != nil || data != nil {
		return data, err
	}

	log.Debugf("%s empty, trying %s", m.Primary, m.Secondary)
	return m.Secondary.Read(ctx)
}

func (m *Mirror) Write(ctx context.Context, data []byte) error {
	if err := m.Primary.Write(ctx, data); err != nil {
		return err
	}
	if err := m.Secondary.Write(ctx, data); err != nil {
		return fmt.Errorf("state saved to %s but not mirrored: %w", m.Primary, err)
	}
	return nil
}

func (m *Mirror) String() string {
	return m.Primary.String()
}
