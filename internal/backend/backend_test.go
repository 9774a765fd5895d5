// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memS3 is an in-memory object store keyed by bucket/key.
type memS3 struct {
	objects map[string][]byte
}

func (m *memS3) GetObject(ctx context.Context, in *s3v2.GetObjectInput, _ ...func(*s3v2.Options)) (*s3v2.GetObjectOutput, error) {
	data, ok := m.objects[awsv2.ToString(in.Bucket)+"/"+awsv2.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3v2.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *memS3) PutObject(ctx context.Context, in *s3v2.PutObjectInput, _ ...func(*s3v2.Options)) (*s3v2.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[awsv2.ToString(in.Bucket)+"/"+awsv2.ToString(in.Key)] = data
	return &s3v2.PutObjectOutput{}, nil
}

func TestLocalBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.yml")

	be, err := NewBackend(ctx, Spec{Path: path})
	require.NoError(t, err)
	assert.Equal(t, path, be.String())

	data, err := be.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, data, "missing file reads as nothing")

	require.NoError(t, be.Write(ctx, []byte("Vpc: {}\n")))

	data, err = be.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Vpc: {}\n", string(data))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLocalBackend_DirectoryRejected(t *testing.T) {
	_, err := NewBackend(context.Background(), Spec{Path: t.TempDir()})
	assert.ErrorContains(t, err, "is a directory")
}

func TestMirrorBackend(t *testing.T) {
	ctx := context.Background()
	store := &memS3{objects: map[string][]byte{}}
	path := filepath.Join(t.TempDir(), "state.yml")

	be, err := NewBackend(ctx, Spec{Path: path, Bucket: "lab", S3Client: store})
	require.NoError(t, err)
	require.IsType(t, &Mirror{}, be)
	assert.Equal(t, path, be.String())

	require.NoError(t, be.Write(ctx, []byte("a: 1\n")))
	assert.Equal(t, []byte("a: 1\n"), store.objects["lab/subfish/aws_dict.yml"])

	// A fresh workstation pulls the mirrored copy.
	require.NoError(t, os.Remove(path))
	data, err := be.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(data))
}

func TestMirrorBackend_CustomKeyEmpty(t *testing.T) {
	ctx := context.Background()
	store := &memS3{objects: map[string][]byte{}}

	be, err := NewBackend(ctx, Spec{Path: filepath.Join(t.TempDir(), "s.yml"), Bucket: "lab", Key: "envs/dev.yml", S3Client: store})
	require.NoError(t, err)

	data, err := be.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	m := be.(*Mirror)
	assert.Equal(t, "s3://lab/envs/dev.yml", m.Secondary.String())
}

func TestEncryptedMirror(t *testing.T) {
	ctx := context.Background()
	store := &memS3{objects: map[string][]byte{}}
	path := filepath.Join(t.TempDir(), "state.yml")
	spec := Spec{Path: path, Bucket: "lab", S3Client: store, Passphrase: "s3cret", Iterations: 1000}

	be, err := NewBackend(ctx, spec)
	require.NoError(t, err)
	require.NoError(t, be.Write(ctx, []byte("Vpc: {VpcId: vpc-1}\n")))

	local, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Vpc: {VpcId: vpc-1}\n", string(local), "local copy stays plain")

	remote := store.objects["lab/subfish/aws_dict.yml"]
	assert.NotContains(t, string(remote), "vpc-1")
	assert.Contains(t, string(remote), `"kdf":"pbkdf2-sha512"`)

	require.NoError(t, os.Remove(path))
	data, err := be.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Vpc: {VpcId: vpc-1}\n", string(data))

	spec.Passphrase = "wrong"
	be, err = NewBackend(ctx, spec)
	require.NoError(t, err)
	_, err = be.Read(ctx)
	assert.ErrorIs(t, err, ErrPassphrase)
}

func TestEncrypted_ReadsPlainDocuments(t *testing.T) {
	ctx := context.Background()
	store := &memS3{objects: map[string][]byte{"lab/subfish/aws_dict.yml": []byte("a: 1\n")}}

	be, err := NewBackend(ctx, Spec{Path: filepath.Join(t.TempDir(), "s.yml"), Bucket: "lab", S3Client: store, Passphrase: "x", Iterations: 1000})
	require.NoError(t, err)

	data, err := be.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(data))
}

func TestEncrypted_RandomizedPerWrite(t *testing.T) {
	a, err := seal([]byte("same"), "p", 1000)
	require.NoError(t, err)
	b, err := seal([]byte("same"), "p", 1000)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	var env envelope
	require.NoError(t, json.Unmarshal(a, &env))
	assert.Equal(t, 1000, env.Meta.Iterations)
	env.Meta.KDF = "scrypt"
	_, err = open(env, "p")
	assert.ErrorContains(t, err, "unsupported key derivation")
}
