// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"
)

// DefaultPath is the state file used when none is given.
const DefaultPath = ".aws_dict.yml"

// BackendLocal keeps the state document in a single file.
type BackendLocal struct {
	Path string
}

type BackendLocalOption = func(ctx context.Context, be *BackendLocal) error

// NewBackendLocal returns a BackendLocal configured by options.
func NewBackendLocal(ctx context.Context, options ...BackendLocalOption) (*BackendLocal, error) {
	options = append([]BackendLocalOption{WithDefaults()}, options...)

	be := &BackendLocal{}
	for _, opt := range options {
		if err := opt(ctx, be); err != nil {
			return nil, err
		}
	}

	return be, nil
}

func WithDefaults() BackendLocalOption {
	return func(ctx context.Context, be *BackendLocal) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		be.Path = filepath.Join(cwd, DefaultPath)
		return nil
	}
}

// FromPath sets the state file. Relative paths are made absolute against the
// current directory. An empty path keeps the default.
func FromPath(path string) BackendLocalOption {
	return func(ctx context.Context, be *BackendLocal) error {
		if path == "" {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if fi, err := os.Stat(abs); err == nil && fi.IsDir() {
			return fmt.Errorf("state path is a directory: %s", abs)
		}
		be.Path = abs
		return nil
	}
}

func (be *BackendLocal) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(be.Path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debugf("no state file at %s", be.Path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	return data, nil
}

// Write replaces the file atomically via a sibling temp file.
func (be *BackendLocal) Write(ctx context.Context, data []byte) error {
	dir := filepath.Dir(be.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(be.Path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil { //nolint:mnd
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), be.Path); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	log.Debugf("state written: path=%s bytes=%d", be.Path, len(data))
	return nil
}

func (be *BackendLocal) String() string {
	return be.Path
}
