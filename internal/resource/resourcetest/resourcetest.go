// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package resourcetest wires facades to the in-memory AWS fakes and a state
// file in a temp dir.
package resourcetest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/subfish/subfish/internal/aws/awsfake"
	"github.com/subfish/subfish/internal/backend"
	"github.com/subfish/subfish/internal/render"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/retry"
	"github.com/subfish/subfish/internal/state"
)

// FastTiming never sleeps longer than a millisecond.
var FastTiming = resource.Timing{
	WaitTimeout: time.Minute,
	Backoff:     retry.Linear{Initial: time.Millisecond, Step: time.Millisecond, MaxAttempts: 5},
}

// Env is a Base over fakes plus where its files live.
type Env struct {
	Base      resource.Base
	Cloud     *awsfake.Cloud
	StatePath string
	ConfigDir string
}

// New returns an Env with an empty state file and an empty config dir.
func New(t testing.TB) *Env {
	t.Helper()
	dir := t.TempDir()
	e := &Env{
		Cloud:     awsfake.New(),
		StatePath: filepath.Join(dir, ".aws_dict.yml"),
		ConfigDir: filepath.Join(dir, "config"),
	}
	require.NoError(t, os.MkdirAll(e.ConfigDir, 0o755))

	e.Base = resource.NewBase(e.Reload(t), e.Cloud.Clients(), render.New(e.ConfigDir, nil))
	e.Base.Timing = FastTiming
	return e
}

// Reload opens the state file from disk.
func (e *Env) Reload(t testing.TB) *state.Store {
	t.Helper()
	be, err := backend.NewBackend(context.Background(), backend.Spec{Path: e.StatePath})
	require.NoError(t, err)
	s, err := state.Open(context.Background(), be)
	require.NoError(t, err)
	return s
}

// WriteConfig writes a file relative to the config dir.
func (e *Env) WriteConfig(t testing.TB, rel, content string) {
	t.Helper()
	p := filepath.Join(e.ConfigDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}
