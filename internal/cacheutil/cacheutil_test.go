// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package cacheutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subfish/subfish/internal/config"
)

// useCacheDir points the cache at a fresh temp dir with caching enabled.
func useCacheDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SUBFISH_CACHE_DIR", dir)
	t.Setenv("SUBFISH_CACHE", "1")
	return dir
}

func TestDir(t *testing.T) {
	custom := t.TempDir()
	t.Setenv("SUBFISH_CACHE_DIR", custom)

	got, ok := Dir()
	assert.True(t, ok)
	assert.Equal(t, custom, got)

	t.Setenv("SUBFISH_CACHE_DIR", "")
	if got, ok := Dir(); ok {
		assert.Equal(t, "subfish", filepath.Base(got))
	}
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"", true},
		{"1", true},
		{"yes", true},
		{"0", false},
		{"false", false},
	}

	for _, tt := range tests {
		t.Run("value="+tt.value, func(t *testing.T) {
			t.Setenv("SUBFISH_CACHE", tt.value)
			assert.Equal(t, tt.expected, Enabled())
		})
	}
}

func TestEnsureBaseDir(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "a", "b")
	t.Setenv("SUBFISH_CACHE_DIR", nested)
	t.Setenv("SUBFISH_CACHE", "1")

	base, ok, err := EnsureBaseDir()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, nested, base)
	assert.DirExists(t, nested)

	t.Setenv("SUBFISH_CACHE", "0")
	base, ok, err = EnsureBaseDir()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, base)
}

func TestWriteRead(t *testing.T) {
	dir := useCacheDir(t)

	_, found := Read([]string{"x"}, "k")
	assert.False(t, found)

	require.NoError(t, Write([]string{"x", "y"}, "k", []byte("Vpc: {}\n")))

	entry, found := Read([]string{"x", "y"}, "k")
	require.True(t, found)
	assert.Equal(t, "k", entry.Key)
	assert.Equal(t, filepath.Join(dir, "x", "y", encodeKey("k")), entry.Path)
	assert.Equal(t, []byte("Vpc: {}\n"), entry.Data, "content is returned untouched")

	info, err := os.Stat(entry.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWrite_Disabled(t *testing.T) {
	dir := useCacheDir(t)
	t.Setenv("SUBFISH_CACHE", "false")

	require.NoError(t, Write(nil, "k", []byte("data")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSnapshot(t *testing.T) {
	useCacheDir(t)

	_, found := LastSnapshot("/work/.aws_dict.yml")
	assert.False(t, found)
	assert.Empty(t, Snapshots("/work/.aws_dict.yml"))

	require.NoError(t, Snapshot("/work/.aws_dict.yml", []byte("one")))
	require.NoError(t, Snapshot("/work/.aws_dict.yml", []byte("two")))
	require.NoError(t, Snapshot("/other/.aws_dict.yml", []byte("other")))

	entry, found := LastSnapshot("/work/.aws_dict.yml")
	require.True(t, found)
	assert.Equal(t, "two", string(entry.Data))
	assert.Equal(t, 2, entry.Serial)

	snaps := Snapshots("/work/.aws_dict.yml")
	require.Len(t, snaps, 2)
	assert.Equal(t, "one", string(snaps[1].Data))
	assert.Equal(t, 1, snaps[1].Serial)
	assert.Equal(t, "/work/.aws_dict.yml", snaps[1].Key)
}

func TestSnapshot_KeepsConfiguredNumber(t *testing.T) {
	useCacheDir(t)
	orig := config.Config
	t.Cleanup(func() { config.Config = orig })
	config.Config = config.Type{Data: map[string]any{"cache": map[string]any{"snapshots": 3}}}

	for _, v := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, Snapshot("src", []byte(v)))
	}

	snaps := Snapshots("src")
	require.Len(t, snaps, 3)
	assert.Equal(t, []int{5, 4, 3}, []int{snaps[0].Serial, snaps[1].Serial, snaps[2].Serial})
	assert.Equal(t, "c", string(snaps[2].Data))

	// Serials keep counting after rotation.
	require.NoError(t, Snapshot("src", []byte("f")))
	assert.Equal(t, 6, Snapshots("src")[0].Serial)
}

func TestSnapshot_Disabled(t *testing.T) {
	useCacheDir(t)
	t.Setenv("SUBFISH_CACHE", "0")

	require.NoError(t, Snapshot("src", []byte("a")))
	_, found := LastSnapshot("src")
	assert.False(t, found)
}

func TestPurge(t *testing.T) {
	dir := useCacheDir(t)

	require.NoError(t, Write(nil, "old", []byte("o")))
	require.NoError(t, Write(nil, "new", []byte("n")))

	oldPath, _ := EntryPath(nil, "old")
	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, stale, stale))

	require.NoError(t, Purge(0), "disabled")
	assert.FileExists(t, oldPath)

	require.NoError(t, Purge(24))
	assert.NoFileExists(t, oldPath)
	assert.FileExists(t, filepath.Join(dir, encodeKey("new")))
}
