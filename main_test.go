// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subfish/subfish/internal/config"
)

func TestDeduplicateFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "empty args",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "only program and command",
			args:     []string{"subfish", "status"},
			expected: []string{"subfish", "status"},
		},
		{
			name:     "no duplicates",
			args:     []string{"subfish", "status", "--output", "text", "--titles"},
			expected: []string{"subfish", "status", "--output", "text", "--titles"},
		},
		{
			name:     "duplicate flag with value - last wins",
			args:     []string{"subfish", "status", "--output", "json", "--titles", "--output", "text"},
			expected: []string{"subfish", "status", "--titles", "--output", "text"},
		},
		{
			name:     "duplicate boolean flag",
			args:     []string{"subfish", "status", "--titles", "--debug", "--titles"},
			expected: []string{"subfish", "status", "--debug", "--titles"},
		},
		{
			name:     "duplicate flag with equals syntax",
			args:     []string{"subfish", "status", "--output=json", "--titles", "--output=text"},
			expected: []string{"subfish", "status", "--titles", "--output=text"},
		},
		{
			name:     "mixed equals and space syntax - same flag",
			args:     []string{"subfish", "status", "--output=json", "--output", "text"},
			expected: []string{"subfish", "status", "--output", "text"},
		},
		{
			name:     "multiple different flags with duplicates",
			args:     []string{"subfish", "up", "--region", "us-east-1", "--profile", "dev", "--region", "eu-west-1", "--profile", "prod"},
			expected: []string{"subfish", "up", "--region", "eu-west-1", "--profile", "prod"},
		},
		{
			name:     "positional args preserved",
			args:     []string{"subfish", "status", "/path/to/lab", "--output", "json", "--output", "text"},
			expected: []string{"subfish", "status", "/path/to/lab", "--output", "text"},
		},
		{
			name:     "short flags deduplicated",
			args:     []string{"subfish", "status", "-o", "json", "-o", "text"},
			expected: []string{"subfish", "status", "-o", "text"},
		},
		{
			name:     "different flags not affected",
			args:     []string{"subfish", "status", "--color", "--no-color"},
			expected: []string{"subfish", "status", "--color", "--no-color"},
		},
		{
			name:     "triple duplicate",
			args:     []string{"subfish", "status", "--output", "a", "--output", "b", "--output", "c"},
			expected: []string{"subfish", "status", "--output", "c"},
		},
		{
			name:     "known boolean never takes a value",
			args:     []string{"subfish", "down", "--yes", "/path/to/lab", "--yes"},
			expected: []string{"subfish", "down", "/path/to/lab", "--yes"},
		},
		{
			name:     "args after -- untouched",
			args:     []string{"subfish", "show", "-o", "json", "--", "-o", "x"},
			expected: []string{"subfish", "show", "-o", "json", "--", "-o", "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, deduplicateFlags(tt.args))
		})
	}
}

func TestDeduplicateFlagsPreservesOrder(t *testing.T) {
	args := []string{"subfish", "status", "--alpha", "--beta", "--gamma"}
	assert.Equal(t, []string{"subfish", "status", "--alpha", "--beta", "--gamma"}, deduplicateFlags(args))
}

func TestDeduplicateFlagsWithPositionalAfterFlags(t *testing.T) {
	args := []string{"subfish", "status", "--output", "json", "/path", "--output", "text"}
	assert.Equal(t, []string{"subfish", "status", "/path", "--output", "text"}, deduplicateFlags(args))
}

func TestInjectConfigSet(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		insertIdx int
		entries   []string
		expected  []string
	}{
		{
			name:      "empty config returns args unchanged",
			args:      []string{"subfish", "status", "--titles"},
			insertIdx: 2,
			expected:  []string{"subfish", "status", "--titles"},
		},
		{
			name:      "single entry injected",
			args:      []string{"subfish", "status", "--titles"},
			insertIdx: 2,
			entries:   []string{"--color"},
			expected:  []string{"subfish", "status", "--color", "--titles"},
		},
		{
			name:      "multi-word entry split",
			args:      []string{"subfish", "status", "--titles"},
			insertIdx: 2,
			entries:   []string{"--output text"},
			expected:  []string{"subfish", "status", "--output", "text", "--titles"},
		},
		{
			name:      "multiple entries",
			args:      []string{"subfish", "status"},
			insertIdx: 2,
			entries:   []string{"--color", "--output json"},
			expected:  []string{"subfish", "status", "--color", "--output", "json"},
		},
		{
			name:      "insert at index 3",
			args:      []string{"subfish", "status", "/path/to/lab", "--titles"},
			insertIdx: 3,
			entries:   []string{"--color"},
			expected:  []string{"subfish", "status", "/path/to/lab", "--color", "--titles"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, injectConfigSet(tt.args, tt.entries, tt.insertIdx))
		})
	}
}

func TestProcessSetOnly(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "subfish.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("status:\n  wide:\n    - --titles\n    - --attrs id:ID:u\n"), 0o600))
	t.Setenv("SUBFISH_CFG_FILE", cfg)
	config.Config = config.Type{}
	t.Cleanup(func() { config.Config = config.Type{} })

	got := processSetOnly([]string{"subfish", "status", "@wide", "-o", "json"})
	assert.Equal(t, []string{"subfish", "status", "--titles", "--attrs", "id:ID:u", "-o", "json"}, got)

	got = processSetOnly([]string{"subfish", "status", "@missing"})
	assert.Equal(t, []string{"subfish", "status"}, got)

	got = processSetOnly([]string{"subfish", "status", "-o", "json"})
	assert.Equal(t, []string{"subfish", "status", "-o", "json"}, got)
}

func TestProcessConfigDirArgs(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{"bare", []string{"subfish", "up"}, []string{"subfish", "up", cwd}},
		{"flags_only", []string{"subfish", "up", "--region", "x"}, []string{"subfish", "up", cwd, "--region", "x"}},
		{"dir_given", []string{"subfish", "up", dir}, []string{"subfish", "up", dir}},
		{"dir_and_blueprint", []string{"subfish", "up", dir + "::prod", "-r", "x"}, []string{"subfish", "up", dir + "::prod", "-r", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, processConfigDirArgs(tt.args))
		})
	}
}

func TestHandleNakedCommand(t *testing.T) {
	assert.Equal(t, []string{"subfish", "--help"}, handleNakedCommand([]string{"subfish"}))
	assert.Equal(t, []string{"subfish", "status"}, handleNakedCommand([]string{"subfish", "status"}))
}
