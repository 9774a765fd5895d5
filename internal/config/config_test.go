// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useConfig points SUBFISH_CFG_FILE at a testdata file and loads it.
func useConfig(t *testing.T, testdataFile string, namespace ...string) {
	t.Helper()

	absPath, err := filepath.Abs(filepath.Join("testdata", testdataFile))
	require.NoError(t, err)
	t.Setenv("SUBFISH_CFG_FILE", absPath)

	Config = Type{}
	t.Cleanup(func() { Config = Type{} })

	_, err = Load(namespace...)
	require.NoError(t, err)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		testFile  string
		checkFunc func(*testing.T, Type)
	}{
		{
			name:     "simple string values",
			testFile: "simple.yaml",
			checkFunc: func(t *testing.T, cfg Type) {
				assert.NotEmpty(t, cfg.Source)
				assert.Equal(t, "us-east-1", cfg.Data["region"])
			},
		},
		{
			name:     "nested structure",
			testFile: "nested.yaml",
			checkFunc: func(t *testing.T, cfg Type) {
				status, ok := cfg.Data["status"].(map[string]interface{})
				assert.True(t, ok, "status should be a map")
				assert.Equal(t, true, status["color"])
			},
		},
		{
			name:     "mixed types",
			testFile: "mixed-types.yaml",
			checkFunc: func(t *testing.T, cfg Type) {
				assert.Equal(t, 1, cfg.Data["version"])
				assert.Equal(t, 30.5, cfg.Data["timeout"])
				assert.Len(t, cfg.Data["tags"], 2)
			},
		},
		{
			name:     "empty file",
			testFile: "empty.yaml",
			checkFunc: func(t *testing.T, cfg Type) {
				assert.NotEmpty(t, cfg.Source)
				assert.Empty(t, cfg.Data)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useConfig(t, tt.testFile)
			tt.checkFunc(t, Config)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("SUBFISH_CFG_FILE", "/nonexistent/path/subfish.yaml")
		_, err := Load()
		assert.ErrorContains(t, err, "config file not found")
	})

	t.Run("directory", func(t *testing.T) {
		t.Setenv("SUBFISH_CFG_FILE", "testdata")
		_, err := Load()
		assert.ErrorContains(t, err, "points to a directory")
	})
}

func TestGetters(t *testing.T) {
	useConfig(t, "nested.yaml")

	i, err := GetInt("cache.clean")
	assert.NoError(t, err)
	assert.Equal(t, 24, i)

	i, err = GetInt("cache.missing", 7)
	assert.NoError(t, err)
	assert.Equal(t, 7, i)

	b, err := GetBool("status.color")
	assert.NoError(t, err)
	assert.True(t, b)

	s, err := GetString("status.sort")
	assert.NoError(t, err)
	assert.Equal(t, "kind,group", s)

	_, err = GetString("status.padding")
	assert.Error(t, err, "int is not a string")

	set, err := GetStringSlice("up.defaults")
	assert.NoError(t, err)
	assert.Equal(t, []string{"--region us-west-2", "--yes"}, set)

	_, err = GetStringSlice("nope")
	assert.Error(t, err)
}

func TestNamespacedLookup(t *testing.T) {
	useConfig(t, "nested.yaml", "status")

	// "padding" resolves through the namespace.
	p, err := GetInt("padding")
	assert.NoError(t, err)
	assert.Equal(t, 2, p)

	// Fully qualified keys still work.
	c, err := GetInt("cache.clean")
	assert.NoError(t, err)
	assert.Equal(t, 24, c)
}
