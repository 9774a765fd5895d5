// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package svutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/subfish/subfish/internal/cacheutil"
)

// Resolve returns the versions that specs name, in spec order. versions must
// be newest first. A spec is one of:
//
//	~N      the Nth newest version, ~0 being the one the last save replaced
//	-N, 0   the same, as a relative index
//	serial  the version with that serial number
//	file    a state document on disk
//
// With no specs Resolve returns the newest version.
func Resolve(versions []*cacheutil.Entry, specs ...string) ([]*cacheutil.Entry, error) {
	if len(specs) == 0 {
		specs = []string{"~0"}
	}

	result := make([]*cacheutil.Entry, 0, len(specs))
	for _, spec := range specs {
		v, err := resolveSpec(strings.TrimSpace(spec), versions)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func resolveSpec(spec string, versions []*cacheutil.Entry) (*cacheutil.Entry, error) {
	switch {
	case strings.HasPrefix(spec, "~"):
		return resolveRelativeSpec(spec, versions)
	case isNumeric(spec):
		return resolveNumericSpec(spec, versions)
	case isFilePath(spec):
		return resolveFileSpec(spec)
	default:
		return nil, fmt.Errorf("unknown state version %q", spec)
	}
}

func resolveRelativeSpec(spec string, versions []*cacheutil.Entry) (*cacheutil.Entry, error) {
	index, err := strconv.Atoi(strings.TrimPrefix(spec, "~"))
	if err != nil || index < 0 {
		return nil, fmt.Errorf("invalid relative version: %s", spec)
	}
	return at(index, versions)
}

// resolveNumericSpec treats n <= 0 as a relative index and n > 0 as a serial.
func resolveNumericSpec(spec string, versions []*cacheutil.Entry) (*cacheutil.Entry, error) {
	i, _ := strconv.Atoi(spec)
	if i <= 0 {
		return at(-i, versions)
	}

	for _, v := range versions {
		if v.Serial == i {
			return v, nil
		}
	}
	return nil, fmt.Errorf("failed to find state version with serial %d", i)
}

func resolveFileSpec(spec string) (*cacheutil.Entry, error) {
	info, err := os.Stat(spec)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to read state version: %w", err)
	}
	return &cacheutil.Entry{Key: spec, Path: spec, ModTime: info.ModTime(), Data: data}, nil
}

func at(index int, versions []*cacheutil.Entry) (*cacheutil.Entry, error) {
	if index > len(versions)-1 {
		return nil, fmt.Errorf("index %d out of range for %d versions", index, len(versions))
	}
	return versions[index], nil
}

func isNumeric(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func isFilePath(s string) bool {
	info, err := os.Stat(s)
	return err == nil && !info.IsDir()
}
