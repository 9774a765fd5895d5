// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"os"
	"path/filepath"
	"strings"
)

// ParseConfigDir splits a `dir[::blueprint]` argument into the absolute
// config directory and the optional blueprint name. The directory must exist.
func ParseConfigDir(spec string) (string, string, error) {
	if spec == "" {
		return "", "", os.ErrInvalid
	}

	dir, blueprint, _ := strings.Cut(spec, "::")
	if i := strings.Index(blueprint, "::"); i >= 0 {
		blueprint = blueprint[:i]
	}
	blueprint = strings.TrimSpace(blueprint)

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}

	fi, err := os.Stat(abs)
	if err != nil {
		return "", "", err
	}
	if !fi.IsDir() {
		return "", "", os.ErrInvalid
	}

	return abs, blueprint, nil
}
