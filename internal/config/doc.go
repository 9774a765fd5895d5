// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package config provides loading and typed accessors for subfish's user
// configuration, a YAML document named subfish.yaml in the directory returned
// by os.UserConfigDir, or the file named by SUBFISH_CFG_FILE.
//
// Keys may be namespaced by sub-command. With Namespace "status", a lookup of
// "color" tries "status.color" and then "color".
package config
