// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package svutil finds state versions. Given the cached snapshots of a state
// document, newest first, it resolves user specs such as "~1", a serial
// number or a file path to the versions they name.
package svutil
