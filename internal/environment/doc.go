// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package environment stands up and tears down a whole topology described by
// a blueprint. Up walks the facades in dependency order and Down walks them in
// exactly the reverse order. Every step is idempotent against the state cache
// so an interrupted run is resumed by running it again.
package environment
