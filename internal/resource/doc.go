// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package resource holds what every resource facade shares: the state store,
// the AWS clients, the template renderer, the pacing used between eventually
// consistent calls, and the affinity group tag helpers.
package resource
